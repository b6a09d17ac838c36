package models

import "time"

// AnonIdentity links a keyed hash of (institution, student) to the anonymous
// id shown in chat. The raw student id is never stored.
type AnonIdentity struct {
	KeyHash         string    `json:"-" gorm:"primaryKey;size:64"`
	InstitutionCode string    `json:"institutionCode" gorm:"index"`
	AnonymousID     string    `json:"anonymousId" gorm:"uniqueIndex;size:64"`
	CreatedAt       time.Time `json:"createdAt"`
}

// TableName overrides the table name
func (AnonIdentity) TableName() string {
	return "anonymous_identities"
}

// All returns every model the store migrates.
func All() []any {
	return []any{&Message{}, &Alert{}, &LibraryEntry{}, &LibraryHide{}, &AnonIdentity{}}
}
