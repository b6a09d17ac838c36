package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LibraryEntry is a message its author consented to keep. Entries never
// expire; institutions may hide them from their own viewers.
type LibraryEntry struct {
	ID                string    `json:"id" gorm:"primaryKey;size:36"`
	MessageID         string    `json:"messageId,omitempty" gorm:"index"`
	RoomID            string    `json:"roomId,omitempty"`
	InstitutionCode   *string   `json:"institutionCode,omitempty" gorm:"index"`
	AuthorAnonymousID string    `json:"authorAnonymousId,omitempty"`
	AuthorRole        Role      `json:"authorRole,omitempty"`
	Text              string    `json:"text" gorm:"type:text;not null"`
	Tone              Consent   `json:"tone" gorm:"index"`
	Tags              []string  `json:"tags" gorm:"serializer:json;type:text"`
	CreatedAt         time.Time `json:"createdAt" gorm:"index"`

	HiddenFromInstitutions []string `json:"hiddenFromInstitutions" gorm:"-"`
}

// BeforeCreate assigns an id when unset.
func (e *LibraryEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// TableName overrides the table name
func (LibraryEntry) TableName() string {
	return "library_entries"
}

// LibraryHide records that an institution hid an entry from its viewers.
type LibraryHide struct {
	EntryID         string `gorm:"primaryKey;size:36"`
	InstitutionCode string `gorm:"primaryKey;size:64"`
	CreatedAt       time.Time
}

// TableName overrides the table name
func (LibraryHide) TableName() string {
	return "library_hides"
}
