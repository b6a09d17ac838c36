package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultMessageTTL is how long a chat message is retained.
const DefaultMessageTTL = 7 * 24 * time.Hour

// Role is the self-declared role of a chat participant.
type Role string

const (
	RoleStudent    Role = "student"
	RoleCounsellor Role = "counsellor"
	RoleVolunteer  Role = "volunteer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleCounsellor, RoleVolunteer:
		return true
	}
	return false
}

// Consent is the author's choice to keep a message in the library.
type Consent string

const (
	ConsentPositive Consent = "positive"
	ConsentNegative Consent = "negative"
)

// Retained reports whether the consent value creates a library entry.
func (c Consent) Retained() bool {
	return c == ConsentPositive || c == ConsentNegative
}

// Message is an ephemeral chat message. It is never updated after insert and
// is purged once ExpiresAt passes.
type Message struct {
	ID                string    `json:"id" gorm:"primaryKey;size:36"`
	RoomID            string    `json:"roomId" gorm:"index;not null"`
	InstitutionCode   *string   `json:"institutionCode,omitempty" gorm:"index"`
	AuthorAnonymousID string    `json:"authorAnonymousId,omitempty"`
	AuthorRole        Role      `json:"authorRole"`
	Text              string    `json:"text" gorm:"type:text;not null"`
	Consent           *Consent  `json:"consent,omitempty"`
	Tags              []string  `json:"tags,omitempty" gorm:"serializer:json;type:text"`
	CreatedAt         time.Time `json:"createdAt"`
	ExpiresAt         time.Time `json:"-" gorm:"index"`
}

// BeforeCreate assigns an id and the default expiry when unset.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.ExpiresAt.IsZero() {
		m.ExpiresAt = m.CreatedAt.Add(DefaultMessageTTL)
	}
	return nil
}

// TableName overrides the table name
func (Message) TableName() string {
	return "messages"
}
