package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mindpalace/backend/internal/sensitive"
)

// AlertStatus is the moderation state of an alert.
type AlertStatus string

const (
	AlertOpen     AlertStatus = "open"
	AlertResolved AlertStatus = "resolved"
)

// Alert is a flagged-message event queued for moderator review. MessageID is
// unique so a message raises at most one alert.
type Alert struct {
	ID                 string             `json:"id" gorm:"primaryKey;size:36"`
	MessageID          string             `json:"messageId" gorm:"uniqueIndex;size:64;not null"`
	InstitutionCode    string             `json:"institutionCode,omitempty" gorm:"index"`
	RoomID             string             `json:"roomId,omitempty"`
	StudentAnonymousID string             `json:"studentAnonymousId,omitempty"`
	Text               string             `json:"text" gorm:"type:text"`
	Keyword            string             `json:"keyword,omitempty"`
	Tags               []string           `json:"tags" gorm:"serializer:json;type:text"`
	Matches            []sensitive.Match  `json:"matches" gorm:"serializer:json;type:text"`
	Severity           sensitive.Severity `json:"severity" gorm:"index"`
	Status             AlertStatus        `json:"status" gorm:"index;default:open"`
	NotifyCounsellorID string             `json:"notifyCounsellorId,omitempty" gorm:"index"`
	CreatedAt          time.Time          `json:"createdAt" gorm:"index"`
	ResolvedAt         *time.Time         `json:"resolvedAt,omitempty"`
}

// BeforeCreate fills the id, status and message linkage when unset.
func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.MessageID == "" {
		// Alerts raised outside a chat message still need a unique key.
		a.MessageID = "check:" + a.ID
	}
	if a.Status == "" {
		a.Status = AlertOpen
	}
	return nil
}

// PrimaryTag is the tag of the first match, or "" when there are none.
func (a *Alert) PrimaryTag() string {
	if len(a.Matches) > 0 {
		return a.Matches[0].Tag
	}
	if len(a.Tags) > 0 {
		return a.Tags[0]
	}
	return ""
}

// TableName overrides the table name
func (Alert) TableName() string {
	return "alerts"
}
