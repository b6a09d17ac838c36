// Package store persists messages, alerts, library entries and anonymous
// identities. Every write touches a single record.
package store

import (
	"context"
	"errors"
	"time"

	"mindpalace/backend/internal/models"
	"mindpalace/backend/internal/sensitive"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrInvalidTransition is returned for alert status changes other than
	// open to resolved.
	ErrInvalidTransition = errors.New("store: invalid alert status transition")
	// ErrDuplicate is returned when a unique value already belongs to
	// another record.
	ErrDuplicate = errors.New("store: duplicate value")
)

// AlertFilter narrows ListRecentAlerts. Zero values match everything.
type AlertFilter struct {
	InstitutionCode    string
	NotifyCounsellorID string
	Status             models.AlertStatus
	Limit              int
}

// LibraryFilter narrows ListLibrary. ViewerInstitutionCode excludes entries
// that institution has hidden.
type LibraryFilter struct {
	Tone                  models.Consent
	InstitutionCode       string
	ViewerInstitutionCode string
	Tag                   string
	Limit                 int
}

// Store is the moderation persistence boundary.
type Store interface {
	InsertMessage(ctx context.Context, msg *models.Message) error
	// InsertAlert stores an alert. A second alert for the same message is
	// ignored and reported as success.
	InsertAlert(ctx context.Context, alert *models.Alert) error
	InsertLibraryEntry(ctx context.Context, entry *models.LibraryEntry) error
	UpdateAlertStatus(ctx context.Context, id string, status models.AlertStatus) (*models.Alert, error)
	ListRecentAlerts(ctx context.Context, filter AlertFilter) ([]models.Alert, error)
	CountAlertsBySeverity(ctx context.Context, filter AlertFilter) (map[sensitive.Severity]int64, error)

	ListMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error)
	PurgeExpiredMessages(ctx context.Context, now time.Time) (int64, error)

	ListLibrary(ctx context.Context, filter LibraryFilter) ([]models.LibraryEntry, error)
	HideLibraryEntry(ctx context.Context, entryID, institutionCode string) error
	CountLibraryEntries(ctx context.Context, institutionCode string) (int64, error)

	GetAnonIdentity(ctx context.Context, keyHash string) (*models.AnonIdentity, error)
	SaveAnonIdentity(ctx context.Context, identity *models.AnonIdentity) error

	Ping(ctx context.Context) error
}
