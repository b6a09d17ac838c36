package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"mindpalace/backend/internal/models"
	"mindpalace/backend/internal/sensitive"
	"mindpalace/backend/internal/store"
	"mindpalace/backend/pkg/logger"
)

var (
	// ErrTextRequired is returned when a check has no text.
	ErrTextRequired = errors.New("text is required")
	// ErrAlertIDRequired is returned when a resolve has no id.
	ErrAlertIDRequired = errors.New("alert id is required")
)

// CheckResult is the outcome of a moderation check.
type CheckResult struct {
	Severity           sensitive.Severity `json:"severity"`
	Matches            []sensitive.Match  `json:"matches"`
	NotifyCounsellorID *string            `json:"notifyCounsellorId"`
}

// ModerationService classifies text outside the chat and manages alerts.
type ModerationService struct {
	store      store.Store
	classifier sensitive.Classifier
	directory  *Directory
	alertLimit int
	log        *logger.Logger
	now        func() time.Time
}

// NewModerationService creates the service. classifier is normally the
// weighted lexicon.
func NewModerationService(st store.Store, classifier sensitive.Classifier, directory *Directory, alertLimit int, log *logger.Logger) *ModerationService {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &ModerationService{
		store:      st,
		classifier: classifier,
		directory:  directory,
		alertLimit: alertLimit,
		log:        log,
		now:        time.Now,
	}
}

// Check classifies text and, unless it is low severity, records an alert.
// A failed alert write is logged and does not fail the check.
func (s *ModerationService) Check(ctx context.Context, text, institutionCode string) (*CheckResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrTextRequired
	}

	result := s.classifier.Classify(text)
	out := &CheckResult{Severity: result.Severity, Matches: result.Matches}
	counsellor := s.directory.CounsellorFor(institutionCode)
	if counsellor != "" {
		out.NotifyCounsellorID = &counsellor
	}

	if result.Severity != sensitive.SeverityLow {
		alert := &models.Alert{
			InstitutionCode:    institutionCode,
			Text:               text,
			Keyword:            result.Keyword,
			Tags:               result.Tags(),
			Matches:            result.Matches,
			Severity:           result.Severity,
			Status:             models.AlertOpen,
			NotifyCounsellorID: counsellor,
			CreatedAt:          s.now().UTC(),
		}
		if err := s.store.InsertAlert(ctx, alert); err != nil {
			s.log.LogError(err, "failed to persist alert", "institution_code", institutionCode)
		}
	}
	return out, nil
}

// Resolve marks an alert resolved. Resolving twice succeeds.
func (s *ModerationService) Resolve(ctx context.Context, id string) (*models.Alert, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrAlertIDRequired
	}
	return s.store.UpdateAlertStatus(ctx, id, models.AlertResolved)
}

// ListAlerts returns the newest alerts for the moderation queue.
func (s *ModerationService) ListAlerts(ctx context.Context, filter store.AlertFilter) ([]models.Alert, error) {
	if filter.Limit <= 0 {
		filter.Limit = s.alertLimit
	}
	return s.store.ListRecentAlerts(ctx, filter)
}
