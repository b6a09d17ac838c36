package service

import (
	"context"
	"time"

	"mindpalace/backend/internal/sensitive"
	"mindpalace/backend/internal/store"
	"mindpalace/backend/pkg/logger"
)

const recentAlertLimit = 6

// RecentAlert is an alert as shown on the counsellor overview.
type RecentAlert struct {
	ID                 string             `json:"id"`
	Severity           sensitive.Severity `json:"severity"`
	PrimaryTag         *string            `json:"primaryTag"`
	CreatedAt          time.Time          `json:"createdAt"`
	StudentAnonymousID string             `json:"studentAnonymousId,omitempty"`
	Text               string             `json:"text,omitempty"`
}

// Overview summarises alerts and shared resources for a counsellor.
type Overview struct {
	Alerts struct {
		BySeverity map[sensitive.Severity]int64 `json:"bySeverity"`
		Recent     []RecentAlert                `json:"recent"`
	} `json:"alerts"`
	Community struct {
		ResourcesShared int64 `json:"resourcesShared"`
	} `json:"community"`
	Note string `json:"note,omitempty"`
}

// CounsellorService builds the counsellor dashboard overview.
type CounsellorService struct {
	store store.Store
	log   *logger.Logger
}

// NewCounsellorService creates the service.
func NewCounsellorService(st store.Store, log *logger.Logger) *CounsellorService {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &CounsellorService{store: st, log: log}
}

// Overview never fails: when the store cannot be read it returns an empty
// overview with a note.
func (s *CounsellorService) Overview(ctx context.Context, institutionCode, counsellorID string) *Overview {
	overview, err := s.load(ctx, institutionCode, counsellorID)
	if err != nil {
		s.log.LogError(err, "counsellor overview degraded", "institution_code", institutionCode)
		return emptyOverview("Store unavailable; returning limited counsellor overview")
	}
	return overview
}

func (s *CounsellorService) load(ctx context.Context, institutionCode, counsellorID string) (*Overview, error) {
	filter := store.AlertFilter{InstitutionCode: institutionCode, NotifyCounsellorID: counsellorID}
	bySeverity, err := s.store.CountAlertsBySeverity(ctx, filter)
	if err != nil {
		return nil, err
	}
	filter.Limit = recentAlertLimit
	alerts, err := s.store.ListRecentAlerts(ctx, filter)
	if err != nil {
		return nil, err
	}
	shared, err := s.store.CountLibraryEntries(ctx, institutionCode)
	if err != nil {
		return nil, err
	}

	overview := emptyOverview("")
	overview.Alerts.BySeverity = bySeverity
	overview.Community.ResourcesShared = shared
	for _, a := range alerts {
		recent := RecentAlert{
			ID:                 a.ID,
			Severity:           a.Severity,
			CreatedAt:          a.CreatedAt,
			StudentAnonymousID: a.StudentAnonymousID,
			Text:               a.Text,
		}
		if tag := a.PrimaryTag(); tag != "" {
			recent.PrimaryTag = &tag
		}
		overview.Alerts.Recent = append(overview.Alerts.Recent, recent)
	}
	return overview, nil
}

func emptyOverview(note string) *Overview {
	o := &Overview{Note: note}
	o.Alerts.BySeverity = map[sensitive.Severity]int64{}
	o.Alerts.Recent = []RecentAlert{}
	return o
}
