package service

import (
	"context"
	"errors"
	"strings"

	"mindpalace/backend/internal/models"
	"mindpalace/backend/internal/store"
	"mindpalace/backend/pkg/logger"
)

// ErrInstitutionRequired is returned when hiding without an institution.
var ErrInstitutionRequired = errors.New("institution code is required")

// LibraryService lists and hides consented library entries.
type LibraryService struct {
	store store.Store
	log   *logger.Logger
}

// NewLibraryService creates the service.
func NewLibraryService(st store.Store, log *logger.Logger) *LibraryService {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &LibraryService{store: st, log: log}
}

// List returns entries newest first. A store failure yields an empty list.
func (s *LibraryService) List(ctx context.Context, filter store.LibraryFilter) []models.LibraryEntry {
	entries, err := s.store.ListLibrary(ctx, filter)
	if err != nil {
		s.log.LogError(err, "library listing fell back to empty")
		return []models.LibraryEntry{}
	}
	return entries
}

// Hide hides an entry from one institution.
func (s *LibraryService) Hide(ctx context.Context, entryID, institutionCode string) error {
	institutionCode = strings.TrimSpace(institutionCode)
	if institutionCode == "" {
		return ErrInstitutionRequired
	}
	return s.store.HideLibraryEntry(ctx, entryID, institutionCode)
}
