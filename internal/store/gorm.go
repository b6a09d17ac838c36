package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mindpalace/backend/internal/models"
	"mindpalace/backend/internal/sensitive"
)

const (
	defaultAlertLimit   = 50
	maxAlertLimit       = 500
	defaultLibraryLimit = 100
	defaultMessageLimit = 100
)

// GormStore implements Store on a gorm connection.
type GormStore struct {
	db         *gorm.DB
	messageTTL time.Duration
	now        func() time.Time
}

// Option configures a GormStore.
type Option func(*GormStore)

// WithMessageTTL overrides the message retention window.
func WithMessageTTL(ttl time.Duration) Option {
	return func(s *GormStore) {
		if ttl > 0 {
			s.messageTTL = ttl
		}
	}
}

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *GormStore) {
		s.now = now
	}
}

// NewGormStore wraps db. Call Migrate before first use.
func NewGormStore(db *gorm.DB, opts ...Option) *GormStore {
	s := &GormStore{
		db:         db,
		messageTTL: models.DefaultMessageTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates or updates the schema.
func (s *GormStore) Migrate() error {
	if err := s.db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// DB exposes the underlying connection for health checks.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}
	msg.ExpiresAt = msg.CreatedAt.Add(s.messageTTL)
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("store: insert message: %w", err)
	}
	return nil
}

func (s *GormStore) InsertAlert(ctx context.Context, alert *models.Alert) error {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = s.now().UTC()
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "message_id"}}, DoNothing: true}).
		Create(alert).Error
	if err != nil {
		return fmt.Errorf("store: insert alert: %w", err)
	}
	return nil
}

func (s *GormStore) InsertLibraryEntry(ctx context.Context, entry *models.LibraryEntry) error {
	if !entry.Tone.Retained() {
		return fmt.Errorf("store: library entry needs a positive or negative tone, got %q", entry.Tone)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	tags := make([]string, 0, len(entry.Tags))
	for _, tag := range entry.Tags {
		if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
			tags = append(tags, tag)
		}
	}
	entry.Tags = tags
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("store: insert library entry: %w", err)
	}
	return nil
}

// UpdateAlertStatus moves an alert from open to resolved. Resolving an
// already resolved alert returns it unchanged.
func (s *GormStore) UpdateAlertStatus(ctx context.Context, id string, status models.AlertStatus) (*models.Alert, error) {
	db := s.db.WithContext(ctx)

	var alert models.Alert
	if err := db.First(&alert, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: load alert: %w", err)
	}

	if alert.Status == status {
		return &alert, nil
	}
	if status != models.AlertResolved {
		return nil, ErrInvalidTransition
	}

	resolvedAt := s.now().UTC()
	res := db.Model(&models.Alert{}).
		Where("id = ? AND status = ?", id, models.AlertOpen).
		Updates(map[string]any{"status": models.AlertResolved, "resolved_at": resolvedAt})
	if res.Error != nil {
		return nil, fmt.Errorf("store: resolve alert: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Resolved concurrently; report the stored state.
		if err := db.First(&alert, "id = ?", id).Error; err != nil {
			return nil, fmt.Errorf("store: reload alert: %w", err)
		}
		return &alert, nil
	}

	alert.Status = models.AlertResolved
	alert.ResolvedAt = &resolvedAt
	return &alert, nil
}

func (s *GormStore) ListRecentAlerts(ctx context.Context, filter AlertFilter) ([]models.Alert, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAlertLimit
	}
	limit = min(limit, maxAlertLimit)

	alerts := []models.Alert{}
	q := s.alertQuery(ctx, filter)
	if err := q.Order("created_at DESC").Limit(limit).Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("store: list alerts: %w", err)
	}
	return alerts, nil
}

func (s *GormStore) alertQuery(ctx context.Context, filter AlertFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.Alert{})
	if filter.InstitutionCode != "" {
		q = q.Where("institution_code = ?", filter.InstitutionCode)
	}
	if filter.NotifyCounsellorID != "" {
		q = q.Where("notify_counsellor_id = ?", filter.NotifyCounsellorID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	return q
}

// CountAlertsBySeverity counts alerts matching filter; Limit is ignored.
func (s *GormStore) CountAlertsBySeverity(ctx context.Context, filter AlertFilter) (map[sensitive.Severity]int64, error) {
	var rows []struct {
		Severity sensitive.Severity
		Count    int64
	}
	q := s.alertQuery(ctx, filter).Select("severity, count(*) AS count")
	if err := q.Group("severity").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: count alerts: %w", err)
	}

	counts := map[sensitive.Severity]int64{
		sensitive.SeverityLow:      0,
		sensitive.SeverityModerate: 0,
		sensitive.SeveritySevere:   0,
	}
	for _, r := range rows {
		counts[r.Severity] = r.Count
	}
	return counts, nil
}

// ListMessages returns unexpired messages of a room, oldest first.
func (s *GormStore) ListMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	msgs := []models.Message{}
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND expires_at > ?", roomID, s.now().UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	return msgs, nil
}

// PurgeExpiredMessages deletes messages whose retention window has passed.
func (s *GormStore) PurgeExpiredMessages(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&models.Message{})
	if res.Error != nil {
		return 0, fmt.Errorf("store: purge messages: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) ListLibrary(ctx context.Context, filter LibraryFilter) ([]models.LibraryEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLibraryLimit
	}

	q := s.db.WithContext(ctx).Model(&models.LibraryEntry{})
	if filter.Tone != "" {
		q = q.Where("tone = ?", filter.Tone)
	}
	if filter.InstitutionCode != "" {
		q = q.Where("institution_code = ?", filter.InstitutionCode)
	}
	if tag := strings.ToLower(strings.TrimSpace(filter.Tag)); tag != "" {
		q = q.Where("tags LIKE ?", `%"`+tag+`"%`)
	}
	viewer := filter.ViewerInstitutionCode
	if viewer == "" {
		viewer = filter.InstitutionCode
	}
	if viewer != "" {
		q = q.Where("NOT EXISTS (SELECT 1 FROM library_hides h WHERE h.entry_id = library_entries.id AND h.institution_code = ?)", viewer)
	}

	entries := []models.LibraryEntry{}
	if err := q.Order("created_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("store: list library: %w", err)
	}
	if err := s.attachHides(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *GormStore) attachHides(ctx context.Context, entries []models.LibraryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	var hides []models.LibraryHide
	if err := s.db.WithContext(ctx).Where("entry_id IN ?", ids).Order("created_at ASC").Find(&hides).Error; err != nil {
		return fmt.Errorf("store: load library hides: %w", err)
	}
	byEntry := make(map[string][]string, len(hides))
	for _, h := range hides {
		byEntry[h.EntryID] = append(byEntry[h.EntryID], h.InstitutionCode)
	}
	for i := range entries {
		entries[i].HiddenFromInstitutions = byEntry[entries[i].ID]
		if entries[i].HiddenFromInstitutions == nil {
			entries[i].HiddenFromInstitutions = []string{}
		}
	}
	return nil
}

// HideLibraryEntry hides an entry from one institution's viewers. Hiding
// twice is a no-op.
func (s *GormStore) HideLibraryEntry(ctx context.Context, entryID, institutionCode string) error {
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.LibraryEntry{}).Where("id = ?", entryID).Count(&count).Error; err != nil {
		return fmt.Errorf("store: find library entry: %w", err)
	}
	if count == 0 {
		return ErrNotFound
	}

	hide := &models.LibraryHide{EntryID: entryID, InstitutionCode: institutionCode, CreatedAt: s.now().UTC()}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(hide).Error; err != nil {
		return fmt.Errorf("store: hide library entry: %w", err)
	}
	return nil
}

func (s *GormStore) CountLibraryEntries(ctx context.Context, institutionCode string) (int64, error) {
	var count int64
	q := s.db.WithContext(ctx).Model(&models.LibraryEntry{})
	if institutionCode != "" {
		q = q.Where("institution_code = ?", institutionCode)
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("store: count library entries: %w", err)
	}
	return count, nil
}

func (s *GormStore) GetAnonIdentity(ctx context.Context, keyHash string) (*models.AnonIdentity, error) {
	var identity models.AnonIdentity
	if err := s.db.WithContext(ctx).First(&identity, "key_hash = ?", keyHash).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get anon identity: %w", err)
	}
	return &identity, nil
}

// SaveAnonIdentity stores a mapping. An existing mapping for the same key is
// kept and copied into identity. ErrDuplicate means the anonymous id already
// belongs to another key.
func (s *GormStore) SaveAnonIdentity(ctx context.Context, identity *models.AnonIdentity) error {
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = s.now().UTC()
	}
	db := s.db.WithContext(ctx)
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(identity)
	if res.Error != nil {
		return fmt.Errorf("store: save anon identity: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var existing models.AnonIdentity
	err := db.First(&existing, "key_hash = ?", identity.KeyHash).Error
	switch {
	case err == nil:
		*identity = existing
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: anonymous id %q", ErrDuplicate, identity.AnonymousID)
	default:
		return fmt.Errorf("store: save anon identity: %w", err)
	}
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
