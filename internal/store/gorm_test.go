package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mindpalace/backend/internal/models"
	"mindpalace/backend/internal/sensitive"
)

func newTestStore(t *testing.T, opts ...Option) *GormStore {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := NewGormStore(db, opts...)
	require.NoError(t, s.Migrate())
	return s
}

func ptr[T any](v T) *T { return &v }

func TestInsertAlertIsOncePerMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &models.Alert{MessageID: "m1", InstitutionCode: "INST1", Text: "x", Severity: sensitive.SeveritySevere}
	require.NoError(t, s.InsertAlert(ctx, first))
	second := &models.Alert{MessageID: "m1", InstitutionCode: "INST1", Text: "x", Severity: sensitive.SeveritySevere}
	require.NoError(t, s.InsertAlert(ctx, second))

	alerts, err := s.ListRecentAlerts(ctx, AlertFilter{InstitutionCode: "INST1"})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertOpen, alerts[0].Status)
	assert.Equal(t, first.ID, alerts[0].ID)
}

func TestUpdateAlertStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alert := &models.Alert{MessageID: "m1", Severity: sensitive.SeverityModerate}
	require.NoError(t, s.InsertAlert(ctx, alert))

	resolved, err := s.UpdateAlertStatus(ctx, alert.ID, models.AlertResolved)
	require.NoError(t, err)
	assert.Equal(t, models.AlertResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	again, err := s.UpdateAlertStatus(ctx, alert.ID, models.AlertResolved)
	require.NoError(t, err)
	assert.Equal(t, models.AlertResolved, again.Status)
	require.NotNil(t, again.ResolvedAt)
	assert.WithinDuration(t, *resolved.ResolvedAt, *again.ResolvedAt, time.Millisecond)

	_, err = s.UpdateAlertStatus(ctx, alert.ID, models.AlertOpen)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.UpdateAlertStatus(ctx, "missing", models.AlertResolved)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRecentAlertsOrderingAndFilters(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t)
	ctx := context.Background()

	for i, inst := range []string{"INST1", "INST2", "INST1"} {
		a := &models.Alert{
			MessageID:          uuid.NewString(),
			InstitutionCode:    inst,
			NotifyCounsellorID: "C-" + inst,
			Severity:           sensitive.SeverityModerate,
			CreatedAt:          base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.InsertAlert(ctx, a))
	}

	alerts, err := s.ListRecentAlerts(ctx, AlertFilter{InstitutionCode: "INST1"})
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.True(t, alerts[0].CreatedAt.After(alerts[1].CreatedAt))

	alerts, err = s.ListRecentAlerts(ctx, AlertFilter{NotifyCounsellorID: "C-INST2"})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)

	alerts, err = s.ListRecentAlerts(ctx, AlertFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)

	counts, err := s.CountAlertsBySeverity(ctx, AlertFilter{InstitutionCode: "INST1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[sensitive.SeverityModerate])
	assert.Equal(t, int64(0), counts[sensitive.SeveritySevere])
}

func TestMessagesExpireAfterTTL(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := newTestStore(t, WithClock(clock))
	ctx := context.Background()

	old := &models.Message{RoomID: "inst:INST1", AuthorRole: models.RoleStudent, Text: "old", CreatedAt: now.Add(-8 * 24 * time.Hour)}
	fresh := &models.Message{RoomID: "inst:INST1", AuthorRole: models.RoleStudent, Text: "fresh", InstitutionCode: ptr("INST1")}
	require.NoError(t, s.InsertMessage(ctx, old))
	require.NoError(t, s.InsertMessage(ctx, fresh))
	assert.Equal(t, fresh.CreatedAt.Add(7*24*time.Hour), fresh.ExpiresAt)

	msgs, err := s.ListMessages(ctx, "inst:INST1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "fresh", msgs[0].Text)

	n, err := s.PurgeExpiredMessages(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLibraryListingAndHiding(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStore(t)
	ctx := context.Background()

	positive := &models.LibraryEntry{Text: "you got this", Tone: models.ConsentPositive, Tags: []string{"exam"}, InstitutionCode: ptr("INST1"), CreatedAt: base}
	negative := &models.LibraryEntry{Text: "rough week", Tone: models.ConsentNegative, Tags: []string{"stress"}, InstitutionCode: ptr("INST1"), CreatedAt: base.Add(time.Hour)}
	require.NoError(t, s.InsertLibraryEntry(ctx, positive))
	require.NoError(t, s.InsertLibraryEntry(ctx, negative))
	assert.Error(t, s.InsertLibraryEntry(ctx, &models.LibraryEntry{Text: "no consent"}))

	entries, err := s.ListLibrary(ctx, LibraryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, negative.ID, entries[0].ID)

	entries, err = s.ListLibrary(ctx, LibraryFilter{Tone: models.ConsentPositive})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, positive.ID, entries[0].ID)

	entries, err = s.ListLibrary(ctx, LibraryFilter{Tag: "stress"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, negative.ID, entries[0].ID)

	require.NoError(t, s.HideLibraryEntry(ctx, positive.ID, "INST2"))
	require.NoError(t, s.HideLibraryEntry(ctx, positive.ID, "INST2"))
	assert.ErrorIs(t, s.HideLibraryEntry(ctx, "missing", "INST2"), ErrNotFound)

	entries, err = s.ListLibrary(ctx, LibraryFilter{ViewerInstitutionCode: "INST2"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, negative.ID, entries[0].ID)

	entries, err = s.ListLibrary(ctx, LibraryFilter{ViewerInstitutionCode: "INST1", Tone: models.ConsentPositive})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"INST2"}, entries[0].HiddenFromInstitutions)

	count, err := s.CountLibraryEntries(ctx, "INST1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestAnonIdentityRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetAnonIdentity(ctx, "k1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveAnonIdentity(ctx, &models.AnonIdentity{KeyHash: "k1", InstitutionCode: "INST1", AnonymousID: "anon-inst1-abc123-ffff"}))
	again := &models.AnonIdentity{KeyHash: "k1", InstitutionCode: "INST1", AnonymousID: "anon-other"}
	require.NoError(t, s.SaveAnonIdentity(ctx, again))
	assert.Equal(t, "anon-inst1-abc123-ffff", again.AnonymousID)

	taken := &models.AnonIdentity{KeyHash: "k2", InstitutionCode: "INST1", AnonymousID: "anon-inst1-abc123-ffff"}
	assert.ErrorIs(t, s.SaveAnonIdentity(ctx, taken), ErrDuplicate)
	_, err = s.GetAnonIdentity(ctx, "k2")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetAnonIdentity(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "anon-inst1-abc123-ffff", got.AnonymousID)
	assert.NoError(t, s.Ping(ctx))
}

type countingPurger struct {
	calls int
}

func (p *countingPurger) PurgeExpiredMessages(ctx context.Context, now time.Time) (int64, error) {
	p.calls++
	return 3, nil
}

func TestRetention(t *testing.T) {
	_, err := NewRetention(&countingPurger{}, "not a cron", nil)
	assert.Error(t, err)

	p := &countingPurger{}
	r, err := NewRetention(p, "", nil)
	require.NoError(t, err)
	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 1, p.calls)

	stop := r.Start(context.Background())
	stop()
}
