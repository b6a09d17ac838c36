package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"mindpalace/backend/internal/models"
	"mindpalace/backend/internal/sensitive"
	"mindpalace/backend/internal/store"
	"mindpalace/backend/pkg/logger"
)

func newStore(t *testing.T) *store.GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"),
		&gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	st := store.NewGormStore(db)
	require.NoError(t, st.Migrate())
	return st
}

// brokenStore fails every call it overrides.
type brokenStore struct {
	store.Store
}

var errDown = errors.New("database down")

func (brokenStore) InsertAlert(context.Context, *models.Alert) error { return errDown }
func (brokenStore) CountAlertsBySeverity(context.Context, store.AlertFilter) (map[sensitive.Severity]int64, error) {
	return nil, errDown
}
func (brokenStore) ListLibrary(context.Context, store.LibraryFilter) ([]models.LibraryEntry, error) {
	return nil, errDown
}
func (brokenStore) ListMessages(context.Context, string, int) ([]models.Message, error) {
	return nil, errDown
}

func lexicon() sensitive.Classifier {
	return sensitive.NewLexicon(sensitive.DefaultLexicon(), sensitive.DefaultThresholds())
}

func TestModerationCheckPersistsAlert(t *testing.T) {
	st := newStore(t)
	svc := NewModerationService(st, lexicon(), NewDirectory(map[string]string{"inst1": "C1"}), 50, logger.Discard())
	ctx := context.Background()

	res, err := svc.Check(ctx, "I think about suicide and exams", "INST1")
	require.NoError(t, err)
	assert.Equal(t, sensitive.SeveritySevere, res.Severity)
	require.NotNil(t, res.NotifyCounsellorID)
	assert.Equal(t, "C1", *res.NotifyCounsellorID)

	alerts, err := svc.ListAlerts(ctx, store.AlertFilter{InstitutionCode: "INST1"})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "suicide", alerts[0].PrimaryTag())
	assert.Equal(t, "C1", alerts[0].NotifyCounsellorID)

	low, err := svc.Check(ctx, "exam stress", "INST2")
	require.NoError(t, err)
	assert.Equal(t, sensitive.SeverityLow, low.Severity)
	assert.Nil(t, low.NotifyCounsellorID)
	alerts, err = svc.ListAlerts(ctx, store.AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)

	_, err = svc.Check(ctx, "  ", "INST1")
	assert.ErrorIs(t, err, ErrTextRequired)
}

func TestModerationCheckToleratesStoreFailure(t *testing.T) {
	svc := NewModerationService(brokenStore{}, lexicon(), NewDirectory(nil), 50, logger.Discard())
	res, err := svc.Check(context.Background(), "I want to die", "INST1")
	require.NoError(t, err)
	assert.Equal(t, sensitive.SeveritySevere, res.Severity)
}

func TestResolve(t *testing.T) {
	st := newStore(t)
	svc := NewModerationService(st, lexicon(), NewDirectory(nil), 50, logger.Discard())
	ctx := context.Background()

	alert := &models.Alert{MessageID: "m1", Severity: sensitive.SeveritySevere}
	require.NoError(t, st.InsertAlert(ctx, alert))

	resolved, err := svc.Resolve(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertResolved, resolved.Status)
	_, err = svc.Resolve(ctx, alert.ID)
	assert.NoError(t, err)

	_, err = svc.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrAlertIDRequired)
	_, err = svc.Resolve(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCounsellorOverview(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	mod := NewModerationService(st, lexicon(), NewDirectory(map[string]string{"INST1": "C1"}), 50, logger.Discard())
	for _, text := range []string{"I feel so lonely and depressed", "I want to end my life", "they bully me"} {
		_, err := mod.Check(ctx, text, "INST1")
		require.NoError(t, err)
	}
	inst := "INST1"
	require.NoError(t, st.InsertLibraryEntry(ctx, &models.LibraryEntry{Text: "keep going", Tone: models.ConsentPositive, InstitutionCode: &inst}))

	svc := NewCounsellorService(st, logger.Discard())
	overview := svc.Overview(ctx, "INST1", "C1")

	assert.Empty(t, overview.Note)
	assert.Equal(t, int64(1), overview.Alerts.BySeverity[sensitive.SeveritySevere])
	assert.Equal(t, int64(2), overview.Alerts.BySeverity[sensitive.SeverityModerate])
	require.Len(t, overview.Alerts.Recent, 3)
	for _, r := range overview.Alerts.Recent {
		require.NotNil(t, r.PrimaryTag)
	}
	assert.Equal(t, int64(1), overview.Community.ResourcesShared)

	other := svc.Overview(ctx, "INST1", "C9")
	assert.Empty(t, other.Alerts.Recent)
}

func TestCounsellorOverviewFallback(t *testing.T) {
	svc := NewCounsellorService(brokenStore{}, logger.Discard())
	overview := svc.Overview(context.Background(), "INST1", "C1")
	assert.NotEmpty(t, overview.Note)
	assert.Empty(t, overview.Alerts.Recent)
}

func TestLibraryService(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	svc := NewLibraryService(st, logger.Discard())

	entry := &models.LibraryEntry{Text: "breathe", Tone: models.ConsentPositive, Tags: []string{"Panic"}}
	require.NoError(t, st.InsertLibraryEntry(ctx, entry))

	assert.Len(t, svc.List(ctx, store.LibraryFilter{Tag: "PANIC"}), 1)
	assert.ErrorIs(t, svc.Hide(ctx, entry.ID, ""), ErrInstitutionRequired)
	require.NoError(t, svc.Hide(ctx, entry.ID, "INST1"))
	assert.Empty(t, svc.List(ctx, store.LibraryFilter{ViewerInstitutionCode: "INST1"}))

	broken := NewLibraryService(brokenStore{}, logger.Discard())
	assert.Empty(t, broken.List(ctx, store.LibraryFilter{}))
}

func TestHistoryService(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	svc := NewHistoryService(st, logger.Discard())

	for _, text := range []string{"first", "second"} {
		require.NoError(t, st.InsertMessage(ctx, &models.Message{RoomID: "inst:INST1", AuthorRole: models.RoleStudent, Text: text}))
	}
	require.NoError(t, st.InsertMessage(ctx, &models.Message{RoomID: "global:public", AuthorRole: models.RoleStudent, Text: "elsewhere"}))

	msgs, err := svc.Recent(ctx, "inst:INST1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)

	for _, room := range []string{"", "lobby", "private:C1:S1"} {
		_, err := svc.Recent(ctx, room, 0)
		assert.ErrorIs(t, err, ErrRoomNotListable, room)
	}

	msgs, err = NewHistoryService(brokenStore{}, logger.Discard()).Recent(ctx, "inst:INST1", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDirectory(t *testing.T) {
	d := NewDirectory(map[string]string{" inst1 ": "C1"})
	assert.Equal(t, "C1", d.CounsellorFor("INST1"))
	assert.Equal(t, "", d.CounsellorFor("INST2"))
	var nilDir *Directory
	assert.Equal(t, "", nilDir.CounsellorFor("INST1"))
}
