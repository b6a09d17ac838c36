package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"mindpalace/backend/internal/anon"
	"mindpalace/backend/internal/models"
	"mindpalace/backend/internal/sensitive"
	"mindpalace/backend/internal/service"
	"mindpalace/backend/internal/store"
	apperrors "mindpalace/backend/pkg/errors"
	"mindpalace/backend/pkg/health"
	"mindpalace/backend/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	engine *gin.Engine
	store  *store.GormStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"),
		&gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	st := store.NewGormStore(db)
	require.NoError(t, st.Migrate())

	log := logger.Discard()
	lexicon := sensitive.NewLexicon(sensitive.DefaultLexicon(), sensitive.DefaultThresholds())
	directory := service.NewDirectory(map[string]string{"INST1": "C1"})
	anonymizer, err := anon.NewService(st, "test-salt", nil, log)
	require.NoError(t, err)

	checker := health.NewChecker(log, 0)
	checker.RegisterDatabaseCheck(st.Ping)
	checker.RunChecks(context.Background())

	r := gin.New()
	r.Use(apperrors.ErrorHandler())
	NewHealthHandler(checker, nil, "test").RegisterHealthRoutes(r)
	group := r.Group("/api")
	NewModerationHandler(service.NewModerationService(st, lexicon, directory, 50, log)).RegisterRoutes(group)
	NewCounsellorHandler(service.NewCounsellorService(st, log)).RegisterRoutes(group)
	NewLibraryHandler(service.NewLibraryService(st, log)).RegisterRoutes(group)
	NewHistoryHandler(service.NewHistoryService(st, log)).RegisterRoutes(group)
	NewIdentityHandler(anonymizer).RegisterRoutes(group)

	return &fixture{engine: r, store: st}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode[struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}](t, w)
	return body.Error.Code
}

func TestModerationCheck(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/moderation/check", CheckRequest{Text: "I want to end my life", InstitutionCode: "INST1"})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[service.CheckResult](t, w)
	assert.Equal(t, sensitive.SeveritySevere, res.Severity)
	assert.NotEmpty(t, res.Matches)
	require.NotNil(t, res.NotifyCounsellorID)
	assert.Equal(t, "C1", *res.NotifyCounsellorID)

	w = f.do(t, http.MethodGet, "/api/moderation/alerts?institutionCode=INST1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	alerts := decode[[]models.Alert](t, w)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertOpen, alerts[0].Status)

	w = f.do(t, http.MethodPost, "/api/moderation/check", CheckRequest{InstitutionCode: "INST1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, w))

	w = f.do(t, http.MethodGet, "/api/moderation/alerts?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestModerationResolve(t *testing.T) {
	f := newFixture(t)
	alert := &models.Alert{MessageID: "m1", InstitutionCode: "INST1", Text: "x", Severity: sensitive.SeveritySevere}
	require.NoError(t, f.store.InsertAlert(context.Background(), alert))

	w := f.do(t, http.MethodPost, "/api/moderation/resolve", ResolveRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/moderation/resolve", ResolveRequest{ID: "does-not-exist"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))

	for range 2 {
		w = f.do(t, http.MethodPost, "/api/moderation/resolve", ResolveRequest{ID: alert.ID})
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true}`, w.Body.String())
	}
}

func TestCounsellorOverview(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/moderation/check", CheckRequest{Text: "I want to end my life", InstitutionCode: "INST1"})

	w := f.do(t, http.MethodGet, "/api/counsellor/overview?institutionCode=INST1&counsellorId=C1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	overview := decode[service.Overview](t, w)
	assert.Equal(t, int64(1), overview.Alerts.BySeverity[sensitive.SeveritySevere])
	require.Len(t, overview.Alerts.Recent, 1)
	assert.Empty(t, overview.Note)
}

func TestLibraryRoutes(t *testing.T) {
	f := newFixture(t)
	inst := "INST1"
	entry := &models.LibraryEntry{Text: "breathing helped", Tone: models.ConsentPositive, Tags: []string{"Exam"}, InstitutionCode: &inst}
	require.NoError(t, f.store.InsertLibraryEntry(context.Background(), entry))

	w := f.do(t, http.MethodGet, "/api/library?tone=positive&tag=exam", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[[]models.LibraryEntry](t, w), 1)

	w = f.do(t, http.MethodGet, "/api/library?tone=neutral", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/library/"+entry.ID+"/hide", HideRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/library/missing/hide", HideRequest{InstitutionCode: "INST2"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/library/"+entry.ID+"/hide", HideRequest{InstitutionCode: "INST2"})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/library?viewerInstitutionCode=INST2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]models.LibraryEntry](t, w))
}

func TestMessageHistoryRoute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.InsertMessage(ctx, &models.Message{RoomID: "peer:INST1", AuthorRole: models.RoleStudent, Text: "anyone up?"}))
	require.NoError(t, f.store.InsertMessage(ctx, &models.Message{RoomID: "private:C1:S1", AuthorRole: models.RoleStudent, Text: "just us"}))

	w := f.do(t, http.MethodGet, "/api/messages?roomId=peer:INST1&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	msgs := decode[[]models.Message](t, w)
	require.Len(t, msgs, 1)
	assert.Equal(t, "anyone up?", msgs[0].Text)

	w = f.do(t, http.MethodGet, "/api/messages?roomId=private:C1:S1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, w))

	w = f.do(t, http.MethodGet, "/api/messages?roomId=peer:INST1&limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAssignAnonID(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/assign-anon-id", AssignRequest{InstitutionCode: "INST1", StudentID: "s-42"})
	require.Equal(t, http.StatusOK, w.Code)
	first := decode[map[string]string](t, w)["anonymousId"]
	assert.Regexp(t, `^anon-inst1-[0-9a-z]{6}-[0-9a-f]{4}$`, first)

	w = f.do(t, http.MethodPost, "/api/assign-anon-id", AssignRequest{InstitutionCode: "INST1", StudentID: "s-42"})
	assert.Equal(t, first, decode[map[string]string](t, w)["anonymousId"])

	w = f.do(t, http.MethodPost, "/api/assign-anon-id", AssignRequest{InstitutionCode: "INST1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[HealthResponse](t, w)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, health.StatusUp, resp.Components["database"].Status)

	checker := health.NewChecker(logger.Discard(), 0)
	checker.RegisterDatabaseCheck(func(context.Context) error { return errors.New("down") })
	checker.RunChecks(context.Background())
	r := gin.New()
	NewHealthHandler(checker, nil, "").RegisterHealthRoutes(r)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
