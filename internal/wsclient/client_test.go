package wsclient

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindpalace/backend/internal/models"
	"mindpalace/backend/internal/rooms"
	"mindpalace/backend/internal/sensitive"
	"mindpalace/backend/internal/session"
	"mindpalace/backend/internal/ws"
	"mindpalace/backend/pkg/logger"
)

func startGateway(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	g := ws.NewGateway(ws.Deps{
		Classifier: sensitive.DefaultKeywordDetector(),
		Logger:     logger.Discard(),
	}, ws.Options{})

	r := gin.New()
	r.GET("/ws", g.ServeWs)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func connect(t *testing.T, url, anonID string, role models.Role) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Dial(ctx, Config{URL: url, AnonymousID: anonID, Role: role, InstitutionCode: "INST1", Logger: logger.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.View().SwitchScope(rooms.Institution("INST1")))
	require.NoError(t, c.Sync(ctx))
	return c
}

func TestPrivateSessionHandshake(t *testing.T) {
	url := startGateway(t)
	counsellor := connect(t, url, "C1", models.RoleCounsellor)
	s1 := connect(t, url, "S1", models.RoleStudent)
	s2 := connect(t, url, "S2", models.RoleStudent)

	require.NoError(t, counsellor.View().InviteStudent("S1"))
	assert.Equal(t, "private:C1:S1", counsellor.View().RoomID())

	assert.Eventually(t, func() bool {
		return s1.View().RoomID() == "private:C1:S1"
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s2.Sync(ctx))
	require.NoError(t, s1.Sync(ctx))
	assert.Equal(t, "inst:INST1", s2.View().RoomID())

	require.NoError(t, counsellor.Send("hi, I am here to help", nil, nil))
	assert.Eventually(t, func() bool {
		return len(s1.View().History()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s2.Sync(ctx))
	assert.Empty(t, s2.View().History())

	dest, err := s1.View().ExitPrivate()
	require.NoError(t, err)
	assert.Equal(t, session.ToInstitution, dest)
	assert.Equal(t, "inst:INST1", s1.View().RoomID())
	assert.Empty(t, s1.View().History())
}

func TestSendRequiresRoom(t *testing.T) {
	url := startGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Dial(ctx, Config{URL: url, AnonymousID: "S9", Role: models.RoleStudent, Logger: logger.Discard()})
	require.NoError(t, err)
	defer c.Close()

	assert.ErrorIs(t, c.Send("hello", nil, nil), ErrNotInRoom)
}
