package ws

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mindpalace/backend/internal/models"
	apperrors "mindpalace/backend/pkg/errors"
)

func (g *Gateway) upgrader() *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(g.opts.AllowedOrigins))
	allowAll := len(g.opts.AllowedOrigins) == 0
	for _, o := range g.opts.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			_, ok := allowed[u.Scheme+"://"+u.Host]
			return ok
		},
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
}

// ServeWs upgrades the request and starts the connection's pumps. The
// participant is described by the role, anonymousId and institutionCode
// query parameters.
func (g *Gateway) ServeWs(c *gin.Context) {
	role := models.Role(c.DefaultQuery("role", string(models.RoleStudent)))
	if !role.Valid() {
		_ = c.Error(apperrors.NewBadRequestError("INVALID_ROLE", "role must be student, counsellor or volunteer"))
		return
	}
	identity := Identity{
		AnonymousID:     c.Query("anonymousId"),
		Role:            role,
		InstitutionCode: c.Query("institutionCode"),
	}

	conn, err := g.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.LogError(err, "websocket upgrade failed")
		return
	}
	conn.EnableWriteCompression(true)

	client := newClient(uuid.NewString(), conn, g, identity)
	g.connect(client)

	go client.WritePump()
	go client.ReadPump()
}
