package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mindpalace/backend/pkg/health"
)

// ConnectionCounter reports live websocket connections.
type ConnectionCounter interface {
	ClientCount() int
}

// HealthHandler serves the health report.
type HealthHandler struct {
	checker     *health.Checker
	connections ConnectionCounter
	version     string
}

func NewHealthHandler(checker *health.Checker, connections ConnectionCounter, version string) *HealthHandler {
	return &HealthHandler{checker: checker, connections: connections, version: version}
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status            string                       `json:"status"`
	Timestamp         time.Time                    `json:"timestamp"`
	Version           string                       `json:"version,omitempty"`
	ActiveConnections int                          `json:"active_connections"`
	Components        map[string]*health.Component `json:"components"`
}

// Health answers 503 when a critical component is down.
func (h *HealthHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:     "ok",
		Timestamp:  time.Now().UTC(),
		Version:    h.version,
		Components: h.checker.GetStatus(),
	}
	if h.connections != nil {
		resp.ActiveConnections = h.connections.ClientCount()
	}

	code := http.StatusOK
	if !h.checker.IsSystemHealthy() {
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

// RegisterHealthRoutes registers health check related routes
func (h *HealthHandler) RegisterHealthRoutes(r gin.IRoutes) {
	r.GET("/health", h.Health)
}
