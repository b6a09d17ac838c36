package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mindpalace/backend/internal/models"
	"mindpalace/backend/internal/service"
	"mindpalace/backend/internal/store"
)

// CheckRequest is the body of POST /api/moderation/check.
type CheckRequest struct {
	Text            string `json:"text"`
	InstitutionCode string `json:"institutionCode"`
}

// ResolveRequest is the body of POST /api/moderation/resolve.
type ResolveRequest struct {
	ID string `json:"id"`
}

type ModerationHandler struct {
	service *service.ModerationService
}

func NewModerationHandler(s *service.ModerationService) *ModerationHandler {
	return &ModerationHandler{service: s}
}

// Check classifies free text with the weighted lexicon.
func (h *ModerationHandler) Check(c *gin.Context) {
	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "text is required")
		return
	}

	result, err := h.service.Check(c.Request.Context(), req.Text, req.InstitutionCode)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Resolve closes an alert.
func (h *ModerationHandler) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "id is required")
		return
	}

	if _, err := h.service.Resolve(c.Request.Context(), req.ID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListAlerts returns the newest alerts, optionally for one institution.
func (h *ModerationHandler) ListAlerts(c *gin.Context) {
	filter := store.AlertFilter{
		InstitutionCode: c.Query("institutionCode"),
		Status:          models.AlertStatus(c.Query("status")),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	alerts, err := h.service.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (h *ModerationHandler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/moderation")
	g.POST("/check", h.Check)
	g.POST("/resolve", h.Resolve)
	g.GET("/alerts", h.ListAlerts)
}
