package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mindpalace/backend/internal/models"
	"mindpalace/backend/internal/service"
	"mindpalace/backend/internal/store"
)

// HideRequest is the body of POST /api/library/:id/hide.
type HideRequest struct {
	InstitutionCode string `json:"institutionCode"`
}

type LibraryHandler struct {
	service *service.LibraryService
}

func NewLibraryHandler(s *service.LibraryService) *LibraryHandler {
	return &LibraryHandler{service: s}
}

// List returns consented entries, newest first.
func (h *LibraryHandler) List(c *gin.Context) {
	tone := models.Consent(c.Query("tone"))
	if tone != "" && !tone.Retained() {
		badRequest(c, "tone must be positive or negative")
		return
	}

	entries := h.service.List(c.Request.Context(), store.LibraryFilter{
		Tone:                  tone,
		InstitutionCode:       c.Query("institutionCode"),
		ViewerInstitutionCode: c.Query("viewerInstitutionCode"),
		Tag:                   c.Query("tag"),
	})
	c.JSON(http.StatusOK, entries)
}

// Hide hides an entry from the given institution.
func (h *LibraryHandler) Hide(c *gin.Context) {
	var req HideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "institutionCode is required")
		return
	}

	if err := h.service.Hide(c.Request.Context(), c.Param("id"), req.InstitutionCode); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *LibraryHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/library", h.List)
	r.POST("/library/:id/hide", h.Hide)
}
