package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mindpalace/backend/internal/service"
)

type CounsellorHandler struct {
	service *service.CounsellorService
}

func NewCounsellorHandler(s *service.CounsellorService) *CounsellorHandler {
	return &CounsellorHandler{service: s}
}

// Overview always answers 200; a degraded store yields an empty overview
// with a note.
func (h *CounsellorHandler) Overview(c *gin.Context) {
	overview := h.service.Overview(c.Request.Context(), c.Query("institutionCode"), c.Query("counsellorId"))
	c.JSON(http.StatusOK, overview)
}

func (h *CounsellorHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/counsellor/overview", h.Overview)
}
