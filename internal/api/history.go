package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mindpalace/backend/internal/service"
)

type HistoryHandler struct {
	service *service.HistoryService
}

func NewHistoryHandler(s *service.HistoryService) *HistoryHandler {
	return &HistoryHandler{service: s}
}

// List replays a room's unexpired messages.
func (h *HistoryHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	msgs, err := h.service.Recent(c.Request.Context(), c.Query("roomId"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *HistoryHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/messages", h.List)
}
