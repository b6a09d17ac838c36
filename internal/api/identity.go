package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mindpalace/backend/internal/anon"
)

// AssignRequest is the body of POST /api/assign-anon-id.
type AssignRequest struct {
	InstitutionCode string `json:"institutionCode"`
	StudentID       string `json:"studentId"`
}

type IdentityHandler struct {
	service *anon.Service
}

func NewIdentityHandler(s *anon.Service) *IdentityHandler {
	return &IdentityHandler{service: s}
}

// Assign returns the stable anonymous id for a student.
func (h *IdentityHandler) Assign(c *gin.Context) {
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "studentId is required")
		return
	}

	id, err := h.service.Assign(c.Request.Context(), req.InstitutionCode, req.StudentID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"anonymousId": id})
}

func (h *IdentityHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/assign-anon-id", h.Assign)
}
