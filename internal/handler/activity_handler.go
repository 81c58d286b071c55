package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fir-api/internal/models"
	"github.com/noah-isme/fir-api/pkg/response"
)

type activityService interface {
	Recent(ctx context.Context, principal models.Principal, limit int) ([]models.AuditLog, error)
}

// ActivityHandler serves the audit-backed activity feed.
type ActivityHandler struct {
	service activityService
}

// NewActivityHandler constructs the handler.
func NewActivityHandler(service activityService) *ActivityHandler {
	return &ActivityHandler{service: service}
}

// Recent godoc
// @Summary Recent activity
// @Description Administrators see every entry; others only their own actions
// @Tags Activity
// @Produce json
// @Param limit query int false "Max entries"
// @Success 200 {object} response.Envelope
// @Router /activity [get]
func (h *ActivityHandler) Recent(c *gin.Context) {
	principal, ok := principalOf(c)
	if !ok {
		return
	}
	entries, err := h.service.Recent(c.Request.Context(), principal, queryInt(c, "limit"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
