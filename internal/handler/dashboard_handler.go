package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oculoscan/oculoscan-api/internal/dto"
	"github.com/oculoscan/oculoscan-api/internal/models"
	appErrors "github.com/oculoscan/oculoscan-api/pkg/errors"
	"github.com/oculoscan/oculoscan-api/pkg/response"
)

type dashboardService interface {
	Summary(ctx context.Context, actor models.Actor) (*dto.DashboardSummaryResponse, error)
}

// DashboardHandler serves aggregated lifecycle counts.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Summary godoc
// @Summary Scan request facet counts
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/summary [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "dashboard service not configured"))
		return
	}
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	summary, err := h.service.Summary(c.Request.Context(), *actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
