package dto

import "github.com/oculoscan/oculoscan-api/internal/models"

// DashboardSummaryResponse feeds the status/priority filter badges.
type DashboardSummaryResponse struct {
	Total      int                    `json:"total"`
	ByStatus   []models.StatusCount   `json:"by_status"`
	ByPriority []models.PriorityCount `json:"by_priority"`
}
