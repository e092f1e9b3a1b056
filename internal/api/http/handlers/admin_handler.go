package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deskflow/itsm-approvals/internal/observability"
)

// AdminHandler serves operator endpoints.
type AdminHandler struct {
	metrics *observability.Metrics
}

// NewAdminHandler constructs handler.
func NewAdminHandler(metrics *observability.Metrics) *AdminHandler {
	return &AdminHandler{metrics: metrics}
}

// Metrics GET /admin/metrics.
func (h *AdminHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(h.metrics.Snapshot())
}
