package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deskflow/itsm-approvals/internal/api/dto"
	"github.com/deskflow/itsm-approvals/internal/auth"
	"github.com/deskflow/itsm-approvals/internal/domain"
	"github.com/deskflow/itsm-approvals/internal/service"
	apperrors "github.com/deskflow/itsm-approvals/pkg/util/errorutil"
)

// ApprovalsHandler exposes the approval workflow.
type ApprovalsHandler struct {
	service *service.ApprovalService
}

// NewApprovalsHandler constructs handler.
func NewApprovalsHandler(approvalService *service.ApprovalService) *ApprovalsHandler {
	return &ApprovalsHandler{service: approvalService}
}

// Pending GET /approvals/pending.
func (h *ApprovalsHandler) Pending(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	limit, offset := parsePage(c)
	tickets, err := h.service.PendingFor(c.UserContext(), principal.Actor(), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(dto.TicketsFromDomain(tickets))
}

// Approve POST /tickets/:id/approve.
func (h *ApprovalsHandler) Approve(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.ApproveRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.Approve(c.UserContext(), principal.Actor(), c.Params("id"), service.ApproveInput{
		Level:    domain.ApprovalLevel(req.ApprovalLevel),
		Comments: req.Comments,
	})
	if err != nil {
		return err
	}
	level := req.ApprovalLevel
	if level == 0 {
		level = int(domain.ApprovalLevelManager)
	}
	return c.JSON(fiber.Map{
		"message":       "Ticket approved successfully",
		"ticket":        dto.TicketFromDomain(ticket),
		"approvalLevel": level,
	})
}

// Reject POST /tickets/:id/reject.
func (h *ApprovalsHandler) Reject(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.RejectRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.Reject(c.UserContext(), principal.Actor(), c.Params("id"), service.RejectInput{
		Level:    domain.ApprovalLevel(req.ApprovalLevel),
		Reason:   req.Reason,
		Comments: req.Comments,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":         "Ticket rejected successfully",
		"ticket":          dto.TicketFromDomain(ticket),
		"rejectionReason": ticket.RejectionReason,
	})
}

// Release POST /tickets/:id/release.
func (h *ApprovalsHandler) Release(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	ticket, err := h.service.Release(c.UserContext(), principal.Actor(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "Approval lock released",
		"ticket":  dto.TicketFromDomain(ticket),
	})
}

// LevelStats GET /approvals/stats.
func (h *ApprovalsHandler) LevelStats(c *fiber.Ctx) error {
	stats, err := h.service.LevelStats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

// TimeByType GET /stats/approvals.
func (h *ApprovalsHandler) TimeByType(c *fiber.Ctx) error {
	stats, err := h.service.TimeByType(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(stats)
}
