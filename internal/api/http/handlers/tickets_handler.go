package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/deskflow/itsm-approvals/internal/api/dto"
	"github.com/deskflow/itsm-approvals/internal/auth"
	"github.com/deskflow/itsm-approvals/internal/service"
	apperrors "github.com/deskflow/itsm-approvals/pkg/util/errorutil"
)

// TicketsHandler manages ticket submission endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), principal.Actor(), service.TicketCreateInput{
		Title:                req.Title,
		Description:          req.Description,
		Type:                 req.Type,
		Priority:             req.Priority,
		ApprovalTimeoutHours: req.ApprovalTimeout,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "Ticket created successfully",
		"ticket":  dto.TicketFromDomain(ticket),
	})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	limit, offset := parsePage(c)
	tickets, err := h.service.ListUserTickets(c.UserContext(), principal.Actor(), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketsFromDomain(tickets)})
}

// ListAllTickets GET /admin/tickets. ?stuck=true keeps escalated tickets
// still locked to their new approver; ?locked=true keeps any locked ticket.
func (h *TicketsHandler) ListAllTickets(c *fiber.Ctx) error {
	limit, offset := parsePage(c)
	tickets, err := h.service.ListAllTickets(c.UserContext(), service.TicketQuery{
		Stuck:  c.QueryBool("stuck"),
		Locked: c.QueryBool("locked"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketsFromDomain(tickets)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	ticket, err := h.service.GetTicket(c.UserContext(), principal.Actor(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ticket": dto.TicketFromDomain(ticket)})
}

func parsePage(c *fiber.Ctx) (limit, offset int) {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	if pageSize > 100 {
		pageSize = 100
	}
	return pageSize, (page - 1) * pageSize
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
