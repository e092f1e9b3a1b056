package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/deskflow/itsm-approvals/internal/api/dto"
	"github.com/deskflow/itsm-approvals/internal/auth"
	"github.com/deskflow/itsm-approvals/internal/service"
	apperrors "github.com/deskflow/itsm-approvals/pkg/util/errorutil"
)

// UsersHandler exposes account management to admins.
type UsersHandler struct {
	users *service.UserService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(userService *service.UserService) *UsersHandler {
	return &UsersHandler{users: userService}
}

// List handles GET /admin/users.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	users, err := h.users.ListUsers(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.UsersFromDomain(users)})
}

// Create handles POST /admin/users.
func (h *UsersHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	user, err := h.users.CreateUser(c.UserContext(), service.UserCreateInput{
		Name:    req.Name,
		Email:   req.Email,
		Role:    req.Role,
		SlackID: req.SlackID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "User created successfully",
		"user":    dto.UserFromDomain(user),
	})
}

// Delete handles DELETE /admin/users/:id.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	if err := h.users.DeleteUser(c.UserContext(), principal.Actor(), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "User removed"})
}
