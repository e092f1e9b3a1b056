package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/deskflow/itsm-approvals/internal/domain"
	"github.com/deskflow/itsm-approvals/internal/repository/memory"
	apperrors "github.com/deskflow/itsm-approvals/pkg/util/errorutil"
)

func newAuthApp(t *testing.T) (*fiber.App, *TokenManager, *memory.UserRepository) {
	t.Helper()

	users := memory.NewUserRepository()
	tokens := NewTokenManager("secret", 60)
	mw := NewAuthMiddleware(tokens, users)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			domainErr := apperrors.ToDomainError(err)
			return c.Status(domainErr.HTTPStatus).SendString(domainErr.Code)
		},
	})
	app.Get("/me", mw.Handle, RequireAnyRole(), func(c *fiber.Ctx) error {
		principal, _ := PrincipalFromContext(c)
		return c.SendString(principal.User.Name)
	})
	app.Get("/admin", mw.Handle, RequireRole(domain.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})
	return app, tokens, users
}

func do(t *testing.T, app *fiber.App, path string, headers map[string]string) (int, string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestAuthMiddleware(t *testing.T) {
	app, tokens, users := newAuthApp(t)

	manager := &domain.User{Name: "Mona", Email: "mona@company.com", Role: domain.RoleManager}
	require.NoError(t, users.Create(context.Background(), manager))
	token, _, err := tokens.GenerateToken(manager)
	require.NoError(t, err)

	status, body := do(t, app, "/me", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Mona", body)

	status, body = do(t, app, "/me", map[string]string{"x-auth-token": token})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Mona", body)

	status, body = do(t, app, "/me", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, apperrors.CodeUnauthorized, body)

	status, _ = do(t, app, "/me", map[string]string{"Authorization": "Token " + token})
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = do(t, app, "/me", map[string]string{"Authorization": "Bearer garbage"})
	require.Equal(t, http.StatusUnauthorized, status)

	status, body = do(t, app, "/admin", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, apperrors.CodeForbidden, body)
}

func TestAuthMiddlewareUnknownUser(t *testing.T) {
	app, tokens, _ := newAuthApp(t)

	token, _, err := tokens.GenerateToken(&domain.User{ID: "ghost", Role: domain.RoleAdmin})
	require.NoError(t, err)

	status, body := do(t, app, "/me", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, apperrors.CodeUnauthorized, body)
}
