package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/lite/internal/config"
	"github.com/localnerve/lite/internal/logging"
	"github.com/localnerve/lite/internal/services"
	"github.com/localnerve/lite/internal/types"
)

// SessionCookie is the Authorizer session cookie
const SessionCookie = "cookie_session"

// AuthAdmin validates that the request has admin role authorization
func AuthAdmin(cfg *config.Config) fiber.Handler {
	return auth(cfg, services.RoleAdmin, "authorization.admin")
}

// AuthUser validates that the request has user role authorization
func AuthUser(cfg *config.Config) fiber.Handler {
	return auth(cfg, services.RoleUser, "authorization.user")
}

func auth(cfg *config.Config, role, errorType string) fiber.Handler {
	if !cfg.AuthEnabled() {
		logging.New("auth").Warn("AUTHZ_URL is not set, role check disabled", "role", role)
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}
	return func(c *fiber.Ctx) error {
		return authorize(c, cfg, []string{role}, errorType)
	}
}

// authorize performs the authorization check
func authorize(c *fiber.Ctx, cfg *config.Config, roles []string, errorType string) error {
	session := c.Cookies(SessionCookie)
	if session == "" {
		return &types.CustomError{
			Code:    fiber.StatusForbidden,
			Message: fmt.Sprintf("Authorizer cookie %q not found", SessionCookie),
			Type:    errorType,
		}
	}

	if err := services.InitAuthorizer(cfg, c.Protocol(), c.Hostname()); err != nil {
		return &types.CustomError{
			Code:    fiber.StatusServiceUnavailable,
			Message: err.Error(),
			Type:    errorType,
		}
	}

	data, err := services.ValidateSession(session, roles)
	if err != nil {
		return &types.CustomError{
			Code:    fiber.StatusForbidden,
			Message: fmt.Sprintf("Invalid session: %v", err),
			Type:    errorType,
		}
	}

	if user, ok := data["user"]; ok {
		c.Locals("user", user)
	}

	return c.Next()
}
