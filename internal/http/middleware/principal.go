package middleware

import (
	"github.com/gofiber/fiber/v2"

	"docvault/internal/model"
)

const (
	// PrincipalLocalKey is the key used to store the caller identity in Fiber's context locals.
	PrincipalLocalKey = "principal"

	userIDHeader     = "X-User-Id"
	userRoleHeader   = "X-User-Role"
	userDeptHeader   = "X-User-Department"
	userNameHeader   = "X-User-Name"
	userMobileHeader = "X-User-Mobile"
)

// Principal resolves the caller identity from gateway-injected headers.
//
// Authentication happens upstream; this middleware trusts the X-User-* headers
// and rejects requests that carry no user id. The resolved model.Principal is
// stored in context locals under PrincipalLocalKey.
func Principal() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(userIDHeader)
		if id == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing user identity")
		}

		role := model.RoleUser
		if c.Get(userRoleHeader) == string(model.RoleAdmin) {
			role = model.RoleAdmin
		}

		c.Locals(PrincipalLocalKey, model.Principal{
			ID:         id,
			Name:       c.Get(userNameHeader),
			Mobile:     c.Get(userMobileHeader),
			Department: c.Get(userDeptHeader),
			Role:       role,
		})

		return c.Next()
	}
}

// PrincipalFromCtx extracts the principal previously stored by Principal.
// The zero value is returned when the middleware did not run.
func PrincipalFromCtx(c *fiber.Ctx) model.Principal {
	if v := c.Locals(PrincipalLocalKey); v != nil {
		if p, ok := v.(model.Principal); ok {
			return p
		}
	}
	return model.Principal{}
}

// RequireAdmin rejects non-administrator callers. Must run after Principal.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !PrincipalFromCtx(c).IsAdmin() {
			return fiber.NewError(fiber.StatusForbidden, "admin only")
		}
		return c.Next()
	}
}
