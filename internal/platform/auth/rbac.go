package auth

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/elanza/clinic/internal/platform/apperr"
)

// RequireRole returns middleware that checks the actor holds one of roles.
// Super Administrador satisfies every requirement.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := ActorFromContext(c.Request().Context())
			if actor == nil {
				return apperr.New(apperr.Unauthenticated, "authentication required")
			}
			if actor.Role == RoleSuperAdmin {
				return next(c)
			}
			for _, required := range roles {
				if actor.Role == required {
					return next(c)
				}
			}
			return apperr.New(apperr.PermissionDenied,
				fmt.Sprintf("required role: %s", strings.Join(names, " or ")))
		}
	}
}

// RequirePrivileged admits Administrador and Super Administrador.
func RequirePrivileged() echo.MiddlewareFunc {
	return RequireRole(RoleAdmin)
}

// RequireAuthenticated rejects requests without an actor.
func RequireAuthenticated() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if ActorFromContext(c.Request().Context()) == nil {
				return apperr.New(apperr.Unauthenticated, "authentication required")
			}
			return next(c)
		}
	}
}
