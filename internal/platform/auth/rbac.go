package auth

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

// StaffRoles is every role allowed into the clinic back office.
var StaffRoles = []string{RoleAdmin, RoleDoctor, RoleReceptionist}

// ValidRole reports whether role is one the clinic issues tokens for.
func ValidRole(role string) bool {
	return slices.Contains(StaffRoles, role)
}

// Allowed reports whether id may act under any of roles. Admins are allowed
// everywhere.
func (id Identity) Allowed(roles ...string) bool {
	return id.Role == RoleAdmin || slices.Contains(roles, id.Role)
}

// RequireRole rejects callers whose role is not listed. It must run after
// JWTMiddleware; a request without an identity gets 401.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if !id.Allowed(roles...) {
				return echo.NewHTTPError(http.StatusForbidden, "role "+id.Role+" may not perform this action")
			}
			return next(c)
		}
	}
}

// RequireStaff admits any authenticated clinic role.
func RequireStaff() echo.MiddlewareFunc {
	return RequireRole(StaffRoles...)
}
