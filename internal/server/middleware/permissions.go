package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

func HasPermission(user *AppUser, permission string) bool {
	return user != nil && slices.Contains(user.Permissions, permission)
}

func IsAdmin(user *AppUser) bool {
	return user != nil && user.Role == "admin"
}

// RequirePermission rejects requests whose user lacks permission. It must run
// after AuthMiddleware.
func RequirePermission(permission string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ac, ok := c.(*AppContext)
			if !ok || ac.User == nil {
				return unauthorized(c, "Unauthorized")
			}
			if !HasPermission(ac.User, permission) && !IsAdmin(ac.User) {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "Forbidden: missing permission " + permission})
			}
			return next(c)
		}
	}
}
