package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	PermStudyContentCreate = "studycontent.create"
	PermStudyContentUpdate = "studycontent.update"
	PermStudyContentView   = "studycontent.view"
	PermMindMapEdit        = "mindmap.edit"
	PermMindMapExport      = "mindmap.export"
)

var allPermissions = []string{
	PermStudyContentCreate,
	PermStudyContentUpdate,
	PermStudyContentView,
	PermMindMapEdit,
	PermMindMapExport,
}

// userPermissions is granted to authenticated users whose token carries no
// permission claim.
var userPermissions = []string{
	PermStudyContentCreate,
	PermStudyContentView,
	PermMindMapEdit,
	PermMindMapExport,
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": msg})
}

func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return unauthorized(c, "Unauthorized")
		}
		token = strings.TrimSpace(token)

		ac := c.(*AppContext)
		app := ac.App

		// Master API Key bypass
		if app.MasterAPIKey != "" && app.MasterUserID != 0 && app.MasterUserRole != "" && token == app.MasterAPIKey {
			ac.User = &AppUser{
				UserID:      app.MasterUserID,
				Role:        app.MasterUserRole,
				Permissions: allPermissions,
			}
			return next(c)
		}

		if app.KeyFunc == nil {
			return unauthorized(c, "Unauthorized")
		}
		parsed, err := jwt.Parse(token, app.KeyFunc)
		if err != nil || !parsed.Valid {
			return unauthorized(c, "Unauthorized")
		}

		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			return unauthorized(c, "Unauthorized")
		}

		var userID int64
		switch id := claims["id"].(type) {
		case string:
			userID, err = strconv.ParseInt(id, 10, 64)
			if err != nil {
				return unauthorized(c, "Invalid user ID")
			}
		case float64:
			userID = int64(id)
		default:
			return unauthorized(c, "Invalid user ID")
		}

		role := "user"
		if roleClaim, ok := claims["role"].(string); ok {
			role = roleClaim
		}

		var permissions []string
		if permsClaim, ok := claims["permissions"].([]any); ok {
			for _, p := range permsClaim {
				if pStr, ok := p.(string); ok {
					permissions = append(permissions, pStr)
				}
			}
		}

		if len(permissions) == 0 {
			if role == "admin" {
				permissions = allPermissions
			} else {
				permissions = userPermissions
			}
		}

		ac.User = &AppUser{
			UserID:      userID,
			Role:        role,
			Permissions: permissions,
		}

		return next(c)
	}
}
