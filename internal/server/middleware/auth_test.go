package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func hmacKeyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("unexpected signing method")
	}
	return testSecret, nil
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return s
}

func newAuthServer(app *App) (*echo.Echo, **AppUser) {
	var seen *AppUser
	e := echo.New()
	e.Use(AppContextMiddleware(app))
	g := e.Group("/api", AuthMiddleware)
	g.GET("/me", func(c echo.Context) error {
		seen = c.(*AppContext).User
		return c.NoContent(http.StatusOK)
	})
	g.GET("/edit", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, RequirePermission(PermStudyContentUpdate))
	return e, &seen
}

func do(e *echo.Echo, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	app := &App{
		KeyFunc:        hmacKeyFunc,
		MasterAPIKey:   "master",
		MasterUserID:   1,
		MasterUserRole: "admin",
	}

	tests := []struct {
		name      string
		token     string
		wantCode  int
		wantID    int64
		wantRole  string
		wantPerms []string
	}{
		{name: "missing header", token: "", wantCode: http.StatusUnauthorized},
		{name: "garbage token", token: "nope", wantCode: http.StatusUnauthorized},
		{name: "master key", token: "master", wantCode: http.StatusOK, wantID: 1, wantRole: "admin", wantPerms: allPermissions},
		{
			name:      "string id",
			token:     signToken(t, jwt.MapClaims{"id": "42"}),
			wantCode:  http.StatusOK,
			wantID:    42,
			wantRole:  "user",
			wantPerms: userPermissions,
		},
		{
			name:      "numeric id with claims",
			token:     signToken(t, jwt.MapClaims{"id": float64(7), "role": "instructor", "permissions": []any{"mindmap.edit"}}),
			wantCode:  http.StatusOK,
			wantID:    7,
			wantRole:  "instructor",
			wantPerms: []string{"mindmap.edit"},
		},
		{name: "bad id", token: signToken(t, jwt.MapClaims{"id": "x"}), wantCode: http.StatusUnauthorized},
		{name: "no id", token: signToken(t, jwt.MapClaims{"role": "admin"}), wantCode: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, seen := newAuthServer(app)
			rec := do(e, "/api/me", tt.token)

			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode != http.StatusOK {
				return
			}
			require.NotNil(t, *seen)
			assert.Equal(t, tt.wantID, (*seen).UserID)
			assert.Equal(t, tt.wantRole, (*seen).Role)
			assert.Equal(t, tt.wantPerms, (*seen).Permissions)
		})
	}
}

func TestRequirePermission(t *testing.T) {
	app := &App{KeyFunc: hmacKeyFunc}
	e, _ := newAuthServer(app)

	rec := do(e, "/api/edit", signToken(t, jwt.MapClaims{"id": "1"}))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(e, "/api/edit", signToken(t, jwt.MapClaims{"id": "1", "permissions": []any{PermStudyContentUpdate}}))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, "/api/edit", signToken(t, jwt.MapClaims{"id": "1", "role": "admin", "permissions": []any{"other"}}))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCustomValidator(t *testing.T) {
	type payload struct {
		Name string `validate:"required"`
	}
	v := NewValidator()
	assert.Error(t, v.Validate(payload{}))
	assert.NoError(t, v.Validate(payload{Name: "x"}))
}
