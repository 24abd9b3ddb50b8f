package middleware

import (
	"context"

	"github.com/zaldivarmena/mindy/internal/metrics"
	"github.com/zaldivarmena/mindy/internal/queue"
	"github.com/zaldivarmena/mindy/pkg/leaselock"
	"github.com/zaldivarmena/mindy/pkg/store"

	"github.com/go-playground/validator"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type AppUser struct {
	UserID      int64
	Role        string
	Permissions []string
}

// ExportStorage keeps exported images and links to them.
type ExportStorage interface {
	PutExport(ctx context.Context, courseID string, png []byte) (string, error)
	DownloadLink(ctx context.Context, key string) (string, error)
}

// App carries the shared dependencies of every handler.
type App struct {
	Store   store.StudyContentStorage
	Locker  leaselock.Locker
	Queue   queue.Publisher
	Exports ExportStorage
	Metrics *metrics.Collector

	// KeyFunc resolves JWT signing keys.
	KeyFunc jwt.Keyfunc

	// ViewportWidth is the layout width used when a request gives none.
	ViewportWidth float64
	PixelRatio    float64

	MasterAPIKey   string
	MasterUserID   int64
	MasterUserRole string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}

type CustomValidator struct {
	validator *validator.Validate
}

func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

func (cv *CustomValidator) Validate(i any) error {
	return cv.validator.Struct(i)
}
