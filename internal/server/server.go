package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zaldivarmena/mindy/internal/metrics"
	"github.com/zaldivarmena/mindy/internal/migrate"
	"github.com/zaldivarmena/mindy/internal/queue"
	mid "github.com/zaldivarmena/mindy/internal/server/middleware"
	"github.com/zaldivarmena/mindy/internal/storage"
	"github.com/zaldivarmena/mindy/internal/util"
	"github.com/zaldivarmena/mindy/pkg/leaselock"
	"github.com/zaldivarmena/mindy/pkg/logger"
	pgstore "github.com/zaldivarmena/mindy/pkg/store/pgx"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// New builds the echo instance for app with the standard middleware stack.
func New(app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = mid.NewValidator()

	if app.Metrics != nil {
		e.Use(app.Metrics.Middleware())
	}
	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("10M"))

	RegisterRoutes(e, app)
	return e
}

func Init() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbURL := util.GetEnv("DATABASE_URL")
	if util.GetEnvBool("MIGRATE_ON_START", true) {
		if err := migrate.Up(dbURL, util.GetEnvString("MIGRATIONS_SOURCE", migrate.DefaultSource)); err != nil {
			logger.Fatal("Failed to migrate database", "err", err)
		}
	}

	conn, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()
	if err := queue.SetupQueues(ch, []string{queue.StudyContentQueue}); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	app := &mid.App{
		Store:          pgstore.NewStudyContentDBStorage(conn),
		Locker:         leaselock.New(conn),
		Queue:          queue.ChannelPublisher{Ch: ch},
		Metrics:        metrics.New(),
		ViewportWidth:  util.GetEnvNumeric("LAYOUT_VIEWPORT_WIDTH", 1200),
		PixelRatio:     util.GetEnvNumeric("EXPORT_PIXEL_RATIO", 2),
		MasterAPIKey:   util.GetEnv("MASTER_API_KEY"),
		MasterUserID:   int64(util.GetEnvNumeric("MASTER_USER_ID", 0)),
		MasterUserRole: util.GetEnv("MASTER_USER_ROLE"),
	}

	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		k, err := keyfunc.NewDefaultCtx(ctx, []string{authURL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		app.KeyFunc = k.Keyfunc
	} else {
		logger.Warn("AUTH_URL not set, only the master API key is accepted")
	}

	if util.GetEnv("AWS_BUCKET") != "" {
		s3Client, err := storage.NewS3Client(ctx)
		if err != nil {
			logger.Fatal("Failed to create S3 client", "err", err)
		}
		app.Exports = storage.NewExportStore(s3Client)
	} else {
		logger.Warn("AWS_BUCKET not set, exports are returned inline")
	}

	e := New(app)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
