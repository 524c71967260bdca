package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/kiwi-live/internal/config"
	"github.com/OFFIS-RIT/kiwi-live/internal/queue"
	mid "github.com/OFFIS-RIT/kiwi-live/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi-live/internal/session"
	"github.com/OFFIS-RIT/kiwi-live/internal/storage"
	"github.com/OFFIS-RIT/kiwi-live/pkg/leaselock"
	"github.com/OFFIS-RIT/kiwi-live/pkg/logger"
	pgstore "github.com/OFFIS-RIT/kiwi-live/pkg/store/pgx"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// New builds the HTTP surface around app.
func New(app *mid.App, bodyLimit string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	if bodyLimit != "" {
		e.Use(middleware.BodyLimit(bodyLimit))
	}

	RegisterRoutes(e)
	return e
}

func Init(cfg config.Config) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &mid.App{
		MasterAPIKey:   cfg.Server.MasterAPIKey,
		MasterUserID:   cfg.Server.MasterUserID,
		MasterUserRole: cfg.Server.MasterUserRole,
	}

	if cfg.Server.AuthURL != "" {
		k, err := keyfunc.NewDefault([]string{cfg.Server.AuthURL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		app.Key = k
	}

	deps, err := session.NewDependencies(cfg)
	if err != nil {
		logger.Fatal("Could not create pipeline dependencies", "err", err)
	}

	var opts []session.Option

	if cfg.Storage.DatabaseURL != "" {
		if err := pgstore.Migrate(cfg.Storage.DatabaseURL); err != nil {
			logger.Fatal("Database migration failed", "err", err)
		}
		conn, err := pgxpool.New(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect to database", "err", err)
		}
		defer conn.Close()

		eventStore := pgstore.NewEventStore(conn)
		app.Events = eventStore
		sink := session.NewLogSink(eventStore, 4096)
		defer sink.Close()
		opts = append(opts, session.WithSinks(sink))

		hostname, _ := os.Hostname()
		leases, err := leaselock.New(conn, hostname, leaselock.WithTTL(cfg.Sessions.LeaseTTL))
		if err != nil {
			logger.Fatal("Could not create lease client", "err", err)
		}
		opts = append(opts, session.WithLeases(session.LeaseClient(leases)))
	}

	if cfg.Sessions.Archive {
		s3Client, err := storage.NewS3Client(ctx)
		if err != nil {
			logger.Fatal("Could not create S3 client", "err", err)
		}
		opts = append(opts, session.WithArchive(storage.NewGraphArchive(s3Client, cfg.Storage.Bucket)))
	}

	if cfg.Messaging.PublishEvents {
		que, err := queue.Init(ctx)
		if err != nil {
			logger.Fatal("Could not connect to RabbitMQ", "err", err)
		}
		defer que.Close()
		ch, err := que.Channel()
		if err != nil {
			logger.Fatal("Failed to open channel", "err", err)
		}
		if err := queue.SetupQueues(ch, nil, cfg.Messaging.EventExchange); err != nil {
			logger.Fatal("Failed to set up exchange", "err", err)
		}
		opts = append(opts, session.WithSinks(queue.NewEventPublisher(ch, cfg.Messaging.EventExchange)))
	}

	// Sessions outlive single requests, so they hang off the process context.
	app.Sessions = session.NewManager(ctx, cfg.PipelineConfig(), deps, opts...)

	reaper := cron.New()
	if cfg.Sessions.ReapSchedule != "" && cfg.Sessions.MaxIdle > 0 {
		if _, err := reaper.AddFunc(cfg.Sessions.ReapSchedule, func() {
			app.Sessions.StopIdle(ctx, cfg.Sessions.MaxIdle)
		}); err != nil {
			logger.Fatal("Invalid reap schedule", "err", err)
		}
		reaper.Start()
	}

	e := New(app, cfg.Server.BodyLimit)

	go func() {
		logger.Info("Starting server", "port", cfg.Server.Port)
		if err := e.Start(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	<-reaper.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}

	archiveCtx, cancelArchive := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelArchive()
	app.Sessions.StopAll(archiveCtx)
}
