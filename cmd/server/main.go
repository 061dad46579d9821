package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/clock"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/config"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/database"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/logging"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/messaging"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/queues"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/repository"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/routes"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/services"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	cfg := config.Load()

	// Structured logging (JSON to stdout)
	logging.Setup(cfg.LogLevel)

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}

	// Queue registry
	registry, err := queues.LoadFromFile(cfg.QueuesConfigPath)
	if err != nil {
		slog.Error("failed to load queues config", "path", cfg.QueuesConfigPath, "error", err)
		os.Exit(1)
	}
	if err := registry.Require(cfg.ReportTaskType); err != nil {
		slog.Error("REPORT_TASK_TYPE is not configured", "task_type", cfg.ReportTaskType, "error", err)
		os.Exit(1)
	}
	strategy, err := services.GroupingStrategyByName(cfg.GroupingStrategy)
	if err != nil {
		slog.Error("invalid GROUPING_STRATEGY", "error", err)
		os.Exit(1)
	}
	slog.Info("queues loaded", "task_types", registry.TaskTypes())

	metrics.Register()

	// Store
	var repo repository.Repository
	var pgLogHandler *logging.PGHandler
	cleanupDone := make(chan struct{})
	switch cfg.Store {
	case "memory":
		slog.Warn("using in-memory store, data is lost on restart")
		repo = repository.NewMemory()
	case "postgres":
		if cfg.DBPassword == "" {
			slog.Error("DB_PASSWORD environment variable is required")
			os.Exit(1)
		}
		if err := database.Connect(cfg); err != nil {
			slog.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		if err := database.Migrate(); err != nil {
			slog.Error("migration failed", "error", err)
			os.Exit(1)
		}

		// PostgreSQL log handler (ERROR+ async batch)
		pgLogHandler = logging.NewPGHandler(database.DB)
		logging.Setup(cfg.LogLevel, pgLogHandler)
		logging.StartCleanup(database.DB, cfg.LogRetentionDays, cleanupDone)

		repo = repository.NewGorm(database.DB)
	default:
		slog.Error("unknown STORE", "store", cfg.Store)
		os.Exit(1)
	}

	// Services
	policy := services.DefaultRetryPolicy()
	policy.Attempts = cfg.TxRetryAttempts
	clk := clock.Real()

	authz := services.AnyOf{
		services.NewAllowList(cfg.AdminUserIDList()),
		services.StaticToken(cfg.AdminToken),
		services.NewRoleAuthorizer(repo),
	}

	aggregator := services.NewReportAggregator(repo, registry, strategy, clk, policy)
	factory, err := services.NewTaskFactory(repo, registry, cfg.ReportTaskType, clk, policy)
	if err != nil {
		slog.Error("task factory setup failed", "error", err)
		os.Exit(1)
	}
	aggregator.Subscribe(factory)
	intake := services.NewReportIntake(aggregator)

	queue := services.NewTaskQueue(repo, registry, services.TaskQueueOptions{
		Authorizer: authz,
		Profiles:   services.NewRepositoryProfiles(repo),
		Clock:      clk,
		Retry:      policy,
	})
	recalculator := services.NewPriorityRecalculator(repo, registry, clk, services.DefaultRecalculationBatchSize)

	sweeper := services.NewLeaseSweeper(queue, registry.TaskTypes(), cfg.LeaseSweepInterval)
	sweeper.Start()

	// RabbitMQ report intake (optional)
	var rmq *messaging.RabbitMQ
	var consumer *messaging.ReportConsumer
	if cfg.RabbitMQURL != "" {
		rmq, err = messaging.NewRabbitMQ(cfg.RabbitMQURL, cfg.RabbitMQQueue)
		if err != nil {
			slog.Error("rabbitmq connection failed", "error", err)
			os.Exit(1)
		}
		consumer = messaging.NewReportConsumer(rmq, intake)
		consumer.Start()
	}

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      os.Getenv("APP_ENV"),
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: routes.ErrorHandler,
	})

	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		return c.Next()
	})

	routes.Setup(app, cfg, authz, routes.Handlers{
		Health:  handlers.NewHealthHandler(repo, registry),
		Reports: handlers.NewReportHandler(intake),
		Queues:  handlers.NewQueueHandler(queue, recalculator, services.NewActivityLog(repo)),
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port, "store", cfg.Store)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if consumer != nil {
		consumer.Stop()
		rmq.Close()
	}
	sweeper.Stop()

	close(cleanupDone)
	if pgLogHandler != nil {
		pgLogHandler.Stop()
	}
	sentry.Flush(2 * time.Second)

	if err := database.Close(); err != nil {
		slog.Error("database close error", "error", err)
	}

	slog.Info("server stopped")
}
