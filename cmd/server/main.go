package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/opsdeck/opsdeck/internal/config"
	"github.com/opsdeck/opsdeck/internal/database"
	"github.com/opsdeck/opsdeck/internal/dto"
	"github.com/opsdeck/opsdeck/internal/handlers"
	"github.com/opsdeck/opsdeck/internal/logging"
	"github.com/opsdeck/opsdeck/internal/metrics"
	"github.com/opsdeck/opsdeck/internal/middleware"
	"github.com/opsdeck/opsdeck/internal/rolepolicy"
	"github.com/opsdeck/opsdeck/internal/routes"
	"github.com/opsdeck/opsdeck/internal/services"
	"github.com/opsdeck/opsdeck/internal/ws"
)

func main() {
	cfg := config.Load()

	// Structured logging (JSON to stdout)
	logging.Setup(cfg.LogLevel)

	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET not set, using developer default; sessions are forgeable")
		cfg.JWTSecret = config.DefaultJWTSecret
	}
	if cfg.GoogleClientID == "" {
		slog.Warn("GOOGLE_CLIENT_ID not set; ID-token assertions will be rejected as untrusted")
	}

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(); err != nil {
		slog.Error("schema bootstrap failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log sink (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB)
	slog.SetDefault(slog.New(logging.NewTee(
		slog.NewJSONHandler(os.Stdout, nil),
		pgLogHandler,
	)))

	// Log cleanup (30-day retention)
	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, cleanupDone)

	// Observability
	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	// Metrics source: host sampling plus best-effort cluster aggregates
	kube := metrics.NewKubeClient(cfg.KubeTokenPath, cfg.KubeCAPath)
	if kube == nil {
		slog.Info("no control-plane credentials, cluster aggregates disabled")
	}
	source := metrics.NewSource(kube, collector)

	// Services
	verifier := services.NewGoogleVerifier(services.GoogleVerifierConfig{ClientID: cfg.GoogleClientID})
	sessions := services.NewSessionService(cfg.JWTSecret, cfg.SessionTTL)
	users := services.NewUserService(database.DB, cfg.DBTimeout)
	policy := rolepolicy.New(cfg.AdminDomain)

	// Subscription hub
	hub := ws.NewHub(source, collector, cfg.TickInterval)
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	// Handlers
	authHandler := handlers.NewAuthHandler(verifier, users, sessions, policy)
	userHandler := handlers.NewUserHandler(users)
	healthHandler := handlers.NewHealthHandler()
	metricsHandler := handlers.NewMetricsHandler(source)

	// Sentry error tracking
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
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
		ErrorHandler: errorHandler,
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

	// Routes
	routes.Setup(app, cfg, sessions, users, policy,
		authHandler, userHandler, healthHandler, metricsHandler, hub, promRegistry)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	// Stop accepting and drain in-flight requests, then close the
	// subscriber registry, then the log sinks, then the pool.
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	stopHub()

	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if err := database.Close(); err != nil {
		slog.Error("database close error", "error", err)
	}

	slog.Info("server stopped")
}

// errorHandler shapes uncaught errors. Server-side failures are logged
// with the request trace id and reduced to a generic message so
// internals never leak to unauthenticated callers.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	if code >= 500 {
		traceID, _ := c.Locals(requestid.ConfigDefault.ContextKey).(string)
		slog.Error("unhandled server error",
			"method", c.Method(), "path", c.Path(), "trace_id", traceID, "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(dto.ErrorResponse{
		Error:   true,
		Message: message,
	})
}
