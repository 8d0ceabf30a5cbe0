package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opsdeck/opsdeck/internal/config"
	"github.com/opsdeck/opsdeck/internal/handlers"
	"github.com/opsdeck/opsdeck/internal/middleware"
	"github.com/opsdeck/opsdeck/internal/rolepolicy"
	"github.com/opsdeck/opsdeck/internal/services"
	"github.com/opsdeck/opsdeck/internal/ws"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	sessions *services.SessionService,
	users *services.UserService,
	policy *rolepolicy.Policy,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	healthHandler *handlers.HealthHandler,
	metricsHandler *handlers.MetricsHandler,
	hub *ws.Hub,
	promRegistry *prometheus.Registry,
) {
	verify := middleware.SessionProtected(cfg.JWTSecret)
	claims := middleware.AttachClaims(sessions)
	moderator := middleware.RequireRole(rolepolicy.RoleModerator, policy, users)
	admin := middleware.RequireRole(rolepolicy.RoleAdmin, policy, users)

	// Liveness and Prometheus scrape targets stay unauthenticated and
	// unthrottled.
	app.Get("/health", healthHandler.Check)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))

	// Auth endpoints get the stricter limit: 10 req/min per IP.
	auth := app.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/google", authHandler.GoogleSignIn)
	auth.Get("/verify", verify, claims, authHandler.Verify)
	auth.Post("/logout", verify, claims, authHandler.Logout)
	auth.Get("/profile", verify, claims, authHandler.Profile)

	// General API limit: 60 req/min per IP.
	api := app.Group("/api")
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/metrics", verify, claims, metricsHandler.Latest)
	api.Get("/metrics/history", verify, claims, metricsHandler.History)

	usersGroup := api.Group("/users", verify, claims)
	usersGroup.Get("/", moderator, userHandler.List)
	usersGroup.Post("/", admin, userHandler.Create)
	usersGroup.Put("/:id", admin, userHandler.Update)
	usersGroup.Delete("/:id", admin, userHandler.Delete)

	// Live metrics stream; handshake carries the session token.
	app.Get("/ws", ws.UpgradeGuard(sessions), hub.Serve())
}
