package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/opsdeck/opsdeck/internal/config"
)

// CORS reflects the configured origins. Credentials are only allowed
// with an explicit origin list; the wildcard origin cannot legally
// carry credentials.
func CORS(cfg *config.Config) fiber.Handler {
	allowCredentials := cfg.CORSOrigins != "*" && cfg.CORSOrigins != ""
	return cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowHeaders:     "Content-Type, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: allowCredentials,
	})
}
