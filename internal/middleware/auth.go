package middleware

import (
	"errors"
	"log/slog"

	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/opsdeck/opsdeck/internal/dto"
	"github.com/opsdeck/opsdeck/internal/services"
)

const claimsLocal = "claims"

// RefreshHeader carries an advisory replacement token when the current
// session is close to expiry. Clients may adopt it; the old token
// stays valid until its own expiry.
const RefreshHeader = "X-Session-Refresh"

// SessionProtected rejects requests without a valid bearer session
// token. Expired tokens get a distinct error kind so the client knows
// to re-login rather than retry.
func SessionProtected(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(secret)},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
					Error: true, Kind: "expired", Message: "Unauthorized: session expired",
				})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Kind: "unauthenticated", Message: "Unauthorized: invalid or missing token",
			})
		},
	})
}

// AttachClaims converts the verified JWT into typed session claims
// under the "claims" local and attaches a refresh-hint header when
// less than a quarter of the session lifetime remains. Must run after
// SessionProtected.
func AttachClaims(sessions *services.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := c.Locals("user").(*jwt.Token)
		if !ok || token == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Kind: "unauthenticated", Message: "Unauthorized",
			})
		}
		mapClaims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Kind: "unauthenticated", Message: "Invalid claims",
			})
		}

		claims, err := services.ClaimsFromMap(mapClaims)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Kind: "unauthenticated", Message: "Invalid claims",
			})
		}
		c.Locals(claimsLocal, claims)

		if sessions.NeedsRefresh(claims) {
			if fresh, err := sessions.Remint(claims); err == nil {
				c.Set(RefreshHeader, fresh)
			} else {
				slog.Error("session refresh mint failed", "error", err, "user_id", claims.UserID)
			}
		}

		return c.Next()
	}
}

// Claims returns the typed session claims attached by AttachClaims,
// or nil on unauthenticated routes.
func Claims(c *fiber.Ctx) *services.SessionClaims {
	claims, _ := c.Locals(claimsLocal).(*services.SessionClaims)
	return claims
}
