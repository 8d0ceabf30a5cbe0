package middleware

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/opsdeck/opsdeck/internal/dto"
	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/rolepolicy"
	"github.com/opsdeck/opsdeck/internal/services"
)

// RoleDirectory is the slice of the user service the role gate needs.
type RoleDirectory interface {
	LookupByEmail(ctx context.Context, email string) (*models.User, error)
}

// RequireRole gates a route at min. The token role admits first (it
// was minted from the directory), then the role policy is re-evaluated
// so rule changes propagate without re-login, and finally the stored
// directory role is consulted so admin-issued role edits take effect
// before the next login. Must run after AttachClaims.
func RequireRole(min rolepolicy.Role, policy *rolepolicy.Policy, users RoleDirectory) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := Claims(c)
		if claims == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Kind: "unauthenticated", Message: "Unauthorized",
			})
		}

		if rolepolicy.AtLeast(claims.Role, min) || rolepolicy.AtLeast(policy.RoleOf(claims.Email), min) {
			return c.Next()
		}

		// Policy alone is insufficient; an admin may have elevated the
		// stored row since the token was minted.
		user, err := users.LookupByEmail(c.UserContext(), claims.Email)
		if err == nil && rolepolicy.AtLeast(rolepolicy.Role(user.Role), min) {
			return c.Next()
		}
		if err != nil && !errors.Is(err, services.ErrUserNotFound) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
				Error: true, Kind: "storage", Message: "Directory unavailable",
			})
		}

		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: true, Kind: "forbidden", Message: "Insufficient role",
		})
	}
}
