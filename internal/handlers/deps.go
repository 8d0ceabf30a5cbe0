package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/opsdeck/opsdeck/internal/dto"
	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/rolepolicy"
	"github.com/opsdeck/opsdeck/internal/services"
)

// UserDirectory is the slice of the user service the handlers consume.
type UserDirectory interface {
	LookupByEmail(ctx context.Context, email string) (*models.User, error)
	LookupByID(ctx context.Context, id uint) (*models.User, error)
	UpsertOnLogin(ctx context.Context, identity *services.Identity, role rolepolicy.Role) (*models.User, error)
	ListAll(ctx context.Context) ([]models.User, error)
	Create(ctx context.Context, name, email, role, status string) (*models.User, error)
	Update(ctx context.Context, id uint, patch services.UserPatch) (*models.User, error)
	Delete(ctx context.Context, id uint) error
}

// IdentityVerifier resolves a provider credential to an identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (*services.Identity, error)
}

// storeError maps the user-service taxonomy to an HTTP response.
func storeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Kind: "validation", Message: err.Error(),
		})
	case errors.Is(err, services.ErrDuplicateEmail):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
			Error: true, Kind: "conflict", Message: "Email already registered",
		})
	case errors.Is(err, services.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Kind: "not_found", Message: "User not found",
		})
	case errors.Is(err, services.ErrStorage):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
			Error: true, Kind: "storage", Message: "Directory temporarily unavailable",
		})
	default:
		return fiber.ErrInternalServerError
	}
}
