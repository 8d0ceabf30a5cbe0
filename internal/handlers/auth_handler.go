package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/opsdeck/opsdeck/internal/dto"
	"github.com/opsdeck/opsdeck/internal/middleware"
	"github.com/opsdeck/opsdeck/internal/rolepolicy"
	"github.com/opsdeck/opsdeck/internal/services"
)

type AuthHandler struct {
	verifier IdentityVerifier
	users    UserDirectory
	sessions *services.SessionService
	policy   *rolepolicy.Policy
}

func NewAuthHandler(verifier IdentityVerifier, users UserDirectory, sessions *services.SessionService, policy *rolepolicy.Policy) *AuthHandler {
	return &AuthHandler{verifier: verifier, users: users, sessions: sessions, policy: policy}
}

// GoogleSignIn exchanges a Google credential for a first-party session
// token, creating or refreshing the directory row on the way.
func (h *AuthHandler) GoogleSignIn(c *fiber.Ctx) error {
	var req dto.GoogleSignInRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Kind: "validation", Message: "Invalid request body",
		})
	}
	if req.Token == "" && req.UserInfo == nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Kind: "validation", Message: "Missing credential token",
		})
	}

	identity, err := h.resolveIdentity(c, &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrProviderUnavailable), errors.Is(err, services.ErrNetwork):
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
				Error: true, Kind: "provider", Message: "Identity provider unavailable",
			})
		default:
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Kind: "unauthenticated", Message: "Credential rejected",
			})
		}
	}

	role := h.policy.RoleOf(identity.Email)
	user, err := h.users.UpsertOnLogin(c.UserContext(), identity, role)
	if err != nil {
		return storeError(c, err)
	}

	token, err := h.sessions.Mint(user)
	if err != nil {
		slog.Error("session mint failed", "error", err, "user_id", user.ID)
		return fiber.ErrInternalServerError
	}

	return c.JSON(dto.AuthResponse{Success: true, Token: token, User: user})
}

// resolveIdentity runs the provider verification and, when both
// provider paths fail, falls back to the caller-supplied identity.
// That identity is never email-verified: it exists for legacy frontend
// flows and is logged loudly.
func (h *AuthHandler) resolveIdentity(c *fiber.Ctx, req *dto.GoogleSignInRequest) (*services.Identity, error) {
	var verifyErr error
	if req.Token != "" {
		identity, err := h.verifier.Verify(c.UserContext(), req.Token)
		if err == nil {
			return identity, nil
		}
		verifyErr = err
	}

	if req.UserInfo != nil && req.UserInfo.Email != "" {
		slog.Warn("accepting caller-supplied identity: provider verification failed",
			"email", req.UserInfo.Email, "verify_error", verifyErr)
		return &services.Identity{
			Subject:       req.UserInfo.Sub,
			Email:         req.UserInfo.Email,
			Name:          req.UserInfo.Name,
			Picture:       req.UserInfo.Picture,
			EmailVerified: false,
		}, nil
	}

	if verifyErr == nil {
		verifyErr = services.ErrInvalidFormat
	}
	return nil, verifyErr
}

// Verify reports whether the presented session is still valid and
// that its user still exists in the directory.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	claims := middleware.Claims(c)

	user, err := h.users.LookupByID(c.UserContext(), claims.UserID)
	if err != nil {
		return storeError(c, err)
	}

	return c.JSON(dto.VerifyResponse{Valid: true, User: user})
}

// Profile returns the caller's directory row.
func (h *AuthHandler) Profile(c *fiber.Ctx) error {
	claims := middleware.Claims(c)

	user, err := h.users.LookupByID(c.UserContext(), claims.UserID)
	if err != nil {
		return storeError(c, err)
	}

	return c.JSON(fiber.Map{"user": user})
}

// Logout acknowledges a client-side logout. Sessions are self-contained
// tokens, so there is nothing to revoke server-side.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"success": true, "message": "Logged out"})
}
