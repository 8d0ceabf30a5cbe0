package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/opsdeck/opsdeck/internal/dto"
	"github.com/opsdeck/opsdeck/internal/services"
)

type UserHandler struct {
	users UserDirectory
}

func NewUserHandler(users UserDirectory) *UserHandler {
	return &UserHandler{users: users}
}

// List returns the directory newest-first. Moderator and above.
func (h *UserHandler) List(c *fiber.Ctx) error {
	users, err := h.users.ListAll(c.UserContext())
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(users)
}

// Create adds a directory row by hand. Admin only.
func (h *UserHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Kind: "validation", Message: "Invalid request body",
		})
	}

	user, err := h.users.Create(c.UserContext(), req.Name, req.Email, req.Role, req.Status)
	if err != nil {
		return storeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user})
}

// Update applies a partial edit to a row. Admin only.
func (h *UserHandler) Update(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Kind: "validation", Message: "Invalid user id",
		})
	}

	var patch services.UserPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Kind: "validation", Message: "Invalid request body",
		})
	}

	user, err := h.users.Update(c.UserContext(), uint(id), patch)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(fiber.Map{"user": user})
}

// Delete removes a row. Admin only.
func (h *UserHandler) Delete(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Kind: "validation", Message: "Invalid user id",
		})
	}

	if err := h.users.Delete(c.UserContext(), uint(id)); err != nil {
		return storeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}
