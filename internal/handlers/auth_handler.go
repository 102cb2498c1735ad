package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/unichat/unichat-backend/internal/httpx"
	"github.com/unichat/unichat-backend/internal/service"
	"github.com/unichat/unichat-backend/internal/store"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var input service.RegisterInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}

	resp, err := h.authService.Register(input)
	if err != nil {
		log.Printf("register failed for %q: %v", input.Email, err)
		return httpx.BadRequest(c, "register_failed", service.AuthErrorMessage(err))
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var input service.LoginInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}

	resp, err := h.authService.Login(input)
	if err != nil {
		log.Printf("login failed for %q: %v", input.Email, err)
		return httpx.Unauthorized(c, "login_failed", service.AuthErrorMessage(err))
	}
	return c.JSON(resp)
}

// GuestLogin is anonymous sign-in.
func (h *AuthHandler) GuestLogin(c *fiber.Ctx) error {
	resp, err := h.authService.GuestLogin()
	if err != nil {
		log.Printf("guest login failed: %v", err)
		return httpx.Internal(c, "guest_login_failed")
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// Logout writes the offline flag before the session ends.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	userID, err := httpx.LocalString(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	if err := h.authService.Logout(userID); err != nil {
		log.Printf("logout failed for %s: %v", userID, err)
		return httpx.Internal(c, "logout_failed")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID, err := httpx.LocalString(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	user, err := h.authService.GetUser(userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return httpx.NotFound(c, "user_not_found", "User not found")
		}
		return httpx.Internal(c, "get_user_failed")
	}
	return c.JSON(user.ToResponse())
}
