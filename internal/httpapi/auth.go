package httpapi

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/Buchi-dev/puretrack/internal/auth"
	"github.com/Buchi-dev/puretrack/internal/models"
	"github.com/Buchi-dev/puretrack/internal/store"
)

// AuthHandler mints bearer tokens for the WebSocket Hub handshake. Real
// user/credential management is the out-of-scope REST layer; this keeps
// the teacher's fixed operator credential set and completes its
// declared-but-unwired JWT dependency instead of the dead
// GenerateToken/ValidateToken stubs.
type AuthHandler struct {
	credentials map[string]string
	issuer      *auth.Issuer
	mem         *store.MemStore
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

func NewAuthHandler(issuer *auth.Issuer, mem *store.MemStore) *AuthHandler {
	h := &AuthHandler{
		credentials: map[string]string{"admin": "admin123"},
		issuer:      issuer,
		mem:         mem,
	}
	mem.SeedUser(&models.User{
		ID:     "admin",
		Email:  "admin@puretrack.local",
		Role:   models.RoleAdmin,
		Status: models.UserActive,
		NotificationPreferences: models.NotificationPreferences{Email: true},
	})
	return h
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(LoginResponse{Success: false, Message: "invalid request body"})
	}

	password, exists := h.credentials[req.Username]
	if !exists || password != req.Password {
		log.Printf("httpapi: login failed for %s", req.Username)
		return c.Status(fiber.StatusUnauthorized).JSON(LoginResponse{Success: false, Message: "invalid credentials"})
	}

	token, err := h.issuer.Issue(req.Username)
	if err != nil {
		log.Printf("httpapi: token issuance failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(LoginResponse{Success: false, Message: "could not issue token"})
	}

	return c.JSON(LoginResponse{Success: true, Message: "login successful", Token: token})
}
