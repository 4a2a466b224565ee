package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/kudipay/kudipay/internal/identity"
	"github.com/kudipay/kudipay/internal/wallet"
)

// Handler exposes registration and session endpoints.
type Handler struct {
	users   *identity.Service
	wallets *wallet.Service
	tokens  *TokenService
}

// NewHandler creates an auth handler.
func NewHandler(users *identity.Service, wallets *wallet.Service, tokens *TokenService) *Handler {
	return &Handler{users: users, wallets: wallets, tokens: tokens}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a user and their wallet, then signs them in.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	user, err := h.users.Register(c.Context(), identity.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	w, err := h.wallets.Create(c.Context(), user.ID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not provision wallet")
	}

	pair, err := h.tokens.Issue(user.ID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not issue tokens")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status": true,
		"data": fiber.Map{
			"user_id":       user.ID,
			"email":         user.Email,
			"wallet_number": w.WalletNumber,
			"tokens":        pair,
		},
	})
}

// Login authenticates a user and issues tokens.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	user, err := h.users.Authenticate(c.Context(), identity.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, identity.ErrInvalidCredentials.Error())
	}

	pair, err := h.tokens.Issue(user.ID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not issue tokens")
	}

	return c.JSON(fiber.Map{
		"status": true,
		"data": fiber.Map{
			"user_id": user.ID,
			"tokens":  pair,
		},
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a refresh token for a new pair.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	pair, err := h.tokens.Refresh(req.RefreshToken)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid refresh token")
	}

	return c.JSON(fiber.Map{"status": true, "data": fiber.Map{"tokens": pair}})
}
