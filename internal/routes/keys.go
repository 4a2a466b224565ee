package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kudipay/kudipay/internal/apikey"
)

// RegisterKeyRoutes wires API key management endpoints.
func RegisterKeyRoutes(r fiber.Router, h *apikey.Handler) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Post("/rollover", h.Rollover)
	r.Delete("/:keyId", h.Revoke)
}
