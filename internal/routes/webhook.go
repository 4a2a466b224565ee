package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kudipay/kudipay/internal/deposit"
)

// RegisterWebhookRoutes wires the provider callback endpoint. It is public,
// authenticity comes from the signature check inside the handler.
func RegisterWebhookRoutes(r fiber.Router, h *deposit.Handler) {
	r.Post("/webhooks/paystack", h.Webhook)
}
