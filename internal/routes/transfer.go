package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kudipay/kudipay/internal/transfer"
)

// RegisterTransferRoutes wires the transfer endpoint behind the transfer chain.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler, transferAuth []fiber.Handler) {
	r.Post("/transfers", guarded(transferAuth, h.Transfer)...)
}
