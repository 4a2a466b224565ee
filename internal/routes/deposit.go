package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kudipay/kudipay/internal/deposit"
)

// RegisterDepositRoutes wires deposit endpoints. Initialization sits behind
// the deposit chain, status lookup behind read.
func RegisterDepositRoutes(r fiber.Router, h *deposit.Handler, readAuth, depositAuth []fiber.Handler) {
	r.Post("/deposits", guarded(depositAuth, h.Initialize)...)
	r.Get("/deposits/:reference", guarded(readAuth, h.Status)...)
}
