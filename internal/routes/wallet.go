package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kudipay/kudipay/internal/wallet"
)

// RegisterWalletRoutes wires wallet read endpoints behind the read chain.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, readAuth []fiber.Handler) {
	r.Get("/wallet", guarded(readAuth, h.Me)...)
	r.Get("/wallet/transactions", guarded(readAuth, h.History)...)
}
