package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kudipay/kudipay/internal/ledger"
)

// Handler exposes wallet read endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type walletResponse struct {
	ID           string `json:"id"`
	WalletNumber string `json:"wallet_number"`
	Balance      int64  `json:"balance"`
	CreatedAt    string `json:"created_at"`
}

type transactionItem struct {
	Reference          string `json:"reference"`
	Kind               string `json:"kind"`
	Status             string `json:"status"`
	Amount             int64  `json:"amount"`
	CounterpartyWallet string `json:"counterparty_wallet_id,omitempty"`
	CreatedAt          string `json:"created_at"`
}

// Me returns the caller's wallet with its current balance.
func (h *Handler) Me(c *fiber.Ctx) error {
	ownerID, _ := c.Locals("user_id").(string)
	w, err := h.service.GetByOwner(c.UserContext(), ownerID)
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(walletResponse{
		ID:           w.ID,
		WalletNumber: w.WalletNumber,
		Balance:      w.Balance,
		CreatedAt:    w.CreatedAt.Format(time.RFC3339),
	})
}

// History lists the caller's wallet transactions.
func (h *Handler) History(c *fiber.Ctx) error {
	ownerID, _ := c.Locals("user_id").(string)
	w, err := h.service.GetByOwner(c.UserContext(), ownerID)
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	txns, err := h.service.History(c.UserContext(), w.ID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	items := make([]transactionItem, 0, len(txns))
	for _, txn := range txns {
		items = append(items, transactionItem{
			Reference:          txn.Reference,
			Kind:               txn.Kind,
			Status:             txn.Status,
			Amount:             txn.Amount,
			CounterpartyWallet: txn.CounterpartyWalletID,
			CreatedAt:          txn.CreatedAt.Format(time.RFC3339),
		})
	}
	return c.Status(http.StatusOK).JSON(items)
}
