package transfer

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/kudipay/kudipay/internal/ledger"
)

// Handler exposes the transfer endpoint.
type Handler struct {
	service *Service
}

// NewHandler builds a transfer HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	SourceWalletID          string `json:"source_wallet_id"`
	DestinationWalletNumber string `json:"destination_wallet_number"`
	Amount                  int64  `json:"amount"`
	RequestID               string `json:"request_id"`
}

type transferResponse struct {
	TransactionID      string `json:"transaction_id"`
	Reference          string `json:"reference"`
	SourceBalance      int64  `json:"source_balance"`
	DestinationBalance int64  `json:"destination_balance"`
}

// Transfer moves funds from the caller's wallet to the destination wallet
// number. A repeated request_id replays the committed outcome.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	ownerID, _ := c.Locals("user_id").(string)
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.Transfer(c.UserContext(), Input{
		SourceWalletID:          req.SourceWalletID,
		DestinationWalletNumber: req.DestinationWalletNumber,
		Amount:                  req.Amount,
		RequestID:               req.RequestID,
		RequestorUserID:         ownerID,
	})
	if err != nil && !errors.Is(err, ledger.ErrDuplicateReference) {
		switch {
		case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrSameWallet):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrWalletNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ledger.ErrReferenceInUse):
			return fiber.NewError(http.StatusConflict, err.Error())
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, ErrNotOwner):
			return fiber.NewError(http.StatusForbidden, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusOK).JSON(transferResponse{
		TransactionID:      res.TransactionID,
		Reference:          res.Reference,
		SourceBalance:      res.SourceBalance,
		DestinationBalance: res.DestinationBalance,
	})
}
