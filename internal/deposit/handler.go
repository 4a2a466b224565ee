package deposit

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kudipay/kudipay/internal/ledger"
)

const signatureHeader = "X-Paystack-Signature"

// Handler exposes deposit endpoints: initialization, status and the provider
// webhook.
type Handler struct {
	service *Service
}

// NewHandler builds a deposit HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type initializeRequest struct {
	Amount int64 `json:"amount"`
}

// Initialize creates a pending deposit and hands back the provider reference.
func (h *Handler) Initialize(c *fiber.Ctx) error {
	ownerID, _ := c.Locals("user_id").(string)
	var req initializeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	pending, err := h.service.Initialize(c.UserContext(), ownerID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidAmount):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrWalletNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"reference": pending.Reference,
		"amount":    pending.Amount,
	})
}

// Status reports the lifecycle state of a deposit.
func (h *Handler) Status(c *fiber.Ctx) error {
	reference := c.Params("reference")
	txn, err := h.service.Status(c.UserContext(), reference)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrTransactionNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrNotDeposit):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"reference":  txn.Reference,
		"status":     txn.Status,
		"amount":     txn.Amount,
		"created_at": txn.CreatedAt.Format(time.RFC3339),
	})
}

// Webhook receives provider payment notifications. Duplicate deliveries are
// acknowledged as success so the provider stops retrying; a bad signature is
// rejected without detail.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	signature := c.Get(signatureHeader)
	if signature == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing signature")
	}

	_, err := h.service.ProcessWebhook(c.UserContext(), c.Body(), signature)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSignature):
			return fiber.NewError(http.StatusUnauthorized, "invalid signature")
		case errors.Is(err, ErrInvalidPayload):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrDuplicateReference):
			// Already credited; absorbed.
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": true})
}
