package deposit

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kudipay/kudipay/internal/ledger"
	"github.com/kudipay/kudipay/internal/notification"
)

var (
	// ErrInvalidSignature occurs when a webhook's signature proof does not
	// verify against the shared secret. The ledger is never touched.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrInvalidPayload occurs when the webhook body is missing required fields.
	ErrInvalidPayload = errors.New("invalid webhook payload")

	// ErrNotDeposit occurs when a status lookup names a non-deposit transaction.
	ErrNotDeposit = errors.New("not a deposit transaction")
)

// eventChargeSuccess is the provider event that credits a wallet. All other
// events are acknowledged and ignored.
const eventChargeSuccess = "charge.success"

// Service processes payment-provider deposit notifications. Crediting a
// wallet happens here and nowhere else.
type Service struct {
	store    ledger.Store
	secret   []byte
	notifier notification.Notifier
}

// NewService builds a deposit service with the provider's shared webhook secret.
func NewService(store ledger.Store, webhookSecret string, notifier notification.Notifier) *Service {
	return &Service{store: store, secret: []byte(webhookSecret), notifier: notifier}
}

// PendingDeposit describes a deposit awaiting provider confirmation.
type PendingDeposit struct {
	Reference string
	Amount    int64
	WalletID  string
}

// Initialize records a pending deposit and returns the reference that the
// provider will echo back in its webhook.
func (s *Service) Initialize(ctx context.Context, ownerID string, amount int64) (PendingDeposit, error) {
	if amount <= 0 {
		return PendingDeposit{}, ledger.ErrInvalidAmount
	}
	wallet, err := s.store.GetWalletByOwner(ctx, ownerID)
	if err != nil {
		return PendingDeposit{}, err
	}

	reference, err := newReference("DEP")
	if err != nil {
		return PendingDeposit{}, err
	}
	txn, err := s.store.CreatePending(ctx, reference, wallet.ID, amount)
	if err != nil {
		return PendingDeposit{}, err
	}
	return PendingDeposit{Reference: txn.Reference, Amount: txn.Amount, WalletID: txn.WalletID}, nil
}

// Status reports the state of a deposit by reference.
func (s *Service) Status(ctx context.Context, reference string) (ledger.Transaction, error) {
	txn, err := s.store.GetTransaction(ctx, reference)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if txn.Kind != ledger.KindDeposit {
		return ledger.Transaction{}, ErrNotDeposit
	}
	return txn, nil
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Status    string `json:"status"`
	} `json:"data"`
}

// ProcessWebhook verifies the signature over the raw body, then applies the
// deposit exactly once. A repeated delivery of the same reference returns
// ledger.ErrDuplicateReference together with the previously committed
// outcome; the HTTP boundary absorbs that as success. Notifications for
// references this system never issued are acknowledged and dropped.
func (s *Service) ProcessWebhook(ctx context.Context, body []byte, signature string) (ledger.CreditResult, error) {
	if !s.VerifySignature(body, signature) {
		return ledger.CreditResult{}, ErrInvalidSignature
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return ledger.CreditResult{}, ErrInvalidPayload
	}
	if event.Event != eventChargeSuccess {
		return ledger.CreditResult{}, nil
	}
	if event.Data.Reference == "" || event.Data.Amount <= 0 {
		return ledger.CreditResult{}, ErrInvalidPayload
	}

	txn, err := s.store.GetTransaction(ctx, event.Data.Reference)
	if errors.Is(err, ledger.ErrTransactionNotFound) {
		// Unknown reference: not a deposit this system initialized.
		return ledger.CreditResult{}, nil
	}
	if err != nil {
		return ledger.CreditResult{}, err
	}
	if txn.Kind != ledger.KindDeposit {
		// The reference belongs to a transfer leg; never credit it.
		return ledger.CreditResult{}, nil
	}

	if event.Data.Status != "" && event.Data.Status != "success" {
		if err := s.store.FailPending(ctx, txn.Reference); err != nil && !errors.Is(err, ledger.ErrDuplicateReference) {
			return ledger.CreditResult{}, err
		}
		return ledger.CreditResult{}, nil
	}

	result, err := s.store.Credit(ctx, txn.Reference, txn.WalletID, event.Data.Amount)
	if err != nil {
		return result, err
	}

	if s.notifier != nil {
		wallet, walletErr := s.store.GetWallet(ctx, txn.WalletID)
		if walletErr == nil {
			_ = s.notifier.Send(ctx, notification.Message{
				Kind:        notification.KindDepositCredited,
				Destination: wallet.OwnerID,
				Body:        fmt.Sprintf("Your wallet was credited with %d", event.Data.Amount),
			})
		}
	}

	return result, nil
}

// VerifySignature checks the provider's HMAC-SHA512 hex signature computed
// over the raw request body.
func (s *Service) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha512.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

// Sign computes the signature the provider would send for the given body.
// Exposed for tests and for the provider simulator.
func (s *Service) Sign(body []byte) string {
	mac := hmac.New(sha512.New, s.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newReference(prefix string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return prefix + "_" + strings.ToUpper(hex.EncodeToString(buf)), nil
}
