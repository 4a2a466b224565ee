package transfer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kudipay/kudipay/internal/ledger"
	"github.com/kudipay/kudipay/internal/notification"
)

// ErrNotOwner indicates the caller does not own the source wallet.
var ErrNotOwner = errors.New("not owner of source wallet")

// Service validates and posts wallet-to-wallet transfers through the ledger.
type Service struct {
	store    ledger.Store
	notifier notification.Notifier
}

// NewService constructs a transfer service.
func NewService(store ledger.Store, notifier notification.Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// Input captures the data needed to move funds between wallets. RequestID, if
// supplied by the client, makes retries of the same transfer idempotent;
// otherwise a fresh reference is generated.
type Input struct {
	SourceWalletID          string
	DestinationWalletNumber string
	Amount                  int64
	RequestID               string
	RequestorUserID         string
}

// Result describes the ledger outcome of a transfer.
type Result struct {
	TransactionID      string
	Reference          string
	SourceBalance      int64
	DestinationBalance int64
	CompletedAt        time.Time
}

// Transfer posts an atomic balanced movement between two wallets. Funds are
// verified by the store at commit time, after both wallet rows are locked, so
// concurrent transfers cannot overdraw the source.
func (s *Service) Transfer(ctx context.Context, input Input) (Result, error) {
	if input.Amount <= 0 {
		return Result{}, ledger.ErrInvalidAmount
	}

	source, err := s.store.GetWallet(ctx, input.SourceWalletID)
	if err != nil {
		return Result{}, err
	}
	if input.RequestorUserID != "" && source.OwnerID != input.RequestorUserID {
		return Result{}, ErrNotOwner
	}

	reference := input.RequestID
	if reference == "" {
		reference, err = newReference()
		if err != nil {
			return Result{}, err
		}
	}

	res, err := s.store.Transfer(ctx, source.ID, input.DestinationWalletNumber, reference, input.Amount)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateReference) {
			return Result{
				TransactionID:      res.TransactionID,
				Reference:          res.Reference,
				SourceBalance:      res.SourceBalance,
				DestinationBalance: res.DestinationBalance,
				CompletedAt:        time.Now().UTC(),
			}, err
		}
		return Result{}, err
	}

	if s.notifier != nil {
		if dest, destErr := s.store.GetWalletByNumber(ctx, input.DestinationWalletNumber); destErr == nil {
			_ = s.notifier.Send(ctx, notification.Message{
				Kind:        notification.KindTransferReceived,
				Destination: dest.OwnerID,
				Body:        fmt.Sprintf("You received %d from wallet %s", input.Amount, source.WalletNumber),
			})
		}
	}

	return Result{
		TransactionID:      res.TransactionID,
		Reference:          res.Reference,
		SourceBalance:      res.SourceBalance,
		DestinationBalance: res.DestinationBalance,
		CompletedAt:        time.Now().UTC(),
	}, nil
}

func newReference() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "TRF_" + strings.ToUpper(hex.EncodeToString(buf)), nil
}
