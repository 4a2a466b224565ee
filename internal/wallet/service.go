package wallet

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/kudipay/kudipay/internal/ledger"
)

const walletNumberLength = 13

// Service exposes wallet operations backed by the ledger store.
type Service struct {
	store ledger.Store
}

// NewService builds a wallet service instance.
func NewService(store ledger.Store) *Service {
	return &Service{store: store}
}

// Create provisions a wallet with a fresh wallet number for the owner.
// Called exactly once, at account creation.
func (s *Service) Create(ctx context.Context, ownerID string) (ledger.Wallet, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return ledger.Wallet{}, err
	}

	number, err := newWalletNumber()
	if err != nil {
		return ledger.Wallet{}, err
	}

	w := ledger.Wallet{
		ID:           uuid.NewString(),
		WalletNumber: number,
		OwnerID:      ownerID,
		Balance:      0,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateWallet(ctx, w); err != nil {
		return ledger.Wallet{}, err
	}
	return w, nil
}

// Get retrieves a wallet by id.
func (s *Service) Get(ctx context.Context, id string) (ledger.Wallet, error) {
	return s.store.GetWallet(ctx, id)
}

// GetByOwner retrieves the owner's wallet.
func (s *Service) GetByOwner(ctx context.Context, ownerID string) (ledger.Wallet, error) {
	return s.store.GetWalletByOwner(ctx, ownerID)
}

// History lists the wallet's transactions, newest first.
func (s *Service) History(ctx context.Context, walletID string) ([]ledger.Transaction, error) {
	if _, err := s.store.GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	return s.store.Transactions(ctx, walletID)
}

// newWalletNumber generates a 13 digit externally addressable number.
func newWalletNumber() (string, error) {
	digits := make([]byte, walletNumberLength)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
