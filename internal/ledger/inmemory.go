package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryStore struct {
	mu           sync.RWMutex
	wallets      map[string]Wallet      // keyed by wallet id
	numbers      map[string]string      // wallet number -> wallet id
	owners       map[string]string      // owner id -> wallet id
	transactions map[string]Transaction // keyed by reference
}

// NewInMemory creates a concurrency-safe in-memory ledger store useful for
// unit tests and local development without Postgres.
func NewInMemory() Store {
	return &inMemoryStore{
		wallets:      make(map[string]Wallet),
		numbers:      make(map[string]string),
		owners:       make(map[string]string),
		transactions: make(map[string]Transaction),
	}
}

func (s *inMemoryStore) CreateWallet(_ context.Context, wallet Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.wallets[wallet.ID]; exists {
		return ErrDuplicateReference
	}
	s.wallets[wallet.ID] = wallet
	s.numbers[wallet.WalletNumber] = wallet.ID
	s.owners[wallet.OwnerID] = wallet.ID
	return nil
}

func (s *inMemoryStore) GetWallet(_ context.Context, id string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[id]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (s *inMemoryStore) GetWalletByNumber(_ context.Context, number string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.numbers[number]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return s.wallets[id], nil
}

func (s *inMemoryStore) GetWalletByOwner(_ context.Context, ownerID string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.owners[ownerID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return s.wallets[id], nil
}

func (s *inMemoryStore) CreatePending(_ context.Context, reference, walletID string, amount int64) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.transactions[reference]; exists {
		return Transaction{}, ErrDuplicateReference
	}
	if _, ok := s.wallets[walletID]; !ok {
		return Transaction{}, ErrWalletNotFound
	}
	txn := Transaction{
		ID:        uuid.NewString(),
		Reference: reference,
		Kind:      KindDeposit,
		Status:    StatusPending,
		Amount:    amount,
		WalletID:  walletID,
		CreatedAt: time.Now().UTC(),
	}
	s.transactions[reference] = txn
	return txn, nil
}

func (s *inMemoryStore) FailPending(_ context.Context, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.transactions[reference]
	if !ok {
		return ErrTransactionNotFound
	}
	if txn.Status != StatusPending {
		return ErrDuplicateReference
	}
	txn.Status = StatusFailed
	s.transactions[reference] = txn
	return nil
}

func (s *inMemoryStore) Credit(_ context.Context, reference, walletID string, amount int64) (CreditResult, error) {
	if amount <= 0 {
		return CreditResult{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.transactions[reference]; ok && existing.Status == StatusSuccess {
		return CreditResult{
			TransactionID: existing.ID,
			Reference:     reference,
			WalletBalance: s.wallets[existing.WalletID].Balance,
			Status:        existing.Status,
		}, ErrDuplicateReference
	}

	w, ok := s.wallets[walletID]
	if !ok {
		return CreditResult{}, ErrWalletNotFound
	}

	txn, ok := s.transactions[reference]
	if !ok {
		txn = Transaction{
			ID:        uuid.NewString(),
			Reference: reference,
			Kind:      KindDeposit,
			Amount:    amount,
			WalletID:  walletID,
			CreatedAt: time.Now().UTC(),
		}
	}
	txn.Status = StatusSuccess
	s.transactions[reference] = txn

	w.Balance += amount
	s.wallets[walletID] = w

	return CreditResult{
		TransactionID: txn.ID,
		Reference:     reference,
		WalletBalance: w.Balance,
		Status:        StatusSuccess,
	}, nil
}

func (s *inMemoryStore) Transfer(_ context.Context, sourceWalletID, destWalletNumber, reference string, amount int64) (TransferResult, error) {
	if amount <= 0 {
		return TransferResult{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	destID, ok := s.numbers[destWalletNumber]
	if !ok {
		return TransferResult{}, ErrWalletNotFound
	}
	if destID == sourceWalletID {
		return TransferResult{}, ErrSameWallet
	}

	if existing, ok := s.transactions[reference]; ok {
		if existing.Kind != KindTransferOut || existing.WalletID != sourceWalletID || existing.CounterpartyWalletID != destID {
			return TransferResult{}, ErrReferenceInUse
		}
		return TransferResult{
			TransactionID:      existing.ID,
			Reference:          reference,
			SourceBalance:      s.wallets[sourceWalletID].Balance,
			DestinationBalance: s.wallets[destID].Balance,
		}, ErrDuplicateReference
	}

	source, ok := s.wallets[sourceWalletID]
	if !ok {
		return TransferResult{}, ErrWalletNotFound
	}
	dest := s.wallets[destID]

	if source.Balance < amount {
		return TransferResult{}, ErrInsufficientFunds
	}

	source.Balance -= amount
	dest.Balance += amount
	s.wallets[sourceWalletID] = source
	s.wallets[destID] = dest

	now := time.Now().UTC()
	out := Transaction{
		ID:                   uuid.NewString(),
		Reference:            reference,
		Kind:                 KindTransferOut,
		Status:               StatusSuccess,
		Amount:               amount,
		WalletID:             sourceWalletID,
		CounterpartyWalletID: destID,
		CreatedAt:            now,
	}
	in := Transaction{
		ID:                   uuid.NewString(),
		Reference:            reference + "_IN",
		Kind:                 KindTransferIn,
		Status:               StatusSuccess,
		Amount:               amount,
		WalletID:             destID,
		CounterpartyWalletID: sourceWalletID,
		CreatedAt:            now,
	}
	s.transactions[out.Reference] = out
	s.transactions[in.Reference] = in

	return TransferResult{
		TransactionID:      out.ID,
		Reference:          reference,
		SourceBalance:      source.Balance,
		DestinationBalance: dest.Balance,
	}, nil
}

func (s *inMemoryStore) GetTransaction(_ context.Context, reference string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txn, ok := s.transactions[reference]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return txn, nil
}

func (s *inMemoryStore) Transactions(_ context.Context, walletID string) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []Transaction
	for _, txn := range s.transactions {
		if txn.WalletID == walletID {
			result = append(result, txn)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}
