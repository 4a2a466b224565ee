package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInsufficientFunds occurs when the source wallet lacks available balance
	// to cover a requested posting.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateReference indicates the provided transaction reference has
	// already been applied and therefore the operation should be treated as
	// idempotent.
	ErrDuplicateReference = errors.New("duplicate reference")

	// ErrWalletNotFound occurs when no wallet matches the given id or number.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrTransactionNotFound occurs when no transaction matches the reference.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrSameWallet occurs when a transfer names the same wallet on both sides.
	ErrSameWallet = errors.New("cannot transfer to the same wallet")

	// ErrReferenceInUse occurs when a reference already belongs to a
	// transaction of a different kind or wallet pair, so no prior outcome can
	// be replayed for it.
	ErrReferenceInUse = errors.New("reference already in use")

	// ErrInvalidAmount occurs when a posting amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")
)

const (
	// KindDeposit is a credit applied from an external payment notification.
	KindDeposit = "deposit"
	// KindTransferOut is the debit leg of a wallet-to-wallet transfer.
	KindTransferOut = "transfer_out"
	// KindTransferIn is the credit leg of a wallet-to-wallet transfer.
	KindTransferIn = "transfer_in"

	// StatusPending marks a transaction created but not yet settled.
	StatusPending = "pending"
	// StatusSuccess marks a settled transaction. Terminal.
	StatusSuccess = "success"
	// StatusFailed marks a rejected transaction. Terminal.
	StatusFailed = "failed"
)

// Wallet is an addressable balance record owned by one user. Balance is in
// minor currency units and never goes below zero in a committed state.
type Wallet struct {
	ID           string
	WalletNumber string
	OwnerID      string
	Balance      int64
	CreatedAt    time.Time
}

// Transaction records one balance-affecting event. The reference is globally
// unique; at most one transaction per reference ever reaches StatusSuccess.
type Transaction struct {
	ID                   string
	Reference            string
	Kind                 string
	Status               string
	Amount               int64
	WalletID             string
	CounterpartyWalletID string
	CreatedAt            time.Time
}

// CreditResult captures the outcome of a deposit credit.
type CreditResult struct {
	TransactionID string
	Reference     string
	WalletBalance int64
	Status        string
}

// TransferResult captures the outcome of a wallet-to-wallet transfer.
type TransferResult struct {
	TransactionID      string
	Reference          string
	SourceBalance      int64
	DestinationBalance int64
}

// Store defines the contract implemented by ledger backends (e.g. Postgres).
// Credit and Transfer each run as a single atomic unit of work: either every
// row they touch commits, or none does.
type Store interface {
	CreateWallet(ctx context.Context, wallet Wallet) error
	GetWallet(ctx context.Context, id string) (Wallet, error)
	GetWalletByNumber(ctx context.Context, number string) (Wallet, error)
	GetWalletByOwner(ctx context.Context, ownerID string) (Wallet, error)

	// Credit applies a deposit to the wallet exactly once per reference. A
	// second call with a committed reference returns the prior outcome along
	// with ErrDuplicateReference.
	Credit(ctx context.Context, reference, walletID string, amount int64) (CreditResult, error)

	// CreatePending records a deposit awaiting external confirmation. The
	// reference is claimed by this row; Credit settles it later.
	CreatePending(ctx context.Context, reference, walletID string, amount int64) (Transaction, error)

	// FailPending marks a pending transaction failed. Terminal statuses are
	// never reopened; failing a settled transaction is an error.
	FailPending(ctx context.Context, reference string) error

	// Transfer atomically moves amount between two wallets, posting a linked
	// transfer_out/transfer_in pair under the reference. Both legs commit or
	// neither does.
	Transfer(ctx context.Context, sourceWalletID, destWalletNumber, reference string, amount int64) (TransferResult, error)

	GetTransaction(ctx context.Context, reference string) (Transaction, error)
	Transactions(ctx context.Context, walletID string) ([]Transaction, error)
}
