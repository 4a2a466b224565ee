package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// maxTxRetries bounds the retry loop on serialization or deadlock aborts.
const maxTxRetries = 3

// PostgresStore persists wallets and transactions in PostgreSQL. The unique
// index on transactions.reference is the authority for idempotency; wallet
// rows are locked with SELECT ... FOR UPDATE so concurrent postings to the
// same wallet serialize.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateWallet inserts a wallet record with its starting balance.
func (s *PostgresStore) CreateWallet(ctx context.Context, wallet Wallet) error {
	walletID, err := uuid.Parse(wallet.ID)
	if err != nil {
		return err
	}
	ownerID, err := uuid.Parse(wallet.OwnerID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO wallets (id, wallet_number, owner_id, balance, created_at)
        VALUES ($1, $2, $3, $4, $5)`, walletID, wallet.WalletNumber, ownerID, wallet.Balance, wallet.CreatedAt.UTC())
	return err
}

// GetWallet fetches a wallet by identifier.
func (s *PostgresStore) GetWallet(ctx context.Context, id string) (Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, ErrWalletNotFound
	}
	return scanWallet(s.db.QueryRow(ctx, `SELECT id, wallet_number, owner_id, balance, created_at
        FROM wallets WHERE id = $1`, walletID))
}

// GetWalletByNumber fetches a wallet by its externally addressable number.
func (s *PostgresStore) GetWalletByNumber(ctx context.Context, number string) (Wallet, error) {
	return scanWallet(s.db.QueryRow(ctx, `SELECT id, wallet_number, owner_id, balance, created_at
        FROM wallets WHERE wallet_number = $1`, number))
}

// GetWalletByOwner fetches the wallet belonging to the given owner.
func (s *PostgresStore) GetWalletByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return Wallet{}, ErrWalletNotFound
	}
	return scanWallet(s.db.QueryRow(ctx, `SELECT id, wallet_number, owner_id, balance, created_at
        FROM wallets WHERE owner_id = $1`, owner))
}

// CreatePending inserts a pending deposit transaction, claiming the reference.
func (s *PostgresStore) CreatePending(ctx context.Context, reference, walletID string, amount int64) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	wid, err := uuid.Parse(walletID)
	if err != nil {
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
	_, err = s.db.Exec(ctx, `INSERT INTO transactions (id, reference, kind, status, amount, wallet_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.MustParse(txn.ID), txn.Reference, txn.Kind, txn.Status, txn.Amount, wid, txn.CreatedAt)
	if isUniqueViolation(err) {
		return Transaction{}, ErrDuplicateReference
	}
	if err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

// FailPending marks a pending transaction failed without touching balances.
func (s *PostgresStore) FailPending(ctx context.Context, reference string) error {
	cmd, err := s.db.Exec(ctx, `UPDATE transactions SET status = $1 WHERE reference = $2 AND status = $3`,
		StatusFailed, reference, StatusPending)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var status string
		if err := s.db.QueryRow(ctx, `SELECT status FROM transactions WHERE reference = $1`, reference).Scan(&status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTransactionNotFound
			}
			return err
		}
		return ErrDuplicateReference
	}
	return nil
}

// Credit applies a deposit to the wallet inside one atomic unit. The insert
// keyed by the unique reference is the idempotency claim: a conflicting
// insert means the deposit was already applied, and the prior outcome is
// returned with ErrDuplicateReference. A pending row with the same reference
// (created by CreatePending) is settled instead of duplicated.
func (s *PostgresStore) Credit(ctx context.Context, reference, walletID string, amount int64) (CreditResult, error) {
	if amount <= 0 {
		return CreditResult{}, ErrInvalidAmount
	}

	var result CreditResult
	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		result, err = s.creditOnce(ctx, reference, walletID, amount)
		if isRetryable(err) {
			continue
		}
		return result, err
	}
	return result, err
}

func (s *PostgresStore) creditOnce(ctx context.Context, reference, walletID string, amount int64) (CreditResult, error) {
	wid, err := uuid.Parse(walletID)
	if err != nil {
		return CreditResult{}, ErrWalletNotFound
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return CreditResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	// Lock any existing transaction row for this reference so concurrent
	// settlements of the same deposit serialize.
	var existingID uuid.UUID
	var existingStatus string
	err = tx.QueryRow(ctx, `SELECT id, status FROM transactions WHERE reference = $1 FOR UPDATE`, reference).
		Scan(&existingID, &existingStatus)
	switch {
	case err == nil:
		if existingStatus == StatusSuccess {
			balance, balErr := walletBalance(ctx, tx, wid)
			if balErr != nil {
				return CreditResult{}, balErr
			}
			return CreditResult{
				TransactionID: existingID.String(),
				Reference:     reference,
				WalletBalance: balance,
				Status:        existingStatus,
			}, ErrDuplicateReference
		}
		// Pending row: settle it below.
	case errors.Is(err, pgx.ErrNoRows):
		existingID = uuid.New()
		_, err = tx.Exec(ctx, `INSERT INTO transactions (id, reference, kind, status, amount, wallet_id, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			existingID, reference, KindDeposit, StatusPending, amount, wid, time.Now().UTC())
		if isUniqueViolation(err) {
			// Lost the race to a concurrent delivery of the same reference.
			// Report the outcome the winner committed.
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				return CreditResult{}, rbErr
			}
			return s.committedCredit(ctx, reference, wid)
		}
		if err != nil {
			return CreditResult{}, err
		}
	default:
		return CreditResult{}, err
	}

	var balance int64
	err = tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE id = $1 FOR UPDATE`, wid).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return CreditResult{}, ErrWalletNotFound
	}
	if err != nil {
		return CreditResult{}, err
	}

	balance += amount
	if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = $1 WHERE id = $2`, balance, wid); err != nil {
		return CreditResult{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE transactions SET status = $1 WHERE id = $2`, StatusSuccess, existingID); err != nil {
		return CreditResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return CreditResult{}, err
	}

	return CreditResult{
		TransactionID: existingID.String(),
		Reference:     reference,
		WalletBalance: balance,
		Status:        StatusSuccess,
	}, nil
}

// committedCredit reports the outcome of a credit that already settled under
// the given reference.
func (s *PostgresStore) committedCredit(ctx context.Context, reference string, walletID uuid.UUID) (CreditResult, error) {
	var txID uuid.UUID
	var status string
	if err := s.db.QueryRow(ctx, `SELECT id, status FROM transactions WHERE reference = $1`, reference).
		Scan(&txID, &status); err != nil {
		return CreditResult{}, err
	}
	var balance int64
	if err := s.db.QueryRow(ctx, `SELECT balance FROM wallets WHERE id = $1`, walletID).Scan(&balance); err != nil {
		return CreditResult{}, err
	}
	return CreditResult{
		TransactionID: txID.String(),
		Reference:     reference,
		WalletBalance: balance,
		Status:        status,
	}, ErrDuplicateReference
}

// Transfer moves amount between two wallets inside one atomic unit, posting a
// linked transfer_out/transfer_in pair. Wallet rows are locked in ascending
// id order so two opposing transfers cannot deadlock, and funds are verified
// only after both locks are held.
func (s *PostgresStore) Transfer(ctx context.Context, sourceWalletID, destWalletNumber, reference string, amount int64) (TransferResult, error) {
	if amount <= 0 {
		return TransferResult{}, ErrInvalidAmount
	}

	var result TransferResult
	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		result, err = s.transferOnce(ctx, sourceWalletID, destWalletNumber, reference, amount)
		if isRetryable(err) {
			continue
		}
		return result, err
	}
	return result, err
}

func (s *PostgresStore) transferOnce(ctx context.Context, sourceWalletID, destWalletNumber, reference string, amount int64) (TransferResult, error) {
	sourceID, err := uuid.Parse(sourceWalletID)
	if err != nil {
		return TransferResult{}, ErrWalletNotFound
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return TransferResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var destID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM wallets WHERE wallet_number = $1`, destWalletNumber).Scan(&destID)
	if errors.Is(err, pgx.ErrNoRows) {
		return TransferResult{}, ErrWalletNotFound
	}
	if err != nil {
		return TransferResult{}, err
	}
	if destID == sourceID {
		return TransferResult{}, ErrSameWallet
	}

	// Fixed global lock order by wallet id.
	first, second := sourceID, destID
	if second.String() < first.String() {
		first, second = second, first
	}
	if _, err := lockWallet(ctx, tx, first); err != nil {
		return TransferResult{}, err
	}
	if _, err := lockWallet(ctx, tx, second); err != nil {
		return TransferResult{}, err
	}

	// Claim the reference before moving any money. A conflict means this
	// transfer already committed; return its recorded outcome.
	outID := uuid.New()
	_, err = tx.Exec(ctx, `INSERT INTO transactions (id, reference, kind, status, amount, wallet_id, counterparty_wallet_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		outID, reference, KindTransferOut, StatusPending, amount, sourceID, destID, time.Now().UTC())
	if isUniqueViolation(err) {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return TransferResult{}, rbErr
		}
		return s.committedTransfer(ctx, reference, sourceID, destID)
	}
	if err != nil {
		return TransferResult{}, err
	}

	var sourceBalance int64
	if err := tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE id = $1`, sourceID).Scan(&sourceBalance); err != nil {
		return TransferResult{}, err
	}
	if sourceBalance < amount {
		return TransferResult{}, ErrInsufficientFunds
	}

	var destBalance int64
	if err := tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE id = $1`, destID).Scan(&destBalance); err != nil {
		return TransferResult{}, err
	}

	sourceBalance -= amount
	destBalance += amount

	if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = $1 WHERE id = $2`, sourceBalance, sourceID); err != nil {
		return TransferResult{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = $1 WHERE id = $2`, destBalance, destID); err != nil {
		return TransferResult{}, err
	}

	if _, err := tx.Exec(ctx, `UPDATE transactions SET status = $1 WHERE id = $2`, StatusSuccess, outID); err != nil {
		return TransferResult{}, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO transactions (id, reference, kind, status, amount, wallet_id, counterparty_wallet_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), reference+"_IN", KindTransferIn, StatusSuccess, amount, destID, sourceID, time.Now().UTC()); err != nil {
		return TransferResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return TransferResult{}, err
	}

	return TransferResult{
		TransactionID:      outID.String(),
		Reference:          reference,
		SourceBalance:      sourceBalance,
		DestinationBalance: destBalance,
	}, nil
}

// committedTransfer reports the outcome of a transfer that already settled
// under the given reference.
func (s *PostgresStore) committedTransfer(ctx context.Context, reference string, sourceID, destID uuid.UUID) (TransferResult, error) {
	var txID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM transactions
        WHERE reference = $1 AND kind = $2 AND wallet_id = $3 AND counterparty_wallet_id = $4`,
		reference, KindTransferOut, sourceID, destID).Scan(&txID)
	if errors.Is(err, pgx.ErrNoRows) {
		return TransferResult{}, ErrReferenceInUse
	}
	if err != nil {
		return TransferResult{}, err
	}
	var sourceBalance, destBalance int64
	if err := s.db.QueryRow(ctx, `SELECT balance FROM wallets WHERE id = $1`, sourceID).Scan(&sourceBalance); err != nil {
		return TransferResult{}, err
	}
	if err := s.db.QueryRow(ctx, `SELECT balance FROM wallets WHERE id = $1`, destID).Scan(&destBalance); err != nil {
		return TransferResult{}, err
	}
	return TransferResult{
		TransactionID:      txID.String(),
		Reference:          reference,
		SourceBalance:      sourceBalance,
		DestinationBalance: destBalance,
	}, ErrDuplicateReference
}

// GetTransaction fetches a transaction by reference.
func (s *PostgresStore) GetTransaction(ctx context.Context, reference string) (Transaction, error) {
	row := s.db.QueryRow(ctx, `SELECT id, reference, kind, status, amount, wallet_id, counterparty_wallet_id, created_at
        FROM transactions WHERE reference = $1`, reference)
	txn, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	return txn, err
}

// Transactions lists the wallet's transactions, newest first.
func (s *PostgresStore) Transactions(ctx context.Context, walletID string) ([]Transaction, error) {
	wid, err := uuid.Parse(walletID)
	if err != nil {
		return nil, ErrWalletNotFound
	}
	rows, err := s.db.Query(ctx, `SELECT id, reference, kind, status, amount, wallet_id, counterparty_wallet_id, created_at
        FROM transactions WHERE wallet_id = $1 ORDER BY created_at DESC`, wid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, txn)
	}
	return result, rows.Err()
}

func lockWallet(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int64, error) {
	var balance int64
	if err := tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE id = $1 FOR UPDATE`, id).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrWalletNotFound
		}
		return 0, err
	}
	return balance, nil
}

func walletBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int64, error) {
	var balance int64
	if err := tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE id = $1`, id).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrWalletNotFound
		}
		return 0, err
	}
	return balance, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (Wallet, error) {
	var (
		w         Wallet
		id        uuid.UUID
		ownerID   uuid.UUID
		createdAt time.Time
	)
	if err := row.Scan(&id, &w.WalletNumber, &ownerID, &w.Balance, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	w.ID = id.String()
	w.OwnerID = ownerID.String()
	w.CreatedAt = createdAt.UTC()
	return w, nil
}

func scanTransaction(row rowScanner) (Transaction, error) {
	var (
		txn          Transaction
		id           uuid.UUID
		walletID     uuid.UUID
		counterparty *uuid.UUID
		createdAt    time.Time
	)
	if err := row.Scan(&id, &txn.Reference, &txn.Kind, &txn.Status, &txn.Amount, &walletID, &counterparty, &createdAt); err != nil {
		return Transaction{}, err
	}
	txn.ID = id.String()
	txn.WalletID = walletID.String()
	if counterparty != nil {
		txn.CounterpartyWalletID = counterparty.String()
	}
	txn.CreatedAt = createdAt.UTC()
	return txn, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isRetryable reports whether the transaction aborted due to a serialization
// failure or deadlock and may be retried from scratch.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
