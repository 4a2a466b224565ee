package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kudipay/kudipay/internal/ledger"
)

func seedWallet(t *testing.T, store ledger.Store, number string, balance int64) ledger.Wallet {
	t.Helper()
	w := ledger.Wallet{
		ID:           uuid.NewString(),
		WalletNumber: number,
		OwnerID:      uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.CreateWallet(context.Background(), w); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	ledger.SeedBalance(store, w.ID, balance)
	w.Balance = balance
	return w
}

func TestTransferMovesFundsAtomically(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, nil)
	ctx := context.Background()

	a := seedWallet(t, store, "1111111111111", 10_000)
	b := seedWallet(t, store, "2222222222222", 0)

	res, err := svc.Transfer(ctx, Input{
		SourceWalletID:          a.ID,
		DestinationWalletNumber: b.WalletNumber,
		Amount:                  3_000,
		RequestorUserID:         a.OwnerID,
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.SourceBalance != 7_000 || res.DestinationBalance != 3_000 {
		t.Fatalf("unexpected balances %d/%d", res.SourceBalance, res.DestinationBalance)
	}

	out, err := store.GetTransaction(ctx, res.Reference)
	if err != nil {
		t.Fatalf("out leg: %v", err)
	}
	in, err := store.GetTransaction(ctx, res.Reference+"_IN")
	if err != nil {
		t.Fatalf("in leg: %v", err)
	}
	if out.Status != ledger.StatusSuccess || in.Status != ledger.StatusSuccess {
		t.Fatalf("legs not settled: %s/%s", out.Status, in.Status)
	}
}

func TestTransferRejectsNonOwner(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, nil)

	a := seedWallet(t, store, "1111111111111", 10_000)
	b := seedWallet(t, store, "2222222222222", 0)

	_, err := svc.Transfer(context.Background(), Input{
		SourceWalletID:          a.ID,
		DestinationWalletNumber: b.WalletNumber,
		Amount:                  1_000,
		RequestorUserID:         uuid.NewString(),
	})
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}

	got, _ := store.GetWallet(context.Background(), a.ID)
	if got.Balance != 10_000 {
		t.Fatalf("rejected transfer mutated balance: %d", got.Balance)
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, nil)

	a := seedWallet(t, store, "1111111111111", 500)
	b := seedWallet(t, store, "2222222222222", 0)

	_, err := svc.Transfer(context.Background(), Input{
		SourceWalletID:          a.ID,
		DestinationWalletNumber: b.WalletNumber,
		Amount:                  1_000,
		RequestorUserID:         a.OwnerID,
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestTransferInvalidAmount(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, nil)

	a := seedWallet(t, store, "1111111111111", 500)

	_, err := svc.Transfer(context.Background(), Input{
		SourceWalletID:          a.ID,
		DestinationWalletNumber: "2222222222222",
		Amount:                  0,
		RequestorUserID:         a.OwnerID,
	})
	if !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestTransferRetryWithRequestIDIsIdempotent(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, nil)
	ctx := context.Background()

	a := seedWallet(t, store, "1111111111111", 10_000)
	b := seedWallet(t, store, "2222222222222", 0)

	input := Input{
		SourceWalletID:          a.ID,
		DestinationWalletNumber: b.WalletNumber,
		Amount:                  2_500,
		RequestID:               "retry-1",
		RequestorUserID:         a.OwnerID,
	}

	first, err := svc.Transfer(ctx, input)
	if err != nil {
		t.Fatalf("first transfer: %v", err)
	}

	second, err := svc.Transfer(ctx, input)
	if !errors.Is(err, ledger.ErrDuplicateReference) {
		t.Fatalf("expected duplicate reference on retry, got %v", err)
	}
	if second.SourceBalance != first.SourceBalance || second.DestinationBalance != first.DestinationBalance {
		t.Fatalf("retry changed balances: %d/%d", second.SourceBalance, second.DestinationBalance)
	}

	gotA, _ := store.GetWallet(ctx, a.ID)
	if gotA.Balance != 7_500 {
		t.Fatalf("expected source balance 7500 after retry, got %d", gotA.Balance)
	}
}
