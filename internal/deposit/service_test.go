package deposit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kudipay/kudipay/internal/ledger"
)

const testSecret = "whsec_test"

func newTestService(t *testing.T) (*Service, ledger.Store, ledger.Wallet) {
	t.Helper()
	store := ledger.NewInMemory()
	w := ledger.Wallet{
		ID:           uuid.NewString(),
		WalletNumber: "1234567890123",
		OwnerID:      uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.CreateWallet(context.Background(), w); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	return NewService(store, testSecret, nil), store, w
}

func chargeSuccessBody(reference string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":"%s","amount":%d,"status":"success"}}`, reference, amount))
}

func TestProcessWebhookRejectsBadSignature(t *testing.T) {
	svc, store, w := newTestService(t)
	ctx := context.Background()

	pending, err := svc.Initialize(ctx, w.OwnerID, 5_000)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	body := chargeSuccessBody(pending.Reference, 5_000)
	_, err = svc.ProcessWebhook(ctx, body, "deadbeef")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}

	got, _ := store.GetWallet(ctx, w.ID)
	if got.Balance != 0 {
		t.Fatalf("bad signature touched the ledger: balance %d", got.Balance)
	}
}

func TestProcessWebhookCreditsOnce(t *testing.T) {
	svc, store, w := newTestService(t)
	ctx := context.Background()

	pending, err := svc.Initialize(ctx, w.OwnerID, 5_000)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	body := chargeSuccessBody(pending.Reference, 5_000)
	sig := svc.Sign(body)

	res, err := svc.ProcessWebhook(ctx, body, sig)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if res.WalletBalance != 5_000 {
		t.Fatalf("expected balance 5000, got %d", res.WalletBalance)
	}

	// Redelivery of the identical notification is absorbed.
	res2, err := svc.ProcessWebhook(ctx, body, sig)
	if !errors.Is(err, ledger.ErrDuplicateReference) {
		t.Fatalf("expected duplicate reference, got %v", err)
	}
	if res2.WalletBalance != 5_000 {
		t.Fatalf("redelivery changed balance to %d", res2.WalletBalance)
	}

	got, _ := store.GetWallet(ctx, w.ID)
	if got.Balance != 5_000 {
		t.Fatalf("expected final balance 5000, got %d", got.Balance)
	}
}

func TestProcessWebhookIgnoresOtherEvents(t *testing.T) {
	svc, store, w := newTestService(t)
	ctx := context.Background()

	body := []byte(`{"event":"transfer.success","data":{"reference":"x","amount":100}}`)
	if _, err := svc.ProcessWebhook(ctx, body, svc.Sign(body)); err != nil {
		t.Fatalf("non-charge event should be ignored: %v", err)
	}

	got, _ := store.GetWallet(ctx, w.ID)
	if got.Balance != 0 {
		t.Fatalf("ignored event touched the ledger: %d", got.Balance)
	}
}

func TestProcessWebhookIgnoresUnknownReference(t *testing.T) {
	svc, store, w := newTestService(t)
	ctx := context.Background()

	body := chargeSuccessBody("DEP_UNKNOWN", 5_000)
	if _, err := svc.ProcessWebhook(ctx, body, svc.Sign(body)); err != nil {
		t.Fatalf("unknown reference should be ignored: %v", err)
	}

	got, _ := store.GetWallet(ctx, w.ID)
	if got.Balance != 0 {
		t.Fatalf("unknown reference credited the wallet: %d", got.Balance)
	}
}

func TestProcessWebhookMarksFailedCharge(t *testing.T) {
	svc, store, w := newTestService(t)
	ctx := context.Background()

	pending, err := svc.Initialize(ctx, w.OwnerID, 5_000)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	body := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":"%s","amount":5000,"status":"failed"}}`, pending.Reference))
	if _, err := svc.ProcessWebhook(ctx, body, svc.Sign(body)); err != nil {
		t.Fatalf("failed charge: %v", err)
	}

	txn, err := store.GetTransaction(ctx, pending.Reference)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if txn.Status != ledger.StatusFailed {
		t.Fatalf("expected failed status, got %s", txn.Status)
	}
	got, _ := store.GetWallet(ctx, w.ID)
	if got.Balance != 0 {
		t.Fatalf("failed charge credited the wallet: %d", got.Balance)
	}
}

func TestInitializeValidatesAmount(t *testing.T) {
	svc, _, w := newTestService(t)

	if _, err := svc.Initialize(context.Background(), w.OwnerID, 0); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestStatusReportsDepositLifecycle(t *testing.T) {
	svc, _, w := newTestService(t)
	ctx := context.Background()

	pending, err := svc.Initialize(ctx, w.OwnerID, 2_000)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	txn, err := svc.Status(ctx, pending.Reference)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if txn.Status != ledger.StatusPending {
		t.Fatalf("expected pending, got %s", txn.Status)
	}

	body := chargeSuccessBody(pending.Reference, 2_000)
	if _, err := svc.ProcessWebhook(ctx, body, svc.Sign(body)); err != nil {
		t.Fatalf("webhook: %v", err)
	}

	txn, err = svc.Status(ctx, pending.Reference)
	if err != nil {
		t.Fatalf("status after credit: %v", err)
	}
	if txn.Status != ledger.StatusSuccess {
		t.Fatalf("expected success, got %s", txn.Status)
	}

	if _, err := svc.Status(ctx, "DEP_MISSING"); !errors.Is(err, ledger.ErrTransactionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProcessWebhookIgnoresNonDepositReference(t *testing.T) {
	svc, store, w := newTestService(t)
	ctx := context.Background()

	other := ledger.Wallet{
		ID:           uuid.NewString(),
		WalletNumber: "9876543210987",
		OwnerID:      uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.CreateWallet(ctx, other); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	ledger.SeedBalance(store, w.ID, 5_000)
	if _, err := store.Transfer(ctx, w.ID, other.WalletNumber, "TRF_9", 2_000); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	body := chargeSuccessBody("TRF_9", 2_000)
	if _, err := svc.ProcessWebhook(ctx, body, svc.Sign(body)); err != nil {
		t.Fatalf("webhook naming a transfer reference must be dropped quietly, got %v", err)
	}

	got, _ := store.GetWallet(ctx, w.ID)
	if got.Balance != 3_000 {
		t.Fatalf("transfer reference was credited: balance %d", got.Balance)
	}
}
