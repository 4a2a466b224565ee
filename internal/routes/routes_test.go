package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kudipay/kudipay/internal/config"
	"github.com/kudipay/kudipay/internal/deposit"
	"github.com/kudipay/kudipay/internal/ledger"
	"github.com/kudipay/kudipay/internal/logging"
)

const testWebhookSecret = "whsec_test"

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	app := fiber.New()
	cfg := config.Config{
		AppName:        "KudiPay",
		AppEnv:         "development",
		JWTSecret:      "jwt-test-secret",
		WebhookSecret:  testWebhookSecret,
		IdempotencyTTL: time.Hour,
	}
	if err := Setup(app, Deps{Cfg: cfg, Logger: logging.Discard()}); err != nil {
		t.Fatalf("setup routes: %v", err)
	}
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func registerUser(t *testing.T, app *fiber.App, email string) (token string, walletNumber string) {
	t.Helper()
	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":    email,
		"password": "correct horse battery",
	}, nil)
	if status != fiber.StatusCreated {
		t.Fatalf("register: expected 201, got %d (%v)", status, body)
	}
	data := body["data"].(map[string]any)
	tokens := data["tokens"].(map[string]any)
	return tokens["access_token"].(string), data["wallet_number"].(string)
}

func bearer(token string) map[string]string {
	return map[string]string{fiber.HeaderAuthorization: "Bearer " + token}
}

func TestRegisterLoginAndWalletMe(t *testing.T) {
	app := newTestApp(t)

	token, walletNumber := registerUser(t, app, "ada@example.com")
	if len(walletNumber) != 13 {
		t.Fatalf("expected 13 digit wallet number, got %q", walletNumber)
	}

	status, wallet := doJSON(t, app, fiber.MethodGet, "/api/v1/wallet", nil, bearer(token))
	if status != fiber.StatusOK {
		t.Fatalf("wallet me: expected 200, got %d (%v)", status, wallet)
	}
	if wallet["wallet_number"] != walletNumber {
		t.Fatalf("expected wallet %s, got %v", walletNumber, wallet["wallet_number"])
	}
	if wallet["balance"].(float64) != 0 {
		t.Fatalf("fresh wallet should be empty, got %v", wallet["balance"])
	}

	status, _ = doJSON(t, app, fiber.MethodGet, "/api/v1/wallet", nil, nil)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("unauthenticated wallet me: expected 401, got %d", status)
	}

	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "ada@example.com",
		"password": "correct horse battery",
	}, nil)
	if status != fiber.StatusOK {
		t.Fatalf("login: expected 200, got %d (%v)", status, body)
	}
}

func TestWebhookCreditsWalletOnce(t *testing.T) {
	app := newTestApp(t)
	token, _ := registerUser(t, app, "ada@example.com")

	status, dep := doJSON(t, app, fiber.MethodPost, "/api/v1/deposits", map[string]any{
		"amount": 50_000,
	}, bearer(token))
	if status != fiber.StatusCreated {
		t.Fatalf("initialize deposit: expected 201, got %d (%v)", status, dep)
	}
	reference := dep["reference"].(string)

	payload := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q,"amount":50000,"status":"success"}}`, reference))
	signer := deposit.NewService(ledger.NewInMemory(), testWebhookSecret, nil)
	headers := map[string]string{
		fiber.HeaderContentType: fiber.MIMEApplicationJSON,
		"X-Paystack-Signature":  signer.Sign(payload),
	}

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(fiber.MethodPost, "/api/v1/webhooks/paystack", bytes.NewReader(payload))
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := app.Test(req, 5000)
		if err != nil {
			t.Fatalf("webhook delivery %d: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("webhook delivery %d: expected 200, got %d", i, resp.StatusCode)
		}
	}

	status, wallet := doJSON(t, app, fiber.MethodGet, "/api/v1/wallet", nil, bearer(token))
	if status != fiber.StatusOK {
		t.Fatalf("wallet me: expected 200, got %d", status)
	}
	if wallet["balance"].(float64) != 50_000 {
		t.Fatalf("redelivered webhook must credit once, balance %v", wallet["balance"])
	}

	status, st := doJSON(t, app, fiber.MethodGet, "/api/v1/deposits/"+reference, nil, bearer(token))
	if status != fiber.StatusOK || st["status"] != ledger.StatusSuccess {
		t.Fatalf("deposit status: got %d %v", status, st)
	}
}

func TestTransferBetweenUsers(t *testing.T) {
	app := newTestApp(t)
	senderToken, _ := registerUser(t, app, "sender@example.com")
	receiverToken, receiverNumber := registerUser(t, app, "receiver@example.com")

	status, dep := doJSON(t, app, fiber.MethodPost, "/api/v1/deposits", map[string]any{"amount": 10_000}, bearer(senderToken))
	if status != fiber.StatusCreated {
		t.Fatalf("initialize deposit: got %d", status)
	}
	reference := dep["reference"].(string)

	payload := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q,"amount":10000,"status":"success"}}`, reference))
	signer := deposit.NewService(ledger.NewInMemory(), testWebhookSecret, nil)
	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/webhooks/paystack", bytes.NewReader(payload))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("X-Paystack-Signature", signer.Sign(payload))
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("webhook: expected 200, got %d", resp.StatusCode)
	}

	status, senderWallet := doJSON(t, app, fiber.MethodGet, "/api/v1/wallet", nil, bearer(senderToken))
	if status != fiber.StatusOK {
		t.Fatalf("sender wallet: got %d", status)
	}

	status, out := doJSON(t, app, fiber.MethodPost, "/api/v1/transfers", map[string]any{
		"source_wallet_id":          senderWallet["id"],
		"destination_wallet_number": receiverNumber,
		"amount":                    4_000,
	}, bearer(senderToken))
	if status != fiber.StatusOK {
		t.Fatalf("transfer: expected 200, got %d (%v)", status, out)
	}
	if out["source_balance"].(float64) != 6_000 {
		t.Fatalf("expected source balance 6000, got %v", out["source_balance"])
	}

	status, receiverWallet := doJSON(t, app, fiber.MethodGet, "/api/v1/wallet", nil, bearer(receiverToken))
	if status != fiber.StatusOK || receiverWallet["balance"].(float64) != 4_000 {
		t.Fatalf("receiver balance: got %d %v", status, receiverWallet["balance"])
	}
}

func TestAPIKeyGrantsScopedAccess(t *testing.T) {
	app := newTestApp(t)
	token, _ := registerUser(t, app, "ada@example.com")

	status, created := doJSON(t, app, fiber.MethodPost, "/api/v1/keys/", map[string]any{
		"name":        "reporting",
		"permissions": []string{"read"},
		"expiry":      "1D",
	}, bearer(token))
	if status != fiber.StatusCreated {
		t.Fatalf("create key: expected 201, got %d (%v)", status, created)
	}
	secret, _ := created["api_key"].(string)
	if secret == "" {
		t.Fatalf("secret missing from creation response: %v", created)
	}

	status, wallet := doJSON(t, app, fiber.MethodGet, "/api/v1/wallet", nil, map[string]string{"X-API-Key": secret})
	if status != fiber.StatusOK {
		t.Fatalf("read with api key: expected 200, got %d (%v)", status, wallet)
	}

	status, _ = doJSON(t, app, fiber.MethodPost, "/api/v1/transfers", map[string]any{
		"source_wallet_id":          wallet["id"],
		"destination_wallet_number": "0000000000000",
		"amount":                    100,
	}, map[string]string{"X-API-Key": secret})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("read key must not transfer, got %d", status)
	}

	status, _ = doJSON(t, app, fiber.MethodPost, "/api/v1/keys/", map[string]any{
		"name":        "escalation",
		"permissions": []string{"read"},
		"expiry":      "1D",
	}, map[string]string{"X-API-Key": secret})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("api key must not manage keys, got %d", status)
	}
}

func TestAPIKeyPermissionsAreScopedPerRoute(t *testing.T) {
	app := newTestApp(t)
	senderToken, _ := registerUser(t, app, "sender@example.com")
	_, receiverNumber := registerUser(t, app, "receiver@example.com")

	status, dep := doJSON(t, app, fiber.MethodPost, "/api/v1/deposits", map[string]any{"amount": 10_000}, bearer(senderToken))
	if status != fiber.StatusCreated {
		t.Fatalf("initialize deposit: got %d", status)
	}
	reference := dep["reference"].(string)

	payload := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q,"amount":10000,"status":"success"}}`, reference))
	signer := deposit.NewService(ledger.NewInMemory(), testWebhookSecret, nil)
	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/webhooks/paystack", bytes.NewReader(payload))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("X-Paystack-Signature", signer.Sign(payload))
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("webhook: expected 200, got %d", resp.StatusCode)
	}

	status, senderWallet := doJSON(t, app, fiber.MethodGet, "/api/v1/wallet", nil, bearer(senderToken))
	if status != fiber.StatusOK {
		t.Fatalf("sender wallet: got %d", status)
	}

	status, created := doJSON(t, app, fiber.MethodPost, "/api/v1/keys/", map[string]any{
		"name":        "payouts",
		"permissions": []string{"transfer"},
		"expiry":      "1D",
	}, bearer(senderToken))
	if status != fiber.StatusCreated {
		t.Fatalf("create transfer key: got %d (%v)", status, created)
	}
	transferKey := created["api_key"].(string)

	// A transfer-scoped key must reach the transfer route without tripping
	// over the read or deposit checks.
	status, out := doJSON(t, app, fiber.MethodPost, "/api/v1/transfers", map[string]any{
		"source_wallet_id":          senderWallet["id"],
		"destination_wallet_number": receiverNumber,
		"amount":                    3_000,
	}, map[string]string{"X-API-Key": transferKey})
	if status != fiber.StatusOK {
		t.Fatalf("transfer with transfer key: expected 200, got %d (%v)", status, out)
	}
	if out["source_balance"].(float64) != 7_000 {
		t.Fatalf("expected source balance 7000, got %v", out["source_balance"])
	}

	status, _ = doJSON(t, app, fiber.MethodGet, "/api/v1/wallet", nil, map[string]string{"X-API-Key": transferKey})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("transfer key must not read wallets, got %d", status)
	}

	status, created = doJSON(t, app, fiber.MethodPost, "/api/v1/keys/", map[string]any{
		"name":        "collections",
		"permissions": []string{"read", "deposit"},
		"expiry":      "1D",
	}, bearer(senderToken))
	if status != fiber.StatusCreated {
		t.Fatalf("create read+deposit key: got %d (%v)", status, created)
	}
	collectKey := created["api_key"].(string)

	status, _ = doJSON(t, app, fiber.MethodPost, "/api/v1/deposits", map[string]any{"amount": 500}, map[string]string{"X-API-Key": collectKey})
	if status != fiber.StatusCreated {
		t.Fatalf("deposit with read+deposit key: expected 201, got %d", status)
	}

	status, wallet := doJSON(t, app, fiber.MethodGet, "/api/v1/wallet", nil, map[string]string{"X-API-Key": collectKey})
	if status != fiber.StatusOK {
		t.Fatalf("read with read+deposit key: expected 200, got %d", status)
	}
	if wallet["balance"].(float64) != 7_000 {
		t.Fatalf("expected balance 7000, got %v", wallet["balance"])
	}

	status, _ = doJSON(t, app, fiber.MethodPost, "/api/v1/transfers", map[string]any{
		"source_wallet_id":          senderWallet["id"],
		"destination_wallet_number": receiverNumber,
		"amount":                    100,
	}, map[string]string{"X-API-Key": collectKey})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("read+deposit key must not transfer, got %d", status)
	}
}
