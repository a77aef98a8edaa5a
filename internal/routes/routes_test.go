package routes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/bytestrike/faucet_bot/internal/auth"
	"github.com/bytestrike/faucet_bot/internal/chain"
	"github.com/bytestrike/faucet_bot/internal/config"
	"github.com/bytestrike/faucet_bot/internal/disbursement"
	"github.com/bytestrike/faucet_bot/internal/ledger"
	"github.com/bytestrike/faucet_bot/internal/logging"
	"github.com/bytestrike/faucet_bot/internal/metrics"
	"github.com/bytestrike/faucet_bot/internal/middleware"
	"github.com/bytestrike/faucet_bot/internal/ratelimit"
)

const wallet = "0x1111111111111111111111111111111111111111"

type staticPinger map[string]string

func (p staticPinger) Ping(context.Context) map[string]string { return p }

type testEnv struct {
	app   *fiber.App
	node  *chain.FakeBackend
	store *ledger.Store
	deps  Deps
}

func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := chain.NewKeySignerFromKey(key)
	node := chain.NewFakeBackend()
	node.SetBalance(signer.Address(), "1.0")

	amount, _ := chain.ParseEther("0.04")
	reserve, _ := chain.ParseEther("0.1")
	threshold, _ := chain.ParseEther("0.05")
	gw, err := chain.NewGateway(node, signer, chain.Config{
		DistributionAmount:        amount,
		MinMasterBalance:          reserve,
		MinWalletBalanceThreshold: threshold,
		ConfirmTimeout:            time.Second,
		PollInterval:              5 * time.Millisecond,
	}, logging.Discard())
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	store := ledger.NewStore(ledger.NewInMemory())
	limiter := ratelimit.New(store.RateLimits, ratelimit.Limits{MaxPerWallet: 1, MaxPerIP: 3}, nil)
	svc, err := disbursement.NewService(disbursement.Deps{
		Store:   store,
		Limiter: limiter,
		Gateway: gw,
		Logger:  logging.Discard(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	deps := Deps{
		Cfg:          config.Config{RequestBurstPerMinute: 10, IdempotencyTTL: time.Minute},
		Logger:       logging.Discard(),
		Gateway:      gw,
		Disbursement: svc,
		Store:        store,
		Metrics:      metrics.NewCollector("test"),
	}
	if mutate != nil {
		mutate(&deps)
	}

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	if err := Setup(app, deps); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return &testEnv{app: app, node: node, store: store, deps: deps}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, payload
}

func decode(t *testing.T, payload []byte) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(payload, &out); err != nil {
		t.Fatalf("decode %s: %v", payload, err)
	}
	return out
}

func TestHealthReportsMasterBalanceInWei(t *testing.T) {
	env := newTestEnv(t, nil)

	status, payload := env.do(t, fiber.MethodGet, "/health", "", nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 got %d: %s", status, payload)
	}
	body := decode(t, payload)
	if body["status"] != "ok" || body["balance"] != "1000000000000000000" {
		t.Fatalf("unexpected body %v", body)
	}
	if body["masterWallet"] != env.deps.Gateway.MasterAddress().Hex() {
		t.Fatalf("unexpected master wallet %v", body["masterWallet"])
	}
}

func TestHealthFailsWhenNodeUnavailable(t *testing.T) {
	env := newTestEnv(t, nil)
	env.node.BalanceErr = errors.New("connection refused")

	status, payload := env.do(t, fiber.MethodGet, "/health", "", nil)
	if status != fiber.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", status)
	}
	if !strings.Contains(decode(t, payload)["error"].(string), "connection refused") {
		t.Fatalf("unexpected body %s", payload)
	}
}

func TestStatusReportsCapacity(t *testing.T) {
	env := newTestEnv(t, nil)

	status, payload := env.do(t, fiber.MethodGet, "/status", "", nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 got %d: %s", status, payload)
	}
	body := decode(t, payload)
	// (1.0 - 0.1) / 0.04 = 22.5
	if body["maxDistributions"] != "22" {
		t.Fatalf("unexpected maxDistributions %v", body["maxDistributions"])
	}
	if body["balance"] != "1000000000000000000" {
		t.Fatalf("expected balance in wei, got %v", body["balance"])
	}
	if body["distributionAmount"] != "0.04" || body["minBalance"] != "0.1" || body["threshold"] != "0.05" {
		t.Fatalf("unexpected amounts %v", body)
	}
}

func TestRequestLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	status, payload := env.do(t, fiber.MethodPost, "/request", `{"walletAddress":"`+wallet+`"}`, nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 got %d: %s", status, payload)
	}
	txHash := decode(t, payload)["txHash"]

	status, payload = env.do(t, fiber.MethodGet, "/requests/"+wallet, "", nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", status)
	}
	record := decode(t, payload)
	if record["status"] != string(ledger.StatusCompleted) || record["txHash"] != txHash {
		t.Fatalf("unexpected record %v", record)
	}

	status, payload = env.do(t, fiber.MethodGet, "/requests", "", nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", status)
	}
	var all []map[string]any
	if err := json.Unmarshal(payload, &all); err != nil || len(all) != 1 {
		t.Fatalf("expected one record, got %s (%v)", payload, err)
	}
}

func TestUnknownAddressIs404(t *testing.T) {
	env := newTestEnv(t, nil)

	status, payload := env.do(t, fiber.MethodGet, "/requests/"+wallet, "", nil)
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404 got %d", status)
	}
	if decode(t, payload)["error"] != "No request found for this address" {
		t.Fatalf("unexpected body %s", payload)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	token := "operator-token-0123456789"
	hash, err := auth.HashToken(token)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	admin, err := auth.NewService(hash)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	env := newTestEnv(t, func(d *Deps) { d.Admin = admin })
	if err := env.store.SaveClaim(context.Background(), ledger.ClaimRecord{Timestamp: 1, Amount: "0.05", Success: true, TxHash: "0x01"}); err != nil {
		t.Fatalf("save claim: %v", err)
	}

	for _, path := range []string{"/requests", "/claims"} {
		if status, _ := env.do(t, fiber.MethodGet, path, "", nil); status != fiber.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", path, status)
		}
	}

	status, payload := env.do(t, fiber.MethodGet, "/claims", "", map[string]string{
		fiber.HeaderAuthorization: "Bearer " + token,
	})
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", status)
	}
	var claims []ledger.ClaimRecord
	if err := json.Unmarshal(payload, &claims); err != nil || len(claims) != 1 || claims[0].TxHash != "0x01" {
		t.Fatalf("unexpected claims %s (%v)", payload, err)
	}

	// The lookup by address stays public.
	if status, _ := env.do(t, fiber.MethodGet, "/requests/"+wallet, "", nil); status != fiber.StatusNotFound {
		t.Fatalf("expected public 404 got %d", status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, fiber.MethodGet, "/health", "", nil)

	status, payload := env.do(t, fiber.MethodGet, "/metrics", "", nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", status)
	}
	if !strings.Contains(string(payload), "test_http_requests_total") {
		t.Fatalf("expected http metrics in output:\n%s", payload)
	}
}

func TestHealthzAggregatesDependencies(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Pinger = staticPinger{"rpc": "ok", "redis": "ok"} })
	if status, _ := env.do(t, fiber.MethodGet, "/healthz", "", nil); status != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", status)
	}

	env = newTestEnv(t, func(d *Deps) { d.Pinger = staticPinger{"rpc": "ok", "postgres": "dial tcp: refused"} })
	status, payload := env.do(t, fiber.MethodGet, "/healthz", "", nil)
	if status != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", status)
	}
	deps := decode(t, payload)["status"].(map[string]any)
	if deps["postgres"] != "dial tcp: refused" {
		t.Fatalf("unexpected dependency status %v", deps)
	}
}

func TestBurstGuardWithRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	env := newTestEnv(t, func(d *Deps) {
		d.Cache = cache
		d.Cfg.RequestBurstPerMinute = 1
	})

	if status, _ := env.do(t, fiber.MethodPost, "/request", `{"walletAddress":"nope"}`, nil); status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 got %d", status)
	}
	status, _ := env.do(t, fiber.MethodPost, "/request", `{"walletAddress":"nope"}`, nil)
	if status != fiber.StatusTooManyRequests {
		t.Fatalf("expected burst 429 got %d", status)
	}
}

func TestSetupRequiresServices(t *testing.T) {
	if err := Setup(fiber.New(), Deps{}); err == nil {
		t.Fatal("expected error for missing services")
	}
}
