package disbursement

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/bytestrike/faucet_bot/internal/middleware"
)

func setupHandlerApp(t *testing.T, masterEther string) (*fiber.App, *fixture) {
	t.Helper()
	f := newFixture(t, masterEther)
	h := NewHandler(f.svc)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	app.Post("/request", h.Request)
	app.Get("/requests", h.List)
	app.Get("/requests/:address", h.Get)
	return app, f
}

func postRequest(t *testing.T, app *fiber.App, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/request", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(resp.Body)
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode %s: %v", payload, err)
	}
	return resp.StatusCode, decoded
}

func TestHandlerRequestFlow(t *testing.T) {
	app, _ := setupHandlerApp(t, "1.0")

	status, body := postRequest(t, app, `{"walletAddress":"`+userWallet+`"}`)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 got %d: %v", status, body)
	}
	if body["success"] != true || body["message"] != SuccessMessage || body["amount"] != "0.04" {
		t.Fatalf("unexpected success body %v", body)
	}

	status, body = postRequest(t, app, `{"walletAddress":"`+userWallet+`"}`)
	if status != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", status)
	}
	if !strings.HasPrefix(body["error"].(string), "Rate limit exceeded for wallet") {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestHandlerRejectsInvalidAddress(t *testing.T) {
	app, _ := setupHandlerApp(t, "1.0")

	status, body := postRequest(t, app, `{"walletAddress":"nope"}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 got %d", status)
	}
	if body["error"] != "Invalid wallet address" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestHandlerDistributionFailureIs500(t *testing.T) {
	app, _ := setupHandlerApp(t, "0.05")

	status, body := postRequest(t, app, `{"walletAddress":"`+userWallet+`"}`)
	if status != fiber.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", status)
	}
	if !strings.HasPrefix(body["error"].(string), "Insufficient master balance") {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestHandlerGetRequest(t *testing.T) {
	app, _ := setupHandlerApp(t, "1.0")

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/requests/"+userWallet, nil), -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.StatusCode)
	}
	payload, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(payload), "No request found for this address") {
		t.Fatalf("unexpected body %s", payload)
	}

	postRequest(t, app, `{"walletAddress":"`+userWallet+`"}`)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/requests/"+userWallet, nil), -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	var record map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if record["status"] != "completed" {
		t.Fatalf("expected completed record, got %v", record)
	}

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/requests", nil), -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	var all []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	resp.Body.Close()
	if len(all) != 1 {
		t.Fatalf("expected one record, got %d", len(all))
	}
}
