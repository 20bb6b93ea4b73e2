package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
	"github.com/jerealeksanteri/skilta-piikki/internal/handler"
	"github.com/jerealeksanteri/skilta-piikki/internal/infra/cache"
	"github.com/jerealeksanteri/skilta-piikki/internal/infra/observability"
	"github.com/jerealeksanteri/skilta-piikki/internal/infra/sqlite"
	"github.com/jerealeksanteri/skilta-piikki/internal/service"
)

type noopSender struct{}

func (noopSender) Send(_ context.Context, _ int64, _ string) error { return nil }

// newTestRouter builds the full HTTP stack on a throwaway database with
// DEV_MODE auth, so any Authorization header resolves to an active admin.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := zap.NewNop()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Seed(context.Background(), nil); err != nil {
		t.Fatalf("seed: %v", err)
	}

	metrics := observability.NewMetrics()
	leaderboardCache := cache.New[[]domain.Member](time.Minute)
	authSvc := service.NewAuthService(store, "", "test-secret", time.Hour, time.Hour, true, logger)
	messagingSvc := service.NewMessagingService(store, noopSender{}, metrics, logger)

	return handler.NewRouter(handler.Services{
		Auth:      authSvc,
		Directory: service.NewDirectoryService(store, leaderboardCache, metrics, logger),
		Catalog:   service.NewCatalogService(store, cache.New[[]domain.Product](time.Minute), metrics, logger),
		Ledger:    service.NewLedgerService(store, messagingSvc, leaderboardCache, metrics, logger),
		Fiscal:    service.NewFiscalService(store, messagingSvc, leaderboardCache, metrics, logger),
		Messaging: messagingSvc,
	}, store, metrics, []string{"*"}, logger)
}

func doRequest(t *testing.T, router http.Handler, method, path, body string, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorized {
		req.Header.Set("Authorization", "tma dev")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/healthz", "", false)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
}

func TestReadyz(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/readyz", "", false)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/metrics", "", false)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestV1_RequiresAuthorization(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/v1/me", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for unsupported scheme, got %d", rec.Code)
	}
}

func TestV1_Me(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/v1/me", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var profile domain.Profile
	if err := json.Unmarshal(rec.Body.Bytes(), &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.FirstName != "Dev" {
		t.Errorf("expected dev member, got %s", profile.FirstName)
	}
	if !profile.TotalBalance.IsZero() {
		t.Errorf("expected zero total balance, got %s", profile.TotalBalance)
	}
}

func TestV1_TokenExchange(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/auth/token", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var token domain.TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &token); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if token.AccessToken == "" || token.TokenType != "bearer" {
		t.Fatalf("unexpected token response: %+v", token)
	}

	// The issued token works as a credential on its own.
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with bearer token, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestV1_PurchaseFlow(t *testing.T) {
	router := newTestRouter(t)

	// The seeded catalog serves the product list.
	rec := doRequest(t, router, http.MethodGet, "/v1/products", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var listing struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(listing.Products) == 0 {
		t.Fatal("expected seeded products")
	}

	rec = doRequest(t, router, http.MethodPost, "/v1/transactions/purchase",
		`{"product_id":`+jsonID(listing.Products[0].ID)+`,"quantity":2}`, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var tx domain.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &tx); err != nil {
		t.Fatalf("decode transaction: %v", err)
	}
	if !tx.Amount.IsNegative() {
		t.Errorf("expected negative purchase amount, got %s", tx.Amount)
	}

	rec = doRequest(t, router, http.MethodGet, "/v1/transactions/mine", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var history struct {
		Transactions []domain.Transaction `json:"transactions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Transactions) != 1 {
		t.Errorf("expected 1 transaction, got %d", len(history.Transactions))
	}
}

func TestV1_ValidationErrors(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/transactions/purchase", `not json`, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPut, "/v1/transactions/abc/approve", "", true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-numeric id, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPut, "/v1/transactions/9999/approve", "", true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown transaction, got %d", rec.Code)
	}
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
