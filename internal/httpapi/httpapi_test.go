package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"frentedecaixa/backend/internal/domain"
	"frentedecaixa/backend/internal/payment"
	"frentedecaixa/backend/internal/service"
	"frentedecaixa/backend/internal/store/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin123")
	t.Setenv("SEED_CASHIER_PASSWORD", "caixa123")

	repo := memory.NewSeeded()
	authorize := payment.AuthorizerFunc(func(_ context.Context, _ int64, _ []domain.PaymentAllocation) (string, error) {
		return "aut_test", nil
	})
	svc := service.New(repo, nil, authorize, service.Options{SaleResetAfter: time.Hour})
	auth := NewAuthManager("test-secret-key-for-httpapi-tests", time.Hour, repo)

	srv := httptest.NewServer(New(svc, auth, "http://localhost:5173").Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func login(t *testing.T, srv *httptest.Server, username, password string) string {
	t.Helper()

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d body %v", username, resp.StatusCode, body)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("login %s: empty token", username)
	}
	return token
}

func TestLoginAndHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	if resp.StatusCode != http.StatusOK || body["ok"] != true {
		t.Fatalf("healthz: status %d body %v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/login", "", map[string]string{
		"username": "nathan", "password": "wrong-password",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad credentials: status %d", resp.StatusCode)
	}

	token := login(t, srv, "NATHAN", "admin123")

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/v1/products", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list products: status %d", resp.StatusCode)
	}
	products, _ := body["products"].([]any)
	if len(products) != 6 {
		t.Fatalf("expected 6 seeded products, got %d", len(products))
	}
}

func TestLoginRateLimit(t *testing.T) {
	srv := newTestServer(t)

	var last int
	for i := 0; i < 6; i++ {
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/login", "", map[string]string{
			"username": "nathan", "password": "wrong",
		})
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated failures, got %d", last)
	}
}

func TestRoleEnforcement(t *testing.T) {
	srv := newTestServer(t)
	cashier := login(t, srv, "teste", "caixa123")

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/v1/employees", cashier, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cashier listing employees: status %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/audit-logs", cashier, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cashier reading audit logs: status %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/products", cashier, map[string]any{
		"name": "Novo", "price_cents": 100, "group_id": "grp_geral",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cashier creating product: status %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/products", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous listing products: status %d", resp.StatusCode)
	}
}

func TestSaleFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	cashier := login(t, srv, "teste", "caixa123")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sales", cashier, map[string]string{})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("open sale: status %d body %v", resp.StatusCode, body)
	}
	saleID, _ := body["sale_id"].(string)
	if saleID == "" {
		t.Fatal("open sale: empty sale_id")
	}
	base := srv.URL + "/api/v1/sales/" + saleID

	brahma := "prd_brahma"
	pao := "prd_pao"

	for i := 0; i < 2; i++ {
		resp, body = doJSON(t, http.MethodPost, base+"/lines", cashier, map[string]string{"product_id": brahma})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("add line: status %d body %v", resp.StatusCode, body)
		}
	}
	resp, body = doJSON(t, http.MethodPost, base+"/lines", cashier, map[string]string{"product_id": pao})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add line: status %d", resp.StatusCode)
	}
	resp, body = doJSON(t, http.MethodPatch, base+"/lines/"+pao, cashier, map[string]int{"delta": 2})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("change quantity: status %d", resp.StatusCode)
	}
	if got := body["subtotal_cents"]; got != float64(1300) {
		t.Fatalf("subtotal after lines: %v", got)
	}

	// Submitting before any allocation exists is refused.
	resp, _ = doJSON(t, http.MethodPost, base+"/submit", cashier, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("submit without allocations: status %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodPost, base+"/allocations", cashier, map[string]string{"method": "cash"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add allocation: status %d", resp.StatusCode)
	}
	allocs, _ := body["allocations"].([]any)
	if len(allocs) != 1 {
		t.Fatalf("expected 1 allocation, got %d", len(allocs))
	}
	allocID := allocs[0].(map[string]any)["id"].(string)

	resp, body = doJSON(t, http.MethodPut, base+"/allocations/"+allocID, cashier, map[string]int{"amount_cents": 1000})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set allocation: status %d", resp.StatusCode)
	}
	if body["state"] != "selecting" {
		t.Fatalf("state with 300 remaining: %v", body["state"])
	}

	resp, body = doJSON(t, http.MethodPost, base+"/submit", cashier, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unbalanced submit: status %d", resp.StatusCode)
	}
	if body["remainder_cents"] != float64(300) {
		t.Fatalf("remainder in error payload: %v", body["remainder_cents"])
	}

	resp, body = doJSON(t, http.MethodPost, base+"/allocations", cashier, map[string]string{"method": "debit"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add second allocation: status %d", resp.StatusCode)
	}
	allocs = body["allocations"].([]any)
	debitID := allocs[1].(map[string]any)["id"].(string)

	resp, body = doJSON(t, http.MethodPut, base+"/allocations/"+debitID, cashier, map[string]int{"amount_cents": 300})
	if resp.StatusCode != http.StatusOK || body["state"] != "balanced" {
		t.Fatalf("balance sale: status %d state %v", resp.StatusCode, body["state"])
	}

	resp, body = doJSON(t, http.MethodPost, base+"/submit", cashier, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: status %d body %v", resp.StatusCode, body)
	}
	receipt := body["receipt"].(map[string]any)
	if receipt["total_cents"] != float64(1300) || receipt["auth_code"] != "aut_test" {
		t.Fatalf("unexpected receipt: %v", receipt)
	}

	resp, body = doJSON(t, http.MethodGet, base, cashier, nil)
	if resp.StatusCode != http.StatusOK || body["state"] != "completed" {
		t.Fatalf("post-submit snapshot: status %d state %v", resp.StatusCode, body["state"])
	}
}

func TestWithdrawAndErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	admin := login(t, srv, "nathan", "admin123")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/register/withdrawals", admin, map[string]any{
		"amount_cents": 80000, "description": "sangria grande demais",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("oversized withdrawal: status %d body %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/v1/register/withdrawals", admin, map[string]any{
		"amount_cents": 20000,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("withdrawal: status %d body %v", resp.StatusCode, body)
	}
	entry := body["entry"].(map[string]any)
	if entry["type"] != "sangria" || entry["description"] != "Sangria" {
		t.Fatalf("unexpected ledger entry: %v", entry)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/v1/register?ledger=true", admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get register: status %d", resp.StatusCode)
	}
	register := body["register"].(map[string]any)
	if register["current_cents"] != float64(55050) {
		t.Fatalf("register balance after withdrawal: %v", register["current_cents"])
	}
	if _, ok := body["ledger"].([]any); !ok {
		t.Fatal("expected ledger in response")
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/products/prd_missing", admin, nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET on product action route: status %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/products/prd_missing", admin, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("delete missing product: status %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/sales/ses_missing", admin, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("abandon missing sale: status %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/groups/grp_bebidas", admin, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("delete group in use: status %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/groups/grp_geral", admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete empty group: status %d", resp.StatusCode)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	srv := newTestServer(t)
	admin := login(t, srv, "nathan", "admin123")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/groups", admin, map[string]any{
		"name": "Doces", "surprise": true,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field: status %d", resp.StatusCode)
	}
}
