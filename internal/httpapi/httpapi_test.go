package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"tezgahpos/internal/domain"
	"tezgahpos/internal/service"
	"tezgahpos/internal/store/memory"
)

func newTestAPI(t *testing.T) (*API, http.Handler) {
	t.Helper()
	repo := memory.NewSeeded("admin-secret")
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	svc := service.New(repo, logger, nil)
	auth := NewAuthManager("test-secret", time.Hour, repo)
	api := New(svc, auth, nil, nil, nil, "*", logger)
	return api, api.Handler()
}

func login(t *testing.T, handler http.Handler, username, password string) domain.LoginResponse {
	t.Helper()
	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.RemoteAddr = fmt.Sprintf("10.0.0.%d:1234", len(username))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestLoginIssuesUsableToken(t *testing.T) {
	_, handler := newTestAPI(t)

	resp := login(t, handler, "admin", "admin-secret")
	if resp.AccessToken == "" {
		t.Fatalf("empty access token")
	}
	if resp.Role != "admin" {
		t.Fatalf("role = %q, want admin", resp.Role)
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", resp.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("authorized list returned %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	_, handler := newTestAPI(t)

	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	_, handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products", "garbage-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestProductLifecycleOverHTTP(t *testing.T) {
	_, handler := newTestAPI(t)
	token := login(t, handler, "admin", "admin-secret").AccessToken

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", token, domain.ProductRequest{
		SKU:      "COLA-1",
		Name:     "Cola 1L",
		StockQty: 12,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil || created.ID == 0 {
		t.Fatalf("create response: %s", rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/v1/products/%d", created.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/v1/products/%d/prices", created.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("price quote returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodDelete, fmt.Sprintf("/api/v1/products/%d", created.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete returned %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSaleRoundTripOverHTTP(t *testing.T) {
	_, handler := newTestAPI(t)
	token := login(t, handler, "admin", "admin-secret").AccessToken

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", token, domain.ProductRequest{
		SKU:      "AYRAN",
		Name:     "Ayran",
		StockQty: 10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed product returned %d: %s", rec.Code, rec.Body.String())
	}
	var product struct {
		ID int64 `json:"id"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &product)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"customer_id": domain.WalkInCustomerID,
		"lines": []map[string]any{
			{"product_id": product.ID, "quantity": 2, "unit_price": "15"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale returned %d: %s", rec.Code, rec.Body.String())
	}
	var sale struct {
		ID int64 `json:"id"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &sale)

	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/v1/sales/%d", sale.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get sale returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodDelete, fmt.Sprintf("/api/v1/sales/%d", sale.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete sale returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/v1/sales/%d", sale.ID), token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted sale lookup returned %d, want 404", rec.Code)
	}
}

func TestValidationErrorsReturn400(t *testing.T) {
	_, handler := newTestAPI(t)
	token := login(t, handler, "admin", "admin-secret").AccessToken

	// name is required
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", token, map[string]any{
		"sku": "NO-NAME",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}

	// unknown fields are rejected
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products", token, map[string]any{
		"sku": "X", "name": "X", "bogus_field": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownProductReturns404(t *testing.T) {
	_, handler := newTestAPI(t)
	token := login(t, handler, "admin", "admin-secret").AccessToken

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products/99999", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestCashierCannotDeleteSales(t *testing.T) {
	_, handler := newTestAPI(t)
	adminToken := login(t, handler, "admin", "admin-secret").AccessToken

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/users", adminToken, domain.UserCreateRequest{
		Username: "cashier1",
		Password: "cashier-pass",
		Role:     "cashier",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create cashier returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products", adminToken, domain.ProductRequest{
		SKU: "SU", Name: "Su", StockQty: 5,
	})
	var product struct {
		ID int64 `json:"id"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &product)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", adminToken, map[string]any{
		"lines": []map[string]any{{"product_id": product.ID, "quantity": 1, "unit_price": "5"}},
	})
	var sale struct {
		ID int64 `json:"id"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &sale)

	cashierToken := login(t, handler, "cashier1", "cashier-pass").AccessToken
	rec = doJSON(t, handler, http.MethodDelete, fmt.Sprintf("/api/v1/sales/%d", sale.ID), cashierToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cashier delete returned %d, want 403: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/users", cashierToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cashier user list returned %d, want 403", rec.Code)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	auth := NewAuthManager("secret-one", time.Hour, memory.NewSeeded("pw"))
	other := NewAuthManager("secret-two", time.Hour, memory.NewSeeded("pw"))

	resp, err := auth.Login(httptest.NewRequest(http.MethodGet, "/", nil).Context(), domain.LoginRequest{
		Username: "admin", Password: "pw",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := auth.ParseToken(resp.AccessToken); err != nil {
		t.Fatalf("own token should parse: %v", err)
	}
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("token signed with another secret must be rejected")
	}
}
