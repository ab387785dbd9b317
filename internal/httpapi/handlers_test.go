package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"plumbpos/backend/internal/domain"
	"plumbpos/backend/internal/service"
	"plumbpos/backend/internal/store/memory"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T, opts ...service.Option) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, opts...)
	auth := NewAuthManager("test-secret-key-0123456789abcdef", time.Hour, filepath.Join(t.TempDir(), "session.json"), svc)

	return New(svc, auth, "http://localhost")
}

func login(t *testing.T, api *API, username string, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d body=%s", username, res.Code, res.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected non-empty access token")
	}
	return resp.AccessToken
}

func doJSON(t *testing.T, api *API, method string, path string, token string, payload any) *httptest.ResponseRecorder {
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
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func decodeBody[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodGet, "/healthz", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	body := decodeBody[map[string]any](t, res)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "nope"})
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestCreateSaleReturnsCreatedAndMovesStock(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "sales", "sales123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{
		CustomerID: 1,
		Items: []domain.SaleLineRequest{
			{ProductID: 1, Quantity: 3},
			{ProductID: 3, Quantity: 4, DiscountPerUnit: decimal.NewFromInt(5)},
		},
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", res.Code, res.Body.String())
	}
	result := decodeBody[domain.SaleResult](t, res)
	if result.SaleID < 1 || len(result.Items) != 2 {
		t.Fatalf("unexpected sale result: %+v", result)
	}
	// 3*100 + 4*(50-5)
	if !result.TotalPrice.Equal(decimal.NewFromInt(480)) {
		t.Fatalf("expected total 480, got %s", result.TotalPrice)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/products/1", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("get product: expected 200, got %d", res.Code)
	}
	product := decodeBody[domain.Product](t, res)
	if product.QuantitySold != 5 {
		t.Fatalf("expected quantity_sold 5, got %d", product.QuantitySold)
	}

	res = doJSON(t, api, http.MethodGet, fmt.Sprintf("/api/v1/sales/%d", result.SaleID), token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("get sale: expected 200, got %d", res.Code)
	}
	detail := decodeBody[domain.SaleDetail](t, res)
	if detail.CustomerName != "Walk-in Customer" || len(detail.Items) != 2 {
		t.Fatalf("unexpected sale detail: %+v", detail)
	}
}

func TestCreateSaleOversellReturnsConflict(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "sales", "sales123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{
		CustomerID: 1,
		Items:      []domain.SaleLineRequest{{ProductID: 1, Quantity: 9}},
	})
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/products/1", token, nil)
	product := decodeBody[domain.Product](t, res)
	if product.QuantitySold != 2 {
		t.Fatalf("failed sale must not move stock, got quantity_sold %d", product.QuantitySold)
	}
}

func TestCreateSaleValidationAndNotFound(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "sales", "sales123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{CustomerID: 1})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("empty items: expected 400, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/sales", token, map[string]any{"customer_id": 1, "bogus": true})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: expected 400, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{
		CustomerID: 1,
		Items:      []domain.SaleLineRequest{{ProductID: 999, Quantity: 1}},
	})
	if res.Code != http.StatusNotFound {
		t.Fatalf("unknown product: expected 404, got %d body=%s", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/sales/abc", token, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric id: expected 400, got %d", res.Code)
	}
}

func TestDeleteSaleItemRestoresStock(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "admin", "admin123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{
		CustomerID: 1,
		Items: []domain.SaleLineRequest{
			{ProductID: 2, Quantity: 2},
			{ProductID: 4, Quantity: 10},
		},
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("create sale: expected 201, got %d", res.Code)
	}
	result := decodeBody[domain.SaleResult](t, res)

	var teeItem domain.SaleItem
	for _, item := range result.Items {
		if item.ProductID == 4 {
			teeItem = item
		}
	}
	res = doJSON(t, api, http.MethodDelete, fmt.Sprintf("/api/v1/sale-items/%d", teeItem.ID), token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("delete item: expected 200, got %d body=%s", res.Code, res.Body.String())
	}
	body := decodeBody[map[string]domain.Sale](t, res)
	if !body["sale"].TotalPrice.Equal(decimal.NewFromInt(640)) {
		t.Fatalf("expected recomputed total 640, got %s", body["sale"].TotalPrice)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/products/4", token, nil)
	if product := decodeBody[domain.Product](t, res); product.QuantitySold != 0 {
		t.Fatalf("expected tee stock restored, got quantity_sold %d", product.QuantitySold)
	}

	res = doJSON(t, api, http.MethodDelete, fmt.Sprintf("/api/v1/sales/%d", result.SaleID), token, nil)
	if res.Code != http.StatusNoContent {
		t.Fatalf("delete sale: expected 204, got %d", res.Code)
	}
	res = doJSON(t, api, http.MethodGet, fmt.Sprintf("/api/v1/sales/%d", result.SaleID), token, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("deleted sale: expected 404, got %d", res.Code)
	}
}

func TestRoleGates(t *testing.T) {
	api := newTestAPI(t)
	sales := login(t, api, "sales", "sales123")

	cases := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/api/v1/accounts", nil},
		{http.MethodGet, "/api/v1/history", nil},
		{http.MethodGet, "/api/v1/categories", nil},
		{http.MethodPost, "/api/v1/products", domain.ProductRequest{CategoryID: 1, Name: "Coupling"}},
		{http.MethodDelete, "/api/v1/customers/1", nil},
	}
	for _, tc := range cases {
		res := doJSON(t, api, tc.method, tc.path, sales, tc.body)
		if res.Code != http.StatusForbidden {
			t.Fatalf("%s %s: expected 403 for salesperson, got %d", tc.method, tc.path, res.Code)
		}
	}

	res := doJSON(t, api, http.MethodGet, "/api/v1/products", sales, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("salesperson should list products, got %d", res.Code)
	}
}

func TestAccountRoleChangeAppliesToExistingToken(t *testing.T) {
	api := newTestAPI(t)
	admin := login(t, api, "admin", "admin123")
	sales := login(t, api, "sales", "sales123")

	role := domain.RoleManager
	res := doJSON(t, api, http.MethodPut, "/api/v1/accounts/2", admin, domain.AccountUpdateRequest{Role: &role})
	if res.Code != http.StatusOK {
		t.Fatalf("update account: expected 200, got %d body=%s", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/history", sales, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("promoted account should read history, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodDelete, "/api/v1/accounts/2", admin, nil)
	if res.Code != http.StatusNoContent {
		t.Fatalf("delete account: expected 204, got %d", res.Code)
	}
	res = doJSON(t, api, http.MethodGet, "/api/v1/products", sales, nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("token of deleted account: expected 401, got %d", res.Code)
	}
}

func TestHistoryDiffAndRetention(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	api := newTestAPI(t, service.WithClock(clock.Now))
	token := login(t, api, "admin", "admin123")

	res := doJSON(t, api, http.MethodPut, "/api/v1/customers/1", token, domain.CustomerRequest{Name: "Counter Sales", Address: "Main St 4"})
	if res.Code != http.StatusOK {
		t.Fatalf("update customer: expected 200, got %d body=%s", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/history?table=customers", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("list history: expected 200, got %d", res.Code)
	}
	records := decodeBody[map[string][]domain.UserHistoryRecord](t, res)["history"]
	if len(records) != 1 || records[0].Action != domain.ActionUpdateCustomer {
		t.Fatalf("expected one update_customer record, got %+v", records)
	}
	id := records[0].ID

	res = doJSON(t, api, http.MethodGet, fmt.Sprintf("/api/v1/history/%d/diff", id), token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("diff: expected 200, got %d body=%s", res.Code, res.Body.String())
	}
	diff := decodeBody[map[string]any](t, res)
	changed, _ := diff["changed"].([]any)
	if len(changed) != 2 || changed[0] != "address" || changed[1] != "name" {
		t.Fatalf("expected changed [address name], got %v", diff["changed"])
	}

	res = doJSON(t, api, http.MethodDelete, fmt.Sprintf("/api/v1/history/%d", id), token, nil)
	if res.Code != http.StatusConflict {
		t.Fatalf("young record: expected 409, got %d", res.Code)
	}

	clock.Advance(8 * 24 * time.Hour)
	res = doJSON(t, api, http.MethodDelete, fmt.Sprintf("/api/v1/history/%d", id), token, nil)
	if res.Code != http.StatusNoContent {
		t.Fatalf("aged record: expected 204, got %d body=%s", res.Code, res.Body.String())
	}
	res = doJSON(t, api, http.MethodGet, fmt.Sprintf("/api/v1/history/%d", id), token, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("deleted record: expected 404, got %d", res.Code)
	}
}

func TestBulkHistoryDeleteHonoursWindow(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	api := newTestAPI(t, service.WithClock(clock.Now))
	token := login(t, api, "admin", "admin123")

	if res := doJSON(t, api, http.MethodPost, "/api/v1/customers", token, domain.CustomerRequest{Name: "Old Customer"}); res.Code != http.StatusCreated {
		t.Fatalf("create customer: expected 201, got %d", res.Code)
	}
	clock.Advance(10 * 24 * time.Hour)
	if res := doJSON(t, api, http.MethodPost, "/api/v1/customers", token, domain.CustomerRequest{Name: "New Customer"}); res.Code != http.StatusCreated {
		t.Fatalf("create customer: expected 201, got %d", res.Code)
	}

	res := doJSON(t, api, http.MethodDelete, "/api/v1/history?window=2w", token, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("unknown window: expected 400, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodDelete, "/api/v1/history?window=7d", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("bulk delete: expected 200, got %d body=%s", res.Code, res.Body.String())
	}
	resp := decodeBody[domain.BulkDeleteResponse](t, res)
	if resp.Deleted != 1 || resp.Window != "7d" {
		t.Fatalf("expected one record removed for 7d, got %+v", resp)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/history", token, nil)
	records := decodeBody[map[string][]domain.UserHistoryRecord](t, res)["history"]
	if len(records) != 1 {
		t.Fatalf("expected the recent record to survive, got %d", len(records))
	}
}

func TestParseHistoryFilterRejectsBadTime(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/history?from=yesterday", nil)
	if _, err := parseHistoryFilter(req); err == nil {
		t.Fatalf("expected error for non-RFC3339 from")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/history?from=2026-01-01T00:00:00Z&limit=5000&account_id=2", nil)
	filter, err := parseHistoryFilter(req)
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	if filter.Limit != 1000 || filter.AccountID != 2 || filter.From.IsZero() {
		t.Fatalf("unexpected filter: %+v", filter)
	}
}
