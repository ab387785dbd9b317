package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"plumbpos/backend/internal/domain"
	"plumbpos/backend/internal/service"
	"plumbpos/backend/internal/store"
)

var (
	allRoles   = domain.Roles
	salesRoles = []string{domain.RoleAdmin, domain.RoleManager, domain.RoleSalesperson}
	stockRoles = []string{domain.RoleAdmin, domain.RoleManager, domain.RoleSecretary}
	leadRoles  = []string{domain.RoleAdmin, domain.RoleManager}
	adminOnly  = []string{domain.RoleAdmin}
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

// Allow records an attempt for key and reports whether it stays under the limit.
func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := slices.DeleteFunc(l.entries[key], func(at time.Time) bool { return !at.After(cutoff) })
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/logout", a.requireAuth(a.handleLogout, allRoles...))
	mux.HandleFunc("/api/v1/auth/session", a.handleSession)

	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales, salesRoles...))
	mux.HandleFunc("/api/v1/sales/", a.requireAuth(a.handleSaleActions, salesRoles...))
	mux.HandleFunc("/api/v1/sale-items/", a.requireAuth(a.handleSaleItemActions, salesRoles...))

	mux.HandleFunc("/api/v1/customers", a.requireAuth(a.handleCustomers, allRoles...))
	mux.HandleFunc("/api/v1/customers/", a.requireAuth(a.handleCustomerActions, allRoles...))
	mux.HandleFunc("/api/v1/categories", a.requireAuth(a.handleCategories, stockRoles...))
	mux.HandleFunc("/api/v1/categories/", a.requireAuth(a.handleCategoryActions, stockRoles...))
	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, allRoles...))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductActions, allRoles...))

	mux.HandleFunc("/api/v1/accounts", a.requireAuth(a.handleAccounts, adminOnly...))
	mux.HandleFunc("/api/v1/accounts/", a.requireAuth(a.handleAccountActions, adminOnly...))

	mux.HandleFunc("/api/v1/history", a.requireAuth(a.handleHistory, leadRoles...))
	mux.HandleFunc("/api/v1/history/", a.requireAuth(a.handleHistoryActions, leadRoles...))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		actor, err := a.auth.ParseToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authorization[len("Bearer "):])
	return token, token != ""
}

func isRoleAllowed(role string, allowed []string) bool {
	return slices.Contains(allowed, role)
}

// allowRoles narrows a route to fewer roles for one method.
func allowRoles(w http.ResponseWriter, r *http.Request, roles ...string) bool {
	actor, _ := service.ActorFromContext(r.Context())
	if !isRoleAllowed(actor.Role, roles) {
		writeError(w, http.StatusForbidden, errors.New("forbidden role"))
		return false
	}
	return true
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	token, _ := bearerToken(r)
	if err := a.auth.Logout(token); err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	session, err := a.auth.Session(r.Context())
	if err != nil {
		if errors.Is(err, errNoSession) {
			writeJSON(w, http.StatusOK, map[string]any{"active": false})
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": true, "session": session})
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := domain.SaleFilter{
			CustomerID: parseID(r.URL.Query().Get("customer_id")),
			Limit:      parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500),
		}
		sales, err := a.service.ListSales(r.Context(), filter)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
	case http.MethodPost:
		var req domain.SaleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		result, err := a.service.CreateSale(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "/api/v1/sales/")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		detail, err := a.service.GetSale(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	case http.MethodPut:
		var req domain.SaleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		result, err := a.service.UpdateSaleAndItems(r.Context(), id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case http.MethodDelete:
		if err := a.service.DeleteSale(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSaleItemActions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "/api/v1/sale-items/")
	if !ok {
		return
	}
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	sale, err := a.service.DeleteSaleItem(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		customers, err := a.service.ListCustomers(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
	case http.MethodPost:
		var req domain.CustomerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		customer, err := a.service.CreateCustomer(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, customer)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomerActions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "/api/v1/customers/")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		customer, err := a.service.GetCustomer(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, customer)
	case http.MethodPut:
		var req domain.CustomerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		customer, err := a.service.UpdateCustomer(r.Context(), id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, customer)
	case http.MethodDelete:
		if !allowRoles(w, r, leadRoles...) {
			return
		}
		if err := a.service.DeleteCustomer(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		categories, err := a.service.ListCategories(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
	case http.MethodPost:
		var req domain.CategoryRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		category, err := a.service.CreateCategory(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, category)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCategoryActions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "/api/v1/categories/")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req domain.CategoryRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		category, err := a.service.UpdateCategory(r.Context(), id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, category)
	case http.MethodDelete:
		if err := a.service.DeleteCategory(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		products, err := a.service.ListProducts(r.Context(), parseID(r.URL.Query().Get("category_id")))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		if !allowRoles(w, r, stockRoles...) {
			return
		}
		var req domain.ProductRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, product)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "/api/v1/products/")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
	case http.MethodPut:
		if !allowRoles(w, r, stockRoles...) {
			return
		}
		var req domain.ProductRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.UpdateProduct(r.Context(), id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
	case http.MethodDelete:
		if !allowRoles(w, r, stockRoles...) {
			return
		}
		if err := a.service.DeleteProduct(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		accounts, err := a.service.ListAccounts(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
	case http.MethodPost:
		var req domain.AccountCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		account, err := a.service.CreateAccount(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, account)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleAccountActions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "/api/v1/accounts/")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req domain.AccountUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		account, err := a.service.UpdateAccount(r.Context(), id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, account)
	case http.MethodDelete:
		if err := a.service.DeleteAccount(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter, err := parseHistoryFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		records, err := a.service.ListHistory(r.Context(), filter)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": records})
	case http.MethodDelete:
		if !allowRoles(w, r, adminOnly...) {
			return
		}
		resp, err := a.service.BulkDeleteHistory(r.Context(), r.URL.Query().Get("window"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleHistoryActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/history/"
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	rawID, action, _ := strings.Cut(tail, "/")
	id := parseID(rawID)
	if id < 1 {
		writeError(w, http.StatusBadRequest, errors.New("history id required"))
		return
	}

	switch {
	case action == "diff" && r.Method == http.MethodGet:
		diff, err := a.service.HistoryDiff(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, diff)
	case action != "":
		writeError(w, http.StatusNotFound, errors.New("unknown history action"))
	case r.Method == http.MethodGet:
		record, err := a.service.GetHistory(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
	case r.Method == http.MethodDelete:
		if !allowRoles(w, r, adminOnly...) {
			return
		}
		if err := a.service.DeleteHistory(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

func parseHistoryFilter(r *http.Request) (domain.HistoryFilter, error) {
	q := r.URL.Query()
	filter := domain.HistoryFilter{
		AccountID: parseID(q.Get("account_id")),
		Table:     strings.TrimSpace(q.Get("table")),
		Action:    strings.TrimSpace(q.Get("action")),
		Limit:     parsePositiveLimit(q.Get("limit"), 200, 1000),
	}
	for key, dest := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		raw := strings.TrimSpace(q.Get(key))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return domain.HistoryFilter{}, fmt.Errorf("%s must be RFC3339", key)
		}
		*dest = t.UTC()
	}
	return filter, nil
}

// pathID reads the numeric id that follows prefix.
func pathID(w http.ResponseWriter, r *http.Request, prefix string) (int64, bool) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	id := parseID(tail)
	if id < 1 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("numeric id required after %s", prefix))
		return 0, false
	}
	return id, true
}

func parseID(raw string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id < 1 {
		return 0
	}
	return id
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 1 {
		return fallback
	}
	if parsed > max {
		return max
	}
	return parsed
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// writeServiceError maps the store error kinds onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientStock), errors.Is(err, store.ErrRetentionWindow):
		status = http.StatusConflict
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause goes to the log only.
	msg := err.Error()
	if status >= 500 {
		log.Printf("[http] internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[http] %s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}
