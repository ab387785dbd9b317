package httpapi

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"plumbpos/backend/internal/domain"
	"plumbpos/backend/internal/service"
	"plumbpos/backend/internal/store/memory"
)

func newTestAuth(t *testing.T) (*AuthManager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.json")
	svc := service.New(memory.NewSeeded())
	return NewAuthManager("test-secret-key-0123456789abcdef", time.Hour, path, svc), path
}

func TestAuthManagerLoginWritesSessionFile(t *testing.T) {
	auth, path := newTestAuth(t)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleAdmin || resp.AccountID != 1 {
		t.Fatalf("unexpected login response: %+v", resp)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected session file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected session file mode 0600, got %o", perm)
	}

	session, err := auth.Session(context.Background())
	if err != nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	if session.AccessToken != resp.AccessToken || session.Username != "admin" {
		t.Fatalf("session does not match login: %+v", session)
	}
}

func TestAuthManagerRejectsWrongPassword(t *testing.T) {
	auth, path := newTestAuth(t)

	_, err := auth.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin124"})
	if !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	_, err = auth.Login(context.Background(), domain.LoginRequest{Username: "ghost", Password: "admin123"})
	if !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("failed login must not write a session file")
	}
}

func TestAuthManagerParseToken(t *testing.T) {
	auth, _ := newTestAuth(t)
	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "sales", Password: "sales123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := auth.ParseToken(context.Background(), resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.AccountID != 2 || actor.Role != domain.RoleSalesperson {
		t.Fatalf("unexpected actor: %+v", actor)
	}

	other := NewAuthManager("another-secret-0123456789abcdef", time.Hour, "", service.New(memory.NewSeeded()))
	if _, err := other.ParseToken(context.Background(), resp.AccessToken); err == nil {
		t.Fatalf("token signed with another secret must be rejected")
	}
	if _, err := auth.ParseToken(context.Background(), "not-a-token"); err == nil {
		t.Fatalf("garbage token must be rejected")
	}
}

func TestAuthManagerLogoutRevokesAndClearsSession(t *testing.T) {
	auth, path := newTestAuth(t)
	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := auth.Logout(resp.AccessToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := auth.ParseToken(context.Background(), resp.AccessToken); err == nil {
		t.Fatalf("revoked token must be rejected")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected session file removed, stat err=%v", err)
	}
	if _, err := auth.Session(context.Background()); !errors.Is(err, errNoSession) {
		t.Fatalf("expected errNoSession after logout, got %v", err)
	}
}

func TestAuthManagerSessionDropsStaleFile(t *testing.T) {
	auth, path := newTestAuth(t)
	if err := os.WriteFile(path, []byte(`{"access_token":"stale","username":"admin"}`), 0o600); err != nil {
		t.Fatalf("write stale session: %v", err)
	}

	if _, err := auth.Session(context.Background()); !errors.Is(err, errNoSession) {
		t.Fatalf("expected errNoSession for stale token, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("stale session file should be removed")
	}
}

func TestSessionEndpointAndLogout(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodGet, "/api/v1/auth/session", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if body := decodeBody[map[string]any](t, res); body["active"] != false {
		t.Fatalf("expected inactive session before login, got %v", body)
	}

	token := login(t, api, "admin", "admin123")
	res = doJSON(t, api, http.MethodGet, "/api/v1/auth/session", "", nil)
	if body := decodeBody[map[string]any](t, res); body["active"] != true {
		t.Fatalf("expected active session after login, got %v", body)
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/auth/logout", token, nil)
	if res.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", res.Code)
	}
	res = doJSON(t, api, http.MethodGet, "/api/v1/products", token, nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token: expected 401, got %d", res.Code)
	}
	res = doJSON(t, api, http.MethodGet, "/api/v1/auth/session", "", nil)
	if body := decodeBody[map[string]any](t, res); body["active"] != false {
		t.Fatalf("expected inactive session after logout, got %v", body)
	}
}
