package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"plumbpos/backend/internal/domain"
)

var (
	errInvalidToken = errors.New("invalid or expired token")
	errNoSession    = errors.New("no active session")
)

// Accounts is what the session gate needs from the service layer.
type Accounts interface {
	Authenticate(ctx context.Context, username string, password string) (domain.Account, error)
	GetAccount(ctx context.Context, id int64) (domain.AccountSnapshot, error)
}

// AuthManager signs session tokens and mirrors the current session into a
// file so the desktop shell can resume it after a restart.
type AuthManager struct {
	mu          sync.Mutex
	secret      []byte
	tokenTTL    time.Duration
	sessionPath string
	accounts    Accounts
	revoked     map[string]time.Time
}

type sessionClaims struct {
	jwtlib.RegisteredClaims
	Username string `json:"username"`
	Role     string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, sessionPath string, accounts Accounts) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:      []byte(secret),
		tokenTTL:    tokenTTL,
		sessionPath: sessionPath,
		accounts:    accounts,
		revoked:     make(map[string]time.Time),
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	account, err := a.accounts.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(account, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	resp := domain.LoginResponse{
		AccessToken: token,
		AccountID:   account.ID,
		Username:    account.Username,
		Role:        account.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}
	if err := a.writeSession(resp); err != nil {
		log.Printf("[auth] WARN: failed to persist session file: %v", err)
	}
	log.Printf("[auth] %s signed in", account.Username)
	return resp, nil
}

// ParseToken verifies the signature and expiry, rejects revoked tokens and
// reloads the account so a role change or delete takes effect immediately.
func (a *AuthManager) ParseToken(ctx context.Context, tokenStr string) (domain.Actor, error) {
	claims, err := a.parseClaims(tokenStr)
	if err != nil {
		return domain.Actor{}, err
	}

	a.mu.Lock()
	_, revoked := a.revoked[claims.ID]
	a.mu.Unlock()
	if revoked {
		return domain.Actor{}, errInvalidToken
	}

	accountID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || accountID < 1 {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	account, err := a.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return domain.Actor{}, errInvalidToken
	}
	return domain.Actor{AccountID: account.ID, Username: account.Username, Role: account.Role}, nil
}

// Logout revokes the token and clears the session file.
func (a *AuthManager) Logout(tokenStr string) error {
	claims, err := a.parseClaims(tokenStr)
	if err != nil {
		return err
	}

	now := time.Now()
	expires := now.Add(a.tokenTTL)
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	a.mu.Lock()
	a.revoked[claims.ID] = expires
	for jti, expires := range a.revoked {
		if expires.Before(now) {
			delete(a.revoked, jti)
		}
	}
	a.mu.Unlock()

	if err := a.clearSession(); err != nil {
		log.Printf("[auth] WARN: failed to clear session file: %v", err)
	}
	log.Printf("[auth] %s signed out", claims.Username)
	return nil
}

// Session returns the persisted session if its token is still accepted.
func (a *AuthManager) Session(ctx context.Context) (domain.LoginResponse, error) {
	if a.sessionPath == "" {
		return domain.LoginResponse{}, errNoSession
	}
	raw, err := os.ReadFile(a.sessionPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.LoginResponse{}, errNoSession
		}
		return domain.LoginResponse{}, err
	}

	var session domain.LoginResponse
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.LoginResponse{}, errNoSession
	}
	actor, err := a.ParseToken(ctx, session.AccessToken)
	if err != nil {
		_ = a.clearSession()
		return domain.LoginResponse{}, errNoSession
	}
	session.Role = actor.Role
	session.Username = actor.Username
	return session, nil
}

func (a *AuthManager) parseClaims(tokenStr string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer("plumbpos"))
	if err != nil || !token.Valid || claims.ID == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

func (a *AuthManager) sign(account domain.Account, expiresAt time.Time) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(account.ID, 10),
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "plumbpos",
		},
		Username: account.Username,
		Role:     account.Role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) writeSession(session domain.LoginResponse) error {
	if a.sessionPath == "" {
		return nil
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(a.sessionPath), 0o700); err != nil {
		return err
	}
	tmp := a.sessionPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, a.sessionPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

func (a *AuthManager) clearSession() error {
	if a.sessionPath == "" {
		return nil
	}
	if err := os.Remove(a.sessionPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
