package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"plumbpos/backend/internal/domain"
	"plumbpos/backend/internal/store"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Authenticate checks a username and password against the stored bcrypt hash.
// Unknown users and wrong passwords fail the same way.
func (s *Service) Authenticate(ctx context.Context, username string, password string) (domain.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.Account{}, ErrInvalidCredentials
	}
	account, err := s.repo.GetAccountByUsername(ctx, username)
	if err != nil {
		if isNotFound(err) {
			return domain.Account{}, ErrInvalidCredentials
		}
		return domain.Account{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return domain.Account{}, ErrInvalidCredentials
	}
	return *account, nil
}

// EnsureAdmin creates the first admin account when none exists. The creation
// is recorded in history under the new account itself.
func (s *Service) EnsureAdmin(ctx context.Context, username string, password string) (bool, error) {
	req := domain.AccountCreateRequest{Username: strings.TrimSpace(username), Password: password, Role: domain.RoleAdmin}
	if err := s.validateRequest(req); err != nil {
		return false, err
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		return false, err
	}

	created := false
	err = s.repo.RunAtomic(ctx, func(tx store.Tx) error {
		admins, err := tx.CountAccountsByRole(ctx, domain.RoleAdmin)
		if err != nil {
			return err
		}
		if admins > 0 {
			return nil
		}
		account := domain.Account{Username: req.Username, PasswordHash: hash, Role: domain.RoleAdmin, CreatedAt: s.clock()}
		account.ID, err = tx.InsertAccount(ctx, account)
		if err != nil {
			return err
		}
		actor := domain.Actor{AccountID: account.ID, Username: account.Username, Role: account.Role}
		created = true
		return s.recordHistory(ctx, tx, actor, domain.ActionCreateAccount, domain.TableAccounts, account.ID, nil, domain.NewAccountSnapshot(account))
	})
	if err != nil {
		return false, err
	}
	if created {
		log.Printf("[service] bootstrap admin account %q created", req.Username)
	}
	return created, nil
}

func (s *Service) ListAccounts(ctx context.Context) ([]domain.AccountSnapshot, error) {
	accounts, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.AccountSnapshot, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, domain.NewAccountSnapshot(a))
	}
	return out, nil
}

func (s *Service) GetAccount(ctx context.Context, id int64) (domain.AccountSnapshot, error) {
	account, err := s.repo.GetAccountByID(ctx, id)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}
	return domain.NewAccountSnapshot(*account), nil
}

func (s *Service) CreateAccount(ctx context.Context, req domain.AccountCreateRequest) (domain.AccountSnapshot, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := s.validateRequest(req); err != nil {
		return domain.AccountSnapshot{}, err
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}

	account := domain.Account{Username: req.Username, PasswordHash: hash, Role: req.Role, CreatedAt: s.clock()}
	err = s.repo.RunAtomic(ctx, func(tx store.Tx) error {
		id, err := tx.InsertAccount(ctx, account)
		if err != nil {
			return err
		}
		account.ID = id
		return s.recordHistory(ctx, tx, actor, domain.ActionCreateAccount, domain.TableAccounts, id, nil, domain.NewAccountSnapshot(account))
	})
	if err != nil {
		return domain.AccountSnapshot{}, err
	}

	log.Printf("[service] account %q (%s) created by %s", account.Username, account.Role, actor.Username)
	return domain.NewAccountSnapshot(account), nil
}

// UpdateAccount applies only the fields present in req. The last admin cannot
// be demoted.
func (s *Service) UpdateAccount(ctx context.Context, id int64, req domain.AccountUpdateRequest) (domain.AccountSnapshot, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}
	if req.Username != nil {
		trimmed := strings.TrimSpace(*req.Username)
		req.Username = &trimmed
	}
	if err := s.validateRequest(req); err != nil {
		return domain.AccountSnapshot{}, err
	}
	var hash string
	if req.Password != nil {
		if hash, err = hashPassword(*req.Password); err != nil {
			return domain.AccountSnapshot{}, err
		}
	}

	var updated domain.Account
	err = s.repo.RunAtomic(ctx, func(tx store.Tx) error {
		existing, err := tx.GetAccountByID(ctx, id)
		if err != nil {
			return err
		}
		updated = *existing
		if req.Username != nil {
			updated.Username = *req.Username
		}
		if hash != "" {
			updated.PasswordHash = hash
		}
		if req.Role != nil {
			if existing.Role == domain.RoleAdmin && *req.Role != domain.RoleAdmin {
				if err := ensureAnotherAdmin(ctx, tx); err != nil {
					return err
				}
			}
			updated.Role = *req.Role
		}
		if err := tx.UpdateAccount(ctx, updated); err != nil {
			return err
		}
		return s.recordHistory(ctx, tx, actor, domain.ActionUpdateAccount, domain.TableAccounts, id,
			domain.NewAccountSnapshot(*existing), domain.NewAccountSnapshot(updated))
	})
	if err != nil {
		return domain.AccountSnapshot{}, err
	}
	return domain.NewAccountSnapshot(updated), nil
}

// DeleteAccount removes an account and, through the cascade, its history
// rows. The signed-in account and the last admin cannot be deleted.
func (s *Service) DeleteAccount(ctx context.Context, id int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if id == actor.AccountID {
		return store.Invalid("id", "cannot delete the signed-in account")
	}

	err = s.repo.RunAtomic(ctx, func(tx store.Tx) error {
		existing, err := tx.GetAccountByID(ctx, id)
		if err != nil {
			return err
		}
		if existing.Role == domain.RoleAdmin {
			if err := ensureAnotherAdmin(ctx, tx); err != nil {
				return err
			}
		}
		if err := tx.DeleteAccount(ctx, id); err != nil {
			return err
		}
		return s.recordHistory(ctx, tx, actor, domain.ActionDeleteAccount, domain.TableAccounts, id, domain.NewAccountSnapshot(*existing), nil)
	})
	if err != nil {
		return err
	}

	log.Printf("[service] account %d deleted by %s", id, actor.Username)
	return nil
}

func ensureAnotherAdmin(ctx context.Context, tx store.Tx) error {
	admins, err := tx.CountAccountsByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if admins < 2 {
		return store.Invalid("role", "the last admin account must remain an admin")
	}
	return nil
}
