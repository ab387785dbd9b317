package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"plumbpos/backend/internal/store"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02 15:04:05.000000000-07:00"

// Store owns the single connection to the database file. Writers are
// serialized by writeMu and every unit opens with BEGIN IMMEDIATE, so the
// stock read inside a unit already holds the write lock.
type Store struct {
	queries
	db      *sqlx.DB
	writeMu sync.Mutex
}

var _ store.Repository = (*Store)(nil)

func New(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_txlock=immediate&_busy_timeout=5000&_loc=UTC", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{queries: queries{q: db}, db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RunAtomic must not be called from inside fn, and fn must read through tx
// only: the pool holds one connection and the open unit owns it.
func (s *Store) RunAtomic(ctx context.Context, fn func(tx store.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return store.Storage("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(writer{queries{q: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return store.Storage("commit", err)
	}
	return nil
}

var _ store.Tx = writer{}

// queries runs against either the pool or an open transaction.
type queries struct {
	q sqlx.ExtContext
}

// writer is the Tx handed to a unit of work.
type writer struct {
	queries
}

func ts(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func constraintCode(err error) sqlite3.ErrNoExtended {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return sqliteErr.ExtendedCode
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return constraintCode(err) == sqlite3.ErrConstraintUnique
}

func isForeignKeyViolation(err error) bool {
	return constraintCode(err) == sqlite3.ErrConstraintForeignKey
}

func isCheckViolation(err error) bool {
	return constraintCode(err) == sqlite3.ErrConstraintCheck
}
