package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("PLUMBPOS_DATA_DIR", t.TempDir())
	t.Setenv("PLUMBPOS_SESSION_SECRET", "")
	t.Setenv("PLUMBPOS_ADMIN_PASSWORD", "")

	cfg := Load()
	if cfg.SessionSecret != "" {
		t.Fatalf("expected empty session secret when unset, got %q", cfg.SessionSecret)
	}
	if cfg.AdminPassword != "" {
		t.Fatalf("expected empty admin password when unset, got %q", cfg.AdminPassword)
	}
}

func TestLoadDerivesPathsFromDataDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PLUMBPOS_DATA_DIR", dir)
	t.Setenv("PLUMBPOS_DB_PATH", "")
	t.Setenv("PLUMBPOS_LISTEN_ADDR", "")
	t.Setenv("PLUMBPOS_SESSION_TTL_MINUTES", "nope")

	cfg := Load()
	if cfg.DBPath != filepath.Join(dir, "inventory.db") {
		t.Fatalf("unexpected db path %q", cfg.DBPath)
	}
	if cfg.SessionPath != filepath.Join(dir, "session.json") {
		t.Fatalf("unexpected session path %q", cfg.SessionPath)
	}
	if cfg.Address() != "127.0.0.1:8765" {
		t.Fatalf("expected loopback default, got %q", cfg.Address())
	}
	if cfg.SessionTTLMinutes != 480 {
		t.Fatalf("expected ttl fallback 480, got %d", cfg.SessionTTLMinutes)
	}
}

func TestLoadReadsDotenvInDataDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PLUMBPOS_DATA_DIR", dir)
	t.Setenv("PLUMBPOS_ADMIN_USERNAME", "")
	// t.Setenv restores the variable; godotenv only fills unset keys.
	os.Unsetenv("PLUMBPOS_ADMIN_USERNAME")

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PLUMBPOS_ADMIN_USERNAME=owner\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg := Load()
	if cfg.AdminUsername != "owner" {
		t.Fatalf("expected username from .env, got %q", cfg.AdminUsername)
	}
}
