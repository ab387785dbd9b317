package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DataDir           string
	DBPath            string
	SessionPath       string
	ListenAddr        string
	AllowedOrigin     string
	SessionSecret     string
	SessionTTLMinutes int
	AdminUsername     string
	AdminPassword     string
}

// Load reads the environment after merging in <data_dir>/.env and ./.env.
// Variables already set in the process win over both files.
func Load() Config {
	loadDotenv(".env")
	dataDir := getEnv("PLUMBPOS_DATA_DIR", defaultDataDir())
	loadDotenv(filepath.Join(dataDir, ".env"))

	ttl, err := strconv.Atoi(getEnv("PLUMBPOS_SESSION_TTL_MINUTES", "480"))
	if err != nil || ttl < 1 {
		ttl = 480
	}

	return Config{
		DataDir:           dataDir,
		DBPath:            getEnv("PLUMBPOS_DB_PATH", filepath.Join(dataDir, "inventory.db")),
		SessionPath:       filepath.Join(dataDir, "session.json"),
		ListenAddr:        getEnv("PLUMBPOS_LISTEN_ADDR", "127.0.0.1:8765"),
		AllowedOrigin:     getEnv("PLUMBPOS_ALLOWED_ORIGIN", "http://127.0.0.1:1420"),
		SessionSecret:     strings.TrimSpace(os.Getenv("PLUMBPOS_SESSION_SECRET")),
		SessionTTLMinutes: ttl,
		AdminUsername:     getEnv("PLUMBPOS_ADMIN_USERNAME", "admin"),
		AdminPassword:     os.Getenv("PLUMBPOS_ADMIN_PASSWORD"),
	}
}

func (c Config) Address() string {
	return c.ListenAddr
}

func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		return "data"
	}
	return filepath.Join(base, "plumbpos")
}

func loadDotenv(path string) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[config] WARN: could not read %s: %v", path, err)
	}
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
