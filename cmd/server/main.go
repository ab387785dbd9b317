package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plumbpos/backend/internal/config"
	"plumbpos/backend/internal/httpapi"
	"plumbpos/backend/internal/service"
	"plumbpos/backend/internal/store"
	"plumbpos/backend/internal/store/memory"
	"plumbpos/backend/internal/store/sqlite"
)

func main() {
	inMemory := flag.Bool("memory", false, "use a seeded in-memory store instead of the database file")
	flag.Parse()

	cfg := config.Load()
	if err := validateConfig(cfg, *inMemory); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	if *inMemory {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	} else {
		db, err := sqlite.New(ctx, cfg.DBPath)
		if err != nil {
			log.Fatalf("open database %s: %v", cfg.DBPath, err)
		}
		repo = db
		log.Printf("repository: sqlite (%s)", cfg.DBPath)
	}

	svc := service.New(repo)
	if !*inMemory {
		if _, err := svc.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			log.Fatalf("bootstrap admin: %v", err)
		}
	}
	auth := httpapi.NewAuthManager(cfg.SessionSecret, time.Duration(cfg.SessionTTLMinutes)*time.Minute, cfg.SessionPath, svc)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("inventory backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if err := repo.Close(); err != nil {
		log.Printf("close error: %v", err)
	}

	log.Println("server stopped")
}

// validateConfig refuses a weak session secret, a non-loopback listener and,
// when a database file is used, a missing bootstrap password.
func validateConfig(cfg config.Config, inMemory bool) error {
	if len(cfg.SessionSecret) < 32 {
		return fmt.Errorf("PLUMBPOS_SESSION_SECRET must be set and at least 32 characters")
	}
	host, _, err := net.SplitHostPort(cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("PLUMBPOS_LISTEN_ADDR: %w", err)
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return fmt.Errorf("PLUMBPOS_LISTEN_ADDR must be a loopback address, got %q", host)
	}
	if !inMemory && len(cfg.AdminPassword) < 6 {
		return fmt.Errorf("PLUMBPOS_ADMIN_PASSWORD must be set and at least 6 characters")
	}
	return nil
}
