package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sunnybiju2005/billing-application/internal/config"
	"github.com/sunnybiju2005/billing-application/internal/docstore"
	"github.com/sunnybiju2005/billing-application/internal/docstore/pgdoc"
	"github.com/sunnybiju2005/billing-application/internal/docstore/redisdoc"
	"github.com/sunnybiju2005/billing-application/internal/domain"
	"github.com/sunnybiju2005/billing-application/internal/httpapi"
	"github.com/sunnybiju2005/billing-application/internal/store"
	"github.com/sunnybiju2005/billing-application/internal/store/local"
	"github.com/sunnybiju2005/billing-application/internal/store/remote"
	"github.com/sunnybiju2005/billing-application/internal/store/synced"
)

func main() {
	cfg := config.Load()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	localStore, err := local.New(local.Options{
		DataDir: cfg.DataDir,
		Admin:   local.Credential(cfg.AdminSeed),
		Staff:   local.Credential(cfg.StaffSeed),
	})
	if err != nil {
		log.Fatalf("local store unavailable: %v", err)
	}

	closers := make([]func() error, 0, 2)
	facade := store.Store(localStore)
	var syncStatus func() domain.SyncStatus

	client, backend := openDocstore(ctx, cfg)
	if client != nil {
		remoteStore, err := remote.New(ctx, client, remote.Options{
			Admin: remote.Credential(cfg.AdminSeed),
			Staff: remote.Credential(cfg.StaffSeed),
		})
		if err != nil {
			log.Printf("%s backend unusable (%v), running local-only", backend, err)
			_ = client.Close()
		} else {
			coordinator := synced.New(remoteStore, localStore, synced.Options{
				Backend:  backend,
				Interval: time.Duration(cfg.SyncIntervalSeconds) * time.Second,
			})
			coordinator.Start(ctx)
			facade = coordinator
			syncStatus = coordinator.Status
			closers = append(closers, func() error {
				coordinator.Stop()
				return nil
			}, client.Close)
			log.Printf("store: %s with local mirror", backend)
		}
	}
	if syncStatus == nil {
		log.Println("store: local json")
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, facade)
	api := httpapi.NewServer(httpapi.Options{
		Store:         facade,
		Auth:          auth,
		AllowedOrigin: cfg.AllowedOrigin,
		SyncStatus:    syncStatus,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("%s billing backend listening on %s", cfg.ShopName, cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// openDocstore connects the configured remote backend. Postgres wins when
// both are configured. Connection failures are non-fatal: the process starts
// local-only and the operator sees why.
func openDocstore(ctx context.Context, cfg config.Config) (docstore.Client, string) {
	if cfg.DatabaseURL != "" {
		client, err := pgdoc.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("postgres unavailable (%v), running local-only", err)
			return nil, ""
		}
		return client, "postgres"
	}
	if cfg.RedisAddr != "" {
		client, err := redisdoc.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Printf("redis unavailable (%v), running local-only", err)
			return nil, ""
		}
		return client, "redis"
	}
	return nil, ""
}

func validateConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("DATA_DIR must not be empty")
	}
	return nil
}
