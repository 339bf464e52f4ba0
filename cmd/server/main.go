package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/harrylevesque/hivebff/internal/api"
	"github.com/harrylevesque/hivebff/internal/auth"
	"github.com/harrylevesque/hivebff/internal/backend"
	"github.com/harrylevesque/hivebff/internal/cache"
	"github.com/harrylevesque/hivebff/internal/certs"
	"github.com/harrylevesque/hivebff/internal/config"
	"github.com/harrylevesque/hivebff/internal/crypto"
	"github.com/harrylevesque/hivebff/internal/files"
	"github.com/harrylevesque/hivebff/internal/resource"
	"github.com/harrylevesque/hivebff/internal/search"
	"github.com/harrylevesque/hivebff/internal/telemetry"
	"github.com/harrylevesque/hivebff/internal/utils"
)

const (
	shutdownTimeout = 15 * time.Second
	pruneInterval   = 10 * time.Minute
	certWarnWindow  = 30 * 24 * time.Hour
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "hivebff:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML config file (default $"+config.ConfigPathEnv+")")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := utils.NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}

	masterKey, err := files.ReadMasterKey(cfg.MasterKeyHex, cfg.MasterKeyFile)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, masterKey, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("close cache store", zap.Error(err))
		}
	}()

	client := backend.New(backend.Options{
		BaseURL:      cfg.APIBaseURL,
		BypassHeader: cfg.BypassHeader,
		BypassSecret: cfg.BypassSecret,
		Timeout:      cfg.UpstreamTimeout,
		Logger:       log.Named("backend"),
	})
	sessions, err := auth.NewManager(auth.ManagerOptions{
		MasterKey:    masterKey,
		CookieName:   cfg.CookieName,
		CookieSecure: cfg.CookieSecure || cfg.TLSEnabled(),
		Skew:         cfg.TokenSkew,
		ServiceToken: cfg.ServiceToken,
		Backend:      client,
		Logger:       log.Named("auth"),
	})
	if err != nil {
		return err
	}

	loader := cache.NewLoader(store, log.Named("cache"))
	lists := resource.NewLists(client, loader, cfg.CacheTTL)
	handler := api.NewRouter(api.Deps{
		Resources: resource.NewService(client, loader, log.Named("resource")),
		Lists:     lists,
		Search:    search.NewService(lists, log.Named("search")),
		Sessions:  sessions,
		Logger:    log.Named("http"),
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.UpstreamTimeout*4 + 10*time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          zap.NewStdLog(log.Named("http")),
	}
	if cfg.TLSEnabled() {
		cm := certs.NewCertManager(cfg.TLSCertFile, cfg.TLSKeyFile)
		tlsConfig, leaf, err := cm.TLSConfig()
		if err != nil {
			return err
		}
		log.Info("loaded tls certificate",
			zap.String("subject", leaf.Subject.CommonName),
			zap.Time("not_after", leaf.NotAfter))
		if cm.ExpiresWithin(leaf, certWarnWindow) {
			log.Warn("tls certificate expires soon", zap.Time("not_after", leaf.NotAfter))
		}
		srv.TLSConfig = tlsConfig
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", cfg.Addr),
			zap.Bool("tls", cfg.TLSEnabled()),
			zap.String("backend", cfg.APIBaseURL),
			zap.String("cache", cfg.CacheDriver))
		if cfg.TLSEnabled() {
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("flush traces", zap.Error(err))
	}
	return nil
}

// openStore builds the configured cache store. The sqlite store is pruned in
// the background until ctx ends.
func openStore(ctx context.Context, cfg config.Config, masterKey []byte, log *zap.Logger) (cache.Store, error) {
	if cfg.CacheDriver != "sqlite" {
		return cache.NewMemoryStore(), nil
	}
	sealKey, err := crypto.DeriveKey(masterKey, crypto.InfoCacheSeal, 32)
	if err != nil {
		return nil, fmt.Errorf("derive cache key: %w", err)
	}
	store, err := cache.OpenSQLite(cfg.CachePath, sealKey)
	if err != nil {
		return nil, err
	}
	go pruneLoop(ctx, store, cfg.CacheTTL, log)
	return store, nil
}

func pruneLoop(ctx context.Context, store *cache.SQLiteStore, ttl time.Duration, log *zap.Logger) {
	keep := ttl * 10
	if keep < time.Hour {
		keep = time.Hour
	}
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := store.Prune(ctx, now.Add(-keep))
			if err != nil {
				log.Warn("prune cache", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Debug("pruned cache entries", zap.Int64("removed", n))
			}
		}
	}
}
