package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/micro-ha/moodo-bridge/addon/internal/config"
	"github.com/micro-ha/moodo-bridge/addon/internal/coordinator"
	"github.com/micro-ha/moodo-bridge/addon/internal/entity"
	"github.com/micro-ha/moodo-bridge/addon/internal/httpapi"
	"github.com/micro-ha/moodo-bridge/addon/internal/logging"
	"github.com/micro-ha/moodo-bridge/addon/internal/model"
	"github.com/micro-ha/moodo-bridge/addon/internal/moodo"
	"github.com/micro-ha/moodo-bridge/addon/internal/push"
	"github.com/micro-ha/moodo-bridge/addon/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	if err := os.MkdirAll(cfg.DBDir(), 0o755); err != nil {
		logger.Error("failed to create db directory", "err", err)
		os.Exit(1)
	}

	store, err := storage.New(ctx, cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	client := moodo.NewClient(cfg.APIBaseURL)

	if err := establishSession(ctx, cfg, client, store, logger); err != nil {
		logger.Error("failed to establish session", "err", err)
		os.Exit(1)
	}

	newPush := func(deviceIDs []string, onEvent func(box model.Box, requestID string)) coordinator.Push {
		return push.New(cfg.SocketURL, client.Token, deviceIDs, onEvent, logger)
	}

	coord := coordinator.New(client, newPush, cfg.RefreshInterval, logger)
	coord.OnAuthFailure(func() {
		reloginCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := relogin(reloginCtx, cfg, client, store, logger); err != nil {
			logger.Error("re-authentication failed", "err", err)
			return
		}
		coord.TriggerRefresh()
	})

	if err := startCoordinator(ctx, cfg, coord, client, store, logger); err != nil {
		logger.Error("failed to start", "err", err)
		os.Exit(1)
	}
	defer coord.Stop()

	controller := entity.NewController(coord, client, logger)
	api := httpapi.New(coord, controller, logger)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(api),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("server starting", "addr", httpServer.Addr)
	if err := httpapi.RunServer(ctx, httpServer); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated with error", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// establishSession reuses a stored session token for the configured account
// when one exists, otherwise logs in with credentials and persists the
// resulting token.
func establishSession(ctx context.Context, cfg config.Config, client *moodo.Client, store *storage.Store, logger *slog.Logger) error {
	entry, found, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if found && entry.Email == cfg.Email && entry.Token != "" {
		logger.Info("reusing stored session token", "email", entry.Email)
		client.SetToken(entry.Token)
		return nil
	}
	return relogin(ctx, cfg, client, store, logger)
}

// relogin performs a credential login and persists the fresh token.
func relogin(ctx context.Context, cfg config.Config, client *moodo.Client, store *storage.Store, logger *slog.Logger) error {
	if cfg.Email == "" || cfg.Password == "" {
		return errors.New("MOODO_EMAIL and MOODO_PASSWORD must be set")
	}
	token, err := client.Login(ctx, cfg.Email, cfg.Password)
	if err != nil {
		return err
	}
	client.SetToken(token)
	if err := store.Save(ctx, storage.AccountEntry{Email: cfg.Email, Token: token}); err != nil {
		logger.Warn("failed to persist session token", "err", err)
	}
	logger.Info("logged in", "email", cfg.Email)
	return nil
}

// startCoordinator runs the mandatory first refresh. A stored token may have
// expired; on an auth failure it retries once after a fresh credential login.
func startCoordinator(ctx context.Context, cfg config.Config, coord *coordinator.Coordinator, client *moodo.Client, store *storage.Store, logger *slog.Logger) error {
	err := coord.Start(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, moodo.ErrAuth) {
		return err
	}
	logger.Warn("stored session rejected; logging in again", "err", err)
	if err := store.ClearToken(ctx); err != nil {
		logger.Warn("failed to clear stored token", "err", err)
	}
	if err := relogin(ctx, cfg, client, store, logger); err != nil {
		return err
	}
	return coord.Start(ctx)
}
