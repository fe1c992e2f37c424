package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"

	"github.com/whitechapel007/chat-app-pern/internal/config"
	"github.com/whitechapel007/chat-app-pern/internal/handler"
	"github.com/whitechapel007/chat-app-pern/internal/identity"
	"github.com/whitechapel007/chat-app-pern/internal/logger"
	"github.com/whitechapel007/chat-app-pern/internal/presence"
	"github.com/whitechapel007/chat-app-pern/internal/service"
	"github.com/whitechapel007/chat-app-pern/internal/startup"
	"github.com/whitechapel007/chat-app-pern/internal/ws"
)

const connectWait = 60 * time.Second

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	flag.Parse()

	logger.Info("starting API service")
	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("config: %v", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)

	if err := run(cfg, *dev, *migrate); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, dev, migrateOnly bool) error {
	ctx := context.Background()

	if dev {
		embeddedDB, err := startEmbeddedPostgres(cfg)
		if err != nil {
			return fmt.Errorf("embedded postgres: %w", err)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	st, closeStore, err := startup.OpenStore(ctx, cfg.Database, connectWait)
	if err != nil {
		return err
	}
	defer closeStore()
	if migrateOnly && !dev {
		logger.Info("migrations applied, exiting")
		return nil
	}

	resetCtx, resetCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := st.ResetOnline(resetCtx); err != nil {
		logger.Errorf("reset online status: %v", err)
	}
	resetCancel()
	logger.Info("database connected")

	tokens, err := startup.OpenTokenStore(ctx, cfg.Redis.URL, connectWait)
	if err != nil {
		return err
	}
	defer tokens.Close()

	ids := identity.NewService(st, tokens, identity.Config{
		Secret:   []byte(cfg.Auth.JWTSecret),
		TokenTTL: cfg.Auth.TokenTTL,
	})
	convs := service.NewConversationService(st)
	messages := service.NewMessageService(st, cfg.Messages.DefaultPageSize, cfg.Messages.MaxPageSize)
	registry := presence.NewRegistry()

	hubCtx, hubCancel := context.WithCancel(ctx)
	hub := ws.NewHub(registry, st, messages, ws.Options{
		MaxConnections: cfg.WS.MaxConnections,
		SendBuffer:     cfg.WS.SendBuffer,
		WriteWait:      cfg.WS.WriteTimeout,
		PongWait:       cfg.WS.PongTimeout,
		MaxMessageSize: cfg.WS.MaxMessageSize,
	})
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler: handler.NewRouter(cfg, handler.Deps{
			Identity: ids,
			Convs:    convs,
			Messages: messages,
			Users:    st,
			Registry: registry,
			Hub:      hub,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("server listening on %s", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	return serveErr
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "chat"
		password = "chat_secret"
		database = "chat"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.Driver = config.DriverPostgres
	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
