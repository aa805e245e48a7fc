package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/foodbridge/internal/config"
	"github.com/dukerupert/foodbridge/internal/database"
	"github.com/dukerupert/foodbridge/internal/logging"
	"github.com/dukerupert/foodbridge/internal/push"
	"github.com/dukerupert/foodbridge/internal/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("FOODBRIDGE_CONFIG"), "path to TOML config file")
	genVAPID := flag.Bool("gen-vapid", false, "print a new VAPID key pair and exit")
	flag.Parse()

	if *genVAPID {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate vapid keys: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("FOODBRIDGE_VAPID_PUBLIC_KEY=%s\nFOODBRIDGE_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	srv, err := server.New(db, cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv.ExpiryScheduler().Start(ctx)
	srv.SnapshotManager().Start(ctx)
	go cleanupLoop(ctx, srv)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("foodbridge listening", "addr", cfg.ListenAddr, "db", cfg.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	srv.ExpiryScheduler().Stop()
	srv.SnapshotManager().Stop()
	srv.Dispatcher().Wait()
	return nil
}

// cleanupLoop drops stale rate limiter windows.
func cleanupLoop(ctx context.Context, srv *server.Server) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			srv.RateLimiter().Cleanup()
		}
	}
}
