// frontdesk keeps a salon's queue view current over the live channel, falls
// back to REST polling when the channel gives up, and serves the view plus
// health and metrics over HTTP.
//
// Usage: go run ./cmd/frontdesk --config configs/frontdesk.example.yaml
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

	"github.com/rickgao/salon-queue/internal/api"
	"github.com/rickgao/salon-queue/internal/auth"
	"github.com/rickgao/salon-queue/internal/cache"
	"github.com/rickgao/salon-queue/internal/config"
	"github.com/rickgao/salon-queue/internal/connection"
	"github.com/rickgao/salon-queue/internal/database"
	"github.com/rickgao/salon-queue/internal/logging"
	"github.com/rickgao/salon-queue/internal/metrics"
	"github.com/rickgao/salon-queue/internal/queue"
	"github.com/rickgao/salon-queue/internal/version"
	"github.com/rickgao/salon-queue/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/frontdesk.example.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging, cfg.Instance)
	slog.SetDefault(logger)

	logger.Info("starting frontdesk",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("frontdesk failed", "error", err)
		os.Exit(1)
	}
	logger.Info("frontdesk stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics.Register()

	tokens, err := loadTokens(cfg.Auth)
	if err != nil {
		return err
	}

	apiClient := api.NewClient(cfg.API.RestURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, cfg.API.RetryBackoff),
		api.WithTokenSource(tokens),
		api.WithRateLimit(cfg.API.RateLimitRPS, cfg.API.RateBurst),
	)

	mgr := connection.NewManager(managerConfig(cfg), logger, connection.WithTokenSource(tokens))
	defer mgr.Close()

	var opts []queue.Option

	if cfg.Cache.Enabled {
		rdb := cache.NewClient(cfg.Cache)
		defer rdb.Close()

		snapshots := cache.New(rdb, cfg.Cache.Key, cfg.Cache.TTL, logger)
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := snapshots.Ping(pingCtx)
		pingCancel()
		if err != nil {
			// The cache only speeds up the first paint; run without it.
			logger.Warn("snapshot cache unavailable", "address", cfg.Cache.Address, "error", err)
		} else {
			opts = append(opts, queue.WithSnapshotStore(snapshots), queue.WithObserver(snapshots))
		}
	}

	if cfg.History.Enabled {
		db := cfg.History.Database
		logger.Info("connecting to history database", "host", db.Host, "port", db.Port, "database", db.Name)

		pool, err := database.Connect(ctx, db, "frontdesk-"+cfg.Instance.ID)
		if err != nil {
			return fmt.Errorf("connect history database: %w", err)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			return err
		}

		history := writer.NewHistoryWriter(writer.WriterConfig{
			InstanceID:    cfg.Instance.ID,
			BatchSize:     cfg.History.BatchSize,
			FlushInterval: cfg.History.FlushInterval,
		}, pool, logger)
		if err := history.Start(ctx); err != nil {
			return fmt.Errorf("start history writer: %w", err)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			history.Stop(stopCtx)
		}()
		opts = append(opts, queue.WithObserver(history))
	}

	coord := queue.New(queueConfig(cfg), mgr, apiClient, logger, opts...)
	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := coord.Close(stopCtx); err != nil {
			logger.Warn("coordinator close", "error", err)
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           newHandler(coord, mgr, cfg.Metrics.Path, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("frontdesk running",
		"instance_id", cfg.Instance.ID,
		"salon", cfg.Instance.Salon,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("health server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func loadTokens(cfg config.AuthConfig) (*auth.Store, error) {
	tokens := auth.NewStore(cfg.ExpirySkew)
	switch {
	case cfg.Token != "":
		tokens.Set(cfg.Token)
	case cfg.TokenFile != "":
		if err := tokens.LoadFile(cfg.TokenFile); err != nil {
			return nil, fmt.Errorf("load token: %w", err)
		}
	}
	return tokens, nil
}

func managerConfig(cfg *config.Config) connection.ManagerConfig {
	c := cfg.Connection
	return connection.ManagerConfig{
		WSURL:                cfg.API.WSURL,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		ReconnectBaseDelay:   c.ReconnectBaseDelay,
		ReconnectMaxDelay:    c.ReconnectMaxDelay,
		HandshakeTimeout:     c.HandshakeTimeout,
		PingInterval:         c.PingInterval,
		PingTimeout:          c.PingTimeout,
		WriteTimeout:         c.WriteTimeout,
		BufferSize:           c.BufferSize,
		Debug:                cfg.Logging.Debug,
	}
}

// queueConfig maps config onto the coordinator. Either auto flag makes
// Start connect the live channel.
func queueConfig(cfg *config.Config) queue.Config {
	q := cfg.Queue
	return queue.Config{
		PollingInterval: q.PollingInterval,
		RefreshTimeout:  q.RefreshTimeout,
		AutoStart:       q.AutoStart || cfg.Connection.AutoConnect,
		QueueTopic:      q.QueueTopic,
		StatsTopic:      q.StatsTopic,
	}
}
