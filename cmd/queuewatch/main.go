// queuewatch connects to the salon backend and prints every queue view change
// to the console. Handy for checking a deployment's live channel by hand.
// Usage: go run ./cmd/queuewatch --config configs/frontdesk.example.yaml
//
// Required environment variables (when the config references them):
//
//	SALON_ACCESS_TOKEN - Bearer token for REST and the WebSocket handshake
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/salon-queue/internal/api"
	"github.com/rickgao/salon-queue/internal/auth"
	"github.com/rickgao/salon-queue/internal/config"
	"github.com/rickgao/salon-queue/internal/connection"
	"github.com/rickgao/salon-queue/internal/queue"
)

func main() {
	configPath := flag.String("config", "configs/frontdesk.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full view JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tokens := auth.NewStore(cfg.Auth.ExpirySkew)
	if cfg.Auth.Token != "" {
		tokens.Set(cfg.Auth.Token)
	} else if cfg.Auth.TokenFile != "" {
		if err := tokens.LoadFile(cfg.Auth.TokenFile); err != nil {
			logger.Error("failed to load token", "error", err)
			os.Exit(1)
		}
	}
	if tokens.TokenExpired() {
		logger.Warn("no usable token, connecting anonymously")
	}

	apiClient := api.NewClient(cfg.API.RestURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithTokenSource(tokens),
	)

	mgrCfg := connection.DefaultManagerConfig()
	mgrCfg.WSURL = cfg.API.WSURL
	mgrCfg.MaxReconnectAttempts = cfg.Connection.MaxReconnectAttempts
	mgrCfg.Debug = true
	mgr := connection.NewManager(mgrCfg, logger, connection.WithTokenSource(tokens))
	defer mgr.Close()

	printer := newViewPrinter(os.Stdout, *verbose)
	coord := queue.New(queue.Config{
		PollingInterval: cfg.Queue.PollingInterval,
		RefreshTimeout:  cfg.Queue.RefreshTimeout,
		AutoStart:       true,
		QueueTopic:      cfg.Queue.QueueTopic,
		StatsTopic:      cfg.Queue.StatsTopic,
	}, mgr, apiClient, logger, queue.WithObserver(printer))

	if err := coord.Start(ctx); err != nil {
		logger.Error("failed to start coordinator", "error", err)
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ms := mgr.Stats()
				ps := coord.PollerStats()
				live, polling := coord.Mode()
				logger.Info("stats",
					"status", ms.Status,
					"failures", ms.FailureCount,
					"live", live,
					"polling", polling,
					"router_received", ms.Router.Received,
					"router_routed", ms.Router.Routed,
					"parse_errors", ms.Router.ParseErrors,
					"polls", ps.Polls,
				)
			}
		}
	}()

	fmt.Fprintln(os.Stderr, "watching queue - press Ctrl+C to stop")

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	if err := coord.Close(shutdownCtx); err != nil {
		logger.Warn("coordinator close", "error", err)
	}
	logger.Info("shutdown complete")
}
