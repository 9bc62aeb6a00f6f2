// Command server runs the bruecke response bridge.
//
// Configuration is layered: built-in defaults, then a YAML config file
// (-config flag, BRUECKE_CONFIG, ./config.yaml, /etc/bruecke/config.yaml),
// then BRUECKE_* environment variable overrides.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bruecke-ai/bruecke/pkg/agent"
	"github.com/bruecke-ai/bruecke/pkg/api"
	"github.com/bruecke-ai/bruecke/pkg/bridge"
	"github.com/bruecke-ai/bruecke/pkg/config"
	"github.com/bruecke-ai/bruecke/pkg/continuity"
	"github.com/bruecke-ai/bruecke/pkg/debug"
	"github.com/bruecke-ai/bruecke/pkg/observability"
	"github.com/bruecke-ai/bruecke/pkg/storage"
	"github.com/bruecke-ai/bruecke/pkg/storage/memory"
	"github.com/bruecke-ai/bruecke/pkg/storage/postgres"
	"github.com/bruecke-ai/bruecke/pkg/storage/sqlite"
	"github.com/bruecke-ai/bruecke/pkg/transport"
	transporthttp "github.com/bruecke-ai/bruecke/pkg/transport/http"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(*configPath, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	debug.Init(cfg.Observability.Debug, cfg.Observability.LogLevel)
	logger = slog.Default()

	client := agent.NewCLIClient(agent.CLIConfig{
		Binary:  cfg.Engine.Binary,
		WorkDir: cfg.Engine.WorkDir,
	})

	store, tokens, err := buildResponseStore(cfg, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	conversations, err := buildConversationStore(cfg, logger)
	if err != nil {
		return err
	}
	if conversations != nil {
		defer conversations.Close()
	}

	b := bridge.New(client, tokens, store, bridge.Config{
		DefaultModel:   cfg.Engine.DefaultModel,
		AllowedTools:   cfg.Engine.AllowedTools,
		PermissionMode: cfg.Engine.PermissionMode,
		DrainTimeout:   cfg.Engine.DrainTimeout,
		Validation:     api.ValidationConfig{MaxInputSize: cfg.Limits.MaxInputSize},
	}, logger)

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(logger),
		transporthttp.WithMiddleware(observability.TurnMetrics()),
	}
	if cfg.Observability.Metrics.Enabled {
		opts = append(opts,
			transporthttp.WithMetricsEndpoint(cfg.Observability.Metrics.Path, promhttp.Handler()),
			transporthttp.WithHTTPMiddleware(observability.MetricsMiddleware),
		)
	}

	srv := transporthttp.NewServer(b, store, conversations, opts...)

	logger.Info("bridge configured",
		"engine_binary", cfg.Engine.Binary,
		"default_model", cfg.Engine.DefaultModel,
		"storage", cfg.Storage.Type,
		"conversations", cfg.Conversations.Type,
		"port", cfg.Server.Port,
	)

	return srv.ListenAndServe()
}

// buildResponseStore creates the response store and the continuity map.
// With postgres both share the same pool; otherwise continuity lives in
// memory and survives only as long as the process.
func buildResponseStore(cfg *config.Config, logger *slog.Logger) (transport.ResponseStore, continuity.Map, error) {
	switch cfg.Storage.Type {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating postgres store: %w", err)
		}
		tokens := store.Tokens()
		logger.Info("storage enabled", "type", "postgres")
		return storage.WithTokenCleanup(store, tokens), tokens, nil

	case "memory":
		tokens := continuity.NewMemory()
		store := memory.New(cfg.Storage.MaxSize)
		// An evicted record must lose its session token binding the same
		// way a deleted one does, or it would stay resumable forever.
		store.OnEvict(func(id string) {
			if err := tokens.Delete(context.Background(), id); err != nil {
				logger.Warn("removing continuity entry for evicted response", "id", id, "error", err)
			}
		})
		logger.Info("storage enabled", "type", "memory", "max_size", cfg.Storage.MaxSize)
		return storage.WithTokenCleanup(store, tokens), tokens, nil

	default: // "none"
		logger.Info("storage disabled")
		return nil, continuity.NewMemory(), nil
	}
}

// buildConversationStore creates the conversation store, or nil when
// conversations are disabled.
func buildConversationStore(cfg *config.Config, logger *slog.Logger) (transport.ConversationStore, error) {
	switch cfg.Conversations.Type {
	case "sqlite":
		store, err := sqlite.Open(cfg.Conversations.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite conversation store: %w", err)
		}
		logger.Info("conversations enabled", "type", "sqlite", "path", cfg.Conversations.SQLite.Path)
		return store, nil

	case "memory":
		logger.Info("conversations enabled", "type", "memory")
		return memory.NewConversationStore(), nil

	default: // "none"
		logger.Info("conversations disabled")
		return nil, nil
	}
}
