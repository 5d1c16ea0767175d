package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/engramlabs/engram/internal/config"
	"github.com/engramlabs/engram/internal/embedding"
	"github.com/engramlabs/engram/internal/engine"
	"github.com/engramlabs/engram/internal/metrics"
	"github.com/engramlabs/engram/internal/observe"
	"github.com/engramlabs/engram/internal/provider"
	"github.com/engramlabs/engram/internal/session"
	"github.com/engramlabs/engram/internal/store"
	"github.com/engramlabs/engram/internal/vector"
)

// app bundles the wired components a command needs.
type app struct {
	cfg      *config.Config
	obs      *observe.Observer
	sessions *session.Store
	engine   *engine.Engine

	counters store.CounterStore
}

func newObserver() *observe.Observer {
	if jsonLogs {
		return observe.NewJSON(os.Stdout, verbose)
	}
	return observe.New(os.Stdout, verbose)
}

// buildApp wires the full engine from the config file. Fatal on any
// initialization failure; commands never run half-wired.
func buildApp(ctx context.Context) *app {
	obs := newObserver()

	cfg, err := config.Load(configPath)
	if err != nil {
		obs.Log().Fatal().Err(err).Msg("Failed to load config")
	}

	counters, err := store.NewSQLiteStore(filepath.Join(cfg.DataDir, "counters.db"))
	if err != nil {
		obs.Log().Fatal().Err(err).Msg("Failed to init counter store")
	}

	sessions := session.NewStore(counters, obs)

	vec, err := vector.New(cfg.Vector)
	if err != nil {
		obs.Log().Fatal().Err(err).Msg("Failed to init vector store")
	}

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		obs.Log().Fatal().Err(err).Msg("Failed to init embedding provider")
	}

	llm, err := provider.New(cfg.LLM)
	if err != nil {
		obs.Log().Fatal().Err(err).Msg("Failed to init llm provider")
	}

	eng, err := engine.New(ctx, cfg, sessions, vec, embedder, llm, obs, metrics.NewDefault("engram"))
	if err != nil {
		obs.Log().Fatal().Err(err).Msg("Failed to init memory engine")
	}

	return &app{
		cfg:      cfg,
		obs:      obs,
		sessions: sessions,
		engine:   eng,
		counters: counters,
	}
}

func (a *app) close() {
	if err := a.engine.Close(); err != nil {
		a.obs.Log().Warn().Err(err).Msg("engine shutdown reported an error")
	}
	if err := a.counters.Close(); err != nil {
		a.obs.Log().Warn().Err(err).Msg("counter store close reported an error")
	}
	_ = a.obs.Close()
}
