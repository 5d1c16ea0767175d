// Package engine implements the memory lifecycle: retrieval-and-injection
// on the request path, summarize-and-store on the response path, and a
// background sweep for idle sessions.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/engramlabs/engram/internal/config"
	"github.com/engramlabs/engram/internal/embedding"
	"github.com/engramlabs/engram/internal/marker"
	"github.com/engramlabs/engram/internal/metrics"
	"github.com/engramlabs/engram/internal/observe"
	"github.com/engramlabs/engram/internal/provider"
	"github.com/engramlabs/engram/internal/session"
	"github.com/engramlabs/engram/internal/vector"
)

// Engine wires the session store, vector store, embedder and LLM provider
// into the memory pipelines. All cross-session state lives in the injected
// collaborators; Engine itself only holds the per-session trigger locks.
type Engine struct {
	cfg      *config.Config
	sessions *session.Store
	vec      vector.Store
	embedder embedding.Provider
	llm      provider.Provider
	obs      *observe.Observer
	met      *metrics.Metrics
	mark     marker.Marker

	// locks serializes the two summarization triggers per session so a turn
	// burst and the background sweep never double-fire.
	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	// pending tracks in-flight async summarizations; Close and tests wait on
	// it.
	pending sync.WaitGroup

	now func() time.Time
}

// New assembles an Engine and bootstraps the vector collection: connect,
// create the collection and index when absent, then load it. A mismatch
// between the configured dimension and the embedder's is fatal here rather
// than a per-insert surprise later.
func New(ctx context.Context, cfg *config.Config, sessions *session.Store, vec vector.Store, embedder embedding.Provider, llm provider.Provider, obs *observe.Observer, met *metrics.Metrics) (*Engine, error) {
	if obs == nil {
		obs = observe.Discard()
	}
	if met == nil {
		met = metrics.New("engram", prometheus.NewRegistry())
	}

	if embedder.Dim() != cfg.Embedding.Dim {
		return nil, fmt.Errorf("embedding provider %s reports dimension %d but config declares %d",
			embedder.Name(), embedder.Dim(), cfg.Embedding.Dim)
	}

	e := &Engine{
		cfg:      cfg,
		sessions: sessions,
		vec:      vec,
		embedder: embedder,
		llm:      llm,
		obs:      obs,
		met:      met,
		mark:     marker.New(cfg.Retrieval.MemoryPrefix, cfg.Retrieval.MemorySuffix),
		locks:    make(map[string]*sync.Mutex),
		now:      time.Now,
	}

	if err := e.bootstrap(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) bootstrap(ctx context.Context) error {
	if err := e.vec.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect vector store: %w", err)
	}

	name := e.cfg.Collection
	has, err := e.vec.HasCollection(name)
	if err != nil {
		return fmt.Errorf("failed to check collection %q: %w", name, err)
	}

	if !has {
		schema := vector.MemorySchema(e.cfg.Embedding.Dim)
		if err := e.vec.CreateCollection(name, schema); err != nil {
			return fmt.Errorf("failed to create collection %q: %w", name, err)
		}
		if err := e.vec.CreateIndex(ctx, name, vector.FieldVector, e.cfg.Vector.IndexParams); err != nil {
			return fmt.Errorf("failed to create index on %q: %w", name, err)
		}
		e.obs.Log().Info().
			Str("collection", name).
			Int("dim", e.cfg.Embedding.Dim).
			Msg("created memory collection")
	}

	if err := e.vec.LoadCollection(name); err != nil {
		return fmt.Errorf("failed to load collection %q: %w", name, err)
	}
	return nil
}

// lockFor returns the trigger mutex for a session, creating it on first use.
func (e *Engine) lockFor(sessionID string) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	l, ok := e.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[sessionID] = l
	}
	return l
}

// WaitPending blocks until all launched summarizations finish.
func (e *Engine) WaitPending() {
	e.pending.Wait()
}

// Close waits for in-flight summarizations and disconnects the vector store.
func (e *Engine) Close() error {
	e.pending.Wait()
	return e.vec.Disconnect()
}
