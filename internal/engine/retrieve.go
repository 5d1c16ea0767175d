package engine

import (
	"context"
	"strings"
	"time"

	"github.com/engramlabs/engram/internal/chat"
	"github.com/engramlabs/engram/internal/config"
	"github.com/engramlabs/engram/internal/marker"
	"github.com/engramlabs/engram/internal/vector"
)

// OnRequest runs the retrieval-and-injection pipeline on an outbound LLM
// payload. Failures past session bookkeeping degrade to "no injection"; the
// request itself is never blocked.
func (e *Engine) OnRequest(ctx context.Context, sessionID string, req *chat.Request, origin any) error {
	ctx, span := e.obs.StartSpan(ctx, "engine.retrieve")
	defer span.End()

	// Expected during startup races; not an error.
	if !e.vec.IsConnected() {
		e.obs.Log().Debug().Str("session", sessionID).
			Msg("vector store not connected; skipping memory pipeline")
		return nil
	}

	e.sessions.EnsureSession(sessionID, req.Contexts, origin)

	// Strip memory blocks injected on earlier turns so reprocessed payloads
	// never accumulate duplicates. This runs before retrieval; a turn that
	// yields no hits still leaves no stale blocks behind.
	keep := e.cfg.Retrieval.KeepMemoryBlocks
	req.Contexts = e.mark.StripUserMessages(req.Contexts, keep)
	req.SystemPrompt = e.mark.StripString(req.SystemPrompt, keep)

	e.sessions.AddMessage(sessionID, chat.RoleUser, req.Prompt, origin)
	e.sessions.IncrementCount(sessionID)

	if strings.TrimSpace(req.Prompt) == "" {
		e.obs.Log().Debug().Str("session", sessionID).Msg("empty prompt; skipping retrieval")
		return nil
	}

	vecs, err := e.embedder.GetEmbeddings(ctx, []string{req.Prompt})
	if err != nil {
		e.met.PipelineFailures.WithLabelValues("embed").Inc()
		e.obs.Log().Error().Str("session", sessionID).Err(err).
			Msg("failed to embed prompt; skipping retrieval")
		return nil
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		e.met.PipelineFailures.WithLabelValues("embed").Inc()
		e.obs.Log().Warn().Str("session", sessionID).
			Msg("embedder returned empty vector; skipping retrieval")
		return nil
	}

	filter := vector.Filter{
		SessionID: sessionID,
		PersonaID: e.personaFilter(origin),
	}

	hits, err := e.search(ctx, vecs, filter)
	if err != nil {
		e.met.PipelineFailures.WithLabelValues("search").Inc()
		e.obs.Log().Error().Str("session", sessionID).Err(err).
			Str("filter", filter.String()).
			Msg("vector search failed; skipping injection")
		return nil
	}
	if len(hits) == 0 {
		e.obs.Log().Debug().Str("session", sessionID).Msg("no memories matched")
		return nil
	}

	lines := make([]string, 0, len(hits))
	for _, h := range hits {
		lines = append(lines, formatEntry(e.cfg.Retrieval.EntryFormat, h.Record))
	}
	block := e.mark.Wrap(lines)

	method := e.inject(req, block, keep)
	e.met.Injections.WithLabelValues(method).Inc()
	e.obs.Log().Info().
		Str("session", sessionID).
		Int("memories", len(hits)).
		Str("method", method).
		Msg("injected long-term memories")
	return nil
}

// search runs the topK query under the configured timeout. The timeout is
// scoped to this call only; it never leaks into the caller's context.
func (e *Engine) search(ctx context.Context, vecs [][]float32, filter vector.Filter) ([]vector.Hit, error) {
	topK := e.cfg.Retrieval.TopK
	if topK <= 0 {
		topK = 5
	}
	timeout := time.Duration(e.cfg.Retrieval.SearchTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := e.now()
	results, err := e.vec.Search(ctx, e.cfg.Collection, vecs, e.cfg.Vector.SearchParams, topK, filter)
	e.met.SearchLatency.Observe(float64(time.Since(start).Milliseconds()))
	e.met.Retrievals.Inc()
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

// inject splices the memory block into the payload using the configured
// method, falling back to user_prompt for unknown methods.
func (e *Engine) inject(req *chat.Request, block string, keep int) string {
	method := e.cfg.Retrieval.InjectionMethod

	switch method {
	case config.InjectUserPrompt:
		req.Prompt = block + "\n\n" + req.Prompt
	case config.InjectSystemPrompt:
		// Stale blocks were already stripped during request intake.
		req.SystemPrompt = req.SystemPrompt + "\n" + block
	case config.InjectInsertSystemPrompt:
		req.Contexts = marker.TrimSystemMessages(req.Contexts, keep)
		req.Contexts = append(req.Contexts, chat.Message{
			Role:    chat.RoleSystem,
			Content: block,
		})
	default:
		e.obs.Log().Warn().Str("method", method).
			Msg("unknown injection method; falling back to user_prompt")
		req.Prompt = block + "\n\n" + req.Prompt
		return config.InjectUserPrompt
	}
	return method
}

// formatEntry renders one memory record using the configured template.
// {time} is the record creation time, {content} the stored summary.
func formatEntry(format string, r vector.Record) string {
	ts := time.Unix(r.CreateTime, 0).Format("2006-01-02 15:04:05")
	line := strings.ReplaceAll(format, "{time}", ts)
	return strings.ReplaceAll(line, "{content}", r.Content)
}
