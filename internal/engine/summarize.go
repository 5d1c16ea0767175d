package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/engramlabs/engram/internal/vector"
)

var errEmptyVector = errors.New("embedder returned an empty vector")

// summarize runs the summarize-and-store pipeline for one transcript. It is
// always invoked asynchronously by a trigger that already reset the counter,
// so a failure here loses at most one summary, never corrupts counts.
func (e *Engine) summarize(ctx context.Context, sessionID, persona, transcript string) {
	ctx, span := e.obs.StartSpan(ctx, "engine.summarize")
	defer span.End()

	if strings.TrimSpace(transcript) == "" {
		e.met.Summaries.WithLabelValues("empty_transcript").Inc()
		e.obs.Log().Warn().Str("session", sessionID).
			Msg("nothing to summarize; transcript is empty")
		return
	}

	// Checked before the LLM call so a disconnected store costs nothing.
	if !e.vec.IsConnected() {
		e.met.Summaries.WithLabelValues("not_connected").Inc()
		e.obs.Log().Debug().Str("session", sessionID).
			Msg("vector store not connected; summarization skipped")
		return
	}

	resp, err := e.llm.Chat(ctx, transcript, e.cfg.Summary.Prompt, e.cfg.Summary.LLMParams)
	if err != nil {
		e.met.PipelineFailures.WithLabelValues("llm").Inc()
		e.obs.Log().Error().Str("session", sessionID).Err(err).
			Msg("summarization call failed")
		return
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		e.met.Summaries.WithLabelValues("empty_summary").Inc()
		e.obs.Log().Warn().Str("session", sessionID).
			Msg("llm returned an empty summary; nothing stored")
		return
	}

	if _, err := e.StoreMemory(ctx, sessionID, persona, summary); err != nil {
		return
	}
	e.met.Summaries.WithLabelValues("stored").Inc()
}

// StoreMemory embeds a summary and persists it as one memory record. The
// persona falls back to the configured default when unresolved. Also used by
// the CLI to store manual entries.
func (e *Engine) StoreMemory(ctx context.Context, sessionID, persona, content string) (int64, error) {
	vecs, err := e.embedder.GetEmbeddings(ctx, []string{content})
	if err != nil {
		e.met.PipelineFailures.WithLabelValues("embed").Inc()
		e.obs.Log().Error().Str("session", sessionID).Err(err).
			Msg("failed to embed summary")
		return 0, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		e.met.PipelineFailures.WithLabelValues("embed").Inc()
		e.obs.Log().Error().Str("session", sessionID).
			Msg("embedder returned empty vector for summary")
		return 0, errEmptyVector
	}

	if persona == "" || persona == PersonaNone {
		persona = e.cfg.Summary.DefaultPersona
	}

	record := vector.Record{
		PersonaID:  persona,
		SessionID:  sessionID,
		Content:    content,
		Vector:     vecs[0],
		CreateTime: e.now().Unix(),
	}
	res, err := e.vec.Insert(ctx, e.cfg.Collection, []vector.Record{record})
	if err != nil {
		e.met.PipelineFailures.WithLabelValues("insert").Inc()
		e.obs.Log().Error().Str("session", sessionID).Err(err).
			Msg("failed to insert memory record")
		return 0, err
	}

	if e.cfg.Summary.FlushAfterInsert {
		if err := e.vec.Flush(ctx, []string{e.cfg.Collection}); err != nil {
			e.obs.Log().Warn().Str("session", sessionID).Err(err).
				Msg("flush after insert failed; record remains buffered")
		}
	}

	var id int64
	if len(res.IDs) > 0 {
		id = res.IDs[0]
	}
	e.obs.Log().Info().
		Str("session", sessionID).
		Str("persona", persona).
		Int("memory", int(id)).
		Msg("stored long-term memory")
	return id, nil
}
