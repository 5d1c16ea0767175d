package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/engramlabs/engram/internal/vector"
)

// ListMemories returns stored records matching the filter, newest last.
// Intended for the CLI; the retrieval pipeline uses Search.
func (e *Engine) ListMemories(ctx context.Context, filter vector.Filter, limit int) ([]vector.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	records, err := e.vec.Query(ctx, e.cfg.Collection, filter, limit)
	if errors.Is(err, vector.ErrQueryUnsupported) {
		return e.listBySearch(ctx, filter, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	return records, nil
}

// listBySearch enumerates records on backends without metadata-only query
// support. A fixed unit probe vector turns the similarity search into a
// filtered scan; results are reordered by creation time to match Query's
// contract.
func (e *Engine) listBySearch(ctx context.Context, filter vector.Filter, limit int) ([]vector.Record, error) {
	probe := make([]float32, e.cfg.Embedding.Dim)
	probe[0] = 1

	results, err := e.vec.Search(ctx, e.cfg.Collection, [][]float32{probe}, e.cfg.Vector.SearchParams, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	records := make([]vector.Record, 0, len(results[0]))
	for _, h := range results[0] {
		records = append(records, h.Record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreateTime < records[j].CreateTime
	})
	return records, nil
}

// SearchMemories embeds the query text and runs a similarity search with
// the same parameters the retrieval pipeline uses.
func (e *Engine) SearchMemories(ctx context.Context, query string, filter vector.Filter, limit int) ([]vector.Hit, error) {
	if limit <= 0 {
		limit = e.cfg.Retrieval.TopK
	}

	vecs, err := e.embedder.GetEmbeddings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, errEmptyVector
	}

	results, err := e.vec.Search(ctx, e.cfg.Collection, vecs, e.cfg.Vector.SearchParams, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("memory search failed: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

// ForgetMemories deletes every record matching the filter and flushes so
// the deletion is immediately visible. An empty filter is rejected; wiping
// the whole collection must be an explicit backend operation, not a
// default.
func (e *Engine) ForgetMemories(ctx context.Context, filter vector.Filter) (int64, error) {
	if filter.IsZero() {
		return 0, fmt.Errorf("refusing to delete with an empty filter")
	}

	deleted, err := e.vec.Delete(ctx, e.cfg.Collection, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete memories: %w", err)
	}
	if err := e.vec.Flush(ctx, []string{e.cfg.Collection}); err != nil {
		e.obs.Log().Warn().Err(err).Msg("flush after delete failed")
	}

	e.obs.Log().Info().
		Int("deleted", int(deleted)).
		Str("filter", filter.String()).
		Msg("memories forgotten")
	return deleted, nil
}

// Collections lists the backend's collections for the CLI.
func (e *Engine) Collections() ([]string, error) {
	return e.vec.ListCollections()
}
