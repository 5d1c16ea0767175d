package vector

import (
	"context"
	"errors"
	"testing"
)

func newChromemBackend(t *testing.T) *ChromemStore {
	t.Helper()
	s := NewChromemStore("") // in-memory
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { s.Disconnect() })

	if err := s.CreateCollection("test", MemorySchema(4)); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	if err := s.LoadCollection("test"); err != nil {
		t.Fatalf("LoadCollection failed: %v", err)
	}
	return s
}

func TestChromemInsertAndSearch(t *testing.T) {
	s := newChromemBackend(t)
	ctx := context.Background()

	res, err := s.Insert(ctx, "test", []Record{
		{SessionID: "s1", PersonaID: "p1", Content: "likes tea", Vector: []float32{1, 0, 0, 0}, CreateTime: 100},
		{SessionID: "s1", PersonaID: "p1", Content: "owns a cat", Vector: []float32{0, 1, 0, 0}, CreateTime: 200},
		{SessionID: "s2", PersonaID: "p1", Content: "other session", Vector: []float32{1, 0, 0, 0}, CreateTime: 300},
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if res.InsertedCount != 3 {
		t.Fatalf("Expected 3 inserted, got %d", res.InsertedCount)
	}
	for _, id := range res.IDs {
		if id <= 0 {
			t.Errorf("Expected positive generated id, got %d", id)
		}
	}

	hits, err := s.Search(ctx, "test", [][]float32{{1, 0, 0, 0}}, nil, 10, Filter{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits[0]) != 2 {
		t.Fatalf("Expected 2 hits in session s1, got %d", len(hits[0]))
	}
	if hits[0][0].Content != "likes tea" {
		t.Errorf("Expected best match first, got %q", hits[0][0].Content)
	}
	if hits[0][0].SessionID != "s1" || hits[0][0].CreateTime != 100 {
		t.Errorf("Expected metadata round-trip, got %+v", hits[0][0].Record)
	}
}

func TestChromemSearchOnEmptyCollection(t *testing.T) {
	s := newChromemBackend(t)

	hits, err := s.Search(context.Background(), "test", [][]float32{{1, 0, 0, 0}}, nil, 5, Filter{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits[0]) != 0 {
		t.Errorf("Expected no hits from empty collection, got %d", len(hits[0]))
	}
}

func TestChromemDelete(t *testing.T) {
	s := newChromemBackend(t)
	ctx := context.Background()

	s.Insert(ctx, "test", []Record{
		{SessionID: "s1", Content: "one", Vector: []float32{1, 0, 0, 0}, CreateTime: 1},
		{SessionID: "s1", Content: "two", Vector: []float32{0, 1, 0, 0}, CreateTime: 2},
		{SessionID: "s2", Content: "keep", Vector: []float32{0, 0, 1, 0}, CreateTime: 3},
	})

	deleted, err := s.Delete(ctx, "test", Filter{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted, got %d", deleted)
	}

	hits, _ := s.Search(ctx, "test", [][]float32{{1, 0, 0, 0}}, nil, 5, Filter{})
	if len(hits[0]) != 1 || hits[0][0].Content != "keep" {
		t.Errorf("Expected only the unrelated record to remain, got %+v", hits[0])
	}
}

func TestChromemQueryUnsupported(t *testing.T) {
	s := newChromemBackend(t)
	_, err := s.Query(context.Background(), "test", Filter{}, 0)
	if !errors.Is(err, ErrQueryUnsupported) {
		t.Errorf("Expected ErrQueryUnsupported, got %v", err)
	}
}
