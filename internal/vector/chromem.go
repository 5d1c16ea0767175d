package vector

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/google/uuid"
)

// ChromemStore is the default backend: chromem-go, a pure Go embedded
// vector database. Persistent when a path is configured, in-memory
// otherwise.
type ChromemStore struct {
	path string

	mu        sync.Mutex
	db        *chromem.DB
	connected bool
}

// NewChromemStore creates a chromem backend rooted at dir. An empty dir
// yields an in-memory database (useful for tests).
func NewChromemStore(dir string) *ChromemStore {
	return &ChromemStore{path: dir}
}

func (s *ChromemStore) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}

	if s.path == "" {
		s.db = chromem.NewDB()
	} else {
		db, err := chromem.NewPersistentDB(s.path, false)
		if err != nil {
			return fmt.Errorf("failed to open chromem database: %w", err)
		}
		s.db = db
	}
	s.connected = true
	return nil
}

func (s *ChromemStore) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *ChromemStore) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.db = nil
	return nil
}

func (s *ChromemStore) HasCollection(name string) (bool, error) {
	if s.db == nil {
		return false, fmt.Errorf("chromem backend not connected")
	}
	_, ok := s.db.ListCollections()[name]
	return ok, nil
}

func (s *ChromemStore) CreateCollection(name string, schema Schema) error {
	if s.db == nil {
		return fmt.Errorf("chromem backend not connected")
	}
	dim := schema.VectorDim()
	if dim <= 0 {
		return fmt.Errorf("schema for %q has no vector field", name)
	}
	// We always supply embeddings ourselves, so no embedding func is wired.
	_, err := s.db.GetOrCreateCollection(name, map[string]string{
		"dim": strconv.Itoa(dim),
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to create collection %q: %w", name, err)
	}
	return nil
}

// CreateIndex is a no-op: chromem maintains its own in-memory index.
func (s *ChromemStore) CreateIndex(ctx context.Context, collection, field string, params map[string]string) error {
	return nil
}

// LoadCollection verifies the collection exists; chromem collections are
// always resident.
func (s *ChromemStore) LoadCollection(name string) error {
	if _, err := s.collection(name); err != nil {
		return err
	}
	return nil
}

func (s *ChromemStore) ListCollections() ([]string, error) {
	if s.db == nil {
		return nil, fmt.Errorf("chromem backend not connected")
	}
	cols := s.db.ListCollections()
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	return names, nil
}

func (s *ChromemStore) Insert(ctx context.Context, collection string, records []Record) (InsertResult, error) {
	col, err := s.collection(collection)
	if err != nil {
		return InsertResult{}, err
	}

	var result InsertResult
	for _, rec := range records {
		id := rec.ID
		if id == 0 {
			// chromem has no auto-increment primary key; a nanosecond
			// timestamp keeps ids positive and strictly increasing within
			// one process.
			id = time.Now().UnixNano()
		}
		doc := chromem.Document{
			ID:        uuid.NewString(),
			Content:   rec.Content,
			Embedding: rec.Vector,
			Metadata: map[string]string{
				FieldMemoryID:   strconv.FormatInt(id, 10),
				FieldPersonaID:  rec.PersonaID,
				FieldSessionID:  rec.SessionID,
				FieldCreateTime: strconv.FormatInt(rec.CreateTime, 10),
			},
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return result, fmt.Errorf("failed to add document: %w", err)
		}
		result.InsertedCount++
		result.IDs = append(result.IDs, id)
	}
	return result, nil
}

// Query by metadata alone is not supported by chromem; admin listing falls
// back to Search on this backend.
func (s *ChromemStore) Query(ctx context.Context, collection string, filter Filter, limit int) ([]Record, error) {
	return nil, ErrQueryUnsupported
}

func (s *ChromemStore) Search(ctx context.Context, collection string, vectors [][]float32, params map[string]string, limit int, filter Filter) ([][]Hit, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	where := whereClause(filter)
	results := make([][]Hit, len(vectors))
	for qi, query := range vectors {
		// chromem rejects nResults larger than the collection size.
		n := limit
		if count := col.Count(); n > count {
			n = count
		}
		if n <= 0 {
			results[qi] = nil
			continue
		}

		raw, err := col.QueryEmbedding(ctx, query, n, where, nil)
		if err != nil {
			return nil, fmt.Errorf("chromem query failed: %w", err)
		}

		hits := make([]Hit, 0, len(raw))
		for _, res := range raw {
			rec, err := recordFromResult(res)
			if err != nil {
				// Malformed hits are skipped, not fatal.
				continue
			}
			hits = append(hits, Hit{Record: rec, Score: res.Similarity})
		}
		results[qi] = hits
	}
	return results, nil
}

func (s *ChromemStore) Delete(ctx context.Context, collection string, filter Filter) (int64, error) {
	col, err := s.collection(collection)
	if err != nil {
		return 0, err
	}
	before := col.Count()
	if err := col.Delete(ctx, whereClause(filter), nil); err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	removed := before - col.Count()
	if removed < 0 {
		removed = 0
	}
	return int64(removed), nil
}

// Flush is a no-op: the persistent chromem DB writes through on every add.
func (s *ChromemStore) Flush(ctx context.Context, collections []string) error {
	return nil
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	if s.db == nil {
		return nil, fmt.Errorf("chromem backend not connected")
	}
	col := s.db.GetCollection(name, nil)
	if col == nil {
		return nil, fmt.Errorf("collection %q does not exist", name)
	}
	return col, nil
}

func whereClause(filter Filter) map[string]string {
	if filter.IsZero() {
		return nil
	}
	where := make(map[string]string, 2)
	if filter.SessionID != "" {
		where[FieldSessionID] = filter.SessionID
	}
	if filter.PersonaID != "" {
		where[FieldPersonaID] = filter.PersonaID
	}
	return where
}

func recordFromResult(res chromem.Result) (Record, error) {
	id, err := strconv.ParseInt(res.Metadata[FieldMemoryID], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("hit %s has no memory id", res.ID)
	}
	createTime, _ := strconv.ParseInt(res.Metadata[FieldCreateTime], 10, 64)
	return Record{
		ID:         id,
		PersonaID:  res.Metadata[FieldPersonaID],
		SessionID:  res.Metadata[FieldSessionID],
		Content:    res.Content,
		Vector:     res.Embedding,
		CreateTime: createTime,
	}, nil
}
