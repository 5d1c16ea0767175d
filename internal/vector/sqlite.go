package vector

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a brute-force vector backend: vectors live as BLOBs and
// search is a filtered cosine scan. Fine for local deployments well below
// ~10k memories per session; swap in the chromem backend beyond that.
type SQLiteStore struct {
	path string

	mu        sync.Mutex
	db        *sql.DB
	connected bool
}

// NewSQLiteStore creates a backend storing collections in a single SQLite
// file under dir.
func NewSQLiteStore(dir string) *SQLiteStore {
	return &SQLiteStore{path: filepath.Join(dir, "memories.db")}
}

func (s *SQLiteStore) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("failed to create vector db directory: %w", err)
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open vector database: %w", err)
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			dim INTEGER NOT NULL,
			loaded INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			collection TEXT NOT NULL,
			personality_id TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			vector BLOB NOT NULL,
			create_time INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memories_lookup
			ON memories(collection, session_id);`,
	}
	for _, q := range queries {
		if _, err := db.ExecContext(ctx, q); err != nil {
			db.Close()
			return fmt.Errorf("failed to init vector schema: %w", err)
		}
	}

	s.db = db
	s.connected = true
	return nil
}

func (s *SQLiteStore) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *SQLiteStore) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	s.connected = false
	return s.db.Close()
}

func (s *SQLiteStore) HasCollection(name string) (bool, error) {
	row := s.db.QueryRow(`SELECT 1 FROM collections WHERE name = ?`, name)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to check collection: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) CreateCollection(name string, schema Schema) error {
	dim := schema.VectorDim()
	if dim <= 0 {
		return fmt.Errorf("schema for %q has no vector field", name)
	}
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO collections (name, dim) VALUES (?, ?)`, name, dim,
	)
	if err != nil {
		return fmt.Errorf("failed to create collection %q: %w", name, err)
	}
	return nil
}

// CreateIndex is a no-op for the scan backend; params are accepted for
// contract compatibility.
func (s *SQLiteStore) CreateIndex(ctx context.Context, collection, field string, params map[string]string) error {
	return nil
}

func (s *SQLiteStore) LoadCollection(name string) error {
	res, err := s.db.Exec(`UPDATE collections SET loaded = 1 WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to load collection %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("collection %q does not exist", name)
	}
	return nil
}

func (s *SQLiteStore) ListCollections() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) Insert(ctx context.Context, collection string, records []Record) (InsertResult, error) {
	var result InsertResult
	for _, rec := range records {
		blob, err := encodeVector(rec.Vector)
		if err != nil {
			return result, err
		}
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO memories (collection, personality_id, session_id, content, vector, create_time)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			collection, rec.PersonaID, rec.SessionID, rec.Content, blob, rec.CreateTime,
		)
		if err != nil {
			return result, fmt.Errorf("failed to insert memory: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return result, fmt.Errorf("failed to read inserted id: %w", err)
		}
		result.InsertedCount++
		result.IDs = append(result.IDs, id)
	}
	return result, nil
}

func (s *SQLiteStore) Query(ctx context.Context, collection string, filter Filter, limit int) ([]Record, error) {
	query := `SELECT id, personality_id, session_id, content, vector, create_time
		FROM memories WHERE collection = ?`
	args := []any{collection}
	if filter.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	if filter.PersonaID != "" {
		query += ` AND personality_id = ?`
		args = append(args, filter.PersonaID)
	}
	query += ` ORDER BY create_time DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Search(ctx context.Context, collection string, vectors [][]float32, params map[string]string, limit int, filter Filter) ([][]Hit, error) {
	candidates, err := s.Query(ctx, collection, filter, 0)
	if err != nil {
		return nil, err
	}

	results := make([][]Hit, len(vectors))
	for qi, query := range vectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hits := make([]Hit, 0, len(candidates))
		for _, rec := range candidates {
			hits = append(hits, Hit{Record: rec, Score: cosineSimilarity(query, rec.Vector)})
		}
		sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
		if limit > 0 && len(hits) > limit {
			hits = hits[:limit]
		}
		results[qi] = hits
	}
	return results, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, collection string, filter Filter) (int64, error) {
	query := `DELETE FROM memories WHERE collection = ?`
	args := []any{collection}
	if filter.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	if filter.PersonaID != "" {
		query += ` AND personality_id = ?`
		args = append(args, filter.PersonaID)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete memories: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Flush(ctx context.Context, collections []string) error {
	// Writes are durable at commit; checkpoint the WAL for good measure.
	_, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(PASSIVE)`)
	return err
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var rec Record
	var blob []byte
	if err := rows.Scan(&rec.ID, &rec.PersonaID, &rec.SessionID, &rec.Content, &blob, &rec.CreateTime); err != nil {
		return rec, fmt.Errorf("failed to scan memory row: %w", err)
	}
	rec.Vector = decodeVector(blob)
	return rec, nil
}

func encodeVector(v []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("failed to encode vector: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeVector(blob []byte) []float32 {
	v := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &v); err != nil {
		return nil
	}
	return v
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}
	var dot, magA, magB float32
	for i := 0; i < len(a); i++ {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0.0
	}
	return dot / (float32(math.Sqrt(float64(magA))) * float32(math.Sqrt(float64(magB))))
}
