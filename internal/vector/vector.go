// Package vector defines the backend-agnostic vector store contract the
// memory engine consumes, plus two embedded implementations: chromem (pure
// Go vector database) and sqlite (brute-force cosine scan).
package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrQueryUnsupported is returned by backends that cannot enumerate records
// by metadata alone. Callers fall back to Search.
var ErrQueryUnsupported = errors.New("metadata-only query not supported by this backend")

// Canonical field names of a memory collection.
const (
	FieldMemoryID   = "memory_id"
	FieldPersonaID  = "personality_id"
	FieldSessionID  = "session_id"
	FieldContent    = "content"
	FieldVector     = "vector"
	FieldCreateTime = "create_time"
)

// Field length limits, fixed at collection creation.
const (
	MaxPersonaIDLen = 256
	MaxSessionIDLen = 72
	MaxContentLen   = 4096
)

// FieldType enumerates the schema types backends must support.
type FieldType int

const (
	FieldTypeInt64 FieldType = iota
	FieldTypeVarChar
	FieldTypeFloatVector
)

// FieldSchema describes one collection field without leaking any backend's
// native schema type.
type FieldSchema struct {
	Name       string
	Type       FieldType
	PrimaryKey bool
	AutoID     bool
	MaxLength  int // VarChar only
	Dim        int // FloatVector only
}

// Schema is an ordered field-descriptor list.
type Schema struct {
	Description string
	Fields      []FieldSchema
}

// MemorySchema returns the canonical memory-record schema for the given
// embedding dimension. Every record in a collection shares the dimension;
// the invariant is enforced here, at creation time, not per insert.
func MemorySchema(dim int) Schema {
	return Schema{
		Description: "long-term conversational memory records",
		Fields: []FieldSchema{
			{Name: FieldMemoryID, Type: FieldTypeInt64, PrimaryKey: true, AutoID: true},
			{Name: FieldPersonaID, Type: FieldTypeVarChar, MaxLength: MaxPersonaIDLen},
			{Name: FieldSessionID, Type: FieldTypeVarChar, MaxLength: MaxSessionIDLen},
			{Name: FieldContent, Type: FieldTypeVarChar, MaxLength: MaxContentLen},
			{Name: FieldVector, Type: FieldTypeFloatVector, Dim: dim},
			{Name: FieldCreateTime, Type: FieldTypeInt64},
		},
	}
}

// VectorDim returns the dimension of the schema's vector field, 0 if none.
func (s Schema) VectorDim() int {
	for _, f := range s.Fields {
		if f.Type == FieldTypeFloatVector {
			return f.Dim
		}
	}
	return 0
}

// Record is one persisted memory. Immutable once written.
type Record struct {
	ID         int64
	PersonaID  string
	SessionID  string
	Content    string
	Vector     []float32
	CreateTime int64 // unix seconds
}

// Hit is a search result: a record plus its similarity score.
type Hit struct {
	Record
	Score float32
}

// Filter constrains queries, searches and deletes. Empty fields do not
// filter. It replaces free-form expression strings so no backend grammar
// leaks into shared code.
type Filter struct {
	SessionID string
	PersonaID string
}

// Matches reports whether a record satisfies the filter.
func (f Filter) Matches(r Record) bool {
	if f.SessionID != "" && r.SessionID != f.SessionID {
		return false
	}
	if f.PersonaID != "" && r.PersonaID != f.PersonaID {
		return false
	}
	return true
}

// IsZero reports whether the filter constrains nothing.
func (f Filter) IsZero() bool {
	return f.SessionID == "" && f.PersonaID == ""
}

// String renders the filter as a human-readable expression for logs.
func (f Filter) String() string {
	var parts []string
	if f.SessionID != "" {
		parts = append(parts, fmt.Sprintf("%s == %q", FieldSessionID, f.SessionID))
	}
	if f.PersonaID != "" {
		parts = append(parts, fmt.Sprintf("%s == %q", FieldPersonaID, f.PersonaID))
	}
	if len(parts) == 0 {
		return "(unfiltered)"
	}
	return strings.Join(parts, " and ")
}

// InsertResult reports how many records a backend accepted and their ids.
type InsertResult struct {
	InsertedCount int
	IDs           []int64
}

// Store is the vector database contract. Implementations return an error as
// the uniform "operation failed" signal; an empty slice is a legitimate
// empty result, never a failure.
type Store interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Disconnect() error

	HasCollection(name string) (bool, error)
	CreateCollection(name string, schema Schema) error
	CreateIndex(ctx context.Context, collection, field string, params map[string]string) error
	LoadCollection(name string) error
	ListCollections() ([]string, error)

	Insert(ctx context.Context, collection string, records []Record) (InsertResult, error)
	Query(ctx context.Context, collection string, filter Filter, limit int) ([]Record, error)
	Search(ctx context.Context, collection string, vectors [][]float32, params map[string]string, limit int, filter Filter) ([][]Hit, error)
	Delete(ctx context.Context, collection string, filter Filter) (int64, error)
	Flush(ctx context.Context, collections []string) error
}
