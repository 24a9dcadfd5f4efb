// Package docstore is a small document-database abstraction: named
// collections of JSON-like documents addressed by id, equality queries,
// merge writes and atomic batches. Services map documents to typed records
// with Decode and never see the backing engine.
package docstore

import (
	"context"
	"errors"
)

var (
	ErrNotFound           = errors.New("document not found")
	ErrPreconditionFailed = errors.New("document precondition failed")
)

type Document struct {
	ID     string
	Fields map[string]any
}

// Filter is an equality predicate on a top-level field.
type Filter struct {
	Field string
	Value any
}

func Where(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

type Store interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	// Add stores a new document under a generated id.
	Add(ctx context.Context, collection string, fields map[string]any) (string, error)
	// Set creates or overwrites a document. With merge the given fields are
	// folded into an existing document instead of replacing it.
	Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) error
	// Update merges fields into an existing document. Preconditions are
	// checked atomically with the write.
	Update(ctx context.Context, collection, id string, fields map[string]any, preconditions ...Filter) error
	Delete(ctx context.Context, collection, id string) error
	Batch() Batch
	Ping(ctx context.Context) error
}

// Batch collects writes that are committed all-or-nothing.
type Batch interface {
	Update(collection, id string, fields map[string]any, preconditions ...Filter)
	Delete(collection, id string)
	Commit(ctx context.Context) error
}

type opKind int

const (
	opUpdate opKind = iota
	opDelete
)

type batchOp struct {
	kind          opKind
	collection    string
	id            string
	fields        map[string]any
	preconditions []Filter
}
