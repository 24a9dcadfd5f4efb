package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in process memory. Values are copied through
// their JSON form on write, so callers observe the same shapes a database
// would hand back, except for server timestamps, which are kept as Timestamp.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	now         func() time.Time
	batchFault  func(op int) error
}

type MemoryOption func(*MemoryStore)

// WithClock sets the time used for ServerTimestamp.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithBatchFault installs a hook called before each batch operation is
// applied; a non-nil error aborts the commit.
func WithBatchFault(f func(op int) error) MemoryOption {
	return func(s *MemoryStore) { s.batchFault = f }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		collections: make(map[string]map[string]map[string]any),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, collection, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Document{ID: id, Fields: copyFields(data)}, nil
}

func (s *MemoryStore) Query(_ context.Context, collection string, filters ...Filter) ([]Document, error) {
	want, err := normalizeFilters(filters)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []Document
	for id, data := range s.collections[collection] {
		if matches(data, want) {
			docs = append(docs, Document{ID: id, Fields: copyFields(data)})
		}
	}
	return docs, nil
}

func (s *MemoryStore) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, fields, false); err != nil {
		return "", err
	}
	return id, nil
}

func (s *MemoryStore) Set(_ context.Context, collection, id string, fields map[string]any, merge bool) error {
	data, err := s.prepare(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collection(collection)
	if existing, ok := coll[id]; ok && merge {
		coll[id] = mergeFields(existing, data)
		return nil
	}
	coll[id] = data
	return nil
}

func (s *MemoryStore) Update(_ context.Context, collection, id string, fields map[string]any, preconditions ...Filter) error {
	data, err := s.prepare(fields)
	if err != nil {
		return err
	}
	want, err := normalizeFilters(preconditions)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return applyUpdate(s.collection(collection), id, data, want)
}

func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections[collection], id)
	return nil
}

func (s *MemoryStore) Batch() Batch {
	return &memoryBatch{store: s}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) collection(name string) map[string]map[string]any {
	coll, ok := s.collections[name]
	if !ok {
		coll = make(map[string]map[string]any)
		s.collections[name] = coll
	}
	return coll
}

func (s *MemoryStore) prepare(fields map[string]any) (map[string]any, error) {
	stamp := TimestampOf(s.now())
	out := make(map[string]any, len(fields))
	for k, v := range resolve(fields, stamp) {
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}

type memoryBatch struct {
	store *MemoryStore
	ops   []batchOp
}

func (b *memoryBatch) Update(collection, id string, fields map[string]any, preconditions ...Filter) {
	b.ops = append(b.ops, batchOp{kind: opUpdate, collection: collection, id: id, fields: fields, preconditions: preconditions})
}

func (b *memoryBatch) Delete(collection, id string) {
	b.ops = append(b.ops, batchOp{kind: opDelete, collection: collection, id: id})
}

// Commit applies every operation to a copy of the affected collections and
// swaps the copies in only when all of them succeeded.
func (b *memoryBatch) Commit(_ context.Context) error {
	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]map[string]map[string]any)
	stage := func(name string) map[string]map[string]any {
		if coll, ok := staged[name]; ok {
			return coll
		}
		coll := make(map[string]map[string]any, len(s.collections[name]))
		for id, data := range s.collections[name] {
			coll[id] = data
		}
		staged[name] = coll
		return coll
	}

	for i, op := range b.ops {
		if s.batchFault != nil {
			if err := s.batchFault(i); err != nil {
				return fmt.Errorf("batch op %d: %w", i, err)
			}
		}

		coll := stage(op.collection)
		switch op.kind {
		case opDelete:
			delete(coll, op.id)
		case opUpdate:
			data, err := s.prepare(op.fields)
			if err != nil {
				return fmt.Errorf("batch op %d: %w", i, err)
			}
			want, err := normalizeFilters(op.preconditions)
			if err != nil {
				return fmt.Errorf("batch op %d: %w", i, err)
			}
			if err := applyUpdate(coll, op.id, data, want); err != nil {
				return fmt.Errorf("batch op %d: %w", i, err)
			}
		}
	}

	for name, coll := range staged {
		s.collections[name] = coll
	}
	return nil
}

func applyUpdate(coll map[string]map[string]any, id string, data map[string]any, want map[string]any) error {
	existing, ok := coll[id]
	if !ok {
		return ErrNotFound
	}
	if !matches(existing, want) {
		return ErrPreconditionFailed
	}
	coll[id] = mergeFields(existing, data)
	return nil
}

func mergeFields(existing, data map[string]any) map[string]any {
	out := make(map[string]any, len(existing)+len(data))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range data {
		out[k] = v
	}
	return out
}

func copyFields(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func matches(data, want map[string]any) bool {
	for k, v := range want {
		if !reflect.DeepEqual(data[k], v) {
			return false
		}
	}
	return true
}

func normalizeFilters(filters []Filter) (map[string]any, error) {
	want := make(map[string]any, len(filters))
	for _, f := range filters {
		v, err := normalizeValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Field, err)
		}
		want[f.Field] = v
	}
	return want, nil
}

// normalizeValue stores times as they are and everything else in its
// decoded JSON shape (strings, float64, bool, []any, map[string]any).
func normalizeValue(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case Timestamp, time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		return *t, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
