package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type status string

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	s := NewMemoryStore(WithClock(func() time.Time { return at }))

	id, err := s.Add(ctx, "apps", map[string]any{
		"name":      "portal",
		"status":    status("running"),
		"skipped":   Unset,
		"createdAt": ServerTimestamp,
	})
	require.NoError(t, err)

	doc, err := s.Get(ctx, "apps", id)
	require.NoError(t, err)
	assert.Equal(t, "portal", doc.Fields["name"])
	assert.Equal(t, "running", doc.Fields["status"], "named string types are stored as plain strings")
	assert.Equal(t, TimestampOf(at), doc.Fields["createdAt"])
	assert.NotContains(t, doc.Fields, "skipped")
}

func TestMemoryStoreGetMissing(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), "apps", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "audits", "a1", map[string]any{"userId": "u1", "appId": "x"}, false))
	require.NoError(t, s.Set(ctx, "audits", "a2", map[string]any{"userId": "u1", "appId": "y"}, false))
	require.NoError(t, s.Set(ctx, "audits", "a3", map[string]any{"userId": "u2", "appId": "x"}, false))

	docs, err := s.Query(ctx, "audits", Where("userId", "u1"))
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = s.Query(ctx, "audits", Where("userId", "u1"), Where("appId", "x"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a1", docs[0].ID)
}

func TestMemoryStoreSetMerge(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "users", "u1", map[string]any{"firstName": "Ada", "lastName": "Lovelace"}, false))

	require.NoError(t, s.Set(ctx, "users", "u1", map[string]any{"firstName": "Augusta"}, true))
	doc, err := s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"firstName": "Augusta", "lastName": "Lovelace"}, doc.Fields)

	require.NoError(t, s.Set(ctx, "users", "u1", map[string]any{"firstName": "Ada"}, false))
	doc, err = s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"firstName": "Ada"}, doc.Fields)
}

func TestMemoryStoreUpdatePreconditions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "audits", "a1", map[string]any{"status": "running"}, false))

	err := s.Update(ctx, "audits", "missing", map[string]any{"status": "failed"})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Update(ctx, "audits", "a1", map[string]any{"status": "completed"}, Where("status", "running")))

	err = s.Update(ctx, "audits", "a1", map[string]any{"status": "failed"}, Where("status", "running"))
	assert.ErrorIs(t, err, ErrPreconditionFailed)

	doc, err := s.Get(ctx, "audits", "a1")
	require.NoError(t, err)
	assert.Equal(t, "completed", doc.Fields["status"])
}

func TestMemoryBatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")
	s := NewMemoryStore(WithBatchFault(func(op int) error {
		if op == 2 {
			return boom
		}
		return nil
	}))
	for _, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, s.Set(ctx, "audits", id, map[string]any{"appId": "x"}, false))
	}

	b := s.Batch()
	b.Delete("audits", "a1")
	b.Delete("audits", "a2")
	b.Delete("audits", "a3")
	err := b.Commit(ctx)

	require.ErrorIs(t, err, boom)
	docs, err := s.Query(ctx, "audits", Where("appId", "x"))
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestMemoryBatchUpdateMissingAborts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "apps", "app1", map[string]any{"name": "portal"}, false))

	b := s.Batch()
	b.Delete("apps", "app1")
	b.Update("apps", "ghost", map[string]any{"name": "x"})

	assert.ErrorIs(t, b.Commit(ctx), ErrNotFound)
	_, err := s.Get(ctx, "apps", "app1")
	assert.NoError(t, err)
}
