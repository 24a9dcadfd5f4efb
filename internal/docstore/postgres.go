package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps every collection in one JSONB table (see
// migrations/001_documents.sql). Equality filters and preconditions are
// expressed as JSONB containment so they can use the GIN index.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		"SELECT data FROM documents WHERE collection = $1 AND id = $2", collection, id,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s/%s: %w", collection, id, err)
	}

	fields, err := unmarshalFields(raw)
	if err != nil {
		return nil, fmt.Errorf("decode document %s/%s: %w", collection, id, err)
	}
	return &Document{ID: id, Fields: fields}, nil
}

func (s *PostgresStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	match, err := filterJSON(filters)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		"SELECT id, data FROM documents WHERE collection = $1 AND data @> $2::jsonb", collection, match,
	)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s document: %w", collection, err)
		}
		fields, err := unmarshalFields(raw)
		if err != nil {
			return nil, fmt.Errorf("decode document %s/%s: %w", collection, id, err)
		}
		docs = append(docs, Document{ID: id, Fields: fields})
	}
	return docs, rows.Err()
}

func (s *PostgresStore) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	data, err := marshalFields(fields)
	if err != nil {
		return "", err
	}

	_, err = s.db.Exec(ctx,
		"INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)", collection, id, data,
	)
	if err != nil {
		return "", fmt.Errorf("insert document %s/%s: %w", collection, id, err)
	}
	return id, nil
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) error {
	data, err := marshalFields(fields)
	if err != nil {
		return err
	}

	query := `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`
	if merge {
		query = `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET data = documents.data || EXCLUDED.data, updated_at = now()`
	}

	if _, err := s.db.Exec(ctx, query, collection, id, data); err != nil {
		return fmt.Errorf("set document %s/%s: %w", collection, id, err)
	}
	return nil
}

const updateSQL = `UPDATE documents SET data = data || $3::jsonb, updated_at = now()
	WHERE collection = $1 AND id = $2 AND data @> $4::jsonb`

func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields map[string]any, preconditions ...Filter) error {
	data, err := marshalFields(fields)
	if err != nil {
		return err
	}
	match, err := filterJSON(preconditions)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, updateSQL, collection, id, data, match)
	if err != nil {
		return fmt.Errorf("update document %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrMismatch(ctx, collection, id)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.Exec(ctx, "DELETE FROM documents WHERE collection = $1 AND id = $2", collection, id)
	if err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *PostgresStore) Batch() Batch {
	return &postgresBatch{store: s}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) missOrMismatch(ctx context.Context, collection, id string) error {
	var exists bool
	err := s.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM documents WHERE collection = $1 AND id = $2)", collection, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check document %s/%s: %w", collection, id, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrPreconditionFailed
}

type postgresBatch struct {
	store *PostgresStore
	ops   []batchOp
}

func (b *postgresBatch) Update(collection, id string, fields map[string]any, preconditions ...Filter) {
	b.ops = append(b.ops, batchOp{kind: opUpdate, collection: collection, id: id, fields: fields, preconditions: preconditions})
}

func (b *postgresBatch) Delete(collection, id string) {
	b.ops = append(b.ops, batchOp{kind: opDelete, collection: collection, id: id})
}

// Commit sends all operations in a single transaction. An update that
// matches no row aborts the whole batch.
func (b *postgresBatch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, op := range b.ops {
		switch op.kind {
		case opDelete:
			batch.Queue("DELETE FROM documents WHERE collection = $1 AND id = $2", op.collection, op.id)
		case opUpdate:
			data, err := marshalFields(op.fields)
			if err != nil {
				return err
			}
			match, err := filterJSON(op.preconditions)
			if err != nil {
				return err
			}
			batch.Queue(updateSQL, op.collection, op.id, data, match)
		}
	}

	tx, err := b.store.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	for i, op := range b.ops {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return fmt.Errorf("batch op %d: %w", i, err)
		}
		if op.kind == opUpdate && tag.RowsAffected() == 0 {
			results.Close()
			return fmt.Errorf("batch op %d on %s/%s: %w", i, op.collection, op.id, ErrPreconditionFailed)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func marshalFields(fields map[string]any) (string, error) {
	data, err := json.Marshal(resolve(fields, time.Now().UTC()))
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

func filterJSON(filters []Filter) (string, error) {
	match := make(map[string]any, len(filters))
	for _, f := range filters {
		match[f.Field] = f.Value
	}
	data, err := json.Marshal(match)
	if err != nil {
		return "", fmt.Errorf("marshal filters: %w", err)
	}
	return string(data), nil
}

func unmarshalFields(raw []byte) (map[string]any, error) {
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
