package docstore

import (
	"context"

	"github.com/scanara-ai/scanara-backend/internal/models"
)

// Unavailable stands in when no backing database was configured. Every call
// fails immediately with a models.ErrStoreUnavailable error.
type Unavailable struct {
	Reason string
}

func (u Unavailable) err() error {
	msg := "document store not initialized: configure DATABASE_URL (or DOCSTORE_DRIVER=memory for local development)"
	if u.Reason != "" {
		msg += ": " + u.Reason
	}
	return &models.Error{Kind: models.ErrStoreUnavailable, Message: msg}
}

func (u Unavailable) Get(context.Context, string, string) (*Document, error) { return nil, u.err() }

func (u Unavailable) Query(context.Context, string, ...Filter) ([]Document, error) {
	return nil, u.err()
}

func (u Unavailable) Add(context.Context, string, map[string]any) (string, error) {
	return "", u.err()
}

func (u Unavailable) Set(context.Context, string, string, map[string]any, bool) error {
	return u.err()
}

func (u Unavailable) Update(context.Context, string, string, map[string]any, ...Filter) error {
	return u.err()
}

func (u Unavailable) Delete(context.Context, string, string) error { return u.err() }

func (u Unavailable) Batch() Batch { return unavailableBatch{u} }

func (u Unavailable) Ping(context.Context) error { return u.err() }

type unavailableBatch struct{ u Unavailable }

func (unavailableBatch) Update(string, string, map[string]any, ...Filter) {}
func (unavailableBatch) Delete(string, string)                             {}
func (b unavailableBatch) Commit(context.Context) error                    { return b.u.err() }
