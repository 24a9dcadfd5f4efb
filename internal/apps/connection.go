package apps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/scanara-ai/scanara-backend/internal/auth"
	"github.com/scanara-ai/scanara-backend/internal/cache"
	"github.com/scanara-ai/scanara-backend/internal/docstore"
	"github.com/scanara-ai/scanara-backend/internal/models"
)

// CheckConnection reports whether the companion CLI or editor extension has
// checked in for the app's owner. The records are written by those clients;
// the backend only reads them.
func (s *Service) CheckConnection(ctx context.Context, uid, id string, kind models.ConnectionType) (*models.ConnectionStatus, error) {
	app, err := s.Get(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	if kind != models.ConnectionCLI && kind != models.ConnectionExtension {
		return nil, errBadConnType
	}

	key := connectionKey(uid, id, kind)
	if s.cache != nil {
		var cached models.ConnectionStatus
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			slog.WarnContext(ctx, "connection cache read failed", "error", err)
		}
	}

	var status *models.ConnectionStatus
	switch kind {
	case models.ConnectionCLI:
		status, err = s.checkCLI(ctx, uid, app.APIKey)
	default:
		status, err = s.checkExtension(ctx, uid)
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, status, s.cacheTTL); err != nil {
			slog.WarnContext(ctx, "connection cache write failed", "error", err)
		}
	}
	return status, nil
}

func (s *Service) checkCLI(ctx context.Context, uid, apiKey string) (*models.ConnectionStatus, error) {
	doc, err := s.store.Get(ctx, models.CollectionConnectionCLI, uid)
	if errors.Is(err, docstore.ErrNotFound) {
		return &models.ConnectionStatus{Connected: false, Message: "CLI not connected"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cli connection: %w", err)
	}

	stored, _ := doc.Fields["apiKey"].(string)
	if stored != "" && auth.KeysEqual(stored, apiKey) {
		return &models.ConnectionStatus{Connected: true, Message: "CLI connected successfully"}, nil
	}
	return &models.ConnectionStatus{Connected: false, Message: "API key mismatch"}, nil
}

func (s *Service) checkExtension(ctx context.Context, uid string) (*models.ConnectionStatus, error) {
	_, err := s.store.Get(ctx, models.CollectionConnectionExtension, uid)
	if errors.Is(err, docstore.ErrNotFound) {
		return &models.ConnectionStatus{Connected: false, Message: "Extension not connected"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get extension connection: %w", err)
	}
	return &models.ConnectionStatus{Connected: true, Message: "Extension connected successfully"}, nil
}

func (s *Service) forgetConnection(ctx context.Context, uid, id string) {
	if s.cache == nil {
		return
	}
	err := s.cache.Delete(ctx,
		connectionKey(uid, id, models.ConnectionCLI),
		connectionKey(uid, id, models.ConnectionExtension),
	)
	if err != nil {
		slog.WarnContext(ctx, "connection cache invalidation failed", "error", err)
	}
}

func connectionKey(uid, id string, kind models.ConnectionType) string {
	return fmt.Sprintf("connection:%s:%s:%s", uid, id, kind)
}
