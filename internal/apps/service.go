package apps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/scanara-ai/scanara-backend/internal/auth"
	"github.com/scanara-ai/scanara-backend/internal/cache"
	"github.com/scanara-ai/scanara-backend/internal/docstore"
	"github.com/scanara-ai/scanara-backend/internal/models"
)

var (
	errAppNotFound  = models.NotFound("App not found")
	errNotAppOwner  = models.Forbidden("Unauthorized")
	errBadConnType  = models.Invalid("Invalid connection type")
	errEmptyName    = models.Invalid("Name is required")
	errBadTimestamp = models.Invalid("lastAuditAt must be an ISO-8601 timestamp")
)

type Service struct {
	store    docstore.Store
	cache    cache.Cache
	cacheTTL time.Duration
}

// NewService wires the app service. c may be nil, in which case connection
// checks always go to the store.
func NewService(store docstore.Store, c cache.Cache, cacheTTL time.Duration) *Service {
	return &Service{store: store, cache: c, cacheTTL: cacheTTL}
}

// List returns the caller's apps, newest first.
func (s *Service) List(ctx context.Context, uid string) ([]models.App, error) {
	docs, err := s.store.Query(ctx, models.CollectionApps, docstore.Where("userId", uid))
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}

	apps := make([]models.App, 0, len(docs))
	for i := range docs {
		app, err := decodeApp(&docs[i])
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}

	sort.SliceStable(apps, func(i, j int) bool {
		return docstore.ParseTimestamp(apps[i].CreatedAt).After(docstore.ParseTimestamp(apps[j].CreatedAt))
	})
	return apps, nil
}

// Get returns the app when it exists and belongs to uid. Apps owned by
// someone else are reported as not found.
func (s *Service) Get(ctx context.Context, uid, id string) (*models.App, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.UserID != uid {
		return nil, errAppNotFound
	}
	return app, nil
}

func (s *Service) Create(ctx context.Context, uid string, req models.CreateAppRequest) (*models.App, error) {
	key, err := auth.GenerateAPIKey()
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}

	fields := docstore.StripUndefined(map[string]any{
		"userId":         uid,
		"name":           req.Name,
		"description":    optionalString(req.Description),
		"repositoryUrl":  optionalString(req.RepositoryURL),
		"apiKey":         key,
		"connectionType": string(models.ConnectionNone),
		"isConnected":    false,
		"createdAt":      docstore.ServerTimestamp,
	})

	id, err := s.store.Add(ctx, models.CollectionApps, fields)
	if err != nil {
		return nil, fmt.Errorf("create app: %w", err)
	}
	return s.load(ctx, id)
}

// Update merges the patch into an app owned by uid.
func (s *Service) Update(ctx context.Context, uid, id string, patch models.AppPatch) (*models.App, error) {
	if _, err := s.owned(ctx, uid, id); err != nil {
		return nil, err
	}

	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, errEmptyName
	}
	if patch.ConnectionType != nil && !patch.ConnectionType.Valid() {
		return nil, errBadConnType
	}

	var lastAuditAt any = docstore.Unset
	if patch.LastAuditAt != nil {
		t := docstore.ParseTimestamp(*patch.LastAuditAt)
		if t.IsZero() {
			return nil, errBadTimestamp
		}
		lastAuditAt = docstore.TimestampOf(t)
	}

	fields := docstore.StripUndefined(map[string]any{
		"name":           docstore.Optional(patch.Name),
		"description":    docstore.Optional(patch.Description),
		"repositoryUrl":  docstore.Optional(patch.RepositoryURL),
		"connectionType": docstore.Optional(patch.ConnectionType),
		"isConnected":    docstore.Optional(patch.IsConnected),
		"lastAuditAt":    lastAuditAt,
		"updatedAt":      docstore.ServerTimestamp,
	})

	err := s.store.Update(ctx, models.CollectionApps, id, fields, docstore.Where("userId", uid))
	if err != nil {
		return nil, s.writeErr("update app", err)
	}
	s.forgetConnection(ctx, uid, id)
	return s.load(ctx, id)
}

// Delete removes the app and every audit recorded against it in a single
// batch.
func (s *Service) Delete(ctx context.Context, uid, id string) error {
	if _, err := s.owned(ctx, uid, id); err != nil {
		return err
	}

	audits, err := s.store.Query(ctx, models.CollectionAudits, docstore.Where("appId", id))
	if err != nil {
		return fmt.Errorf("list app audits: %w", err)
	}

	batch := s.store.Batch()
	batch.Delete(models.CollectionApps, id)
	for _, a := range audits {
		batch.Delete(models.CollectionAudits, a.ID)
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("delete app: %w", err)
	}

	slog.InfoContext(ctx, "app deleted", "app_id", id, "user_id", uid, "audits", len(audits))
	s.forgetConnection(ctx, uid, id)
	return nil
}

func (s *Service) load(ctx context.Context, id string) (*models.App, error) {
	doc, err := s.store.Get(ctx, models.CollectionApps, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, errAppNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get app: %w", err)
	}
	return decodeApp(doc)
}

// owned loads an app for a write: a foreign app is a Forbidden error rather
// than not found.
func (s *Service) owned(ctx context.Context, uid, id string) (*models.App, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.UserID != uid {
		return nil, errNotAppOwner
	}
	return app, nil
}

func (s *Service) writeErr(op string, err error) error {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return errAppNotFound
	case errors.Is(err, docstore.ErrPreconditionFailed):
		return errNotAppOwner
	}
	return fmt.Errorf("%s: %w", op, err)
}

func decodeApp(doc *docstore.Document) (*models.App, error) {
	var app models.App
	if err := docstore.Decode(doc, &app); err != nil {
		return nil, err
	}
	app.ID = doc.ID
	app.CreatedAt = docstore.NormalizeTimestamp(app.CreatedAt)
	app.UpdatedAt = docstore.OptionalTimestamp(app.UpdatedAt)
	app.LastAuditAt = docstore.OptionalTimestamp(app.LastAuditAt)
	if app.ConnectionType == "" {
		app.ConnectionType = models.ConnectionNone
	}
	return &app, nil
}

func optionalString(s string) any {
	if s == "" {
		return docstore.Unset
	}
	return s
}
