package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/scanara-ai/scanara-backend/internal/docstore"
	"github.com/scanara-ai/scanara-backend/internal/models"
)

var (
	errAuditNotFound = models.NotFound("Audit not found")
	errNotAuditOwner = models.Forbidden("Unauthorized")
	errRaced         = models.Conflict("audit status changed while updating, fetch it again")

	// ErrAlreadyTerminal is returned by Complete and Fail when the audit has
	// already reached completed or failed.
	ErrAlreadyTerminal = models.Conflict("audit already finished")
)

// AppLookup resolves an app for its owner.
type AppLookup interface {
	Get(ctx context.Context, uid, id string) (*models.App, error)
}

// Service stores audit records. Transitions made by the engine go through
// Complete and Fail; user edits go through Update.
type Service struct {
	store docstore.Store
	apps  AppLookup
}

func NewService(store docstore.Store, apps AppLookup) *Service {
	return &Service{store: store, apps: apps}
}

// List returns the caller's audits, optionally for one app, newest first.
func (s *Service) List(ctx context.Context, uid, appID string) ([]models.Audit, error) {
	filters := []docstore.Filter{docstore.Where("userId", uid)}
	if appID != "" {
		filters = append(filters, docstore.Where("appId", appID))
	}

	docs, err := s.store.Query(ctx, models.CollectionAudits, filters...)
	if err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}

	audits := make([]models.Audit, 0, len(docs))
	for i := range docs {
		a, err := decodeAudit(&docs[i])
		if err != nil {
			return nil, err
		}
		audits = append(audits, *a)
	}

	sort.SliceStable(audits, func(i, j int) bool {
		return docstore.ParseTimestamp(audits[i].CreatedAt).After(docstore.ParseTimestamp(audits[j].CreatedAt))
	})
	return audits, nil
}

func (s *Service) Get(ctx context.Context, uid, id string) (*models.Audit, error) {
	a, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.UserID != uid {
		return nil, errAuditNotFound
	}
	return a, nil
}

// Load fetches an audit without an ownership check.
func (s *Service) Load(ctx context.Context, id string) (*models.Audit, error) {
	doc, err := s.store.Get(ctx, models.CollectionAudits, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, errAuditNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audit: %w", err)
	}
	return decodeAudit(doc)
}

// Create records a running audit for one of the caller's apps.
func (s *Service) Create(ctx context.Context, uid string, req models.CreateAuditRequest) (*models.Audit, error) {
	if _, err := s.apps.Get(ctx, uid, req.AppID); err != nil {
		return nil, err
	}

	id, err := s.store.Add(ctx, models.CollectionAudits, map[string]any{
		"userId":    uid,
		"appId":     req.AppID,
		"status":    string(models.AuditRunning),
		"createdAt": docstore.ServerTimestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("create audit: %w", err)
	}
	return s.Load(ctx, id)
}

// Update applies a caller's partial update. Findings replace the stored
// list as a whole. A status change must be a legal transition and is
// written only if the status has not moved since it was read.
func (s *Service) Update(ctx context.Context, uid, id string, patch models.AuditPatch) (*models.Audit, error) {
	current, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.UserID != uid {
		return nil, errNotAuditOwner
	}

	preconditions := []docstore.Filter{docstore.Where("userId", uid)}
	completedAt := docstore.Optional(patch.CompletedAt)

	if patch.Status != nil {
		next := *patch.Status
		if !next.Valid() {
			return nil, models.Invalid(fmt.Sprintf("invalid audit status %q", next))
		}
		if !current.Status.CanTransition(next) {
			return nil, models.Invalid(fmt.Sprintf("cannot change audit status from %s to %s", current.Status, next))
		}
		preconditions = append(preconditions, docstore.Where("status", string(current.Status)))
		if next == models.AuditCompleted && current.Status != models.AuditCompleted && patch.CompletedAt == nil {
			completedAt = docstore.ServerTimestamp
		}
	}

	if patch.CompletedAt != nil {
		t := docstore.ParseTimestamp(*patch.CompletedAt)
		if t.IsZero() {
			return nil, models.Invalid("completedAt must be an ISO-8601 timestamp")
		}
		completedAt = docstore.TimestampOf(t)
	}

	if patch.Findings != nil {
		if err := checkFindings(*patch.Findings); err != nil {
			return nil, err
		}
	}
	if current.Status.Terminal() {
		if err := checkTerminalEdit(current, &patch); err != nil {
			return nil, err
		}
	}

	fields := docstore.StripUndefined(map[string]any{
		"status":      docstore.Optional(patch.Status),
		"findings":    docstore.Optional(patch.Findings),
		"score":       docstore.Optional(patch.Score),
		"isCompliant": docstore.Optional(patch.IsCompliant),
		"completedAt": completedAt,
		"updatedAt":   docstore.ServerTimestamp,
	})

	err = s.store.Update(ctx, models.CollectionAudits, id, fields, preconditions...)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return nil, errAuditNotFound
	case errors.Is(err, docstore.ErrPreconditionFailed):
		return nil, errRaced
	case err != nil:
		return nil, fmt.Errorf("update audit: %w", err)
	}
	return s.Load(ctx, id)
}

// Complete moves a running audit to completed with its results and stamps
// the app's lastAuditAt in the same batch.
func (s *Service) Complete(ctx context.Context, id string, r Result) error {
	current, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	if current.Status.Terminal() {
		return ErrAlreadyTerminal
	}

	batch := s.store.Batch()
	batch.Update(models.CollectionAudits, id, map[string]any{
		"status":      string(models.AuditCompleted),
		"score":       r.Score,
		"isCompliant": r.IsCompliant,
		"findings":    r.Findings,
		"completedAt": docstore.ServerTimestamp,
		"updatedAt":   docstore.ServerTimestamp,
	}, docstore.Where("status", string(models.AuditRunning)))

	_, err = s.store.Get(ctx, models.CollectionApps, current.AppID)
	switch {
	case err == nil:
		batch.Update(models.CollectionApps, current.AppID, map[string]any{
			"lastAuditAt": docstore.ServerTimestamp,
			"updatedAt":   docstore.ServerTimestamp,
		}, docstore.Where("userId", current.UserID))
	case errors.Is(err, docstore.ErrNotFound):
		slog.WarnContext(ctx, "completing audit of a missing app", "audit_id", id, "app_id", current.AppID)
	default:
		return fmt.Errorf("get app %s: %w", current.AppID, err)
	}

	return finishErr(id, batch.Commit(ctx))
}

// Fail moves a running audit to failed.
func (s *Service) Fail(ctx context.Context, id string) error {
	return s.finish(ctx, id, map[string]any{
		"status":    string(models.AuditFailed),
		"updatedAt": docstore.ServerTimestamp,
	})
}

func (s *Service) finish(ctx context.Context, id string, fields map[string]any) error {
	err := s.store.Update(ctx, models.CollectionAudits, id, fields,
		docstore.Where("status", string(models.AuditRunning)))
	return finishErr(id, err)
}

func finishErr(id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return errAuditNotFound
	case errors.Is(err, docstore.ErrPreconditionFailed):
		return ErrAlreadyTerminal
	default:
		return fmt.Errorf("finish audit %s: %w", id, err)
	}
}

// checkTerminalEdit limits edits of a finished audit to the resolved flag of
// its findings. Score and isCompliant may only be echoed back unchanged. On
// success patch.Findings holds the stored findings with the caller's
// resolved flags applied.
func checkTerminalEdit(current *models.Audit, patch *models.AuditPatch) error {
	if patch.Score != nil && (current.Score == nil || *current.Score != *patch.Score) {
		return models.Invalid("score of a finished audit cannot be changed")
	}
	if patch.IsCompliant != nil && (current.IsCompliant == nil || *current.IsCompliant != *patch.IsCompliant) {
		return models.Invalid("isCompliant of a finished audit cannot be changed")
	}
	if patch.Findings == nil {
		return nil
	}

	submitted := make(map[string]models.Finding, len(*patch.Findings))
	for _, f := range *patch.Findings {
		submitted[f.ID] = f
	}
	if len(submitted) != len(current.Findings) {
		return models.Invalid("findings of a finished audit cannot be added or removed")
	}

	merged := make([]models.Finding, 0, len(current.Findings))
	for _, stored := range current.Findings {
		f, ok := submitted[stored.ID]
		if !ok {
			return models.Invalid(fmt.Sprintf("finding %s does not belong to this audit", stored.ID))
		}
		if !sameFinding(stored, f) {
			return models.Invalid(fmt.Sprintf("only resolved can be changed on finding %s", f.ID))
		}
		stored.Resolved = f.Resolved
		merged = append(merged, stored)
	}
	patch.Findings = &merged
	return nil
}

// sameFinding compares everything but the resolved flag.
func sameFinding(a, b models.Finding) bool {
	return a.ID == b.ID &&
		a.Category == b.Category &&
		a.File == b.File &&
		a.Line == b.Line &&
		a.Severity == b.Severity &&
		a.Description == b.Description &&
		a.Suggestion == b.Suggestion &&
		slices.Equal(a.NextSteps, b.NextSteps)
}

func decodeAudit(doc *docstore.Document) (*models.Audit, error) {
	var a models.Audit
	if err := docstore.Decode(doc, &a); err != nil {
		return nil, err
	}
	a.ID = doc.ID
	a.CreatedAt = docstore.NormalizeTimestamp(a.CreatedAt)
	a.CompletedAt = docstore.OptionalTimestamp(a.CompletedAt)
	a.UpdatedAt = docstore.OptionalTimestamp(a.UpdatedAt)
	return &a, nil
}
