package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/scanara-ai/scanara-backend/internal/audit"
	"github.com/scanara-ai/scanara-backend/internal/queue"
)

// Engine runs one audit to a terminal state.
type Engine interface {
	Run(ctx context.Context, job audit.Job) error
}

type AuditWorker struct {
	engine Engine
}

func NewAuditWorker(engine Engine) *AuditWorker {
	return &AuditWorker{engine: engine}
}

// ProcessTask runs the engine for a queued audit. Errors are marked
// SkipRetry: the engine has already recorded the failure on the audit.
func (w *AuditWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.AuditRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.AuditID == "" {
		return fmt.Errorf("payload has no audit id: %w", asynq.SkipRetry)
	}

	slog.Info("processing audit", "audit_id", payload.AuditID, "app_id", payload.AppID)

	if err := w.engine.Run(ctx, payload.Job()); err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return nil
}
