package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/scanara-ai/scanara-backend/internal/metrics"
	"github.com/scanara-ai/scanara-backend/internal/models"
)

// ErrWorkerFailure wraps every error the engine reports after it has marked
// an audit failed.
var ErrWorkerFailure = errors.New("audit worker failed")

// Job identifies one audit run.
type Job struct {
	AuditID string `json:"audit_id"`
	UserID  string `json:"user_id"`
	AppID   string `json:"app_id"`
}

type Result struct {
	Score       int
	IsCompliant bool
	Findings    []models.Finding
}

// Analyzer produces the findings for an app.
type Analyzer interface {
	Analyze(ctx context.Context, job Job) ([]models.Finding, error)
}

// Recorder persists the terminal transitions of an audit.
type Recorder interface {
	Complete(ctx context.Context, id string, r Result) error
	Fail(ctx context.Context, id string) error
}

// Score is 100 minus 20 per critical and 10 per warning finding, floored at
// zero. Info findings do not count.
func Score(findings []models.Finding) int {
	critical, warning := counts(findings)
	return max(0, 100-(critical*20+warning*10))
}

// Compliant reports whether no finding is critical.
func Compliant(findings []models.Finding) bool {
	critical, _ := counts(findings)
	return critical == 0
}

func Evaluate(findings []models.Finding) Result {
	return Result{
		Score:       Score(findings),
		IsCompliant: Compliant(findings),
		Findings:    findings,
	}
}

func counts(findings []models.Finding) (critical, warning int) {
	for _, f := range findings {
		switch f.Severity {
		case models.SeverityCritical:
			critical++
		case models.SeverityWarning:
			warning++
		}
	}
	return critical, warning
}

type Engine struct {
	analyzer Analyzer
	records  Recorder
	metrics  *metrics.Audit
	now      func() time.Time
}

func NewEngine(analyzer Analyzer, records Recorder, m *metrics.Audit) *Engine {
	return &Engine{
		analyzer: analyzer,
		records:  records,
		metrics:  m,
		now:      time.Now,
	}
}

// Run drives one audit from running to a terminal state. Any error before
// the completion is recorded marks the audit failed; the returned error then
// wraps ErrWorkerFailure. Completing an audit that is already terminal is a
// no-op.
func (e *Engine) Run(ctx context.Context, job Job) error {
	start := e.now()
	log := slog.With("audit_id", job.AuditID, "app_id", job.AppID, "user_id", job.UserID)

	e.metrics.Started.Inc()
	e.metrics.InFlight.Inc()
	defer e.metrics.InFlight.Dec()

	findings, err := e.analyzer.Analyze(ctx, job)
	if err != nil {
		return e.fail(ctx, job, start, fmt.Errorf("analyze: %w", err))
	}

	result := Evaluate(findings)
	if err := e.records.Complete(ctx, job.AuditID, result); err != nil {
		if errors.Is(err, ErrAlreadyTerminal) {
			log.WarnContext(ctx, "audit already finished, discarding result")
			e.metrics.Observe(metrics.OutcomeDiscarded, e.now().Sub(start))
			return nil
		}
		return e.fail(ctx, job, start, fmt.Errorf("record completion: %w", err))
	}

	finished := e.now()
	e.metrics.Score.Observe(float64(result.Score))
	e.metrics.Observe(metrics.OutcomeCompleted, finished.Sub(start))
	log.InfoContext(ctx, "audit completed",
		"score", result.Score,
		"compliant", result.IsCompliant,
		"findings", len(result.Findings),
	)
	return nil
}

// fail records the failed state on a context that survives cancellation of
// the run, so that shutdown does not leave the audit running forever.
func (e *Engine) fail(ctx context.Context, job Job, start time.Time, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	log := slog.With("audit_id", job.AuditID, "app_id", job.AppID)
	if err := e.records.Fail(ctx, job.AuditID); err != nil && !errors.Is(err, ErrAlreadyTerminal) {
		log.ErrorContext(ctx, "failed to mark audit failed", "error", err, "cause", cause)
		cause = errors.Join(cause, fmt.Errorf("mark failed: %w", err))
	}

	e.metrics.Observe(metrics.OutcomeFailed, e.now().Sub(start))
	log.ErrorContext(ctx, "audit failed", "error", cause)
	return fmt.Errorf("%w: audit %s: %w", ErrWorkerFailure, job.AuditID, cause)
}
