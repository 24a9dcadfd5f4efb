package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanara-ai/scanara-backend/internal/metrics"
	"github.com/scanara-ai/scanara-backend/internal/models"
)

func findingsOf(severities ...models.Severity) []models.Finding {
	out := make([]models.Finding, len(severities))
	for i, s := range severities {
		out[i] = models.Finding{ID: string(rune('a' + i)), Severity: s}
	}
	return out
}

func repeat(s models.Severity, n int) []models.Severity {
	out := make([]models.Severity, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func TestScoreAndCompliance(t *testing.T) {
	c, w, i := models.SeverityCritical, models.SeverityWarning, models.SeverityInfo
	tests := []struct {
		name      string
		findings  []models.Finding
		score     int
		compliant bool
	}{
		{"none", nil, 100, true},
		{"canned set", findingsOf(w, c, w), 60, false},
		{"info ignored", findingsOf(i, i, i, i), 100, true},
		{"warnings only", findingsOf(w, w, w), 70, true},
		{"six criticals clamp to zero", findingsOf(repeat(c, 6)...), 0, false},
		{"eleven warnings clamp to zero", findingsOf(repeat(w, 11)...), 0, true},
		{"exactly zero", findingsOf(c, c, c, c, c), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.score, Score(tt.findings))
			assert.Equal(t, tt.compliant, Compliant(tt.findings))
			r := Evaluate(tt.findings)
			assert.Equal(t, tt.score, r.Score)
			assert.Equal(t, tt.compliant, r.IsCompliant)
		})
	}
}

func TestCannedAnalyzer(t *testing.T) {
	a := NewCannedAnalyzer(0)
	a.Now = func() time.Time { return time.UnixMilli(1700000000123) }

	findings, err := a.Analyze(context.Background(), Job{})
	require.NoError(t, err)
	require.Len(t, findings, 3)

	assert.Equal(t, "1700000000123-1", findings[0].ID)
	assert.Equal(t, "1700000000123-3", findings[2].ID)
	assert.Equal(t, []models.Severity{models.SeverityWarning, models.SeverityCritical, models.SeverityWarning},
		[]models.Severity{findings[0].Severity, findings[1].Severity, findings[2].Severity})
	assert.Equal(t, "PHI data logged in plain text", findings[1].Description)
	assert.Equal(t, "src/utils/logger.js", findings[1].File)
	assert.Equal(t, 120, findings[1].Line)
	assert.Len(t, findings[0].NextSteps, 4)
	for _, f := range findings {
		assert.False(t, f.Resolved)
	}
}

func TestCannedAnalyzerHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCannedAnalyzer(time.Hour).Analyze(ctx, Job{})
	assert.ErrorIs(t, err, context.Canceled)
}

type analyzerFunc func(ctx context.Context, job Job) ([]models.Finding, error)

func (f analyzerFunc) Analyze(ctx context.Context, job Job) ([]models.Finding, error) {
	return f(ctx, job)
}

func newEngine(f *fixture, a Analyzer) (*Engine, *metrics.Audit) {
	m := metrics.NewAudit(prometheus.NewRegistry())
	e := NewEngine(a, f.audits, m)
	e.now = f.clock.now
	return e, m
}

func TestEngineCompletesRunningAudit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	app := f.app(t, "u1")
	a := f.audit(t, "u1", app.ID)

	e, m := newEngine(f, NewCannedAnalyzer(0))
	require.NoError(t, e.Run(ctx, Job{AuditID: a.ID, UserID: "u1", AppID: app.ID}))

	got, err := f.audits.Get(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuditCompleted, got.Status)
	require.NotNil(t, got.Score)
	assert.Equal(t, 60, *got.Score)
	require.NotNil(t, got.IsCompliant)
	assert.False(t, *got.IsCompliant)
	assert.Len(t, got.Findings, 3)
	assert.NotEmpty(t, got.CompletedAt)

	gotApp, err := f.apps.Get(ctx, "u1", app.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01T08:01:00.000Z", gotApp.LastAuditAt)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Finished.WithLabelValues(metrics.OutcomeCompleted)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight))
}

func TestEngineMarksFailedOnAnalyzerError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	app := f.app(t, "u1")
	a := f.audit(t, "u1", app.ID)

	boom := errors.New("repository unreachable")
	e, m := newEngine(f, analyzerFunc(func(context.Context, Job) ([]models.Finding, error) {
		return nil, boom
	}))

	err := e.Run(ctx, Job{AuditID: a.ID, UserID: "u1", AppID: app.ID})
	require.ErrorIs(t, err, ErrWorkerFailure)
	assert.ErrorIs(t, err, boom)

	got, err := f.audits.Get(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuditFailed, got.Status)
	assert.Nil(t, got.Score)
	assert.Empty(t, got.Findings)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Finished.WithLabelValues(metrics.OutcomeFailed)))
}

func TestEngineMarksFailedWhenCancelled(t *testing.T) {
	f := newFixture(t)
	app := f.app(t, "u1")
	a := f.audit(t, "u1", app.ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e, _ := newEngine(f, NewCannedAnalyzer(time.Hour))

	err := e.Run(ctx, Job{AuditID: a.ID, UserID: "u1", AppID: app.ID})
	require.ErrorIs(t, err, context.Canceled)

	got, err := f.audits.Get(context.Background(), "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuditFailed, got.Status, "failure is recorded even though the run context is done")
}

func TestEngineIgnoresSecondRunOnTerminalAudit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	app := f.app(t, "u1")
	a := f.audit(t, "u1", app.ID)
	job := Job{AuditID: a.ID, UserID: "u1", AppID: app.ID}

	e, m := newEngine(f, NewCannedAnalyzer(0))
	require.NoError(t, e.Run(ctx, job))
	first, err := f.audits.Get(ctx, "u1", a.ID)
	require.NoError(t, err)

	f.clock.tick()
	require.NoError(t, e.Run(ctx, job))

	second, err := f.audits.Get(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Finished.WithLabelValues(metrics.OutcomeDiscarded)))
}

func TestEngineFailureOnTerminalAuditKeepsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	app := f.app(t, "u1")
	a := f.audit(t, "u1", app.ID)
	require.NoError(t, f.audits.Complete(ctx, a.ID, Result{Score: 90, IsCompliant: true}))

	e, _ := newEngine(f, analyzerFunc(func(context.Context, Job) ([]models.Finding, error) {
		return nil, errors.New("late failure")
	}))
	err := e.Run(ctx, Job{AuditID: a.ID, UserID: "u1", AppID: app.ID})
	require.ErrorIs(t, err, ErrWorkerFailure)

	got, err := f.audits.Get(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuditCompleted, got.Status)
	assert.Equal(t, 90, *got.Score)
}
