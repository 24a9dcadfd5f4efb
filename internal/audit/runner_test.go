package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanara-ai/scanara-backend/internal/models"
)

func TestRunnerSpawnReturnsImmediately(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	app := f.app(t, "u1")
	a := f.audit(t, "u1", app.ID)

	release := make(chan struct{})
	e, _ := newEngine(f, analyzerFunc(func(ctx context.Context, _ Job) ([]models.Finding, error) {
		<-release
		return findingsOf(models.SeverityInfo), nil
	}))
	r := NewRunner(e)

	h, err := r.Spawn(Job{AuditID: a.ID, UserID: "u1", AppID: app.ID})
	require.NoError(t, err)

	got, err := f.audits.Get(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuditRunning, got.Status)

	close(release)
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
	require.NoError(t, h.Err())

	got, err = f.audits.Get(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuditCompleted, got.Status)
	assert.Equal(t, 100, *got.Score)
	require.NoError(t, r.Shutdown(ctx))
}

func TestRunnerShutdownCancelsRuns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	app := f.app(t, "u1")
	a := f.audit(t, "u1", app.ID)

	e, _ := newEngine(f, NewCannedAnalyzer(time.Hour))
	r := NewRunner(e)
	h, err := r.Spawn(Job{AuditID: a.ID, UserID: "u1", AppID: app.ID})
	require.NoError(t, err)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(shutdownCtx))

	assert.ErrorIs(t, h.Err(), ErrWorkerFailure)
	got, err := f.audits.Get(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuditFailed, got.Status)

	_, err = r.Spawn(Job{AuditID: a.ID})
	assert.ErrorIs(t, err, ErrRunnerClosed)
}

type failingDispatcher struct{ err error }

func (d failingDispatcher) Dispatch(context.Context, Job) error { return d.err }

func TestFailOnDispatchError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	app := f.app(t, "u1")
	a := f.audit(t, "u1", app.ID)

	FailOnDispatchError(ctx, failingDispatcher{}, f.audits, Job{AuditID: a.ID})
	got, err := f.audits.Get(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuditRunning, got.Status)

	FailOnDispatchError(ctx, failingDispatcher{err: errors.New("redis down")}, f.audits, Job{AuditID: a.ID})
	got, err = f.audits.Get(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuditFailed, got.Status)
}
