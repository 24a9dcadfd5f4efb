package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Dispatcher starts an audit run without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

var ErrRunnerClosed = errors.New("audit runner is shut down")

// Handle tracks one spawned run.
type Handle struct {
	done chan struct{}
	err  error
}

// Done is closed when the run has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the run's error once Done is closed.
func (h *Handle) Err() error {
	<-h.done
	return h.err
}

// Runner executes audits in background goroutines of the API process. Runs
// are detached from the request that started them and are cancelled by
// Shutdown.
type Runner struct {
	engine *Engine

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRunner(engine *Engine) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{engine: engine, ctx: ctx, cancel: cancel}
}

// Spawn starts a run and returns its handle.
func (r *Runner) Spawn(job Job) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRunnerClosed
	}

	h := &Handle{done: make(chan struct{})}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(h.done)
		defer func() {
			if p := recover(); p != nil {
				slog.Error("audit run panicked", "audit_id", job.AuditID, "panic", p)
				if err := r.engine.records.Fail(context.Background(), job.AuditID); err != nil && !errors.Is(err, ErrAlreadyTerminal) {
					slog.Error("failed to mark audit failed", "audit_id", job.AuditID, "error", err)
				}
				h.err = errors.Join(ErrWorkerFailure, errors.New("panic during audit run"))
			}
		}()
		h.err = r.engine.Run(r.ctx, job)
	}()
	return h, nil
}

// Dispatch implements Dispatcher. The run's outcome is recorded on the
// audit itself.
func (r *Runner) Dispatch(_ context.Context, job Job) error {
	_, err := r.Spawn(job)
	return err
}

// Shutdown stops accepting runs, cancels the ones in flight and waits for
// them to record their outcome or for ctx to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FailOnDispatchError marks the audit failed when handing it to d did not
// work, so that it does not stay running forever.
func FailOnDispatchError(ctx context.Context, d Dispatcher, records Recorder, job Job) {
	err := d.Dispatch(ctx, job)
	if err == nil {
		return
	}
	slog.ErrorContext(ctx, "failed to dispatch audit", "audit_id", job.AuditID, "error", err)
	if err := records.Fail(context.WithoutCancel(ctx), job.AuditID); err != nil && !errors.Is(err, ErrAlreadyTerminal) {
		slog.ErrorContext(ctx, "failed to mark undispatched audit failed", "audit_id", job.AuditID, "error", err)
	}
}
