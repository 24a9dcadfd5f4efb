package queue

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// HandlersRegistry maps task types to the workers that process them.
type HandlersRegistry struct {
	mux *asynq.ServeMux
}

func NewHandlersRegistry() *HandlersRegistry {
	return &HandlersRegistry{
		mux: asynq.NewServeMux(),
	}
}

func (r *HandlersRegistry) Register(taskType string, handler asynq.Handler) {
	r.mux.Handle(taskType, handler)
}

func (r *HandlersRegistry) Mux() *asynq.ServeMux {
	return r.mux
}

// NewServer builds the worker server. Only the audits queue is consumed.
func NewServer(opt asynq.RedisClientOpt, concurrency int) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueAudits: 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(logTaskError),
	})
}

func logTaskError(ctx context.Context, task *asynq.Task, err error) {
	id, _ := asynq.GetTaskID(ctx)
	slog.ErrorContext(ctx, "task failed", "type", task.Type(), "task_id", id, "error", err)
}
