package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/scanara-ai/scanara-backend/internal/audit"
	"github.com/scanara-ai/scanara-backend/internal/config"
)

// auditTimeout bounds a queued run well above the analysis delay.
const auditTimeout = 5 * time.Minute

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type Client struct {
	client enqueuer
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{client: asynq.NewClient(RedisOpt(cfg))}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueAuditRun schedules one run of the audit engine. Runs are never
// retried: a failed run has already marked its audit failed.
func (c *Client) EnqueueAuditRun(ctx context.Context, payload AuditRunPayload) error {
	return c.enqueue(ctx, TypeAuditRun, payload,
		asynq.Queue(QueueAudits),
		asynq.MaxRetry(0),
		asynq.Timeout(auditTimeout),
	)
}

// Dispatch implements audit.Dispatcher.
func (c *Client) Dispatch(ctx context.Context, job audit.Job) error {
	return c.EnqueueAuditRun(ctx, AuditRunPayload{
		AuditID: job.AuditID,
		UserID:  job.UserID,
		AppID:   job.AppID,
	})
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload interface{}, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	_, err = c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
