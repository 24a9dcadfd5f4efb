package queue

import "github.com/scanara-ai/scanara-backend/internal/audit"

const (
	TypeAuditRun = "audit:run"

	QueueAudits = "audits"
)

type AuditRunPayload struct {
	AuditID string `json:"audit_id"`
	UserID  string `json:"user_id"`
	AppID   string `json:"app_id"`
}

func (p AuditRunPayload) Job() audit.Job {
	return audit.Job{AuditID: p.AuditID, UserID: p.UserID, AppID: p.AppID}
}
