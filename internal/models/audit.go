package models

type AuditStatus string

const (
	AuditRunning   AuditStatus = "running"
	AuditCompleted AuditStatus = "completed"
	AuditFailed    AuditStatus = "failed"
)

func (s AuditStatus) Valid() bool {
	switch s {
	case AuditRunning, AuditCompleted, AuditFailed:
		return true
	}
	return false
}

func (s AuditStatus) Terminal() bool {
	return s == AuditCompleted || s == AuditFailed
}

// CanTransition reports whether an audit may move from s to next. Running is
// the only state with outgoing edges; rewriting a terminal state with itself
// is allowed so that finding updates can echo the status back.
func (s AuditStatus) CanTransition(next AuditStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == AuditRunning {
		return true
	}
	return s == next
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

type Finding struct {
	ID          string   `json:"id" validate:"required"`
	Category    string   `json:"category"`
	File        string   `json:"file"`
	Line        int      `json:"line"`
	Severity    Severity `json:"severity" validate:"oneof=critical warning info"`
	Description string   `json:"description"`
	Suggestion  string   `json:"suggestion"`
	Resolved    bool     `json:"resolved"`
	NextSteps   []string `json:"nextSteps"`
}

// Audit is one run of the compliance scan against an App. Score, IsCompliant
// and Findings are only set once the audit has completed.
type Audit struct {
	ID          string      `json:"id"`
	UserID      string      `json:"userId" validate:"required"`
	AppID       string      `json:"appId" validate:"required"`
	Status      AuditStatus `json:"status" validate:"oneof=running completed failed"`
	Score       *int        `json:"score,omitempty"`
	IsCompliant *bool       `json:"isCompliant,omitempty"`
	Findings    []Finding   `json:"findings,omitempty" validate:"omitempty,dive"`
	CreatedAt   string      `json:"createdAt"`
	CompletedAt string      `json:"completedAt,omitempty"`
	UpdatedAt   string      `json:"updatedAt,omitempty"`
}

type CreateAuditRequest struct {
	AppID string `json:"appId" validate:"required"`
}

// AuditPatch is a partial update. Findings replace the stored list as a whole.
type AuditPatch struct {
	Status      *AuditStatus `json:"status"`
	Findings    *[]Finding   `json:"findings" validate:"omitempty,dive"`
	CompletedAt *string      `json:"completedAt"`
	Score       *int         `json:"score" validate:"omitempty,min=0,max=100"`
	IsCompliant *bool        `json:"isCompliant"`
}
