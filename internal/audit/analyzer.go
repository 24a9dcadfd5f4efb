package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/scanara-ai/scanara-backend/internal/models"
)

// CannedAnalyzer stands in for a repository scanner. After a fixed delay it
// reports the same three findings for every app.
type CannedAnalyzer struct {
	Delay time.Duration
	Now   func() time.Time
}

func NewCannedAnalyzer(delay time.Duration) *CannedAnalyzer {
	return &CannedAnalyzer{Delay: delay, Now: time.Now}
}

func (a *CannedAnalyzer) Analyze(ctx context.Context, _ Job) ([]models.Finding, error) {
	if a.Delay > 0 {
		t := time.NewTimer(a.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	stamp := a.Now().UnixMilli()
	findings := cannedFindings()
	for i := range findings {
		findings[i].ID = fmt.Sprintf("%d-%d", stamp, i+1)
	}
	return findings, nil
}

func cannedFindings() []models.Finding {
	return []models.Finding{
		{
			Category:    "Data Storage",
			File:        "src/config/database.js",
			Line:        45,
			Severity:    models.SeverityWarning,
			Description: "PHI data stored without encryption at rest",
			Suggestion:  "Implement AES-256 encryption for database storage. Use environment variables for encryption keys.",
			NextSteps: []string{
				"Generate encryption key using secure random generator",
				"Update database configuration to enable encryption",
				"Migrate existing data to encrypted storage",
				"Test encryption/decryption process",
			},
		},
		{
			Category:    "Logging",
			File:        "src/utils/logger.js",
			Line:        120,
			Severity:    models.SeverityCritical,
			Description: "PHI data logged in plain text",
			Suggestion:  "Remove PHI from logs or implement data masking. Use structured logging with redaction.",
			NextSteps: []string{
				"Install data masking library",
				"Create redaction utility function",
				"Update all logging calls to mask PHI",
				"Review and test log outputs",
			},
		},
		{
			Category:    "Data Transmission",
			File:        "src/api/patient.js",
			Line:        78,
			Severity:    models.SeverityWarning,
			Description: "API endpoint uses HTTP instead of HTTPS",
			Suggestion:  "Enforce HTTPS for all API endpoints. Configure TLS 1.2 or higher.",
			NextSteps: []string{
				"Obtain SSL certificate",
				"Configure web server for HTTPS",
				"Update API endpoints to require HTTPS",
				"Test all endpoints with HTTPS",
			},
		},
	}
}
