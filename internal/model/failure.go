package model

import (
	"encoding/json"
	"time"
)

// EscalationFailure is one failed secondary-scoring attempt, appended to the
// failure log so a retry driver can re-run it later.
type EscalationFailure struct {
	ID        string            `json:"id"`
	SourceID  string            `json:"source_id"`
	Request   json.RawMessage   `json:"request"`
	Error     string            `json:"error"`
	Kind      string            `json:"kind"`
	Transient bool              `json:"transient"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
	NextRetryAt  time.Time `json:"next_retry_at"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// CanRetry returns true if this entry hasn't exceeded its max retry count.
func (f *EscalationFailure) CanRetry() bool {
	return f.RetryCount < f.MaxRetries
}

// FailureFilter specifies criteria for listing failure log entries.
type FailureFilter struct {
	Kind    string    `json:"kind,omitempty"`
	DueOnly bool      `json:"due_only,omitempty"`
	Now     time.Time `json:"-"`
	Limit   int       `json:"limit,omitempty"`
}
