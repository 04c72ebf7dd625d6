// Package history keeps a metadata ledger of clip generations. The clip
// bytes themselves are never stored.
package history

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"

	DefaultListLimit = 50
	MaxListLimit     = 500
)

type Record struct {
	ID            string    `json:"id"`
	CallID        string    `json:"call_id"`
	ExchangeIndex int       `json:"exchange_index"`
	RecordingURL  string    `json:"recording_url"`
	StartSeconds  float64   `json:"start_seconds"`
	EndSeconds    float64   `json:"end_seconds"`
	Status        string    `json:"status"`
	StorageKey    string    `json:"storage_key,omitempty"`
	PublicURL     string    `json:"public_url,omitempty"`
	FailureKind   string    `json:"failure_kind,omitempty"`
	FailedStage   string    `json:"failed_stage,omitempty"`
	Error         string    `json:"error,omitempty"`
	SizeBytes     int64     `json:"size_bytes"`
	DurationMS    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// outcome is the terminal state written back onto a running record.
type outcome struct {
	Status      string
	StorageKey  string
	PublicURL   string
	FailureKind string
	FailedStage string
	Error       string
	SizeBytes   int64
	Duration    time.Duration
}

func NewID() string {
	return uuid.NewString()
}
