package api

import (
	"time"

	"github.com/clipforge/clipgen/internal/clip"
	"github.com/clipforge/clipgen/internal/history"
)

type HealthResponse struct {
	Status          string `json:"status"`
	FFmpegAvailable bool   `json:"ffmpeg_available"`
}

type ClipResponse struct {
	ClipURL string `json:"clipUrl"`
}

// FailureResponse is the body of every failed generation. Kind and Stage
// let callers branch without parsing Error.
type FailureResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Stage string `json:"stage"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type ClipRecordResponse struct {
	ID            string  `json:"id"`
	CallID        string  `json:"call_id"`
	ExchangeIndex int     `json:"exchange_index"`
	RecordingURL  string  `json:"recording_url"`
	StartSeconds  float64 `json:"start_seconds"`
	EndSeconds    float64 `json:"end_seconds"`
	Status        string  `json:"status"`
	StorageKey    string  `json:"storage_key,omitempty"`
	ClipURL       string  `json:"clip_url,omitempty"`
	FailureKind   string  `json:"failure_kind,omitempty"`
	FailedStage   string  `json:"failed_stage,omitempty"`
	Error         string  `json:"error,omitempty"`
	SizeBytes     int64   `json:"size_bytes"`
	DurationMS    int64   `json:"duration_ms"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

type ClipsResponse struct {
	Clips []ClipRecordResponse `json:"clips"`
}

func FailureToResponse(f *clip.Failure) FailureResponse {
	return FailureResponse{
		Error: f.Reason,
		Kind:  string(f.Kind),
		Stage: string(f.Stage),
	}
}

func RecordToResponse(r *history.Record) ClipRecordResponse {
	return ClipRecordResponse{
		ID:            r.ID,
		CallID:        r.CallID,
		ExchangeIndex: r.ExchangeIndex,
		RecordingURL:  r.RecordingURL,
		StartSeconds:  r.StartSeconds,
		EndSeconds:    r.EndSeconds,
		Status:        r.Status,
		StorageKey:    r.StorageKey,
		ClipURL:       r.PublicURL,
		FailureKind:   r.FailureKind,
		FailedStage:   r.FailedStage,
		Error:         r.Error,
		SizeBytes:     r.SizeBytes,
		DurationMS:    r.DurationMS,
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     r.UpdatedAt.Format(time.RFC3339),
	}
}
