// Package storage publishes finished clips to a remote object store and
// derives their public URLs.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/clipforge/clipgen/internal/config"
)

// ContentTypeMP4 is the content type of every published clip.
const ContentTypeMP4 = "video/mp4"

// Publisher uploads a payload under key in a single attempt and returns the
// object's public URL. No retry is performed.
type Publisher interface {
	Upload(ctx context.Context, data []byte, key, contentType string) (string, error)
}

// UploadError represents a non-success response from the object store.
// Status and body are carried verbatim for operator diagnosis.
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("storage upload failed: %d %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx).
// Client errors (4xx) are considered permanent.
func (e *UploadError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// escapeKey escapes each path segment of an object key for use in a URL.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// New builds the publisher selected by cfg.Storage().Backend.
func New(cfg config.Config, logger *slog.Logger) (Publisher, error) {
	sc := cfg.Storage()
	switch sc.Backend {
	case config.BackendSupabase, "":
		return NewSupabaseClient(sc.BaseURL, sc.ServiceKey, sc.Bucket, cfg.UploadTimeout(), logger), nil
	case config.BackendS3:
		return NewS3Publisher(S3Options{
			Bucket:          sc.Bucket,
			Region:          sc.Region,
			Endpoint:        sc.Endpoint,
			PublicBaseURL:   sc.PublicBaseURL,
			AccessKeyID:     sc.AccessKeyID,
			SecretAccessKey: sc.SecretAccessKey,
			Timeout:         cfg.UploadTimeout(),
		}, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
	}
}
