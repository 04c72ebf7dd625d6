package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/clipforge/clipgen/internal/logging"
)

const maxErrorBodyBytes = 4096

// SupabaseClient writes objects through the Supabase Storage REST API:
//
//	POST {baseURL}/storage/v1/object/{bucket}/{key}          (authenticated)
//	GET  {baseURL}/storage/v1/object/public/{bucket}/{key}   (public read)
type SupabaseClient struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewSupabaseClient(baseURL, serviceKey, bucket string, timeout time.Duration, logger *slog.Logger) *SupabaseClient {
	return &SupabaseClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logging.OrDiscard(logger),
	}
}

// ObjectURL is the authenticated write endpoint for key.
func (c *SupabaseClient) ObjectURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, escapeKey(key))
}

// PublicURL is the public read address for key. It is derived locally; no
// round trip is needed.
func (c *SupabaseClient) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, c.bucket, escapeKey(key))
}

func (c *SupabaseClient) Upload(ctx context.Context, data []byte, key, contentType string) (string, error) {
	if c.baseURL == "" || c.serviceKey == "" {
		return "", errors.New("storage is not configured: base URL and service key are required")
	}

	uploadURL := c.ObjectURL(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", contentType)

	c.logger.Info("uploading clip to storage",
		"bucket", c.bucket,
		"key", key,
		"body_bytes", len(data),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("storage rejected upload",
			"status", resp.StatusCode,
			"key", key,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return "", &UploadError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	c.logger.Info("clip upload succeeded",
		"key", key,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return c.PublicURL(key), nil
}
