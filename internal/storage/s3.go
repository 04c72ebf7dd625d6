package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/clipforge/clipgen/internal/logging"
)

// objectPutter is the subset of the S3 API the publisher needs.
type objectPutter interface {
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// S3Options configures an S3-compatible backend. Endpoint is only set for
// non-AWS stores (MinIO, R2) and implies path-style addressing.
type S3Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	PublicBaseURL   string
	AccessKeyID     string
	SecretAccessKey string
	Timeout         time.Duration
}

type S3Publisher struct {
	svc           objectPutter
	bucket        string
	publicBaseURL string
	timeout       time.Duration
	logger        *slog.Logger
}

func NewS3Publisher(opts S3Options, logger *slog.Logger) (*S3Publisher, error) {
	cfg := &aws.Config{
		Region:     aws.String(opts.Region),
		MaxRetries: aws.Int(0),
		HTTPClient: &http.Client{Timeout: opts.Timeout},
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = aws.String(opts.Endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if opts.AccessKeyID != "" {
		cfg.Credentials = credentials.NewStaticCredentials(opts.AccessKeyID, opts.SecretAccessKey, "")
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}

	return newS3Publisher(s3.New(sess), opts, logger), nil
}

func newS3Publisher(svc objectPutter, opts S3Options, logger *slog.Logger) *S3Publisher {
	base := strings.TrimRight(opts.PublicBaseURL, "/")
	if base == "" {
		switch {
		case opts.Endpoint != "":
			base = strings.TrimRight(opts.Endpoint, "/") + "/" + opts.Bucket
		default:
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
		}
	}
	return &S3Publisher{
		svc:           svc,
		bucket:        opts.Bucket,
		publicBaseURL: base,
		timeout:       opts.Timeout,
		logger:        logging.OrDiscard(logger),
	}
}

func (p *S3Publisher) PublicURL(key string) string {
	return p.publicBaseURL + "/" + escapeKey(key)
}

func (p *S3Publisher) Upload(ctx context.Context, data []byte, key, contentType string) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	p.logger.Info("uploading clip to s3",
		"bucket", p.bucket,
		"key", key,
		"body_bytes", len(data),
	)

	start := time.Now()
	_, err := p.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		var reqErr awserr.RequestFailure
		if errors.As(err, &reqErr) {
			p.logger.Warn("s3 rejected upload",
				"status", reqErr.StatusCode(),
				"code", reqErr.Code(),
				"key", key,
			)
			return "", &UploadError{
				StatusCode: reqErr.StatusCode(),
				Body:       fmt.Sprintf("%s: %s", reqErr.Code(), reqErr.Message()),
			}
		}
		return "", fmt.Errorf("s3 put object: %w", err)
	}

	p.logger.Info("clip upload succeeded",
		"key", key,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return p.PublicURL(key), nil
}
