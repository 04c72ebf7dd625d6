// Package clip turns a recording window and a chat screenshot into a
// published MP4 clip: validate, slice audio, compose video, upload.
package clip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/clipforge/clipgen/internal/history"
	"github.com/clipforge/clipgen/internal/logging"
	"github.com/clipforge/clipgen/internal/still"
	"github.com/clipforge/clipgen/internal/storage"
	"github.com/clipforge/clipgen/internal/transcode"
	"github.com/clipforge/clipgen/internal/workspace"
)

// Artifact is the produced clip, held in memory between compose and upload.
type Artifact struct {
	Data      []byte
	Key       string
	PublicURL string
}

// Result is either a published clip URL or a Failure.
type Result struct {
	PublicURL string
	Key       string
	Failure   *Failure
}

func (r Result) OK() bool {
	return r.Failure == nil
}

type Options struct {
	FFmpegPath   string
	StageTimeout time.Duration
	Workspaces   *workspace.Manager
	Runner       transcode.Runner
	Publisher    storage.Publisher
	// History is optional; nil disables the ledger.
	History history.Repository
	Logger  *slog.Logger
}

type Generator struct {
	ffmpegPath   string
	stageTimeout time.Duration
	workspaces   *workspace.Manager
	runner       transcode.Runner
	publisher    storage.Publisher
	history      history.Repository
	logger       *slog.Logger
}

func NewGenerator(opts Options) *Generator {
	return &Generator{
		ffmpegPath:   opts.FFmpegPath,
		stageTimeout: opts.StageTimeout,
		workspaces:   opts.Workspaces,
		runner:       opts.Runner,
		publisher:    opts.Publisher,
		history:      opts.History,
		logger:       logging.WithComponent(logging.OrDiscard(opts.Logger), "clip"),
	}
}

// Generate runs the full pipeline for one request. It never returns an
// error: every outcome, including unexpected faults, is a Result.
//
// Stages and the upload run detached from ctx cancellation so that a
// client hanging up does not abort work midway; the per-stage timeouts are
// the only cancellation.
func (g *Generator) Generate(ctx context.Context, raw RawRequest) Result {
	start := time.Now()

	req, err := ParseRequest(raw)
	if err != nil {
		f := AsFailure(err)
		g.logger.Info("clip request rejected", "reason", f.Reason)
		return Result{Failure: f}
	}

	logger := logging.WithCallID(g.logger, req.CallID, req.ExchangeIndex)
	logger.Info("clip generation started",
		"recording_url", logging.SanitizeURL(req.RecordingURL),
		"start_seconds", req.StartSeconds,
		"end_seconds", req.EndSeconds,
	)

	ctx = context.WithoutCancel(ctx)
	recordID := g.recordStart(ctx, req, logger)

	res, size := g.run(ctx, req, logger)

	elapsed := time.Since(start)
	g.recordOutcome(ctx, recordID, res, size, elapsed, logger)

	if res.OK() {
		logger.Info("clip generation succeeded",
			"key", res.Key,
			"size_bytes", size,
			"duration_ms", elapsed.Milliseconds(),
		)
	} else {
		logger.Warn("clip generation failed",
			"kind", res.Failure.Kind,
			"stage", res.Failure.Stage,
			"error", truncate(res.Failure.Reason, 512),
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	return res
}

// run owns the workspace for the lifetime of the request. A panic anywhere
// below is converted into an infrastructure failure after the workspace has
// been released.
func (g *Generator) run(ctx context.Context, req Request, logger *slog.Logger) (res Result, size int64) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("clip generation panicked", "panic", r)
			res = Result{Failure: infrastructureFailure(fmt.Errorf("internal error: %v", r))}
			size = 0
		}
	}()

	err := g.workspaces.With(func(ws *workspace.Workspace) error {
		art, err := g.produce(ctx, req, ws, logger)
		if err != nil {
			return err
		}
		size = int64(len(art.Data))

		if err := g.publish(ctx, art); err != nil {
			return err
		}
		res = Result{PublicURL: art.PublicURL, Key: art.Key}
		return nil
	})
	if err != nil {
		return Result{Failure: AsFailure(err)}, size
	}
	return res, size
}

// produce writes the still image, runs both stages and reads the output.
func (g *Generator) produce(ctx context.Context, req Request, ws *workspace.Workspace, logger *slog.Logger) (*Artifact, error) {
	img, err := DecodeImage(req.ChatImageBase64)
	if err != nil {
		return nil, invalid("%s is not valid base64: %v", FieldChatImageBase64, err)
	}
	img, info := still.Prepare(img)
	if info.Padded {
		logger.Debug("padded chat image to even dimensions", "width", info.Width, "height", info.Height)
	}
	if err := os.WriteFile(ws.ImagePath(), img, 0o600); err != nil {
		return nil, fmt.Errorf("write chat image: %w", err)
	}

	if err := g.stage(ctx, StageSlice, "FFmpeg slice failed", SliceArgs(req, ws.AudioPath())); err != nil {
		return nil, err
	}
	if err := g.stage(ctx, StageCompose, "FFmpeg video generation failed", ComposeArgs(ws.ImagePath(), ws.AudioPath(), ws.OutputPath())); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(ws.OutputPath())
	if err != nil {
		return nil, fmt.Errorf("read composed clip: %w", err)
	}
	return &Artifact{Data: data, Key: StorageKey(req.CallID, req.ExchangeIndex)}, nil
}

func (g *Generator) stage(ctx context.Context, stage Stage, prefix string, args []string) error {
	res, err := g.runner.Run(ctx, g.ffmpegPath, args, g.stageTimeout)
	if err != nil {
		return fmt.Errorf("%s stage: %w", stage, err)
	}
	if res.IsSuccess() {
		return nil
	}

	detail := strings.TrimSpace(res.Stderr)
	if res.TimedOut {
		detail = fmt.Sprintf("timed out after %s", g.stageTimeout)
	} else if detail == "" {
		detail = fmt.Sprintf("exit code %d", res.ExitCode)
	}
	return &Failure{
		Kind:   KindStage,
		Stage:  stage,
		Reason: prefix + ": " + detail,
	}
}

func (g *Generator) publish(ctx context.Context, art *Artifact) error {
	url, err := g.publisher.Upload(ctx, art.Data, art.Key, storage.ContentTypeMP4)
	if err != nil {
		reason := err.Error()
		var uploadErr *storage.UploadError
		if !errors.As(err, &uploadErr) {
			reason = "storage upload failed: " + reason
		}
		return &Failure{Kind: KindUpload, Stage: StageUpload, Reason: reason, Err: err}
	}
	art.PublicURL = url
	return nil
}

func (g *Generator) recordStart(ctx context.Context, req Request, logger *slog.Logger) string {
	if g.history == nil {
		return ""
	}
	rec := &history.Record{
		CallID:        req.CallID,
		ExchangeIndex: req.ExchangeIndex,
		RecordingURL:  logging.SanitizeURL(req.RecordingURL),
		StartSeconds:  req.StartSeconds,
		EndSeconds:    req.EndSeconds,
		Status:        history.StatusRunning,
	}
	if err := g.history.Create(ctx, rec); err != nil {
		logger.Warn("failed to record clip start", "error", err)
		return ""
	}
	return rec.ID
}

func (g *Generator) recordOutcome(ctx context.Context, id string, res Result, size int64, elapsed time.Duration, logger *slog.Logger) {
	if g.history == nil || id == "" {
		return
	}
	var err error
	if res.OK() {
		err = g.history.MarkSucceeded(ctx, id, res.Key, res.PublicURL, size, elapsed)
	} else {
		f := res.Failure
		err = g.history.MarkFailed(ctx, id, string(f.Kind), string(f.Stage), f.Reason, elapsed)
	}
	if err != nil {
		logger.Warn("failed to record clip outcome", "record_id", id, "error", err)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	start := len(s) - maxLen
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return "..." + s[start:]
}
