package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/clipforge/clipgen/internal/logging"
)

const (
	maxOutputBytes = 8 * 1024 // 8 KB tail of stdout/stderr kept for diagnostics

	// waitDelay bounds how long Wait blocks on output pipes held open by
	// grandchildren after the process itself has been killed.
	waitDelay = 2 * time.Second
)

// ExecRunner is the production Runner. It never goes through a shell: the
// argument vector reaches the binary exactly as given.
type ExecRunner struct {
	logger *slog.Logger
}

func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{logger: logging.OrDiscard(logger)}
}

// Run executes binary with args, killing it once timeout elapses.
func (r *ExecRunner) Run(ctx context.Context, binary string, args []string, timeout time.Duration) (StageResult, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.WaitDelay = waitDelay

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, limit: maxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxOutputBytes}

	r.logger.Debug("executing stage command",
		"binary", binary,
		"argc", len(args),
		"timeout", timeout.String(),
	)

	err := cmd.Run()
	result := StageResult{
		ExitCode: 0,
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			result.TimedOut = true
			result.ExitCode = ExitCodeUnknown
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		case errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil:
			// Exited on its own; only the output pipes outlived it.
			result.ExitCode = cmd.ProcessState.ExitCode()
		case ctx.Err() != nil:
			return result, fmt.Errorf("stage cancelled: %w", ctx.Err())
		default:
			r.logger.Error("stage command could not run", "binary", binary, "error", err)
			return result, fmt.Errorf("run %s: %w", binary, err)
		}
	}

	if result.IsSuccess() {
		r.logger.Info("stage command succeeded",
			"duration_ms", result.Duration.Milliseconds(),
		)
	} else {
		r.logger.Warn("stage command failed",
			"exit_code", result.ExitCode,
			"timed_out", result.TimedOut,
			"duration_ms", result.Duration.Milliseconds(),
			"stderr_tail", truncate(result.Stderr, 512),
		)
	}

	return result, nil
}

// Version runs `<binary> -version` and returns the first line of its
// output. A missing binary, non-zero exit or timeout is an error.
func Version(ctx context.Context, runner Runner, binary string, timeout time.Duration) (string, error) {
	res, err := runner.Run(ctx, binary, []string{"-version"}, timeout)
	if err != nil {
		return "", err
	}
	if res.TimedOut {
		return "", fmt.Errorf("%s -version timed out after %s", binary, timeout)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%s -version exited %d: %s", binary, res.ExitCode, truncate(strings.TrimSpace(res.Stderr), 256))
	}
	line, _, _ := strings.Cut(strings.TrimSpace(res.Stdout), "\n")
	return strings.TrimSpace(line), nil
}

// truncate keeps at most the last maxLen bytes of s without splitting a
// UTF-8 sequence.
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

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		start := len(b) - lw.limit
		for start < len(b) && !utf8.RuneStart(b[start]) {
			start++
		}
		tail := append([]byte(nil), b[start:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
