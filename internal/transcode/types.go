// Package transcode runs the external transcoding binary as a subprocess
// with a hard wall-clock timeout and captured output.
package transcode

import (
	"context"
	"time"
)

// ExitCodeUnknown is reported when the process did not exit on its own
// (timeout) or its exit status could not be determined.
const ExitCodeUnknown = -1

// StageResult is the outcome of one external invocation. It is consumed
// immediately by the caller and never persisted.
type StageResult struct {
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout,omitempty"` // tail, bounded
	Stderr   string        `json:"stderr,omitempty"` // tail, bounded
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly within its timeout.
func (r StageResult) IsSuccess() bool { return !r.TimedOut && r.ExitCode == 0 }

// Runner is the stage-runner contract. A non-zero exit or a timeout is
// reported through StageResult; the error return is reserved for
// infrastructure faults such as a missing binary or a permission error.
type Runner interface {
	Run(ctx context.Context, binary string, args []string, timeout time.Duration) (StageResult, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, binary string, args []string, timeout time.Duration) (StageResult, error)

func (f RunnerFunc) Run(ctx context.Context, binary string, args []string, timeout time.Duration) (StageResult, error) {
	return f(ctx, binary, args, timeout)
}
