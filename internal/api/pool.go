package api

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/panjf2000/ants/v2"

	"github.com/clipforge/clipgen/internal/logging"
)

// ErrSaturated is returned by Pool.Do when every worker is busy and the
// wait queue is full.
var ErrSaturated = errors.New("clip generator is at capacity")

// ErrWorkerPanic is returned when a generation panics outside the
// generator's own recovery.
var ErrWorkerPanic = errors.New("clip generation panicked")

// Pool runs generations on a fixed number of workers. Callers beyond the
// worker count wait in a bounded queue; maxQueued of 0 rejects them
// immediately.
type Pool struct {
	pool   *ants.Pool
	logger *slog.Logger
}

func NewPool(workers, maxQueued int, logger *slog.Logger) (*Pool, error) {
	logger = logging.OrDiscard(logger)

	var opts []ants.Option
	if maxQueued > 0 {
		opts = append(opts, ants.WithMaxBlockingTasks(maxQueued))
	} else {
		opts = append(opts, ants.WithNonblocking(true))
	}

	p, err := ants.NewPool(workers, opts...)
	if err != nil {
		return nil, fmt.Errorf("create generation pool: %w", err)
	}
	return &Pool{pool: p, logger: logger}, nil
}

// Do runs fn on a worker and waits for it to return. A panic in fn is
// reported as ErrWorkerPanic.
func (p *Pool) Do(fn func()) error {
	done := make(chan struct{})
	var runErr error
	err := p.pool.Submit(func() {
		defer close(done)
		runErr = protect(fn, p.logger)
	})
	if err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			p.logger.Warn("generation pool saturated",
				"running", p.pool.Running(),
				"waiting", p.pool.Waiting(),
			)
			return ErrSaturated
		}
		return fmt.Errorf("submit generation: %w", err)
	}
	<-done
	return runErr
}

// protect runs fn and converts a panic into ErrWorkerPanic.
func protect(fn func(), logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("generation panicked", "panic", r)
			err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
		}
	}()
	fn()
	return nil
}

func (p *Pool) Running() int {
	return p.pool.Running()
}

func (p *Pool) Release() {
	p.pool.Release()
}
