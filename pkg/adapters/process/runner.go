package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/aretw0/xrkconv/internal/logging"
	"github.com/aretw0/xrkconv/pkg/domain"
)

// errDeadline is the cancellation cause attached to a Command's own timeout, so
// it can be told apart from the caller abandoning the request.
var errDeadline = errors.New("execution deadline exceeded")

// DefaultWaitDelay bounds how long Wait keeps reading the output pipes after the
// process is gone, in case an orphaned grandchild still holds them open.
const DefaultWaitDelay = 5 * time.Second

// Runner implements ports.Executor with local processes.
type Runner struct {
	logger    *slog.Logger
	waitDelay time.Duration
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithWaitDelay overrides DefaultWaitDelay.
func WithWaitDelay(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.waitDelay = d
	}
}

// NewRunner creates a new Process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		logger:    logging.NewNop(),
		waitDelay: DefaultWaitDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run launches c.Path in c.Dir with exactly c.Env and waits for it.
//
// The returned error is non-nil only when the process could not be started; it
// wraps domain.ErrSpawn. Every other ending (success, non-zero exit, timeout,
// cancellation) is described by the Result.
func (r *Runner) Run(ctx context.Context, c domain.Command) (*domain.Result, error) {
	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeoutCause(ctx, c.Timeout, errDeadline)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env.Pairs()
	cmd.WaitDelay = r.waitDelay
	killProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("starting converter", "path", c.Path, "args", c.Args, "dir", c.Dir, "timeout", c.Timeout)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrSpawn, c.Path, err)
	}
	waitErr := cmd.Wait()

	result := &domain.Result{
		Outcome:  domain.OutcomeSucceeded,
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(context.Cause(runCtx), errDeadline):
			result.Outcome = domain.OutcomeTimedOut
		case ctx.Err() != nil:
			result.Outcome = domain.OutcomeCanceled
		case errors.As(waitErr, &exitErr):
			result.Outcome = domain.OutcomeFailed
		default:
			// The process exited but its output could not be drained.
			result.Outcome = domain.OutcomeFailed
			r.logger.Warn("converter wait failed", "path", c.Path, "error", waitErr)
		}
	}

	r.logger.Debug("converter finished",
		"path", c.Path,
		"outcome", result.Outcome,
		"exit_code", result.ExitCode,
		"duration", result.Duration,
	)
	return result, nil
}
