package xrkconv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/xrkconv/internal/logging"
	"github.com/aretw0/xrkconv/pkg/adapters/process"
	"github.com/aretw0/xrkconv/pkg/archive"
	"github.com/aretw0/xrkconv/pkg/domain"
	"github.com/aretw0/xrkconv/pkg/environment"
	"github.com/aretw0/xrkconv/pkg/output"
	"github.com/aretw0/xrkconv/pkg/ports"
	"github.com/aretw0/xrkconv/pkg/results"
	"github.com/aretw0/xrkconv/pkg/workspace"
	"golang.org/x/sync/semaphore"
)

// DefaultTimeout bounds a converter run when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Minute

// ErrClosed is returned by Convert after Close.
var ErrClosed = errors.New("service closed")

// Config describes where the service works and what it runs.
type Config struct {
	WorkspaceRoot string

	// OutputDir is the workspace subdirectory the converter populates.
	OutputDir string

	Executable process.Template

	// Assets are paths relative to AssetRoot staged into every workspace.
	AssetRoot string
	Assets    []string

	// RuntimeRoots are prepended, in order, to SearchVar.
	RuntimeRoots []string
	SearchVar    string
	FixedEnv     map[string]string

	Timeout       time.Duration
	MaxConcurrent int

	// SessionTTL bounds how long a crashed replica's registration protects its workspaces.
	SessionTTL time.Duration
	LockTTL    time.Duration
}

// Upload is one inbound artifact.
type Upload struct {
	Name string
	Body io.Reader
}

// Service is the conversion orchestrator.
type Service struct {
	cfg Config

	workspaces *workspace.Manager
	env        *environment.Builder
	executor   ports.Executor
	results    *results.Store
	baseEnv    domain.Environment

	registry ports.SessionRegistry
	locker   ports.DistributedLocker
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	now      func() time.Time

	sem      *semaphore.Weighted
	teardown sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Option defines a functional option for configuring the Service.
type Option func(*Service)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Service) {
		s.hooks = hooks
	}
}

// WithExecutor replaces the subprocess runner.
func WithExecutor(e ports.Executor) Option {
	return func(s *Service) {
		s.executor = e
	}
}

// WithRegistry records live sessions somewhere other than process memory.
func WithRegistry(r ports.SessionRegistry) Option {
	return func(s *Service) {
		s.registry = r
	}
}

// WithLocker serializes sweeps across replicas.
func WithLocker(l ports.DistributedLocker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

// WithResults keeps a copy of every delivered artifact.
func WithResults(store *results.Store) Option {
	return func(s *Service) {
		s.results = store
	}
}

// WithBaseEnvironment replaces the ambient process environment the
// per-session environment is derived from.
func WithBaseEnvironment(env domain.Environment) Option {
	return func(s *Service) {
		s.baseEnv = env
	}
}

// New wires a Service from cfg.
func New(cfg Config, opts ...Option) (*Service, error) {
	if cfg.WorkspaceRoot == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	if cfg.Executable.Command == "" {
		return nil, fmt.Errorf("executable command is required")
	}
	// The converter runs with the workspace as its working directory, so
	// every path handed to it must be absolute.
	root, err := filepath.Abs(cfg.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("invalid workspace root: %w", err)
	}
	cfg.WorkspaceRoot = root
	roots := make([]string, 0, len(cfg.RuntimeRoots))
	for _, r := range cfg.RuntimeRoots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("invalid runtime root %s: %w", r, err)
		}
		roots = append(roots, abs)
	}
	cfg.RuntimeRoots = roots

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = runtime.NumCPU()
	}

	s := &Service{
		cfg:     cfg,
		logger:  logging.NewNop(),
		now:     time.Now,
		baseEnv: domain.NewEnvironment(os.Environ()),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.executor == nil {
		s.executor = process.NewRunner(process.WithLogger(s.logger))
	}

	wsOpts := []workspace.Option{
		workspace.WithLogger(s.logger),
		workspace.WithSessionTTL(cfg.SessionTTL),
	}
	if s.registry != nil {
		wsOpts = append(wsOpts, workspace.WithRegistry(s.registry))
	}
	if s.locker != nil {
		wsOpts = append(wsOpts, workspace.WithLocker(s.locker))
	}
	s.workspaces = workspace.NewManager(cfg.WorkspaceRoot, cfg.OutputDir, wsOpts...)

	// Skipped roots are logged per session in convert.
	s.env = environment.NewBuilder(cfg.SearchVar,
		environment.WithFixed(cfg.FixedEnv),
	)
	s.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))

	return s, nil
}

// Convert runs one upload through the pipeline. On success the caller must
// Close the returned Delivery once its content has been consumed; on failure
// the workspace is already scheduled for removal.
func (s *Service) Convert(ctx context.Context, up Upload) (*Delivery, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	// Waiting for a slot happens before anything touches the disk.
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: waiting for a worker: %w", domain.ErrCanceled, err)
	}
	defer s.sem.Release(1)

	sess, err := s.workspaces.Create(ctx)
	if err != nil {
		s.logger.Error("workspace creation failed", "err", err)
		return nil, &domain.ConversionError{State: domain.StateStagingFailed, Err: err}
	}

	logger := s.logger.With("session_id", sess.ID)
	logger.Info("session started", "upload", up.Name)
	if s.hooks.OnSessionStart != nil {
		s.hooks.OnSessionStart(ctx, &domain.SessionEvent{
			Timestamp: s.now(),
			SessionID: sess.ID,
			State:     sess.State,
			Status:    sess.Status,
		})
	}

	d, err := s.convert(ctx, sess, up, logger)
	if err != nil {
		var ce *domain.ConversionError
		if errors.As(err, &ce) {
			sess.Advance(ce.State)
		}
		logFailure(logger, err)
		s.end(ctx, sess, domain.ResultOf(err), err)
		s.scheduleTeardown(sess, logger)
		return nil, err
	}
	return d, nil
}

func (s *Service) convert(ctx context.Context, sess *domain.Session, up Upload, logger *slog.Logger) (*Delivery, error) {
	if err := s.workspaces.Stage(ctx, sess, s.cfg.AssetRoot, s.cfg.Assets); err != nil {
		return nil, &domain.ConversionError{State: domain.StateStagingFailed, Err: err}
	}
	if _, err := s.workspaces.StageInput(sess, up.Name, up.Body); err != nil {
		state := domain.StateStagingFailed
		if domain.IsBadRequest(err) {
			state = domain.StateRejected
		}
		return nil, &domain.ConversionError{State: state, Err: err}
	}

	env, warnings := s.env.Build(s.baseEnv, sess.Workspace, s.cfg.RuntimeRoots)
	for _, w := range warnings {
		logger.Warn("dependency root skipped", "path", w.Path, "reason", w.Reason, "var", s.env.SearchVar)
	}
	path, args := s.cfg.Executable.Render(process.Vars{
		Input:     sess.InputPath,
		OutputDir: sess.OutputDir,
		Workspace: sess.Workspace,
		Session:   sess.ID,
	})

	logger.Debug("running converter", "path", path, "args", args)
	res, err := s.executor.Run(ctx, domain.Command{
		Path:    path,
		Args:    args,
		Dir:     sess.Workspace,
		Env:     env,
		Timeout: s.cfg.Timeout,
	})
	if err != nil {
		return nil, &domain.ConversionError{State: domain.StateExecutionFailed, Err: err}
	}
	sess.Advance(domain.StateExecuted)

	switch res.Outcome {
	case domain.OutcomeTimedOut:
		return nil, &domain.ConversionError{State: domain.StateExecutionFailed, Err: domain.ErrExecutionTimeout, Result: res}
	case domain.OutcomeCanceled:
		return nil, &domain.ConversionError{State: domain.StateExecutionFailed, Err: domain.ErrCanceled, Result: res}
	case domain.OutcomeFailed:
		return nil, &domain.ConversionError{
			State:  domain.StateExecutionFailed,
			Err:    fmt.Errorf("%w (exit code %d)", domain.ErrExecutionFailed, res.ExitCode),
			Result: res,
		}
	}

	files, err := output.Collect(sess.OutputDir)
	if err != nil {
		return nil, &domain.ConversionError{State: domain.StateOutputMissing, Err: err, Result: res}
	}
	res.Outputs = files
	sess.Advance(domain.StateOutputResolved)

	d := &Delivery{
		SessionID: sess.ID,
		Result:    res,
		Path:      files[0],
		Name:      filepath.Base(files[0]),
		service:   s,
		session:   sess,
		logger:    logger,
	}
	if len(files) > 1 {
		if err := archive.Pack(files, sess.ArchivePath); err != nil {
			return nil, &domain.ConversionError{State: domain.StateOutputMissing, Err: err, Result: res}
		}
		d.Path = sess.ArchivePath
		d.Name = archiveName(up.Name, sess.ID)
		d.Archive = true
	}

	if digest, err := archive.Digest(d.Path); err != nil {
		logger.Warn("failed to digest artifact", "err", err)
	} else {
		d.Digest = digest
	}

	if s.results != nil {
		retained, err := s.results.Retain(d.Path, up.Name)
		if err != nil {
			logger.Warn("failed to retain result", "err", err)
		} else {
			d.RetainedPath = retained
		}
	}

	logger.Info("conversion succeeded",
		"files", len(files),
		"artifact", d.Name,
		"digest", d.Digest,
		"duration", res.Duration,
	)
	return d, nil
}

// archiveName names a multi-file delivery after the upload.
func archiveName(upload, sessionID string) string {
	base := workspace.SanitizeName(upload)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if upload == "" || stem == "" {
		stem = sessionID
	}
	return stem + workspace.ArchiveExt
}

func logFailure(logger *slog.Logger, err error) {
	attrs := []any{"err", err}
	if res := domain.ResultOf(err); res != nil {
		attrs = append(attrs, "exit_code", res.ExitCode, "duration", res.Duration, "stderr", res.Stderr)
	}
	switch {
	case domain.IsBadRequest(err):
		logger.Info("conversion rejected", attrs...)
	case errors.Is(err, domain.ErrCanceled):
		logger.Info("conversion canceled", attrs...)
	default:
		logger.Error("conversion failed", attrs...)
	}
}

func (s *Service) end(ctx context.Context, sess *domain.Session, res *domain.Result, err error) {
	if s.hooks.OnSessionEnd == nil {
		return
	}
	e := &domain.SessionEvent{
		Timestamp: s.now(),
		SessionID: sess.ID,
		State:     sess.State,
		Status:    sess.Status,
		Err:       err,
	}
	if res != nil {
		e.Outcome = res.Outcome
		e.Duration = res.Duration
		e.OutputFiles = len(res.Outputs)
	}
	s.hooks.OnSessionEnd(context.WithoutCancel(ctx), e)
}

// scheduleTeardown removes the session in the background. Failures are
// logged and left for the next sweep.
func (s *Service) scheduleTeardown(sess *domain.Session, logger *slog.Logger) {
	s.teardown.Add(1)
	go func() {
		defer s.teardown.Done()
		if err := s.workspaces.Destroy(context.Background(), sess); err != nil {
			logger.Warn("failed to remove workspace", "err", err)
			return
		}
		logger.Debug("workspace removed")
	}()
}

// Sweep removes stale workspaces left by earlier runs. Live sessions, whether
// owned by this process or by another replica sharing the registry, are kept.
func (s *Service) Sweep(ctx context.Context, minAge time.Duration) (workspace.SweepReport, error) {
	report, err := s.workspaces.Sweep(ctx, workspace.Retention{MinAge: minAge, LockTTL: s.cfg.LockTTL})
	if err != nil {
		return report, err
	}
	s.logger.Info("sweep finished",
		"root", s.workspaces.Root(),
		"removed", len(report.Removed),
		"kept", report.Kept,
		"failed", report.Failed,
	)
	if s.hooks.OnSweep != nil {
		s.hooks.OnSweep(ctx, &domain.SweepEvent{
			Timestamp: s.now(),
			Removed:   len(report.Removed),
			Kept:      report.Kept,
			Failed:    report.Failed,
		})
	}
	return report, nil
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops accepting conversions and waits for scheduled teardowns.
// Deliveries still open are not waited for.
func (s *Service) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.teardown.Wait()
	return nil
}
