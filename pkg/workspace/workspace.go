package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/xrkconv/internal/logging"
	"github.com/aretw0/xrkconv/pkg/adapters/memory"
	"github.com/aretw0/xrkconv/pkg/domain"
	"github.com/aretw0/xrkconv/pkg/ports"
	"github.com/google/uuid"
)

// ArchiveExt is the extension of the derived archive kept beside each workspace.
const ArchiveExt = ".zip"

// DefaultOutputDir is the subdirectory the converter is expected to populate.
const DefaultOutputDir = "data"

const maxCreateAttempts = 8

// Manager owns the workspace root.
type Manager struct {
	root      string
	outputDir string

	registry   ports.SessionRegistry
	locker     ports.DistributedLocker
	sessionTTL time.Duration

	logger *slog.Logger
	newID  func() string
	now    func() time.Time
}

// Option configures the Manager.
type Option func(*Manager)

// WithRegistry sets where live sessions are recorded. Defaults to an in-memory registry.
func WithRegistry(registry ports.SessionRegistry) Option {
	return func(m *Manager) {
		m.registry = registry
	}
}

// WithLocker serializes sweeps across replicas sharing the root.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithSessionTTL bounds how long a registration protects a workspace if its
// owner dies without destroying it. Zero means forever.
func WithSessionTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.sessionTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithIDGenerator replaces the session ID source. IDs must be valid UUIDs.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		m.newID = gen
	}
}

// NewManager creates a Manager rooted at root. An empty outputDir selects DefaultOutputDir.
func NewManager(root, outputDir string, opts ...Option) *Manager {
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}
	m := &Manager{
		root:      root,
		outputDir: outputDir,
		registry:  memory.NewRegistry(),
		logger:    logging.NewNop(),
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the workspace root.
func (m *Manager) Root() string {
	return m.root
}

// Create allocates a fresh session with an empty workspace and its declared
// output directory. Errors wrap domain.ErrWorkspaceCreation.
func (m *Manager) Create(ctx context.Context) (*domain.Session, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: root %s: %v", domain.ErrWorkspaceCreation, m.root, err)
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id := m.newID()
		dir := filepath.Join(m.root, id)
		archive := dir + ArchiveExt

		if taken(dir) || taken(archive) {
			m.logger.Debug("session id collides with an existing workspace", "session_id", id)
			continue
		}

		// Register before the directory exists: a sweep lists the root before
		// reading the live set, so it never sees an unowned session directory.
		if err := m.registry.Register(ctx, id, m.sessionTTL); err != nil {
			return nil, fmt.Errorf("%w: register %s: %v", domain.ErrWorkspaceCreation, id, err)
		}

		err := os.Mkdir(dir, 0o755)
		if errors.Is(err, fs.ErrExist) {
			// Lost a race for the ID; the registration is the other owner's.
			m.logger.Debug("session id collides with an existing workspace", "session_id", id)
			continue
		}
		if err != nil {
			m.unregister(ctx, id)
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrWorkspaceCreation, dir, err)
		}

		session := domain.NewSession(id, dir, filepath.Join(dir, m.outputDir), archive, m.now())

		if err := os.MkdirAll(session.OutputDir, 0o755); err != nil {
			_ = os.RemoveAll(dir)
			m.unregister(ctx, id)
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrWorkspaceCreation, session.OutputDir, err)
		}

		session.Advance(domain.StateWorkspaceReady)
		m.logger.Debug("workspace created", "session_id", id, "path", dir)
		return session, nil
	}

	return nil, fmt.Errorf("%w: no free session id after %d attempts", domain.ErrWorkspaceCreation, maxCreateAttempts)
}

func taken(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func (m *Manager) unregister(ctx context.Context, id string) {
	if err := m.registry.Unregister(context.WithoutCancel(ctx), id); err != nil {
		m.logger.Warn("failed to unregister abandoned session", "session_id", id, "error", err)
	}
}

// Destroy removes the session's workspace and derived archive and forgets the
// session. Destroying an already removed session is not an error.
func (m *Manager) Destroy(ctx context.Context, s *domain.Session) error {
	var errs []error

	if err := os.RemoveAll(s.Workspace); err != nil {
		errs = append(errs, fmt.Errorf("remove workspace: %w", err))
	}
	if err := os.Remove(s.ArchivePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove archive: %w", err))
	}
	// Keep the registration if files are left behind so a concurrent sweep
	// does not race us; the TTL or the next startup sweep reclaims them.
	if len(errs) == 0 {
		if err := m.registry.Unregister(ctx, s.ID); err != nil {
			errs = append(errs, fmt.Errorf("unregister: %w", err))
		}
	}

	return errors.Join(errs...)
}
