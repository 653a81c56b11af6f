package environment

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/aretw0/xrkconv/internal/logging"
	"github.com/aretw0/xrkconv/pkg/domain"
)

// WorkspaceToken is expanded to the session workspace in Fixed values.
const WorkspaceToken = "{workspace}"

// Warning records a dependency root that was skipped.
type Warning struct {
	Path   string
	Reason string
}

func (w Warning) String() string {
	return w.Path + ": " + w.Reason
}

// Builder composes per-session environments.
type Builder struct {
	// SearchVar is the variable the dependency roots are prepended to.
	SearchVar string

	// Fixed variables are set after the search path is composed.
	// Values may reference WorkspaceToken.
	Fixed map[string]string

	logger *slog.Logger
	stat   func(string) (os.FileInfo, error)
}

// Option configures the Builder.
type Option func(*Builder)

// WithLogger configures a logger for skipped-root warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithFixed sets variables applied on top of every built environment.
func WithFixed(vars map[string]string) Option {
	return func(b *Builder) {
		b.Fixed = vars
	}
}

// NewBuilder creates a Builder prepending to searchVar.
// An empty searchVar selects DefaultSearchVar for the running platform.
func NewBuilder(searchVar string, opts ...Option) *Builder {
	if searchVar == "" {
		searchVar = DefaultSearchVar(runtime.GOOS)
	}
	b := &Builder{
		SearchVar: searchVar,
		logger:    logging.NewNop(),
		stat:      os.Stat,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns a copy of base with workspace and every existing entry of roots
// prepended, in that order, to the search-path variable. Roots that are missing
// or not directories are skipped and reported as warnings.
func (b *Builder) Build(base domain.Environment, workspace string, roots []string) (domain.Environment, []Warning) {
	var (
		prefix   []string
		warnings []Warning
	)

	if workspace != "" {
		prefix = append(prefix, workspace)
	}

	for _, root := range roots {
		info, err := b.stat(root)
		switch {
		case err != nil:
			warnings = append(warnings, Warning{Path: root, Reason: "not found"})
		case !info.IsDir():
			warnings = append(warnings, Warning{Path: root, Reason: "not a directory"})
		default:
			prefix = append(prefix, root)
		}
	}

	for _, w := range warnings {
		b.logger.Warn("dependency root skipped", "path", w.Path, "reason", w.Reason, "var", b.SearchVar)
	}

	env := base
	if len(prefix) > 0 {
		env = env.With(b.SearchVar, joinSearchPath(prefix, base, b.SearchVar))
	}

	for k, v := range b.Fixed {
		env = env.With(k, strings.ReplaceAll(v, WorkspaceToken, workspace))
	}

	return env, warnings
}

func joinSearchPath(prefix []string, base domain.Environment, key string) string {
	sep := string(filepath.ListSeparator)
	joined := strings.Join(prefix, sep)
	if existing, ok := base.Get(key); ok && existing != "" {
		joined += sep + existing
	}
	return joined
}

// DefaultSearchVar returns the library search variable for goos.
func DefaultSearchVar(goos string) string {
	switch goos {
	case "windows":
		return "PATH"
	case "darwin":
		return "DYLD_LIBRARY_PATH"
	default:
		return "LD_LIBRARY_PATH"
	}
}

// RuntimeArch returns the MATLAB Runtime architecture directory name for goos.
func RuntimeArch(goos string) string {
	switch goos {
	case "windows":
		return "win64"
	case "darwin":
		return "maci64"
	default:
		return "glnxa64"
	}
}

// DefaultRuntimePaths returns the MATLAB Runtime dependency subdirectories, in
// resolution priority order, relative to the runtime installation root.
func DefaultRuntimePaths(goos string) []string {
	arch := RuntimeArch(goos)
	return []string{
		filepath.Join("runtime", arch),
		filepath.Join("bin", arch),
		filepath.Join("sys", "os", arch),
		filepath.Join("extern", "bin", arch),
	}
}

// ResolveRoots joins every relative path onto root. Absolute paths are kept as is.
func ResolveRoots(root string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if filepath.IsAbs(p) || root == "" {
			out = append(out, p)
			continue
		}
		out = append(out, filepath.Join(root, p))
	}
	return out
}
