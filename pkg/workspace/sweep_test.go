package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/xrkconv/pkg/adapters/memory"
	"github.com/aretw0/xrkconv/pkg/archive"
	"github.com/aretw0/xrkconv/pkg/domain"
	"github.com/aretw0/xrkconv/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_SweepRemovesOnlyUnownedSessions(t *testing.T) {
	root := t.TempDir()
	registry := memory.NewRegistry()
	m := NewManager(root, "data", WithRegistry(registry))
	ctx := context.Background()

	live, err := m.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(live.ArchivePath, []byte("zip"), 0o644))

	stale := []string{
		"aaaaaaaa-0000-4000-8000-000000000001",
		"aaaaaaaa-0000-4000-8000-000000000002",
	}
	for _, id := range stale {
		require.NoError(t, os.MkdirAll(filepath.Join(root, id, "data"), 0o755))
	}
	staleArchive := filepath.Join(root, "aaaaaaaa-0000-4000-8000-000000000003.zip")
	require.NoError(t, os.WriteFile(staleArchive, []byte("zip"), 0o644))
	partialArchive := filepath.Join(root, "aaaaaaaa-0000-4000-8000-000000000004.zip"+archive.TempSuffix)
	require.NoError(t, os.WriteFile(partialArchive, []byte("zi"), 0o644))

	// Entries that are not session workspaces are left alone.
	require.NoError(t, os.WriteFile(filepath.Join(root, ".keep"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "not-a-session"), 0o755))

	report, err := m.Sweep(ctx, Retention{})
	require.NoError(t, err)

	assert.Len(t, report.Removed, 4)
	assert.Equal(t, 2, report.Kept, "live workspace and its archive are kept")
	assert.Zero(t, report.Failed)

	for _, id := range stale {
		assert.NoDirExists(t, filepath.Join(root, id))
	}
	assert.NoFileExists(t, staleArchive)
	assert.NoFileExists(t, partialArchive)
	assert.DirExists(t, live.Workspace)
	assert.FileExists(t, live.ArchivePath)
	assert.FileExists(t, filepath.Join(root, ".keep"))
	assert.DirExists(t, filepath.Join(root, "not-a-session"))

	// A second run is a no-op.
	report, err = m.Sweep(ctx, Retention{})
	require.NoError(t, err)
	assert.Empty(t, report.Removed)
}

func TestManager_SweepMissingRoot(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "never-created"), "data")
	report, err := m.Sweep(context.Background(), Retention{})
	require.NoError(t, err)
	assert.Empty(t, report.Removed)
}

func TestManager_SweepMinAgeSparesFreshEntries(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	m := NewManager(root, "data")
	m.now = func() time.Time { return now }

	fresh := filepath.Join(root, "bbbbbbbb-0000-4000-8000-000000000001")
	old := filepath.Join(root, "bbbbbbbb-0000-4000-8000-000000000002")
	require.NoError(t, os.Mkdir(fresh, 0o755))
	require.NoError(t, os.Mkdir(old, 0o755))
	require.NoError(t, os.Chtimes(old, now.Add(-time.Hour), now.Add(-time.Hour)))

	report, err := m.Sweep(context.Background(), Retention{MinAge: 10 * time.Minute})
	require.NoError(t, err)

	assert.Equal(t, []string{old}, report.Removed)
	assert.Equal(t, 1, report.Kept)
	assert.DirExists(t, fresh)
}

type recordingLocker struct {
	keys     []string
	released int
}

func (l *recordingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.keys = append(l.keys, key)
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}

func TestManager_SweepHoldsLock(t *testing.T) {
	locker := &recordingLocker{}
	m := NewManager(t.TempDir(), "data", WithLocker(locker))

	_, err := m.Sweep(context.Background(), Retention{})
	require.NoError(t, err)

	assert.Equal(t, []string{"sweep"}, locker.keys)
	assert.Equal(t, 1, locker.released)
}

func TestManager_SessionsDoNotSeeEachOther(t *testing.T) {
	m := NewManager(t.TempDir(), "data")
	ctx := context.Background()

	a, err := m.Create(ctx)
	require.NoError(t, err)
	b, err := m.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(a.OutputDir, "marker.csv"), []byte("A"), 0o644))

	entries, err := os.ReadDir(b.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotEqual(t, a.Workspace, b.Workspace)
	assert.Equal(t, domain.StatusPending, b.Status)
}
