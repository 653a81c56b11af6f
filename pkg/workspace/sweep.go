package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/xrkconv/pkg/archive"
	"github.com/google/uuid"
)

// Retention controls which unowned workspaces a sweep may remove.
type Retention struct {
	// MinAge spares entries modified more recently than this. Zero removes
	// every unowned entry.
	MinAge time.Duration

	// LockTTL bounds how long the sweep lock is held when a locker is configured.
	LockTTL time.Duration
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Removed []string
	Kept    int
	Failed  int
}

// Sweep removes every workspace directory and derived archive (finished or
// partially written) under the root
// that is not owned by a live session. Only entries named after a session ID
// are considered. A failed removal is logged and the sweep continues.
func (m *Manager) Sweep(ctx context.Context, policy Retention) (SweepReport, error) {
	var report SweepReport

	if m.locker != nil {
		ttl := policy.LockTTL
		if ttl <= 0 {
			ttl = time.Minute
		}
		unlock, err := m.locker.Lock(ctx, "sweep", ttl)
		if err != nil {
			return report, fmt.Errorf("acquire sweep lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("failed to release sweep lock", "error", err)
			}
		}()
	}

	entries, err := os.ReadDir(m.root)
	if errors.Is(err, fs.ErrNotExist) {
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("read workspace root: %w", err)
	}

	liveIDs, err := m.registry.Live(ctx)
	if err != nil {
		return report, fmt.Errorf("list live sessions: %w", err)
	}
	live := make(map[string]struct{}, len(liveIDs))
	for _, id := range liveIDs {
		live[id] = struct{}{}
	}

	cutoff := m.now().Add(-policy.MinAge)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		name := entry.Name()
		id, ok := sessionIDOf(entry)
		if !ok {
			continue
		}

		if _, owned := live[id]; owned {
			report.Kept++
			continue
		}

		if policy.MinAge > 0 {
			info, err := entry.Info()
			if err == nil && info.ModTime().After(cutoff) {
				report.Kept++
				continue
			}
		}

		path := filepath.Join(m.root, name)
		if err := os.RemoveAll(path); err != nil {
			m.logger.Warn("failed to remove stale workspace", "path", path, "error", err)
			report.Failed++
			continue
		}
		report.Removed = append(report.Removed, path)
	}

	m.logger.Info("stale workspace sweep finished",
		"root", m.root,
		"removed", len(report.Removed),
		"kept", report.Kept,
		"failed", report.Failed,
	)
	return report, nil
}

func sessionIDOf(entry fs.DirEntry) (string, bool) {
	name := entry.Name()
	if !entry.IsDir() {
		// A pack interrupted by a crash leaves <id>.zip.tmp behind.
		name = strings.TrimSuffix(name, archive.TempSuffix)
		if !strings.HasSuffix(name, ArchiveExt) {
			return "", false
		}
		name = strings.TrimSuffix(name, ArchiveExt)
	}
	if _, err := uuid.Parse(name); err != nil {
		return "", false
	}
	return name, true
}
