// Package output locates the files the converter produced for a session.
package output

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/aretw0/xrkconv/pkg/domain"
)

// Collect returns every regular file directly inside dir, sorted by name.
//
// A missing dir is an execution-contract violation and returns an error wrapping
// domain.ErrOutputDirectoryMissing. A dir with no regular files returns
// domain.ErrNoOutputProduced. Subdirectories and symlinks are ignored.
func Collect(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrOutputDirectoryMissing, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("stat output directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", domain.ErrOutputDirectoryMissing, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read output directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrNoOutputProduced, dir)
	}

	// os.ReadDir already sorts by name; keep the guarantee explicit.
	slices.Sort(files)
	return files, nil
}
