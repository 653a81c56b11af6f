// Package results keeps a copy of every successful conversion output.
package results

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the UTC timestamp embedded in retained file names.
const TimestampLayout = "20060102T150405Z"

const maxNameAttempts = 100

// Store copies delivered artifacts into a results directory as
// <original-name>_<timestamp>.<ext>.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates a Store writing into dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// Dir returns the results directory.
func (s *Store) Dir() string {
	return s.dir
}

// Name returns the retained file name for an upload called originalName whose
// delivered artifact is artifact, at time t.
func Name(originalName, artifact string, t time.Time) string {
	base := filepath.Base(originalName)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." {
		stem = "output"
	}
	return stem + "_" + t.UTC().Format(TimestampLayout) + filepath.Ext(artifact)
}

// Retain copies src into the store and returns the new path. If the
// deterministic name is taken, a -N suffix is added before the extension.
func (s *Store) Retain(src, originalName string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}

	name := Name(originalName, src, s.now())
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; i < maxNameAttempts; i++ {
		candidate := name
		if i > 0 {
			candidate = stem + "-" + strconv.Itoa(i) + ext
		}
		path := filepath.Join(s.dir, candidate)

		dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", path, err)
		}
		if err := copyInto(dst, src); err != nil {
			_ = os.Remove(path)
			return "", err
		}
		return path, nil
	}
	return "", fmt.Errorf("no free result name for %s after %d attempts", name, maxNameAttempts)
}

func copyInto(dst *os.File, src string) error {
	in, err := os.Open(src)
	if err != nil {
		dst.Close()
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	if _, err := io.Copy(dst, in); err != nil {
		dst.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return dst.Close()
}
