package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// epoch is the modification time stamped on every entry (the earliest DOS time).
var epoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// TempSuffix is appended to dest while an archive is being written.
const TempSuffix = ".tmp"

// Pack writes files into a zip archive at dest. The archive is written to
// dest+TempSuffix and renamed into place, so dest never holds a partial
// archive.
func Pack(files []string, dest string) error {
	if len(files) == 0 {
		return fmt.Errorf("pack %s: no files", dest)
	}

	ordered := slices.Clone(files)
	slices.SortFunc(ordered, func(a, b string) int {
		return strings.Compare(filepath.Base(a), filepath.Base(b))
	})
	for i := 1; i < len(ordered); i++ {
		if filepath.Base(ordered[i]) == filepath.Base(ordered[i-1]) {
			return fmt.Errorf("pack %s: duplicate entry name %q", dest, filepath.Base(ordered[i]))
		}
	}

	tmpPath := dest + TempSuffix
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	zw := zip.NewWriter(tmp)
	for _, f := range ordered {
		if err := addFile(zw, f); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("move archive into place: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	header := &zip.FileHeader{
		Name:     filepath.Base(path),
		Method:   zip.Deflate,
		Modified: epoch,
	}
	header.SetMode(0o644)

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("add %s: %w", header.Name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("write %s: %w", header.Name, err)
	}
	return nil
}
