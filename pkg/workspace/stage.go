package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/xrkconv/pkg/domain"
)

// DefaultInputName replaces upload names that carry no usable base name.
const DefaultInputName = "input.xrk"

// Stage copies every path in files, relative to sourceRoot, into the session
// workspace at the same relative location. Directories are copied recursively.
// File modes are preserved so staged executables stay executable.
// Errors wrap domain.ErrStaging and name the offending source file.
func (m *Manager) Stage(ctx context.Context, s *domain.Session, sourceRoot string, files []string) error {
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		clean := filepath.Clean(filepath.FromSlash(rel))
		if !filepath.IsLocal(clean) {
			return fmt.Errorf("%w: %s: path escapes the asset root", domain.ErrStaging, rel)
		}

		src := filepath.Join(sourceRoot, clean)
		dst := filepath.Join(s.Workspace, clean)

		info, err := os.Stat(src)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrStaging, src, err)
		}

		if info.IsDir() {
			err = copyTree(ctx, src, dst)
		} else {
			err = copyFile(src, dst, info.Mode().Perm())
		}
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStaging, err)
		}
	}

	s.Advance(domain.StateStaged)
	m.logger.Debug("support files staged", "session_id", s.ID, "count", len(files))
	return nil
}

// StageInput writes the uploaded artifact into the workspace root under the
// base name of name and records it on the session. A name that collides with a
// staged support file is rejected with domain.ErrBadRequest.
func (m *Manager) StageInput(s *domain.Session, name string, r io.Reader) (string, error) {
	base := SanitizeName(name)
	path := filepath.Join(s.Workspace, base)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return "", fmt.Errorf("%w: upload name %q collides with a support file", domain.ErrBadRequest, base)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrStaging, path, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("%w: write input: %v", domain.ErrStaging, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: close input: %v", domain.ErrStaging, err)
	}

	s.InputPath = path
	return path, nil
}

// SanitizeName keeps only the final element of an uploaded filename.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return DefaultInputName
	}
	return name
}

func copyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			// Symlinks and devices are not part of the asset contract.
			return nil
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("%s: %w", dst, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("%s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("%s: %w", src, err)
	}
	return out.Close()
}
