package xrkconv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/aretw0/xrkconv/pkg/archive"
	"github.com/aretw0/xrkconv/pkg/domain"
)

// Delivery is a successful conversion waiting to be streamed. Its files live
// inside the session workspace until Close is called.
type Delivery struct {
	SessionID string

	// Path is the artifact to stream and Name its download file name.
	Path string
	Name string

	// Archive reports whether Path is a packed multi-file result.
	Archive bool

	// Digest is the hex BLAKE3 of the artifact, empty if it could not be computed.
	Digest string

	// RetainedPath is the copy kept in the results store, if any.
	RetainedPath string

	Result *domain.Result

	service *Service
	session *domain.Session
	logger  *slog.Logger
	once    sync.Once
}

// ContentType is the media type to serve the artifact with.
func (d *Delivery) ContentType() string {
	if d.Archive {
		return "application/zip"
	}
	return "application/octet-stream"
}

// Open opens the artifact for reading. The caller closes the file before
// closing the Delivery.
func (d *Delivery) Open() (*os.File, error) {
	return os.Open(d.Path)
}

// Close marks the session delivered and schedules its workspace for removal.
// It is safe to call more than once.
func (d *Delivery) Close() error {
	d.once.Do(func() {
		d.session.Advance(domain.StateDelivered)
		d.service.end(context.Background(), d.session, d.Result, nil)
		d.logger.Debug("delivery closed")
		d.service.scheduleTeardown(d.session, d.logger)
	})
	return nil
}

// SaveTo copies the artifact into dir, creating it if needed, and returns the
// paths written. With extract set an archive is unpacked instead of copied.
func (d *Delivery) SaveTo(dir string, extract bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if extract && d.Archive {
		return archive.Unpack(d.Path, dir)
	}

	src, err := d.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	target := filepath.Join(dir, d.Name)
	dst, err := os.Create(target)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return nil, fmt.Errorf("write %s: %w", target, err)
	}
	if err := dst.Close(); err != nil {
		return nil, err
	}
	return []string{target}, nil
}
