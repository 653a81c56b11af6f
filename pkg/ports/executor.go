package ports

import (
	"context"

	"github.com/aretw0/xrkconv/pkg/domain"
)

// Executor runs the external converter once.
type Executor interface {
	// Run launches cmd and waits for it to finish.
	// A non-zero exit, a timeout or a cancellation is reported through Result.Outcome
	// with a nil error. The error is reserved for failures to start the process
	// (wrapping domain.ErrSpawn).
	Run(ctx context.Context, cmd domain.Command) (*domain.Result, error)
}
