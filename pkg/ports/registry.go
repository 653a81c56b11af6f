package ports

import (
	"context"
	"time"
)

// SessionRegistry tracks sessions that currently own a workspace.
type SessionRegistry interface {
	// Register marks sessionID as live for at most ttl. A zero ttl never expires.
	Register(ctx context.Context, sessionID string, ttl time.Duration) error

	// Unregister removes sessionID. Unregistering an unknown session is not an error.
	Unregister(ctx context.Context, sessionID string) error

	// Live returns the IDs of all sessions whose registration has not expired.
	Live(ctx context.Context) ([]string, error)
}
