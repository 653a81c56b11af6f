package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// noExpiry is the index score used for registrations without a TTL (2100-01-01).
const noExpiry = 4102444800000

// Registry implements ports.SessionRegistry using a Redis sorted set.
// Members are session IDs, scores are expiry times in Unix milliseconds, so
// replicas that crash without unregistering stop protecting their workspaces
// once the TTL elapses.
type Registry struct {
	client *backend.Client
	prefix string
	now    func() time.Time
}

// Option configures the Registry.
type Option func(*Registry)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(r *Registry) {
		r.prefix = prefix
	}
}

// New creates a Registry with its own client.
func New(address, password string, db int, opts ...Option) *Registry {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a Registry from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Registry {
	r := &Registry{
		client: client,
		prefix: "xrkconv:",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Client exposes the underlying client so a Locker can share the connection pool.
func (r *Registry) Client() *backend.Client {
	return r.client
}

func (r *Registry) indexKey() string {
	return r.prefix + "sessions"
}

// Register adds sessionID to the live index.
func (r *Registry) Register(ctx context.Context, sessionID string, ttl time.Duration) error {
	score := float64(noExpiry)
	if ttl > 0 {
		score = float64(r.now().Add(ttl).UnixMilli())
	}

	err := r.client.ZAdd(ctx, r.indexKey(), backend.Z{
		Score:  score,
		Member: sessionID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}
	return nil
}

// Unregister removes sessionID from the live index.
func (r *Registry) Unregister(ctx context.Context, sessionID string) error {
	if err := r.client.ZRem(ctx, r.indexKey(), sessionID).Err(); err != nil {
		return fmt.Errorf("failed to unregister session: %w", err)
	}
	return nil
}

// Live prunes expired registrations and returns the rest.
func (r *Registry) Live(ctx context.Context) ([]string, error) {
	now := strconv.FormatInt(r.now().UnixMilli(), 10)

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, r.indexKey(), "-inf", now)
	members := pipe.ZRange(ctx, r.indexKey(), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to list live sessions: %w", err)
	}
	return members.Val(), nil
}

// Close closes the redis client.
func (r *Registry) Close() error {
	return r.client.Close()
}
