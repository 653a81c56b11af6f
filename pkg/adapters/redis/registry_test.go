package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/xrkconv/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRegistry_Contract(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})

	registry := NewFromClient(client)
	defer registry.Close()
	ports.RunSessionRegistryContract(t, registry)
}

func TestRedisRegistry_ExpiredSessionsPruned(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	registry := NewFromClient(backend.NewClient(&backend.Options{Addr: mr.Addr()}), WithPrefix("t:"))
	registry.now = func() time.Time { return now }
	defer registry.Close()
	ctx := context.Background()

	require.NoError(t, registry.Register(ctx, "crashed-replica-session", time.Minute))
	require.NoError(t, registry.Register(ctx, "healthy", time.Hour))

	now = now.Add(2 * time.Minute)

	live, err := registry.Live(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"healthy"}, live)

	members, err := mr.ZMembers("t:sessions")
	require.NoError(t, err)
	assert.Equal(t, []string{"healthy"}, members, "expired entries should be removed from the index")
}
