package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionRegistryContract runs a suite of tests to verify that a SessionRegistry
// implementation adheres to the defined interface contract.
func RunSessionRegistryContract(t *testing.T, registry SessionRegistry) {
	ctx := context.Background()
	prefix := "contract-" + time.Now().Format("20060102150405")

	t.Run("Register and Live", func(t *testing.T) {
		id := prefix + "-a"
		require.NoError(t, registry.Register(ctx, id, time.Minute))
		defer func() { _ = registry.Unregister(ctx, id) }()

		live, err := registry.Live(ctx)
		require.NoError(t, err)
		assert.Contains(t, live, id)
	})

	t.Run("Unregister", func(t *testing.T) {
		id := prefix + "-b"
		require.NoError(t, registry.Register(ctx, id, time.Minute))
		require.NoError(t, registry.Unregister(ctx, id))

		live, err := registry.Live(ctx)
		require.NoError(t, err)
		assert.NotContains(t, live, id)
	})

	t.Run("Unregister Unknown", func(t *testing.T) {
		assert.NoError(t, registry.Unregister(ctx, prefix+"-never-registered"))
	})

	t.Run("Zero TTL Never Expires", func(t *testing.T) {
		id := prefix + "-c"
		require.NoError(t, registry.Register(ctx, id, 0))
		defer func() { _ = registry.Unregister(ctx, id) }()

		live, err := registry.Live(ctx)
		require.NoError(t, err)
		assert.Contains(t, live, id)
	})

	t.Run("Register Is Idempotent", func(t *testing.T) {
		id := prefix + "-d"
		require.NoError(t, registry.Register(ctx, id, time.Minute))
		require.NoError(t, registry.Register(ctx, id, time.Minute))
		defer func() { _ = registry.Unregister(ctx, id) }()

		live, err := registry.Live(ctx)
		require.NoError(t, err)
		count := 0
		for _, l := range live {
			if l == id {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})
}
