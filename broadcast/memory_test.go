package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-state/logger"
	"github.com/saiset-co/sai-state/types"
)

func newTestBus(t *testing.T) types.Broadcaster {
	t.Helper()

	bus, err := NewMemoryBus(context.Background(), logger.NewZapWrapper(zap.NewNop()), &types.BroadcastConfig{})
	require.NoError(t, err)
	require.NoError(t, bus.Start())
	return bus
}

func testSignal(key string) *types.ChangeSignal {
	return &types.ChangeSignal{
		Key:       key,
		Value:     `"value"`,
		Origin:    "origin-a",
		SignalID:  "sig-1",
		Timestamp: time.Now(),
	}
}

func TestMemoryBus(t *testing.T) {
	t.Run("delivers to every handler", func(t *testing.T) {
		bus := newTestBus(t)

		var a, b *types.ChangeSignal
		require.NoError(t, bus.Subscribe(func(s *types.ChangeSignal) { a = s }))
		require.NoError(t, bus.Subscribe(func(s *types.ChangeSignal) { b = s }))

		signal := testSignal("shared@user")
		require.NoError(t, bus.Publish(signal))

		assert.Equal(t, signal, a)
		assert.Equal(t, signal, b)
	})

	t.Run("rejects nil signal", func(t *testing.T) {
		bus := newTestBus(t)
		assert.True(t, types.IsError(bus.Publish(nil), types.ErrSignalMalformed))
	})

	t.Run("rejects nil handler", func(t *testing.T) {
		bus := newTestBus(t)
		assert.True(t, types.IsError(bus.Subscribe(nil), types.ErrSubscriberIsNil))
	})

	t.Run("stop drops handlers", func(t *testing.T) {
		bus := newTestBus(t)

		calls := 0
		require.NoError(t, bus.Subscribe(func(*types.ChangeSignal) { calls++ }))

		require.NoError(t, bus.Stop())
		require.NoError(t, bus.Start())
		require.NoError(t, bus.Publish(testSignal("shared@user")))

		assert.Zero(t, calls)
	})

	t.Run("lifecycle transitions", func(t *testing.T) {
		bus := newTestBus(t)

		assert.True(t, bus.IsRunning())
		assert.Error(t, bus.Start())
		require.NoError(t, bus.Stop())
		assert.False(t, bus.IsRunning())
		assert.Error(t, bus.Stop())
	})
}
