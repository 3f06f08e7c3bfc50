package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHydrationGate(t *testing.T) {
	t.Run("starts pending", func(t *testing.T) {
		gate := NewHydrationGate()
		assert.False(t, gate.IsReady())
	})

	t.Run("flip transitions once", func(t *testing.T) {
		gate := NewHydrationGate()

		assert.True(t, gate.Flip())
		assert.True(t, gate.IsReady())
		assert.False(t, gate.Flip())
	})

	t.Run("queued callbacks drain in registration order", func(t *testing.T) {
		gate := NewHydrationGate()

		var order []int
		gate.OnReady(func() { order = append(order, 1) })
		gate.OnReady(func() { order = append(order, 2) })
		gate.OnReady(func() { order = append(order, 3) })
		assert.Empty(t, order)

		gate.Flip()
		assert.Equal(t, []int{1, 2, 3}, order)
	})

	t.Run("callbacks after the flip run inline", func(t *testing.T) {
		gate := NewHydrationGate()
		gate.Flip()

		ran := false
		gate.OnReady(func() { ran = true })
		assert.True(t, ran)
	})

	t.Run("callback registering a callback runs it inline", func(t *testing.T) {
		gate := NewHydrationGate()

		var order []int
		gate.OnReady(func() {
			order = append(order, 1)
			gate.OnReady(func() { order = append(order, 2) })
		})

		gate.Flip()
		assert.Equal(t, []int{1, 2}, order)
	})

	t.Run("nil callback is ignored", func(t *testing.T) {
		gate := NewHydrationGate()
		gate.OnReady(nil)
		assert.True(t, gate.Flip())
	})
}
