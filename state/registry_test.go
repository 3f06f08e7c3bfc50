package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistrySubscribe(t *testing.T) {
	t.Run("notifies every subscriber of the key", func(t *testing.T) {
		registry := NewRegistry(nil)

		var a, b interface{}
		registry.Subscribe("key", func(v interface{}) { a = v })
		registry.Subscribe("key", func(v interface{}) { b = v })

		registry.Notify("key", 7)

		assert.Equal(t, 7, a)
		assert.Equal(t, 7, b)
	})

	t.Run("keys are independent", func(t *testing.T) {
		registry := NewRegistry(nil)

		calls := 0
		registry.Subscribe("a", func(interface{}) { calls++ })

		registry.Notify("b", 1)
		assert.Zero(t, calls)
	})

	t.Run("nil subscriber is a no-op", func(t *testing.T) {
		registry := NewRegistry(nil)

		dispose := registry.Subscribe("key", nil)
		dispose()

		assert.Zero(t, registry.Count("key"))
	})
}

func TestRegistryUnsubscribe(t *testing.T) {
	t.Run("disposer removes only its own subscription", func(t *testing.T) {
		registry := NewRegistry(nil)

		var kept []interface{}
		disposeA := registry.Subscribe("key", func(interface{}) {
			t.Fatal("removed subscriber must not fire")
		})
		registry.Subscribe("key", func(v interface{}) { kept = append(kept, v) })

		disposeA()
		registry.Notify("key", 1)

		assert.Equal(t, []interface{}{1}, kept)
	})

	t.Run("disposer is idempotent", func(t *testing.T) {
		evictions := 0
		registry := NewRegistry(func(string) { evictions++ })

		dispose := registry.Subscribe("key", func(interface{}) {})
		dispose()
		dispose()

		assert.Equal(t, 1, evictions)
	})

	t.Run("eviction hook fires when the last subscriber leaves", func(t *testing.T) {
		var evicted []string
		registry := NewRegistry(func(key string) { evicted = append(evicted, key) })

		disposeA := registry.Subscribe("key", func(interface{}) {})
		disposeB := registry.Subscribe("key", func(interface{}) {})

		disposeA()
		assert.Empty(t, evicted)

		disposeB()
		assert.Equal(t, []string{"key"}, evicted)
	})

	t.Run("unsubscribe during notification takes effect next pass", func(t *testing.T) {
		registry := NewRegistry(nil)

		var dispose func()
		calls := 0
		dispose = registry.Subscribe("key", func(interface{}) {
			calls++
			dispose()
		})

		registry.Notify("key", 1)
		registry.Notify("key", 2)

		assert.Equal(t, 1, calls)
	})
}

func TestRegistryReentrantNotify(t *testing.T) {
	t.Run("notify from inside a callback queues for the next pass", func(t *testing.T) {
		registry := NewRegistry(nil)

		var order []interface{}
		registry.Subscribe("key", func(v interface{}) {
			order = append(order, v)
			if v == 1 {
				registry.Notify("key", 2)
			}
		})

		registry.Notify("key", 1)

		assert.Equal(t, []interface{}{1, 2}, order)
	})

	t.Run("subscribing from inside a callback does not fire for the current value", func(t *testing.T) {
		registry := NewRegistry(nil)

		lateCalls := 0
		registry.Subscribe("key", func(v interface{}) {
			if v == 1 {
				registry.Subscribe("key", func(interface{}) { lateCalls++ })
			}
		})

		registry.Notify("key", 1)
		assert.Zero(t, lateCalls)

		registry.Notify("key", 2)
		assert.Equal(t, 1, lateCalls)
	})
}
