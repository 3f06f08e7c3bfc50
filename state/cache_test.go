package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSharedCache(t *testing.T) {
	t.Run("set then get", func(t *testing.T) {
		cache := NewSharedCache()

		cache.Set("key", "value")

		value, ok := cache.Get("key")
		assert.True(t, ok)
		assert.Equal(t, "value", value)
	})

	t.Run("missing key reports absence", func(t *testing.T) {
		cache := NewSharedCache()

		value, ok := cache.Get("missing")
		assert.False(t, ok)
		assert.Nil(t, value)
	})

	t.Run("delete removes the entry", func(t *testing.T) {
		cache := NewSharedCache()

		cache.Set("key", 1)
		cache.Delete("key")

		assert.False(t, cache.Has("key"))
	})

	t.Run("keys and len reflect entries", func(t *testing.T) {
		cache := NewSharedCache()

		cache.Set("a", 1)
		cache.Set("b", 2)

		assert.Equal(t, 2, cache.Len())
		assert.ElementsMatch(t, []string{"a", "b"}, cache.Keys())
	})

	t.Run("stats count hits and misses", func(t *testing.T) {
		cache := NewSharedCache()

		cache.Set("key", 1)
		cache.Get("key")
		cache.Get("missing")
		cache.Has("key")

		hits, misses := cache.Stats()
		assert.Equal(t, uint64(1), hits)
		assert.Equal(t, uint64(1), misses)
	})
}
