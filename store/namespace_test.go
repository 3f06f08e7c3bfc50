package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamespaceKey(t *testing.T) {
	assert.Equal(t, "shared@user", NamespaceKey("shared", "@", "@user"))
	assert.Equal(t, "app@settings", NamespaceKey("app", "@", "@settings"))

	// Keys without the sentinel namespace unchanged apart from the prefix.
	assert.Equal(t, "shared@user", NamespaceKey("shared", "@", "user"))
}

func TestDenamespaceKey(t *testing.T) {
	t.Run("recovers the sentinel-bearing key", func(t *testing.T) {
		key, ok := DenamespaceKey("shared", "@", "shared@user")
		assert.True(t, ok)
		assert.Equal(t, "@user", key)
	})

	t.Run("rejects foreign namespaces", func(t *testing.T) {
		_, ok := DenamespaceKey("shared", "@", "other@user")
		assert.False(t, ok)
	})

	t.Run("rejects empty remainder", func(t *testing.T) {
		_, ok := DenamespaceKey("shared", "@", "shared@")
		assert.False(t, ok)
	})

	t.Run("round-trips with NamespaceKey", func(t *testing.T) {
		key, ok := DenamespaceKey("shared", "@", NamespaceKey("shared", "@", "@profile"))
		assert.True(t, ok)
		assert.Equal(t, "@profile", key)
	})
}
