package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithDefault(t *testing.T) {
	t.Run("present value wins", func(t *testing.T) {
		assert.Equal(t, "value", WithDefault("value", "initial"))
		assert.Equal(t, 0, WithDefault(0, 5))
		assert.Equal(t, false, WithDefault(false, true))
	})

	t.Run("absent value falls back to initial", func(t *testing.T) {
		assert.Equal(t, "initial", WithDefault(nil, "initial"))
	})

	t.Run("both absent yields empty map", func(t *testing.T) {
		assert.Equal(t, map[string]interface{}{}, WithDefault(nil, nil))
	})

	t.Run("typed nil counts as absent", func(t *testing.T) {
		var m map[string]int
		var s []string
		var p *struct{ N int }

		assert.Equal(t, map[string]int{}, WithDefault(m, m))
		assert.Equal(t, []string{}, WithDefault(s, s))
		assert.Equal(t, &struct{ N int }{}, WithDefault(p, p))
	})

	t.Run("shape hint drives the default", func(t *testing.T) {
		var slice []int
		assert.Equal(t, []int{}, WithDefault(nil, slice))

		var m map[string]string
		assert.Equal(t, map[string]string{}, WithDefault(nil, m))
	})

	t.Run("empty collections are present values", func(t *testing.T) {
		empty := map[string]interface{}{}
		assert.Equal(t, empty, WithDefault(empty, map[string]interface{}{"a": 1}))

		slice := []int{}
		assert.Equal(t, slice, WithDefault(slice, []int{1}))
	})
}

func TestIsAbsent(t *testing.T) {
	assert.True(t, isAbsent(nil))

	var m map[string]int
	assert.True(t, isAbsent(m))

	var fn func()
	assert.True(t, isAbsent(fn))

	assert.False(t, isAbsent(0))
	assert.False(t, isAbsent(""))
	assert.False(t, isAbsent(false))
	assert.False(t, isAbsent(map[string]int{}))
	assert.False(t, isAbsent([]int{}))
}
