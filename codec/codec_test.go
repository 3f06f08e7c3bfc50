package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	t.Run("encodes plain values", func(t *testing.T) {
		assert.Equal(t, `{"name":"John"}`, Encode(map[string]interface{}{"name": "John"}))
		assert.Equal(t, `"draft"`, Encode("draft"))
		assert.Equal(t, `5`, Encode(5))
		assert.Equal(t, `null`, Encode(nil))
	})

	t.Run("degrades to null sentinel on unrepresentable values", func(t *testing.T) {
		assert.Equal(t, Null, Encode(make(chan int)))
		assert.Equal(t, Null, Encode(func() {}))
	})

	t.Run("unrepresentable values nested in maps degrade too", func(t *testing.T) {
		assert.Equal(t, Null, Encode(map[string]interface{}{"ch": make(chan int)}))
	})
}

func TestDecode(t *testing.T) {
	t.Run("round-trips encoded values", func(t *testing.T) {
		value, err := Decode(Encode(map[string]interface{}{"name": "Jane"}))
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"name": "Jane"}, value)
	})

	t.Run("null sentinel decodes to nil", func(t *testing.T) {
		value, err := Decode(Null)
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("malformed payload reports error", func(t *testing.T) {
		_, err := Decode(`{"name":`)
		assert.Error(t, err)
	})

	t.Run("empty payload reports error", func(t *testing.T) {
		_, err := Decode("")
		assert.Error(t, err)
	})
}
