// Package codec is the reversible encoder between state values and the
// textual representation written to the durable store and carried by change
// signals. Encode is total: values the format cannot represent degrade to the
// Null sentinel instead of failing, which keeps durable writes total.
package codec

import (
	"github.com/bytedance/sonic"

	"github.com/saiset-co/sai-state/types"
)

// Null is the sentinel written when a value cannot be serialized.
const Null = "null"

func Encode(value interface{}) string {
	text, err := sonic.ConfigDefault.MarshalToString(value)
	if err != nil {
		return Null
	}
	return text
}

// Decode reverses Encode. A failed decode reports an error and callers drop
// the payload; decoding the Null sentinel yields nil with no error.
func Decode(text string) (interface{}, error) {
	if text == "" {
		return nil, types.ErrSignalMalformed
	}

	var value interface{}
	if err := sonic.ConfigDefault.UnmarshalFromString(text, &value); err != nil {
		return nil, types.WrapError(err, "failed to decode payload")
	}

	return value, nil
}
