package output

import (
	"encoding/base64"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// NormalizeJSONValue converts values produced by generic CBOR or msgpack
// decoding into something encoding/json accepts: map keys become strings,
// tags become {"tag": n, "value": ...} and byte strings are summarized.
func NormalizeJSONValue(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = NormalizeJSONValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = NormalizeJSONValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = NormalizeJSONValue(item)
		}
		return out
	case cbor.Tag:
		return map[string]any{
			"tag":   val.Number,
			"value": NormalizeJSONValue(val.Content),
		}
	case []byte:
		if len(val) <= 64 {
			return base64.StdEncoding.EncodeToString(val)
		}
		return fmt.Sprintf("<%d bytes>", len(val))
	default:
		return v
	}
}
