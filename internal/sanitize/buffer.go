package sanitize

import (
	"encoding/hex"
	"math"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
)

// BufferDescriptor is the wire shape of a serialized byte buffer:
// {"type":"Buffer","data":[72,105]}.
type BufferDescriptor struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}

const bufferTag = "Buffer"

// textContentTypes mark a content type as decodable text.
var textContentTypes = []string{"text", "json", "html", "xml", "javascript", "typescript", "script"}

// IsLikelyText classifies a payload. An explicit isBinary flag wins;
// otherwise an empty content type or a text-like one means text.
func IsLikelyText(isBinary *bool, contentType string) bool {
	if isBinary != nil {
		return !*isBinary
	}
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	for _, marker := range textContentTypes {
		if strings.Contains(ct, marker) {
			return true
		}
	}
	return false
}

// HexPreview returns the hex encoding of at most the first
// HexPreviewChars/2 bytes of b.
func HexPreview(b []byte) string {
	if len(b) > HexPreviewChars/2 {
		b = b[:HexPreviewChars/2]
	}
	return hex.EncodeToString(b)
}

// DecodeText decodes b as UTF-8, replacing invalid sequences.
func DecodeText(b []byte) string {
	return validUTF8(string(b))
}

// taggedData returns the data list of a tagged buffer element.
func taggedData(v reflect.Value) (reflect.Value, bool) {
	tag, ok := fieldValue(v, "type")
	if !ok {
		return reflect.Value{}, false
	}
	tag = indirect(tag)
	if !tag.IsValid() || tag.Kind() != reflect.String || tag.String() != bufferTag {
		return reflect.Value{}, false
	}
	data, ok := fieldValue(v, "data")
	if !ok {
		return reflect.Value{}, false
	}
	data = indirect(data)
	if !data.IsValid() || (data.Kind() != reflect.Slice && data.Kind() != reflect.Array) {
		return reflect.Value{}, false
	}
	return data, true
}

// firstTagged reports whether list is a non-empty list whose first element
// is a tagged buffer, and returns that element's data list.
func firstTagged(list reflect.Value) (reflect.Value, bool) {
	list = indirect(list)
	if !list.IsValid() || (list.Kind() != reflect.Slice && list.Kind() != reflect.Array) || list.Len() == 0 {
		return reflect.Value{}, false
	}
	return taggedData(list.Index(0))
}

// bytesOf converts a list of numbers into bytes. Every element must be an
// integer in [0, 255].
func bytesOf(data reflect.Value) ([]byte, error) {
	if data.Kind() == reflect.Slice && data.Type().Elem().Kind() == reflect.Uint8 {
		return append([]byte(nil), data.Bytes()...), nil
	}
	out := make([]byte, data.Len())
	for i := range out {
		n, ok := toInt64(data.Index(i))
		if !ok || n < 0 || n > math.MaxUint8 {
			return nil, errors.Errorf("invalid byte value at index %d", i)
		}
		out[i] = byte(n)
	}
	return out, nil
}
