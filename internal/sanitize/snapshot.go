package sanitize

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// streamSnapshot is the shape produced when a live readable stream is
// serialized instead of consumed.
type streamSnapshot struct {
	ReadableState *struct {
		Buffer json.RawMessage `json:"buffer"`
	} `json:"_readableState"`
}

type taggedBuffer struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// decodedEnvelope is emitted when the snapshot buffer decoded cleanly.
type decodedEnvelope struct {
	Content     string  `json:"content"`
	HexContent  *string `json:"hexContent"`
	IsBinary    bool    `json:"isBinary"`
	ContentType *string `json:"contentType"`
	Size        int64   `json:"size"`
	Length      int64   `json:"length"`
	Position    int64   `json:"position"`
}

// bufferErrorEnvelope is emitted when the buffer bytes cannot be decoded.
type bufferErrorEnvelope struct {
	Buffer       json.RawMessage `json:"buffer"`
	Error        string          `json:"error"`
	ErrorDetails string          `json:"errorDetails"`
	Size         int64           `json:"size"`
	Length       int64           `json:"length"`
	Position     int64           `json:"position"`
	ContentType  *string         `json:"contentType"`
	IsBinary     *bool           `json:"isBinary"`
}

// rawBufferEnvelope is emitted when the buffer list is not tagged.
type rawBufferEnvelope struct {
	Buffer      json.RawMessage `json:"buffer"`
	Size        int64           `json:"size"`
	Length      int64           `json:"length"`
	Position    int64           `json:"position"`
	ContentType *string         `json:"contentType"`
	IsBinary    *bool           `json:"isBinary"`
	Error       any             `json:"error,omitempty"`
}

// fileView is the metadata a file content result carries next to content.
type fileView struct {
	isBinary    *bool
	contentType *string
	size        int64
	length      int64
	position    int64
	errorValue  any
}

func viewOf(result any) fileView {
	var fv fileView
	fv.isBinary, _ = boolField(result, "isBinary")
	if ct, ok := stringField(result, "contentType"); ok {
		fv.contentType = &ct
	}
	fv.size = intField(result, "size")
	fv.length = intField(result, "length")
	fv.position = intField(result, "position")
	if ev, ok := fieldValue(reflect.ValueOf(result), "error"); ok && ev.CanInterface() {
		fv.errorValue = ev.Interface()
	}
	return fv
}

func orDefault(v, def int64) int64 {
	if v == 0 {
		return def
	}
	return v
}

// recoverSnapshot decodes the first tagged buffer of an embedded stream
// snapshot held in result.content.
func recoverSnapshot(result any) (string, error) {
	content, ok := stringField(result, "content")
	if !ok {
		return "", errSkip
	}
	var snap streamSnapshot
	if err := json.Unmarshal([]byte(content), &snap); err != nil {
		return "", errSkip
	}
	if snap.ReadableState == nil {
		return "", errSkip
	}
	raw := bytes.TrimSpace(snap.ReadableState.Buffer)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errSkip
	}

	view := viewOf(result)
	data, tagged := snapshotData(raw)
	if !tagged {
		return marshalEnvelope(rawBufferEnvelope{
			Buffer:      raw,
			Size:        view.size,
			Length:      view.length,
			Position:    view.position,
			ContentType: view.contentType,
			IsBinary:    view.isBinary,
			Error:       view.errorValue,
		})
	}

	b, err := decodeNumbers(data)
	if err != nil {
		return marshalEnvelope(bufferErrorEnvelope{
			Buffer:       raw,
			Error:        "Failed to convert buffer to content",
			ErrorDetails: err.Error(),
			Size:         view.size,
			Length:       view.length,
			Position:     view.position,
			ContentType:  view.contentType,
			IsBinary:     view.isBinary,
		})
	}

	contentType := ""
	if view.contentType != nil {
		contentType = *view.contentType
	}
	env := decodedEnvelope{
		ContentType: view.contentType,
		Size:        orDefault(view.size, int64(len(b))),
		Length:      orDefault(view.length, int64(len(b))),
		Position:    view.position,
	}
	if IsLikelyText(view.isBinary, contentType) {
		env.Content = DecodeText(b)
	} else {
		preview := HexPreview(b)
		env.Content = BinaryMarker
		env.HexContent = &preview
		env.IsBinary = true
	}
	return marshalEnvelope(env)
}

// snapshotData returns the raw data array of the first buffer element when
// it is tagged as a Buffer.
func snapshotData(raw json.RawMessage) (json.RawMessage, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return nil, false
	}
	var first taggedBuffer
	if err := json.Unmarshal(items[0], &first); err != nil || first.Type != bufferTag {
		return nil, false
	}
	data := bytes.TrimSpace(first.Data)
	if len(data) == 0 || data[0] != '[' {
		return nil, false
	}
	return data, true
}

func decodeNumbers(data json.RawMessage) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil, err
	}
	return bytesOf(reflect.ValueOf(items))
}

func marshalEnvelope(v any) (string, error) {
	return encodeDirect(v)
}
