// Package sanitize converts arbitrary tool results into display-safe text.
//
// Results coming back from the Azure DevOps client are usually plain JSON
// trees, but file content calls can hand back a serialized stream snapshot
// with an embedded byte buffer, and a misbehaving caller can pass objects
// that contain cycles or transport handles. Sanitize never fails: it walks an
// ordered list of stages and returns the output of the first one that
// succeeds, ending in a diagnostic envelope that cannot fail.
package sanitize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Policy constants shared by every stage that previews binary data.
const (
	// HexPreviewChars caps hexContent (1000 bytes).
	HexPreviewChars = 2000
	// InlineBufferLimit is the byte size below which a guarded buffer is
	// inlined as text instead of previewed as hex.
	InlineBufferLimit = 10000

	// BinaryMarker replaces the content of a payload classified as binary.
	BinaryMarker = "[Binary content - displaying first 1000 bytes as hex]"

	circularMarker    = "[Circular]"
	largeBufferMarker = "[Large buffer - first 1000 bytes shown]"
)

// errSkip signals that a stage does not apply to the value.
var errSkip = errors.New("stage not applicable")

type stage struct {
	name string
	run  func(result any) (string, error)
}

var defaultStages = []stage{
	{name: "passthrough", run: passthrough},
	{name: "stream_snapshot", run: recoverSnapshot},
	{name: "direct", run: encodeDirect},
	{name: "guarded", run: encodeGuarded},
}

// Sanitize returns a string representation of result that is safe to hand
// to a text-only consumer. It is safe for concurrent use.
func Sanitize(result any) string {
	return runStages(defaultStages, result)
}

func runStages(stages []stage, result any) string {
	var cause, directErr error
	for _, st := range stages {
		out, err := runStage(st, result)
		if err == nil {
			return out
		}
		if errors.Is(err, errSkip) {
			continue
		}
		if st.name == "direct" {
			directErr = err
		}
		if cause == nil {
			cause = err
		}
	}
	if directErr != nil {
		cause = directErr
	}
	return failureEnvelope(result, cause)
}

func runStage(st stage, result any) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%s: panic: %v", st.name, r)
		}
	}()
	return st.run(result)
}

func passthrough(result any) (string, error) {
	if s, ok := result.(string); ok {
		return s, nil
	}
	return "", errSkip
}

// encodeDirect is the common path for plain API payloads.
func encodeDirect(result any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// failureEnvelope is the last stage. It touches result only through
// recover-guarded lookups and writes scalars, so it cannot fail.
func failureEnvelope(result any, cause error) string {
	msg := "Unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	contentType := "unknown"
	if ct, ok := safeStringField(result, "contentType"); ok && ct != "" {
		contentType = ct
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("error")
	e.Str("Failed to serialize response")
	e.FieldStart("message")
	e.Str(validUTF8(msg))
	e.FieldStart("type")
	e.Str(fmt.Sprintf("%T", result))
	e.FieldStart("hasContent")
	e.Bool(safeHasField(result, "content"))
	e.FieldStart("contentType")
	e.Str(validUTF8(contentType))
	e.ObjEnd()
	return e.String()
}
