package sanitize

import (
	"encoding"
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// maskedFields hold transport internals. They are replaced with the circular
// marker whether or not they actually form a cycle.
var maskedFields = map[string]bool{
	"_httpMessage":   true,
	"socket":         true,
	"connection":     true,
	"agent":          true,
	"parser":         true,
	"client":         true,
	"_events":        true,
	"_eventsCount":   true,
	"_readableState": true,
	"_writableState": true,
}

// rawListLimit bounds the raw fallback for an undecodable buffer list.
const rawListLimit = 1000

var (
	marshalerType     = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// visitKey identifies a composite value by address. Slices also carry their
// length so that distinct views of one backing array are told apart.
type visitKey struct {
	ptr uintptr
	typ reflect.Type
	n   int
}

type guardedEncoder struct {
	e    jx.Encoder
	seen map[visitKey]bool
}

// encodeGuarded re-encodes result with a visited set and field interception.
func encodeGuarded(result any) (string, error) {
	g := &guardedEncoder{seen: make(map[visitKey]bool)}
	g.e.SetIdent(2)
	g.value(reflect.ValueOf(result))
	out := g.e.Bytes()
	if !jx.Valid(out) {
		return "", errors.New("guarded encoding produced invalid JSON")
	}
	return string(out), nil
}

// enter marks v as visited and reports whether it was new.
func (g *guardedEncoder) enter(v reflect.Value) bool {
	key := visitKey{ptr: v.Pointer(), typ: v.Type()}
	if v.Kind() == reflect.Slice {
		key.n = v.Len()
	}
	if g.seen[key] {
		return false
	}
	g.seen[key] = true
	return true
}

func (g *guardedEncoder) value(v reflect.Value) {
	if !v.IsValid() {
		g.e.Null()
		return
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			g.e.Null()
			return
		}
		g.value(v.Elem())
		return
	}
	if v.Kind() == reflect.Pointer && v.IsNil() {
		g.e.Null()
		return
	}
	if v.Type() == numberType {
		g.number(v.String())
		return
	}
	if g.marshaler(v) {
		return
	}

	switch v.Kind() {
	case reflect.Pointer:
		if !g.enter(v) {
			g.e.Str(circularMarker)
			return
		}
		g.value(v.Elem())
	case reflect.Map:
		if v.IsNil() {
			g.e.Null()
			return
		}
		if !g.enter(v) {
			g.e.Str(circularMarker)
			return
		}
		g.object(v)
	case reflect.Slice:
		if v.IsNil() {
			g.e.Null()
			return
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			g.e.Base64(v.Bytes())
			return
		}
		if v.Len() > 0 && !g.enter(v) {
			g.e.Str(circularMarker)
			return
		}
		g.list(v, 0)
	case reflect.Array:
		g.list(v, 0)
	case reflect.Struct:
		g.fields(g.structFields(v, nil))
	case reflect.String:
		g.e.Str(validUTF8(v.String()))
	case reflect.Bool:
		g.e.Bool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		g.e.Int64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		g.e.UInt64(v.Uint())
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			g.e.Null()
			return
		}
		g.e.Float64(f)
	default:
		g.e.Null()
	}
}

func (g *guardedEncoder) number(s string) {
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		g.e.Str(validUTF8(s))
		return
	}
	g.e.Raw([]byte(s))
}

// marshaler uses a value's own JSON or text encoding when it succeeds.
func (g *guardedEncoder) marshaler(v reflect.Value) (done bool) {
	defer func() {
		if recover() != nil {
			done = false
		}
	}()
	if !v.CanInterface() {
		return false
	}
	target := v
	if !target.Type().Implements(marshalerType) && !target.Type().Implements(textMarshalerType) {
		if !v.CanAddr() {
			return false
		}
		target = v.Addr()
	}
	if m, ok := target.Interface().(json.Marshaler); ok {
		b, err := m.MarshalJSON()
		if err != nil || !json.Valid(b) {
			return false
		}
		g.e.Raw(b)
		return true
	}
	if m, ok := target.Interface().(encoding.TextMarshaler); ok {
		b, err := m.MarshalText()
		if err != nil {
			return false
		}
		g.e.Str(validUTF8(string(b)))
		return true
	}
	return false
}

// objField is one named member of an object being encoded.
type objField struct {
	name string
	val  reflect.Value
}

func (g *guardedEncoder) object(v reflect.Value) {
	fields := make([]objField, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		name, ok := mapKey(iter.Key())
		if !ok {
			continue
		}
		fields = append(fields, objField{name: name, val: iter.Value()})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].name < fields[j].name })
	g.fields(fields)
}

// fields writes an object, dropping members that have no JSON form.
func (g *guardedEncoder) fields(fields []objField) {
	kept := fields[:0]
	for _, f := range fields {
		if maskedFields[f.name] || !unsupported(f.val) {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		g.e.ObjEmpty()
		return
	}
	g.e.ObjStart()
	for _, f := range kept {
		g.field(f.name, f.val)
	}
	g.e.ObjEnd()
}

func mapKey(k reflect.Value) (string, bool) {
	if k.Kind() == reflect.String {
		return k.String(), true
	}
	if k.CanInterface() {
		if tm, ok := k.Interface().(encoding.TextMarshaler); ok {
			b, err := tm.MarshalText()
			return string(b), err == nil
		}
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10), true
	}
	return "", false
}

// structFields appends the encodable members of v, flattening embedded
// structs the way encoding/json does.
func (g *guardedEncoder) structFields(v reflect.Value, out []objField) []objField {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		fv := v.Field(i)
		if f.Anonymous && f.Tag.Get("json") == "" {
			inner := fv
			if inner.Kind() == reflect.Pointer {
				if inner.IsNil() || !g.enter(inner) {
					continue
				}
				inner = inner.Elem()
			}
			if inner.Kind() == reflect.Struct {
				out = g.structFields(inner, out)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		name, omitEmpty, skip := jsonName(f)
		if skip || (omitEmpty && isEmptyValue(fv)) {
			continue
		}
		out = append(out, objField{name: name, val: fv})
	}
	return out
}

func (g *guardedEncoder) field(name string, v reflect.Value) {
	if maskedFields[name] {
		g.e.FieldStart(validUTF8(name))
		g.e.Str(circularMarker)
		return
	}
	g.e.FieldStart(validUTF8(name))
	if name == "buffer" && g.buffer(v) {
		return
	}
	g.value(v)
}

// buffer substitutes a tagged buffer list with its decoded content.
func (g *guardedEncoder) buffer(v reflect.Value) bool {
	data, ok := firstTagged(v)
	if !ok {
		return false
	}
	b, err := bytesOf(data)
	if err != nil {
		g.list(indirect(v), rawListLimit)
		return true
	}
	g.e.ObjStart()
	g.e.FieldStart("content")
	if len(b) < InlineBufferLimit {
		g.e.Str(DecodeText(b))
	} else {
		g.e.Str(largeBufferMarker)
		g.e.FieldStart("hexContent")
		g.e.Str(HexPreview(b))
	}
	g.e.FieldStart("bytesLength")
	g.e.Int64(int64(len(b)))
	g.e.ObjEnd()
	return true
}

func (g *guardedEncoder) list(v reflect.Value, limit int) {
	n := v.Len()
	if limit > 0 && n > limit {
		n = limit
	}
	g.e.ArrStart()
	for i := 0; i < n; i++ {
		el := v.Index(i)
		if unsupported(el) {
			g.e.Null()
			continue
		}
		g.value(el)
	}
	g.e.ArrEnd()
}

// unsupported reports values encoding/json cannot represent at all.
func unsupported(v reflect.Value) bool {
	v = indirect(v)
	if !v.IsValid() {
		return false
	}
	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return true
	}
	return false
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Pointer:
		return v.IsNil()
	}
	return false
}
