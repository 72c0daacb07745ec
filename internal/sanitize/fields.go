package sanitize

import (
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"unicode/utf8"
)

// indirect strips interfaces and non-nil pointers.
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// jsonName resolves the encoded name of a struct field.
func jsonName(f reflect.StructField) (name string, omitEmpty, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	for _, o := range strings.Split(opts, ",") {
		if o == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}

// fieldValue looks up name on a map with string keys or a struct, using the
// same naming rules as encoding/json.
func fieldValue(v reflect.Value, name string) (reflect.Value, bool) {
	v = indirect(v)
	if !v.IsValid() {
		return reflect.Value{}, false
	}
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, false
		}
		mv := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
		if !mv.IsValid() {
			return reflect.Value{}, false
		}
		return mv, true
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			n, _, skip := jsonName(f)
			if skip {
				continue
			}
			if n == name || (f.Tag.Get("json") == "" && strings.EqualFold(f.Name, name)) {
				return v.Field(i), true
			}
		}
	}
	return reflect.Value{}, false
}

func stringField(result any, name string) (string, bool) {
	fv, ok := fieldValue(reflect.ValueOf(result), name)
	if !ok {
		return "", false
	}
	fv = indirect(fv)
	if !fv.IsValid() || fv.Kind() != reflect.String {
		return "", false
	}
	return fv.String(), true
}

func boolField(result any, name string) (*bool, bool) {
	fv, ok := fieldValue(reflect.ValueOf(result), name)
	if !ok {
		return nil, false
	}
	fv = indirect(fv)
	if !fv.IsValid() || fv.Kind() != reflect.Bool {
		return nil, false
	}
	b := fv.Bool()
	return &b, true
}

// intField reads a numeric field; zero and absent are reported the same way.
func intField(result any, name string) int64 {
	fv, ok := fieldValue(reflect.ValueOf(result), name)
	if !ok {
		return 0
	}
	n, _ := toInt64(fv)
	return n
}

func toInt64(v reflect.Value) (int64, bool) {
	v = indirect(v)
	if !v.IsValid() {
		return 0, false
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := v.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
			return 0, false
		}
		return int64(f), true
	case reflect.String:
		if v.Type() == numberType {
			n, err := json.Number(v.String()).Int64()
			return n, err == nil
		}
	}
	return 0, false
}

func safeStringField(result any, name string) (s string, ok bool) {
	defer func() {
		if recover() != nil {
			s, ok = "", false
		}
	}()
	return stringField(result, name)
}

// safeHasField reports whether name is present and non-zero.
func safeHasField(result any, name string) (has bool) {
	defer func() {
		if recover() != nil {
			has = false
		}
	}()
	fv, ok := fieldValue(reflect.ValueOf(result), name)
	if !ok {
		return false
	}
	fv = indirect(fv)
	return fv.IsValid() && !fv.IsZero()
}

func validUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}

var numberType = reflect.TypeOf(json.Number(""))
