package internal

import (
	"reflect"
	"strconv"
)

// Scalar is a type the typed accessors can parse into.
type Scalar interface {
	~string | ~int | ~int64 | ~float64 | ~bool
}

// ContextValue returns the value stored with Set under key, or the zero T.
func ContextValue[T any](c Context, key any) T {
	if v, ok := c.Get(key).(T); ok {
		return v
	}
	var zero T
	return zero
}

// Param parses a URL parameter. Unparsable values yield def.
func Param[T Scalar](c Context, name string, def T) T {
	return parseOr(c.Param(name), def)
}

// Query parses a query parameter. Missing or unparsable values yield def.
func Query[T Scalar](c Context, name string, def T) T {
	return parseOr(c.Query(name), def)
}

// Input parses a body field or query parameter, as Context.Input finds it.
func Input[T Scalar](c Context, name string, def T) T {
	return parseOr(c.Input(name, ""), def)
}

// parseOr converts raw by the kind of T, so named types such as
// `type userID string` parse like their underlying type.
func parseOr[T Scalar](raw string, def T) T {
	if raw == "" {
		return def
	}
	var out T
	v := reflect.ValueOf(&out).Elem()
	switch v.Kind() {
	case reflect.String:
		v.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, v.Type().Bits())
		if err != nil {
			return def
		}
		v.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return def
		}
		v.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return def
		}
		v.SetBool(b)
	default:
		return def
	}
	return out
}
