package state

import (
	"reflect"
)

// WithDefault guarantees a non-nil resolution: the value when present, the
// initial value when present, otherwise a shape-appropriate empty default
// derived from the initial value's type. With no shape hint at all the most
// conservative default is an empty map. Pure and total for any input.
func WithDefault(value, initial interface{}) interface{} {
	if !isAbsent(value) {
		return value
	}
	if !isAbsent(initial) {
		return initial
	}
	return emptyDefault(initial)
}

func isAbsent(v interface{}) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}

	return false
}

func emptyDefault(hint interface{}) interface{} {
	t := reflect.TypeOf(hint)
	if t == nil {
		return map[string]interface{}{}
	}

	switch t.Kind() {
	case reflect.Slice:
		return reflect.MakeSlice(t, 0, 0).Interface()
	case reflect.Map:
		return reflect.MakeMap(t).Interface()
	case reflect.Ptr:
		if t.Elem().Kind() == reflect.Struct {
			return reflect.New(t.Elem()).Interface()
		}
		return map[string]interface{}{}
	case reflect.String, reflect.Bool, reflect.Struct,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return reflect.Zero(t).Interface()
	default:
		return map[string]interface{}{}
	}
}
