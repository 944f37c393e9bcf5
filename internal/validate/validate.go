// Package validate holds the precondition checks used at component
// boundaries that receive dynamically shaped values: workflow files, hook
// payloads and shared-context entries.
//
// Each IsNullInvalidX predicate has an exact negation IsValidX and a CheckX
// that returns a ValidationError exactly when the predicate is true.
package validate

import (
	"fmt"
	"reflect"
)

// Predicate tests one shape constraint. True means the value is invalid.
type Predicate func(v any) bool

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// deref follows non-nil pointers to the value they point at.
func deref(v any) reflect.Value {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	return rv
}

// IsEmpty reports whether v is nil, an empty string, slice, array, map or
// channel, or a zero-valued struct. Other scalars are never empty.
func IsEmpty(v any) bool {
	if isNil(v) {
		return true
	}
	rv := deref(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return rv.Len() == 0
	case reflect.Struct:
		return rv.IsZero()
	}
	return false
}

// IsNullInvalidString reports whether v is not a string.
func IsNullInvalidString(v any) bool {
	if isNil(v) {
		return true
	}
	return deref(v).Kind() != reflect.String
}

// IsValidString is the negation of IsNullInvalidString.
func IsValidString(v any) bool { return !IsNullInvalidString(v) }

// IsEmptyNullInvalidString reports whether v is not a non-empty string.
func IsEmptyNullInvalidString(v any) bool {
	return IsNullInvalidString(v) || deref(v).Len() == 0
}

// IsValidNonEmptyString is the negation of IsEmptyNullInvalidString.
func IsValidNonEmptyString(v any) bool { return !IsEmptyNullInvalidString(v) }

// IsNullInvalidSlice reports whether v is not a non-nil slice or array.
func IsNullInvalidSlice(v any) bool {
	if isNil(v) {
		return true
	}
	k := deref(v).Kind()
	return k != reflect.Slice && k != reflect.Array
}

// IsValidSlice is the negation of IsNullInvalidSlice.
func IsValidSlice(v any) bool { return !IsNullInvalidSlice(v) }

// IsEmptyNullInvalidSlice reports whether v is not a non-empty slice or array.
func IsEmptyNullInvalidSlice(v any) bool {
	return IsNullInvalidSlice(v) || deref(v).Len() == 0
}

// IsValidNonEmptySlice is the negation of IsEmptyNullInvalidSlice.
func IsValidNonEmptySlice(v any) bool { return !IsEmptyNullInvalidSlice(v) }

// IsNullInvalidObject reports whether v is not a non-nil map or struct.
// Slices are never objects.
func IsNullInvalidObject(v any) bool {
	if isNil(v) {
		return true
	}
	k := deref(v).Kind()
	return k != reflect.Map && k != reflect.Struct
}

// IsValidObject is the negation of IsNullInvalidObject.
func IsValidObject(v any) bool { return !IsNullInvalidObject(v) }

// IsEmptyNullInvalidObject reports whether v is not a non-empty map or
// struct.
func IsEmptyNullInvalidObject(v any) bool {
	return IsNullInvalidObject(v) || IsEmpty(v)
}

// IsValidNonEmptyObject is the negation of IsEmptyNullInvalidObject.
func IsValidNonEmptyObject(v any) bool { return !IsEmptyNullInvalidObject(v) }

// IsNullInvalidBool reports whether v is not a bool.
func IsNullInvalidBool(v any) bool {
	if isNil(v) {
		return true
	}
	return deref(v).Kind() != reflect.Bool
}

// IsValidBool is the negation of IsNullInvalidBool.
func IsValidBool(v any) bool { return !IsNullInvalidBool(v) }

// IsNullInvalidFunc reports whether v is not a non-nil function.
func IsNullInvalidFunc(v any) bool {
	if isNil(v) {
		return true
	}
	return reflect.ValueOf(v).Kind() != reflect.Func
}

// IsValidFunc is the negation of IsNullInvalidFunc.
func IsValidFunc(v any) bool { return !IsNullInvalidFunc(v) }

// IsIterable reports whether v can be ranged over: a string, slice, array,
// map or channel that is not nil.
func IsIterable(v any) bool {
	if isNil(v) {
		return false
	}
	switch deref(v).Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return true
	}
	return false
}

// IsNotIterable is the negation of IsIterable.
func IsNotIterable(v any) bool { return !IsIterable(v) }

// IsInstanceOf reports whether v is non-nil and its dynamic type is want, or
// implements want when want is an interface type.
func IsInstanceOf(v any, want reflect.Type) bool {
	if isNil(v) || want == nil {
		return false
	}
	got := reflect.TypeOf(v)
	if want.Kind() == reflect.Interface {
		return got.Implements(want)
	}
	return got == want
}

// IsNotInstanceOf is the negation of IsInstanceOf.
func IsNotInstanceOf(v any, want reflect.Type) bool { return !IsInstanceOf(v, want) }

// describe names what was actually received, for error messages.
func describe(v any) string {
	if v == nil {
		return "null"
	}
	if isNil(v) {
		return fmt.Sprintf("a nil %T", v)
	}
	if IsIterable(v) && IsEmpty(v) {
		if deref(v).Kind() == reflect.String {
			return "an empty string"
		}
		return fmt.Sprintf("an empty %T", v)
	}
	return fmt.Sprintf("%T", v)
}
