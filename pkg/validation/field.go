package validation

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Field is a request value that remembers whether the client sent it.
// Set is true once the key appears in the JSON body, Null when the client
// sent an explicit null, and Invalid when the JSON type did not fit T.
type Field[T any] struct {
	Set     bool
	Null    bool
	Invalid bool
	Value   T
}

// Of returns a set, non-null field holding v.
func Of[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

// NullOf returns a field the client explicitly nulled.
func NullOf[T any]() Field[T] {
	return Field[T]{Set: true, Null: true}
}

// UnmarshalJSON records presence. A JSON type mismatch is kept as Invalid
// so it can be reported per field instead of failing the whole body.
func (f *Field[T]) UnmarshalJSON(b []byte) error {
	f.Set = true
	if string(b) == "null" {
		f.Null = true
		var zero T
		f.Value = zero
		return nil
	}
	if err := json.Unmarshal(b, &f.Value); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			f.Invalid = true
			return nil
		}
		return err
	}
	return nil
}

// Present reports whether the field holds a usable value.
func (f Field[T]) Present() bool {
	return f.Set && !f.Null && !f.Invalid
}

// Ptr returns a pointer to the value, nil when absent or null.
func (f Field[T]) Ptr() *T {
	if !f.Present() {
		return nil
	}
	v := f.Value
	return &v
}

// Number is a float that also decodes from a numeric JSON string such as
// "1500", so form-style clients can send amounts quoted.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	raw := string(b)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return &json.UnmarshalTypeError{Value: string(b), Type: reflect.TypeOf(Number(0))}
	}
	*n = Number(f)
	return nil
}
