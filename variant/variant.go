// Package variant defines the type-tagged value that flows between operations.
//
// A Variant is immutable once constructed. Copying it copies a small handle;
// matrix storage is shared by every copy, so fan-out to several inputs never
// duplicates payload.
package variant

import (
	"fmt"

	"github.com/c360/opflow/errors"
)

// Variant is a primitive, string, matrix or control tag value. The zero
// Variant is empty.
type Variant struct {
	typ     TypeID
	payload any
}

// Empty returns the empty Variant.
func Empty() Variant {
	return Variant{typ: None}
}

// New wraps a scalar value.
func New[T Scalar](v T) Variant {
	return Variant{typ: idOf[T](), payload: v}
}

// NewString wraps a string.
func NewString(s string) Variant {
	return New(s)
}

// Tag returns a control tag Variant. It panics if id is not a control kind.
func Tag(id TypeID) Variant {
	if !id.IsControl() {
		panic(fmt.Sprintf("variant: %s is not a control tag", id))
	}
	return Variant{typ: id}
}

// Type returns the kind of v.
func (v Variant) Type() TypeID {
	if v.IsEmpty() {
		return None
	}
	return v.typ
}

// TypeOf returns the kind of v.
func TypeOf(v Variant) TypeID {
	return v.Type()
}

// IsEmpty reports whether v holds nothing.
func (v Variant) IsEmpty() bool {
	return v.typ == None || (v.payload == nil && !v.typ.IsControl())
}

// IsControl reports whether v is a control tag.
func (v Variant) IsControl() bool {
	return v.typ.IsControl()
}

// Is reports whether v is of kind t.
func (v Variant) Is(t TypeID) bool {
	return v.Type() == t
}

// Interface returns the raw payload: a scalar, a *Matrix[T], or nil.
func (v Variant) Interface() any {
	return v.payload
}

// String renders v for logs.
func (v Variant) String() string {
	switch {
	case v.IsEmpty():
		return "<empty>"
	case v.typ.IsControl():
		return tagName(v.typ)
	case v.typ == String:
		return fmt.Sprintf("%q", v.payload)
	default:
		return fmt.Sprint(v.payload)
	}
}

func tagName(t TypeID) string {
	switch t {
	case SyncStart:
		return "start tag"
	case SyncEnd:
		return "end tag"
	case Stop:
		return "stop tag"
	case Pause:
		return "pause tag"
	case Resume:
		return "resume tag"
	default:
		return "unidentified tag"
	}
}

// ValueAs reads v as T.
func ValueAs[T Scalar](v Variant) (T, error) {
	var zero T
	want := idOf[T]()
	if v.Type() != want {
		return zero, fmt.Errorf("%w: have %s, want %s", errors.ErrTypeMismatch, v.Type(), want)
	}
	t, ok := v.payload.(T)
	if !ok {
		return zero, fmt.Errorf("%w: payload %T for %s", errors.ErrTypeMismatch, v.payload, want)
	}
	return t, nil
}

// MatrixAs reads v as a matrix of T.
func MatrixAs[T Element](v Variant) (*Matrix[T], error) {
	want := idOf[T]() | matrixFlag
	if v.Type() != want {
		return nil, fmt.Errorf("%w: have %s, want %s", errors.ErrTypeMismatch, v.Type(), want)
	}
	m, ok := v.payload.(*Matrix[T])
	if !ok {
		return nil, fmt.Errorf("%w: payload %T for %s", errors.ErrTypeMismatch, v.payload, want)
	}
	return m, nil
}

// Equal reports whether a and b have the same kind and payload. Matrices
// compare element by element.
func Equal(a, b Variant) bool {
	if a.Type() != b.Type() {
		return false
	}
	if !a.typ.IsMatrix() {
		return a.payload == b.payload
	}
	if a.payload == b.payload {
		return true
	}
	ma, mb := a.payload.(matrixHandle), b.payload.(matrixHandle)
	return ma.equal(mb)
}

// SizeOf estimates the memory held by v in bytes. The estimate is stable for
// a given value, which is all the cache accounting relies on.
func SizeOf(v Variant) int64 {
	const overhead = 32
	switch {
	case v.IsEmpty(), v.typ.IsControl():
		return overhead
	case v.typ == String:
		s, _ := v.payload.(string)
		return overhead + 2*int64(len(s))
	case v.typ.IsMatrix():
		m := v.payload.(matrixHandle)
		return overhead + int64(m.Rows())*int64(m.Cols())*elemSize(v.typ.Elem())
	default:
		return overhead + elemSize(v.typ)
	}
}
