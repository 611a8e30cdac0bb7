package variant

import "fmt"

// TypeID identifies the payload kind of a Variant. The values are stable and
// are used on the wire by the codec package.
type TypeID uint16

// Primitive kinds.
const (
	Int8 TypeID = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
	Bool
)

// Complex scalar kinds.
const (
	Complex64  TypeID = 0x10
	Complex128 TypeID = 0x11
)

// String is the text kind.
const String TypeID = 0x30

// matrixFlag marks a matrix kind; the low bits carry the element kind.
const matrixFlag TypeID = 0x40

// Matrix kinds.
const (
	Int8Matrix       = Int8 | matrixFlag
	Uint8Matrix      = Uint8 | matrixFlag
	Int16Matrix      = Int16 | matrixFlag
	Uint16Matrix     = Uint16 | matrixFlag
	Int32Matrix      = Int32 | matrixFlag
	Uint32Matrix     = Uint32 | matrixFlag
	Int64Matrix      = Int64 | matrixFlag
	Uint64Matrix     = Uint64 | matrixFlag
	Float32Matrix    = Float32 | matrixFlag
	Float64Matrix    = Float64 | matrixFlag
	Complex64Matrix  = Complex64 | matrixFlag
	Complex128Matrix = Complex128 | matrixFlag
)

// Control tag kinds. They carry no payload and are relayed by the runtime.
const (
	SyncStart TypeID = 0x1000 + iota
	SyncEnd
	Stop
	Pause
	Resume
)

// None is the kind of the empty Variant.
const None TypeID = 0xffff

var typeNames = map[TypeID]string{
	Int8:       "Int8",
	Uint8:      "Uint8",
	Int16:      "Int16",
	Uint16:     "Uint16",
	Int32:      "Int32",
	Uint32:     "Uint32",
	Int64:      "Int64",
	Uint64:     "Uint64",
	Float32:    "Float32",
	Float64:    "Float64",
	Bool:       "Bool",
	Complex64:  "Complex64",
	Complex128: "Complex128",
	String:     "String",
	SyncStart:  "SyncStart",
	SyncEnd:    "SyncEnd",
	Stop:       "Stop",
	Pause:      "Pause",
	Resume:     "Resume",
	None:       "None",
}

// String returns the kind name, e.g. "Float64Matrix".
func (t TypeID) String() string {
	if t.IsMatrix() {
		if name, ok := typeNames[t.Elem()]; ok {
			return name + "Matrix"
		}
	}
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TypeID(0x%04x)", uint16(t))
}

// IsControl reports whether t is one of the control tag kinds.
func (t TypeID) IsControl() bool {
	return t >= SyncStart && t <= Resume
}

// IsPrimitive reports whether t is an integer, floating point or boolean
// kind.
func (t TypeID) IsPrimitive() bool {
	return t <= Bool
}

// IsMatrix reports whether t is a matrix kind.
func (t TypeID) IsMatrix() bool {
	return t&0xff00 == 0 && t&matrixFlag != 0 && elemSize(t&^matrixFlag) > 0 && t&^matrixFlag != Bool
}

// Elem returns the element kind of a matrix kind, or t itself otherwise.
func (t TypeID) Elem() TypeID {
	if t&0xff00 == 0 && t&matrixFlag != 0 {
		return t &^ matrixFlag
	}
	return t
}

// Known reports whether t is a kind this package can construct.
func (t TypeID) Known() bool {
	if t.IsMatrix() {
		return true
	}
	_, ok := typeNames[t]
	return ok
}

// elemSize returns sizeof(T) for scalar kinds, 0 for anything else.
func elemSize(t TypeID) int64 {
	switch t {
	case Int8, Uint8, Bool:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64, Complex64:
		return 8
	case Complex128:
		return 16
	default:
		return 0
	}
}

// Element is the set of matrix element types.
type Element interface {
	int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 |
		float32 | float64 | complex64 | complex128
}

// Primitive is the set of scalar payload types.
type Primitive interface {
	Element | bool
}

// Scalar is every non-matrix payload type.
type Scalar interface {
	Primitive | string
}

// idOf maps a Go type to its kind.
func idOf[T Scalar]() TypeID {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8
	case uint8:
		return Uint8
	case int16:
		return Int16
	case uint16:
		return Uint16
	case int32:
		return Int32
	case uint32:
		return Uint32
	case int64:
		return Int64
	case uint64:
		return Uint64
	case float32:
		return Float32
	case float64:
		return Float64
	case bool:
		return Bool
	case complex64:
		return Complex64
	case complex128:
		return Complex128
	case string:
		return String
	}
	return None
}
