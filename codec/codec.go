// Package codec encodes variants for transport with MessagePack.
//
// Every variant kind has a wire form, control tags and the empty variant
// included. Complex numbers travel as pairs of reals; complex matrices as
// interleaved real and imaginary parts.
package codec

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/c360/opflow/errors"
	"github.com/c360/opflow/variant"
)

// ContentType is the content type of encoded messages.
const ContentType = "application/x-opflow-variant+msgpack"

// Envelope is a variant with the identifier of the message carrying it.
type Envelope struct {
	ID      string
	Variant variant.Variant
}

// frame is the wire form of one envelope.
type frame struct {
	Type  uint16             `msgpack:"t"`
	ID    string             `msgpack:"id,omitempty"`
	Rows  int                `msgpack:"r,omitempty"`
	Cols  int                `msgpack:"c,omitempty"`
	Value msgpack.RawMessage `msgpack:"v,omitempty"`
}

type kind struct {
	encode func(v variant.Variant, f *frame) error
	decode func(f *frame) (variant.Variant, error)
}

var kinds = map[variant.TypeID]kind{
	variant.Int8:       scalarKind[int8](),
	variant.Uint8:      scalarKind[uint8](),
	variant.Int16:      scalarKind[int16](),
	variant.Uint16:     scalarKind[uint16](),
	variant.Int32:      scalarKind[int32](),
	variant.Uint32:     scalarKind[uint32](),
	variant.Int64:      scalarKind[int64](),
	variant.Uint64:     scalarKind[uint64](),
	variant.Float32:    scalarKind[float32](),
	variant.Float64:    scalarKind[float64](),
	variant.Bool:       scalarKind[bool](),
	variant.String:     scalarKind[string](),
	variant.Complex64:  complexKind[complex64, float32](),
	variant.Complex128: complexKind[complex128, float64](),

	variant.Int8Matrix:       matrixKind[int8](),
	variant.Uint8Matrix:      matrixKind[uint8](),
	variant.Int16Matrix:      matrixKind[int16](),
	variant.Uint16Matrix:     matrixKind[uint16](),
	variant.Int32Matrix:      matrixKind[int32](),
	variant.Uint32Matrix:     matrixKind[uint32](),
	variant.Int64Matrix:      matrixKind[int64](),
	variant.Uint64Matrix:     matrixKind[uint64](),
	variant.Float32Matrix:    matrixKind[float32](),
	variant.Float64Matrix:    matrixKind[float64](),
	variant.Complex64Matrix:  complexMatrixKind[complex64, float32](),
	variant.Complex128Matrix: complexMatrixKind[complex128, float64](),
}

// Marshal encodes v.
func Marshal(v variant.Variant) ([]byte, error) {
	return MarshalEnvelope(Envelope{Variant: v})
}

// Unmarshal decodes a variant encoded by Marshal or MarshalEnvelope.
func Unmarshal(data []byte) (variant.Variant, error) {
	e, err := UnmarshalEnvelope(data)
	return e.Variant, err
}

// MarshalEnvelope encodes e.
func MarshalEnvelope(e Envelope) ([]byte, error) {
	v := e.Variant
	f := frame{Type: uint16(v.Type()), ID: e.ID}

	if !v.IsEmpty() && !v.IsControl() {
		k, ok := kinds[v.Type()]
		if !ok {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: no wire form for %s", errors.ErrInvalidData, v.Type()),
				"codec", "Marshal", "select kind")
		}
		if err := k.encode(v, &f); err != nil {
			return nil, errors.WrapInvalid(err, "codec", "Marshal", "encode "+v.Type().String())
		}
	}

	data, err := msgpack.Marshal(&f)
	if err != nil {
		return nil, errors.WrapInvalid(err, "codec", "Marshal", "encode frame")
	}
	return data, nil
}

// UnmarshalEnvelope decodes an envelope.
func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var f frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return Envelope{}, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidData, err), "codec", "Unmarshal", "decode frame")
	}

	t := variant.TypeID(f.Type)
	e := Envelope{ID: f.ID}
	switch {
	case t == variant.None:
		e.Variant = variant.Empty()
		return e, nil
	case t.IsControl():
		e.Variant = variant.Tag(t)
		return e, nil
	}

	k, ok := kinds[t]
	if !ok {
		return e, errors.WrapInvalid(
			fmt.Errorf("%w: unknown type id 0x%04x", errors.ErrInvalidData, f.Type),
			"codec", "Unmarshal", "select kind")
	}
	v, err := k.decode(&f)
	if err != nil {
		return e, errors.WrapInvalid(
			fmt.Errorf("%w: %s: %v", errors.ErrInvalidData, t, err), "codec", "Unmarshal", "decode value")
	}
	e.Variant = v
	return e, nil
}

func scalarKind[T variant.Scalar]() kind {
	return kind{
		encode: func(v variant.Variant, f *frame) error {
			x, err := variant.ValueAs[T](v)
			if err != nil {
				return err
			}
			f.Value, err = msgpack.Marshal(x)
			return err
		},
		decode: func(f *frame) (variant.Variant, error) {
			var x T
			if err := msgpack.Unmarshal(f.Value, &x); err != nil {
				return variant.Empty(), err
			}
			return variant.New(x), nil
		},
	}
}

type complexNumber interface{ complex64 | complex128 }

type realNumber interface{ float32 | float64 }

func complexKind[C complexNumber, R realNumber]() kind {
	return kind{
		encode: func(v variant.Variant, f *frame) error {
			x, err := variant.ValueAs[C](v)
			if err != nil {
				return err
			}
			f.Value, err = msgpack.Marshal(interleave[C, R]([]C{x}))
			return err
		},
		decode: func(f *frame) (variant.Variant, error) {
			var parts []R
			if err := msgpack.Unmarshal(f.Value, &parts); err != nil {
				return variant.Empty(), err
			}
			xs, err := deinterleave[C, R](parts)
			if err != nil {
				return variant.Empty(), err
			}
			if len(xs) != 1 {
				return variant.Empty(), fmt.Errorf("want 2 parts, got %d", len(parts))
			}
			return variant.New(xs[0]), nil
		},
	}
}

func matrixKind[T variant.Element]() kind {
	return kind{
		encode: func(v variant.Variant, f *frame) error {
			m, err := variant.MatrixAs[T](v)
			if err != nil {
				return err
			}
			f.Rows, f.Cols = m.Rows(), m.Cols()
			f.Value, err = msgpack.Marshal(m.Data())
			return err
		},
		decode: func(f *frame) (variant.Variant, error) {
			var data []T
			if err := msgpack.Unmarshal(f.Value, &data); err != nil {
				return variant.Empty(), err
			}
			return variant.NewMatrix(f.Rows, f.Cols, data)
		},
	}
}

func complexMatrixKind[C complexNumber, R realNumber]() kind {
	return kind{
		encode: func(v variant.Variant, f *frame) error {
			m, err := variant.MatrixAs[C](v)
			if err != nil {
				return err
			}
			f.Rows, f.Cols = m.Rows(), m.Cols()
			f.Value, err = msgpack.Marshal(interleave[C, R](m.Data()))
			return err
		},
		decode: func(f *frame) (variant.Variant, error) {
			var parts []R
			if err := msgpack.Unmarshal(f.Value, &parts); err != nil {
				return variant.Empty(), err
			}
			data, err := deinterleave[C, R](parts)
			if err != nil {
				return variant.Empty(), err
			}
			return variant.NewMatrix(f.Rows, f.Cols, data)
		},
	}
}

func interleave[C complexNumber, R realNumber](xs []C) []R {
	out := make([]R, 0, 2*len(xs))
	for _, x := range xs {
		c := complex128(x)
		out = append(out, R(real(c)), R(imag(c)))
	}
	return out
}

func deinterleave[C complexNumber, R realNumber](parts []R) ([]C, error) {
	if len(parts)%2 != 0 {
		return nil, fmt.Errorf("odd number of complex parts: %d", len(parts))
	}
	out := make([]C, len(parts)/2)
	for i := range out {
		out[i] = C(complex(float64(parts[2*i]), float64(parts[2*i+1])))
	}
	return out, nil
}
