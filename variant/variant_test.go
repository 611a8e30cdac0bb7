package variant

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/opflow/errors"
)

func TestTypeIDs(t *testing.T) {
	assert.Equal(t, TypeID(0x49), Float64Matrix)
	assert.Equal(t, TypeID(0x51), Complex128Matrix)
	assert.Equal(t, TypeID(0x1002), Stop)
	assert.Equal(t, "Float64Matrix", Float64Matrix.String())
	assert.Equal(t, "Resume", Resume.String())
	assert.Equal(t, "TypeID(0x0777)", TypeID(0x777).String())

	assert.True(t, Uint8Matrix.IsMatrix())
	assert.False(t, String.IsMatrix())
	assert.False(t, (Bool | matrixFlag).IsMatrix())
	assert.False(t, TypeID(0x777).Known())
	assert.True(t, Pause.IsControl())
	assert.False(t, None.IsControl())
	assert.True(t, Bool.IsPrimitive())
	assert.True(t, Int8.IsPrimitive())
	assert.False(t, Complex64.IsPrimitive())
	assert.False(t, String.IsPrimitive())
}

func TestScalarRoundTrip(t *testing.T) {
	v := New(int32(-7))
	assert.Equal(t, Int32, TypeOf(v))

	got, err := ValueAs[int32](v)
	require.NoError(t, err)
	assert.Equal(t, int32(-7), got)

	c := New(complex(1.5, -2))
	assert.Equal(t, Complex128, c.Type())

	s := NewString("key")
	str, err := ValueAs[string](s)
	require.NoError(t, err)
	assert.Equal(t, "key", str)
	assert.Equal(t, `"key"`, s.String())
}

func TestValueAsTypeMismatch(t *testing.T) {
	_, err := ValueAs[float64](New(int64(1)))
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)

	_, err = ValueAs[string](Tag(SyncStart))
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)

	_, err = MatrixAs[float64](New(1.0))
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)

	_, err = ValueAs[int8](Variant{})
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
}

func TestEmpty(t *testing.T) {
	var zero Variant
	assert.True(t, zero.IsEmpty())
	assert.Equal(t, None, zero.Type())
	assert.True(t, Empty().IsEmpty())
	assert.False(t, Tag(Stop).IsEmpty())
	assert.False(t, New(false).IsEmpty())
}

func TestTag(t *testing.T) {
	v := Tag(SyncEnd)
	assert.True(t, v.IsControl())
	assert.Equal(t, "end tag", v.String())
	assert.Panics(t, func() { Tag(Float64) })
}

func TestMatrixRoundTripIsBitIdentical(t *testing.T) {
	data := []float64{0, -0.0, math.Inf(1), math.SmallestNonzeroFloat64, 1.0 / 3, math.MaxFloat64}
	v, err := NewMatrix(2, 3, data)
	require.NoError(t, err)
	assert.Equal(t, Float64Matrix, v.Type())

	m, err := MatrixAs[float64](v)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Rows())
	assert.Equal(t, 3, m.Cols())
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			assert.Equal(t, math.Float64bits(data[r*3+c]), math.Float64bits(m.At(r, c)))
		}
	}
	assert.Equal(t, data[3:], m.Row(1))
}

func TestMatrixIsIsolatedFromCaller(t *testing.T) {
	data := []int16{1, 2, 3, 4}
	v, err := NewMatrix(2, 2, data)
	require.NoError(t, err)

	data[0] = 99
	m, _ := MatrixAs[int16](v)
	assert.Equal(t, int16(1), m.At(0, 0))

	out := m.Data()
	out[1] = 99
	assert.Equal(t, int16(2), m.At(0, 1))
}

func TestMatrixSharedAcrossCopies(t *testing.T) {
	v, err := NewMatrix(1, 2, []uint8{1, 2})
	require.NoError(t, err)
	copyOf := v

	a, _ := MatrixAs[uint8](v)
	b, _ := MatrixAs[uint8](copyOf)
	assert.Same(t, a, b)
}

func TestNewMatrixValidation(t *testing.T) {
	_, err := NewMatrix(2, 2, []float32{1, 2, 3})
	assert.ErrorIs(t, err, errors.ErrInvalidData)

	_, err = NewMatrix(-1, 0, []float32{})
	assert.ErrorIs(t, err, errors.ErrInvalidData)

	v, err := NewMatrix[complex64](0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, Complex64Matrix, v.Type())
}

func TestMatrixAtOutOfRangePanics(t *testing.T) {
	v, _ := NewMatrix(1, 1, []int64{5})
	m, _ := MatrixAs[int64](v)
	assert.Panics(t, func() { m.At(1, 0) })
	assert.Panics(t, func() { m.Row(-1) })
}

func TestSizeOf(t *testing.T) {
	tests := []struct {
		name string
		v    Variant
		want int64
	}{
		{"int8", New(int8(1)), 33},
		{"float64", New(2.0), 40},
		{"complex128", New(complex128(1)), 48},
		{"string", NewString("abcd"), 40},
		{"tag", Tag(Pause), 32},
		{"empty", Empty(), 32},
		{"matrix", mustMatrix(t, 3, 4, make([]float32, 12)), 32 + 12*4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SizeOf(tt.v))
		})
	}
}

func TestEqual(t *testing.T) {
	a := mustMatrix(t, 1, 2, []float64{1, 2})
	b := mustMatrix(t, 1, 2, []float64{1, 2})
	c := mustMatrix(t, 2, 1, []float64{1, 2})

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
	assert.True(t, Equal(New(uint16(3)), New(uint16(3))))
	assert.False(t, Equal(New(uint16(3)), New(uint32(3))))
	assert.True(t, Equal(Tag(Stop), Tag(Stop)))
	assert.False(t, Equal(Tag(Stop), Tag(Pause)))
}

func mustMatrix[T Element](t *testing.T, rows, cols int, data []T) Variant {
	t.Helper()
	v, err := NewMatrix(rows, cols, data)
	require.NoError(t, err)
	return v
}
