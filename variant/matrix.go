package variant

import (
	"fmt"

	"github.com/c360/opflow/errors"
)

// Matrix is an immutable row-major matrix.
type Matrix[T Element] struct {
	rows, cols int
	data       []T
}

// matrixHandle is the element-type independent view used by SizeOf, Equal
// and the codec.
type matrixHandle interface {
	Rows() int
	Cols() int
	equal(other matrixHandle) bool
}

// NewMatrix copies data into a new matrix Variant. len(data) must equal
// rows*cols.
func NewMatrix[T Element](rows, cols int, data []T) (Variant, error) {
	if rows < 0 || cols < 0 {
		return Empty(), fmt.Errorf("%w: negative matrix dimensions %dx%d", errors.ErrInvalidData, rows, cols)
	}
	if len(data) != rows*cols {
		return Empty(), fmt.Errorf("%w: %d elements for %dx%d matrix", errors.ErrInvalidData, len(data), rows, cols)
	}
	m := &Matrix[T]{rows: rows, cols: cols, data: make([]T, len(data))}
	copy(m.data, data)
	return Variant{typ: idOf[T]() | matrixFlag, payload: m}, nil
}

// Rows returns the row count.
func (m *Matrix[T]) Rows() int { return m.rows }

// Cols returns the column count.
func (m *Matrix[T]) Cols() int { return m.cols }

// At returns the element at (r, c).
func (m *Matrix[T]) At(r, c int) T {
	if r < 0 || r >= m.rows || c < 0 || c >= m.cols {
		panic(fmt.Sprintf("variant: index (%d,%d) out of range %dx%d", r, c, m.rows, m.cols))
	}
	return m.data[r*m.cols+c]
}

// Row returns row r without copying. The slice must not be modified.
func (m *Matrix[T]) Row(r int) []T {
	if r < 0 || r >= m.rows {
		panic(fmt.Sprintf("variant: row %d out of range %d", r, m.rows))
	}
	start := r * m.cols
	return m.data[start : start+m.cols : start+m.cols]
}

// Data returns a copy of the row-major elements.
func (m *Matrix[T]) Data() []T {
	out := make([]T, len(m.data))
	copy(out, m.data)
	return out
}

func (m *Matrix[T]) equal(other matrixHandle) bool {
	o, ok := other.(*Matrix[T])
	if !ok || o.rows != m.rows || o.cols != m.cols {
		return false
	}
	for i := range m.data {
		if m.data[i] != o.data[i] {
			return false
		}
	}
	return true
}

func (m *Matrix[T]) String() string {
	return fmt.Sprintf("%dx%d%v", m.rows, m.cols, m.data)
}
