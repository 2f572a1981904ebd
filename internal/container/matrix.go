package container

import (
	"fmt"
	"math"
)

// Number is the element constraint of Matrix.
type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

// Matrix is a dense row-major matrix of fixed shape.
//
// At and Set check bounds and return errors; Get and Put are the hot-path
// accessors and rely on the runtime bounds check of the backing slice.
type Matrix[T Number] struct {
	rows, cols int
	data       []T
}

// NewMatrix returns a zero rows×cols matrix.
//
// Complexity: O(rows*cols).
func NewMatrix[T Number](rows, cols int) (*Matrix[T], error) {
	if rows <= 0 || cols <= 0 {
		return nil, ErrInvalidDimensions
	}
	if rows > math.MaxInt/cols {
		return nil, fmt.Errorf("NewMatrix(%d,%d): %w", rows, cols, ErrInvalidDimensions)
	}
	return &Matrix[T]{rows: rows, cols: cols, data: make([]T, rows*cols)}, nil
}

func (m *Matrix[T]) Rows() int { return m.rows }
func (m *Matrix[T]) Cols() int { return m.cols }

func (m *Matrix[T]) At(i, j int) (T, error) {
	var zero T
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		return zero, fmt.Errorf("Matrix.At(%d,%d): %w", i, j, ErrIndexOutOfRange)
	}
	return m.data[i*m.cols+j], nil
}

func (m *Matrix[T]) Set(i, j int, v T) error {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		return fmt.Errorf("Matrix.Set(%d,%d): %w", i, j, ErrIndexOutOfRange)
	}
	m.data[i*m.cols+j] = v
	return nil
}

// Get is the unchecked read used inside solver loops.
func (m *Matrix[T]) Get(i, j int) T { return m.data[i*m.cols+j] }

// Put is the unchecked write counterpart of Get.
func (m *Matrix[T]) Put(i, j int, v T) { m.data[i*m.cols+j] = v }

func (m *Matrix[T]) Fill(v T) {
	for i := range m.data {
		m.data[i] = v
	}
}

func (m *Matrix[T]) Clone() *Matrix[T] {
	return &Matrix[T]{rows: m.rows, cols: m.cols, data: append([]T(nil), m.data...)}
}

// Equal reports whether both matrices have the same shape and elements.
func (m *Matrix[T]) Equal(o *Matrix[T]) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.rows != o.rows || m.cols != o.cols {
		return false
	}
	for i := range m.data {
		if m.data[i] != o.data[i] {
			return false
		}
	}
	return true
}
