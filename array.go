// SPDX-License-Identifier: AGPL-3.0-or-later
// © 2025 dex-go Contributors
// Part of dex-go — Licensed under AGPL-3.0-or-later.

package dex

/*
#include <stdlib.h>
#include <string.h>
*/
import "C"

import (
	"fmt"
	"runtime"
	"unsafe"
)

// Scalar lists the Go types that have a native ScalarType.
type Scalar interface {
	~int64 | ~int32 | ~uint8 | ~float64 | ~float32 | ~uint32 | ~uint64
}

// ScalarTypeOf returns the native tag for T.
func ScalarTypeOf[T Scalar]() ScalarType {
	var zero T
	switch any(zero).(type) {
	case int64:
		return Int64
	case int32:
		return Int32
	case uint8:
		return Uint8
	case float64:
		return Float64
	case float32:
		return Float32
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	}
	// Named types: fall back to size and kind of the underlying type.
	switch unsafe.Sizeof(zero) {
	case 1:
		return Uint8
	case 4:
		if isFloat(zero) {
			return Float32
		}
		if isSigned(zero) {
			return Int32
		}
		return Uint32
	default:
		if isFloat(zero) {
			return Float64
		}
		if isSigned(zero) {
			return Int64
		}
		return Uint64
	}
}

func isFloat[T Scalar](v T) bool {
	v = 1
	return v/2 != 0
}

func isSigned[T Scalar](v T) bool {
	v = 0
	v--
	return v < 0
}

// Array is a dense row-major array held in C memory, suitable for passing to
// libDex through a RectArray. The data, shape, and strides buffers are owned
// by the Array and freed by Close.
type Array struct {
	elem     ScalarType
	shape    []int
	data     unsafe.Pointer
	shapeC   *int64
	stridesC *int64
}

func cAlloc(size int) unsafe.Pointer {
	if size == 0 {
		size = 1
	}
	return C.calloc(1, C.size_t(size))
}

func newArray(elem ScalarType, shape []int) (*Array, error) {
	count, err := elementCount(shape, elem.Size())
	if err != nil {
		return nil, err
	}

	a := &Array{
		elem:  elem,
		shape: append([]int(nil), shape...),
		data:  cAlloc(count * elem.Size()),
	}
	rank := len(shape)
	a.shapeC = (*int64)(cAlloc(rank * 8))
	a.stridesC = (*int64)(cAlloc(rank * 8))
	if a.data == nil || a.shapeC == nil || a.stridesC == nil {
		a.free()
		return nil, fmt.Errorf("dex: out of memory allocating %d elements", count)
	}

	dims := unsafe.Slice(a.shapeC, rank)
	strides := unsafe.Slice(a.stridesC, rank)
	for i, s := range RowMajorStrides(shape) {
		dims[i] = int64(shape[i])
		strides[i] = int64(s)
	}

	runtime.SetFinalizer(a, func(a *Array) {
		a.Close()
	})
	return a, nil
}

// NewArray copies row-major data with the given shape into C memory. The
// product of the shape must equal len(data). A nil or empty shape describes
// a rank-0 array holding exactly one element.
func NewArray[T Scalar](data []T, shape []int) (*Array, error) {
	count, err := elementCount(shape, ScalarTypeOf[T]().Size())
	if err != nil {
		return nil, err
	}
	if len(data) != count {
		return nil, fmt.Errorf("dex: data length %d does not match shape %v", len(data), shape)
	}
	a, err := newArray(ScalarTypeOf[T](), shape)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		C.memcpy(a.data, unsafe.Pointer(&data[0]), C.size_t(count*a.elem.Size()))
	}
	return a, nil
}

// NewZerosArray allocates a zero-filled array.
func NewZerosArray(elem ScalarType, shape ...int) (*Array, error) {
	if !elem.Valid() {
		return nil, fmt.Errorf("dex: invalid scalar type %d", uint64(elem))
	}
	return newArray(elem, shape)
}

// NewArrayFromMatrix builds a 2-D float64 array from a slice of rows. The
// matrix must be rectangular. Empty matrices yield arrays with zero rows,
// zero columns, or both.
func NewArrayFromMatrix(matrix [][]float64) (*Array, error) {
	if matrix == nil {
		return nil, fmt.Errorf("dex: matrix cannot be nil")
	}
	rows := len(matrix)
	if rows == 0 {
		return NewZerosArray(Float64, 0, 0)
	}

	cols := len(matrix[0])
	for i := 1; i < rows; i++ {
		if len(matrix[i]) != cols {
			return nil, fmt.Errorf("dex: matrix row %d has length %d, expected %d", i, len(matrix[i]), cols)
		}
	}
	if cols == 0 {
		return NewZerosArray(Float64, rows, 0)
	}

	data := make([]float64, 0, rows*cols)
	for _, row := range matrix {
		data = append(data, row...)
	}
	return NewArray(data, []int{rows, cols})
}

// NewArrayFromColumns builds a 2-D float64 array from equally sized column
// vectors, converting them to row-major order.
func NewArrayFromColumns(columns [][]float64) (*Array, error) {
	if columns == nil {
		return nil, fmt.Errorf("dex: columns cannot be nil")
	}
	cols := len(columns)
	if cols == 0 {
		return NewZerosArray(Float64, 0, 0)
	}

	rows := len(columns[0])
	for i := 1; i < cols; i++ {
		if len(columns[i]) != rows {
			return nil, fmt.Errorf("dex: column %d has length %d, expected %d", i, len(columns[i]), rows)
		}
	}
	if rows == 0 {
		return NewZerosArray(Float64, 0, cols)
	}

	data := make([]float64, rows*cols)
	for c := 0; c < cols; c++ {
		column := columns[c]
		for r := 0; r < rows; r++ {
			data[r*cols+c] = column[r]
		}
	}
	return NewArray(data, []int{rows, cols})
}

func (a *Array) free() {
	for _, p := range []unsafe.Pointer{a.data, unsafe.Pointer(a.shapeC), unsafe.Pointer(a.stridesC)} {
		if p != nil {
			C.free(p)
		}
	}
	a.data, a.shapeC, a.stridesC = nil, nil, nil
}

// Close releases the C buffers. Subsequent calls are safe.
func (a *Array) Close() {
	if a == nil || a.data == nil {
		return
	}
	runtime.SetFinalizer(a, nil)
	a.free()
}

// ElemType returns the element type.
func (a *Array) ElemType() ScalarType {
	return a.elem
}

// Shape returns a copy of the dimensions.
func (a *Array) Shape() []int {
	return append([]int(nil), a.shape...)
}

// Len returns the number of elements.
func (a *Array) Len() int {
	n := 1
	for _, d := range a.shape {
		n *= d
	}
	return n
}

// RectArray returns the descriptor for the array. It stays valid until Close.
func (a *Array) RectArray() (RectArray, error) {
	if a == nil || a.data == nil {
		return RectArray{}, ErrClosed
	}
	return RectArray{Data: a.data, Shape: a.shapeC, Strides: a.stridesC}, nil
}

// Atom wraps RectArray in a CAtom for Context.FromCAtom.
func (a *Array) Atom() (CAtom, error) {
	ra, err := a.RectArray()
	if err != nil {
		return CAtom{}, err
	}
	return RectArrayAtom(ra), nil
}

// ArrayData copies the array contents into a new slice. T must match the
// element type.
func ArrayData[T Scalar](a *Array) ([]T, error) {
	if a == nil || a.data == nil {
		return nil, ErrClosed
	}
	if want := ScalarTypeOf[T](); want != a.elem {
		return nil, fmt.Errorf("dex: array holds %s, not %s", a.elem, want)
	}
	n := a.Len()
	out := make([]T, n)
	if n > 0 {
		copy(out, unsafe.Slice((*T)(a.data), n))
	}
	return out, nil
}

// ToMatrix decodes a 2-D float64 array into rows. Each row owns its backing
// array.
func (a *Array) ToMatrix() ([][]float64, error) {
	if a == nil || a.data == nil {
		return nil, ErrClosed
	}
	if len(a.shape) != 2 {
		return nil, fmt.Errorf("dex: array has rank %d, expected 2", len(a.shape))
	}
	rows, cols := a.shape[0], a.shape[1]
	if rows == 0 || cols == 0 {
		matrix := make([][]float64, rows)
		for r := range matrix {
			matrix[r] = make([]float64, cols)
		}
		return matrix, nil
	}

	flat, err := ArrayData[float64](a)
	if err != nil {
		return nil, err
	}
	matrix := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		row := make([]float64, cols)
		copy(row, flat[r*cols:(r+1)*cols])
		matrix[r] = row
	}
	return matrix, nil
}

// Row returns a copy of one row of a 2-D float64 array.
func (a *Array) Row(index int) ([]float64, error) {
	matrix, err := a.ToMatrix()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(matrix) {
		return nil, fmt.Errorf("dex: row index %d out of range [0,%d)", index, len(matrix))
	}
	return matrix[index], nil
}

// Column returns a copy of one column of a 2-D float64 array.
func (a *Array) Column(index int) ([]float64, error) {
	if a == nil || a.data == nil {
		return nil, ErrClosed
	}
	if len(a.shape) != 2 {
		return nil, fmt.Errorf("dex: array has rank %d, expected 2", len(a.shape))
	}
	rows, cols := a.shape[0], a.shape[1]
	if index < 0 || index >= cols {
		return nil, fmt.Errorf("dex: column index %d out of range [0,%d)", index, cols)
	}
	if rows == 0 {
		return []float64{}, nil
	}
	flat, err := ArrayData[float64](a)
	if err != nil {
		return nil, err
	}
	column := make([]float64, rows)
	for r := 0; r < rows; r++ {
		column[r] = flat[r*cols+index]
	}
	return column, nil
}
