// SPDX-License-Identifier: AGPL-3.0-or-later
// © 2025 dex-go Contributors
// Part of dex-go — Licensed under AGPL-3.0-or-later.

package dex

import (
	"fmt"
	"math"
	"unsafe"
)

// RowMajorStrides returns element strides for a dense row-major layout.
func RowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	step := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = step
		step *= shape[i]
	}
	return strides
}

// elementCount returns the number of elements in shape. It fails on a
// negative dimension or when the byte size of the array overflows int.
func elementCount(shape []int, elemSize int) (int, error) {
	count := 1
	for i, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("dex: dimension %d is negative (%d)", i, d)
		}
		if d != 0 && count > math.MaxInt/d {
			return 0, fmt.Errorf("dex: shape %v overflows", shape)
		}
		count *= d
	}
	if elemSize > 0 && count > math.MaxInt/elemSize {
		return 0, fmt.Errorf("dex: shape %v overflows", shape)
	}
	return count, nil
}

// ReadArray copies a RectArray of the given rank into a new row-major slice
// and returns it with the array's shape. The descriptor does not record its
// rank, so the caller supplies it, typically from Binder.Rank. Strides may be
// arbitrary, including zero for broadcast dimensions.
func ReadArray[T Scalar](ra RectArray, rank int) ([]T, []int, error) {
	if rank < 0 {
		return nil, nil, fmt.Errorf("dex: negative rank %d", rank)
	}
	if rank > 0 && (ra.Shape == nil || ra.Strides == nil) {
		return nil, nil, fmt.Errorf("dex: rank %d array has no shape or strides", rank)
	}

	var dims, strides []int64
	if rank > 0 {
		dims = unsafe.Slice(ra.Shape, rank)
		strides = unsafe.Slice(ra.Strides, rank)
	}
	shape := make([]int, rank)
	for i, d := range dims {
		if d < 0 {
			return nil, nil, fmt.Errorf("dex: dimension %d is negative (%d)", i, d)
		}
		shape[i] = int(d)
	}
	var zero T
	count, err := elementCount(shape, int(unsafe.Sizeof(zero)))
	if err != nil {
		return nil, nil, err
	}

	out := make([]T, count)
	if count == 0 {
		return out, shape, nil
	}
	if ra.Data == nil {
		return nil, nil, fmt.Errorf("dex: array of %d elements has no data", count)
	}

	base := (*T)(ra.Data)
	size := unsafe.Sizeof(*base)
	index := make([]int, rank)
	for n := 0; n < count; n++ {
		offset := 0
		for i, idx := range index {
			offset += idx * int(strides[i])
		}
		out[n] = *(*T)(unsafe.Add(ra.Data, offset*int(size)))

		for i := rank - 1; i >= 0; i-- {
			index[i]++
			if index[i] < shape[i] {
				break
			}
			index[i] = 0
		}
	}
	return out, shape, nil
}
