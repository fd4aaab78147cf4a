package dex

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewArrayFromMatrixRoundTrip(t *testing.T) {
	matrix := [][]float64{{1, 2, 3}, {4, 5, 6}}

	a, err := NewArrayFromMatrix(matrix)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.Equal(t, Float64, a.ElemType())
	assert.Equal(t, []int{2, 3}, a.Shape())
	assert.Equal(t, 6, a.Len())

	data, err := ArrayData[float64](a)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, data)

	decoded, err := a.ToMatrix()
	require.NoError(t, err)
	assert.Equal(t, matrix, decoded)
	decoded[0][0] = 99

	dataAfter, err := ArrayData[float64](a)
	require.NoError(t, err)
	assert.Equal(t, 1.0, dataAfter[0], "array data mutated through decoded matrix")
}

func TestNewArrayFromColumnsRoundTrip(t *testing.T) {
	columns := [][]float64{{1, 4}, {2, 5}, {3, 6}}

	a, err := NewArrayFromColumns(columns)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.Equal(t, []int{2, 3}, a.Shape())

	decoded, err := a.ToMatrix()
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2, 3}, {4, 5, 6}}, decoded)

	column, err := a.Column(0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 4}, column)

	row, err := a.Row(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5, 6}, row)

	_, err = a.Row(2)
	assert.Error(t, err)
	_, err = a.Column(-1)
	assert.Error(t, err)
}

func TestNewArrayFromMatrixValidation(t *testing.T) {
	_, err := NewArrayFromMatrix(nil)
	assert.Error(t, err, "nil matrix")

	_, err = NewArrayFromMatrix([][]float64{{1, 2}, {3}})
	assert.ErrorContains(t, err, "row 1")

	_, err = NewArrayFromColumns(nil)
	assert.Error(t, err, "nil columns")

	_, err = NewArrayFromColumns([][]float64{{1}, {2, 3}})
	assert.ErrorContains(t, err, "column 1")
}

func TestEmptyArrays(t *testing.T) {
	tests := []struct {
		name   string
		matrix [][]float64
		shape  []int
	}{
		{"no rows", [][]float64{}, []int{0, 0}},
		{"no columns", [][]float64{{}, {}}, []int{2, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewArrayFromMatrix(tt.matrix)
			require.NoError(t, err)
			defer a.Close()

			assert.Equal(t, tt.shape, a.Shape())
			assert.Equal(t, 0, a.Len())
			m, err := a.ToMatrix()
			require.NoError(t, err)
			assert.Len(t, m, tt.shape[0])
		})
	}

	a, err := NewArrayFromColumns([][]float64{{}, {}, {}})
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, []int{0, 3}, a.Shape())
	col, err := a.Column(2)
	require.NoError(t, err)
	assert.Empty(t, col)
}

func TestNewArrayShapeMismatch(t *testing.T) {
	_, err := NewArray([]int32{1, 2, 3}, []int{2, 2})
	assert.Error(t, err)

	_, err = NewZerosArray(Int64, 2, -1)
	assert.ErrorContains(t, err, "negative")

	_, err = NewZerosArray(ScalarType(42), 1)
	assert.Error(t, err)
}

func TestArrayShapeOverflow(t *testing.T) {
	_, err := NewZerosArray(Float32, 1<<62, 4)
	assert.ErrorContains(t, err, "overflows")

	_, err = NewZerosArray(Float64, 1<<61)
	assert.ErrorContains(t, err, "overflows", "byte size overflows even though the count fits")

	_, err = NewArray([]uint8{}, []int{1 << 62, 4})
	assert.ErrorContains(t, err, "overflows")

	a, err := NewZerosArray(Float64, 1<<62, 0)
	require.NoError(t, err)
	defer a.Close()
	assert.Zero(t, a.Len())

	shape := []int64{1 << 62, 4}
	strides := []int64{4, 1}
	var cell float32
	_, _, err = ReadArray[float32](RectArray{Data: unsafe.Pointer(&cell), Shape: &shape[0], Strides: &strides[0]}, 2)
	assert.ErrorContains(t, err, "overflows")
}

func TestArrayScalarRank(t *testing.T) {
	a, err := NewArray([]float32{2.5}, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Empty(t, a.Shape())
	assert.Equal(t, 1, a.Len())

	ra, err := a.RectArray()
	require.NoError(t, err)
	out, shape, err := ReadArray[float32](ra, 0)
	require.NoError(t, err)
	assert.Empty(t, shape)
	assert.Equal(t, []float32{2.5}, out)
}

func TestArrayDataTypeMismatch(t *testing.T) {
	a, err := NewArray([]int32{1, 2}, []int{2})
	require.NoError(t, err)
	defer a.Close()

	_, err = ArrayData[float32](a)
	assert.ErrorContains(t, err, "i32")

	got, err := ArrayData[int32](a)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2}, got)
}

func TestArrayClose(t *testing.T) {
	a, err := NewZerosArray(Uint8, 4)
	require.NoError(t, err)

	a.Close()
	a.Close()

	_, err = a.RectArray()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = a.Atom()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = ArrayData[uint8](a)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestArrayAtom(t *testing.T) {
	a, err := NewArray([]int64{1, 2, 3, 4, 5, 6}, []int{3, 2})
	require.NoError(t, err)
	defer a.Close()

	atom, err := a.Atom()
	require.NoError(t, err)
	assert.Equal(t, KindRectArray, atom.Kind)

	ra, ok := atom.RectArray()
	require.True(t, ok)
	assert.Equal(t, []int64{3, 2}, unsafe.Slice(ra.Shape, 2))
	assert.Equal(t, []int64{2, 1}, unsafe.Slice(ra.Strides, 2))

	out, shape, err := ReadArray[int64](ra, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, shape)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, out)
}

func TestRowMajorStrides(t *testing.T) {
	assert.Equal(t, []int{12, 4, 1}, RowMajorStrides([]int{2, 3, 4}))
	assert.Equal(t, []int{}, RowMajorStrides(nil))
	assert.Equal(t, []int{0, 3, 1}, RowMajorStrides([]int{5, 0, 3}))
}

func TestReadArrayStrided(t *testing.T) {
	// A 3x2 column-major view over a Go buffer.
	data := []float64{1, 2, 3, 4, 5, 6}
	shape := []int64{3, 2}
	strides := []int64{1, 3}
	ra := RectArray{Data: unsafe.Pointer(&data[0]), Shape: &shape[0], Strides: &strides[0]}

	out, dims, err := ReadArray[float64](ra, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, dims)
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, out)
}

func TestReadArrayBroadcast(t *testing.T) {
	data := []int32{7, 8}
	shape := []int64{3, 2}
	strides := []int64{0, 1}
	ra := RectArray{Data: unsafe.Pointer(&data[0]), Shape: &shape[0], Strides: &strides[0]}

	out, _, err := ReadArray[int32](ra, 2)
	require.NoError(t, err)
	assert.Equal(t, []int32{7, 8, 7, 8, 7, 8}, out)
}

func TestReadArrayErrors(t *testing.T) {
	_, _, err := ReadArray[float64](RectArray{}, -1)
	assert.Error(t, err)

	_, _, err = ReadArray[float64](RectArray{}, 1)
	assert.ErrorContains(t, err, "no shape")

	shape := []int64{2}
	strides := []int64{1}
	_, _, err = ReadArray[float64](RectArray{Shape: &shape[0], Strides: &strides[0]}, 1)
	assert.ErrorContains(t, err, "no data")

	neg := []int64{-2}
	_, _, err = ReadArray[float64](RectArray{Shape: &neg[0], Strides: &strides[0]}, 1)
	assert.ErrorContains(t, err, "negative")

	empty := []int64{0}
	out, dims, err := ReadArray[float64](RectArray{Shape: &empty[0], Strides: &strides[0]}, 1)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, []int{0}, dims)
}

func TestScalarTypeOf(t *testing.T) {
	type celsius float32
	type id uint64

	assert.Equal(t, Int64, ScalarTypeOf[int64]())
	assert.Equal(t, Int32, ScalarTypeOf[int32]())
	assert.Equal(t, Uint8, ScalarTypeOf[uint8]())
	assert.Equal(t, Float64, ScalarTypeOf[float64]())
	assert.Equal(t, Float32, ScalarTypeOf[float32]())
	assert.Equal(t, Uint32, ScalarTypeOf[uint32]())
	assert.Equal(t, Uint64, ScalarTypeOf[uint64]())
	assert.Equal(t, Float32, ScalarTypeOf[celsius]())
	assert.Equal(t, Uint64, ScalarTypeOf[id]())
}
