package hsds

import (
	"fmt"

	"github.com/ctessum/sparse"
)

// ReadDense reads the selected region into a dense N-dimensional array
// shaped like the selection's result. The dataset's element type must
// convert to float64.
func (d *Dataset) ReadDense(args ...any) (*sparse.DenseArray, error) {
	sel, err := Select(d.shape, args...)
	if err != nil {
		return nil, err
	}

	var values []float64
	if err := d.ReadSelection(sel, &values); err != nil {
		return nil, err
	}

	dims, ok := sel.MShape()
	if !ok {
		// A bare-scalar result still has one value; shape it rank 0.
		dims = []int{}
	}
	arr := sparse.ZerosDense(dims...)
	copy(arr.Elements, values)
	return arr, nil
}

// WriteDense writes a dense array over the selected region. The array's
// shape must match the selection's result shape, or broadcast to it for
// simple selections.
func (d *Dataset) WriteDense(arr *sparse.DenseArray, args ...any) error {
	if arr == nil {
		return fmt.Errorf("nil array")
	}
	sel, err := Select(d.shape, args...)
	if err != nil {
		return err
	}

	mshape, _ := sel.MShape()
	if equalDims(arr.Shape, mshape) {
		return d.WriteSelection(sel, arr.Elements)
	}
	if err := sel.Broadcast(arr.Shape); err != nil {
		return err
	}
	return d.WriteSelection(sel, broadcastElements(arr, mshape))
}

// broadcastElements stretches arr to the target shape: axes align from
// the right, size-1 source axes repeat.
func broadcastElements(arr *sparse.DenseArray, target []int) []float64 {
	total := 1
	for _, d := range target {
		total *= d
	}
	out := make([]float64, total)

	srcStrides := make([]int, len(arr.Shape))
	stride := 1
	for i := len(arr.Shape) - 1; i >= 0; i-- {
		srcStrides[i] = stride
		stride *= arr.Shape[i]
	}

	coord := make([]int, len(target))
	offset := len(target) - len(arr.Shape)
	for p := 0; p < total; p++ {
		src := 0
		for i, c := range coord {
			j := i - offset
			if j < 0 {
				continue
			}
			if arr.Shape[j] != 1 {
				src += c * srcStrides[j]
			}
		}
		out[p] = arr.Elements[src]

		for i := len(coord) - 1; i >= 0; i-- {
			coord[i]++
			if coord[i] < target[i] {
				break
			}
			coord[i] = 0
		}
	}
	return out
}

func equalDims(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
