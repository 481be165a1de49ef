package hsds

import (
	"encoding/json"
	"fmt"
)

// ShapeClass identifies the dataspace kind.
type ShapeClass uint8

const (
	// ShapeSimple is an N-dimensional dataspace with explicit extents.
	ShapeSimple ShapeClass = iota
	// ShapeScalar is a rank-0 dataspace holding a single element.
	ShapeScalar
	// ShapeNull is a dataspace with no elements at all.
	ShapeNull
)

// Unlimited marks a maximum extent with no upper bound.
const Unlimited = -1

// Shape describes a dataspace: its class, current extents, and maximum
// extents. Dims never contains Unlimited; MaxDims may. A nil MaxDims means
// the maximum extents equal the current ones.
type Shape struct {
	Class   ShapeClass
	Dims    []int
	MaxDims []int
}

// SimpleShape returns a simple dataspace with the given extents and no
// room to grow.
func SimpleShape(dims ...int) Shape {
	return Shape{Class: ShapeSimple, Dims: dims}
}

// GrowableShape returns a simple dataspace with distinct current and
// maximum extents. Use Unlimited in maxDims for unbounded axes.
func GrowableShape(dims, maxDims []int) (Shape, error) {
	if len(maxDims) != len(dims) {
		return Shape{}, fmt.Errorf("%w: %d dims but %d maxdims", ErrShapeMismatch, len(dims), len(maxDims))
	}
	for i, m := range maxDims {
		if m != Unlimited && m < dims[i] {
			return Shape{}, fmt.Errorf("%w: maxdims[%d]=%d below extent %d", ErrShapeMismatch, i, m, dims[i])
		}
	}
	return Shape{Class: ShapeSimple, Dims: dims, MaxDims: maxDims}, nil
}

// ScalarShape returns the rank-0 dataspace.
func ScalarShape() Shape {
	return Shape{Class: ShapeScalar}
}

// NullShape returns the empty dataspace.
func NullShape() Shape {
	return Shape{Class: ShapeNull}
}

// Rank returns the number of dimensions. Scalar and null shapes are rank 0.
func (s Shape) Rank() int {
	if s.Class != ShapeSimple {
		return 0
	}
	return len(s.Dims)
}

// NumElements returns the total number of elements: the product of the
// extents for simple shapes, 1 for scalar, 0 for null.
func (s Shape) NumElements() int {
	switch s.Class {
	case ShapeScalar:
		return 1
	case ShapeNull:
		return 0
	}
	n := 1
	for _, d := range s.Dims {
		n *= d
	}
	return n
}

// IsScalar returns true for the rank-0 dataspace.
func (s Shape) IsScalar() bool {
	return s.Class == ShapeScalar
}

// IsNull returns true for the empty dataspace.
func (s Shape) IsNull() bool {
	return s.Class == ShapeNull
}

// Max returns the maximum extent of axis i, falling back to the current
// extent when no maximum was declared.
func (s Shape) Max(i int) int {
	if s.MaxDims == nil {
		return s.Dims[i]
	}
	return s.MaxDims[i]
}

// shapeBody is the JSON dataspace form. Unlimited maxdims travel as 0 on
// the wire.
type shapeBody struct {
	Class   string `json:"class"`
	Dims    []int  `json:"dims,omitempty"`
	MaxDims []int  `json:"maxdims,omitempty"`
}

const (
	classSimple = "H5S_SIMPLE"
	classScalar = "H5S_SCALAR"
	classNull   = "H5S_NULL"
)

// MarshalJSON renders the dataspace body form.
func (s Shape) MarshalJSON() ([]byte, error) {
	switch s.Class {
	case ShapeScalar:
		return json.Marshal(shapeBody{Class: classScalar})
	case ShapeNull:
		return json.Marshal(shapeBody{Class: classNull})
	}

	body := shapeBody{Class: classSimple, Dims: s.Dims}
	if s.MaxDims != nil {
		body.MaxDims = make([]int, len(s.MaxDims))
		for i, m := range s.MaxDims {
			if m == Unlimited {
				body.MaxDims[i] = 0
			} else {
				body.MaxDims[i] = m
			}
		}
	}
	return json.Marshal(body)
}

// UnmarshalJSON parses the dataspace body form.
func (s *Shape) UnmarshalJSON(raw []byte) error {
	var body shapeBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return err
	}

	switch body.Class {
	case classScalar:
		*s = ScalarShape()
		return nil
	case classNull:
		*s = NullShape()
		return nil
	case classSimple:
	default:
		return fmt.Errorf("unknown dataspace class %q", body.Class)
	}

	out := Shape{Class: ShapeSimple, Dims: body.Dims}
	if body.MaxDims != nil {
		if len(body.MaxDims) != len(body.Dims) {
			return fmt.Errorf("%w: %d dims but %d maxdims", ErrShapeMismatch, len(body.Dims), len(body.MaxDims))
		}
		out.MaxDims = make([]int, len(body.MaxDims))
		for i, m := range body.MaxDims {
			if m == 0 {
				out.MaxDims[i] = Unlimited
			} else {
				out.MaxDims[i] = m
			}
		}
	}
	*s = out
	return nil
}
