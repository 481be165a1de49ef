package hsds

import (
	"fmt"
	"strconv"
	"strings"
)

// SelectionKind identifies the selection family.
type SelectionKind uint8

const (
	// KindSimple selects a regular hyperslab: one start/count/step range
	// per axis.
	KindSimple SelectionKind = iota
	// KindFancy mixes index lists with ranges.
	KindFancy
	// KindPoints selects explicit coordinates.
	KindPoints
	// KindScalar selects the single element of a rank-0 dataspace.
	KindScalar
)

// Slice is one axis range of an index expression. Nil fields take their
// defaults: start 0, stop the axis extent, step 1. Negative start and stop
// resolve against the extent.
type Slice struct {
	Start *int
	Stop  *int
	Step  *int
}

// Range returns the slice [start:stop].
func Range(start, stop int) Slice {
	return Slice{Start: &start, Stop: &stop}
}

// RangeStep returns the slice [start:stop:step].
func RangeStep(start, stop, step int) Slice {
	return Slice{Start: &start, Stop: &stop, Step: &step}
}

// From returns the slice [start:].
func From(start int) Slice {
	return Slice{Start: &start}
}

// ellipsis is the type of the Ellipsis marker.
type ellipsis struct{}

// Ellipsis expands to full-range slices for the axes an index expression
// leaves unnamed. At most one may appear per expression.
var Ellipsis = ellipsis{}

// Selection is the common interface of the selection families produced by
// Select.
type Selection interface {
	// Kind reports the selection family.
	Kind() SelectionKind
	// Shape returns the dataspace the selection was built against.
	Shape() Shape
	// MShape returns the shape of the selected result. ok is false only
	// for the bare-scalar selection, whose result has no array form at
	// all; a rank-0 array result is ([]int{}, true).
	MShape() ([]int, bool)
	// NSelect returns the number of selected elements.
	NSelect() int
	// QueryParam renders the selection in the server's select-parameter
	// form, or ErrUnsupported for families with no query form.
	QueryParam() (string, error)
	// Broadcast reports whether a source of the given shape can stretch
	// to the selection's result shape. Only simple selections broadcast;
	// the other families require an exact match, checked by the caller.
	Broadcast(source []int) error
}

// Select classifies an index expression against a dataspace.
//
// Terms may be ints (selecting one position and dropping the axis), Slice
// values, the Ellipsis marker, []int index lists, or []bool masks. With no
// terms the whole dataspace is selected. A [][]int argument on its own
// selects explicit coordinates.
func Select(shape Shape, args ...any) (Selection, error) {
	switch shape.Class {
	case ShapeNull:
		return nil, fmt.Errorf("%w: null dataspace has no elements", ErrInvalidSelection)
	case ShapeScalar:
		return selectScalar(shape, args)
	}

	// Whole-dataspace coordinate and mask forms.
	if len(args) == 1 {
		if pts, ok := args[0].([][]int); ok {
			return SelectPoints(shape, pts)
		}
		if mask, ok := args[0].([]bool); ok && shape.Rank() > 1 {
			return selectMask(shape, mask)
		}
	}

	terms, err := expandEllipsis(shape, args)
	if err != nil {
		return nil, err
	}

	fancy := false
	for _, term := range terms {
		switch term.(type) {
		case []int, []bool:
			fancy = true
		}
	}
	if fancy {
		return selectFancy(shape, terms)
	}
	return selectSimple(shape, terms)
}

// SelectAll selects every element of the dataspace.
func SelectAll(shape Shape) (Selection, error) {
	return Select(shape)
}

// SelectPoints selects explicit coordinates. Every point must carry one
// index per axis, within the extents.
func SelectPoints(shape Shape, points [][]int) (Selection, error) {
	if shape.Class != ShapeSimple {
		return nil, fmt.Errorf("%w: point selection requires a simple dataspace", ErrInvalidSelection)
	}
	rank := shape.Rank()
	out := make([][]int, len(points))
	for i, pt := range points {
		if len(pt) != rank {
			return nil, fmt.Errorf("%w: point %d has %d coordinates, rank is %d",
				ErrInvalidSelection, i, len(pt), rank)
		}
		resolved := make([]int, rank)
		for axis, c := range pt {
			if c < 0 {
				c += shape.Dims[axis]
			}
			if c < 0 || c >= shape.Dims[axis] {
				return nil, fmt.Errorf("%w: point %d axis %d index %d (extent %d)",
					ErrOutOfRange, i, axis, pt[axis], shape.Dims[axis])
			}
			resolved[axis] = c
		}
		out[i] = resolved
	}
	return &PointSelection{shape: shape, points: out}, nil
}

func selectScalar(shape Shape, args []any) (Selection, error) {
	switch {
	case len(args) == 0:
		return &ScalarSelection{shape: shape}, nil
	case len(args) == 1:
		if _, ok := args[0].(ellipsis); ok {
			return &ScalarSelection{shape: shape, keepDims: true}, nil
		}
	}
	return nil, fmt.Errorf("%w: scalar dataspace accepts only an empty or ellipsis selection",
		ErrInvalidSelection)
}

// selectMask converts a row-major full-dataspace mask to coordinates.
func selectMask(shape Shape, mask []bool) (Selection, error) {
	if len(mask) != shape.NumElements() {
		return nil, fmt.Errorf("%w: mask has %d elements, dataspace has %d",
			ErrInvalidSelection, len(mask), shape.NumElements())
	}
	var points [][]int
	coord := make([]int, shape.Rank())
	for _, m := range mask {
		if m {
			pt := make([]int, len(coord))
			copy(pt, coord)
			points = append(points, pt)
		}
		for axis := len(coord) - 1; axis >= 0; axis-- {
			coord[axis]++
			if coord[axis] < shape.Dims[axis] {
				break
			}
			coord[axis] = 0
		}
	}
	return &PointSelection{shape: shape, points: points}, nil
}

// expandEllipsis replaces at most one Ellipsis with full-range slices so
// the expression names every axis.
func expandEllipsis(shape Shape, args []any) ([]any, error) {
	rank := shape.Rank()
	at := -1
	for i, a := range args {
		if _, ok := a.(ellipsis); ok {
			if at >= 0 {
				return nil, fmt.Errorf("%w: more than one ellipsis", ErrInvalidSelection)
			}
			at = i
		}
	}

	named := len(args)
	if at >= 0 {
		named--
	}
	if named > rank {
		return nil, fmt.Errorf("%w: %d terms for rank %d", ErrInvalidSelection, named, rank)
	}

	out := make([]any, 0, rank)
	for i, a := range args {
		if i == at {
			for j := 0; j < rank-named; j++ {
				out = append(out, Slice{})
			}
			continue
		}
		out = append(out, a)
	}
	for len(out) < rank {
		out = append(out, Slice{})
	}
	return out, nil
}

// axisRange is one translated axis of a simple or fancy selection.
type axisRange struct {
	start  int
	count  int
	step   int
	scalar bool  // selected by a bare int; dropped from the result shape
	list   []int // fancy index list, nil for range axes
}

func (r axisRange) stop() int {
	if r.count == 0 {
		return r.start
	}
	return r.start + (r.count-1)*r.step + 1
}

// translateTerm resolves one int or Slice term against an axis extent.
func translateTerm(term any, extent int) (axisRange, error) {
	if i, ok := intValue(term); ok {
		if i < 0 {
			i += extent
		}
		if i < 0 || i >= extent {
			return axisRange{}, fmt.Errorf("%w: index %v (extent %d)", ErrOutOfRange, term, extent)
		}
		return axisRange{start: i, count: 1, step: 1, scalar: true}, nil
	}

	s, ok := term.(Slice)
	if !ok {
		return axisRange{}, fmt.Errorf("%w: unsupported term %T", ErrInvalidSelection, term)
	}

	step := 1
	if s.Step != nil {
		step = *s.Step
	}
	if step < 1 {
		return axisRange{}, fmt.Errorf("%w: step %d", ErrInvalidSelection, step)
	}

	start := 0
	if s.Start != nil {
		start = *s.Start
		if start < 0 {
			start += extent
		}
	}
	stop := extent
	if s.Stop != nil {
		stop = *s.Stop
		if stop < 0 {
			stop += extent
		}
	}
	start = clamp(start, 0, extent)
	stop = clamp(stop, 0, extent)

	// An inverted range is empty, not an error.
	count := 0
	if stop > start {
		count = 1 + (stop-start-1)/step
	}
	return axisRange{start: start, count: count, step: step}, nil
}

// translateList resolves a fancy index list: in-bounds after negative
// resolution, strictly increasing, no duplicates.
func translateList(list []int, extent int) (axisRange, error) {
	resolved := make([]int, len(list))
	for i, v := range list {
		if v < 0 {
			v += extent
		}
		if v < 0 || v >= extent {
			return axisRange{}, fmt.Errorf("%w: list index %d (extent %d)", ErrOutOfRange, list[i], extent)
		}
		if i > 0 && v <= resolved[i-1] {
			return axisRange{}, fmt.Errorf("%w: index list must be strictly increasing", ErrInvalidSelection)
		}
		resolved[i] = v
	}
	return axisRange{count: len(resolved), step: 1, list: resolved}, nil
}

func selectSimple(shape Shape, terms []any) (Selection, error) {
	axes := make([]axisRange, len(terms))
	for i, term := range terms {
		r, err := translateTerm(term, shape.Dims[i])
		if err != nil {
			return nil, fmt.Errorf("axis %d: %w", i, err)
		}
		axes[i] = r
	}
	return &SimpleSelection{shape: shape, axes: axes}, nil
}

func selectFancy(shape Shape, terms []any) (Selection, error) {
	axes := make([]axisRange, len(terms))
	for i, term := range terms {
		extent := shape.Dims[i]
		var r axisRange
		var err error
		switch t := term.(type) {
		case []int:
			r, err = translateList(t, extent)
		case []bool:
			if len(t) != extent {
				err = fmt.Errorf("%w: mask has %d elements, axis extent is %d",
					ErrInvalidSelection, len(t), extent)
				break
			}
			var idx []int
			for j, m := range t {
				if m {
					idx = append(idx, j)
				}
			}
			r = axisRange{count: len(idx), step: 1, list: idx}
			if idx == nil {
				r.list = []int{}
			}
		default:
			r, err = translateTerm(term, extent)
		}
		if err != nil {
			return nil, fmt.Errorf("axis %d: %w", i, err)
		}
		axes[i] = r
	}
	return &FancySelection{shape: shape, axes: axes}, nil
}

// SimpleSelection is a regular hyperslab.
type SimpleSelection struct {
	shape Shape
	axes  []axisRange
}

func (s *SimpleSelection) Kind() SelectionKind { return KindSimple }
func (s *SimpleSelection) Shape() Shape        { return s.shape }

func (s *SimpleSelection) MShape() ([]int, bool) {
	dims := []int{}
	for _, r := range s.axes {
		if !r.scalar {
			dims = append(dims, r.count)
		}
	}
	return dims, true
}

func (s *SimpleSelection) NSelect() int {
	n := 1
	for _, r := range s.axes {
		n *= r.count
	}
	return n
}

// QueryParam renders the hyperslab as [start:stop,...], with :step when
// the step is not 1 and bare indices for int-selected axes.
func (s *SimpleSelection) QueryParam() (string, error) {
	var b strings.Builder
	b.WriteByte('[')
	for i, r := range s.axes {
		if i > 0 {
			b.WriteByte(',')
		}
		writeAxisRange(&b, r)
	}
	b.WriteByte(']')
	return b.String(), nil
}

func writeAxisRange(b *strings.Builder, r axisRange) {
	if r.scalar {
		b.WriteString(strconv.Itoa(r.start))
		return
	}
	b.WriteString(strconv.Itoa(r.start))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(r.stop()))
	if r.step != 1 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(r.step))
	}
}

// Broadcast checks trailing-aligned compatibility of a source shape with
// the result shape: axes must match or be 1 in the source.
func (s *SimpleSelection) Broadcast(source []int) error {
	mshape, _ := s.MShape()
	if len(source) > len(mshape) {
		return fmt.Errorf("%w: source rank %d exceeds selection rank %d",
			ErrShapeMismatch, len(source), len(mshape))
	}
	for i := 1; i <= len(source); i++ {
		src := source[len(source)-i]
		dst := mshape[len(mshape)-i]
		if src != dst && src != 1 {
			return fmt.Errorf("%w: source %v does not broadcast to %v",
				ErrShapeMismatch, source, mshape)
		}
	}
	return nil
}

// FancySelection mixes index lists with ranges.
type FancySelection struct {
	shape Shape
	axes  []axisRange
}

func (s *FancySelection) Kind() SelectionKind { return KindFancy }
func (s *FancySelection) Shape() Shape        { return s.shape }

func (s *FancySelection) MShape() ([]int, bool) {
	dims := []int{}
	for _, r := range s.axes {
		if !r.scalar {
			dims = append(dims, r.count)
		}
	}
	return dims, true
}

func (s *FancySelection) NSelect() int {
	n := 1
	for _, r := range s.axes {
		n *= r.count
	}
	return n
}

// QueryParam renders index-list axes as [i0,i1,...] and range axes like a
// simple hyperslab.
func (s *FancySelection) QueryParam() (string, error) {
	var b strings.Builder
	b.WriteByte('[')
	for i, r := range s.axes {
		if i > 0 {
			b.WriteByte(',')
		}
		if r.list != nil {
			b.WriteByte('[')
			for j, v := range r.list {
				if j > 0 {
					b.WriteByte(',')
				}
				b.WriteString(strconv.Itoa(v))
			}
			b.WriteByte(']')
			continue
		}
		writeAxisRange(&b, r)
	}
	b.WriteByte(']')
	return b.String(), nil
}

func (s *FancySelection) Broadcast(source []int) error {
	return fmt.Errorf("%w: fancy selections do not broadcast", ErrUnsupported)
}

// PointSelection selects explicit coordinates.
type PointSelection struct {
	shape  Shape
	points [][]int
}

func (s *PointSelection) Kind() SelectionKind { return KindPoints }
func (s *PointSelection) Shape() Shape        { return s.shape }

func (s *PointSelection) MShape() ([]int, bool) {
	return []int{len(s.points)}, true
}

func (s *PointSelection) NSelect() int { return len(s.points) }

// Points returns the selected coordinates.
func (s *PointSelection) Points() [][]int { return s.points }

func (s *PointSelection) QueryParam() (string, error) {
	return "", fmt.Errorf("%w: point selections have no query form", ErrUnsupported)
}

func (s *PointSelection) Broadcast(source []int) error {
	return fmt.Errorf("%w: point selections do not broadcast", ErrUnsupported)
}

// ScalarSelection selects the single element of a rank-0 dataspace. The
// empty expression yields a bare value; the ellipsis form keeps a rank-0
// array result.
type ScalarSelection struct {
	shape    Shape
	keepDims bool
}

func (s *ScalarSelection) Kind() SelectionKind { return KindScalar }
func (s *ScalarSelection) Shape() Shape        { return s.shape }

func (s *ScalarSelection) MShape() ([]int, bool) {
	if s.keepDims {
		return []int{}, true
	}
	return nil, false
}

func (s *ScalarSelection) NSelect() int { return 1 }

func (s *ScalarSelection) QueryParam() (string, error) {
	return "", fmt.Errorf("%w: rank-0 selections have no query form", ErrUnsupported)
}

func (s *ScalarSelection) Broadcast(source []int) error {
	if len(source) == 0 {
		return nil
	}
	return fmt.Errorf("%w: source %v does not broadcast to a scalar", ErrShapeMismatch, source)
}

// intValue extracts an int from the integer kinds an index expression may
// carry.
func intValue(v any) (int, bool) {
	switch i := v.(type) {
	case int:
		return i, true
	case int8:
		return int(i), true
	case int16:
		return int(i), true
	case int32:
		return int(i), true
	case int64:
		return int(i), true
	case uint8:
		return int(i), true
	case uint16:
		return int(i), true
	case uint32:
		return int(i), true
	case uint64:
		return int(i), true
	}
	return 0, false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
