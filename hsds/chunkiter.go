package hsds

import "fmt"

// Span is one axis range of a chunk page: the half-open interval
// [Start,Stop) walked with Step.
type Span struct {
	Start int
	Stop  int
	Step  int
}

// Count returns the number of selected positions in the span.
func (s Span) Count() int {
	if s.Stop <= s.Start {
		return 0
	}
	return 1 + (s.Stop-s.Start-1)/s.Step
}

// ChunkIterator walks a simple selection one storage chunk at a time,
// yielding per-axis spans trimmed to the chunk boundaries and the
// selection. Pages come out in row-major order, last axis fastest, and
// tile the selection exactly. The iterator is a one-shot forward cursor;
// construct a new one to iterate again.
type ChunkIterator struct {
	layout []int
	axes   []axisRange
	cursor []int // per-axis chunk index
	first  []int // starting chunk index, the reset point on carry
	done   bool
}

// NewChunkIterator builds an iterator over sel, or over the whole
// dataspace when sel is nil. The dataset must be chunked: layout must
// name one positive chunk extent per axis. Only simple selections are
// iterable.
func NewChunkIterator(shape Shape, layout []int, sel Selection) (*ChunkIterator, error) {
	if shape.Class != ShapeSimple {
		return nil, fmt.Errorf("%w: chunk iteration requires a simple dataspace", ErrUnsupported)
	}
	rank := shape.Rank()
	if len(layout) != rank {
		return nil, fmt.Errorf("%w: dataset is not chunked", ErrUnsupported)
	}
	for _, c := range layout {
		if c < 1 {
			return nil, fmt.Errorf("%w: invalid chunk extent %d", ErrUnsupported, c)
		}
	}

	if sel == nil {
		s, err := SelectAll(shape)
		if err != nil {
			return nil, err
		}
		sel = s
	}
	simple, ok := sel.(*SimpleSelection)
	if !ok {
		return nil, fmt.Errorf("%w: only simple selections iterate by chunk", ErrUnsupported)
	}

	it := &ChunkIterator{
		layout: layout,
		axes:   simple.axes,
		cursor: make([]int, rank),
		first:  make([]int, rank),
	}
	for i, r := range it.axes {
		if r.count == 0 {
			it.done = true
		}
		it.cursor[i] = r.start / layout[i]
		it.first[i] = it.cursor[i]
	}
	if rank == 0 {
		it.done = true
	}
	return it, nil
}

// Next returns the spans of the next chunk page, or ok=false when the
// selection is exhausted. Chunks holding no selected element (a stride
// wider than the chunk can skip whole chunks) are passed over.
func (it *ChunkIterator) Next() ([]Span, bool) {
	for {
		if it.done {
			return nil, false
		}

		spans := make([]Span, len(it.cursor))
		empty := false
		for i, r := range it.axes {
			c := it.layout[i]
			lo := it.cursor[i] * c
			hi := lo + c

			start := r.start
			if lo > start {
				// First selected position at or after the chunk edge.
				start = r.start + (lo-r.start+r.step-1)/r.step*r.step
			}
			stop := r.stop()
			if hi < stop {
				stop = hi
			}
			if start >= stop {
				empty = true
			}
			spans[i] = Span{Start: start, Stop: stop, Step: r.step}
		}

		it.advance()
		if empty {
			continue
		}
		return spans, true
	}
}

// advance moves the cursor to the next chunk in row-major order. An
// exhausted axis resets to its starting chunk index, not chunk zero, so
// selections that begin mid-extent tile correctly.
func (it *ChunkIterator) advance() {
	for axis := len(it.cursor) - 1; axis >= 0; axis-- {
		it.cursor[axis]++
		if it.cursor[axis]*it.layout[axis] < it.axes[axis].stop() {
			return
		}
		it.cursor[axis] = it.first[axis]
	}
	it.done = true
}
