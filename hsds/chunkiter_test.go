package hsds

import (
	"errors"
	"reflect"
	"testing"
)

func collectPages(t *testing.T, it *ChunkIterator) [][]Span {
	t.Helper()
	var pages [][]Span
	for {
		spans, ok := it.Next()
		if !ok {
			return pages
		}
		pages = append(pages, spans)
	}
}

func TestChunkIteratorTiling1D(t *testing.T) {
	it, err := NewChunkIterator(SimpleShape(13), []int{4}, nil)
	if err != nil {
		t.Fatalf("NewChunkIterator failed: %v", err)
	}
	pages := collectPages(t, it)
	want := [][]Span{
		{{Start: 0, Stop: 4, Step: 1}},
		{{Start: 4, Stop: 8, Step: 1}},
		{{Start: 8, Stop: 12, Step: 1}},
		{{Start: 12, Stop: 13, Step: 1}},
	}
	if !reflect.DeepEqual(pages, want) {
		t.Errorf("expected pages %v, got %v", want, pages)
	}
}

func TestChunkIteratorOffsetSelection(t *testing.T) {
	// A selection starting mid-extent begins at its own starting chunk and
	// trims the first page to the selection edge.
	shape := SimpleShape(20)
	sel := mustSelect(t, shape, Range(5, 17))
	it, err := NewChunkIterator(shape, []int{4}, sel)
	if err != nil {
		t.Fatalf("NewChunkIterator failed: %v", err)
	}
	pages := collectPages(t, it)
	want := [][]Span{
		{{Start: 5, Stop: 8, Step: 1}},
		{{Start: 8, Stop: 12, Step: 1}},
		{{Start: 12, Stop: 16, Step: 1}},
		{{Start: 16, Stop: 17, Step: 1}},
	}
	if !reflect.DeepEqual(pages, want) {
		t.Errorf("expected pages %v, got %v", want, pages)
	}
}

func TestChunkIteratorTiling2D(t *testing.T) {
	// Inner axes reset to the selection's starting chunk on carry, so a
	// 2-D selection beginning mid-extent revisits the right columns for
	// every row band.
	shape := SimpleShape(8, 8)
	sel := mustSelect(t, shape, Range(2, 8), Range(3, 8))
	it, err := NewChunkIterator(shape, []int{4, 4}, sel)
	if err != nil {
		t.Fatalf("NewChunkIterator failed: %v", err)
	}
	pages := collectPages(t, it)
	want := [][]Span{
		{{2, 4, 1}, {3, 4, 1}},
		{{2, 4, 1}, {4, 8, 1}},
		{{4, 8, 1}, {3, 4, 1}},
		{{4, 8, 1}, {4, 8, 1}},
	}
	if !reflect.DeepEqual(pages, want) {
		t.Errorf("expected pages %v, got %v", want, pages)
	}

	total := 0
	for _, page := range pages {
		n := 1
		for _, s := range page {
			n *= s.Count()
		}
		total += n
	}
	if total != sel.NSelect() {
		t.Errorf("pages cover %d elements, selection has %d", total, sel.NSelect())
	}
}

func TestChunkIteratorStride(t *testing.T) {
	// A stride wider than the chunk skips chunks with no selected element.
	shape := SimpleShape(20)
	sel := mustSelect(t, shape, RangeStep(0, 20, 6))
	it, err := NewChunkIterator(shape, []int{4}, sel)
	if err != nil {
		t.Fatalf("NewChunkIterator failed: %v", err)
	}
	pages := collectPages(t, it)
	want := [][]Span{
		{{Start: 0, Stop: 4, Step: 6}},
		{{Start: 6, Stop: 8, Step: 6}},
		{{Start: 12, Stop: 16, Step: 6}},
		{{Start: 18, Stop: 19, Step: 6}},
	}
	if !reflect.DeepEqual(pages, want) {
		t.Errorf("expected pages %v, got %v", want, pages)
	}
}

func TestChunkIteratorEmptyAndErrors(t *testing.T) {
	shape := SimpleShape(10)

	empty := mustSelect(t, shape, Range(3, 3))
	it, err := NewChunkIterator(shape, []int{4}, empty)
	if err != nil {
		t.Fatalf("NewChunkIterator failed: %v", err)
	}
	if _, ok := it.Next(); ok {
		t.Error("empty selection yielded a page")
	}

	if _, err := NewChunkIterator(shape, nil, nil); !errors.Is(err, ErrUnsupported) {
		t.Errorf("unchunked dataset: expected ErrUnsupported, got %v", err)
	}
	if _, err := NewChunkIterator(shape, []int{0}, nil); !errors.Is(err, ErrUnsupported) {
		t.Errorf("zero chunk extent: expected ErrUnsupported, got %v", err)
	}
	if _, err := NewChunkIterator(ScalarShape(), nil, nil); !errors.Is(err, ErrUnsupported) {
		t.Errorf("scalar dataspace: expected ErrUnsupported, got %v", err)
	}

	fancy := mustSelect(t, shape, []int{1, 3})
	if _, err := NewChunkIterator(shape, []int{4}, fancy); !errors.Is(err, ErrUnsupported) {
		t.Errorf("fancy selection: expected ErrUnsupported, got %v", err)
	}
}

func TestSpanCount(t *testing.T) {
	tests := []struct {
		span Span
		want int
	}{
		{Span{0, 4, 1}, 4},
		{Span{4, 8, 1}, 4},
		{Span{0, 7, 3}, 3},
		{Span{6, 8, 6}, 1},
		{Span{3, 3, 1}, 0},
	}
	for _, tt := range tests {
		if got := tt.span.Count(); got != tt.want {
			t.Errorf("Count(%+v): expected %d, got %d", tt.span, tt.want, got)
		}
	}
}
