package hsds

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/rkm/go-hsds/internal/dtype"
)

// MemTransport is an in-memory Transport: a row-major element store per
// dataset with real selection semantics. It backs the package tests and
// works as a scratch backend.
type MemTransport struct {
	mu       sync.Mutex
	datasets map[string]*memDataset
}

type memDataset struct {
	meta  DatasetMeta
	typ   *dtype.Type
	dims  []int    // current extents, mutable via Resize
	elems [][]byte // row-major encoded elements
	fill  []byte   // encoded zero element
}

// NewMemTransport returns an empty in-memory transport.
func NewMemTransport() *MemTransport {
	return &MemTransport{datasets: make(map[string]*memDataset)}
}

// CreateDataset registers a dataset, zero-filled. meta.ID and meta.Kind
// are overwritten.
func (m *MemTransport) CreateDataset(id string, meta DatasetMeta) error {
	t, err := dtype.DecodeJSON(meta.Type)
	if err != nil {
		return err
	}
	gt, err := dtype.GoType(t)
	if err != nil {
		return err
	}
	fill, err := dtype.Marshal(t, newZero(gt))
	if err != nil {
		return fmt.Errorf("encoding fill value: %w", err)
	}

	meta.ID = id
	meta.Kind = KindDataset

	ds := &memDataset{
		meta: meta,
		typ:  t,
		dims: append([]int(nil), meta.Shape.Dims...),
		fill: fill,
	}
	n := meta.Shape.NumElements()
	ds.elems = make([][]byte, n)
	for i := range ds.elems {
		ds.elems[i] = fill
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[id] = ds
	return nil
}

func (m *MemTransport) get(id string) (*memDataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, ok := m.datasets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return ds, nil
}

// Describe implements Transport.
func (m *MemTransport) Describe(id string) (*DatasetMeta, error) {
	ds, err := m.get(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	meta := ds.meta
	meta.Shape.Dims = append([]int(nil), ds.dims...)
	return &meta, nil
}

// Fetch implements Transport: gather the selected elements, then apply
// the dataset's filter pipeline the way a server would store chunks.
func (m *MemTransport) Fetch(id, query string) ([]byte, error) {
	ds, err := m.get(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := ds.indexes(query)
	if err != nil {
		return nil, err
	}
	var out []byte
	for _, i := range idx {
		out = append(out, ds.elems[i]...)
	}
	return ds.meta.Filters.Encode(out, ds.filterItemSize())
}

// Store implements Transport.
func (m *MemTransport) Store(id, query string, body []byte) error {
	ds, err := m.get(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	body, err = ds.meta.Filters.Decode(body, ds.filterItemSize())
	if err != nil {
		return err
	}
	idx, err := ds.indexes(query)
	if err != nil {
		return err
	}
	cells, err := ds.split(body, len(idx))
	if err != nil {
		return err
	}
	for j, i := range idx {
		ds.elems[i] = cells[j]
	}
	return nil
}

// FetchPoints implements Transport.
func (m *MemTransport) FetchPoints(id string, points [][]int) ([]byte, error) {
	ds, err := m.get(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []byte
	for _, pt := range points {
		i, err := ds.linear(pt)
		if err != nil {
			return nil, err
		}
		out = append(out, ds.elems[i]...)
	}
	return ds.meta.Filters.Encode(out, ds.filterItemSize())
}

// StorePoints implements Transport.
func (m *MemTransport) StorePoints(id string, points [][]int, body []byte) error {
	ds, err := m.get(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	body, err = ds.meta.Filters.Decode(body, ds.filterItemSize())
	if err != nil {
		return err
	}
	cells, err := ds.split(body, len(points))
	if err != nil {
		return err
	}
	for j, pt := range points {
		i, err := ds.linear(pt)
		if err != nil {
			return err
		}
		ds.elems[i] = cells[j]
	}
	return nil
}

// Resize implements Transport: elements shared by the old and new extents
// keep their values, grown cells take the fill value.
func (m *MemTransport) Resize(id string, dims []int) error {
	ds, err := m.get(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(dims) != len(ds.dims) {
		return fmt.Errorf("%w: %d extents for rank %d", ErrShapeMismatch, len(dims), len(ds.dims))
	}

	total := 1
	for _, d := range dims {
		total *= d
	}
	next := make([][]byte, total)
	for i := range next {
		next[i] = ds.fill
	}

	// Re-home the overlap by coordinate.
	coord := make([]int, len(dims))
	for i := range next {
		inside := true
		for axis, c := range coord {
			if c >= ds.dims[axis] {
				inside = false
				break
			}
		}
		if inside {
			old, err := ds.linear(coord)
			if err == nil {
				next[i] = ds.elems[old]
			}
		}
		for axis := len(coord) - 1; axis >= 0; axis-- {
			coord[axis]++
			if coord[axis] < dims[axis] {
				break
			}
			coord[axis] = 0
		}
	}

	ds.dims = append([]int(nil), dims...)
	ds.elems = next
	return nil
}

func (ds *memDataset) filterItemSize() int {
	if s := ds.typ.ItemSize(); s != dtype.SizeVariable {
		return s
	}
	return 1
}

// linear maps a coordinate to its row-major element index.
func (ds *memDataset) linear(pt []int) (int, error) {
	if len(pt) != len(ds.dims) {
		return 0, fmt.Errorf("%w: point %v for rank %d", ErrInvalidSelection, pt, len(ds.dims))
	}
	idx := 0
	for axis, c := range pt {
		if c < 0 || c >= ds.dims[axis] {
			return 0, fmt.Errorf("%w: point %v axis %d", ErrOutOfRange, pt, axis)
		}
		idx = idx*ds.dims[axis] + c
	}
	return idx, nil
}

// indexes resolves a select-parameter query to row-major element indexes
// in result order. An empty query selects everything.
func (ds *memDataset) indexes(query string) ([]int, error) {
	rank := len(ds.dims)
	axes := make([][]int, rank)

	if query == "" {
		if rank == 0 {
			return []int{0}, nil
		}
		for i, d := range ds.dims {
			axes[i] = indexRange(0, d, 1)
		}
	} else {
		terms, err := splitQuery(query)
		if err != nil {
			return nil, err
		}
		if len(terms) != rank {
			return nil, fmt.Errorf("%w: %d terms for rank %d", ErrInvalidSelection, len(terms), rank)
		}
		for i, term := range terms {
			axes[i], err = parseQueryTerm(term, ds.dims[i])
			if err != nil {
				return nil, err
			}
		}
	}

	total := 1
	for _, a := range axes {
		total *= len(a)
	}
	out := make([]int, 0, total)
	if total == 0 {
		return out, nil
	}

	coord := make([]int, rank)
	for n := 0; n < total; n++ {
		idx := 0
		for axis := 0; axis < rank; axis++ {
			idx = idx*ds.dims[axis] + axes[axis][coord[axis]]
		}
		out = append(out, idx)
		for axis := rank - 1; axis >= 0; axis-- {
			coord[axis]++
			if coord[axis] < len(axes[axis]) {
				break
			}
			coord[axis] = 0
		}
	}
	return out, nil
}

// split cuts a body into n per-element byte strings by round-tripping
// through the dataset's type.
func (ds *memDataset) split(body []byte, n int) ([][]byte, error) {
	size := ds.typ.ItemSize()
	if size != dtype.SizeVariable {
		if len(body) != n*size {
			return nil, fmt.Errorf("%w: body has %d bytes, selection needs %d",
				ErrShapeMismatch, len(body), n*size)
		}
		out := make([][]byte, n)
		for i := range out {
			cell := make([]byte, size)
			copy(cell, body[i*size:])
			out[i] = cell
		}
		return out, nil
	}

	var values []any
	if err := dtype.Convert(ds.typ, body, uint64(n), &values); err != nil {
		return nil, err
	}
	out := make([][]byte, n)
	for i, v := range values {
		cell, err := dtype.MarshalScalar(ds.typ, v)
		if err != nil {
			return nil, err
		}
		out[i] = cell
	}
	return out, nil
}

// splitQuery strips the outer brackets and splits on top-level commas.
func splitQuery(q string) ([]string, error) {
	if len(q) < 2 || q[0] != '[' || q[len(q)-1] != ']' {
		return nil, fmt.Errorf("%w: malformed query %q", ErrInvalidSelection, q)
	}
	body := q[1 : len(q)-1]
	if body == "" {
		return nil, nil
	}

	var terms []string
	depth := 0
	start := 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				terms = append(terms, body[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: unbalanced brackets in %q", ErrInvalidSelection, q)
	}
	terms = append(terms, body[start:])
	return terms, nil
}

// parseQueryTerm resolves one axis term: a bare index, start:stop or
// start:stop:step range, or a [i0,i1,...] index list.
func parseQueryTerm(term string, extent int) ([]int, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: empty query term", ErrInvalidSelection)
	}

	if term[0] == '[' {
		if term[len(term)-1] != ']' {
			return nil, fmt.Errorf("%w: malformed list %q", ErrInvalidSelection, term)
		}
		inner := term[1 : len(term)-1]
		if inner == "" {
			return []int{}, nil
		}
		parts := strings.Split(inner, ",")
		out := make([]int, len(parts))
		for i, p := range parts {
			v, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || v < 0 || v >= extent {
				return nil, fmt.Errorf("%w: list index %q", ErrInvalidSelection, p)
			}
			out[i] = v
		}
		return out, nil
	}

	parts := strings.Split(term, ":")
	switch len(parts) {
	case 1:
		v, err := strconv.Atoi(parts[0])
		if err != nil || v < 0 || v >= extent {
			return nil, fmt.Errorf("%w: index %q", ErrInvalidSelection, term)
		}
		return []int{v}, nil
	case 2, 3:
		start, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("%w: range %q", ErrInvalidSelection, term)
		}
		stop, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%w: range %q", ErrInvalidSelection, term)
		}
		step := 1
		if len(parts) == 3 {
			step, err = strconv.Atoi(parts[2])
			if err != nil || step < 1 {
				return nil, fmt.Errorf("%w: step in %q", ErrInvalidSelection, term)
			}
		}
		if start < 0 || stop > extent || stop < start {
			return nil, fmt.Errorf("%w: range %q (extent %d)", ErrOutOfRange, term, extent)
		}
		return indexRange(start, stop, step), nil
	default:
		return nil, fmt.Errorf("%w: malformed term %q", ErrInvalidSelection, term)
	}
}

// newZero returns the zero value of a Go type as an interface.
func newZero(t reflect.Type) any {
	return reflect.New(t).Elem().Interface()
}

func indexRange(start, stop, step int) []int {
	var out []int
	for i := start; i < stop; i += step {
		out = append(out, i)
	}
	if out == nil {
		out = []int{}
	}
	return out
}
