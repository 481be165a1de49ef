package hsds

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/rkm/go-hsds/internal/dtype"
)

// Dataset is a handle to a server dataset. Metadata (shape, type, layout,
// filters) is resolved once when the handle is opened; the handle itself
// holds only a registry ID for its connection.
type Dataset struct {
	id      string
	conn    ConnID
	shape   Shape
	typ     *dtype.Type
	layout  []int
	filters FilterPipeline
}

// ID returns the dataset's server identifier.
func (d *Dataset) ID() string { return d.id }

// Shape returns the dataspace.
func (d *Dataset) Shape() Shape { return d.shape }

// Dims returns the current extents, nil for scalar and null dataspaces.
func (d *Dataset) Dims() []int { return d.shape.Dims }

// Rank returns the number of dimensions.
func (d *Dataset) Rank() int { return d.shape.Rank() }

// NumElements returns the total number of elements.
func (d *Dataset) NumElements() int { return d.shape.NumElements() }

// Len returns the extent of the first axis, 0 for rank-0 and null
// dataspaces.
func (d *Dataset) Len() int {
	if d.shape.Rank() == 0 {
		return 0
	}
	return d.shape.Dims[0]
}

// IsScalar returns true for rank-0 datasets.
func (d *Dataset) IsScalar() bool { return d.shape.IsScalar() }

// Chunks returns the chunk layout, nil when the dataset is not chunked.
func (d *Dataset) Chunks() []int { return d.layout }

// Filters returns the dataset's filter pipeline.
func (d *Dataset) Filters() FilterPipeline { return d.filters }

// GoType returns the Go type that corresponds to this dataset's element
// type.
func (d *Dataset) GoType() (reflect.Type, error) {
	return dtype.GoType(d.typ)
}

// TypeJSON renders the dataset's type descriptor.
func (d *Dataset) TypeJSON() ([]byte, error) {
	return dtype.EncodeJSON(d.typ)
}

// Select builds a selection against this dataset's shape.
func (d *Dataset) Select(args ...any) (Selection, error) {
	return Select(d.shape, args...)
}

// Read reads the selected region into dest, a pointer to a slice of a
// compatible Go type. With no selection terms the whole dataset is read.
// An empty selection leaves dest as an empty slice.
func (d *Dataset) Read(dest any, args ...any) error {
	sel, err := Select(d.shape, args...)
	if err != nil {
		return err
	}
	return d.ReadSelection(sel, dest)
}

// ReadSelection reads a previously built selection into dest.
func (d *Dataset) ReadSelection(sel Selection, dest any) error {
	if err := d.checkSelection(sel); err != nil {
		return err
	}
	transport, err := lookup(d.conn)
	if err != nil {
		return err
	}

	n := sel.NSelect()
	if n == 0 {
		return resetDest(dest)
	}

	raw, err := d.fetch(transport, sel, n)
	if err != nil {
		return err
	}
	return dtype.Convert(d.typ, raw, uint64(n), dest)
}

// fetch moves the selected bytes from the transport, chunk page by chunk
// page for pageable simple selections, in one request otherwise.
func (d *Dataset) fetch(transport Transport, sel Selection, n int) ([]byte, error) {
	if pts, ok := sel.(*PointSelection); ok {
		raw, err := transport.FetchPoints(d.id, pts.Points())
		if err != nil {
			return nil, fmt.Errorf("fetching points: %w", err)
		}
		return d.decodePage(raw)
	}

	if simple, ok := sel.(*SimpleSelection); ok && d.pageable() {
		return d.fetchPaged(transport, simple, n)
	}

	query := ""
	if sel.Kind() != KindScalar {
		q, err := sel.QueryParam()
		if err != nil {
			return nil, err
		}
		query = q
	}
	raw, err := transport.Fetch(d.id, query)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", query, err)
	}
	return d.decodePage(raw)
}

// pageable reports whether transfers can go chunk by chunk: the dataset
// must be chunked and the element size fixed, so page bytes can be placed
// positionally.
func (d *Dataset) pageable() bool {
	return len(d.layout) > 0 && len(d.layout) == d.shape.Rank() &&
		d.typ.ItemSize() != dtype.SizeVariable
}

func (d *Dataset) fetchPaged(transport Transport, sel *SimpleSelection, n int) ([]byte, error) {
	it, err := NewChunkIterator(d.shape, d.layout, sel)
	if err != nil {
		return nil, err
	}

	itemSize := d.typ.ItemSize()
	out := make([]byte, n*itemSize)
	for {
		spans, ok := it.Next()
		if !ok {
			return out, nil
		}
		page, err := transport.Fetch(d.id, spanQuery(spans))
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", spanQuery(spans), err)
		}
		page, err = d.decodePage(page)
		if err != nil {
			return nil, err
		}
		if err := scatterPage(out, page, sel.axes, spans, itemSize); err != nil {
			return nil, err
		}
	}
}

// decodePage runs fetched bytes backwards through the filter pipeline.
func (d *Dataset) decodePage(raw []byte) ([]byte, error) {
	if len(d.filters) == 0 {
		return raw, nil
	}
	itemSize := d.typ.ItemSize()
	if itemSize == dtype.SizeVariable {
		itemSize = 1
	}
	return d.filters.Decode(raw, itemSize)
}

func (d *Dataset) encodePage(raw []byte) ([]byte, error) {
	if len(d.filters) == 0 {
		return raw, nil
	}
	itemSize := d.typ.ItemSize()
	if itemSize == dtype.SizeVariable {
		itemSize = 1
	}
	return d.filters.Encode(raw, itemSize)
}

// Write writes src over the selected region. A source holding exactly one
// element broadcasts to the whole selection; otherwise its length must
// match the selection's element count.
func (d *Dataset) Write(src any, args ...any) error {
	sel, err := Select(d.shape, args...)
	if err != nil {
		return err
	}
	return d.WriteSelection(sel, src)
}

// WriteSelection writes src over a previously built selection.
func (d *Dataset) WriteSelection(sel Selection, src any) error {
	if err := d.checkSelection(sel); err != nil {
		return err
	}
	transport, err := lookup(d.conn)
	if err != nil {
		return err
	}

	n := sel.NSelect()
	if n == 0 {
		return nil
	}

	body, err := d.marshalSource(sel, src, n)
	if err != nil {
		return err
	}

	if pts, ok := sel.(*PointSelection); ok {
		body, err = d.encodePage(body)
		if err != nil {
			return err
		}
		if err := transport.StorePoints(d.id, pts.Points(), body); err != nil {
			return fmt.Errorf("storing points: %w", err)
		}
		return nil
	}

	if simple, ok := sel.(*SimpleSelection); ok && d.pageable() {
		return d.storePaged(transport, simple, body)
	}

	query := ""
	if sel.Kind() != KindScalar {
		q, err := sel.QueryParam()
		if err != nil {
			return err
		}
		query = q
	}
	body, err = d.encodePage(body)
	if err != nil {
		return err
	}
	if err := transport.Store(d.id, query, body); err != nil {
		return fmt.Errorf("storing %s: %w", query, err)
	}
	return nil
}

// marshalSource packs src for the selection, replicating a one-element
// source across the selection.
func (d *Dataset) marshalSource(sel Selection, src any, n int) ([]byte, error) {
	srcLen := dtype.SourceLen(d.typ, src)
	switch {
	case srcLen == n:
		return dtype.Marshal(d.typ, src)
	case srcLen == 1:
		if err := sel.Broadcast([]int{1}); err != nil {
			return nil, err
		}
		one, err := dtype.Marshal(d.typ, src)
		if err != nil {
			return nil, err
		}
		return bytes.Repeat(one, n), nil
	default:
		return nil, fmt.Errorf("%w: source has %d elements, selection has %d",
			ErrShapeMismatch, srcLen, n)
	}
}

func (d *Dataset) storePaged(transport Transport, sel *SimpleSelection, body []byte) error {
	it, err := NewChunkIterator(d.shape, d.layout, sel)
	if err != nil {
		return err
	}

	itemSize := d.typ.ItemSize()
	for {
		spans, ok := it.Next()
		if !ok {
			return nil
		}
		page, err := gatherPage(body, sel.axes, spans, itemSize)
		if err != nil {
			return err
		}
		page, err = d.encodePage(page)
		if err != nil {
			return err
		}
		if err := transport.Store(d.id, spanQuery(spans), page); err != nil {
			return fmt.Errorf("storing %s: %w", spanQuery(spans), err)
		}
	}
}

// Resize changes the current extents of a chunked dataset within its
// maximum extents.
func (d *Dataset) Resize(dims []int) error {
	if len(d.layout) == 0 {
		return fmt.Errorf("%w: only chunked datasets resize", ErrUnsupported)
	}
	if len(dims) != d.shape.Rank() {
		return fmt.Errorf("%w: %d extents for rank %d", ErrShapeMismatch, len(dims), d.shape.Rank())
	}
	for i, n := range dims {
		if n < 0 {
			return fmt.Errorf("%w: extent %d on axis %d", ErrOutOfRange, n, i)
		}
		if max := d.shape.Max(i); max != Unlimited && n > max {
			return fmt.Errorf("%w: extent %d exceeds maximum %d on axis %d", ErrOutOfRange, n, max, i)
		}
	}

	transport, err := lookup(d.conn)
	if err != nil {
		return err
	}
	if err := transport.Resize(d.id, dims); err != nil {
		return fmt.Errorf("resizing: %w", err)
	}
	d.shape.Dims = append([]int(nil), dims...)
	return nil
}

// IterChunks returns a chunk iterator over the selected region, or the
// whole dataset with no terms.
func (d *Dataset) IterChunks(args ...any) (*ChunkIterator, error) {
	sel, err := Select(d.shape, args...)
	if err != nil {
		return nil, err
	}
	return NewChunkIterator(d.shape, d.layout, sel)
}

// ReadFloat64 reads the selected region as float64 values.
func (d *Dataset) ReadFloat64(args ...any) ([]float64, error) {
	var result []float64
	err := d.Read(&result, args...)
	return result, err
}

// ReadFloat32 reads the selected region as float32 values.
func (d *Dataset) ReadFloat32(args ...any) ([]float32, error) {
	var result []float32
	err := d.Read(&result, args...)
	return result, err
}

// ReadInt64 reads the selected region as int64 values.
func (d *Dataset) ReadInt64(args ...any) ([]int64, error) {
	var result []int64
	err := d.Read(&result, args...)
	return result, err
}

// ReadInt32 reads the selected region as int32 values.
func (d *Dataset) ReadInt32(args ...any) ([]int32, error) {
	var result []int32
	err := d.Read(&result, args...)
	return result, err
}

// ReadString reads the selected region as string values.
func (d *Dataset) ReadString(args ...any) ([]string, error) {
	var result []string
	err := d.Read(&result, args...)
	return result, err
}

// checkSelection rejects selections built against another dataspace.
func (d *Dataset) checkSelection(sel Selection) error {
	if sel == nil {
		return fmt.Errorf("%w: nil selection", ErrInvalidSelection)
	}
	if !reflect.DeepEqual(sel.Shape(), d.shape) {
		return fmt.Errorf("%w: selection built against a different dataspace", ErrInvalidSelection)
	}
	return nil
}

// spanQuery renders chunk-page spans in the server's select form.
func spanQuery(spans []Span) string {
	axes := make([]axisRange, len(spans))
	for i, s := range spans {
		axes[i] = axisRange{start: s.Start, count: s.Count(), step: s.Step}
	}
	sel := &SimpleSelection{axes: axes}
	q, _ := sel.QueryParam()
	return q
}

// scatterPage places a fetched chunk page into the flat result buffer.
// Page bytes are row-major over the page spans; each element lands at its
// position in the selection's row-major result order.
func scatterPage(dst, page []byte, axes []axisRange, spans []Span, itemSize int) error {
	return walkPage(axes, spans, itemSize, len(page), func(dstOff, pageOff int) {
		copy(dst[dstOff:dstOff+itemSize], page[pageOff:pageOff+itemSize])
	})
}

// gatherPage slices a chunk page out of the flat source buffer.
func gatherPage(src []byte, axes []axisRange, spans []Span, itemSize int) ([]byte, error) {
	total := itemSize
	for _, s := range spans {
		total *= s.Count()
	}
	page := make([]byte, total)
	err := walkPage(axes, spans, itemSize, total, func(srcOff, pageOff int) {
		copy(page[pageOff:pageOff+itemSize], src[srcOff:srcOff+itemSize])
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// walkPage pairs each page element's offset with its offset in the flat
// selection buffer, iterating the spans row-major, last axis fastest.
func walkPage(axes []axisRange, spans []Span, itemSize, pageBytes int, visit func(flatOff, pageOff int)) error {
	rank := len(axes)
	pageCount := 1
	for _, s := range spans {
		pageCount *= s.Count()
	}
	if pageCount*itemSize != pageBytes {
		return fmt.Errorf("%w: page holds %d bytes, spans select %d elements of %d bytes",
			ErrShapeMismatch, pageBytes, pageCount, itemSize)
	}
	if pageCount == 0 {
		return nil
	}

	// Row-major strides over the full selection counts.
	strides := make([]int, rank)
	stride := 1
	for i := rank - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= axes[i].count
	}

	coord := make([]int, rank) // per-axis position within the span
	for p := 0; p < pageCount; p++ {
		flat := 0
		for i := 0; i < rank; i++ {
			// Selection index of this position along axis i.
			pos := spans[i].Start + coord[i]*spans[i].Step
			flat += (pos - axes[i].start) / axes[i].step * strides[i]
		}
		visit(flat*itemSize, p*itemSize)

		for i := rank - 1; i >= 0; i-- {
			coord[i]++
			if coord[i] < spans[i].Count() {
				break
			}
			coord[i] = 0
		}
	}
	return nil
}

// resetDest empties the slice dest points at.
func resetDest(dest any) error {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("dest must be a pointer to a slice, got %T", dest)
	}
	v.Elem().Set(reflect.MakeSlice(v.Elem().Type(), 0, 0))
	return nil
}
