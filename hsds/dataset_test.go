package hsds

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func newTestConn(t *testing.T) (*Conn, *MemTransport) {
	t.Helper()
	tr := NewMemTransport()
	c := Connect(tr)
	t.Cleanup(c.Close)
	return c, tr
}

func createDataset(t *testing.T, c *Conn, tr *MemTransport, id string, meta DatasetMeta) *Dataset {
	t.Helper()
	if err := tr.CreateDataset(id, meta); err != nil {
		t.Fatalf("CreateDataset failed: %v", err)
	}
	ds, err := c.OpenDataset(id)
	if err != nil {
		t.Fatalf("OpenDataset failed: %v", err)
	}
	return ds
}

func int32Dataset(t *testing.T, c *Conn, tr *MemTransport, id string, shape Shape, layout []int) *Dataset {
	t.Helper()
	return createDataset(t, c, tr, id, DatasetMeta{
		Shape:  shape,
		Type:   json.RawMessage(`"H5T_STD_I32LE"`),
		Layout: layout,
	})
}

func TestDatasetAccessors(t *testing.T) {
	c, tr := newTestConn(t)
	ds := int32Dataset(t, c, tr, "d1", SimpleShape(4, 5), []int{2, 2})

	if ds.ID() != "d1" {
		t.Errorf("ID: got %q", ds.ID())
	}
	if !reflect.DeepEqual(ds.Dims(), []int{4, 5}) || ds.Rank() != 2 {
		t.Errorf("Dims/Rank: got %v / %d", ds.Dims(), ds.Rank())
	}
	if ds.NumElements() != 20 || ds.Len() != 4 || ds.IsScalar() {
		t.Errorf("NumElements/Len/IsScalar: got %d / %d / %v",
			ds.NumElements(), ds.Len(), ds.IsScalar())
	}
	if !reflect.DeepEqual(ds.Chunks(), []int{2, 2}) {
		t.Errorf("Chunks: got %v", ds.Chunks())
	}
	gt, err := ds.GoType()
	if err != nil || gt != reflect.TypeOf(int32(0)) {
		t.Errorf("GoType: got %v, %v", gt, err)
	}
	raw, err := ds.TypeJSON()
	if err != nil {
		t.Fatalf("TypeJSON failed: %v", err)
	}
	if string(raw) != `"H5T_STD_I32LE"` {
		t.Errorf("TypeJSON: got %s", raw)
	}
}

func TestDatasetReadWriteRoundTrip(t *testing.T) {
	c, tr := newTestConn(t)
	// Chunked, so transfers go page by page.
	ds := int32Dataset(t, c, tr, "grid", SimpleShape(4, 5), []int{2, 2})

	src := make([]int32, 20)
	for i := range src {
		src[i] = int32(i)
	}
	if err := ds.Write(src); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var back []int32
	if err := ds.Read(&back); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !reflect.DeepEqual(back, src) {
		t.Errorf("round trip changed data:\nsent %v\ngot  %v", src, back)
	}

	// Strided subselection: rows 1-2, every other column.
	var sub []int32
	if err := ds.Read(&sub, Range(1, 3), RangeStep(0, 5, 2)); err != nil {
		t.Fatalf("strided read failed: %v", err)
	}
	want := []int32{5, 7, 9, 10, 12, 14}
	if !reflect.DeepEqual(sub, want) {
		t.Errorf("strided read: expected %v, got %v", want, sub)
	}

	// Overwrite the strided region and check placement.
	if err := ds.Write([]int32{-1, -2, -3, -4, -5, -6}, Range(1, 3), RangeStep(0, 5, 2)); err != nil {
		t.Fatalf("strided write failed: %v", err)
	}
	var row []int32
	if err := ds.Read(&row, 1, Ellipsis); err != nil {
		t.Fatalf("row read failed: %v", err)
	}
	if !reflect.DeepEqual(row, []int32{-1, 6, -2, 8, -3}) {
		t.Errorf("strided write misplaced: row 1 is %v", row)
	}
}

func TestDatasetUnchunkedTransfers(t *testing.T) {
	c, tr := newTestConn(t)
	ds := int32Dataset(t, c, tr, "flat", SimpleShape(6), nil)

	if err := ds.Write([]int32{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	var mid []int32
	if err := ds.Read(&mid, Range(2, 5)); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !reflect.DeepEqual(mid, []int32{3, 4, 5}) {
		t.Errorf("expected [3 4 5], got %v", mid)
	}
}

func TestDatasetBroadcastWrite(t *testing.T) {
	c, tr := newTestConn(t)
	ds := int32Dataset(t, c, tr, "fill", SimpleShape(3, 4), []int{2, 2})

	// A one-element source fills the whole selection.
	if err := ds.Write(int32(7), Range(1, 3), Slice{}); err != nil {
		t.Fatalf("broadcast write failed: %v", err)
	}
	var all []int32
	if err := ds.Read(&all); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	want := []int32{0, 0, 0, 0, 7, 7, 7, 7, 7, 7, 7, 7}
	if !reflect.DeepEqual(all, want) {
		t.Errorf("expected %v, got %v", want, all)
	}

	// Anything between one element and the full count is rejected.
	err := ds.Write([]int32{1, 2, 3}, Range(1, 3), Slice{})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestDatasetEmptySelection(t *testing.T) {
	c, tr := newTestConn(t)
	ds := int32Dataset(t, c, tr, "empty", SimpleShape(0, 3), nil)

	dest := []int32{9, 9, 9}
	if err := ds.Read(&dest); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(dest) != 0 {
		t.Errorf("empty read should reset dest, got %v", dest)
	}

	// Writes to an empty selection are no-ops, any source length.
	if err := ds.Write([]int32{1, 2, 3}); err != nil {
		t.Errorf("empty write failed: %v", err)
	}
}

func TestDatasetScalar(t *testing.T) {
	c, tr := newTestConn(t)
	ds := createDataset(t, c, tr, "s", DatasetMeta{
		Shape: ScalarShape(),
		Type:  json.RawMessage(`"H5T_IEEE_F64LE"`),
	})

	if !ds.IsScalar() || ds.Len() != 0 || ds.NumElements() != 1 {
		t.Fatalf("scalar dataset misdescribed: %v %d %d", ds.IsScalar(), ds.Len(), ds.NumElements())
	}

	if err := ds.Write(3.5); err != nil {
		t.Fatalf("scalar write failed: %v", err)
	}
	got, err := ds.ReadFloat64()
	if err != nil {
		t.Fatalf("scalar read failed: %v", err)
	}
	if !reflect.DeepEqual(got, []float64{3.5}) {
		t.Errorf("expected [3.5], got %v", got)
	}
}

func TestDatasetVariableStrings(t *testing.T) {
	c, tr := newTestConn(t)
	ds := createDataset(t, c, tr, "names", DatasetMeta{
		Shape: SimpleShape(3),
		Type: json.RawMessage(
			`{"class":"H5T_STRING","length":"H5T_VARIABLE","charSet":"H5T_CSET_UTF8","strPad":"H5T_STR_NULLTERM"}`),
	})

	src := []string{"a", "bc", "def"}
	if err := ds.Write(src); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := ds.ReadString()
	if err != nil {
		t.Fatalf("ReadString failed: %v", err)
	}
	if !reflect.DeepEqual(got, src) {
		t.Errorf("round trip changed data: %v", got)
	}

	var one []string
	if err := ds.Read(&one, 1); err != nil {
		t.Fatalf("single read failed: %v", err)
	}
	if !reflect.DeepEqual(one, []string{"bc"}) {
		t.Errorf("expected [bc], got %v", one)
	}
}

func TestDatasetFilteredRoundTrip(t *testing.T) {
	c, tr := newTestConn(t)
	ds := createDataset(t, c, tr, "packed", DatasetMeta{
		Shape:  SimpleShape(10),
		Type:   json.RawMessage(`"H5T_IEEE_F64LE"`),
		Layout: []int{4},
		Filters: FilterPipeline{
			{Class: FilterShuffle},
			{Class: FilterDeflate, Level: 6},
			{Class: FilterFletcher32},
		},
	})

	src := make([]float64, 10)
	for i := range src {
		src[i] = float64(i) * 1.5
	}
	if err := ds.Write(src); err != nil {
		t.Fatalf("Write through filters failed: %v", err)
	}

	got, err := ds.ReadFloat64()
	if err != nil {
		t.Fatalf("Read through filters failed: %v", err)
	}
	if !floats.Equal(got, src) {
		t.Errorf("filtered round trip changed data:\nsent %v\ngot  %v", src, got)
	}

	// The strided paged path runs through the same pipeline.
	part, err := ds.ReadFloat64(RangeStep(1, 10, 3))
	if err != nil {
		t.Fatalf("strided filtered read failed: %v", err)
	}
	if !floats.Equal(part, []float64{1.5, 6, 10.5}) {
		t.Errorf("expected [1.5 6 10.5], got %v", part)
	}
}

func TestDatasetPointIO(t *testing.T) {
	c, tr := newTestConn(t)
	ds := int32Dataset(t, c, tr, "pts", SimpleShape(3, 3), nil)

	points := [][]int{{0, 0}, {1, 1}, {2, 2}}
	if err := ds.Write([]int32{10, 20, 30}, points); err != nil {
		t.Fatalf("point write failed: %v", err)
	}

	var diag []int32
	if err := ds.Read(&diag, points); err != nil {
		t.Fatalf("point read failed: %v", err)
	}
	if !reflect.DeepEqual(diag, []int32{10, 20, 30}) {
		t.Errorf("expected [10 20 30], got %v", diag)
	}

	var all []int32
	if err := ds.Read(&all); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	want := []int32{10, 0, 0, 0, 20, 0, 0, 0, 30}
	if !reflect.DeepEqual(all, want) {
		t.Errorf("points misplaced: %v", all)
	}
}

func TestDatasetResize(t *testing.T) {
	c, tr := newTestConn(t)
	shape, err := GrowableShape([]int{4}, []int{8})
	if err != nil {
		t.Fatal(err)
	}
	ds := createDataset(t, c, tr, "grow", DatasetMeta{
		Shape:  shape,
		Type:   json.RawMessage(`"H5T_STD_I32LE"`),
		Layout: []int{2},
	})

	if err := ds.Write([]int32{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := ds.Resize([]int{6}); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if !reflect.DeepEqual(ds.Dims(), []int{6}) {
		t.Errorf("handle extents not updated: %v", ds.Dims())
	}

	got, err := ds.ReadInt32()
	if err != nil {
		t.Fatalf("Read after resize failed: %v", err)
	}
	if !reflect.DeepEqual(got, []int32{1, 2, 3, 4, 0, 0}) {
		t.Errorf("resize lost data: %v", got)
	}

	if err := ds.Resize([]int{9}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("beyond maxdims: expected ErrOutOfRange, got %v", err)
	}
	if err := ds.Resize([]int{2, 2}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("rank change: expected ErrShapeMismatch, got %v", err)
	}

	flat := int32Dataset(t, c, tr, "nochunks", SimpleShape(4), nil)
	if err := flat.Resize([]int{6}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("unchunked resize: expected ErrUnsupported, got %v", err)
	}
}

func TestDatasetResizeUnlimited(t *testing.T) {
	c, tr := newTestConn(t)
	shape, err := GrowableShape([]int{2}, []int{Unlimited})
	if err != nil {
		t.Fatal(err)
	}
	ds := createDataset(t, c, tr, "unbounded", DatasetMeta{
		Shape:  shape,
		Type:   json.RawMessage(`"H5T_STD_I32LE"`),
		Layout: []int{2},
	})
	if err := ds.Resize([]int{1000}); err != nil {
		t.Fatalf("unlimited resize failed: %v", err)
	}
	if ds.Len() != 1000 {
		t.Errorf("Len after resize: got %d", ds.Len())
	}
}

func TestDatasetTypedReads(t *testing.T) {
	c, tr := newTestConn(t)
	ds := int32Dataset(t, c, tr, "typed", SimpleShape(3), nil)
	if err := ds.Write([]int32{-1, 0, 1}); err != nil {
		t.Fatal(err)
	}

	// Widening conversion on read.
	i64, err := ds.ReadInt64()
	if err != nil || !reflect.DeepEqual(i64, []int64{-1, 0, 1}) {
		t.Errorf("ReadInt64: got %v, %v", i64, err)
	}
	f32, err := ds.ReadFloat32()
	if err != nil || !reflect.DeepEqual(f32, []float32{-1, 0, 1}) {
		t.Errorf("ReadFloat32: got %v, %v", f32, err)
	}
	i32, err := ds.ReadInt32(Range(1, 3))
	if err != nil || !reflect.DeepEqual(i32, []int32{0, 1}) {
		t.Errorf("ReadInt32: got %v, %v", i32, err)
	}
}

func TestDatasetForeignSelection(t *testing.T) {
	c, tr := newTestConn(t)
	ds := int32Dataset(t, c, tr, "a", SimpleShape(4), nil)

	other := mustSelect(t, SimpleShape(8))
	var dest []int32
	if err := ds.ReadSelection(other, &dest); !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("foreign selection: expected ErrInvalidSelection, got %v", err)
	}
	if err := ds.ReadSelection(nil, &dest); !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("nil selection: expected ErrInvalidSelection, got %v", err)
	}
}

func TestDatasetIterChunks(t *testing.T) {
	c, tr := newTestConn(t)
	ds := int32Dataset(t, c, tr, "it", SimpleShape(13), []int{4})

	it, err := ds.IterChunks()
	if err != nil {
		t.Fatalf("IterChunks failed: %v", err)
	}
	pages := collectPages(t, it)
	if len(pages) != 4 {
		t.Errorf("expected 4 pages, got %d", len(pages))
	}

	flat := int32Dataset(t, c, tr, "it2", SimpleShape(13), nil)
	if _, err := flat.IterChunks(); !errors.Is(err, ErrUnsupported) {
		t.Errorf("unchunked IterChunks: expected ErrUnsupported, got %v", err)
	}
}

func TestConnLifecycle(t *testing.T) {
	tr := NewMemTransport()
	c := Connect(tr)
	ds := createDataset(t, c, tr, "d", DatasetMeta{
		Shape: SimpleShape(2),
		Type:  json.RawMessage(`"H5T_STD_I32LE"`),
	})

	if c.Closed() {
		t.Fatal("fresh connection reports closed")
	}
	c.Close()
	c.Close() // idempotent
	if !c.Closed() {
		t.Fatal("Closed after Close should be true")
	}

	var dest []int32
	if err := ds.Read(&dest); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("read after close: expected ErrStaleHandle, got %v", err)
	}
	if err := ds.Write([]int32{1, 2}); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("write after close: expected ErrStaleHandle, got %v", err)
	}
	if _, err := c.OpenDataset("d"); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("open after close: expected ErrStaleHandle, got %v", err)
	}
}

func TestOpenDatasetNotFound(t *testing.T) {
	c, _ := newTestConn(t)
	if _, err := c.OpenDataset("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
