package hsds

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestMultiManagerRead(t *testing.T) {
	c, tr := newTestConn(t)
	targets := make([]*Dataset, 5)
	for i := range targets {
		ds := int32Dataset(t, c, tr, fmt.Sprintf("d%d", i), SimpleShape(4), nil)
		if err := ds.Write([]int32{int32(i), int32(i) + 1, int32(i) + 2, int32(i) + 3}); err != nil {
			t.Fatal(err)
		}
		targets[i] = ds
	}

	m := NewMultiManager(targets...)
	if m.Len() != 5 {
		t.Fatalf("Len: got %d", m.Len())
	}

	dests := make([]any, 5)
	slices := make([][]int32, 5)
	for i := range dests {
		dests[i] = &slices[i]
	}
	if err := m.Read(dests); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	for i, s := range slices {
		want := []int32{int32(i), int32(i) + 1, int32(i) + 2, int32(i) + 3}
		if !reflect.DeepEqual(s, want) {
			t.Errorf("target %d: expected %v, got %v", i, want, s)
		}
	}

	// One shared selection applies to every target.
	shared := mustSelect(t, SimpleShape(4), Range(1, 3))
	if err := m.Read(dests, shared); err != nil {
		t.Fatalf("shared-selection Read failed: %v", err)
	}
	for i, s := range slices {
		want := []int32{int32(i) + 1, int32(i) + 2}
		if !reflect.DeepEqual(s, want) {
			t.Errorf("target %d: expected %v, got %v", i, want, s)
		}
	}
}

func TestMultiManagerWrite(t *testing.T) {
	c, tr := newTestConn(t)
	a := int32Dataset(t, c, tr, "a", SimpleShape(3), nil)
	b := int32Dataset(t, c, tr, "b", SimpleShape(3), nil)

	m := NewMultiManager(a, b)
	srcs := []any{[]int32{1, 2, 3}, []int32{4, 5, 6}}
	if err := m.Write(srcs); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := b.ReadInt32()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []int32{4, 5, 6}) {
		t.Errorf("target b: got %v", got)
	}

	// Per-target selections.
	sels := []Selection{
		mustSelect(t, SimpleShape(3), 0),
		mustSelect(t, SimpleShape(3), 2),
	}
	if err := m.Write([]any{int32(-1), int32(-2)}, sels...); err != nil {
		t.Fatalf("per-target Write failed: %v", err)
	}
	got, _ = a.ReadInt32()
	if !reflect.DeepEqual(got, []int32{-1, 2, 3}) {
		t.Errorf("target a: got %v", got)
	}
	got, _ = b.ReadInt32()
	if !reflect.DeepEqual(got, []int32{4, 5, -2}) {
		t.Errorf("target b: got %v", got)
	}
}

func TestMultiManagerFailure(t *testing.T) {
	c, tr := newTestConn(t)
	good := int32Dataset(t, c, tr, "good", SimpleShape(2), nil)
	if err := good.Write([]int32{1, 2}); err != nil {
		t.Fatal(err)
	}

	// A dataset on a closed connection fails every operation.
	deadTr := NewMemTransport()
	deadConn := Connect(deadTr)
	bad := createDataset(t, deadConn, deadTr, "bad", DatasetMeta{
		Shape: SimpleShape(2),
		Type:  json.RawMessage(`"H5T_STD_I32LE"`),
	})
	deadConn.Close()

	m := NewMultiManager(good, bad)

	var aDest, bDest []int32
	aDest = []int32{99}
	err := m.Read([]any{&aDest, &bDest})
	if err == nil {
		t.Fatal("expected a fanout failure")
	}
	var fe *FanoutError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FanoutError, got %T", err)
	}
	if fe.Index != 1 {
		t.Errorf("failing target index: expected 1, got %d", fe.Index)
	}
	if !errors.Is(err, ErrStaleHandle) {
		t.Errorf("cause should unwrap to ErrStaleHandle, got %v", fe.Err)
	}
	// Partial results are discarded: no destination was touched.
	if !reflect.DeepEqual(aDest, []int32{99}) {
		t.Errorf("failed read touched a destination: %v", aDest)
	}

	if err := m.Write([]any{[]int32{0, 0}, []int32{0, 0}}); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("write fanout: expected ErrStaleHandle cause, got %v", err)
	}
}

func TestMultiManagerArgumentChecks(t *testing.T) {
	c, tr := newTestConn(t)
	a := int32Dataset(t, c, tr, "a", SimpleShape(2), nil)
	b := int32Dataset(t, c, tr, "b", SimpleShape(2), nil)
	m := NewMultiManager(a, b)

	var one []int32
	if err := m.Read([]any{&one}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("dest count: expected ErrShapeMismatch, got %v", err)
	}
	if err := m.Write([]any{[]int32{1, 2}}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("src count: expected ErrShapeMismatch, got %v", err)
	}

	// Selection counts other than 0, 1, or the target count are rejected.
	sels := []Selection{
		mustSelect(t, SimpleShape(2)),
		mustSelect(t, SimpleShape(2)),
		mustSelect(t, SimpleShape(2)),
	}
	var x, y []int32
	err := m.Read([]any{&x, &y}, sels...)
	if !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("selection count: expected ErrInvalidSelection, got %v", err)
	}

	if err := m.Read([]any{[]int32{}, &y}); err == nil {
		t.Error("non-pointer destination should fail")
	}
}
