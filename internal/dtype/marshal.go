package dtype

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
)

// Marshal converts Go values to wire bytes. The src parameter may be a
// slice, an array, or a single value.
func Marshal(t *Type, src any) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("nil type")
	}

	srcVal := reflect.ValueOf(src)
	if srcVal.Kind() == reflect.Ptr {
		srcVal = srcVal.Elem()
	}

	var buf []byte
	var err error
	if isSingle(t, srcVal) {
		return encodeAppend(t, buf, srcVal)
	}

	n := srcVal.Len()
	if size := t.ItemSize(); size != SizeVariable {
		buf = make([]byte, 0, n*size)
	}
	for i := 0; i < n; i++ {
		buf, err = encodeAppend(t, buf, srcVal.Index(i))
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return buf, nil
}

// MarshalScalar encodes a single value.
func MarshalScalar(t *Type, src any) ([]byte, error) {
	return encodeAppend(t, nil, reflect.ValueOf(src))
}

// SourceLen reports how many elements of t the source holds: 1 for a
// value Marshal treats as a single element, the length otherwise.
func SourceLen(t *Type, src any) int {
	v := reflect.ValueOf(src)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if isSingle(t, v) {
		return 1
	}
	return v.Len()
}

// isSingle reports whether v is one element of t rather than a sequence.
// A []byte source for an opaque type is a single element, a []T for a
// vlen of T is one vlen value, and a string-keyed map is one compound
// element; everything else slice- or array-shaped is a sequence.
func isSingle(t *Type, v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice:
		if t.Class == ClassOpaque && v.Type().Elem().Kind() == reflect.Uint8 {
			return true
		}
		if t.Class == ClassVLen && v.Type().Elem().Kind() != reflect.Slice {
			return true
		}
		return false
	case reflect.Array:
		return t.Class == ClassArray
	default:
		return true
	}
}

func encodeAppend(t *Type, buf []byte, val reflect.Value) ([]byte, error) {
	if val.Kind() == reflect.Interface {
		val = val.Elem()
	}

	switch t.Class {
	case ClassInteger:
		return encodeInteger(t, buf, val)

	case ClassFloat:
		var f float64
		switch val.Kind() {
		case reflect.Float32, reflect.Float64:
			f = val.Float()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			f = float64(val.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			f = float64(val.Uint())
		default:
			return nil, fmt.Errorf("cannot encode %s as float", val.Kind())
		}
		order := t.Order.appendable()
		switch t.Size {
		case 4:
			buf = order.AppendUint32(buf, math.Float32bits(float32(f)))
		case 8:
			buf = order.AppendUint64(buf, math.Float64bits(f))
		default:
			return nil, fmt.Errorf("unsupported float size: %d", t.Size)
		}
		return buf, nil

	case ClassString:
		if val.Kind() != reflect.String {
			return nil, fmt.Errorf("cannot encode %s as string", val.Kind())
		}
		s := val.String()
		if t.Variable {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
			return append(buf, s...), nil
		}
		// Fixed length: truncate or null-pad.
		cell := make([]byte, t.Size)
		copy(cell, s)
		return append(buf, cell...), nil

	case ClassOpaque:
		if val.Kind() != reflect.Slice || val.Type().Elem().Kind() != reflect.Uint8 {
			return nil, fmt.Errorf("cannot encode %s as opaque", val.Kind())
		}
		if val.Len() != t.Size {
			return nil, fmt.Errorf("opaque value has %d bytes, type requires %d", val.Len(), t.Size)
		}
		return append(buf, val.Bytes()...), nil

	case ClassReference:
		if val.Kind() != reflect.String {
			return nil, fmt.Errorf("cannot encode %s as reference", val.Kind())
		}
		s := val.String()
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
		return append(buf, s...), nil

	case ClassEnum:
		if t.IsBool() && val.Kind() == reflect.Bool {
			if val.Bool() {
				return append(buf, 1), nil
			}
			return append(buf, 0), nil
		}
		return encodeInteger(t.Base, buf, val)

	case ClassCompound:
		return encodeCompound(t, buf, val)

	case ClassArray:
		total := 1
		for _, d := range t.Dims {
			total *= d
		}
		var flat []reflect.Value
		switch val.Kind() {
		case reflect.Array:
			flat = flatten(val)
		case reflect.Slice:
			// A flat slice stands in for the row-major cells.
			for i := 0; i < val.Len(); i++ {
				flat = append(flat, val.Index(i))
			}
		default:
			return nil, fmt.Errorf("cannot encode %s as array", val.Kind())
		}
		if len(flat) != total {
			return nil, fmt.Errorf("array type has %d elements, source has %d", total, len(flat))
		}
		var err error
		for _, cell := range flat {
			buf, err = encodeAppend(t.Base, buf, cell)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil

	case ClassVLen:
		if val.Kind() != reflect.Slice {
			return nil, fmt.Errorf("cannot encode %s as vlen", val.Kind())
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(val.Len()))
		var err error
		for i := 0; i < val.Len(); i++ {
			buf, err = encodeAppend(t.Base, buf, val.Index(i))
			if err != nil {
				return nil, err
			}
		}
		return buf, nil

	default:
		return nil, fmt.Errorf("unsupported type class: %s", t.Class)
	}
}

func encodeInteger(t *Type, buf []byte, val reflect.Value) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("nil integer type")
	}

	var u uint64
	switch val.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		u = uint64(val.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u = val.Uint()
	default:
		return nil, fmt.Errorf("cannot encode %s as integer", val.Kind())
	}

	order := t.Order.appendable()
	switch t.Size {
	case 1:
		return append(buf, byte(u)), nil
	case 2:
		return order.AppendUint16(buf, uint16(u)), nil
	case 4:
		return order.AppendUint32(buf, uint32(u)), nil
	case 8:
		return order.AppendUint64(buf, u), nil
	default:
		return nil, fmt.Errorf("unsupported integer size: %d", t.Size)
	}
}

func encodeCompound(t *Type, buf []byte, val reflect.Value) ([]byte, error) {
	switch val.Kind() {
	case reflect.Struct:
		if val.NumField() != len(t.Fields) {
			return nil, fmt.Errorf("compound has %d fields, struct %s has %d",
				len(t.Fields), val.Type(), val.NumField())
		}
		var err error
		for i, f := range t.Fields {
			buf, err = encodeAppend(f.Type, buf, val.Field(i))
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Name, err)
			}
		}
		return buf, nil

	case reflect.Map:
		if val.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("compound map must have string keys")
		}
		var err error
		for _, f := range t.Fields {
			cell := val.MapIndex(reflect.ValueOf(f.Name))
			if !cell.IsValid() {
				return nil, fmt.Errorf("compound value missing field %q", f.Name)
			}
			buf, err = encodeAppend(f.Type, buf, cell)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Name, err)
			}
		}
		return buf, nil

	default:
		return nil, fmt.Errorf("cannot encode %s as compound", val.Kind())
	}
}
