package dtype

// Wire value conversion.
//
// Fixed-size elements are packed back to back: compound fields in
// declaration order with no padding, array elements in row-major order.
// Variable-length values carry a 4-byte little-endian prefix: the byte
// length for strings and references, the element count for vlen
// sequences. This matches the binary transfer format used by the server
// for dataset value requests.
//
// For little-endian integer and float slices whose element size matches
// the wire size, Convert takes a direct-copy fast path instead of
// converting element by element.

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"unsafe"
)

// Convert converts wire bytes to Go values. The dest parameter must be a
// pointer to a slice; it is grown to n elements as needed.
func Convert(t *Type, data []byte, n uint64, dest any) error {
	if t == nil {
		return fmt.Errorf("nil type")
	}

	destVal := reflect.ValueOf(dest)
	if destVal.Kind() != reflect.Ptr {
		return fmt.Errorf("dest must be a pointer, got %T", dest)
	}
	slice := destVal.Elem()
	if slice.Kind() != reflect.Slice {
		return fmt.Errorf("dest must point to a slice, got %T", dest)
	}

	if slice.Len() < int(n) {
		slice.Set(reflect.MakeSlice(slice.Type(), int(n), int(n)))
	}

	// Fast path for matching little-endian numeric slices.
	if canDirectCopy(t, slice.Type().Elem()) {
		return directCopy(data, n, t.Size, slice)
	}

	pos := 0
	for i := uint64(0); i < n; i++ {
		next, err := decodeInto(t, data, pos, slice.Index(int(i)))
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		pos = next
	}

	return nil
}

// ConvertToSlice converts wire bytes to a newly allocated slice.
func ConvertToSlice[T any](t *Type, data []byte, n uint64) ([]T, error) {
	result := make([]T, n)
	if err := Convert(t, data, n, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ReadScalar reads a single value from wire bytes.
func ReadScalar[T any](t *Type, data []byte) (T, error) {
	var zero T
	result := make([]T, 1)
	if err := Convert(t, data, 1, &result); err != nil {
		return zero, err
	}
	return result[0], nil
}

// decodeInto decodes one element of t from data at pos into dst, returning
// the position after the element.
func decodeInto(t *Type, data []byte, pos int, dst reflect.Value) (int, error) {
	switch t.Class {
	case ClassInteger:
		return decodeInteger(t, data, pos, dst)

	case ClassFloat:
		if pos+t.Size > len(data) {
			return 0, errShortData(t, pos, len(data))
		}
		order := t.Order.Binary()
		var f float64
		switch t.Size {
		case 4:
			f = float64(math.Float32frombits(order.Uint32(data[pos:])))
		case 8:
			f = math.Float64frombits(order.Uint64(data[pos:]))
		default:
			return 0, fmt.Errorf("unsupported float size: %d", t.Size)
		}
		if err := setValue(dst, reflect.ValueOf(f)); err != nil {
			return 0, err
		}
		return pos + t.Size, nil

	case ClassString:
		if t.Variable {
			s, next, err := readVarBytes(data, pos)
			if err != nil {
				return 0, err
			}
			return next, setValue(dst, reflect.ValueOf(string(s)))
		}
		if pos+t.Size > len(data) {
			return 0, errShortData(t, pos, len(data))
		}
		raw := data[pos : pos+t.Size]
		end := len(raw)
		for j := 0; j < len(raw); j++ {
			if raw[j] == 0 {
				end = j
				break
			}
		}
		return pos + t.Size, setValue(dst, reflect.ValueOf(string(raw[:end])))

	case ClassOpaque:
		if pos+t.Size > len(data) {
			return 0, errShortData(t, pos, len(data))
		}
		blob := make([]byte, t.Size)
		copy(blob, data[pos:pos+t.Size])
		return pos + t.Size, setValue(dst, reflect.ValueOf(blob))

	case ClassReference:
		s, next, err := readVarBytes(data, pos)
		if err != nil {
			return 0, err
		}
		var ref reflect.Value
		if t.Flavor == RefRegion {
			ref = reflect.ValueOf(RegionRef(s))
		} else {
			ref = reflect.ValueOf(ObjectRef(s))
		}
		return next, setValue(dst, ref)

	case ClassEnum:
		if t.IsBool() {
			if pos+1 > len(data) {
				return 0, errShortData(t, pos, len(data))
			}
			return pos + 1, setValue(dst, reflect.ValueOf(data[pos] != 0))
		}
		return decodeInteger(t.Base, data, pos, dst)

	case ClassCompound:
		return decodeCompound(t, data, pos, dst)

	case ClassArray:
		return decodeArray(t, data, pos, dst)

	case ClassVLen:
		if pos+4 > len(data) {
			return 0, errShortData(t, pos, len(data))
		}
		count := int(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4
		elemType, err := GoType(t.Base)
		if err != nil {
			return 0, err
		}
		seq := reflect.MakeSlice(reflect.SliceOf(elemType), count, count)
		for i := 0; i < count; i++ {
			pos, err = decodeInto(t.Base, data, pos, seq.Index(i))
			if err != nil {
				return 0, err
			}
		}
		return pos, setValue(dst, seq)

	default:
		return 0, fmt.Errorf("unsupported type class: %s", t.Class)
	}
}

func decodeInteger(t *Type, data []byte, pos int, dst reflect.Value) (int, error) {
	if t == nil {
		return 0, fmt.Errorf("nil integer type")
	}
	if pos+t.Size > len(data) {
		return 0, errShortData(t, pos, len(data))
	}
	order := t.Order.Binary()

	var val reflect.Value
	switch t.Size {
	case 1:
		if t.Signed {
			val = reflect.ValueOf(int8(data[pos]))
		} else {
			val = reflect.ValueOf(data[pos])
		}
	case 2:
		v := order.Uint16(data[pos:])
		if t.Signed {
			val = reflect.ValueOf(int16(v))
		} else {
			val = reflect.ValueOf(v)
		}
	case 4:
		v := order.Uint32(data[pos:])
		if t.Signed {
			val = reflect.ValueOf(int32(v))
		} else {
			val = reflect.ValueOf(v)
		}
	case 8:
		v := order.Uint64(data[pos:])
		if t.Signed {
			val = reflect.ValueOf(int64(v))
		} else {
			val = reflect.ValueOf(v)
		}
	default:
		return 0, fmt.Errorf("unsupported integer size: %d", t.Size)
	}

	return pos + t.Size, setValue(dst, val)
}

func decodeCompound(t *Type, data []byte, pos int, dst reflect.Value) (int, error) {
	switch dst.Kind() {
	case reflect.Struct:
		if dst.NumField() != len(t.Fields) {
			return 0, fmt.Errorf("compound has %d fields, struct %s has %d",
				len(t.Fields), dst.Type(), dst.NumField())
		}
		var err error
		for i, f := range t.Fields {
			pos, err = decodeInto(f.Type, data, pos, dst.Field(i))
			if err != nil {
				return 0, fmt.Errorf("field %q: %w", f.Name, err)
			}
		}
		return pos, nil

	case reflect.Map, reflect.Interface:
		result := make(map[string]any, len(t.Fields))
		for _, f := range t.Fields {
			ft, err := GoType(f.Type)
			if err != nil {
				return 0, err
			}
			cell := reflect.New(ft).Elem()
			pos, err = decodeInto(f.Type, data, pos, cell)
			if err != nil {
				return 0, fmt.Errorf("field %q: %w", f.Name, err)
			}
			result[f.Name] = cell.Interface()
		}
		return pos, setValue(dst, reflect.ValueOf(result))

	default:
		return 0, fmt.Errorf("cannot decode compound into %s", dst.Kind())
	}
}

func decodeArray(t *Type, data []byte, pos int, dst reflect.Value) (int, error) {
	if dst.Kind() == reflect.Interface {
		at, err := GoType(t)
		if err != nil {
			return 0, err
		}
		cell := reflect.New(at).Elem()
		next, err := decodeArray(t, data, pos, cell)
		if err != nil {
			return 0, err
		}
		return next, setValue(dst, cell)
	}

	total := 1
	for _, d := range t.Dims {
		total *= d
	}
	flat := flatten(dst)
	if len(flat) != total {
		return 0, fmt.Errorf("array type has %d elements, destination %s has %d",
			total, dst.Type(), len(flat))
	}
	var err error
	for _, cell := range flat {
		pos, err = decodeInto(t.Base, data, pos, cell)
		if err != nil {
			return 0, err
		}
	}
	return pos, nil
}

// flatten returns the addressable leaf cells of a (possibly nested) Go
// array value in row-major order.
func flatten(v reflect.Value) []reflect.Value {
	if v.Kind() != reflect.Array {
		return []reflect.Value{v}
	}
	var cells []reflect.Value
	for i := 0; i < v.Len(); i++ {
		cells = append(cells, flatten(v.Index(i))...)
	}
	return cells
}

func readVarBytes(data []byte, pos int) ([]byte, int, error) {
	if pos+4 > len(data) {
		return nil, 0, fmt.Errorf("truncated length prefix at offset %d", pos)
	}
	n := int(binary.LittleEndian.Uint32(data[pos:]))
	pos += 4
	if pos+n > len(data) {
		return nil, 0, fmt.Errorf("truncated variable value: need %d bytes at offset %d, have %d",
			n, pos, len(data)-pos)
	}
	return data[pos : pos+n], pos + n, nil
}

func setValue(dst, val reflect.Value) error {
	if dst.Kind() == reflect.Interface {
		dst.Set(val)
		return nil
	}
	if !val.Type().ConvertibleTo(dst.Type()) {
		return fmt.Errorf("cannot convert %s to %s", val.Type(), dst.Type())
	}
	dst.Set(val.Convert(dst.Type()))
	return nil
}

func errShortData(t *Type, pos, have int) error {
	return fmt.Errorf("not enough data for %s at offset %d (have %d bytes)", t.Class, pos, have)
}

// canDirectCopy checks if we can do a direct memory copy.
func canDirectCopy(t *Type, elemType reflect.Type) bool {
	if t.Order != OrderLE {
		return false
	}
	if t.Size != int(elemType.Size()) {
		return false
	}

	switch t.Class {
	case ClassInteger:
		switch elemType.Kind() {
		case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return t.Signed
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return !t.Signed
		}
	case ClassFloat:
		switch elemType.Kind() {
		case reflect.Float32, reflect.Float64:
			return true
		}
	}

	return false
}

// directCopy performs a direct memory copy for compatible types.
func directCopy(data []byte, n uint64, size int, dest reflect.Value) error {
	needed := int(n) * size
	if needed > len(data) {
		return fmt.Errorf("not enough data: need %d bytes, have %d", needed, len(data))
	}
	if needed == 0 {
		return nil
	}

	destBytes := unsafe.Slice((*byte)(dest.UnsafePointer()), needed)
	copy(destBytes, data[:needed])

	return nil
}
