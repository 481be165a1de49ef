package dtype

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
)

// ErrMalformed indicates a type descriptor that is missing required fields
// or names an unknown class.
var ErrMalformed = errors.New("malformed type descriptor")

// Class identifies the variant of a Type.
type Class uint8

const (
	ClassInteger Class = iota
	ClassFloat
	ClassString
	ClassOpaque
	ClassCompound
	ClassReference
	ClassEnum
	ClassVLen
	ClassArray
)

func (c Class) String() string {
	switch c {
	case ClassInteger:
		return "H5T_INTEGER"
	case ClassFloat:
		return "H5T_FLOAT"
	case ClassString:
		return "H5T_STRING"
	case ClassOpaque:
		return "H5T_OPAQUE"
	case ClassCompound:
		return "H5T_COMPOUND"
	case ClassReference:
		return "H5T_REFERENCE"
	case ClassEnum:
		return "H5T_ENUM"
	case ClassVLen:
		return "H5T_VLEN"
	case ClassArray:
		return "H5T_ARRAY"
	default:
		return fmt.Sprintf("Class(%d)", c)
	}
}

// Order is the byte order of a fixed-size numeric type.
type Order uint8

const (
	OrderLE Order = iota
	OrderBE
)

// Binary returns the binary.ByteOrder for the order.
func (o Order) Binary() binary.ByteOrder {
	if o == OrderBE {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// appendable reports the byte order as the appending flavor of the
// encoding/binary interfaces.
func (o Order) appendable() binary.AppendByteOrder {
	if o == OrderBE {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Charset is the character set of a string type.
type Charset uint8

const (
	CharsetASCII Charset = iota
	CharsetUTF8
)

// RefFlavor distinguishes object references from region references.
type RefFlavor uint8

const (
	RefObject RefFlavor = iota
	RefRegion
)

// Field is one named member of a compound type.
type Field struct {
	Name string
	Type *Type
}

// Type is a recursive, strictly-typed description of an element type.
// The Class tag says which of the class-specific fields are meaningful;
// constructors keep the two in sync.
type Type struct {
	Class Class

	// Integer, Float, String (fixed), Opaque
	Size int

	// Integer
	Signed bool

	// Integer, Float
	Order Order

	// String
	Charset  Charset
	Variable bool

	// Enum, VLen, Array
	Base *Type

	// Array
	Dims []int

	// Compound
	Fields []Field

	// Enum
	Mapping map[string]int64

	// Reference
	Flavor RefFlavor
}

// NewInteger returns an integer type of the given byte size.
func NewInteger(size int, signed bool, order Order) *Type {
	return &Type{Class: ClassInteger, Size: size, Signed: signed, Order: order}
}

// NewFloat returns an IEEE float type of the given byte size.
func NewFloat(size int, order Order) *Type {
	return &Type{Class: ClassFloat, Size: size, Order: order}
}

// NewFixedString returns a fixed-length string type of length bytes.
func NewFixedString(length int, cs Charset) *Type {
	return &Type{Class: ClassString, Size: length, Charset: cs}
}

// NewVarString returns a variable-length string type.
func NewVarString(cs Charset) *Type {
	return &Type{Class: ClassString, Charset: cs, Variable: true}
}

// NewOpaque returns an opaque blob type of the given byte size.
func NewOpaque(size int) *Type {
	return &Type{Class: ClassOpaque, Size: size}
}

// NewCompound returns a compound type with the given ordered fields.
func NewCompound(fields []Field) *Type {
	return &Type{Class: ClassCompound, Fields: fields}
}

// NewArray returns a fixed-shape array type over base.
func NewArray(base *Type, dims []int) *Type {
	return &Type{Class: ClassArray, Base: base, Dims: dims}
}

// NewVLen returns a variable-length sequence type over base.
func NewVLen(base *Type) *Type {
	return &Type{Class: ClassVLen, Base: base}
}

// NewEnum returns an enumerated type over an integer base.
func NewEnum(base *Type, mapping map[string]int64) *Type {
	return &Type{Class: ClassEnum, Base: base, Mapping: mapping}
}

// NewReference returns an object or region reference type.
func NewReference(flavor RefFlavor) *Type {
	return &Type{Class: ClassReference, Flavor: flavor}
}

// NewBool returns the canonical boolean type: a two-value enum over an
// unsigned 1-byte integer with mapping {FALSE:0, TRUE:1}. This is the one
// place the boolean convention is defined; IsBool recognizes it on the
// way back.
func NewBool() *Type {
	return NewEnum(NewInteger(1, false, OrderLE), map[string]int64{"FALSE": 0, "TRUE": 1})
}

// IsBool reports whether t is the canonical boolean enum.
func (t *Type) IsBool() bool {
	if t == nil || t.Class != ClassEnum || t.Base == nil {
		return false
	}
	b := t.Base
	if b.Class != ClassInteger || b.Size != 1 || b.Signed {
		return false
	}
	if len(t.Mapping) != 2 {
		return false
	}
	f, okf := t.Mapping["FALSE"]
	tr, okt := t.Mapping["TRUE"]
	return okf && okt && f == 0 && tr == 1
}

// SizeVariable is the ItemSize result for types without a fixed per-element
// byte size (variable-length strings, vlen sequences, references).
const SizeVariable = -1

// ItemSize returns the per-element byte size of t, or SizeVariable.
// Compound sizes short-circuit to SizeVariable as soon as one field is
// variable; array sizes multiply out only over a fixed base.
func (t *Type) ItemSize() int {
	switch t.Class {
	case ClassVLen, ClassReference:
		return SizeVariable
	case ClassString:
		if t.Variable {
			return SizeVariable
		}
		return t.Size
	case ClassEnum:
		return t.Base.ItemSize()
	case ClassCompound:
		total := 0
		for _, f := range t.Fields {
			s := f.Type.ItemSize()
			if s == SizeVariable {
				return SizeVariable
			}
			total += s
		}
		return total
	case ClassArray:
		s := t.Base.ItemSize()
		if s == SizeVariable {
			return SizeVariable
		}
		for _, d := range t.Dims {
			s *= d
		}
		return s
	default:
		return t.Size
	}
}

// Equal reports whether two types describe the same element type.
func (t *Type) Equal(o *Type) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Class != o.Class {
		return false
	}
	switch t.Class {
	case ClassInteger:
		return t.Size == o.Size && t.Signed == o.Signed && t.Order == o.Order
	case ClassFloat:
		return t.Size == o.Size && t.Order == o.Order
	case ClassString:
		return t.Variable == o.Variable && t.Charset == o.Charset &&
			(t.Variable || t.Size == o.Size)
	case ClassOpaque:
		return t.Size == o.Size
	case ClassReference:
		return t.Flavor == o.Flavor
	case ClassVLen:
		return t.Base.Equal(o.Base)
	case ClassEnum:
		if !t.Base.Equal(o.Base) || len(t.Mapping) != len(o.Mapping) {
			return false
		}
		for name, v := range t.Mapping {
			ov, ok := o.Mapping[name]
			if !ok || ov != v {
				return false
			}
		}
		return true
	case ClassArray:
		if !t.Base.Equal(o.Base) || len(t.Dims) != len(o.Dims) {
			return false
		}
		for i, d := range t.Dims {
			if o.Dims[i] != d {
				return false
			}
		}
		return true
	case ClassCompound:
		if len(t.Fields) != len(o.Fields) {
			return false
		}
		for i, f := range t.Fields {
			if f.Name != o.Fields[i].Name || !f.Type.Equal(o.Fields[i].Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ObjectRef and RegionRef are the native markers for HDF5 reference values.
// On the wire references travel as variable-length strings.
type (
	ObjectRef string
	RegionRef string
)

var (
	objectRefType = reflect.TypeOf(ObjectRef(""))
	regionRefType = reflect.TypeOf(RegionRef(""))
)

// GoType returns the Go reflect.Type that corresponds to t.
func GoType(t *Type) (reflect.Type, error) {
	if t == nil {
		return nil, fmt.Errorf("nil type")
	}

	switch t.Class {
	case ClassInteger:
		return goTypeInteger(t)
	case ClassFloat:
		switch t.Size {
		case 4:
			return reflect.TypeOf(float32(0)), nil
		case 8:
			return reflect.TypeOf(float64(0)), nil
		default:
			return nil, fmt.Errorf("unsupported float size: %d", t.Size)
		}
	case ClassString:
		return reflect.TypeOf(""), nil
	case ClassOpaque:
		return reflect.TypeOf([]byte{}), nil
	case ClassReference:
		if t.Flavor == RefRegion {
			return regionRefType, nil
		}
		return objectRefType, nil
	case ClassEnum:
		if t.IsBool() {
			return reflect.TypeOf(false), nil
		}
		return goTypeInteger(t.Base)
	case ClassVLen:
		elem, err := GoType(t.Base)
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(elem), nil
	case ClassArray:
		elem, err := GoType(t.Base)
		if err != nil {
			return nil, err
		}
		result := elem
		for i := len(t.Dims) - 1; i >= 0; i-- {
			result = reflect.ArrayOf(t.Dims[i], result)
		}
		return result, nil
	case ClassCompound:
		if len(t.Fields) == 0 {
			return nil, fmt.Errorf("compound type has no fields")
		}
		fields := make([]reflect.StructField, len(t.Fields))
		for i, f := range t.Fields {
			ft, err := GoType(f.Type)
			if err != nil {
				return nil, fmt.Errorf("compound field %q: %w", f.Name, err)
			}
			fields[i] = reflect.StructField{
				Name: exportName(f.Name),
				Type: ft,
				Tag:  reflect.StructTag(fmt.Sprintf(`hsds:%q`, f.Name)),
			}
		}
		return reflect.StructOf(fields), nil
	default:
		return nil, fmt.Errorf("unsupported type class: %s", t.Class)
	}
}

func goTypeInteger(t *Type) (reflect.Type, error) {
	if t == nil {
		return nil, fmt.Errorf("nil integer base")
	}
	switch t.Size {
	case 1:
		if t.Signed {
			return reflect.TypeOf(int8(0)), nil
		}
		return reflect.TypeOf(uint8(0)), nil
	case 2:
		if t.Signed {
			return reflect.TypeOf(int16(0)), nil
		}
		return reflect.TypeOf(uint16(0)), nil
	case 4:
		if t.Signed {
			return reflect.TypeOf(int32(0)), nil
		}
		return reflect.TypeOf(uint32(0)), nil
	case 8:
		if t.Signed {
			return reflect.TypeOf(int64(0)), nil
		}
		return reflect.TypeOf(uint64(0)), nil
	default:
		return nil, fmt.Errorf("unsupported integer size: %d", t.Size)
	}
}

// exportName converts a field name to a valid exported Go field name.
func exportName(name string) string {
	if len(name) == 0 {
		return "Field"
	}

	runes := []rune(name)

	if runes[0] >= 'a' && runes[0] <= 'z' {
		runes[0] = runes[0] - 'a' + 'A'
	}

	for i := range runes {
		r := runes[i]
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_') {
			runes[i] = '_'
		}
	}

	return string(runes)
}

// FromGoType creates a Type from a Go type. Numeric types map to their
// little-endian wire equivalents; strings map to variable-length UTF-8;
// bool maps to the canonical boolean enum.
func FromGoType(t reflect.Type) (*Type, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t {
	case objectRefType:
		return NewReference(RefObject), nil
	case regionRefType:
		return NewReference(RefRegion), nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return NewBool(), nil
	case reflect.Int8:
		return NewInteger(1, true, OrderLE), nil
	case reflect.Int16:
		return NewInteger(2, true, OrderLE), nil
	case reflect.Int32:
		return NewInteger(4, true, OrderLE), nil
	case reflect.Int64, reflect.Int:
		return NewInteger(8, true, OrderLE), nil
	case reflect.Uint8:
		return NewInteger(1, false, OrderLE), nil
	case reflect.Uint16:
		return NewInteger(2, false, OrderLE), nil
	case reflect.Uint32:
		return NewInteger(4, false, OrderLE), nil
	case reflect.Uint64, reflect.Uint:
		return NewInteger(8, false, OrderLE), nil
	case reflect.Float32:
		return NewFloat(4, OrderLE), nil
	case reflect.Float64:
		return NewFloat(8, OrderLE), nil
	case reflect.String:
		return NewVarString(CharsetUTF8), nil
	case reflect.Slice:
		base, err := FromGoType(t.Elem())
		if err != nil {
			return nil, err
		}
		return NewVLen(base), nil
	case reflect.Array:
		dims := []int{t.Len()}
		elem := t.Elem()
		for elem.Kind() == reflect.Array {
			dims = append(dims, elem.Len())
			elem = elem.Elem()
		}
		base, err := FromGoType(elem)
		if err != nil {
			return nil, err
		}
		return NewArray(base, dims), nil
	case reflect.Struct:
		if t.NumField() == 0 {
			return nil, fmt.Errorf("compound type requires at least one field")
		}
		fields := make([]Field, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			ft, err := FromGoType(sf.Type)
			if err != nil {
				return nil, fmt.Errorf("struct field %q: %w", sf.Name, err)
			}
			name := sf.Name
			if tag, ok := sf.Tag.Lookup("hsds"); ok && tag != "" {
				name = tag
			}
			fields[i] = Field{Name: name, Type: ft}
		}
		return NewCompound(fields), nil
	default:
		return nil, fmt.Errorf("unsupported Go type: %v", t)
	}
}
