package dtype

import (
	"encoding/json"
	"fmt"
)

// Encode converts a native Type to its JSON descriptor form.
func Encode(t *Type) (*TypeItem, error) {
	if t == nil {
		return nil, fmt.Errorf("nil type")
	}

	switch t.Class {
	case ClassInteger:
		name, err := predefinedName(t)
		if err != nil {
			return nil, err
		}
		return &TypeItem{Class: classInteger, Base: &BaseItem{Name: name}}, nil

	case ClassFloat:
		name, err := predefinedName(t)
		if err != nil {
			return nil, err
		}
		return &TypeItem{Class: classFloat, Base: &BaseItem{Name: name}}, nil

	case ClassString:
		item := &TypeItem{Class: classString, CharSet: charsetName(t.Charset)}
		if t.Variable {
			item.Length = variableSize()
			item.StrPad = padNullTerm
		} else {
			if t.Size <= 0 {
				return nil, fmt.Errorf("invalid fixed string length: %d", t.Size)
			}
			item.Length = fixedSize(t.Size)
			item.StrPad = padNullPad
		}
		return item, nil

	case ClassOpaque:
		if t.Size <= 0 {
			return nil, fmt.Errorf("invalid opaque size: %d", t.Size)
		}
		return &TypeItem{Class: classOpaque, Size: fixedSize(t.Size)}, nil

	case ClassReference:
		name := refObject
		if t.Flavor == RefRegion {
			name = refRegion
		}
		return &TypeItem{Class: classReference, Base: &BaseItem{Name: name}}, nil

	case ClassVLen:
		base, err := encodeBase(t.Base)
		if err != nil {
			return nil, fmt.Errorf("vlen base: %w", err)
		}
		return &TypeItem{Class: classVLen, Base: base, Size: variableSize()}, nil

	case ClassEnum:
		if t.Base == nil || t.Base.Class != ClassInteger {
			return nil, fmt.Errorf("enum base must be an integer type")
		}
		if len(t.Mapping) == 0 {
			return nil, fmt.Errorf("enum type requires a mapping")
		}
		base, err := encodeBase(t.Base)
		if err != nil {
			return nil, fmt.Errorf("enum base: %w", err)
		}
		mapping := make(map[string]int64, len(t.Mapping))
		for name, v := range t.Mapping {
			mapping[name] = v
		}
		return &TypeItem{Class: classEnum, Base: base, Mapping: mapping}, nil

	case ClassArray:
		if t.Base == nil || len(t.Dims) == 0 {
			return nil, fmt.Errorf("array type requires a base and dims")
		}
		if t.Base.Class == ClassArray {
			return nil, fmt.Errorf("array base must differ from the array type")
		}
		for _, d := range t.Dims {
			if d <= 0 {
				return nil, fmt.Errorf("invalid array dimension: %d", d)
			}
		}
		base, err := encodeBase(t.Base)
		if err != nil {
			return nil, fmt.Errorf("array base: %w", err)
		}
		dims := make([]int, len(t.Dims))
		copy(dims, t.Dims)
		return &TypeItem{Class: classArray, Base: base, Dims: dims}, nil

	case ClassCompound:
		if len(t.Fields) == 0 {
			return nil, fmt.Errorf("compound type requires at least one field")
		}
		fields := make([]FieldItem, len(t.Fields))
		seen := make(map[string]bool, len(t.Fields))
		for i, f := range t.Fields {
			if !isASCII(f.Name) {
				return nil, fmt.Errorf("compound field name %q is not ASCII", f.Name)
			}
			if seen[f.Name] {
				return nil, fmt.Errorf("duplicate compound field name %q", f.Name)
			}
			seen[f.Name] = true
			base, err := encodeBase(f.Type)
			if err != nil {
				return nil, fmt.Errorf("compound field %q: %w", f.Name, err)
			}
			fields[i] = FieldItem{Name: f.Name, Type: *base}
		}
		return &TypeItem{Class: classCompound, Fields: fields}, nil

	default:
		return nil, fmt.Errorf("unsupported type class: %s", t.Class)
	}
}

// EncodeJSON renders t as a JSON descriptor body.
func EncodeJSON(t *Type) ([]byte, error) {
	item, err := Encode(t)
	if err != nil {
		return nil, err
	}
	return json.Marshal(item)
}

// encodeBase renders a nested base or field type, preferring the compact
// predefined-name form for plain integers and floats.
func encodeBase(t *Type) (*BaseItem, error) {
	if t == nil {
		return nil, fmt.Errorf("nil base type")
	}
	if t.Class == ClassInteger || t.Class == ClassFloat {
		name, err := predefinedName(t)
		if err != nil {
			return nil, err
		}
		return &BaseItem{Name: name}, nil
	}
	item, err := Encode(t)
	if err != nil {
		return nil, err
	}
	return &BaseItem{Item: item}, nil
}

// predefinedName returns the H5T_STD_* / H5T_IEEE_* name for a numeric type.
func predefinedName(t *Type) (string, error) {
	suffix := "LE"
	if t.Order == OrderBE {
		suffix = "BE"
	}
	switch t.Class {
	case ClassInteger:
		switch t.Size {
		case 1, 2, 4, 8:
		default:
			return "", fmt.Errorf("unsupported integer size: %d", t.Size)
		}
		kind := "U"
		if t.Signed {
			kind = "I"
		}
		return fmt.Sprintf("H5T_STD_%s%d%s", kind, t.Size*8, suffix), nil
	case ClassFloat:
		switch t.Size {
		case 4, 8:
		default:
			return "", fmt.Errorf("unsupported float size: %d", t.Size)
		}
		return fmt.Sprintf("H5T_IEEE_F%d%s", t.Size*8, suffix), nil
	default:
		return "", fmt.Errorf("no predefined name for class %s", t.Class)
	}
}

func charsetName(cs Charset) string {
	if cs == CharsetUTF8 {
		return csetUTF8
	}
	return csetASCII
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}
