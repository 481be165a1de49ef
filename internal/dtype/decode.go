package dtype

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Decode converts a JSON descriptor to a native Type. Descriptors missing
// a required key for their class, or naming an unknown class, fail with
// ErrMalformed.
func Decode(item *TypeItem) (*Type, error) {
	if item == nil {
		return nil, fmt.Errorf("%w: nil descriptor", ErrMalformed)
	}

	switch item.Class {
	case classInteger, classFloat:
		if item.Base == nil || item.Base.Name == "" {
			return nil, fmt.Errorf("%w: %s requires a base", ErrMalformed, item.Class)
		}
		t, err := parsePredefined(item.Base.Name)
		if err != nil {
			return nil, err
		}
		if t.Class.String() != item.Class {
			return nil, fmt.Errorf("%w: base %q does not match class %s",
				ErrMalformed, item.Base.Name, item.Class)
		}
		return t, nil

	case classString:
		if item.Length == nil {
			return nil, fmt.Errorf("%w: string requires a length", ErrMalformed)
		}
		if item.CharSet == "" {
			return nil, fmt.Errorf("%w: string requires a charSet", ErrMalformed)
		}
		cs, err := parseCharset(item.CharSet)
		if err != nil {
			return nil, err
		}
		if item.Length.Variable {
			return NewVarString(cs), nil
		}
		if item.Length.N <= 0 {
			return nil, fmt.Errorf("%w: invalid string length %d", ErrMalformed, item.Length.N)
		}
		return NewFixedString(item.Length.N, cs), nil

	case classOpaque:
		if item.Size == nil || item.Size.Variable {
			return nil, fmt.Errorf("%w: opaque requires a size", ErrMalformed)
		}
		if item.Size.N <= 0 {
			return nil, fmt.Errorf("%w: invalid opaque size %d", ErrMalformed, item.Size.N)
		}
		return NewOpaque(item.Size.N), nil

	case classReference:
		if item.Base == nil || item.Base.Name == "" {
			return nil, fmt.Errorf("%w: reference requires a base", ErrMalformed)
		}
		switch item.Base.Name {
		case refObject:
			return NewReference(RefObject), nil
		case refRegion:
			return NewReference(RefRegion), nil
		default:
			return nil, fmt.Errorf("%w: unknown reference base %q", ErrMalformed, item.Base.Name)
		}

	case classVLen:
		base, err := decodeBase(item.Base)
		if err != nil {
			return nil, fmt.Errorf("%w: vlen requires a base", ErrMalformed)
		}
		return NewVLen(base), nil

	case classEnum:
		base, err := decodeBase(item.Base)
		if err != nil {
			return nil, fmt.Errorf("%w: enum requires a base", ErrMalformed)
		}
		if base.Class != ClassInteger {
			return nil, fmt.Errorf("%w: enum base must be an integer", ErrMalformed)
		}
		if len(item.Mapping) == 0 {
			return nil, fmt.Errorf("%w: enum requires a mapping", ErrMalformed)
		}
		mapping := make(map[string]int64, len(item.Mapping))
		for name, v := range item.Mapping {
			mapping[name] = v
		}
		return NewEnum(base, mapping), nil

	case classArray:
		base, err := decodeBase(item.Base)
		if err != nil {
			return nil, fmt.Errorf("%w: array requires a base", ErrMalformed)
		}
		if len(item.Dims) == 0 {
			return nil, fmt.Errorf("%w: array requires dims", ErrMalformed)
		}
		dims := make([]int, len(item.Dims))
		for i, d := range item.Dims {
			if d <= 0 {
				return nil, fmt.Errorf("%w: invalid array dimension %d", ErrMalformed, d)
			}
			dims[i] = d
		}
		return NewArray(base, dims), nil

	case classCompound:
		if len(item.Fields) == 0 {
			return nil, fmt.Errorf("%w: compound requires fields", ErrMalformed)
		}
		fields := make([]Field, len(item.Fields))
		seen := make(map[string]bool, len(item.Fields))
		for i, f := range item.Fields {
			if f.Name == "" {
				return nil, fmt.Errorf("%w: compound field missing name", ErrMalformed)
			}
			if seen[f.Name] {
				return nil, fmt.Errorf("%w: duplicate compound field %q", ErrMalformed, f.Name)
			}
			seen[f.Name] = true
			ft, err := decodeBase(&f.Type)
			if err != nil {
				return nil, fmt.Errorf("compound field %q: %w", f.Name, err)
			}
			fields[i] = Field{Name: f.Name, Type: ft}
		}
		return NewCompound(fields), nil

	case "":
		return nil, fmt.Errorf("%w: missing class", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: unknown class %q", ErrMalformed, item.Class)
	}
}

// DecodeJSON parses a JSON descriptor body. The body may be a full
// descriptor object or a bare predefined type name.
func DecodeJSON(raw []byte) (*Type, error) {
	var b BaseItem
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return decodeBase(&b)
}

func decodeBase(b *BaseItem) (*Type, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: missing base", ErrMalformed)
	}
	if b.Item != nil {
		return Decode(b.Item)
	}
	if b.Name == "" {
		return nil, fmt.Errorf("%w: missing base", ErrMalformed)
	}
	return parsePredefined(b.Name)
}

// parsePredefined resolves an H5T_STD_* / H5T_IEEE_* name.
func parsePredefined(name string) (*Type, error) {
	switch name {
	case refObject:
		return NewReference(RefObject), nil
	case refRegion:
		return NewReference(RefRegion), nil
	}

	order := OrderLE
	body := name
	switch {
	case strings.HasSuffix(name, "LE"):
		body = name[:len(name)-2]
	case strings.HasSuffix(name, "BE"):
		order = OrderBE
		body = name[:len(name)-2]
	default:
		return nil, fmt.Errorf("%w: unknown predefined type %q", ErrMalformed, name)
	}

	switch {
	case strings.HasPrefix(body, "H5T_STD_I"):
		return parsePredefinedInt(name, body[len("H5T_STD_I"):], true, order)
	case strings.HasPrefix(body, "H5T_STD_U"):
		return parsePredefinedInt(name, body[len("H5T_STD_U"):], false, order)
	case strings.HasPrefix(body, "H5T_IEEE_F"):
		bits, err := strconv.Atoi(body[len("H5T_IEEE_F"):])
		if err != nil || (bits != 32 && bits != 64) {
			return nil, fmt.Errorf("%w: unknown predefined type %q", ErrMalformed, name)
		}
		return NewFloat(bits/8, order), nil
	default:
		return nil, fmt.Errorf("%w: unknown predefined type %q", ErrMalformed, name)
	}
}

func parsePredefinedInt(name, bitsStr string, signed bool, order Order) (*Type, error) {
	bits, err := strconv.Atoi(bitsStr)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown predefined type %q", ErrMalformed, name)
	}
	switch bits {
	case 8, 16, 32, 64:
		return NewInteger(bits/8, signed, order), nil
	default:
		return nil, fmt.Errorf("%w: unknown predefined type %q", ErrMalformed, name)
	}
}

func parseCharset(name string) (Charset, error) {
	switch name {
	case csetASCII:
		return CharsetASCII, nil
	case csetUTF8:
		return CharsetUTF8, nil
	default:
		return 0, fmt.Errorf("%w: unknown charSet %q", ErrMalformed, name)
	}
}
