package dtype

import (
	"encoding/json"
	"fmt"
)

// Wire names used by the JSON type descriptors.
const (
	classInteger   = "H5T_INTEGER"
	classFloat     = "H5T_FLOAT"
	classString    = "H5T_STRING"
	classOpaque    = "H5T_OPAQUE"
	classCompound  = "H5T_COMPOUND"
	classReference = "H5T_REFERENCE"
	classEnum      = "H5T_ENUM"
	classVLen      = "H5T_VLEN"
	classArray     = "H5T_ARRAY"

	csetASCII = "H5T_CSET_ASCII"
	csetUTF8  = "H5T_CSET_UTF8"

	padNullTerm = "H5T_STR_NULLTERM"
	padNullPad  = "H5T_STR_NULLPAD"

	variableMarker = "H5T_VARIABLE"

	refObject = "H5T_STD_REF_OBJ"
	refRegion = "H5T_STD_REF_DSETREG"
)

// TypeItem is the JSON type descriptor exchanged with the server.
// Nested bases and field types may be either a predefined type name
// ("H5T_STD_I32LE") or a full nested descriptor; BaseItem covers both.
type TypeItem struct {
	Class   string           `json:"class"`
	Base    *BaseItem        `json:"base,omitempty"`
	Length  *SizeValue       `json:"length,omitempty"`
	CharSet string           `json:"charSet,omitempty"`
	StrPad  string           `json:"strPad,omitempty"`
	Size    *SizeValue       `json:"size,omitempty"`
	Dims    []int            `json:"dims,omitempty"`
	Fields  []FieldItem      `json:"fields,omitempty"`
	Mapping map[string]int64 `json:"mapping,omitempty"`
}

// FieldItem is one member of a compound descriptor.
type FieldItem struct {
	Name string   `json:"name"`
	Type BaseItem `json:"type"`
}

// BaseItem is either a predefined type name or a nested descriptor.
// Exactly one of Name and Item is set.
type BaseItem struct {
	Name string
	Item *TypeItem
}

func (b BaseItem) MarshalJSON() ([]byte, error) {
	if b.Item != nil {
		return json.Marshal(b.Item)
	}
	return json.Marshal(b.Name)
}

func (b *BaseItem) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &b.Name)
	}
	b.Item = &TypeItem{}
	return json.Unmarshal(data, b.Item)
}

// SizeValue is either a byte count or the H5T_VARIABLE marker.
type SizeValue struct {
	N        int
	Variable bool
}

func fixedSize(n int) *SizeValue { return &SizeValue{N: n} }
func variableSize() *SizeValue   { return &SizeValue{Variable: true} }

func (s SizeValue) MarshalJSON() ([]byte, error) {
	if s.Variable {
		return json.Marshal(variableMarker)
	}
	return json.Marshal(s.N)
}

func (s *SizeValue) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var marker string
		if err := json.Unmarshal(data, &marker); err != nil {
			return err
		}
		if marker != variableMarker {
			return fmt.Errorf("%w: invalid length %q", ErrMalformed, marker)
		}
		s.Variable = true
		return nil
	}
	return json.Unmarshal(data, &s.N)
}
