// Package dtype provides HSDS datatype handling and Go type conversion.
//
// This package bridges the gap between the server's JSON type descriptors
// and Go's type system, providing functionality to:
//
//   - Decode JSON type descriptors to a native [Type] representation
//   - Encode a [Type] back to its JSON descriptor form
//   - Determine the Go type corresponding to a [Type]
//   - Convert raw wire bytes to Go values and back
//
// # Type Mapping Strategy
//
// Server type classes are mapped to Go types as follows:
//
//	Class             | Go Type
//	------------------|------------------
//	Integer           | int8/16/32/64 or uint8/16/32/64 based on size and signedness
//	Float             | float32 (4 bytes) or float64 (8 bytes)
//	String            | string (fixed or variable length)
//	Compound          | struct or map[string]interface{}
//	Array             | nested Go array of element type
//	VLen              | slice of element type
//	Enum              | underlying integer type, or bool for the boolean enum
//	Opaque            | []byte
//	Reference         | ObjectRef or RegionRef
//
// The boolean enum (an 8-bit unsigned enum mapping FALSE to 0 and TRUE
// to 1) is the single special case in both directions: [FromGoType] maps
// Go bool to it, and [GoType] maps it back to bool.
//
// # Descriptors
//
// Use [DecodeJSON] to parse a JSON type descriptor, which may be either a
// predefined name such as "H5T_STD_I32LE" or a full object form:
//
//	t, err := dtype.DecodeJSON(raw)
//
// Use [Encode] or [EncodeJSON] for the reverse direction. These always
// produce the object form with predefined base names where one exists.
//
// # Data Conversion
//
// Use [Convert] to convert raw wire bytes to Go values:
//
//	var values []float64
//	err := dtype.Convert(t, rawBytes, numElements, &values)
//
// Use [Marshal] to convert Go values to wire bytes:
//
//	data, err := dtype.Marshal(t, []int32{1, 2, 3})
//
// Fixed-size elements are packed with no padding; variable-length values
// carry a 4-byte little-endian prefix. See [Convert] for the details.
package dtype
