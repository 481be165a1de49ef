// Package hsds provides a client core for HDF5-over-REST services:
// dataspace shapes, a NumPy-style selection algebra, chunk iteration, and
// dataset value transfer over a pluggable transport.
package hsds

import (
	"errors"
	"fmt"

	"github.com/rkm/go-hsds/internal/dtype"
)

// Common errors
var (
	ErrInvalidSelection = errors.New("invalid selection")
	ErrOutOfRange       = errors.New("index out of range")
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrUnsupported      = errors.New("unsupported feature")
	ErrStaleHandle      = errors.New("connection is closed")
	ErrNotFound         = errors.New("object not found")
)

// ErrMalformedType reports a malformed JSON type descriptor.
var ErrMalformedType = dtype.ErrMalformed

// FanoutError reports the first failure of a multi-target operation. Index
// identifies the failing target; Err is the underlying cause.
type FanoutError struct {
	Index int
	Err   error
}

func (e *FanoutError) Error() string {
	return fmt.Sprintf("target %d: %v", e.Index, e.Err)
}

func (e *FanoutError) Unwrap() error {
	return e.Err
}
