package hsds

import (
	"fmt"
	"sync"

	"github.com/rkm/go-hsds/internal/dtype"
)

// ObjectKind identifies a server object's kind, resolved once when the
// object is opened.
type ObjectKind uint8

const (
	KindGroup ObjectKind = iota
	KindDataset
	KindNamedDatatype
	KindSoftLink
	KindExternalLink
	KindHardLink
)

func (k ObjectKind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindDataset:
		return "dataset"
	case KindNamedDatatype:
		return "named datatype"
	case KindSoftLink:
		return "soft link"
	case KindExternalLink:
		return "external link"
	case KindHardLink:
		return "hard link"
	default:
		return "unknown"
	}
}

// ConnID is a handle into the connection registry. Objects hold the ID
// rather than the connection itself, so operations after Close fail with
// ErrStaleHandle instead of reaching a dead transport.
type ConnID uint64

var registry = struct {
	sync.RWMutex
	next  ConnID
	conns map[ConnID]*Conn
}{conns: make(map[ConnID]*Conn)}

// Conn is a registered connection to a server, bound to a Transport.
type Conn struct {
	id        ConnID
	transport Transport
}

// Connect registers a connection over the given transport.
func Connect(t Transport) *Conn {
	registry.Lock()
	defer registry.Unlock()
	registry.next++
	c := &Conn{id: registry.next, transport: t}
	registry.conns[c.id] = c
	return c
}

// ID returns the registry handle.
func (c *Conn) ID() ConnID { return c.id }

// Close removes the connection from the registry. Handles that still
// reference it fail with ErrStaleHandle afterwards. Close is idempotent.
func (c *Conn) Close() {
	registry.Lock()
	defer registry.Unlock()
	delete(registry.conns, c.id)
}

// Closed reports whether the connection has been removed from the
// registry.
func (c *Conn) Closed() bool {
	registry.RLock()
	defer registry.RUnlock()
	_, ok := registry.conns[c.id]
	return !ok
}

// lookup resolves a handle to its live transport.
func lookup(id ConnID) (Transport, error) {
	registry.RLock()
	defer registry.RUnlock()
	c, ok := registry.conns[id]
	if !ok {
		return nil, ErrStaleHandle
	}
	return c.transport, nil
}

// OpenDataset resolves a dataset by ID and builds a handle over its
// metadata. The metadata is fetched once; the handle never refreshes it.
func (c *Conn) OpenDataset(id string) (*Dataset, error) {
	transport, err := lookup(c.id)
	if err != nil {
		return nil, err
	}
	meta, err := transport.Describe(id)
	if err != nil {
		return nil, fmt.Errorf("describing %q: %w", id, err)
	}
	if meta.Kind != KindDataset {
		return nil, fmt.Errorf("%w: %q is a %s, not a dataset", ErrNotFound, id, meta.Kind)
	}

	t, err := dtype.DecodeJSON(meta.Type)
	if err != nil {
		return nil, fmt.Errorf("dataset %q type: %w", id, err)
	}

	ds := &Dataset{
		id:      meta.ID,
		conn:    c.id,
		shape:   meta.Shape,
		typ:     t,
		layout:  meta.Layout,
		filters: meta.Filters,
	}
	return ds, nil
}
