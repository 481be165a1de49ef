package hsds

import "encoding/json"

// DatasetMeta is the metadata a transport resolves for a dataset: identity,
// dataspace, the raw JSON type descriptor, chunk layout (nil when the
// dataset is not chunked) and filter pipeline.
type DatasetMeta struct {
	ID      string
	Kind    ObjectKind
	Shape   Shape
	Type    json.RawMessage
	Layout  []int
	Filters FilterPipeline
}

// Transport moves metadata and element bytes between the client core and a
// server. Implementations own endpoint handling, authentication and
// retries; the core treats every transport error as fatal for the
// operation that hit it.
//
// Fetch and Store carry a selection in the server's query form (empty for
// whole-dataset and rank-0 transfers); the body is the packed element
// representation. FetchPoints and StorePoints transfer explicit
// coordinates, one element per point in order.
type Transport interface {
	Describe(id string) (*DatasetMeta, error)
	Fetch(id, query string) ([]byte, error)
	Store(id, query string, body []byte) error
	FetchPoints(id string, points [][]int) ([]byte, error)
	StorePoints(id string, points [][]int, body []byte) error
	Resize(id string, dims []int) error
}
