package hsds

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/qri-io/dataset/compression"
)

// Filter classes understood by the built-in pipeline.
const (
	FilterDeflate    = "H5Z_FILTER_DEFLATE"
	FilterShuffle    = "H5Z_FILTER_SHUFFLE"
	FilterFletcher32 = "H5Z_FILTER_FLETCHER32"
)

// FilterSpec is one entry of a dataset's creation-property filter list.
type FilterSpec struct {
	Class string `json:"class"`
	ID    int    `json:"id,omitempty"`
	Level int    `json:"level,omitempty"`
	Name  string `json:"name,omitempty"`
}

// FilterPipeline is the ordered filter list a dataset was created with.
// Encoding applied shuffle-then-compress order; decoding runs in reverse.
type FilterPipeline []FilterSpec

// ParseFilters parses the creationProperties filters list.
func ParseFilters(raw json.RawMessage) (FilterPipeline, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var p FilterPipeline
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parsing filter list: %w", err)
	}
	for _, f := range p {
		if f.Class == "" {
			return nil, fmt.Errorf("filter entry missing class")
		}
	}
	return p, nil
}

// Decode reverses the pipeline on fetched chunk bytes: filters run last to
// first. itemSize is the fixed element size, needed to unshuffle. Filter
// classes outside the built-in set are routed to the named decompressor
// registry; classes unknown there too fail with ErrUnsupported.
func (p FilterPipeline) Decode(data []byte, itemSize int) ([]byte, error) {
	for i := len(p) - 1; i >= 0; i-- {
		var err error
		switch p[i].Class {
		case FilterDeflate:
			data, err = inflate(data)
		case FilterShuffle:
			data, err = unshuffle(data, itemSize)
		case FilterFletcher32:
			data, err = checkFletcher32(data)
		default:
			data, err = namedDecompress(p[i], data)
		}
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", p[i].Class, err)
		}
	}
	return data, nil
}

// Encode applies the pipeline first to last, producing the stored chunk
// form. Only the built-in filter classes encode.
func (p FilterPipeline) Encode(data []byte, itemSize int) ([]byte, error) {
	for _, f := range p {
		var err error
		switch f.Class {
		case FilterDeflate:
			data, err = deflate(data, f.Level)
		case FilterShuffle:
			data = shuffle(data, itemSize)
		case FilterFletcher32:
			data = appendFletcher32(data)
		default:
			err = fmt.Errorf("%w: cannot encode filter %s", ErrUnsupported, f.Class)
		}
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

func inflate(input []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer r.Close()

	output, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("zlib decompress: %w", err)
	}
	return output, nil
}

func deflate(input []byte, level int) ([]byte, error) {
	if level < zlib.NoCompression || level > zlib.BestCompression {
		level = zlib.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(input); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// unshuffle gathers the grouped byte positions back into elements:
// shuffled input holds all byte 0s, then all byte 1s, and so on.
func unshuffle(input []byte, elemSize int) ([]byte, error) {
	if elemSize <= 1 {
		return input, nil
	}
	numElems := len(input) / elemSize
	if numElems*elemSize != len(input) {
		return nil, fmt.Errorf("data length %d not a multiple of element size %d", len(input), elemSize)
	}
	if numElems == 0 {
		return input, nil
	}

	output := make([]byte, len(input))
	for i := 0; i < numElems; i++ {
		for j := 0; j < elemSize; j++ {
			output[i*elemSize+j] = input[j*numElems+i]
		}
	}
	return output, nil
}

func shuffle(input []byte, elemSize int) []byte {
	if elemSize <= 1 {
		return input
	}
	numElems := len(input) / elemSize
	if numElems == 0 || numElems*elemSize != len(input) {
		return input
	}
	output := make([]byte, len(input))
	for i := 0; i < numElems; i++ {
		for j := 0; j < elemSize; j++ {
			output[j*numElems+i] = input[i*elemSize+j]
		}
	}
	return output
}

// checkFletcher32 verifies the trailing checksum and strips it.
func checkFletcher32(input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, fmt.Errorf("input too short for checksum")
	}
	data := input[:len(input)-4]
	stored := binary.LittleEndian.Uint32(input[len(input)-4:])
	computed := fletcher32(data)
	if stored != computed {
		return nil, fmt.Errorf("checksum mismatch (stored=0x%08x, computed=0x%08x)", stored, computed)
	}
	return data, nil
}

func appendFletcher32(data []byte) []byte {
	return binary.LittleEndian.AppendUint32(data, fletcher32(data))
}

// fletcher32 computes the Fletcher-32 checksum over 16-bit little-endian
// words, zero-padding an odd trailing byte.
func fletcher32(data []byte) uint32 {
	var sum1, sum2 uint32

	length := len(data)
	i := 0
	for ; i+1 < length; i += 2 {
		word := uint32(data[i]) | uint32(data[i+1])<<8
		sum1 = (sum1 + word) % 65535
		sum2 = (sum2 + sum1) % 65535
	}
	if i < length {
		word := uint32(data[i])
		sum1 = (sum1 + word) % 65535
		sum2 = (sum2 + sum1) % 65535
	}

	return (sum2 << 16) | sum1
}

// namedDecompress routes an unrecognized filter through the named
// decompressor registry, keyed by the filter's short name.
func namedDecompress(f FilterSpec, data []byte) ([]byte, error) {
	name := f.Name
	if name == "" {
		name = strings.ToLower(strings.TrimPrefix(f.Class, "H5Z_FILTER_"))
	}
	r, err := compression.Decompressor(name, io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: filter %s", ErrUnsupported, f.Class)
	}
	defer r.Close()
	return io.ReadAll(r)
}
