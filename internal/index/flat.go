// Package index provides the exact nearest-neighbour index over catalog embeddings
// and its on-disk artifacts.
package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
)

// DefaultK is the number of hits returned when the caller does not ask for a size.
const DefaultK = 10

const (
	magic   = "SHLX"
	version = uint32(1)

	maxDimensions = 1 << 16
	maxRows       = 1 << 24
	maxIDLength   = 1 << 10
)

// Hit is a single search result: the row position in build order and its squared L2 distance.
type Hit struct {
	Position int
	Distance float32
}

// Flat is an exhaustive L2 index. Every row keeps the identifier of the record it was built from.
type Flat struct {
	mu      sync.RWMutex
	dim     int
	ids     []string
	vectors [][]float32
}

// NewFlat creates an empty index for vectors of the given dimension.
func NewFlat(dim int) (*Flat, error) {
	if dim <= 0 || dim > maxDimensions {
		return nil, fmt.Errorf("invalid dimension %d", dim)
	}
	return &Flat{dim: dim}, nil
}

// Add appends rows. ids and vectors must be aligned.
func (f *Flat) Add(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for i, vec := range vectors {
		if len(vec) != f.dim {
			return fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(vec), f.dim)
		}
	}

	for i, vec := range vectors {
		row := make([]float32, f.dim)
		copy(row, vec)
		f.ids = append(f.ids, ids[i])
		f.vectors = append(f.vectors, row)
	}

	return nil
}

// Search returns up to k rows closest to query, nearest first. Equal distances keep build order.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dim)
	}

	if k <= 0 {
		k = DefaultK
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	hits := make([]Hit, len(f.vectors))
	for i, vec := range f.vectors {
		hits[i] = Hit{Position: i, Distance: squaredL2(query, vec)}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })

	if k < len(hits) {
		hits = hits[:k]
	}

	return hits, nil
}

// Len returns the number of rows.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}

// Dim returns the vector dimension.
func (f *Flat) Dim() int {
	return f.dim
}

// IDs returns a copy of the row identifiers in build order.
func (f *Flat) IDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.ids))
	copy(out, f.ids)
	return out
}

// WriteTo serialises the index. Format: magic, version, dim, n, then per row:
// id length, id bytes, dim little-endian float32 values.
func (f *Flat) WriteTo(w io.Writer) (int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	bw := bufio.NewWriter(w)
	cw := &countingWriter{w: bw}

	if _, err := cw.Write([]byte(magic)); err != nil {
		return cw.n, fmt.Errorf("write magic: %w", err)
	}
	for _, v := range []uint32{version, uint32(f.dim), uint32(len(f.ids))} {
		if err := binary.Write(cw, binary.LittleEndian, v); err != nil {
			return cw.n, fmt.Errorf("write header: %w", err)
		}
	}

	for i, id := range f.ids {
		if err := binary.Write(cw, binary.LittleEndian, uint32(len(id))); err != nil {
			return cw.n, fmt.Errorf("write id len: %w", err)
		}
		if _, err := io.WriteString(cw, id); err != nil {
			return cw.n, fmt.Errorf("write id: %w", err)
		}
		if _, err := cw.Write(float32SliceToBytes(f.vectors[i])); err != nil {
			return cw.n, fmt.Errorf("write vector: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return cw.n, fmt.Errorf("flush index: %w", err)
	}

	return cw.n, nil
}

// ReadFlat decodes an index written by WriteTo. Malformed input wraps ErrCorrupt.
func ReadFlat(r io.Reader) (*Flat, error) {
	br := bufio.NewReader(r)

	head := make([]byte, len(magic))
	if _, err := io.ReadFull(br, head); err != nil {
		return nil, corrupt("read magic", err)
	}
	if string(head) != magic {
		return nil, corrupt("bad magic", fmt.Errorf("%q", head))
	}

	var ver, dim, n uint32
	for _, v := range []*uint32{&ver, &dim, &n} {
		if err := binary.Read(br, binary.LittleEndian, v); err != nil {
			return nil, corrupt("read header", err)
		}
	}
	if ver != version {
		return nil, corrupt("unsupported version", fmt.Errorf("%d", ver))
	}
	if n > maxRows {
		return nil, corrupt("row count", fmt.Errorf("%d exceeds %d", n, maxRows))
	}

	flat, err := NewFlat(int(dim))
	if err != nil {
		return nil, corrupt("header", err)
	}

	flat.ids = make([]string, 0, n)
	flat.vectors = make([][]float32, 0, n)
	buf := make([]byte, flat.dim*4)
	for i := uint32(0); i < n; i++ {
		var idLen uint32
		if err := binary.Read(br, binary.LittleEndian, &idLen); err != nil {
			return nil, corrupt("read id len", err)
		}
		if idLen > maxIDLength {
			return nil, corrupt("id length", fmt.Errorf("%d exceeds %d", idLen, maxIDLength))
		}
		id := make([]byte, idLen)
		if _, err := io.ReadFull(br, id); err != nil {
			return nil, corrupt("read id", err)
		}
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, corrupt("read vector", err)
		}
		flat.ids = append(flat.ids, string(id))
		flat.vectors = append(flat.vectors, bytesToFloat32Slice(buf))
	}

	if _, err := br.ReadByte(); err == nil {
		return nil, corrupt("trailing data", errors.New("unexpected bytes after last row"))
	} else if !errors.Is(err, io.EOF) {
		return nil, corrupt("read trailer", err)
	}

	return flat, nil
}

func corrupt(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCorrupt, what, err)
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
