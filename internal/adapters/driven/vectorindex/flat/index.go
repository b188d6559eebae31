// Package flat provides a pure-Go, brute-force VectorIndex implementation.
//
// It is the cgo-free successor to the teacher's HNSWlib binding: rather
// than approximate nearest-neighbour search over a native library, it
// scans every stored vector and ranks by inner product. For the vector
// counts a single document's chunk set produces (hundreds, not millions)
// an exact linear scan is fast enough that the approximation HNSWlib
// would buy isn't worth a cgo dependency this module can't build without
// a vendored native library tree.
package flat

import (
	"context"
	"encoding/binary"
	"math"
	"sort"
	"sync"

	"github.com/relaylabs/pdfqa-server/internal/core/ports/driven"
)

// Index is an in-memory, exact nearest-neighbour VectorIndex over
// normalized vectors, ranked by inner product (equivalent to cosine
// similarity when inputs are unit-normalized).
type Index struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

var _ driven.VectorIndex = (*Index)(nil)

// New creates an empty flat vector index.
func New() *Index {
	return &Index{vectors: make(map[string][]float32)}
}

// Add inserts a normalized copy of the vector for the given chunk ID,
// so Search can compare by plain inner product.
func (idx *Index) Add(_ context.Context, chunkID string, embedding []float32) error {
	normalized := normalize(embedding)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.vectors[chunkID] = normalized
	return nil
}

// Delete removes a vector from the index.
func (idx *Index) Delete(_ context.Context, chunkID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.vectors, chunkID)
	return nil
}

// Search finds the k nearest neighbours to the query vector by cosine
// similarity, returned in descending-score order.
func (idx *Index) Search(_ context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	q := normalize(query)

	idx.mu.RLock()
	hits := make([]driven.VectorHit, 0, len(idx.vectors))
	for chunkID, vec := range idx.vectors {
		hits = append(hits, driven.VectorHit{
			ChunkID:    chunkID,
			Similarity: innerProduct(q, vec),
		})
	}
	idx.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })

	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Close releases resources. The in-memory index holds none.
func (idx *Index) Close() error { return nil }

// Len reports the number of vectors currently stored.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return append([]float32(nil), v...)
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func innerProduct(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// EncodeVector serializes a []float32 to bytes for on-disk storage,
// using the same little-endian IEEE-754 layout as the teacher's SQLite
// store.
func EncodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector deserializes bytes produced by EncodeVector back into a
// []float32.
func DecodeVector(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v
}
