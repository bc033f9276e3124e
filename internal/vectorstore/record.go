package vectorstore

import (
	"math"

	"github.com/dshills/livecontext-mcp/pkg/types"
)

// Record pairs a chunk with its embedding. A record without a vector is
// pending: it is visible to type and domain filters but not to Search.
type Record struct {
	Chunk  *types.CodeChunk
	Vector []float32
	norm   float64
}

// NewRecord creates a record and caches the vector norm
func NewRecord(chunk *types.CodeChunk, vector []float32) *Record {
	return &Record{Chunk: chunk, Vector: vector, norm: Norm(vector)}
}

// Embedded reports whether the record has a vector
func (r *Record) Embedded() bool {
	return len(r.Vector) > 0
}

// Norm returns the Euclidean length of v
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of a and b, or 0 when the dimensions
// differ or either vector is zero
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot(a, b) / (na * nb)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
