package searcher

import (
	"context"
	"math"

	"github.com/dshills/livecontext-mcp/internal/vectorstore"
	"github.com/dshills/livecontext-mcp/pkg/types"
)

const (
	powerIterations = 200
	powerTolerance  = 1e-10
)

type projection struct {
	version uint64
	points  []types.ProjectionPoint
}

// GetProjection places every embedded chunk on the plane spanned by the
// first two principal components of the embedding space. The result is
// deterministic and cached until a new snapshot is published.
func (s *Searcher) GetProjection(ctx context.Context) ([]types.ProjectionPoint, error) {
	snap := s.index.Snapshot()
	if p := s.projection.Load(); p != nil && p.version == snap.Version() {
		return append([]types.ProjectionPoint(nil), p.points...), nil
	}

	points, err := project(ctx, snap)
	if err != nil {
		return nil, &QueryError{Op: "projection", Err: err}
	}
	s.projection.Store(&projection{version: snap.Version(), points: points})
	return append([]types.ProjectionPoint(nil), points...), nil
}

// project runs PCA by power iteration with deflation over the records whose
// vectors have the snapshot's dominant dimension. Vectors left from another
// model are skipped.
func project(ctx context.Context, snap *vectorstore.Snapshot) ([]types.ProjectionPoint, error) {
	dim := snap.Dimension()
	var records []*vectorstore.Record
	for _, r := range snap.Records() {
		if r.Embedded() && len(r.Vector) == dim {
			records = append(records, r)
		}
	}

	points := make([]types.ProjectionPoint, len(records))
	for i, r := range records {
		points[i] = types.ProjectionPoint{ID: r.Chunk.ID, Chunk: r.Chunk}
	}
	if len(records) < 2 {
		return points, nil
	}

	// centered data matrix, one row per record
	mean := make([]float64, dim)
	for _, r := range records {
		for j, v := range r.Vector {
			mean[j] += float64(v)
		}
	}
	for j := range mean {
		mean[j] /= float64(len(records))
	}
	rows := make([][]float64, len(records))
	for i, r := range records {
		row := make([]float64, dim)
		for j, v := range r.Vector {
			row[j] = float64(v) - mean[j]
		}
		rows[i] = row
	}

	for axis := range 2 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pc := principalComponent(rows, dim)
		if pc == nil {
			break // remaining variance is zero
		}
		for i, row := range rows {
			score := dotf(row, pc)
			if axis == 0 {
				points[i].X = score
			} else {
				points[i].Y = score
			}
			// deflate: remove the component from the data
			for j := range row {
				row[j] -= score * pc[j]
			}
		}
	}
	return points, nil
}

// principalComponent returns the dominant eigenvector of rowsᵀ·rows, or nil
// when the data has no variance
func principalComponent(rows [][]float64, dim int) []float64 {
	v := make([]float64, dim)
	for j := range v {
		v[j] = 1 / math.Sqrt(float64(j+1))
	}
	if normalize(v) == 0 {
		return nil
	}

	next := make([]float64, dim)
	for range powerIterations {
		clear(next)
		for _, row := range rows {
			s := dotf(row, v)
			for j, x := range row {
				next[j] += s * x
			}
		}
		if normalize(next) < powerTolerance {
			return nil
		}

		delta := 0.0
		for j := range v {
			delta += math.Abs(next[j] - v[j])
		}
		v, next = next, v
		if delta < powerTolerance {
			break
		}
	}

	// fix the sign so the largest coordinate is positive
	big := 0
	for j := range v {
		if math.Abs(v[j]) > math.Abs(v[big]) {
			big = j
		}
	}
	if v[big] < 0 {
		for j := range v {
			v[j] = -v[j]
		}
	}
	return v
}

func dotf(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// normalize scales v to unit length in place and returns its prior norm
func normalize(v []float64) float64 {
	n := math.Sqrt(dotf(v, v))
	if n == 0 {
		return 0
	}
	for i := range v {
		v[i] /= n
	}
	return n
}
