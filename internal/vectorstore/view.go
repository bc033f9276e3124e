package vectorstore

import (
	"cmp"
	"math"
	"slices"
	"sort"

	"github.com/dshills/livecontext-mcp/pkg/types"
)

// view holds the maps shared by Store and Snapshot and implements every
// read operation over them
type view struct {
	files   map[string]*types.FileIndexEntry
	records map[string]*Record
}

func newView() view {
	return view{
		files:   make(map[string]*types.FileIndexEntry),
		records: make(map[string]*Record),
	}
}

// File returns the index entry for path
func (v *view) File(path string) (*types.FileIndexEntry, bool) {
	e, ok := v.files[path]
	return e, ok
}

// Files returns every file entry ordered by path
func (v *view) Files() []*types.FileIndexEntry {
	out := make([]*types.FileIndexEntry, 0, len(v.files))
	for _, e := range v.files {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return out
}

// FileCount returns the number of indexed files
func (v *view) FileCount() int {
	return len(v.files)
}

// Record returns the record for a chunk ID
func (v *view) Record(id string) (*Record, bool) {
	r, ok := v.records[id]
	return r, ok
}

// Chunk returns the chunk with the given ID
func (v *view) Chunk(id string) (*types.CodeChunk, bool) {
	r, ok := v.records[id]
	if !ok {
		return nil, false
	}
	return r.Chunk, true
}

// Chunks returns every chunk in (FilePath, StartLine, ID) order
func (v *view) Chunks() []*types.CodeChunk {
	return v.collect(nil)
}

// Records returns every record ordered by chunk ID
func (v *view) Records() []*Record {
	out := make([]*Record, 0, len(v.records))
	for _, r := range v.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Chunk.ID < out[j].Chunk.ID })
	return out
}

// Len returns the number of chunks
func (v *view) Len() int {
	return len(v.records)
}

// EmbeddedCount returns the number of chunks that have a vector
func (v *view) EmbeddedCount() int {
	n := 0
	for _, r := range v.records {
		if r.Embedded() {
			n++
		}
	}
	return n
}

// Dimension returns the vector length shared by most embedded records, or 0
// when nothing is embedded. Ties go to the longer vector.
func (v *view) Dimension() int {
	counts := make(map[int]int)
	for _, r := range v.records {
		if r.Embedded() {
			counts[len(r.Vector)]++
		}
	}
	best, bestCount := 0, 0
	for dim, n := range counts {
		if n > bestCount || (n == bestCount && dim > best) {
			best, bestCount = dim, n
		}
	}
	return best
}

// PendingIDs returns the IDs of chunks still waiting for a vector, sorted
func (v *view) PendingIDs() []string {
	var ids []string
	for id, r := range v.records {
		if !r.Embedded() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Search ranks embedded chunks by cosine similarity to q. Chunks rejected by
// filter or scoring below minSimilarity are dropped. Ties are broken by
// FilePath, Name and ID. k <= 0 returns every match.
func (v *view) Search(q []float32, k int, minSimilarity float64, filter Filter) []types.SearchResult {
	qnorm := Norm(q)
	if qnorm == 0 {
		return []types.SearchResult{}
	}

	results := make([]types.SearchResult, 0, min(len(v.records), max(k, 16)))
	for _, r := range v.records {
		if filter != nil && !filter(r.Chunk) {
			continue
		}
		// dimension mismatch: vector from another model
		if len(r.Vector) != len(q) || r.norm == 0 {
			continue
		}
		sim := dot(q, r.Vector) / (qnorm * r.norm)
		if math.IsNaN(sim) || sim < minSimilarity {
			continue
		}
		results = append(results, types.SearchResult{ID: r.Chunk.ID, Similarity: sim, Chunk: r.Chunk})
	}

	slices.SortFunc(results, func(a, b types.SearchResult) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Chunk.FilePath, b.Chunk.FilePath); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Chunk.Name, b.Chunk.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

// SearchByType returns every chunk of subtype st, including pending ones
func (v *view) SearchByType(st types.Subtype) []types.FilterResult {
	return toFilterResults(v.collect(BySubtype(st)))
}

// SearchByDomain returns every chunk tagged with domain, including pending ones
func (v *view) SearchByDomain(domain string) []types.FilterResult {
	return toFilterResults(v.collect(ByDomain(domain)))
}

func (v *view) collect(filter Filter) []*types.CodeChunk {
	out := make([]*types.CodeChunk, 0)
	for _, r := range v.records {
		if filter == nil || filter(r.Chunk) {
			out = append(out, r.Chunk)
		}
	}
	slices.SortFunc(out, compareLocation)
	return out
}

func compareLocation(a, b *types.CodeChunk) int {
	if c := cmp.Compare(a.FilePath, b.FilePath); c != 0 {
		return c
	}
	if c := cmp.Compare(a.StartLine, b.StartLine); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func toFilterResults(chunks []*types.CodeChunk) []types.FilterResult {
	out := make([]types.FilterResult, len(chunks))
	for i, c := range chunks {
		out[i] = types.FilterResult{ID: c.ID, Chunk: c}
	}
	return out
}
