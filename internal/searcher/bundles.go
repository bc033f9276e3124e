package searcher

import (
	"cmp"
	"slices"

	"github.com/dshills/livecontext-mcp/internal/vectorstore"
	"github.com/dshills/livecontext-mcp/pkg/types"
)

// SuggestBundlesForFile ranks the bundles path does not yet belong to by how
// much of each bundle's tag distribution the file's own tags cover. Bundles
// with no overlap are omitted.
func (s *Searcher) SuggestBundlesForFile(path string) ([]types.BundleSuggestion, error) {
	snap := s.index.Snapshot()
	if _, ok := snap.File(path); !ok {
		return nil, &QueryError{Op: "suggest bundles", Query: path, Err: ErrFileNotIndexed}
	}
	suggestions := []types.BundleSuggestion{}
	if s.bundles == nil {
		return suggestions, nil
	}

	own := fileTags(snap, path)
	if len(own) == 0 {
		return suggestions, nil
	}

	member := make(map[string]bool)
	for _, b := range s.bundles.BundlesForFile(path) {
		member[b] = true
	}

	// tag occurrence counts over each bundle's indexed members
	counts := make(map[string]map[string]int)
	totals := make(map[string]int)
	for _, entry := range snap.Files() {
		if entry.FilePath == path {
			continue
		}
		bundles := s.bundles.BundlesForFile(entry.FilePath)
		if len(bundles) == 0 {
			continue
		}
		tags := fileTags(snap, entry.FilePath)
		for _, b := range bundles {
			if member[b] {
				continue
			}
			if counts[b] == nil {
				counts[b] = make(map[string]int)
			}
			for tag, n := range tags {
				counts[b][tag] += n
				totals[b] += n
			}
		}
	}

	for b, dist := range counts {
		if totals[b] == 0 {
			continue
		}
		shared := 0
		for tag := range own {
			shared += dist[tag]
		}
		if shared == 0 {
			continue
		}
		suggestions = append(suggestions, types.BundleSuggestion{
			Bundle: b,
			Score:  float64(shared) / float64(totals[b]),
		})
	}

	slices.SortFunc(suggestions, func(a, b types.BundleSuggestion) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Bundle, b.Bundle)
	})
	return suggestions, nil
}

// fileTags counts the domain and pattern tags over a file's chunks. Domain
// and pattern tags live in separate namespaces.
func fileTags(snap *vectorstore.Snapshot, path string) map[string]int {
	entry, ok := snap.File(path)
	if !ok {
		return nil
	}
	tags := make(map[string]int)
	for _, id := range entry.ChunkIDs {
		c, ok := snap.Chunk(id)
		if !ok {
			continue
		}
		for _, t := range c.DomainTags {
			tags["domain:"+t]++
		}
		for _, t := range c.PatternTags {
			tags["pattern:"+t]++
		}
	}
	return tags
}
