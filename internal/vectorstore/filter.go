package vectorstore

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dshills/livecontext-mcp/pkg/types"
)

// Filter selects chunks before similarity is computed. A nil Filter accepts
// every chunk.
type Filter func(*types.CodeChunk) bool

// BySubtype accepts chunks of the given subtype
func BySubtype(st types.Subtype) Filter {
	return func(c *types.CodeChunk) bool { return c.Subtype == st }
}

// ByDomain accepts chunks tagged with domain
func ByDomain(domain string) Filter {
	return func(c *types.CodeChunk) bool { return c.HasDomain(domain) }
}

// ByPattern accepts chunks tagged with pattern
func ByPattern(pattern string) Filter {
	return func(c *types.CodeChunk) bool { return c.HasPattern(pattern) }
}

// ByPathGlob accepts chunks whose file path matches a doublestar pattern
func ByPathGlob(pattern string) (Filter, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid path pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}
	return func(c *types.CodeChunk) bool {
		ok, _ := doublestar.Match(pattern, c.FilePath)
		return ok
	}, nil
}

// All accepts chunks accepted by every non-nil filter
func All(filters ...Filter) Filter {
	return func(c *types.CodeChunk) bool {
		for _, f := range filters {
			if f != nil && !f(c) {
				return false
			}
		}
		return true
	}
}
