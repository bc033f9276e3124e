package chunker

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/dshills/livecontext-mcp/pkg/types"
)

// Normalize collapses every run of whitespace into a single space and trims
// the result, so reformatting does not change a chunk's hash
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// HashNormalized hashes the whitespace-normalized text
func HashNormalized(text string) uint64 {
	return xxhash.Sum64String(Normalize(text))
}

// HashRaw hashes raw file bytes
func HashRaw(src []byte) uint64 {
	return xxhash.Sum64(src)
}

// FileContentHash combines the ordered chunk IDs and chunk hashes of a file.
// Text outside every chunk span does not contribute, so blank lines and
// detached comments between declarations leave it unchanged.
func FileContentHash(chunks []*types.CodeChunk) uint64 {
	d := xxhash.New()
	for _, c := range chunks {
		_, _ = d.WriteString(c.ID)
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(strconv.FormatUint(c.ContentHash, 16))
		_, _ = d.WriteString("\n")
	}
	return d.Sum64()
}
