package chunker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dshills/livecontext-mcp/internal/parser"
	"github.com/dshills/livecontext-mcp/pkg/types"
)

// FileChunkName is the name given to whole-file fallback chunks.
// It cannot collide with a JavaScript identifier.
const FileChunkName = "<file>"

// Chunker turns one file's source into an ordered list of code chunks
type Chunker struct {
	parser *parser.Parser
	logger *slog.Logger
}

// New creates a new Chunker. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Chunker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{
		parser: parser.New(),
		logger: logger,
	}
}

// Extract splits src into chunks. It never fails: unsupported files and
// files with syntax errors yield a single low-confidence whole-file chunk,
// and clean files without any declaration yield a whole-file chunk.
// Chunks are returned in source order; nested declarations follow their
// enclosing declaration.
func (c *Chunker) Extract(ctx context.Context, filePath string, src []byte) []*types.CodeChunk {
	result, err := c.parser.ParseSource(ctx, filePath, src)
	if err != nil {
		c.logger.Warn("parse failed, indexing whole file",
			"file", filePath, "error", err)
		return []*types.CodeChunk{FallbackChunk(filePath, src, true)}
	}
	if result.HasErrors() {
		pe := result.Errors[0]
		c.logger.Warn("syntax error, indexing whole file",
			"file", filePath, "line", pe.Line, "column", pe.Column, "error", pe.Message)
		return []*types.CodeChunk{FallbackChunk(filePath, src, true)}
	}
	if len(result.Declarations) == 0 {
		return []*types.CodeChunk{FallbackChunk(filePath, src, false)}
	}

	ordinals := make(map[string]int, len(result.Declarations))
	chunks := make([]*types.CodeChunk, 0, len(result.Declarations))

	for i := range result.Declarations {
		d := &result.Declarations[i]
		if d.StartByte < 0 || d.EndByte > len(src) || d.StartByte >= d.EndByte {
			continue
		}

		ordinals[d.Name]++
		text := string(src[d.StartByte:d.EndByte])

		chunks = append(chunks, &types.CodeChunk{
			ID:          ChunkID(filePath, d.Name, ordinals[d.Name]),
			FilePath:    filePath,
			Name:        d.Name,
			Ordinal:     ordinals[d.Name],
			StartLine:   d.StartLine,
			EndLine:     max(d.StartLine, d.EndLine),
			SourceText:  text,
			ContentHash: HashNormalized(text),
			Includes:    includes(d.Identifiers, result.Imports),
			Subtype:     subtypeOf(d),
			IsExported:  d.IsExported,
			IsAsync:     d.IsAsync,
		})
	}

	if len(chunks) == 0 {
		return []*types.CodeChunk{FallbackChunk(filePath, src, false)}
	}
	return chunks
}

// FallbackChunk builds the whole-file chunk used when no declaration can be
// extracted
func FallbackChunk(filePath string, src []byte, lowConfidence bool) *types.CodeChunk {
	text := string(src)
	return &types.CodeChunk{
		ID:            ChunkID(filePath, FileChunkName, 1),
		FilePath:      filePath,
		Name:          FileChunkName,
		Ordinal:       1,
		StartLine:     1,
		EndLine:       lineCount(text),
		SourceText:    text,
		ContentHash:   HashNormalized(text),
		Subtype:       types.SubtypeUnknown,
		LowConfidence: lowConfidence,
	}
}

// ChunkID derives the stable identifier of a chunk. The ordinal
// disambiguates declarations sharing a name within one file.
func ChunkID(filePath, name string, ordinal int) string {
	if ordinal <= 1 {
		return filePath + "#" + name
	}
	return fmt.Sprintf("%s#%s~%d", filePath, name, ordinal)
}

// subtypeOf maps a declaration to its chunk subtype. Hooks and components
// are recognised by naming convention on plain functions and arrow bindings.
func subtypeOf(d *types.Declaration) types.Subtype {
	switch d.Kind {
	case types.DeclClass:
		return types.SubtypeClass
	case types.DeclMethod:
		return types.SubtypeMethod
	}

	switch {
	case IsHookName(d.Name):
		return types.SubtypeHook
	case IsComponentName(d.Name) && d.ReturnsJSX:
		return types.SubtypeReactComponent
	case d.Kind == types.DeclArrowFunction:
		return types.SubtypeArrowFunction
	default:
		return types.SubtypeFunction
	}
}

// IsHookName reports whether name follows the React hook convention (useX)
func IsHookName(name string) bool {
	rest, ok := strings.CutPrefix(name, "use")
	if !ok || rest == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return unicode.IsUpper(r) || unicode.IsDigit(r)
}

// IsComponentName reports whether name is capitalized
func IsComponentName(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

// includes returns the import bindings referenced by a declaration, in
// import order
func includes(identifiers []string, imports []types.Import) []string {
	if len(identifiers) == 0 || len(imports) == 0 {
		return nil
	}
	used := make(map[string]bool, len(identifiers))
	for _, id := range identifiers {
		used[id] = true
	}

	var out []string
	for _, imp := range imports {
		if used[imp.Binding] {
			out = append(out, imp.Binding)
			delete(used, imp.Binding)
		}
	}
	return out
}

func lineCount(text string) int {
	if text == "" {
		return 1
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return max(n, 1)
}

// EmbeddingText builds the text handed to the embedder for a chunk: the
// classification hints followed by the whitespace-normalized source. Two
// chunks with equal ContentHash get the same text, so a vector kept across a
// reformat is still the embedding of the chunk it is stored with.
func EmbeddingText(c *types.CodeChunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", c.Name, c.Subtype)
	if c.Purpose != "" {
		fmt.Fprintf(&b, "purpose: %s\n", c.Purpose)
	}
	if len(c.DomainTags) > 0 {
		fmt.Fprintf(&b, "domains: %s\n", strings.Join(c.DomainTags, ", "))
	}
	if len(c.PatternTags) > 0 {
		fmt.Fprintf(&b, "patterns: %s\n", strings.Join(c.PatternTags, ", "))
	}
	fmt.Fprintf(&b, "file: %s\n", filepath.ToSlash(c.FilePath))
	b.WriteString(Normalize(c.SourceText))
	return b.String()
}
