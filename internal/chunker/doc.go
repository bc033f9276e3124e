// Package chunker divides JavaScript and TypeScript source into code chunks
// for classification, embedding and search.
//
// A chunk is a function declaration, an arrow or function-expression binding,
// a class, or a class method. Subtypes are assigned from the declaration
// kind and naming conventions:
//   - useX functions are hooks
//   - capitalized functions returning JSX are React components
//   - everything else keeps its syntactic kind
//
// # Basic Usage
//
//	c := chunker.New(logger)
//	for _, chunk := range c.Extract(ctx, "src/auth/Login.tsx", src) {
//	    fmt.Printf("%s %s lines %d-%d\n", chunk.ID, chunk.Subtype, chunk.StartLine, chunk.EndLine)
//	}
//
// Extract never fails. A file that cannot be parsed, or contains no
// declarations, becomes a single whole-file chunk; the former is marked
// LowConfidence.
//
// # Identity and Hashing
//
// Chunk IDs are "path#name", with "~N" appended for the Nth declaration of a
// repeated name, so they are stable across re-extraction. Chunk hashes are
// computed over whitespace-normalized text and FileContentHash combines them,
// which lets the indexer skip edits that only touch formatting or text
// between declarations.
package chunker
