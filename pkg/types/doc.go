// Package types provides shared type definitions for the livecontext MCP server.
//
// This package defines domain types used across the extraction, indexing and
// search components: code chunks, file index entries, parse results, search
// results and the error taxonomy.
//
// # Core Types
//
// CodeChunk is the unit of indexing. Its ID is stable across re-extraction as
// long as the file path, name and ordinal are unchanged:
//
//	chunk := &types.CodeChunk{
//	    ID:        "src/auth/Login.tsx#LoginForm",
//	    FilePath:  "src/auth/Login.tsx",
//	    Name:      "LoginForm",
//	    Subtype:   types.SubtypeReactComponent,
//	    StartLine: 3,
//	    EndLine:   12,
//	}
//
// Subtype is a closed set. ParseSubtype rejects anything outside it:
//
//	st, err := types.ParseSubtype("hook")
//
// FileIndexEntry records the chunk IDs owned by a file together with the
// normalized content hash used to skip no-op writes.
//
// # Errors
//
// Recoverable failure kinds are sentinel errors matched with errors.Is:
//
//	if errors.Is(err, types.ErrEmbeddingUnavailable) {
//	    // leave the chunk pending, retry later
//	}
package types
