// Package parser extracts declarations and import bindings from JavaScript
// and TypeScript sources using tree-sitter.
//
// Grammars are selected by file extension: .js, .jsx, .mjs and .cjs use the
// javascript grammar (which includes JSX), .ts uses typescript and .tsx uses
// tsx.
//
// # Basic Usage
//
//	p := parser.New()
//	result, err := p.ParseSource(ctx, "src/auth/Login.tsx", src)
//	if err != nil {
//	    // unsupported extension or parser failure
//	}
//
//	for _, d := range result.Declarations {
//	    fmt.Printf("%s %s exported=%v\n", d.Kind, d.Name, d.IsExported)
//	}
//
// # Declarations
//
// The walker reports:
//   - function declarations, including generators and anonymous default exports
//   - `const x = () => ...` and `const x = function ...` bindings
//   - class declarations and `const X = class ...` bindings
//   - class methods and class fields holding functions, named "Class.method"
//
// Nested functions are reported alongside their enclosing function. Spans
// cover the enclosing export statement and the contiguous comment block
// directly above the declaration.
//
// # Error Handling
//
// tree-sitter recovers from syntax errors, so a broken file still yields a
// tree. The first error location is recorded on the result:
//
//	if result.HasErrors() {
//	    log.Printf("parse error: %v", &result.Errors[0])
//	}
package parser
