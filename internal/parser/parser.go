package parser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/livecontext-mcp/pkg/types"
)

// ErrUnsupportedLanguage is returned for files without a registered grammar
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Parser extracts declarations and import bindings from JavaScript and
// TypeScript sources using tree-sitter. It is safe for concurrent use; a
// tree-sitter parser is created per call.
type Parser struct{}

// New creates a new Parser instance
func New() *Parser {
	return &Parser{}
}

// ParseSource parses src as the language implied by path.
// Syntax errors are non-fatal: they are recorded on the result and whatever
// declarations the error-recovering tree yields are still returned.
func (p *Parser) ParseSource(ctx context.Context, path string, src []byte) (*types.ParseResult, error) {
	g, ok := lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, path)
	}

	tsParser := sitter.NewParser()
	defer tsParser.Close()
	tsParser.SetLanguage(g.language)

	tree, err := tsParser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("parse %s: no syntax tree", path)
	}
	defer tree.Close()

	root := tree.RootNode()
	result := &types.ParseResult{Language: g.name}

	if root.HasError() {
		line, col, msg := firstError(root, src)
		result.AddError(path, line, col, msg)
	}

	result.Imports = extractImports(root, src)

	w := &walker{
		src:         src,
		exportNames: make(map[string]bool),
	}
	w.visit(root, "")
	w.markExports()

	sort.SliceStable(w.decls, func(i, j int) bool {
		if w.decls[i].StartByte != w.decls[j].StartByte {
			return w.decls[i].StartByte < w.decls[j].StartByte
		}
		return w.decls[i].EndByte > w.decls[j].EndByte
	})
	result.Declarations = w.decls

	return result, nil
}

// firstError locates the first ERROR or MISSING node in the tree
func firstError(root *sitter.Node, src []byte) (line, col int, msg string) {
	var found *sitter.Node
	var search func(n *sitter.Node)
	search = func(n *sitter.Node) {
		if found != nil || n == nil {
			return
		}
		if n.IsError() || n.IsMissing() {
			found = n
			return
		}
		if !n.HasError() {
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			search(n.Child(i))
		}
	}
	search(root)

	if found == nil {
		return 1, 1, "syntax error"
	}
	pt := found.StartPoint()
	if found.IsMissing() {
		msg = fmt.Sprintf("missing %s", found.Type())
	} else {
		msg = fmt.Sprintf("syntax error near %q", snippet(found.Content(src)))
	}
	return int(pt.Row) + 1, int(pt.Column) + 1, msg
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}

// extractImports collects the top-level bindings introduced by ES import
// statements and CommonJS require calls
func extractImports(root *sitter.Node, src []byte) []types.Import {
	var imports []types.Import

	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		switch stmt.Type() {
		case "import_statement":
			source := unquote(fieldContent(stmt, "source", src))
			for j := 0; j < int(stmt.NamedChildCount()); j++ {
				clause := stmt.NamedChild(j)
				if clause.Type() != "import_clause" {
					continue
				}
				for _, binding := range importClauseBindings(clause, src) {
					imports = append(imports, types.Import{Binding: binding, Source: source})
				}
			}
		case "lexical_declaration", "variable_declaration":
			for j := 0; j < int(stmt.NamedChildCount()); j++ {
				decl := stmt.NamedChild(j)
				if decl.Type() != "variable_declarator" {
					continue
				}
				source, ok := requireSource(decl.ChildByFieldName("value"), src)
				if !ok {
					continue
				}
				for _, binding := range patternBindings(decl.ChildByFieldName("name"), src) {
					imports = append(imports, types.Import{Binding: binding, Source: source})
				}
			}
		}
	}

	return imports
}

func importClauseBindings(clause *sitter.Node, src []byte) []string {
	var bindings []string
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		part := clause.NamedChild(i)
		switch part.Type() {
		case "identifier":
			bindings = append(bindings, part.Content(src))
		case "namespace_import":
			for j := 0; j < int(part.NamedChildCount()); j++ {
				if id := part.NamedChild(j); id.Type() == "identifier" {
					bindings = append(bindings, id.Content(src))
				}
			}
		case "named_imports":
			for j := 0; j < int(part.NamedChildCount()); j++ {
				spec := part.NamedChild(j)
				if spec.Type() != "import_specifier" {
					continue
				}
				if alias := spec.ChildByFieldName("alias"); alias != nil {
					bindings = append(bindings, alias.Content(src))
				} else if name := spec.ChildByFieldName("name"); name != nil {
					bindings = append(bindings, name.Content(src))
				}
			}
		}
	}
	return bindings
}

// requireSource reports the module specifier of a require("x") call
func requireSource(value *sitter.Node, src []byte) (string, bool) {
	if value == nil || value.Type() != "call_expression" {
		return "", false
	}
	fn := value.ChildByFieldName("function")
	if fn == nil || fn.Content(src) != "require" {
		return "", false
	}
	args := value.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return "", false
	}
	arg := args.NamedChild(0)
	if arg.Type() != "string" {
		return "", false
	}
	return unquote(arg.Content(src)), true
}

func patternBindings(pattern *sitter.Node, src []byte) []string {
	if pattern == nil {
		return nil
	}
	switch pattern.Type() {
	case "identifier":
		return []string{pattern.Content(src)}
	case "object_pattern":
		var out []string
		for i := 0; i < int(pattern.NamedChildCount()); i++ {
			prop := pattern.NamedChild(i)
			switch prop.Type() {
			case "shorthand_property_identifier_pattern":
				out = append(out, prop.Content(src))
			case "pair_pattern":
				out = append(out, patternBindings(prop.ChildByFieldName("value"), src)...)
			}
		}
		return out
	}
	return nil
}

func fieldContent(n *sitter.Node, field string, src []byte) string {
	if f := n.ChildByFieldName(field); f != nil {
		return f.Content(src)
	}
	return ""
}

func unquote(s string) string {
	return strings.Trim(s, "\"'`")
}
