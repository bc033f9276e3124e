package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/livecontext-mcp/pkg/types"
)

// walker collects declarations in a single pre-order traversal
type walker struct {
	src         []byte
	decls       []types.Declaration
	exportNames map[string]bool // names exported via export clauses or `export default X`
}

func isFunctionNode(t string) bool {
	switch t {
	case "function_declaration", "generator_function_declaration",
		"function_expression", "function", "generator_function",
		"arrow_function", "method_definition":
		return true
	}
	return false
}

func isClassNode(t string) bool {
	return t == "class_declaration" || t == "abstract_class_declaration" || t == "class"
}

func (w *walker) visit(n *sitter.Node, class string) {
	if n == nil {
		return
	}

	switch n.Type() {
	case "function_declaration", "generator_function_declaration":
		name := fieldContent(n, "name", w.src)
		if name == "" {
			name = "default"
		}
		w.add(n, n, name, types.DeclFunction, "")

	case "class_declaration", "abstract_class_declaration":
		name := fieldContent(n, "name", w.src)
		if name == "" {
			name = "default"
		}
		w.add(n, n, name, types.DeclClass, "")
		w.visitChildren(n, name)
		return

	case "variable_declarator":
		w.visitDeclarator(n, class)
		return

	case "method_definition":
		if p := n.Parent(); p != nil && p.Type() == "class_body" {
			w.addMember(n, n, fieldContent(n, "name", w.src), class)
		}

	case "field_definition", "public_field_definition":
		value := n.ChildByFieldName("value")
		if value != nil && isFunctionNode(value.Type()) {
			name := fieldContent(n, "property", w.src)
			if name == "" {
				name = fieldContent(n, "name", w.src)
			}
			w.addMember(n, value, name, class)
		}

	case "export_statement":
		w.visitExport(n)
	}

	w.visitChildren(n, class)
}

func (w *walker) visitChildren(n *sitter.Node, class string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.visit(n.NamedChild(i), class)
	}
}

// visitDeclarator handles `const x = () => ...`, `const x = function ...`
// and `const X = class ...` bindings
func (w *walker) visitDeclarator(n *sitter.Node, class string) {
	nameNode := n.ChildByFieldName("name")
	value := n.ChildByFieldName("value")
	if nameNode == nil || value == nil || nameNode.Type() != "identifier" {
		w.visitChildren(n, class)
		return
	}
	name := nameNode.Content(w.src)

	// A single-declarator statement owns the whole `const ...;` span.
	span := n
	if p := n.Parent(); p != nil && (p.Type() == "lexical_declaration" || p.Type() == "variable_declaration") && p.NamedChildCount() == 1 {
		span = p
	}

	switch {
	case value.Type() == "arrow_function":
		w.add(span, value, name, types.DeclArrowFunction, "")
	case isFunctionNode(value.Type()):
		w.add(span, value, name, types.DeclFunction, "")
	case isClassNode(value.Type()):
		w.add(span, value, name, types.DeclClass, "")
		w.visitChildren(value, name)
		return
	}
	w.visitChildren(n, class)
}

// visitExport records export clause names and anonymous default exports
func (w *walker) visitExport(n *sitter.Node) {
	if value := n.ChildByFieldName("value"); value != nil {
		switch {
		case value.Type() == "identifier":
			w.exportNames[value.Content(w.src)] = true
		case value.Type() == "arrow_function":
			w.add(n, value, "default", types.DeclArrowFunction, "")
		case isFunctionNode(value.Type()):
			w.add(n, value, "default", types.DeclFunction, "")
		}
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		if clause.Type() != "export_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			spec := clause.NamedChild(j)
			if spec.Type() == "export_specifier" {
				if name := fieldContent(spec, "name", w.src); name != "" {
					w.exportNames[name] = true
				}
			}
		}
	}
}

func (w *walker) addMember(span, fn *sitter.Node, name, class string) {
	if name == "" {
		return
	}
	if class != "" {
		name = class + "." + name
	}
	w.add(span, fn, name, types.DeclMethod, class)
}

// add records a declaration. span is the node whose range becomes the chunk,
// fn is the node carrying the body and modifiers.
func (w *walker) add(span, fn *sitter.Node, name string, kind types.DeclarationKind, parent string) {
	exported := false
	if p := span.Parent(); p != nil {
		switch {
		case p.Type() == "export_statement":
			span = p
			exported = true
		case span.Type() == "variable_declarator":
			// export const a = () => {}, b = () => {}
			gp := p.Parent()
			exported = gp != nil && gp.Type() == "export_statement"
		}
	}
	if span.Type() == "export_statement" {
		exported = true
	}

	startRow, startByte := leadingComments(span)
	end := span.EndPoint()
	endLine := int(end.Row) + 1
	if end.Column == 0 && end.Row > startRow {
		endLine = int(end.Row)
	}

	w.decls = append(w.decls, types.Declaration{
		Name:        name,
		Kind:        kind,
		Parent:      parent,
		StartLine:   int(startRow) + 1,
		EndLine:     endLine,
		StartByte:   int(startByte),
		EndByte:     int(span.EndByte()),
		IsExported:  exported,
		IsAsync:     hasAsync(fn),
		ReturnsJSX:  returnsJSX(fn),
		Identifiers: identifiers(fn, w.src),
	})
}

// markExports applies export clauses to top-level declarations and
// propagates class export status to methods
func (w *walker) markExports() {
	exportedClasses := make(map[string]bool)
	for i := range w.decls {
		d := &w.decls[i]
		if d.Parent == "" && w.exportNames[d.Name] {
			d.IsExported = true
		}
		if d.Kind == types.DeclClass && d.IsExported {
			exportedClasses[d.Name] = true
		}
	}
	for i := range w.decls {
		if d := &w.decls[i]; d.Kind == types.DeclMethod && exportedClasses[d.Parent] {
			d.IsExported = true
		}
	}
}

// leadingComments extends a span upward over the contiguous comment block
// directly above it. A blank line or a trailing comment of the previous
// statement ends the block.
func leadingComments(n *sitter.Node) (row, startByte uint32) {
	row, startByte = n.StartPoint().Row, n.StartByte()
	for prev := n.PrevSibling(); prev != nil && prev.Type() == "comment"; prev = prev.PrevSibling() {
		if prev.EndPoint().Row+1 < row {
			break
		}
		if pp := prev.PrevSibling(); pp != nil && pp.Type() != "comment" && pp.EndPoint().Row == prev.StartPoint().Row {
			break
		}
		row, startByte = prev.StartPoint().Row, prev.StartByte()
	}
	return row, startByte
}

// hasAsync looks for the async modifier among the node's direct children;
// tokens inside the body belong to the statement_block, not to fn.
func hasAsync(fn *sitter.Node) bool {
	for i := 0; i < int(fn.ChildCount()); i++ {
		if fn.Child(i).Type() == "async" {
			return true
		}
	}
	return false
}

// returnsJSX reports whether a function's body yields a JSX expression,
// either as an arrow expression body or from a return statement that is
// not inside a nested function
func returnsJSX(fn *sitter.Node) bool {
	body := fn.ChildByFieldName("body")
	if body == nil {
		return false
	}
	if body.Type() != "statement_block" {
		return containsJSX(body)
	}

	var found bool
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if found {
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			switch {
			case c.Type() == "return_statement":
				if containsJSX(c) {
					found = true
					return
				}
			case isFunctionNode(c.Type()) || isClassNode(c.Type()):
				continue
			default:
				walk(c)
			}
		}
	}
	walk(body)
	return found
}

func containsJSX(n *sitter.Node) bool {
	if strings.HasPrefix(n.Type(), "jsx_") {
		return true
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if containsJSX(n.NamedChild(i)) {
			return true
		}
	}
	return false
}

// identifiers lists the distinct identifiers referenced inside a node in
// first-seen order
func identifiers(n *sitter.Node, src []byte) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "identifier", "type_identifier", "shorthand_property_identifier":
			name := n.Content(src)
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(n)
	return out
}
