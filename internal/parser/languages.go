package parser

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language names reported in ParseResult.Language
const (
	LangJavaScript = "javascript"
	LangTypeScript = "typescript"
	LangTSX        = "tsx"
)

type grammar struct {
	name     string
	language *sitter.Language
}

// grammars maps a lower-case file extension (with dot) to its grammar.
// JSX is part of the javascript grammar, so .jsx shares it.
var grammars = map[string]grammar{
	".js":  {LangJavaScript, javascript.GetLanguage()},
	".jsx": {LangJavaScript, javascript.GetLanguage()},
	".mjs": {LangJavaScript, javascript.GetLanguage()},
	".cjs": {LangJavaScript, javascript.GetLanguage()},
	".ts":  {LangTypeScript, typescript.GetLanguage()},
	".mts": {LangTypeScript, typescript.GetLanguage()},
	".cts": {LangTypeScript, typescript.GetLanguage()},
	".tsx": {LangTSX, tsx.GetLanguage()},
}

func lookup(path string) (grammar, bool) {
	g, ok := grammars[strings.ToLower(filepath.Ext(path))]
	return g, ok
}

// Supported reports whether a grammar is registered for the file's extension
func Supported(path string) bool {
	_, ok := lookup(path)
	return ok
}
