package types

// DeclarationKind is the syntactic category of a declaration found by the parser
type DeclarationKind string

const (
	DeclFunction      DeclarationKind = "function"
	DeclArrowFunction DeclarationKind = "arrow_function"
	DeclMethod        DeclarationKind = "method"
	DeclClass         DeclarationKind = "class"
)

// Declaration is a function-like or class node located in a source file
type Declaration struct {
	Name      string
	Kind      DeclarationKind
	Parent    string // enclosing class for methods
	StartLine int    // includes leading attached comments
	EndLine   int
	StartByte int
	EndByte   int

	IsExported  bool
	IsAsync     bool
	ReturnsJSX  bool
	Identifiers []string // identifiers referenced inside the node
}

// ParseResult represents the output of parsing one source file
type ParseResult struct {
	Language     string
	Declarations []Declaration
	Imports      []Import

	// Errors encountered during parsing
	Errors []ParseError
}

// Import is one local binding introduced by an import statement
type Import struct {
	Binding string // local name, e.g. "useState"
	Source  string // module specifier, e.g. "react"
}

// ParseError represents an error that occurred during parsing
type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
}

// Error implements the error interface
func (pe *ParseError) Error() string {
	return pe.Message
}

// HasErrors returns true if any parsing errors occurred
func (pr *ParseResult) HasErrors() bool {
	return len(pr.Errors) > 0
}

// AddError adds a parsing error to the result
func (pr *ParseResult) AddError(file string, line, col int, msg string) {
	pr.Errors = append(pr.Errors, ParseError{
		File:    file,
		Line:    line,
		Column:  col,
		Message: msg,
	})
}
