package types

import (
	"errors"
	"slices"
	"strings"
	"time"
)

// Subtype represents the syntactic kind of a code chunk
type Subtype string

const (
	SubtypeFunction       Subtype = "function"
	SubtypeArrowFunction  Subtype = "arrow_function"
	SubtypeMethod         Subtype = "method"
	SubtypeReactComponent Subtype = "react_component"
	SubtypeHook           Subtype = "hook"
	SubtypeClass          Subtype = "class"
	SubtypeUnknown        Subtype = "unknown"
)

// AllSubtypes lists every valid subtype in declaration order
var AllSubtypes = []Subtype{
	SubtypeFunction,
	SubtypeArrowFunction,
	SubtypeMethod,
	SubtypeReactComponent,
	SubtypeHook,
	SubtypeClass,
	SubtypeUnknown,
}

// ParseSubtype converts a string into a Subtype, rejecting unknown values
func ParseSubtype(s string) (Subtype, error) {
	st := Subtype(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", ErrInvalidSubtype
	}
	return st, nil
}

// Valid reports whether the subtype belongs to the closed set
func (s Subtype) Valid() bool {
	return slices.Contains(AllSubtypes, s)
}

// ComplexityLevel is the bucketed form of a complexity score
type ComplexityLevel string

const (
	ComplexityLow    ComplexityLevel = "low"
	ComplexityMedium ComplexityLevel = "medium"
	ComplexityHigh   ComplexityLevel = "high"
)

// Complexity captures the heuristic complexity of a chunk
type Complexity struct {
	Score int
	Level ComplexityLevel
}

// CodeChunk is the atomic unit of indexing and search
type CodeChunk struct {
	// Identification
	ID       string
	FilePath string
	Name     string
	Ordinal  int // 1-based position among chunks sharing Name in the file

	// Location
	StartLine int
	EndLine   int

	// Content
	SourceText  string
	ContentHash uint64 // xxhash of the whitespace-normalized source
	Includes    []string

	// Syntax
	Subtype       Subtype
	IsExported    bool
	IsAsync       bool
	LowConfidence bool // whole-file fallback after a parse failure

	// Classification
	Purpose     string
	DomainTags  []string
	PatternTags []string
	Complexity  Complexity
}

// Validate checks the structural invariants of a chunk
func (c *CodeChunk) Validate() error {
	if c.ID == "" {
		return errors.New("chunk ID is required")
	}
	if c.FilePath == "" {
		return errors.New("file path is required")
	}
	if c.StartLine <= 0 || c.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}
	if c.StartLine > c.EndLine {
		return errors.New("start line must be before or equal to end line")
	}
	if !c.Subtype.Valid() {
		return ErrInvalidSubtype
	}
	return nil
}

// HasDomain reports whether the chunk carries the given domain tag
func (c *CodeChunk) HasDomain(domain string) bool {
	return slices.Contains(c.DomainTags, domain)
}

// HasPattern reports whether the chunk carries the given pattern tag
func (c *CodeChunk) HasPattern(pattern string) bool {
	return slices.Contains(c.PatternTags, pattern)
}

// FileIndexEntry records which chunks a file currently owns
type FileIndexEntry struct {
	FilePath      string
	ContentHash   uint64 // normalized hash over the file's chunk texts
	RawHash       uint64 // hash of the raw bytes, used to skip re-parsing
	ChunkIDs      []string
	LastIndexedAt time.Time
}
