package classifier

import (
	"regexp"
	"strings"

	"github.com/dshills/livecontext-mcp/pkg/types"
)

// LinesPerPoint is the number of non-blank lines worth one complexity point
const LinesPerPoint = 20

var (
	branchRe = regexp.MustCompile(`\b(if|case|catch)\b`)
	loopRe   = regexp.MustCompile(`\b(for|while|do)\b|\.(forEach|map|reduce)\(`)

	// the while that closes a do...while, already counted by its do
	doWhileTailRe = regexp.MustCompile(`\bwhile\s*\([^;{}]*\)\s*;`)
)

// Metrics are the raw counts behind a complexity score
type Metrics struct {
	Branches   int
	Loops      int
	MaxNesting int
	Lines      int
}

// Score combines the metrics:
// 1 + branches + 2*loops + 2*nesting + lines/LinesPerPoint
func (m Metrics) Score() int {
	return 1 + m.Branches + 2*m.Loops + 2*m.MaxNesting + m.Lines/LinesPerPoint
}

// Measure counts branches, loops, nesting and lines of a source fragment.
// Branches are if, case, catch and ternaries; && and || are not counted.
// Loops are for, while, do and .forEach/.map/.reduce calls. Comments and
// string literals are ignored.
func Measure(source string) Metrics {
	code := stripLiterals(source)

	m := Metrics{
		Branches: len(branchRe.FindAllStringIndex(code, -1)) + countTernaries(code),
		Loops: len(loopRe.FindAllStringIndex(code, -1)) -
			len(doWhileTailRe.FindAllStringIndex(code, -1)),
	}

	depth, maxDepth := 0, 0
	for _, r := range code {
		switch r {
		case '{':
			depth++
			maxDepth = max(maxDepth, depth)
		case '}':
			depth = max(depth-1, 0)
		}
	}
	// the body braces of the chunk itself are not nesting
	m.MaxNesting = max(maxDepth-1, 0)

	for _, line := range strings.Split(source, "\n") {
		if strings.TrimSpace(line) != "" {
			m.Lines++
		}
	}
	return m
}

// Complexity scores a source fragment and maps the score to a level
func (c *Classifier) Complexity(source string) types.Complexity {
	score := Measure(source).Score()
	return types.Complexity{Score: score, Level: c.Level(score)}
}

// Level maps a score to low/medium/high using the configured thresholds
func (c *Classifier) Level(score int) types.ComplexityLevel {
	switch {
	case score >= c.thresholds.High:
		return types.ComplexityHigh
	case score >= c.thresholds.Medium:
		return types.ComplexityMedium
	default:
		return types.ComplexityLow
	}
}

// countTernaries counts `?` operators, skipping optional chaining (?.) and
// nullish coalescing (??)
func countTernaries(code string) int {
	n := 0
	for i := 0; i < len(code); i++ {
		if code[i] != '?' {
			continue
		}
		if i+1 < len(code) && (code[i+1] == '.' || code[i+1] == '?') {
			i++
			continue
		}
		if i > 0 && code[i-1] == '?' {
			continue
		}
		n++
	}
	return n
}

// stripLiterals blanks out comments and string literals so keywords inside
// them are not counted. Newlines are kept.
func stripLiterals(src string) string {
	var b strings.Builder
	b.Grow(len(src))

	const (
		code = iota
		lineComment
		blockComment
		str
	)
	state := code
	var quote byte

	for i := 0; i < len(src); i++ {
		ch := src[i]
		switch state {
		case code:
			switch {
			case ch == '/' && i+1 < len(src) && src[i+1] == '/':
				state = lineComment
				b.WriteByte(' ')
			case ch == '/' && i+1 < len(src) && src[i+1] == '*':
				state = blockComment
				b.WriteByte(' ')
			case ch == '"' || ch == '\'' || ch == '`':
				state = str
				quote = ch
				b.WriteByte(' ')
			default:
				b.WriteByte(ch)
			}
		case lineComment:
			if ch == '\n' {
				state = code
				b.WriteByte('\n')
			}
		case blockComment:
			if ch == '*' && i+1 < len(src) && src[i+1] == '/' {
				state = code
				i++
			} else if ch == '\n' {
				b.WriteByte('\n')
			}
		case str:
			switch {
			case ch == '\\':
				i++
			case ch == quote:
				state = code
			case ch == '\n':
				// only template literals span lines; this also stops a stray
				// apostrophe in JSX text from swallowing the rest
				if quote != '`' {
					state = code
				}
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}
