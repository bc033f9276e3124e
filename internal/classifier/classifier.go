package classifier

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/dshills/livecontext-mcp/internal/config"
	"github.com/dshills/livecontext-mcp/internal/tokenize"
	"github.com/dshills/livecontext-mcp/pkg/types"
)

// UnknownPurpose is reported when no purpose rule matches
const UnknownPurpose = "unknown"

// Classification is the heuristic annotation of one chunk
type Classification struct {
	Purpose     string
	DomainTags  []string
	PatternTags []string
	Complexity  types.Complexity
}

type domainRule struct {
	tag      string
	stems    map[string]bool
	patterns []*regexp.Regexp
}

type patternRule struct {
	tag      string
	patterns []*regexp.Regexp
}

type purposeRule struct {
	name    *regexp.Regexp
	subtype types.Subtype
	source  *regexp.Regexp
	purpose string
}

// Classifier annotates chunks from a compiled rule table. It holds no
// mutable state and is safe for concurrent use.
type Classifier struct {
	domains    []domainRule
	patterns   []patternRule
	purposes   []purposeRule
	thresholds config.ComplexityThresholds
}

// New compiles a rule table. A nil table behaves like an empty one.
func New(rt *config.RuleTable, thresholds config.ComplexityThresholds) (*Classifier, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	c := &Classifier{thresholds: thresholds}
	if rt == nil {
		return c, nil
	}

	for _, d := range rt.Domains {
		rule := domainRule{tag: d.Tag, stems: make(map[string]bool)}
		for _, kw := range d.Keywords {
			for _, w := range tokenize.Words(kw) {
				rule.stems[tokenize.Stem(w)] = true
			}
		}
		res, err := compile(d.Patterns)
		if err != nil {
			return nil, fmt.Errorf("domain %q: %w", d.Tag, err)
		}
		rule.patterns = res
		c.domains = append(c.domains, rule)
	}

	for _, p := range rt.Patterns {
		res, err := compile(p.Patterns)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p.Tag, err)
		}
		c.patterns = append(c.patterns, patternRule{tag: p.Tag, patterns: res})
	}

	for i, p := range rt.Purposes {
		rule := purposeRule{subtype: types.Subtype(p.Subtype), purpose: p.Purpose}
		var err error
		if rule.name, err = compileOptional(p.Name); err != nil {
			return nil, fmt.Errorf("purpose rule %d: %w", i, err)
		}
		if rule.source, err = compileOptional(p.Source); err != nil {
			return nil, fmt.Errorf("purpose rule %d: %w", i, err)
		}
		c.purposes = append(c.purposes, rule)
	}

	return c, nil
}

// Classify annotates a chunk. It is a pure function of the chunk and the
// rule table; missing rule matches yield the "unknown" purpose and empty tag
// sets rather than an error.
func (c *Classifier) Classify(chunk *types.CodeChunk) Classification {
	stems := wordStems(chunk)

	result := Classification{
		Purpose:     UnknownPurpose,
		DomainTags:  []string{},
		PatternTags: []string{},
		Complexity:  c.Complexity(chunk.SourceText),
	}

	for _, d := range c.domains {
		if d.matches(stems, chunk.SourceText) {
			result.DomainTags = append(result.DomainTags, d.tag)
		}
	}
	for _, p := range c.patterns {
		if anyMatch(p.patterns, chunk.SourceText) {
			result.PatternTags = append(result.PatternTags, p.tag)
		}
	}
	sort.Strings(result.DomainTags)
	result.DomainTags = dedupeSorted(result.DomainTags)
	sort.Strings(result.PatternTags)
	result.PatternTags = dedupeSorted(result.PatternTags)

	for _, p := range c.purposes {
		if p.matches(chunk) {
			result.Purpose = p.purpose
			break
		}
	}

	return result
}

// Apply classifies the chunk and stores the result on it
func (c *Classifier) Apply(chunk *types.CodeChunk) {
	cl := c.Classify(chunk)
	chunk.Purpose = cl.Purpose
	chunk.DomainTags = cl.DomainTags
	chunk.PatternTags = cl.PatternTags
	chunk.Complexity = cl.Complexity
}

func (d *domainRule) matches(stems map[string]bool, source string) bool {
	for s := range d.stems {
		if stems[s] {
			return true
		}
	}
	return anyMatch(d.patterns, source)
}

func (p *purposeRule) matches(chunk *types.CodeChunk) bool {
	if p.subtype != "" && p.subtype != chunk.Subtype {
		return false
	}
	if p.name != nil && !p.name.MatchString(chunk.Name) {
		return false
	}
	if p.source != nil && !p.source.MatchString(chunk.SourceText) {
		return false
	}
	return true
}

// wordStems collects the stems of the chunk's name, path segments and body
func wordStems(chunk *types.CodeChunk) map[string]bool {
	stems := make(map[string]bool)
	add := func(text string) {
		for _, w := range tokenize.Words(text) {
			stems[tokenize.Stem(w)] = true
		}
	}
	add(chunk.Name)
	add(strings.TrimSuffix(filepath.ToSlash(chunk.FilePath), filepath.Ext(chunk.FilePath)))
	add(chunk.SourceText)
	return stems
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func compile(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func compileOptional(p string) (*regexp.Regexp, error) {
	if p == "" {
		return nil, nil
	}
	return regexp.Compile(p)
}

func dedupeSorted(s []string) []string {
	out := s[:0]
	for i, v := range s {
		if i == 0 || v != s[i-1] {
			out = append(out, v)
		}
	}
	return out
}
