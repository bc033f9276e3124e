package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// ErrUnknownTag is returned when a rule uses a tag outside the vocabulary
var ErrUnknownTag = errors.New("tag not in vocabulary")

//go:embed default_rules.yaml
var defaultRules []byte

// Vocabulary lists the tags rules may emit. An empty list accepts any tag.
type Vocabulary struct {
	Domains  []string `yaml:"domains"`
	Patterns []string `yaml:"patterns"`
}

// DomainRule tags a chunk with a business domain when any keyword matches a
// word of its name, path or body, or any regex matches its source.
type DomainRule struct {
	Tag      string   `yaml:"tag"`
	Keywords []string `yaml:"keywords"`
	Patterns []string `yaml:"patterns"`
}

// PatternRule tags a chunk with a technical pattern when any regex matches
// its source.
type PatternRule struct {
	Tag      string   `yaml:"tag"`
	Patterns []string `yaml:"patterns"`
}

// PurposeRule describes a chunk when every condition it sets holds. The
// first matching rule wins.
type PurposeRule struct {
	Name    string `yaml:"name"`    // regex over the chunk name
	Subtype string `yaml:"subtype"` // exact subtype
	Source  string `yaml:"source"`  // regex over the source text
	Purpose string `yaml:"purpose"`
}

// RuleTable is the data-driven input of the heuristic classifier.
type RuleTable struct {
	Vocabulary Vocabulary    `yaml:"vocabulary"`
	Domains    []DomainRule  `yaml:"domains"`
	Patterns   []PatternRule `yaml:"patterns"`
	Purposes   []PurposeRule `yaml:"purposes"`
}

// DefaultRules returns the built-in rule table
func DefaultRules() *RuleTable {
	rt, err := ParseRules(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("built-in rule table: %v", err))
	}
	return rt
}

// LoadRules reads a rule table from path. An empty path yields the
// built-in table.
func LoadRules(path string) (*RuleTable, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	rt, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rt, nil
}

// ParseRules decodes and validates a YAML rule table
func ParseRules(data []byte) (*RuleTable, error) {
	var rt RuleTable
	if err := yaml.Unmarshal(data, &rt); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if err := rt.Validate(); err != nil {
		return nil, err
	}
	return &rt, nil
}

// Validate checks tags against the vocabulary and compiles every regex
func (rt *RuleTable) Validate() error {
	for _, d := range rt.Domains {
		if err := checkTag(d.Tag, rt.Vocabulary.Domains, "domain"); err != nil {
			return err
		}
		if len(d.Keywords) == 0 && len(d.Patterns) == 0 {
			return fmt.Errorf("%w: domain %q has no keywords or patterns", ErrInvalidConfig, d.Tag)
		}
		if err := compileAll(d.Patterns); err != nil {
			return fmt.Errorf("domain %q: %w", d.Tag, err)
		}
	}
	for _, p := range rt.Patterns {
		if err := checkTag(p.Tag, rt.Vocabulary.Patterns, "pattern"); err != nil {
			return err
		}
		if len(p.Patterns) == 0 {
			return fmt.Errorf("%w: pattern %q has no regexes", ErrInvalidConfig, p.Tag)
		}
		if err := compileAll(p.Patterns); err != nil {
			return fmt.Errorf("pattern %q: %w", p.Tag, err)
		}
	}
	for i, p := range rt.Purposes {
		if p.Purpose == "" {
			return fmt.Errorf("%w: purpose rule %d has no purpose", ErrInvalidConfig, i)
		}
		if p.Name == "" && p.Subtype == "" && p.Source == "" {
			return fmt.Errorf("%w: purpose rule %d has no condition", ErrInvalidConfig, i)
		}
		if err := compileAll([]string{p.Name, p.Source}); err != nil {
			return fmt.Errorf("purpose rule %d: %w", i, err)
		}
	}
	return nil
}

func checkTag(tag string, vocabulary []string, kind string) error {
	if tag == "" {
		return fmt.Errorf("%w: %s rule without tag", ErrInvalidConfig, kind)
	}
	if len(vocabulary) > 0 && !slices.Contains(vocabulary, tag) {
		return fmt.Errorf("%w: %s %q", ErrUnknownTag, kind, tag)
	}
	return nil
}

func compileAll(patterns []string) error {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}
