package config

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// BundleMap is a static bundle membership source: bundle name to the glob
// patterns of its member files. Paths are matched in slash form.
type BundleMap map[string][]string

// BundlesForFile returns the sorted names of the bundles whose patterns
// match path
func (m BundleMap) BundlesForFile(path string) []string {
	p := filepath.ToSlash(path)
	var out []string
	for name, patterns := range m {
		for _, pattern := range patterns {
			if ok, _ := doublestar.Match(pattern, p); ok {
				out = append(out, name)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Names returns every bundle name in sorted order
func (m BundleMap) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate rejects empty bundle names and malformed patterns
func (m BundleMap) Validate() error {
	for name, patterns := range m {
		if name == "" {
			return fmt.Errorf("%w: bundle name cannot be empty", ErrInvalidConfig)
		}
		if err := validateGlobs(patterns); err != nil {
			return fmt.Errorf("bundle %q: %w", name, err)
		}
	}
	return nil
}

func validateGlobs(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("%w: bad glob pattern %q", ErrInvalidConfig, p)
		}
	}
	return nil
}
