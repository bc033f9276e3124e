// Package tokenize splits identifiers and free text into lower-case words
// and stems them. The classifier and the local embedder share it so keyword
// rules and query text agree on word boundaries.
package tokenize

import (
	"strings"
	"unicode"

	"github.com/surgebase/porter2"
)

// MinStemLength is the shortest word that is stemmed
const MinStemLength = 3

// SplitIdentifier splits a symbol name into its constituent words.
// It handles camelCase, PascalCase, snake_case, kebab-case, acronyms
// (HTTPServer -> http server) and letter/digit transitions.
func SplitIdentifier(name string) []string {
	runes := []rune(name)
	words := make([]string, 0, 4)
	buf := make([]rune, 0, len(runes))

	flush := func() {
		if len(buf) > 0 {
			words = append(words, strings.ToLower(string(buf)))
			buf = buf[:0]
		}
	}

	for i, ch := range runes {
		if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) {
			flush()
			continue
		}
		if i > 0 {
			prev := runes[i-1]
			switch {
			case unicode.IsLower(prev) && unicode.IsUpper(ch):
				flush()
			case unicode.IsLetter(prev) && unicode.IsDigit(ch),
				unicode.IsDigit(prev) && unicode.IsLetter(ch):
				flush()
			case i+1 < len(runes) && unicode.IsUpper(prev) && unicode.IsUpper(ch) && unicode.IsLower(runes[i+1]):
				// end of an acronym: the last capital starts the next word
				flush()
			}
		}
		buf = append(buf, ch)
	}
	flush()

	return words
}

// Words splits free text (source code, queries, paths) into identifier words
func Words(text string) []string {
	var words []string
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '$'
	}) {
		words = append(words, SplitIdentifier(field)...)
	}
	return words
}

// Stem returns the porter2 stem of a lower-case word. Short words and
// numbers are returned unchanged.
func Stem(word string) string {
	if len(word) < MinStemLength || !unicode.IsLetter(rune(word[0])) {
		return word
	}
	return porter2.Stem(word)
}

// Stems returns the distinct stems of the words in text, in first-seen order
func Stems(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range Words(text) {
		s := Stem(w)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
