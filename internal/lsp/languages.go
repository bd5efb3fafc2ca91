package lsp

import (
	"fmt"
	"sort"
	"strings"
)

// Language describes one supported project language: the identifier sent to
// the server in didOpen notifications and the file extensions the scanner
// accepts for it.
type Language struct {
	ID         string
	Extensions []string
}

var languages = map[string]Language{
	"java":       {ID: "java", Extensions: []string{".java"}},
	"python":     {ID: "python", Extensions: []string{".py"}},
	"typescript": {ID: "typescript", Extensions: []string{".ts", ".tsx"}},
	"javascript": {ID: "javascript", Extensions: []string{".js", ".jsx"}},
	"csharp":     {ID: "csharp", Extensions: []string{".cs"}},
	"go":         {ID: "go", Extensions: []string{".go"}},
	"rust":       {ID: "rust", Extensions: []string{".rs"}},
	"kotlin":     {ID: "kotlin", Extensions: []string{".kt", ".kts"}},
	"ruby":       {ID: "ruby", Extensions: []string{".rb"}},
	"dart":       {ID: "dart", Extensions: []string{".dart"}},
}

// LookupLanguage returns the registered language for a (case-insensitive) tag.
func LookupLanguage(tag string) (Language, bool) {
	lang, ok := languages[strings.ToLower(tag)]
	return lang, ok
}

// SupportedLanguages returns all registered language tags in sorted order.
func SupportedLanguages() []string {
	tags := make([]string, 0, len(languages))
	for tag := range languages {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// ExtensionsFor returns the extension whitelist for a language tag.
func ExtensionsFor(tag string) ([]string, error) {
	lang, ok := LookupLanguage(tag)
	if !ok {
		return nil, fmt.Errorf("%w %q, supported: %s",
			ErrUnsupportedLanguage, tag, strings.Join(SupportedLanguages(), ", "))
	}
	return lang.Extensions, nil
}

// AllExtensions maps every registered extension to its language tag.
func AllExtensions() map[string]string {
	m := make(map[string]string)
	for tag, lang := range languages {
		for _, ext := range lang.Extensions {
			m[ext] = tag
		}
	}
	return m
}
