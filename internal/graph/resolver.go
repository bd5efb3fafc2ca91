package graph

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusFailed  Status = "failed"
)

// ResolveResult is the structured answer for one symbol lookup. Result
// carries the matched graph entry on success and is absent otherwise.
// Lookups never fail with an error; "not found" and "ambiguous" are statuses.
type ResolveResult struct {
	Status   Status `json:"status"`
	Message  string `json:"message"`
	FilePath string `json:"file_path"`
	Result   *Entry `json:"result,omitempty"`
}

// Resolve matches a possibly-imprecise symbol name against one file's graph
// entries. Tiers run in fixed precedence: exact key match, then suffix match
// (the name alone or any dotted path ending in ".name"), then substring match
// with parenthesized parameter suffixes stripped from both sides. A tier with
// exactly one candidate resolves; several candidates produce a warning that
// enumerates them and never auto-picks; an empty tier falls through.
// filePath may be absolute or project-relative.
func Resolve(root string, g *Graph, filePath, symbolName string) ResolveResult {
	res := ResolveResult{Status: StatusSuccess, FilePath: filePath}

	relPath := filePath
	if filepath.IsAbs(filePath) {
		if rel, err := filepath.Rel(root, filePath); err == nil {
			relPath = rel
		}
	}
	relPath = filepath.ToSlash(relPath)

	onDisk := filepath.Join(root, filepath.FromSlash(relPath))
	if _, err := os.Stat(onDisk); err != nil {
		if strings.TrimSpace(symbolName) == "" {
			res.Status = StatusFailed
			res.Message = fmt.Sprintf(
				"Invalid file path: %s, please provide the correct file path and re-index the project",
				filePath)
			return res
		}
	}

	var entries map[string]Entry
	if g != nil {
		entries = g.Files[relPath]
	}
	if entries == nil {
		res.Status = StatusFailed
		res.Message = "File provided not found, please check the file path and re-index the project"
		return res
	}

	// Exact tier.
	if entry, ok := entries[symbolName]; ok {
		res.Result = &entry
		return res
	}

	// Suffix tier.
	var suffixMatches []string
	for path := range entries {
		if path == symbolName || strings.HasSuffix(path, "."+symbolName) {
			suffixMatches = append(suffixMatches, path)
		}
	}
	sort.Strings(suffixMatches)
	switch {
	case len(suffixMatches) == 1:
		entry := entries[suffixMatches[0]]
		res.Result = &entry
		return res
	case len(suffixMatches) > 1:
		res.Status = StatusWarning
		res.Message = enumerateCandidates(
			fmt.Sprintf("Found multiple symbols matching '%s':", symbolName),
			suffixMatches, false)
		return res
	}

	// Substring tier.
	query := stripParams(symbolName)
	var containsMatches []string
	for path := range entries {
		if strings.Contains(stripParams(path), query) {
			containsMatches = append(containsMatches, path)
		}
	}
	sort.Strings(containsMatches)
	switch {
	case len(containsMatches) == 1:
		entry := entries[containsMatches[0]]
		res.Result = &entry
		return res
	case len(containsMatches) > 1:
		res.Status = StatusWarning
		res.Message = enumerateCandidates(
			fmt.Sprintf("Found multiple symbols containing '%s':", symbolName),
			containsMatches, true)
		return res
	}

	res.Status = StatusFailed
	res.Message = fmt.Sprintf("No symbols matching '%s' were found", symbolName)
	return res
}

// stripParams drops a parenthesized parameter suffix so method names compare
// without their signatures.
func stripParams(s string) string {
	if i := strings.Index(s, "("); i >= 0 {
		return s[:i]
	}
	return s
}

func enumerateCandidates(header string, matches []string, numbered bool) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteByte('\n')
	for i, m := range matches {
		if numbered {
			fmt.Fprintf(&b, "%d. %s\n", i+1, m)
		} else {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}
	b.WriteString("Please choose a more specific name")
	return b.String()
}
