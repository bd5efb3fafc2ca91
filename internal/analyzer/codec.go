package analyzer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"refmap/internal/graph"
	"refmap/internal/lsp"
	"refmap/util"
)

// normalizeLocation converts one location reported by the language server
// into a stored reference: the URI becomes a project-relative slash path, and
// the source text under the range is captured as a snippet. Locations outside
// the project root keep whatever relative path they relativize to; if the
// path cannot be relativized at all it is stored as-is.
func normalizeLocation(root string, loc lsp.Location) graph.Reference {
	abs := util.URIToPath(loc.URI)

	rel := abs
	if r, err := filepath.Rel(root, abs); err == nil {
		rel = r
	}

	return graph.Reference{
		FilePath: filepath.ToSlash(rel),
		Range:    loc.Range,
		Snippet:  extractSnippet(abs, loc.Range),
	}
}

// extractSnippet returns the source lines covered by the range. A single-line
// range yields the trimmed line; a multi-line range yields the lines joined
// verbatim, both endpoints included. Unreadable files and out-of-bounds
// ranges yield a placeholder instead of an error so one bad location never
// poisons a sweep.
func extractSnippet(path string, rng lsp.Range) string {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "<file does not exist>"
		}
		return fmt.Sprintf("<failed to read snippet: %v>", err)
	}

	lines := strings.Split(string(data), "\n")
	start, end := rng.Start.Line, rng.End.Line
	if start < 0 || end >= len(lines) || start > end {
		return "<invalid line range>"
	}

	if start == end {
		return strings.TrimSpace(lines[start])
	}
	return strings.Join(lines[start:end+1], "\n")
}
