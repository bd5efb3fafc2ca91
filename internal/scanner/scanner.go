package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	ignore "github.com/sabhiram/go-gitignore"

	"refmap/internal/lsp"
)

// File is one source file selected for analysis.
type File struct {
	RelPath  string `json:"rel_path"` // project-relative, forward slashes
	Language string `json:"language"`
}

// DefaultIgnoreDirs lists directory names skipped when the caller supplies no
// ignore list of its own.
var DefaultIgnoreDirs = []string{
	"__pycache__", ".pytest_cache", ".venv", ".git", ".idea",
	"venv", "env", "node_modules", "dist", "build", ".vscode",
	".github", ".gitlab", ".angular", "cdk.out", ".aws-sam", ".terraform",
	"__MACOSX", "other",
}

// Scan walks the project tree and returns every file whose extension belongs
// to the language's whitelist, project-relative and sorted lexicographically.
// Directories named in ignoreDirs are pruned before descent. A .gitignore at
// the root, when present, excludes its matches as well. Callers must not rely
// on anything beyond set membership; the sort only keeps runs reproducible.
func Scan(root, language string, ignoreDirs []string) ([]File, error) {
	exts, err := lsp.ExtensionsFor(language)
	if err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(absRoot); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("project root not found: %s", absRoot)
	}

	extSet := make(map[string]bool, len(exts))
	for _, e := range exts {
		extSet[e] = true
	}

	var files []File
	err = walkSource(absRoot, ignoreDirs, func(relPath, name string) {
		if !extSet[filepath.Ext(name)] {
			return
		}
		files = append(files, File{RelPath: relPath, Language: language})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// DetectLanguage walks the tree counting files per registered language and
// returns the most common one. Ties break lexicographically so detection is
// stable across runs.
func DetectLanguage(root string, ignoreDirs []string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(absRoot); err != nil || !info.IsDir() {
		return "", fmt.Errorf("project root not found: %s", absRoot)
	}

	extLang := lsp.AllExtensions()
	counts := make(map[string]int)
	err = walkSource(absRoot, ignoreDirs, func(relPath, name string) {
		if lang, ok := extLang[filepath.Ext(name)]; ok {
			counts[lang]++
		}
	})
	if err != nil {
		return "", err
	}

	best, bestCount := "", 0
	for lang, count := range counts {
		if count > bestCount || (count == bestCount && (best == "" || lang < best)) {
			best, bestCount = lang, count
		}
	}
	if best == "" {
		return "", fmt.Errorf("no source files found for any supported language in %s", absRoot)
	}
	return best, nil
}

// walkSource visits every regular file under absRoot, pruning ignored
// directory names before descent and honoring a root .gitignore if present.
// Unreadable entries are skipped, not fatal.
func walkSource(absRoot string, ignoreDirs []string, visit func(relPath, name string)) error {
	skip := make(map[string]bool, len(ignoreDirs))
	for _, d := range ignoreDirs {
		skip[d] = true
	}

	var gi *ignore.GitIgnore
	if compiled, err := ignore.CompileIgnoreFile(filepath.Join(absRoot, ".gitignore")); err == nil {
		gi = compiled
	}

	return filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		relSlash := filepath.ToSlash(rel)

		if d.IsDir() {
			if skip[d.Name()] {
				return fs.SkipDir
			}
			if gi != nil && gi.MatchesPath(relSlash+"/") {
				return fs.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if gi != nil && gi.MatchesPath(relSlash) {
			return nil
		}
		visit(relSlash, d.Name())
		return nil
	})
}
