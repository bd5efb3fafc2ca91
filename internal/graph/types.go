package graph

import (
	"time"

	"refmap/internal/lsp"
)

// SymbolEntry is one declared symbol, addressed by its dotted path. Dotted
// paths join ancestor names with ".", so nested symbols (a method inside a
// class) are addressable by a single string key, unique within one file.
type SymbolEntry struct {
	Path           string    `json:"path"`
	Kind           int       `json:"kind"`
	Range          lsp.Range `json:"range"`
	SelectionRange lsp.Range `json:"selectionRange"`
}

// KindName returns the human-readable symbol kind.
func (e SymbolEntry) KindName() string {
	return lsp.SymbolKindName(e.Kind)
}

// Position is where reference queries anchor: the selection range start (the
// name token) when known, else the declaration range start.
func (e SymbolEntry) Position() lsp.Position {
	if !e.SelectionRange.IsZero() {
		return e.SelectionRange.Start
	}
	return e.Range.Start
}

// Reference is one usage site of a symbol, distinct from its declaration.
// FilePath is always project-relative.
type Reference struct {
	FilePath string    `json:"file_path"`
	Range    lsp.Range `json:"range"`
	Snippet  string    `json:"snippet"`
}

// Entry is the per-symbol graph value: the baseline declaration metadata plus
// every reference found for it. An empty reference list means the sweep found
// no usages; the baseline symbol is never discarded.
type Entry struct {
	Symbol     SymbolEntry `json:"symbol"`
	References []Reference `json:"references"`
}

// Table maps file → dotted path → symbol. It is owned by one analyzer
// instance and rebuilt wholesale on every sweep, never merged.
type Table map[string]map[string]SymbolEntry

// SymbolCount sums the symbols across all files.
func (t Table) SymbolCount() int {
	n := 0
	for _, symbols := range t {
		n += len(symbols)
	}
	return n
}

// Graph is the persisted reference graph for one project, replaced wholesale
// by each sweep.
type Graph struct {
	Language    string                      `json:"language"`
	GeneratedAt time.Time                   `json:"generated_at"`
	Files       map[string]map[string]Entry `json:"files"`
}

// NewGraph seeds a graph from a symbol table: every entry starts with its
// baseline symbol and an empty reference list.
func NewGraph(language string, table Table) *Graph {
	files := make(map[string]map[string]Entry, len(table))
	for file, symbols := range table {
		entries := make(map[string]Entry, len(symbols))
		for path, sym := range symbols {
			entries[path] = Entry{Symbol: sym, References: []Reference{}}
		}
		files[file] = entries
	}
	return &Graph{
		Language:    language,
		GeneratedAt: time.Now().UTC(),
		Files:       files,
	}
}

// SymbolCount sums the symbols across all files.
func (g *Graph) SymbolCount() int {
	n := 0
	for _, entries := range g.Files {
		n += len(entries)
	}
	return n
}

// ReferenceCount sums the resolved references across all symbols.
func (g *Graph) ReferenceCount() int {
	n := 0
	for _, entries := range g.Files {
		for _, entry := range entries {
			n += len(entry.References)
		}
	}
	return n
}
