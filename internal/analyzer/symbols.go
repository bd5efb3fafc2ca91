package analyzer

import (
	"refmap/internal/graph"
	"refmap/internal/lsp"
)

// flattenSymbols turns a hierarchical documentSymbol tree into a flat table
// keyed by dotted path, where each nested symbol is prefixed with the names
// of its ancestors ("OrderService.process"). Servers occasionally report two
// symbols with the same dotted path (overloads, re-declarations); the last
// one reported wins.
func flattenSymbols(symbols []lsp.DocumentSymbol) map[string]graph.SymbolEntry {
	out := make(map[string]graph.SymbolEntry)

	var walk func(prefix string, nodes []lsp.DocumentSymbol)
	walk = func(prefix string, nodes []lsp.DocumentSymbol) {
		for _, node := range nodes {
			path := node.Name
			if prefix != "" {
				path = prefix + "." + node.Name
			}
			out[path] = graph.SymbolEntry{
				Path:           path,
				Kind:           node.Kind,
				Range:          node.Range,
				SelectionRange: node.SelectionRange,
			}
			walk(path, node.Children)
		}
	}
	walk("", symbols)

	return out
}
