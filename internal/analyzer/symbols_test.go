package analyzer

import (
	"testing"

	"refmap/internal/lsp"
)

func TestFlattenSymbols(t *testing.T) {
	tree := []lsp.DocumentSymbol{
		symbol("Service", lsp.SymbolKindClass, 0, 6,
			symbol("Inner", lsp.SymbolKindClass, 1, 10,
				symbol("call", lsp.SymbolKindMethod, 2, 12)),
			symbol("run", lsp.SymbolKindMethod, 5, 8)),
		symbol("main", lsp.SymbolKindFunction, 10, 4),
	}

	got := flattenSymbols(tree)

	want := []string{"Service", "Service.Inner", "Service.Inner.call", "Service.run", "main"}
	if len(got) != len(want) {
		t.Fatalf("flattened %d symbols, want %d: %v", len(got), len(want), got)
	}
	for _, path := range want {
		entry, ok := got[path]
		if !ok {
			t.Errorf("missing dotted path %s", path)
			continue
		}
		if entry.Path != path {
			t.Errorf("entry %s carries path %s", path, entry.Path)
		}
	}

	if got["Service.Inner.call"].Kind != lsp.SymbolKindMethod {
		t.Errorf("kind not preserved for nested symbol")
	}
	if pos := got["Service.run"].Position(); pos.Line != 5 || pos.Character != 8 {
		t.Errorf("selection position lost: %+v", pos)
	}
}

func TestFlattenSymbolsDuplicateLastWins(t *testing.T) {
	tree := []lsp.DocumentSymbol{
		symbol("handler", lsp.SymbolKindFunction, 0, 4),
		symbol("handler", lsp.SymbolKindFunction, 7, 4),
	}

	got := flattenSymbols(tree)
	if len(got) != 1 {
		t.Fatalf("duplicates must collapse to one entry, got %d", len(got))
	}
	if got["handler"].Range.Start.Line != 7 {
		t.Errorf("last declaration must win, got line %d", got["handler"].Range.Start.Line)
	}
}

func TestFlattenSymbolsEmpty(t *testing.T) {
	if got := flattenSymbols(nil); len(got) != 0 {
		t.Errorf("expected empty table, got %v", got)
	}
	if got := flattenSymbols([]lsp.DocumentSymbol{}); len(got) != 0 {
		t.Errorf("expected empty table, got %v", got)
	}
}
