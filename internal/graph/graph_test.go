package graph

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"refmap/internal/lsp"
)

func TestNewGraphSeedsEmptyReferences(t *testing.T) {
	table := Table{
		"a.py": {
			"A":     {Path: "A", Kind: lsp.SymbolKindClass},
			"A.run": {Path: "A.run", Kind: lsp.SymbolKindMethod},
		},
		"b.py": {
			"main": {Path: "main", Kind: lsp.SymbolKindFunction},
		},
	}

	g := NewGraph("python", table)
	if g.Language != "python" {
		t.Errorf("language = %q, want python", g.Language)
	}
	if g.GeneratedAt.IsZero() {
		t.Error("generated_at not set")
	}
	if got := g.SymbolCount(); got != 3 {
		t.Errorf("symbol count = %d, want 3", got)
	}
	if got := g.ReferenceCount(); got != 0 {
		t.Errorf("reference count = %d, want 0", got)
	}
	for file, entries := range g.Files {
		for path, entry := range entries {
			if entry.References == nil {
				t.Errorf("%s %s: references must be an empty list, not nil", file, path)
			}
			if entry.Symbol.Path != path {
				t.Errorf("%s: entry keyed %q carries symbol path %q", file, path, entry.Symbol.Path)
			}
		}
	}
}

func TestSymbolEntryPosition(t *testing.T) {
	withSelection := SymbolEntry{
		Range:          lsp.Range{Start: lsp.Position{Line: 2, Character: 0}, End: lsp.Position{Line: 9, Character: 1}},
		SelectionRange: lsp.Range{Start: lsp.Position{Line: 2, Character: 6}, End: lsp.Position{Line: 2, Character: 10}},
	}
	if got := withSelection.Position(); got.Line != 2 || got.Character != 6 {
		t.Errorf("position = %+v, want selection start 2:6", got)
	}

	withoutSelection := SymbolEntry{
		Range: lsp.Range{Start: lsp.Position{Line: 4, Character: 1}, End: lsp.Position{Line: 4, Character: 20}},
	}
	if got := withoutSelection.Position(); got.Line != 4 || got.Character != 1 {
		t.Errorf("position = %+v, want range start 4:1", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	g := NewGraph("go", Table{
		"pkg/server.go": {
			"Server":       {Path: "Server", Kind: lsp.SymbolKindClass},
			"Server.Start": {Path: "Server.Start", Kind: lsp.SymbolKindMethod},
		},
	})
	entry := g.Files["pkg/server.go"]["Server.Start"]
	entry.References = append(entry.References, Reference{
		FilePath: "cmd/main.go",
		Range:    lsp.Range{Start: lsp.Position{Line: 12, Character: 8}, End: lsp.Position{Line: 12, Character: 13}},
		Snippet:  "srv.Start()",
	})
	g.Files["pkg/server.go"]["Server.Start"] = entry

	path := filepath.Join(t.TempDir(), "cache", "graph.json")
	if err := Save(path, g); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !strings.HasPrefix(string(data), "{\n  ") {
		t.Error("artifact should be indented JSON")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Language != "go" {
		t.Errorf("language = %q, want go", loaded.Language)
	}
	if got := loaded.SymbolCount(); got != 2 {
		t.Errorf("symbol count = %d, want 2", got)
	}
	refs := loaded.Files["pkg/server.go"]["Server.Start"].References
	if len(refs) != 1 || refs[0].FilePath != "cmd/main.go" || refs[0].Snippet != "srv.Start()" {
		t.Errorf("references did not survive the round trip: %+v", refs)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing artifact")
	}
}

func TestLoadNormalizesNilFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	if err := os.WriteFile(path, []byte(`{"language":"python","generated_at":"2025-01-02T03:04:05Z"}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	g, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if g.Files == nil {
		t.Fatal("files map must be non-nil after load")
	}
}
