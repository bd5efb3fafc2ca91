package analyzer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"refmap/internal/graph"
	"refmap/internal/lsp"
	"refmap/util"
)

// fakeSession scripts symbol and reference answers per file and position so
// sweeps run without a real language server.
type fakeSession struct {
	mu          sync.Mutex
	events      []string
	closeForce  []bool
	inFlight    int
	maxSeen     int
	delay       time.Duration
	block       chan struct{} // when set, DocumentSymbols waits for close or ctx

	symbols   map[string][]lsp.DocumentSymbol
	symbolErr map[string]error
	refs      map[string][]lsp.Location
	refErr    map[string]error
}

func (f *fakeSession) Start(ctx context.Context) error {
	f.record("start")
	return nil
}

func (f *fakeSession) Restart(ctx context.Context) error {
	f.record("restart")
	return nil
}

func (f *fakeSession) Close(force bool) {
	f.mu.Lock()
	f.events = append(f.events, "close")
	f.closeForce = append(f.closeForce, force)
	f.mu.Unlock()
}

func (f *fakeSession) DocumentSymbols(ctx context.Context, relPath string) ([]lsp.DocumentSymbol, error) {
	f.enter("symbols:" + relPath)
	defer f.exit()

	if f.block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.block:
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err := f.symbolErr[relPath]; err != nil {
		return nil, err
	}
	return f.symbols[relPath], nil
}

func (f *fakeSession) References(ctx context.Context, relPath string, pos lsp.Position) ([]lsp.Location, error) {
	key := fmt.Sprintf("%s:%d:%d", relPath, pos.Line, pos.Character)
	f.enter("refs:" + key)
	defer f.exit()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err := f.refErr[key]; err != nil {
		return nil, err
	}
	return f.refs[key], nil
}

func (f *fakeSession) enter(event string) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()
}

func (f *fakeSession) exit() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func (f *fakeSession) record(event string) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

func (f *fakeSession) snapshotEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	return root
}

func mustAnalyzer(t *testing.T, cfg Config, session SymbolSession) *Analyzer {
	t.Helper()
	a, err := newAnalyzer(cfg, session)
	if err != nil {
		t.Fatalf("newAnalyzer failed: %v", err)
	}
	return a
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func symbol(name string, kind int, line, nameChar int, children ...lsp.DocumentSymbol) lsp.DocumentSymbol {
	return lsp.DocumentSymbol{
		Name: name,
		Kind: kind,
		Range: lsp.Range{
			Start: lsp.Position{Line: line, Character: 0},
			End:   lsp.Position{Line: line + 2, Character: 0},
		},
		SelectionRange: lsp.Range{
			Start: lsp.Position{Line: line, Character: nameChar},
			End:   lsp.Position{Line: line, Character: nameChar + len(name)},
		},
		Children: children,
	}
}

func TestSweepBuildsGraph(t *testing.T) {
	root := writeProject(t, map[string]string{
		"app.py": "class App:\n    def run(self):\n        helper()\n",
		"lib.py": "def helper():\n    pass\n",
	})

	session := &fakeSession{
		symbols: map[string][]lsp.DocumentSymbol{
			"app.py": {symbol("App", lsp.SymbolKindClass, 0, 6,
				symbol("run", lsp.SymbolKindMethod, 1, 8))},
			"lib.py": {symbol("helper", lsp.SymbolKindFunction, 0, 4)},
		},
		refs: map[string][]lsp.Location{
			"lib.py:0:4": {{
				URI: util.PathToURI(filepath.Join(root, "app.py")),
				Range: lsp.Range{
					Start: lsp.Position{Line: 2, Character: 8},
					End:   lsp.Position{Line: 2, Character: 14},
				},
			}},
		},
	}

	a := mustAnalyzer(t, Config{RootPath: root, Language: "python"}, session)

	var calls [][2]int
	g, stats, err := a.Sweep(context.Background(), func(done, total int) {
		calls = append(calls, [2]int{done, total})
	})
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	if stats.FilesScanned != 2 || stats.FilesFailed != 0 {
		t.Errorf("files: %+v", stats)
	}
	if stats.Symbols != 3 || stats.SymbolsFailed != 0 {
		t.Errorf("symbols: %+v", stats)
	}
	if stats.References != 1 {
		t.Errorf("references = %d, want 1", stats.References)
	}

	app := g.Files["app.py"]
	for _, path := range []string{"App", "App.run"} {
		entry, ok := app[path]
		if !ok {
			t.Fatalf("missing entry %s, have %v", path, app)
		}
		if entry.References == nil || len(entry.References) != 0 {
			t.Errorf("%s: expected seeded empty references, got %v", path, entry.References)
		}
	}

	refs := g.Files["lib.py"]["helper"].References
	if len(refs) != 1 {
		t.Fatalf("helper references = %v", refs)
	}
	if refs[0].FilePath != "app.py" {
		t.Errorf("reference path = %q, want app.py", refs[0].FilePath)
	}
	if refs[0].Snippet != "helper()" {
		t.Errorf("snippet = %q, want helper()", refs[0].Snippet)
	}

	if a.Graph() != g {
		t.Error("swept graph not installed on the analyzer")
	}

	if len(calls) == 0 {
		t.Fatal("progress callback never invoked")
	}
	if first := calls[0]; first != [2]int{0, 3} {
		t.Errorf("first progress call = %v, want [0 3]", first)
	}
	if last := calls[len(calls)-1]; last != [2]int{3, 3} {
		t.Errorf("last progress call = %v, want [3 3]", last)
	}
	for i := 1; i < len(calls); i++ {
		if calls[i][0] < calls[i-1][0] {
			t.Errorf("progress went backwards: %v", calls)
		}
	}
}

func TestSweepRestartsBetweenPhases(t *testing.T) {
	root := writeProject(t, map[string]string{"a.py": "def f():\n    pass\n"})
	session := &fakeSession{
		symbols: map[string][]lsp.DocumentSymbol{
			"a.py": {symbol("f", lsp.SymbolKindFunction, 0, 4)},
		},
	}

	a := mustAnalyzer(t, Config{RootPath: root, Language: "python"}, session)
	if _, _, err := a.Sweep(context.Background(), nil); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	events := session.snapshotEvents()
	restart := -1
	for i, ev := range events {
		if ev == "restart" {
			restart = i
		}
	}
	if restart < 0 {
		t.Fatalf("no restart between phases: %v", events)
	}
	for i, ev := range events {
		if strings.HasPrefix(ev, "symbols:") && i > restart {
			t.Errorf("symbol query after restart: %v", events)
		}
		if strings.HasPrefix(ev, "refs:") && i < restart {
			t.Errorf("reference query before restart: %v", events)
		}
	}
}

func TestSweepSymbolFailureIsolated(t *testing.T) {
	root := writeProject(t, map[string]string{
		"bad.py":  "def broken():\n    pass\n",
		"good.py": "def ok():\n    pass\n",
	})
	session := &fakeSession{
		symbols: map[string][]lsp.DocumentSymbol{
			"good.py": {symbol("ok", lsp.SymbolKindFunction, 0, 4)},
		},
		symbolErr: map[string]error{
			"bad.py": context.DeadlineExceeded,
		},
	}

	a := mustAnalyzer(t, Config{RootPath: root, Language: "python"}, session)
	g, stats, err := a.Sweep(context.Background(), nil)
	if err != nil {
		t.Fatalf("sweep must survive per-file failures: %v", err)
	}

	if stats.FilesScanned != 2 || stats.FilesFailed != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if _, ok := g.Files["bad.py"]; ok {
		t.Error("failed file must contribute no entries")
	}
	if _, ok := g.Files["good.py"]["ok"]; !ok {
		t.Error("healthy file missing from graph")
	}
}

func TestSweepReferenceFailureKeepsSeed(t *testing.T) {
	root := writeProject(t, map[string]string{"a.py": "def f():\n    pass\n\ndef g():\n    f()\n"})
	session := &fakeSession{
		symbols: map[string][]lsp.DocumentSymbol{
			"a.py": {
				symbol("f", lsp.SymbolKindFunction, 0, 4),
				symbol("g", lsp.SymbolKindFunction, 3, 4),
			},
		},
		refs: map[string][]lsp.Location{
			"a.py:0:4": {{
				URI: util.PathToURI(filepath.Join(root, "a.py")),
				Range: lsp.Range{
					Start: lsp.Position{Line: 4, Character: 4},
					End:   lsp.Position{Line: 4, Character: 5},
				},
			}},
		},
		refErr: map[string]error{
			"a.py:3:4": errors.New("server went away"),
		},
	}

	a := mustAnalyzer(t, Config{RootPath: root, Language: "python"}, session)
	g, stats, err := a.Sweep(context.Background(), nil)
	if err != nil {
		t.Fatalf("sweep must survive per-symbol failures: %v", err)
	}

	if stats.SymbolsFailed != 1 {
		t.Errorf("symbols failed = %d, want 1", stats.SymbolsFailed)
	}
	if refs := g.Files["a.py"]["g"].References; refs == nil || len(refs) != 0 {
		t.Errorf("failed symbol must keep its seeded empty list, got %v", refs)
	}
	if refs := g.Files["a.py"]["f"].References; len(refs) != 1 {
		t.Errorf("healthy symbol lost its references: %v", refs)
	}
}

func TestSweepSingleWriter(t *testing.T) {
	root := writeProject(t, map[string]string{"a.py": "def f():\n    pass\n"})
	session := &fakeSession{block: make(chan struct{})}

	a := mustAnalyzer(t, Config{RootPath: root, Language: "python"}, session)

	errCh := make(chan error, 1)
	go func() {
		_, _, err := a.Sweep(context.Background(), nil)
		errCh <- err
	}()

	waitFor(t, func() bool {
		for _, ev := range session.snapshotEvents() {
			if strings.HasPrefix(ev, "symbols:") {
				return true
			}
		}
		return false
	})

	if _, _, err := a.Sweep(context.Background(), nil); !errors.Is(err, ErrSweepInProgress) {
		t.Errorf("concurrent sweep error = %v, want ErrSweepInProgress", err)
	}

	close(session.block)
	if err := <-errCh; err != nil {
		t.Errorf("first sweep failed: %v", err)
	}
}

func TestSweepCancellation(t *testing.T) {
	root := writeProject(t, map[string]string{"a.py": "def f():\n    pass\n"})
	session := &fakeSession{block: make(chan struct{})}

	a := mustAnalyzer(t, Config{RootPath: root, Language: "python"}, session)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, _, err := a.Sweep(ctx, nil)
		errCh <- err
	}()

	waitFor(t, func() bool {
		for _, ev := range session.snapshotEvents() {
			if strings.HasPrefix(ev, "symbols:") {
				return true
			}
		}
		return false
	})
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("sweep error = %v, want context.Canceled", err)
	}

	session.mu.Lock()
	forced := false
	for _, f := range session.closeForce {
		forced = forced || f
	}
	session.mu.Unlock()
	if !forced {
		t.Error("cancelled sweep must force-close the session")
	}
	if a.Graph() != nil {
		t.Error("cancelled sweep must not install a graph")
	}
}

func TestSweepBoundedConcurrency(t *testing.T) {
	files := make(map[string]string, 6)
	for i := 0; i < 6; i++ {
		files[fmt.Sprintf("f%d.py", i)] = "pass\n"
	}
	root := writeProject(t, files)
	session := &fakeSession{delay: 10 * time.Millisecond}

	a := mustAnalyzer(t, Config{RootPath: root, Language: "python", MaxInFlight: 2}, session)
	_, stats, err := a.Sweep(context.Background(), nil)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if stats.FilesScanned != 6 {
		t.Errorf("files scanned = %d, want 6", stats.FilesScanned)
	}

	session.mu.Lock()
	maxSeen := session.maxSeen
	session.mu.Unlock()
	if maxSeen > 2 {
		t.Errorf("observed %d concurrent requests, limit is 2", maxSeen)
	}
}

func TestSweepReplacesGraphWholesale(t *testing.T) {
	root := writeProject(t, map[string]string{"a.py": "def old():\n    pass\n"})
	session := &fakeSession{
		symbols: map[string][]lsp.DocumentSymbol{
			"a.py": {symbol("old", lsp.SymbolKindFunction, 0, 4)},
		},
	}

	a := mustAnalyzer(t, Config{RootPath: root, Language: "python"}, session)
	first, _, err := a.Sweep(context.Background(), nil)
	if err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}

	session.mu.Lock()
	session.symbols = map[string][]lsp.DocumentSymbol{
		"a.py": {symbol("renamed", lsp.SymbolKindFunction, 0, 4)},
	}
	session.mu.Unlock()

	second, _, err := a.Sweep(context.Background(), nil)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}

	if a.Graph() != second || a.Graph() == first {
		t.Error("second sweep must replace the installed graph")
	}
	if _, ok := second.Files["a.py"]["old"]; ok {
		t.Error("stale symbol survived a re-sweep")
	}
	if _, ok := second.Files["a.py"]["renamed"]; !ok {
		t.Error("new symbol missing after re-sweep")
	}
}

func TestSweepPersistsArtifact(t *testing.T) {
	root := writeProject(t, map[string]string{"a.py": "def f():\n    pass\n"})
	cachePath := filepath.Join(t.TempDir(), "graph.json")
	session := &fakeSession{
		symbols: map[string][]lsp.DocumentSymbol{
			"a.py": {symbol("f", lsp.SymbolKindFunction, 0, 4)},
		},
	}

	a := mustAnalyzer(t, Config{
		RootPath: root, Language: "python", CachePath: cachePath,
	}, session)
	if _, _, err := a.Sweep(context.Background(), nil); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	loaded, err := graph.Load(cachePath)
	if err != nil {
		t.Fatalf("artifact not readable: %v", err)
	}
	if loaded.Language != "python" || loaded.SymbolCount() != 1 {
		t.Errorf("artifact content wrong: %+v", loaded)
	}
}

func TestNewAnalyzerRejectsUnknownLanguage(t *testing.T) {
	_, err := newAnalyzer(Config{RootPath: t.TempDir(), Language: "cobol"}, &fakeSession{})
	if !errors.Is(err, lsp.ErrUnsupportedLanguage) {
		t.Errorf("error = %v, want ErrUnsupportedLanguage", err)
	}
}

func TestResolveBeforeFirstSweep(t *testing.T) {
	root := writeProject(t, map[string]string{"a.py": "pass\n"})
	a := mustAnalyzer(t, Config{RootPath: root, Language: "python"}, &fakeSession{})

	res := a.Resolve("a.py", "f")
	if res.Status != graph.StatusFailed {
		t.Errorf("resolve without a graph = %s, want failed", res.Status)
	}
}
