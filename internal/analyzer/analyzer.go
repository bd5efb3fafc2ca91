package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"refmap/internal/graph"
	"refmap/internal/lsp"
	"refmap/internal/scanner"
)

// ErrSweepInProgress is returned when a sweep is requested while another one
// is still running on the same analyzer.
var ErrSweepInProgress = errors.New("a sweep is already running for this project")

// Config describes one project analysis.
type Config struct {
	// RootPath is the project root directory.
	RootPath string
	// Language is the language tag to analyze ("python", "go", ...).
	Language string
	// IgnoreDirs are directory names pruned during the scan. Nil selects
	// scanner.DefaultIgnoreDirs; an explicit empty slice disables pruning.
	IgnoreDirs []string
	// MaxInFlight bounds concurrent language server requests per phase.
	// Zero or negative selects runtime.NumCPU().
	MaxInFlight int
	// CachePath is where the graph artifact is written after a sweep.
	// Empty disables persistence.
	CachePath string
	// ServerPath is a custom language server binary, overriding discovery.
	ServerPath string
	// SymbolTimeout bounds each per-file symbol request. Zero selects
	// lsp.DefaultSymbolTimeout.
	SymbolTimeout time.Duration
}

// ProgressFunc observes sweep progress: done reference lookups out of total.
// It is called under an internal lock, so implementations must not call back
// into the analyzer.
type ProgressFunc func(done, total int)

// Stats summarizes one completed sweep.
type Stats struct {
	FilesScanned  int           `json:"files_scanned"`
	FilesFailed   int           `json:"files_failed"`
	Symbols       int           `json:"symbols"`
	SymbolsFailed int           `json:"symbols_failed"`
	References    int           `json:"references"`
	Duration      time.Duration `json:"duration"`
}

// SymbolSession is the language server surface a sweep drives.
// *lsp.Session implements it.
type SymbolSession interface {
	Start(ctx context.Context) error
	DocumentSymbols(ctx context.Context, relPath string) ([]lsp.DocumentSymbol, error)
	References(ctx context.Context, relPath string, pos lsp.Position) ([]lsp.Location, error)
	Restart(ctx context.Context) error
	Close(force bool)
}

// Analyzer builds and owns the reference graph for one project. All state is
// per-instance; two analyzers never share anything.
type Analyzer struct {
	rootPath    string
	language    string
	ignoreDirs  []string
	maxInFlight int
	cachePath   string

	session SymbolSession

	sweepMu sync.Mutex // held for the duration of one sweep

	mu    sync.RWMutex
	graph *graph.Graph
}

// New validates the config, creates the language server session for it, and
// returns an analyzer ready to sweep. The server process itself is not
// launched until the first request needs it.
func New(cfg Config) (*Analyzer, error) {
	session, err := lsp.NewSession(cfg.RootPath, cfg.Language, &lsp.SessionOptions{
		ServerPath:    cfg.ServerPath,
		SymbolTimeout: cfg.SymbolTimeout,
	})
	if err != nil {
		return nil, err
	}
	return newAnalyzer(cfg, session)
}

func newAnalyzer(cfg Config, session SymbolSession) (*Analyzer, error) {
	abs, err := filepath.Abs(cfg.RootPath)
	if err != nil {
		return nil, err
	}
	lang, ok := lsp.LookupLanguage(cfg.Language)
	if !ok {
		return nil, fmt.Errorf("%w %q", lsp.ErrUnsupportedLanguage, cfg.Language)
	}

	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = runtime.NumCPU()
	}
	ignoreDirs := cfg.IgnoreDirs
	if ignoreDirs == nil {
		ignoreDirs = scanner.DefaultIgnoreDirs
	}

	return &Analyzer{
		rootPath:    abs,
		language:    lang.ID,
		ignoreDirs:  ignoreDirs,
		maxInFlight: maxInFlight,
		cachePath:   cfg.CachePath,
		session:     session,
	}, nil
}

// Root returns the absolute project root.
func (a *Analyzer) Root() string { return a.rootPath }

// Language returns the canonical language tag.
func (a *Analyzer) Language() string { return a.language }

// Graph returns the most recently built graph, or nil before the first sweep
// or SetGraph.
func (a *Analyzer) Graph() *graph.Graph {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.graph
}

// SetGraph installs a previously persisted graph, typically loaded from the
// cache artifact at startup.
func (a *Analyzer) SetGraph(g *graph.Graph) {
	a.mu.Lock()
	a.graph = g
	a.mu.Unlock()
}

// Resolve looks up a symbol in the current graph.
func (a *Analyzer) Resolve(filePath, symbolName string) graph.ResolveResult {
	return graph.Resolve(a.rootPath, a.Graph(), filePath, symbolName)
}

// Close shuts the underlying language server down. With force the process is
// killed if it does not exit within the close timeout. Safe to call at any
// time, including while a sweep is running on another goroutine.
func (a *Analyzer) Close(force bool) {
	a.session.Close(force)
}

// Sweep rebuilds the reference graph from scratch: scan the project, collect
// symbols per file, restart the language server, resolve references per
// symbol, then replace the current graph wholesale and persist it. Only one
// sweep runs per analyzer at a time; a concurrent call fails fast with
// ErrSweepInProgress. Per-file and per-symbol failures are counted in Stats
// but never abort the sweep; context cancellation does, after force-closing
// the session.
func (a *Analyzer) Sweep(ctx context.Context, progress ProgressFunc) (*graph.Graph, *Stats, error) {
	if !a.sweepMu.TryLock() {
		return nil, nil, ErrSweepInProgress
	}
	defer a.sweepMu.Unlock()

	started := time.Now()

	files, err := scanner.Scan(a.rootPath, a.language, a.ignoreDirs)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("[%s] scanning %s: %d source files", a.language, a.rootPath, len(files))

	stats := &Stats{FilesScanned: len(files)}

	table := a.collectSymbols(ctx, files, stats)
	if err := ctx.Err(); err != nil {
		a.session.Close(true)
		return nil, nil, err
	}
	log.Printf("[%s] indexed %d symbols across %d files (%d files failed)",
		a.language, stats.Symbols, len(table), stats.FilesFailed)

	// The bulk symbol pass leaves some servers with degraded open-document
	// state; the reference pass gets a fresh process.
	if err := a.session.Restart(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to restart language server: %w", err)
	}

	g := graph.NewGraph(a.language, table)
	a.collectReferences(ctx, g, stats, progress)
	if err := ctx.Err(); err != nil {
		a.session.Close(true)
		return nil, nil, err
	}

	stats.Duration = time.Since(started)
	log.Printf("[%s] sweep complete: %d symbols, %d references in %v",
		a.language, stats.Symbols, stats.References, stats.Duration.Round(time.Millisecond))

	a.mu.Lock()
	a.graph = g
	a.mu.Unlock()

	if a.cachePath != "" {
		if err := graph.Save(a.cachePath, g); err != nil {
			return g, stats, err
		}
	}
	return g, stats, nil
}

// fileResult is the outcome of one file's symbol query.
type fileResult struct {
	file    scanner.File
	symbols map[string]graph.SymbolEntry
	err     error
}

// collectSymbols queries every scanned file for its symbols concurrently,
// bounded by maxInFlight, and assembles the table. A failed or timed-out file
// contributes no symbols and is counted, nothing more.
func (a *Analyzer) collectSymbols(ctx context.Context, files []scanner.File, stats *Stats) graph.Table {
	results := make([]fileResult, len(files))

	grp := new(errgroup.Group)
	grp.SetLimit(a.maxInFlight)
	for i, f := range files {
		grp.Go(func() error {
			symbols, err := a.session.DocumentSymbols(ctx, f.RelPath)
			if err != nil {
				results[i] = fileResult{file: f, err: err}
				return nil
			}
			results[i] = fileResult{file: f, symbols: flattenSymbols(symbols)}
			return nil
		})
	}
	_ = grp.Wait()

	table := make(graph.Table, len(files))
	for _, r := range results {
		if r.err != nil {
			stats.FilesFailed++
			log.Printf("[%s] no symbol data for %s: %v", a.language, r.file.RelPath, r.err)
			continue
		}
		if len(r.symbols) == 0 {
			continue
		}
		table[r.file.RelPath] = r.symbols
	}
	stats.Symbols = table.SymbolCount()
	return table
}

// refTask addresses one seeded graph entry during the reference pass.
type refTask struct {
	file   string
	path   string
	symbol graph.SymbolEntry
}

// refResult is the outcome of one symbol's reference query.
type refResult struct {
	refs []graph.Reference
	err  error
}

// collectReferences resolves references for every symbol in the seeded graph,
// bounded by maxInFlight. Entries whose query fails or returns nothing keep
// their seeded empty list; non-empty results overwrite it. Tasks run in
// lexicographic (file, path) order so progress and logs are deterministic.
func (a *Analyzer) collectReferences(ctx context.Context, g *graph.Graph, stats *Stats, progress ProgressFunc) {
	var tasks []refTask
	for file, entries := range g.Files {
		for path, entry := range entries {
			tasks = append(tasks, refTask{file: file, path: path, symbol: entry.Symbol})
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].file != tasks[j].file {
			return tasks[i].file < tasks[j].file
		}
		return tasks[i].path < tasks[j].path
	})

	total := len(tasks)
	if progress != nil {
		progress(0, total)
	}

	results := make([]refResult, total)
	var progressMu sync.Mutex
	completed := 0

	grp := new(errgroup.Group)
	grp.SetLimit(a.maxInFlight)
	for i, task := range tasks {
		grp.Go(func() error {
			locations, err := a.session.References(ctx, task.file, task.symbol.Position())
			if err != nil {
				results[i] = refResult{err: err}
			} else {
				refs := make([]graph.Reference, 0, len(locations))
				for _, loc := range locations {
					refs = append(refs, normalizeLocation(a.rootPath, loc))
				}
				results[i] = refResult{refs: refs}
			}

			progressMu.Lock()
			completed++
			if progress != nil {
				progress(completed, total)
			}
			progressMu.Unlock()
			return nil
		})
	}
	_ = grp.Wait()

	for i, task := range tasks {
		r := results[i]
		if r.err != nil {
			stats.SymbolsFailed++
			log.Printf("[%s] failed to resolve references for %s in %s: %v",
				a.language, task.path, task.file, r.err)
			continue
		}
		if len(r.refs) == 0 {
			continue
		}
		entry := g.Files[task.file][task.path]
		entry.References = r.refs
		g.Files[task.file][task.path] = entry
		stats.References += len(r.refs)
	}
}
