package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"refmap/internal/analyzer"
	"refmap/internal/graph"
	"refmap/internal/project"
	"refmap/internal/store"
)

// IndexStatus is the lifecycle state of the reference index.
type IndexStatus string

const (
	IndexNotStarted IndexStatus = "not_started"
	IndexInProgress IndexStatus = "in_progress"
	IndexReady      IndexStatus = "ready"
	IndexFailed     IndexStatus = "failed"
)

const (
	// DefaultSweepTimeout bounds one full index sweep.
	DefaultSweepTimeout = 20 * time.Minute
	// progressInterval throttles sweep progress writes to the workspace.
	progressInterval = 2 * time.Second
	// toolWaitTimeout bounds how long a query tool waits for an in-flight
	// sweep before telling the caller to retry.
	toolWaitTimeout = 30 * time.Second
)

// Options tune the server beyond its defaults.
type Options struct {
	Version      string
	SweepTimeout time.Duration
}

// Server exposes one project's reference graph over MCP. Queries run against
// the last completed sweep; the index tool rebuilds it in place.
type Server struct {
	mcpServer *mcp.Server
	analyzer  *analyzer.Analyzer
	workspace *project.Workspace
	store     *store.Store

	sweepTimeout time.Duration

	indexMu       sync.RWMutex
	indexStatus   IndexStatus
	indexErr      error
	indexStarted  time.Time
	indexDuration time.Duration
	indexReady    chan struct{}
}

// New assembles the MCP server around an analyzer, its workspace, and the
// query store. A graph artifact persisted by an earlier run is loaded
// immediately so queries work without re-indexing.
func New(a *analyzer.Analyzer, ws *project.Workspace, st *store.Store, opts *Options) *Server {
	if opts == nil {
		opts = &Options{}
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	sweepTimeout := opts.SweepTimeout
	if sweepTimeout <= 0 {
		sweepTimeout = DefaultSweepTimeout
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    "refmap",
			Version: version,
		}, nil),
		analyzer:     a,
		workspace:    ws,
		store:        st,
		sweepTimeout: sweepTimeout,
		indexStatus:  IndexNotStarted,
		indexReady:   make(chan struct{}),
	}

	if g, err := graph.Load(ws.GraphPath()); err == nil {
		a.SetGraph(g)
		s.setIndexStatus(IndexReady, nil)
		log.Printf("[%s] loaded cached graph: %d symbols, %d references",
			a.Language(), g.SymbolCount(), g.ReferenceCount())
	}

	s.registerTools()
	s.registerResources()
	return s
}

// Run serves MCP over stdio until the context is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// Close shuts down the language server session behind the analyzer.
func (s *Server) Close(force bool) {
	s.analyzer.Close(force)
}

// GetIndexStatus reports the index lifecycle state, how long the last sweep
// took (or has been running), and the error of a failed sweep.
func (s *Server) GetIndexStatus() (IndexStatus, time.Duration, error) {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()

	duration := s.indexDuration
	if s.indexStatus == IndexInProgress && !s.indexStarted.IsZero() {
		duration = time.Since(s.indexStarted)
	}
	return s.indexStatus, duration, s.indexErr
}

// WaitForIndex blocks until the current indexing round settles (ready or
// failed) or the context expires.
func (s *Server) WaitForIndex(ctx context.Context) error {
	s.indexMu.RLock()
	ready := s.indexReady
	s.indexMu.RUnlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) setIndexStatus(status IndexStatus, err error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	s.indexStatus = status
	s.indexErr = err

	switch status {
	case IndexInProgress:
		s.indexStarted = time.Now()
	case IndexReady, IndexFailed:
		if !s.indexStarted.IsZero() {
			s.indexDuration = time.Since(s.indexStarted)
		}
		select {
		case <-s.indexReady:
		default:
			close(s.indexReady)
		}
	}
}

// resetIndexReady arms a fresh ready channel before a re-index.
func (s *Server) resetIndexReady() {
	s.indexMu.Lock()
	s.indexReady = make(chan struct{})
	s.indexMu.Unlock()
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

const systemPrompt = `# refmap

refmap maintains a cross-reference graph for one project: every symbol a
language server reports, addressed by its dotted path (` + "`ClassName.method`" + `),
with every location that uses it.

## Workflow

1. Call ` + "`index`" + ` once per session (or after large edits). It scans the
   project, asks the language server for each file's symbols, then resolves
   references for every symbol. Expect it to take a while on big projects;
   ` + "`index_status`" + ` reports progress.
2. Use ` + "`find_references`" + ` before changing or removing a symbol. Pass the
   file that declares the symbol and the symbol's name. Dotted paths
   disambiguate (` + "`UserService.save`" + ` rather than ` + "`save`" + `); when a bare name
   is ambiguous the tool lists the candidates instead of guessing.
3. Use ` + "`list_file_symbols`" + ` to see what a file declares, and
   ` + "`search_symbols`" + ` to find where something is declared.

## Notes

- All file paths in results are relative to the project root.
- Reference lookups answer from the last completed index; they do not see
  edits made since. Re-run ` + "`index`" + ` after refactoring.
- A symbol with an empty reference list was indexed but never used anywhere
  the language server could see.
`
