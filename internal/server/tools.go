package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"refmap/internal/analyzer"
	"refmap/internal/project"
)

// Arguments structs

type IndexArgs struct{}

type IndexStatusArgs struct{}

type FindReferencesArgs struct {
	FilePath   string `json:"file_path" jsonschema:"required,description:Path of the file that declares the symbol, relative to the project root"`
	SymbolName string `json:"symbol_name" jsonschema:"required,description:Symbol name to look up; dotted paths like ClassName.method disambiguate nested symbols"`
}

type ListFileSymbolsArgs struct {
	FilePath string `json:"file_path" jsonschema:"required,description:Path of the file to list, relative to the project root"`
}

type SearchSymbolsArgs struct {
	Query string `json:"query" jsonschema:"required,description:Substring to match against symbol dotted paths"`
	Limit int    `json:"limit" jsonschema:"description:Maximum number of results, default 50"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "index",
		Description: "Scans the project and rebuilds the symbol reference graph",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args IndexArgs) (*mcp.CallToolResult, any, error) {
		s.indexMu.RLock()
		currentStatus := s.indexStatus
		s.indexMu.RUnlock()

		if currentStatus == IndexInProgress {
			return errorResult("Indexing already in progress"), nil, nil
		}
		if currentStatus == IndexReady || currentStatus == IndexFailed {
			s.resetIndexReady()
		}

		s.setIndexStatus(IndexInProgress, nil)

		sweepCtx, cancel := context.WithTimeout(ctx, s.sweepTimeout)
		defer cancel()

		g, stats, err := s.analyzer.Sweep(sweepCtx, s.workspace.ProgressWriter(progressInterval))
		if err != nil {
			if errors.Is(err, analyzer.ErrSweepInProgress) {
				return errorResult("Indexing already in progress"), nil, nil
			}
			s.setIndexStatus(IndexFailed, err)
			s.recordSweep(nil, err)
			return errorResult(fmt.Sprintf("Index failed: %v", err)), nil, nil
		}

		if err := s.store.ReplaceGraph(ctx, g); err != nil {
			err = fmt.Errorf("failed to store index: %w", err)
			s.setIndexStatus(IndexFailed, err)
			s.recordSweep(nil, err)
			return errorResult(fmt.Sprintf("Index failed: %v", err)), nil, nil
		}

		s.setIndexStatus(IndexReady, nil)
		s.recordSweep(stats, nil)

		msg := fmt.Sprintf("Indexed %d symbols and %d references across %d files in %.2fs",
			stats.Symbols, stats.References, stats.FilesScanned, stats.Duration.Seconds())
		return textResult(msg), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "index_status",
		Description: "Returns the progress and outcome of the current index",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args IndexStatusArgs) (*mcp.CallToolResult, any, error) {
		status, duration, err := s.GetIndexStatus()

		result := map[string]any{
			"status": string(status),
		}
		if duration > 0 {
			result["duration_seconds"] = duration.Seconds()
		}
		if err != nil {
			result["error"] = err.Error()
		}

		if st, stErr := s.workspace.LoadState(); stErr == nil {
			if st.Total > 0 {
				result["progress"] = st.Progress
				result["total"] = st.Total
			}
			if !st.LastSweep.IsZero() {
				result["last_sweep"] = st.LastSweep.Format(time.RFC3339)
				result["files"] = st.Files
				result["symbols"] = st.Symbols
				result["references"] = st.References
			}
		}

		jsonBytes, _ := json.MarshalIndent(result, "", "  ")
		return textResult(string(jsonBytes)), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "find_references",
		Description: "Finds every location that references a symbol declared in the given file",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args FindReferencesArgs) (*mcp.CallToolResult, any, error) {
		if res := s.waitForIndex(ctx); res != nil {
			return res, nil, nil
		}

		resolved := s.analyzer.Resolve(args.FilePath, args.SymbolName)
		jsonBytes, _ := json.MarshalIndent(resolved, "", "  ")
		return textResult(string(jsonBytes)), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_file_symbols",
		Description: "Lists the symbols declared in a file with their reference counts",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ListFileSymbolsArgs) (*mcp.CallToolResult, any, error) {
		if res := s.waitForIndex(ctx); res != nil {
			return res, nil, nil
		}

		symbols, err := s.store.SymbolsInFile(ctx, s.relPath(args.FilePath))
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		if len(symbols) == 0 {
			return textResult("No symbols indexed for this file. Check the path or re-run index."), nil, nil
		}

		type fileSymbol struct {
			Name       string `json:"name"`
			Kind       string `json:"kind"`
			Range      string `json:"range"`
			References int    `json:"references"`
		}
		var listed []fileSymbol
		for _, sym := range symbols {
			listed = append(listed, fileSymbol{
				Name: sym.Entry.Path,
				Kind: sym.Entry.KindName(),
				Range: fmt.Sprintf("%d:%d-%d:%d",
					sym.Entry.Range.Start.Line, sym.Entry.Range.Start.Character,
					sym.Entry.Range.End.Line, sym.Entry.Range.End.Character),
				References: sym.RefCount,
			})
		}

		jsonBytes, _ := json.MarshalIndent(listed, "", "  ")
		return textResult(string(jsonBytes)), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "search_symbols",
		Description: "Searches indexed symbols by name across the project",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args SearchSymbolsArgs) (*mcp.CallToolResult, any, error) {
		if res := s.waitForIndex(ctx); res != nil {
			return res, nil, nil
		}

		hits, err := s.store.SearchSymbols(ctx, args.Query, args.Limit)
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		if len(hits) == 0 {
			return textResult("No matching symbols found."), nil, nil
		}

		type searchHit struct {
			Name       string `json:"name"`
			FilePath   string `json:"file_path"`
			Kind       string `json:"kind"`
			References int    `json:"references"`
		}
		var matched []searchHit
		for _, hit := range hits {
			matched = append(matched, searchHit{
				Name:       hit.Entry.Path,
				FilePath:   hit.FilePath,
				Kind:       hit.Entry.KindName(),
				References: hit.RefCount,
			})
		}

		jsonBytes, _ := json.MarshalIndent(matched, "", "  ")
		return textResult(string(jsonBytes)), nil, nil
	})
}

// waitForIndex blocks until the index is usable, returning a ready-made error
// result when it is not. A nil return means queries may proceed.
func (s *Server) waitForIndex(ctx context.Context) *mcp.CallToolResult {
	status, _, _ := s.GetIndexStatus()
	if status == IndexNotStarted {
		return errorResult("Project not indexed yet. Run the index tool first.")
	}

	waitCtx, cancel := context.WithTimeout(ctx, toolWaitTimeout)
	defer cancel()
	if err := s.WaitForIndex(waitCtx); err != nil {
		status, _, indexErr := s.GetIndexStatus()
		if indexErr != nil {
			return errorResult(fmt.Sprintf("Indexing failed: %v", indexErr))
		}
		if status == IndexInProgress {
			return errorResult("Indexing in progress, please try again")
		}
		return errorResult(fmt.Sprintf("Indexing wait failed: %v", err))
	}

	if status, _, indexErr := s.GetIndexStatus(); status == IndexFailed {
		return errorResult(fmt.Sprintf("Indexing failed: %v", indexErr))
	}
	return nil
}

// relPath normalizes a caller-supplied path to the project-relative slash
// form the index is keyed by.
func (s *Server) relPath(p string) string {
	if filepath.IsAbs(p) {
		if rel, err := filepath.Rel(s.analyzer.Root(), p); err == nil {
			p = rel
		}
	}
	return filepath.ToSlash(p)
}

// recordSweep persists the outcome of an index round to the workspace.
func (s *Server) recordSweep(stats *analyzer.Stats, sweepErr error) {
	st := &project.State{}
	if sweepErr != nil {
		st.Status = project.StateFailed
		st.Error = sweepErr.Error()
	} else {
		st.Status = project.StateReady
		st.LastSweep = time.Now().UTC()
		st.Progress = stats.Symbols
		st.Total = stats.Symbols
		st.Files = stats.FilesScanned
		st.Symbols = stats.Symbols
		st.References = stats.References
	}
	if err := s.workspace.SaveState(st); err != nil {
		log.Printf("Warning: failed to persist index state: %v", err)
	}
}
