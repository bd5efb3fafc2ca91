package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"refmap/internal/analyzer"
	"refmap/internal/project"
	"refmap/internal/server"
	"refmap/internal/store"
)

var (
	indexRoot        string
	indexLanguage    string
	indexIgnoreDirs  []string
	indexMaxInFlight int
	indexTimeout     time.Duration
	indexServerPath  string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the reference graph for a project",
	Long: `Scan the project, collect symbols from the language server, resolve
references for every symbol, and persist the graph to the project workspace.
A previous graph for the same project is replaced wholesale.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexRoot, "root", "", "project root (default: git root of the working directory)")
	indexCmd.Flags().StringVar(&indexLanguage, "language", "", "project language (default: detected from source files)")
	indexCmd.Flags().StringSliceVar(&indexIgnoreDirs, "ignore", nil, "directory names to skip (default: common dependency and build dirs)")
	indexCmd.Flags().IntVar(&indexMaxInFlight, "max-in-flight", 0, "concurrent language server requests (default: number of CPUs)")
	indexCmd.Flags().DurationVar(&indexTimeout, "timeout", server.DefaultSweepTimeout, "abort the sweep after this long")
	indexCmd.Flags().StringVar(&indexServerPath, "server-path", "", "custom language server binary")
}

func runIndex(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(indexRoot)
	if err != nil {
		return err
	}
	lang, err := resolveLanguage(root, indexLanguage, indexIgnoreDirs)
	if err != nil {
		return err
	}

	ws, err := project.Open(root)
	if err != nil {
		return fmt.Errorf("failed to open project workspace: %w", err)
	}

	a, err := analyzer.New(analyzer.Config{
		RootPath:    root,
		Language:    lang,
		IgnoreDirs:  indexIgnoreDirs,
		MaxInFlight: indexMaxInFlight,
		CachePath:   ws.GraphPath(),
		ServerPath:  indexServerPath,
	})
	if err != nil {
		return err
	}
	defer a.Close(false)

	// Remember the configuration so serve and status need no flags.
	cfg := &project.Config{
		RootPath:    root,
		Language:    lang,
		IgnoreDirs:  indexIgnoreDirs,
		MaxInFlight: indexMaxInFlight,
		ServerPath:  indexServerPath,
	}
	if err := ws.SaveConfig(cfg); err != nil {
		log.Printf("Warning: failed to save project config: %v", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	log.Printf("[%s] Indexing %s", lang, root)

	stateProgress := ws.ProgressWriter(2 * time.Second)
	var lastPrint time.Time
	progress := func(done, total int) {
		stateProgress(done, total)
		if done == 0 || done == total || time.Since(lastPrint) >= 2*time.Second {
			lastPrint = time.Now()
			log.Printf("[%s] Resolving references: %d/%d", lang, done, total)
		}
	}

	g, stats, err := a.Sweep(ctx, progress)
	if err != nil {
		saveSweepState(ws, nil, err)
		return fmt.Errorf("index failed: %w", err)
	}

	db, err := store.Open(ws.DBPath())
	if err != nil {
		saveSweepState(ws, nil, err)
		return fmt.Errorf("failed to open symbol store: %w", err)
	}
	defer db.Close()
	if err := db.ReplaceGraph(ctx, g); err != nil {
		saveSweepState(ws, nil, err)
		return fmt.Errorf("failed to persist symbol store: %w", err)
	}

	saveSweepState(ws, stats, nil)

	fmt.Printf("Indexed %d symbols and %d references across %d files in %.2fs\n",
		stats.Symbols, stats.References, stats.FilesScanned, stats.Duration.Seconds())
	fmt.Printf("Graph written to %s\n", ws.GraphPath())
	return nil
}

// saveSweepState records the sweep outcome in the project workspace.
func saveSweepState(ws *project.Workspace, stats *analyzer.Stats, sweepErr error) {
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
	if err := ws.SaveState(st); err != nil {
		log.Printf("Warning: failed to persist index state: %v", err)
	}
}
