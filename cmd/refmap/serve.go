package main

import (
	"context"
	"errors"
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
	serveRoot        string
	serveLanguage    string
	serveServerPath  string
	serveMaxInFlight int
	serveTimeout     time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP stdio server for a project",
	Long: `Run the Model Context Protocol server over stdio, exposing index,
find_references, list_file_symbols and search_symbols tools to MCP clients.
A graph persisted by an earlier index run is loaded at startup.

This command is typically invoked by MCP clients and not directly by users.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveRoot, "root", "", "project root (default: git root of the working directory)")
	serveCmd.Flags().StringVar(&serveLanguage, "language", "", "project language (default: saved config, then detection)")
	serveCmd.Flags().StringVar(&serveServerPath, "server-path", "", "custom language server binary")
	serveCmd.Flags().IntVar(&serveMaxInFlight, "max-in-flight", 0, "concurrent language server requests (default: number of CPUs)")
	serveCmd.Flags().DurationVar(&serveTimeout, "timeout", server.DefaultSweepTimeout, "ceiling for one index sweep")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Logs must stay off stdout, which carries the MCP protocol.
	log.SetOutput(os.Stderr)

	root, err := resolveRoot(serveRoot)
	if err != nil {
		return err
	}

	ws, err := project.Open(root)
	if err != nil {
		return fmt.Errorf("failed to open project workspace: %w", err)
	}

	// Flags win over the configuration saved by the last index run.
	lang := serveLanguage
	ignoreDirs := []string(nil)
	maxInFlight := serveMaxInFlight
	serverPath := serveServerPath
	if cfg, err := ws.LoadConfig(); err == nil {
		if lang == "" {
			lang = cfg.Language
		}
		ignoreDirs = cfg.IgnoreDirs
		if maxInFlight == 0 {
			maxInFlight = cfg.MaxInFlight
		}
		if serverPath == "" {
			serverPath = cfg.ServerPath
		}
	}
	if lang == "" {
		lang, err = resolveLanguage(root, "", ignoreDirs)
		if err != nil {
			return err
		}
	}

	a, err := analyzer.New(analyzer.Config{
		RootPath:    root,
		Language:    lang,
		IgnoreDirs:  ignoreDirs,
		MaxInFlight: maxInFlight,
		CachePath:   ws.GraphPath(),
		ServerPath:  serverPath,
	})
	if err != nil {
		return err
	}

	db, err := store.Open(ws.DBPath())
	if err != nil {
		a.Close(true)
		return fmt.Errorf("failed to open symbol store: %w", err)
	}
	defer db.Close()

	srv := server.New(a, ws, db, &server.Options{
		Version:      Version,
		SweepTimeout: serveTimeout,
	})
	defer srv.Close(false)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("[server] refmap %s serving %s project at %s", Version, lang, root)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
