package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"refmap/internal/graph"
	"refmap/internal/project"
)

var resolveRootFlag string

var resolveCmd = &cobra.Command{
	Use:   "resolve <file> <symbol>",
	Short: "Look up a symbol's references in the persisted graph",
	Long: `Resolve a symbol name within a file against the last indexed graph and
print the matching entry with its reference sites. Exact dotted-path matches
win over suffix matches, which win over substring matches.`,
	Args: cobra.ExactArgs(2),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveRootFlag, "root", "", "project root (default: git root of the working directory)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(resolveRootFlag)
	if err != nil {
		return err
	}

	ws, err := project.Open(root)
	if err != nil {
		return fmt.Errorf("failed to open project workspace: %w", err)
	}

	g, err := graph.Load(ws.GraphPath())
	if err != nil {
		return fmt.Errorf("no index found for %s (run 'refmap index' first): %w", root, err)
	}

	result := graph.Resolve(root, g, args[0], args[1])
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
