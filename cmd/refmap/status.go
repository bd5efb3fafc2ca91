package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"refmap/internal/project"
)

var (
	statusRootFlag string
	statusAll      bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the index state of a project",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusRootFlag, "root", "", "project root (default: git root of the working directory)")
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "list every project refmap knows about")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusAll {
		return printAllProjects()
	}

	root, err := resolveRoot(statusRootFlag)
	if err != nil {
		return err
	}

	ws, err := project.Open(root)
	if err != nil {
		return fmt.Errorf("failed to open project workspace: %w", err)
	}

	st, err := ws.LoadState()
	if err != nil {
		return fmt.Errorf("failed to load project state: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printAllProjects() error {
	configs, err := project.Projects()
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		fmt.Println("No indexed projects.")
		return nil
	}

	for _, cfg := range configs {
		ws, err := project.Open(cfg.RootPath)
		if err != nil {
			fmt.Printf("%s (%s): workspace error: %v\n", cfg.RootPath, cfg.Language, err)
			continue
		}
		st, err := ws.LoadState()
		if err != nil {
			fmt.Printf("%s (%s): state error: %v\n", cfg.RootPath, cfg.Language, err)
			continue
		}
		line := fmt.Sprintf("%s (%s): %s", cfg.RootPath, cfg.Language, st.Status)
		if st.Status == project.StateReady {
			line += fmt.Sprintf(", %d symbols, %d references, last sweep %s",
				st.Symbols, st.References, st.LastSweep.Format("2006-01-02 15:04:05"))
		}
		if st.Error != "" {
			line += fmt.Sprintf(" (%s)", st.Error)
		}
		fmt.Println(line)
	}
	return nil
}
