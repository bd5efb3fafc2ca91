package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"refmap/internal/scanner"
	"refmap/util"
)

// Version is set by build flags.
var Version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "refmap",
	Short: "refmap - project-wide symbol reference maps from language servers",
	Long: `refmap drives a language server over every source file of a project to
build a reference graph: symbols become dotted paths, every usage site is
recorded with its code snippet, and the result is queryable from the command
line or served to MCP clients over stdio.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate("refmap version {{.Version}}\n")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serversCmd)
}

// resolveRoot expands the --root flag. Empty means the git root enclosing
// the working directory, or the working directory itself outside a repo.
func resolveRoot(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if gitRoot, err := util.FindGitRoot(cwd); err == nil {
		return gitRoot, nil
	}
	return cwd, nil
}

// resolveLanguage expands the --language flag, detecting the dominant
// project language when it is unset.
func resolveLanguage(root, flag string, ignoreDirs []string) (string, error) {
	if flag != "" {
		return flag, nil
	}

	lang, err := scanner.DetectLanguage(root, ignoreDirs)
	if err != nil {
		return "", fmt.Errorf("failed to detect project language (pass --language): %w", err)
	}
	log.Printf("Detected project language: %s", lang)
	return lang, nil
}
