package project

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"refmap/util"
)

// RefmapHome returns the root directory for refmap state.
// Priority: $REFMAP_HOME -> $XDG_CACHE_HOME/refmap -> ~/.cache/refmap (Unix) / %LOCALAPPDATA%\refmap (Windows)
func RefmapHome() (string, error) {
	if home := os.Getenv("REFMAP_HOME"); home != "" {
		return home, nil
	}

	if runtime.GOOS != "windows" {
		if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
			return filepath.Join(xdgCache, "refmap"), nil
		}
	}

	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(userHome, "AppData", "Local", "refmap"), nil
	default:
		return filepath.Join(userHome, ".cache", "refmap"), nil
	}
}

// ProjectsDir returns the directory holding all per-project workspaces.
func ProjectsDir() (string, error) {
	home, err := RefmapHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "projects"), nil
}

// WorkspaceDir returns the workspace directory for one project root. The
// directory name is derived from the absolute root path, so the same project
// always maps to the same workspace.
func WorkspaceDir(rootPath string) (string, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return "", err
	}
	projects, err := ProjectsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(projects, util.ProjectKey(abs)), nil
}
