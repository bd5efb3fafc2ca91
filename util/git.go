package util

import (
	"os"
	"path/filepath"
)

// FindGitRoot finds the root of the git repository containing start.
// Returns start unchanged if no .git directory is found on the way up.
func FindGitRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}

	cur := dir
	for {
		if _, err := os.Stat(filepath.Join(cur, ".git")); err == nil {
			return cur, nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			// Reached filesystem root
			return dir, nil
		}
		cur = parent
	}
}
