package pkgmgr

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"refmap/internal/project"
)

// GetBinDir returns the unified bin directory containing installed server
// executables. It lives under the same refmap home as project workspaces.
func GetBinDir() (string, error) {
	home, err := project.RefmapHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "bin"), nil
}

// GetPackagesDir returns the directory containing all installed packages.
func GetPackagesDir() (string, error) {
	home, err := project.RefmapHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "packages"), nil
}

// GetPackageDir returns the directory for a specific package.
func GetPackageDir(packageName string) (string, error) {
	pkgDir, err := GetPackagesDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(pkgDir, packageName), nil
}

// GetPackageVersionDir returns the directory for a specific package version.
func GetPackageVersionDir(packageName, version string) (string, error) {
	pkgDir, err := GetPackageDir(packageName)
	if err != nil {
		return "", err
	}
	return filepath.Join(pkgDir, version), nil
}

// GetBinaryPath returns the path to a binary in the unified bin directory.
func GetBinaryPath(binaryName string) (string, error) {
	binDir, err := GetBinDir()
	if err != nil {
		return "", err
	}

	// Add .exe on Windows
	if runtime.GOOS == "windows" && filepath.Ext(binaryName) != ".exe" {
		binaryName += ".exe"
	}

	return filepath.Join(binDir, binaryName), nil
}

// EnsureDirectories creates the package management directories if they don't
// exist.
func EnsureDirectories() error {
	dirs := []func() (string, error){
		GetBinDir,
		GetPackagesDir,
	}

	for _, dirFunc := range dirs {
		dir, err := dirFunc()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
