package pkgmgr

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"refmap/internal/downloader"
)

// Installer downloads language servers and installs them as managed
// packages with versioned directories and bin symlinks.
type Installer struct {
	manager *Manager
	dl      *downloader.Downloader
}

// NewInstaller creates a new installer instance.
func NewInstaller(manager *Manager) (*Installer, error) {
	dl, err := downloader.New()
	if err != nil {
		return nil, err
	}
	return &Installer{
		manager: manager,
		dl:      dl,
	}, nil
}

// Install downloads and installs the server described by metadata as a
// package for the given language.
func (i *Installer) Install(ctx context.Context, lang string, metadata *downloader.LSPServerMetadata) error {
	if !metadata.Downloadable() {
		hint := metadata.InstallHint
		if hint == "" {
			hint = fmt.Sprintf("install %s through your system package manager", metadata.Name)
		}
		return fmt.Errorf("%s cannot be installed by refmap: %s", metadata.Name, hint)
	}

	packageName := metadata.Name

	// Check if already installed
	if installed, version, _ := i.manager.IsInstalled(packageName); installed {
		log.Printf("[%s] Already installed (version %s)", packageName, version)
		return nil
	}

	platform := downloader.GetPlatformKey()
	downloadURL, ok := metadata.DownloadURLs[platform]
	if !ok {
		return fmt.Errorf("no download URL for platform: %s", platform)
	}

	log.Printf("[%s] Installing version %s...", packageName, metadata.Version)

	versionDir := filepath.Join(i.manager.packagesDir, packageName, metadata.Version)

	binaryName := metadata.BinaryName
	if runtime.GOOS == "windows" && filepath.Ext(binaryName) != ".exe" {
		binaryName += ".exe"
	}
	binaryPath := filepath.Join(versionDir, binaryName)

	if err := i.dl.FetchBinary(ctx, lang, metadata, binaryPath); err != nil {
		return fmt.Errorf("failed to fetch %s: %w", metadata.Name, err)
	}

	// Write package metadata
	pkg := &Package{
		Name:        packageName,
		Language:    lang,
		Version:     metadata.Version,
		BinaryName:  metadata.BinaryName,
		InstalledAt: time.Now().Format(time.RFC3339),
		DownloadURL: downloadURL,
		Checksum:    metadata.Checksums[platform],
	}
	if err := i.manager.writePackageMetadata(packageName, metadata.Version, pkg); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	// Create 'current' symlink to this version
	pkgDir := filepath.Join(i.manager.packagesDir, packageName)
	currentLink := filepath.Join(pkgDir, "current")
	_ = os.Remove(currentLink) // Remove existing
	if err := os.Symlink(metadata.Version, currentLink); err != nil {
		return fmt.Errorf("failed to create current version link: %w", err)
	}

	// Create binary symlink in bin directory
	binPath, err := GetBinaryPath(metadata.BinaryName)
	if err != nil {
		return err
	}
	if err := createSymlink(binaryPath, binPath); err != nil {
		return fmt.Errorf("failed to create binary symlink: %w", err)
	}

	log.Printf("[%s] Successfully installed version %s", packageName, metadata.Version)
	return nil
}
