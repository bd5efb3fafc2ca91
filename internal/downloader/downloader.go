package downloader

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Downloader handles language server binary downloads and caching.
type Downloader struct {
	cacheDir string
	client   *http.Client
}

// New creates a new Downloader with the default cache directory.
func New() (*Downloader, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get cache dir: %w", err)
	}
	return &Downloader{
		cacheDir: cacheDir,
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}, nil
}

// GetCacheDir returns the cache directory for language server binaries.
// Priority: $REFMAP_CACHE_DIR -> $XDG_CACHE_HOME/refmap/lsp -> ~/.cache/refmap/lsp
func GetCacheDir() (string, error) {
	if dir := os.Getenv("REFMAP_CACHE_DIR"); dir != "" {
		return filepath.Join(dir, "lsp"), nil
	}

	if runtime.GOOS != "windows" {
		if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
			return filepath.Join(xdgCache, "refmap", "lsp"), nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	if runtime.GOOS == "windows" {
		return filepath.Join(home, "AppData", "Local", "refmap", "lsp"), nil
	}

	return filepath.Join(home, ".cache", "refmap", "lsp"), nil
}

// ServerCommand resolves the launch command for a language's server: the
// binary path followed by the arguments that put it in stdio LSP mode. It
// uses the default cache directory.
func ServerCommand(ctx context.Context, lang, customPath string) ([]string, error) {
	d, err := New()
	if err != nil {
		return nil, err
	}
	return d.ServerCommand(ctx, lang, customPath)
}

// ServerCommand resolves the launch command for a language's server.
func (d *Downloader) ServerCommand(ctx context.Context, lang, customPath string) ([]string, error) {
	metadata, ok := lspMetadata[canonicalLang(lang)]
	if !ok {
		return nil, fmt.Errorf("no language server metadata for %s", lang)
	}

	binPath, err := d.EnsureLSP(ctx, lang, customPath)
	if err != nil {
		return nil, err
	}

	return append([]string{binPath}, metadata.LaunchArgs...), nil
}

// EnsureLSP ensures the language server binary for the given language is
// available. Returns the path to the binary. Priority:
// 1. customPath (if provided and exists)
// 2. System PATH
// 3. Cache directory (download if needed)
func (d *Downloader) EnsureLSP(ctx context.Context, lang, customPath string) (string, error) {
	lang = canonicalLang(lang)
	metadata, err := GetLSPMetadata(lang)
	if err != nil {
		return "", err
	}

	// Priority 1: Custom path from flags
	if customPath != "" {
		if _, err := os.Stat(customPath); err == nil {
			log.Printf("[%s] Using custom LSP path: %s", lang, customPath)
			return customPath, nil
		}
		log.Printf("[%s] Custom path not found: %s, falling back...", lang, customPath)
	}

	// Priority 2: System PATH
	if systemPath, err := findInPath(metadata.BinaryName); err == nil {
		log.Printf("[%s] Using system LSP: %s", lang, systemPath)
		return systemPath, nil
	}

	// Some servers only ship through system package managers.
	if !metadata.Downloadable() {
		hint := metadata.InstallHint
		if hint == "" {
			hint = fmt.Sprintf("install %s and put it on PATH", metadata.Name)
		}
		return "", fmt.Errorf("%s not found for %s: %s", metadata.Name, lang, hint)
	}

	// Priority 3: Cache directory
	cachedPath := d.getCachedBinaryPath(lang, metadata.Version)
	if _, err := os.Stat(cachedPath); err == nil {
		log.Printf("[%s] Using cached LSP: %s", lang, cachedPath)
		return cachedPath, nil
	}

	// Download needed
	log.Printf("[%s] LSP not found, downloading %s %s...", lang, metadata.Name, metadata.Version)
	if err := d.downloadAndInstall(ctx, lang, metadata); err != nil {
		return "", fmt.Errorf("failed to download %s: %w", metadata.Name, err)
	}

	log.Printf("[%s] Successfully downloaded and installed %s %s", lang, metadata.Name, metadata.Version)
	return cachedPath, nil
}

// getCachedBinaryPath returns the expected path for a cached binary.
func (d *Downloader) getCachedBinaryPath(lang, version string) string {
	binaryName := lspMetadata[canonicalLang(lang)].BinaryName
	if runtime.GOOS == "windows" {
		binaryName += ".exe"
	}
	return filepath.Join(d.cacheDir, lang, version, binaryName)
}

// downloadAndInstall downloads a language server binary into the cache.
func (d *Downloader) downloadAndInstall(ctx context.Context, lang string, metadata *LSPServerMetadata) error {
	return d.FetchBinary(ctx, lang, metadata, d.getCachedBinaryPath(lang, metadata.Version))
}

// FetchBinary downloads the server binary described by metadata and places
// it at destPath, verifying the checksum and unpacking archives as needed.
func (d *Downloader) FetchBinary(ctx context.Context, lang string, metadata *LSPServerMetadata, destPath string) error {
	platform := GetPlatformKey()
	downloadURL, ok := metadata.DownloadURLs[platform]
	if !ok {
		return fmt.Errorf("no download URL for platform: %s", platform)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create install dir: %w", err)
	}

	// Download to temporary file
	tmpFile, err := os.CreateTemp("", fmt.Sprintf("refmap-lsp-%s-*", lang))
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())
	defer tmpFile.Close()

	if err := d.downloadFile(ctx, downloadURL, tmpFile); err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	// Verify checksum if provided
	if checksum := metadata.Checksums[platform]; checksum != "" {
		if err := verifyChecksum(tmpFile.Name(), checksum); err != nil {
			return fmt.Errorf("checksum verification failed: %w", err)
		}
	}

	if metadata.IsArchive {
		// The temp file carries no extension, so dispatch on the URL.
		if err := d.extractArchive(tmpFile.Name(), downloadURL, destPath, metadata); err != nil {
			return fmt.Errorf("extraction failed: %w", err)
		}
	} else {
		if err := copyFile(tmpFile.Name(), destPath); err != nil {
			return fmt.Errorf("failed to copy binary: %w", err)
		}
		if err := os.Chmod(destPath, 0755); err != nil {
			return fmt.Errorf("failed to make binary executable: %w", err)
		}
	}

	return nil
}

// downloadFile downloads a file with retries.
func (d *Downloader) downloadFile(ctx context.Context, url string, dest *os.File) error {
	const maxRetries = 3
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt*attempt) * time.Second
			log.Printf("Retry %d/%d after %v...", attempt, maxRetries, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			lastErr = err
			continue
		}

		resp, err := d.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
			continue
		}

		// Reset file position
		if _, err := dest.Seek(0, 0); err != nil {
			resp.Body.Close()
			return err
		}

		_, err = io.Copy(dest, resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		return nil
	}

	return fmt.Errorf("download failed after %d attempts: %w", maxRetries, lastErr)
}

// extractArchive extracts the server binary from a downloaded archive into
// binaryPath. The format is taken from the download URL because the temp
// file name has no extension.
func (d *Downloader) extractArchive(archivePath, downloadURL, binaryPath string, metadata *LSPServerMetadata) error {
	switch {
	case strings.HasSuffix(downloadURL, ".zip"):
		return extractZip(archivePath, binaryPath, metadata.ArchivePath)
	case strings.HasSuffix(downloadURL, ".tar.gz"), strings.HasSuffix(downloadURL, ".tgz"):
		return extractTarGz(archivePath, binaryPath, metadata.ArchivePath)
	case strings.HasSuffix(downloadURL, ".gz"):
		// rust-analyzer ships plain gzipped binaries.
		return extractGzip(archivePath, binaryPath)
	default:
		return fmt.Errorf("unsupported archive format: %s", downloadURL)
	}
}

// extractTarGz extracts the entry matching targetPath from a .tar.gz archive.
func extractTarGz(archivePath, binaryPath, targetPath string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("tar read error: %w", err)
		}

		if strings.HasSuffix(header.Name, targetPath) || header.Name == targetPath {
			return extractFile(tr, binaryPath, header.FileInfo().Mode())
		}
	}

	return fmt.Errorf("binary not found in archive: %s", targetPath)
}

// extractZip extracts the entry matching targetPath from a .zip archive.
func extractZip(archivePath, binaryPath, targetPath string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if strings.HasSuffix(f.Name, targetPath) || f.Name == targetPath {
			rc, err := f.Open()
			if err != nil {
				return err
			}
			defer rc.Close()

			return extractFile(rc, binaryPath, f.Mode())
		}
	}

	return fmt.Errorf("binary not found in archive: %s", targetPath)
}

// extractGzip decompresses a plain gzipped binary.
func extractGzip(archivePath, binaryPath string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	return extractFile(gzr, binaryPath, 0755)
}

// extractFile extracts a single file from a reader.
func extractFile(r io.Reader, destPath string, mode os.FileMode) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return err
	}

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return err
	}

	// Ensure executable
	if runtime.GOOS != "windows" {
		if err := os.Chmod(destPath, 0755); err != nil {
			return err
		}
	}

	return nil
}

// verifyChecksum verifies the SHA256 checksum of a file.
func verifyChecksum(filePath, expectedChecksum string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}

	actualChecksum := hex.EncodeToString(h.Sum(nil))
	if actualChecksum != expectedChecksum {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expectedChecksum, actualChecksum)
	}

	return nil
}

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}

	return out.Close()
}

// findInPath searches for a binary in the system PATH.
func findInPath(binaryName string) (string, error) {
	// Add .exe extension on Windows
	if runtime.GOOS == "windows" && !strings.HasSuffix(binaryName, ".exe") {
		binaryName += ".exe"
	}

	pathEnv := os.Getenv("PATH")
	paths := filepath.SplitList(pathEnv)

	for _, dir := range paths {
		fullPath := filepath.Join(dir, binaryName)
		if info, err := os.Stat(fullPath); err == nil && !info.IsDir() {
			// Check if executable on Unix-like systems
			if runtime.GOOS != "windows" {
				if info.Mode()&0111 == 0 {
					continue
				}
			}
			return fullPath, nil
		}
	}

	return "", fmt.Errorf("%s not found in PATH", binaryName)
}
