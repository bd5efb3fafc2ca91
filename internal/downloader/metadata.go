package downloader

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"strings"
)

// LSPServerMetadata defines how to obtain and launch one language server.
type LSPServerMetadata struct {
	Name            string
	Version         string            // Used as fallback if version resolution fails
	BinaryName      string            // name of the executable in the archive
	LaunchArgs      []string          // arguments that put the server in stdio LSP mode
	DownloadURLs    map[string]string // platform -> download URL template (use {version} placeholder)
	Checksums       map[string]string // platform -> SHA256 checksum
	IsArchive       bool              // whether download is an archive (tar.gz/zip/gz)
	ArchivePath     string            // path to binary within archive (if applicable)
	InstallHint     string            // how to install servers refmap cannot download
	VersionResolver VersionResolver   // Optional: resolver for fetching latest version dynamically
}

// Downloadable reports whether refmap can fetch this server itself rather
// than relying on a system install.
func (m *LSPServerMetadata) Downloadable() bool {
	return len(m.DownloadURLs) > 0
}

// languageAliases maps languages served by another language's server.
var languageAliases = map[string]string{
	"javascript": "typescript",
}

func canonicalLang(lang string) string {
	if alias, ok := languageAliases[lang]; ok {
		return alias
	}
	return lang
}

// GetLSPMetadata returns metadata for a given language's server. It resolves
// the latest version dynamically if a VersionResolver is configured.
func GetLSPMetadata(lang string) (*LSPServerMetadata, error) {
	metadata, ok := lspMetadata[canonicalLang(lang)]
	if !ok {
		return nil, fmt.Errorf("no language server metadata for %s", lang)
	}

	// Clone metadata to avoid modifying the original
	resolved := &LSPServerMetadata{
		Name:            metadata.Name,
		Version:         metadata.Version,
		BinaryName:      metadata.BinaryName,
		LaunchArgs:      append([]string(nil), metadata.LaunchArgs...),
		DownloadURLs:    make(map[string]string),
		Checksums:       metadata.Checksums,
		IsArchive:       metadata.IsArchive,
		ArchivePath:     metadata.ArchivePath,
		InstallHint:     metadata.InstallHint,
		VersionResolver: metadata.VersionResolver,
	}

	// Resolve latest version if resolver is configured
	if metadata.VersionResolver != nil {
		ctx := context.Background()
		latestVersion, err := metadata.VersionResolver.ResolveLatestVersion(ctx)
		if err != nil {
			log.Printf("[%s] Warning: failed to resolve latest version, using fallback %s: %v",
				lang, metadata.Version, err)
		} else {
			resolved.Version = latestVersion
			log.Printf("[%s] Resolved latest version: %s", lang, latestVersion)
		}
	}

	// Substitute {version} in download URLs
	for platform, urlTemplate := range metadata.DownloadURLs {
		resolved.DownloadURLs[platform] = strings.ReplaceAll(urlTemplate, "{version}", resolved.Version)
	}

	return resolved, nil
}

// GetPlatformKey returns the platform identifier for the current system.
func GetPlatformKey() string {
	return fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)
}

// Servers refmap downloads itself carry URL templates; the rest are found on
// PATH and carry an install hint instead.
var lspMetadata = map[string]*LSPServerMetadata{
	"go": {
		Name:       "gopls",
		Version:    "v0.21.1", // Fallback version
		BinaryName: "gopls",
		DownloadURLs: map[string]string{
			"linux-amd64":   "https://github.com/golang/tools/releases/download/gopls/{version}/gopls-{version}-linux-amd64.tar.gz",
			"linux-arm64":   "https://github.com/golang/tools/releases/download/gopls/{version}/gopls-{version}-linux-arm64.tar.gz",
			"darwin-amd64":  "https://github.com/golang/tools/releases/download/gopls/{version}/gopls-{version}-darwin-amd64.tar.gz",
			"darwin-arm64":  "https://github.com/golang/tools/releases/download/gopls/{version}/gopls-{version}-darwin-arm64.tar.gz",
			"windows-amd64": "https://github.com/golang/tools/releases/download/gopls/{version}/gopls-{version}-windows-amd64.zip",
		},
		Checksums: map[string]string{
			"linux-amd64":   "",
			"linux-arm64":   "",
			"darwin-amd64":  "",
			"darwin-arm64":  "",
			"windows-amd64": "",
		},
		IsArchive:   true,
		ArchivePath: "gopls",
		// gopls release tags carry a "gopls/" prefix that must not leak
		// into the asset names.
		VersionResolver: NewGitHubResolver("golang", "tools", "gopls/"),
	},
	"python": {
		Name:       "pyright",
		Version:    "1.1.408", // Fallback version
		BinaryName: "pyright-langserver",
		LaunchArgs: []string{"--stdio"},
		DownloadURLs: map[string]string{
			"linux-amd64":   "https://registry.npmjs.org/pyright/-/pyright-{version}.tgz",
			"linux-arm64":   "https://registry.npmjs.org/pyright/-/pyright-{version}.tgz",
			"darwin-amd64":  "https://registry.npmjs.org/pyright/-/pyright-{version}.tgz",
			"darwin-arm64":  "https://registry.npmjs.org/pyright/-/pyright-{version}.tgz",
			"windows-amd64": "https://registry.npmjs.org/pyright/-/pyright-{version}.tgz",
		},
		Checksums: map[string]string{
			"linux-amd64":   "",
			"linux-arm64":   "",
			"darwin-amd64":  "",
			"darwin-arm64":  "",
			"windows-amd64": "",
		},
		IsArchive:       true,
		ArchivePath:     "package/langserver.index.js",
		VersionResolver: NewNPMResolver("pyright"),
	},
	"typescript": {
		Name:       "typescript-language-server",
		Version:    "5.1.3", // Fallback version
		BinaryName: "typescript-language-server",
		LaunchArgs: []string{"--stdio"},
		DownloadURLs: map[string]string{
			"linux-amd64":   "https://registry.npmjs.org/typescript-language-server/-/typescript-language-server-{version}.tgz",
			"linux-arm64":   "https://registry.npmjs.org/typescript-language-server/-/typescript-language-server-{version}.tgz",
			"darwin-amd64":  "https://registry.npmjs.org/typescript-language-server/-/typescript-language-server-{version}.tgz",
			"darwin-arm64":  "https://registry.npmjs.org/typescript-language-server/-/typescript-language-server-{version}.tgz",
			"windows-amd64": "https://registry.npmjs.org/typescript-language-server/-/typescript-language-server-{version}.tgz",
		},
		Checksums: map[string]string{
			"linux-amd64":   "",
			"linux-arm64":   "",
			"darwin-amd64":  "",
			"darwin-arm64":  "",
			"windows-amd64": "",
		},
		IsArchive:       true,
		ArchivePath:     "package/lib/cli.mjs",
		VersionResolver: NewNPMResolver("typescript-language-server"),
	},
	"rust": {
		Name:       "rust-analyzer",
		Version:    "2026-08-17", // Fallback version
		BinaryName: "rust-analyzer",
		DownloadURLs: map[string]string{
			"linux-amd64":   "https://github.com/rust-lang/rust-analyzer/releases/download/{version}/rust-analyzer-x86_64-unknown-linux-gnu.gz",
			"linux-arm64":   "https://github.com/rust-lang/rust-analyzer/releases/download/{version}/rust-analyzer-aarch64-unknown-linux-gnu.gz",
			"darwin-amd64":  "https://github.com/rust-lang/rust-analyzer/releases/download/{version}/rust-analyzer-x86_64-apple-darwin.gz",
			"darwin-arm64":  "https://github.com/rust-lang/rust-analyzer/releases/download/{version}/rust-analyzer-aarch64-apple-darwin.gz",
			"windows-amd64": "https://github.com/rust-lang/rust-analyzer/releases/download/{version}/rust-analyzer-x86_64-pc-windows-msvc.zip",
		},
		Checksums: map[string]string{
			"linux-amd64":   "",
			"linux-arm64":   "",
			"darwin-amd64":  "",
			"darwin-arm64":  "",
			"windows-amd64": "",
		},
		IsArchive:       true,
		ArchivePath:     "rust-analyzer",
		VersionResolver: NewGitHubResolver("rust-lang", "rust-analyzer", ""),
	},
	"java": {
		Name:        "jdtls",
		Version:     "system",
		BinaryName:  "jdtls",
		InstallHint: "install Eclipse JDT Language Server and put jdtls on PATH",
	},
	"csharp": {
		Name:        "OmniSharp",
		Version:     "system",
		BinaryName:  "OmniSharp",
		LaunchArgs:  []string{"-lsp"},
		InstallHint: "install OmniSharp and put the OmniSharp binary on PATH",
	},
	"kotlin": {
		Name:        "kotlin-language-server",
		Version:     "system",
		BinaryName:  "kotlin-language-server",
		InstallHint: "install kotlin-language-server and put it on PATH",
	},
	"ruby": {
		Name:        "solargraph",
		Version:     "system",
		BinaryName:  "solargraph",
		LaunchArgs:  []string{"stdio"},
		InstallHint: "gem install solargraph",
	},
	"dart": {
		Name:        "dart",
		Version:     "system",
		BinaryName:  "dart",
		LaunchArgs:  []string{"language-server", "--protocol=lsp"},
		InstallHint: "install the Dart SDK; its dart binary provides the language server",
	},
}
