package lsp

import (
	"context"

	"refmap/internal/downloader"
)

// resolveServerCommand finds the launch command for a language server through
// the shared binary resolution chain: custom path, then PATH, then the
// managed cache (downloading on a miss where metadata allows it).
func resolveServerCommand(ctx context.Context, tag, customPath string) ([]string, error) {
	return downloader.ServerCommand(ctx, tag, customPath)
}
