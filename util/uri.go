package util

import (
	"path/filepath"
	"strings"
)

// PathToURI converts a filesystem path to a file:// URI.
func PathToURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "file://" + path
	}
	return "file://" + filepath.ToSlash(abs)
}

// URIToPath converts a file:// URI to a filesystem path. Some servers report
// Windows locations as file:///C:/..., which leaves a spurious slash in front
// of the drive letter after the scheme is stripped; that slash is removed.
// Non-URI inputs are returned unchanged.
func URIToPath(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}
	p := uri[7:]
	if strings.HasPrefix(p, "/") && len(p) >= 3 && strings.Contains(p[1:3], ":") {
		p = p[1:]
	}
	return filepath.FromSlash(p)
}
