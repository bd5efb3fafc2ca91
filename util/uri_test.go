package util

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestURIToPath(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want string
	}{
		{"plain path passes through", "/home/user/project/main.go", "/home/user/project/main.go"},
		{"file scheme stripped", "file:///home/user/project/main.go", filepath.FromSlash("/home/user/project/main.go")},
		{"windows drive slash stripped", "file:///C:/Users/dev/app/Main.java", filepath.FromSlash("C:/Users/dev/app/Main.java")},
		{"windows drive without extra slash", "file://C:/Users/dev/app/Main.java", filepath.FromSlash("C:/Users/dev/app/Main.java")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := URIToPath(tt.uri)
			if got != tt.want {
				t.Errorf("URIToPath(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}

func TestPathToURI(t *testing.T) {
	uri := PathToURI("/tmp/project")
	if !strings.HasPrefix(uri, "file://") {
		t.Errorf("expected file:// prefix, got %s", uri)
	}
}

func TestSymbolID(t *testing.T) {
	a := SymbolID("src/app.py", "App.run")
	b := SymbolID("src/app.py", "App.run")
	c := SymbolID("src/app.py", "App.stop")

	if a != b {
		t.Error("expected identical IDs for identical inputs")
	}
	if a == c {
		t.Error("expected different IDs for different symbols")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestProjectKey(t *testing.T) {
	k := ProjectKey("/home/user/project")
	if len(k) != 16 {
		t.Errorf("expected 16 chars, got %d", len(k))
	}
	if k != ProjectKey("/home/user/project") {
		t.Error("expected stable key")
	}
}
