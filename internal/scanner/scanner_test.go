package scanner

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func relPaths(files []File) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.RelPath
	}
	return paths
}

func TestScanFiltersAndSorts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.py", "print('x')\n")
	writeFile(t, root, "src/util.py", "pass\n")
	writeFile(t, root, "src/notes.txt", "not code\n")
	writeFile(t, root, "main.py", "pass\n")
	writeFile(t, root, "node_modules/dep/index.py", "pass\n")
	writeFile(t, root, "__pycache__/app.cpython-312.pyc", "")

	files, err := Scan(root, "python", DefaultIgnoreDirs)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := []string{"main.py", "src/app.py", "src/util.py"}
	got := relPaths(files)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	for _, f := range files {
		if f.Language != "python" {
			t.Errorf("expected python language tag, got %q", f.Language)
		}
	}
}

func TestScanPrunesIgnoredDirsBeforeDescent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "vendor/deep/very/deep/lib.py", "pass\n")
	writeFile(t, root, "ok.py", "pass\n")

	files, err := Scan(root, "python", []string{"vendor"})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(files) != 1 || files[0].RelPath != "ok.py" {
		t.Errorf("expected only ok.py, got %v", relPaths(files))
	}
}

func TestScanMultiExtensionLanguages(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.ts", "")
	writeFile(t, root, "b.tsx", "")
	writeFile(t, root, "c.js", "")

	files, err := Scan(root, "typescript", nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	got := relPaths(files)
	if len(got) != 2 || got[0] != "a.ts" || got[1] != "b.tsx" {
		t.Errorf("expected [a.ts b.tsx], got %v", got)
	}
}

func TestScanHonorsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "generated/\nskipme.py\n")
	writeFile(t, root, "generated/gen.py", "pass\n")
	writeFile(t, root, "skipme.py", "pass\n")
	writeFile(t, root, "keep.py", "pass\n")

	files, err := Scan(root, "python", nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(files) != 1 || files[0].RelPath != "keep.py" {
		t.Errorf("expected only keep.py, got %v", relPaths(files))
	}
}

func TestScanUnsupportedLanguage(t *testing.T) {
	if _, err := Scan(t.TempDir(), "brainfuck", nil); err == nil {
		t.Error("expected error for unsupported language")
	}
}

func TestScanMissingRoot(t *testing.T) {
	if _, err := Scan(filepath.Join(t.TempDir(), "missing"), "go", nil); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestScanIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x/a.go", "package x\n")
	writeFile(t, root, "y/b.go", "package y\n")

	first, err := Scan(root, "go", DefaultIgnoreDirs)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	second, err := Scan(root, "go", DefaultIgnoreDirs)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	a, b := relPaths(first), relPaths(second)
	if len(a) != len(b) {
		t.Fatalf("scan not stable: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("scan not stable: %v vs %v", a, b)
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "")
	writeFile(t, root, "b.py", "")
	writeFile(t, root, "c.go", "")

	lang, err := DetectLanguage(root, DefaultIgnoreDirs)
	if err != nil {
		t.Fatalf("DetectLanguage failed: %v", err)
	}
	if lang != "python" {
		t.Errorf("expected python, got %q", lang)
	}
}

func TestDetectLanguageNothingFound(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "README.md", "docs\n")

	if _, err := DetectLanguage(root, nil); err == nil {
		t.Error("expected error when no supported files exist")
	}
}
