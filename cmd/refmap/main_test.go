package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveRootExplicit(t *testing.T) {
	dir := t.TempDir()

	got, err := resolveRoot(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("expected absolute path, got %s", got)
	}
}

func TestResolveRootFindsGitRoot(t *testing.T) {
	repo := t.TempDir()
	sub := filepath.Join(repo, "pkg", "svc")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(repo, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(sub)

	got, err := resolveRoot("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want, err := filepath.EvalSymlinks(repo)
	if err != nil {
		t.Fatal(err)
	}
	gotResolved, err := filepath.EvalSymlinks(got)
	if err != nil {
		t.Fatal(err)
	}
	if gotResolved != want {
		t.Errorf("expected git root %s, got %s", want, gotResolved)
	}
}

func TestResolveRootOutsideRepo(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	got, err := resolveRoot("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	gotResolved, err := filepath.EvalSymlinks(got)
	if err != nil {
		t.Fatal(err)
	}
	if gotResolved != want {
		t.Errorf("expected working directory %s, got %s", want, gotResolved)
	}
}

func TestResolveLanguageFlagWins(t *testing.T) {
	lang, err := resolveLanguage(t.TempDir(), "python", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lang != "python" {
		t.Errorf("expected python, got %s", lang)
	}
}

func TestResolveLanguageDetects(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"app.py", "util.py", "notes.md"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	lang, err := resolveLanguage(root, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lang != "python" {
		t.Errorf("expected python, got %s", lang)
	}
}
