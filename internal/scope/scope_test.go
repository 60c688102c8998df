package scope

import (
	"os"
	"path/filepath"
	"testing"
)

func TestChdirRestores(t *testing.T) {
	start, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()

	restore, err := Chdir(dir)
	if err != nil {
		t.Fatalf("Chdir() error = %v", err)
	}

	cwd, _ := os.Getwd()
	resolved, _ := filepath.EvalSymlinks(dir)
	if cwd != dir && cwd != resolved {
		t.Errorf("Expected working directory %s, got %s", dir, cwd)
	}

	if err := restore(); err != nil {
		t.Fatalf("restore() error = %v", err)
	}
	// second call is a no-op
	if err := restore(); err != nil {
		t.Fatalf("second restore() error = %v", err)
	}

	cwd, _ = os.Getwd()
	if cwd != start {
		t.Errorf("Expected working directory restored to %s, got %s", start, cwd)
	}
}

func TestChdirEmptyIsNoop(t *testing.T) {
	start, _ := os.Getwd()
	restore, err := Chdir("")
	if err != nil {
		t.Fatal(err)
	}
	restore()
	if cwd, _ := os.Getwd(); cwd != start {
		t.Errorf("Expected unchanged working directory, got %s", cwd)
	}
}

func TestChdirMissingDirectory(t *testing.T) {
	if _, err := Chdir(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("Expected error for missing directory")
	}
}

func TestSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "Dockerfile.dev")
	if err := os.WriteFile(target, []byte("FROM scratch\n"), 0644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "Dockerfile")

	release, err := Symlink(target, link)
	if err != nil {
		t.Fatalf("Symlink() error = %v", err)
	}

	data, err := os.ReadFile(link)
	if err != nil || string(data) != "FROM scratch\n" {
		t.Fatalf("Expected link to resolve to target, got %q, %v", data, err)
	}

	if err := release(); err != nil {
		t.Fatalf("release() error = %v", err)
	}
	if _, err := os.Lstat(link); !os.IsNotExist(err) {
		t.Errorf("Expected link to be removed, got %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Errorf("Expected target to survive, got %v", err)
	}
}

func TestSymlinkRefusesExisting(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "Dockerfile")
	if err := os.WriteFile(link, nil, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Symlink(filepath.Join(dir, "other"), link); err == nil {
		t.Fatal("Expected error when link path exists")
	}
}

func TestTempFile(t *testing.T) {
	dir := t.TempDir()

	path, release, err := TempFile(dir, ".dockerfile-*", []byte("FROM abc\nRUN true"))
	if err != nil {
		t.Fatalf("TempFile() error = %v", err)
	}
	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "FROM abc\nRUN true" {
		t.Errorf("unexpected content %q", data)
	}

	if err := release(); err != nil {
		t.Fatalf("release() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected temporary file to be removed")
	}
}
