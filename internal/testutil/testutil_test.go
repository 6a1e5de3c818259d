package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProjectRoot(t *testing.T) {
	root, err := ProjectRoot()
	if err != nil {
		t.Fatalf("ProjectRoot returned error: %v", err)
	}

	goMod := filepath.Join(root, "go.mod")
	if _, err := os.Stat(goMod); err != nil {
		t.Fatalf("go.mod not found at %s: %v", goMod, err)
	}
}

func TestInitBareRemote(t *testing.T) {
	remote := InitBareRemote(t, map[string]string{
		"content/posts/hello.md": "hello\n",
		"README.md":              "blog\n",
	})

	if got := Git(t, "-C", remote, "rev-parse", "--abbrev-ref", "HEAD"); got != "main" {
		t.Errorf("HEAD = %q, want main", got)
	}
	if got := Git(t, "-C", remote, "show", "main:content/posts/hello.md"); got != "hello" {
		t.Errorf("post content = %q, want hello", got)
	}
	if !HasObject(remote, "main:README.md") {
		t.Error("README.md missing on main")
	}
	if HasObject(remote, "main:missing.md") {
		t.Error("HasObject reported a missing file")
	}
}

func TestInitBareRemote_DefaultReadme(t *testing.T) {
	remote := InitBareRemote(t, nil)
	if !HasObject(remote, "main:README.md") {
		t.Error("default README.md missing on main")
	}
}
