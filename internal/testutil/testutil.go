// Package testutil holds helpers shared by tests that need a real git
// remote or the module root.
package testutil

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// ProjectRoot returns the directory holding go.mod, searching upwards from
// the working directory of the running test.
func ProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// Git runs git with args and returns its trimmed combined output, failing
// the test on error.
func Git(t testing.TB, args ...string) string {
	t.Helper()
	out, err := exec.Command("git", args...).CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// InitBareRemote creates a bare repository whose main branch holds one
// commit with files (path relative to the repository root mapped to
// content). A README is added when files is empty.
func InitBareRemote(t testing.TB, files map[string]string) string {
	t.Helper()

	if len(files) == 0 {
		files = map[string]string{"README.md": "blog\n"}
	}

	src := filepath.Join(t.TempDir(), "src")
	Git(t, "init", "-b", "main", src)
	Git(t, "-C", src, "config", "user.email", "test@test.com")
	Git(t, "-C", src, "config", "user.name", "Test")
	for name, content := range files {
		path := filepath.Join(src, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	Git(t, "-C", src, "add", "-A")
	Git(t, "-C", src, "commit", "-m", "Initial commit")

	remote := filepath.Join(t.TempDir(), "blog.git")
	Git(t, "clone", "--bare", src, remote)
	return remote
}

// HasObject reports whether rev (e.g. "branch:path") exists in the repository.
func HasObject(repoDir, rev string) bool {
	return exec.Command("git", "-C", repoDir, "cat-file", "-e", rev).Run() == nil
}
