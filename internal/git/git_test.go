package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

// gitRun runs a git command and fails the test on error.
func gitRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := exec.Command("git", args...).CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
	return string(out)
}

// initRemote creates a bare repository whose main branch holds one commit.
func initRemote(t *testing.T) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "src")
	gitRun(t, "init", "-b", "main", src)
	gitRun(t, "-C", src, "config", "user.email", "test@test.com")
	gitRun(t, "-C", src, "config", "user.name", "Test")
	if err := os.WriteFile(filepath.Join(src, "README.md"), []byte("blog\n"), 0644); err != nil {
		t.Fatal(err)
	}
	gitRun(t, "-C", src, "add", "README.md")
	gitRun(t, "-C", src, "commit", "-m", "Initial commit")

	remote := filepath.Join(t.TempDir(), "remote.git")
	gitRun(t, "clone", "--bare", src, remote)
	return remote
}

func cloneRepo(t *testing.T, remote string) *Repo {
	t.Helper()
	repo, err := NewShellClient("", "").Clone(context.Background(), remote, filepath.Join(t.TempDir(), "work", "repo"))
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	if err := repo.SetIdentity(context.Background(), "bot", "bot@example.com"); err != nil {
		t.Fatalf("identity: %v", err)
	}
	return repo
}

func TestRepo_BranchCommitPush(t *testing.T) {
	ctx := context.Background()
	remote := initRemote(t)
	repo := cloneRepo(t, remote)

	branches, err := repo.RemoteBranches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(branches, []string{"origin/main"}) {
		t.Fatalf("unexpected remote branches %v", branches)
	}

	const branch = "auto-generate/hello"
	if err := repo.CheckoutNewBranch(ctx, branch); err != nil {
		t.Fatal(err)
	}
	postPath := filepath.Join(repo.Dir(), "posts", "hello.md")
	if err := os.MkdirAll(filepath.Dir(postPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(postPath, []byte("hello\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := repo.Add(ctx, "posts/hello.md"); err != nil {
		t.Fatal(err)
	}
	if err := repo.Commit(ctx, "update post hello"); err != nil {
		t.Fatal(err)
	}
	if err := repo.Push(ctx, branch, true); err != nil {
		t.Fatal(err)
	}

	head, err := repo.HeadCommit(ctx)
	if err != nil {
		t.Fatal(err)
	}
	remoteHead := strings.TrimSpace(gitRun(t, "-C", remote, "rev-parse", branch))
	if head != remoteHead {
		t.Errorf("remote branch at %s, want %s", remoteHead, head)
	}

	// A fresh clone sees the pushed branch and continues on it.
	other := cloneRepo(t, remote)
	branches, err = other.RemoteBranches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(branches, "origin/"+branch) {
		t.Fatalf("expected origin/%s in %v", branch, branches)
	}
	if err := other.CheckoutTracking(ctx, branch); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(other.Dir(), "posts", "hello.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello\n" {
		t.Errorf("unexpected content %q", got)
	}
}

func TestRepo_CheckoutBaseDiscardsWork(t *testing.T) {
	ctx := context.Background()
	repo := cloneRepo(t, initRemote(t))

	if err := repo.CheckoutNewBranch(ctx, "auto-generate/dirty"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repo.Dir(), "README.md"), []byte("changed\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(repo.Dir(), "images", "notion"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repo.Dir(), "images", "notion", "a.png"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := repo.CheckoutBase(ctx, "main"); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(repo.Dir(), "README.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "blog\n" {
		t.Errorf("expected tracked file restored, got %q", got)
	}
	if _, err := os.Stat(filepath.Join(repo.Dir(), "images")); !os.IsNotExist(err) {
		t.Errorf("expected untracked directory removed, stat err = %v", err)
	}
}

func TestRepo_CheckoutNewBranchResetsLeftover(t *testing.T) {
	ctx := context.Background()
	repo := cloneRepo(t, initRemote(t))

	const branch = "auto-generate/same"
	if err := repo.CheckoutNewBranch(ctx, branch); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repo.Dir(), "stale.md"), []byte("stale\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := repo.Add(ctx, "stale.md"); err != nil {
		t.Fatal(err)
	}
	if err := repo.Commit(ctx, "stale work"); err != nil {
		t.Fatal(err)
	}

	if err := repo.CheckoutBase(ctx, "main"); err != nil {
		t.Fatal(err)
	}
	base, err := repo.HeadCommit(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if err := repo.CheckoutNewBranch(ctx, branch); err != nil {
		t.Fatalf("second checkout of %s: %v", branch, err)
	}
	head, err := repo.HeadCommit(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if head != base {
		t.Errorf("branch at %s, want base %s", head, base)
	}
	if _, err := os.Stat(filepath.Join(repo.Dir(), "stale.md")); !os.IsNotExist(err) {
		t.Errorf("expected stale.md gone after reset, stat err = %v", err)
	}
}

func TestRepo_CommitWithoutChangesFails(t *testing.T) {
	repo := cloneRepo(t, initRemote(t))
	if err := repo.Commit(context.Background(), "nothing"); err == nil {
		t.Fatal("expected commit without staged changes to fail")
	}
}

func TestClone_InvalidRemote(t *testing.T) {
	_, err := NewShellClient("", "").Clone(context.Background(), filepath.Join(t.TempDir(), "missing"), filepath.Join(t.TempDir(), "repo"))
	if err == nil {
		t.Fatal("expected clone of missing remote to fail")
	}
	if !strings.Contains(err.Error(), "git clone failed") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestConfigureAuth(t *testing.T) {
	t.Run("https token uses credential helper", func(t *testing.T) {
		cmd := exec.Command("git", "push", "origin", "main")
		if err := NewShellClient("", " secret\n").configureAuth(cmd, "https://github.com/o/r.git"); err != nil {
			t.Fatal(err)
		}
		if cmd.Args[1] != "-c" || !strings.HasPrefix(cmd.Args[2], "credential.helper=") {
			t.Errorf("credential helper not inserted: %v", cmd.Args)
		}
		if !slices.Contains(cmd.Env, "NOTION2BLOG_GIT_TOKEN=secret") {
			t.Error("token not passed through the environment")
		}
		for _, arg := range cmd.Args {
			if strings.Contains(arg, "secret") {
				t.Errorf("token leaked into argv: %q", arg)
			}
		}
	})

	t.Run("ssh key", func(t *testing.T) {
		cmd := exec.Command("git", "clone", "git@github.com:o/r.git", "dest")
		if err := NewShellClient("/keys/id'x", "token").configureAuth(cmd, "git@github.com:o/r.git"); err != nil {
			t.Fatal(err)
		}
		want := `GIT_SSH_COMMAND=ssh -i '/keys/id'\''x' -o StrictHostKeyChecking=accept-new -F /dev/null`
		if !slices.Contains(cmd.Env, want) {
			t.Errorf("missing %q in env", want)
		}
		if len(cmd.Args) != 4 {
			t.Errorf("ssh auth must not add git flags: %v", cmd.Args)
		}
	})

	t.Run("local path", func(t *testing.T) {
		cmd := exec.Command("git", "clone", "/tmp/x", "dest")
		if err := NewShellClient("key", "token").configureAuth(cmd, "/tmp/x"); err != nil {
			t.Fatal(err)
		}
		if len(cmd.Args) != 4 {
			t.Errorf("unexpected flags for local remote: %v", cmd.Args)
		}
	})
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple path", input: "/home/user/.ssh/key", want: "'/home/user/.ssh/key'"},
		{name: "path with spaces", input: "/home/my user/key", want: "'/home/my user/key'"},
		{name: "path with single quote", input: "/home/user's/key", want: "'/home/user'\\''s/key'"},
		{name: "empty string", input: "", want: "''"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := shellQuote(tt.input)
			if got != tt.want {
				t.Errorf("shellQuote(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestInsertGitFlags(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		flags []string
		want  []string
	}{
		{
			name:  "insert before clone",
			args:  []string{"git", "clone", "url", "dest"},
			flags: []string{"-c", "key=value"},
			want:  []string{"git", "-c", "key=value", "clone", "url", "dest"},
		},
		{
			name:  "insert before -C",
			args:  []string{"git", "-C", "/dir", "push", "origin", "main"},
			flags: []string{"-c", "cred=helper"},
			want:  []string{"git", "-c", "cred=helper", "-C", "/dir", "push", "origin", "main"},
		},
		{
			name:  "empty args",
			args:  []string{},
			flags: []string{"-c", "key=value"},
			want:  []string{"-c", "key=value"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := insertGitFlags(tt.args, tt.flags...)
			if !slices.Equal(got, tt.want) {
				t.Errorf("insertGitFlags() = %v, want %v", got, tt.want)
			}
		})
	}
}
