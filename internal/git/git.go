package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Remote is the name of the remote created by Clone.
const Remote = "origin"

// ShellClient clones repositories by shelling out to the git command
type ShellClient struct {
	sshKeyFile string
	httpsToken string
}

// NewShellClient creates a new git client that uses the git command.
// sshKeyFile is used for ssh remotes, httpsToken for https remotes.
func NewShellClient(sshKeyFile, httpsToken string) *ShellClient {
	return &ShellClient{
		sshKeyFile: sshKeyFile,
		httpsToken: httpsToken,
	}
}

// Repo is a working copy cloned by a ShellClient. All operations run inside
// its directory and authenticate against the URL it was cloned from.
type Repo struct {
	client *ShellClient
	url    string
	dir    string
}

// Clone clones url into destDir and checks out the remote default branch
func (c *ShellClient) Clone(ctx context.Context, url, destDir string) (*Repo, error) {
	if err := os.MkdirAll(filepath.Dir(destDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, "git", "clone", url, destDir)
	if err := c.configureAuth(cmd, url); err != nil {
		return nil, err
	}
	if err := runCommand(cmd); err != nil {
		return nil, fmt.Errorf("git clone failed: %w", err)
	}

	return &Repo{client: c, url: url, dir: destDir}, nil
}

// Dir returns the working copy directory
func (r *Repo) Dir() string {
	return r.dir
}

// SetIdentity configures the committer identity of the working copy
func (r *Repo) SetIdentity(ctx context.Context, name, email string) error {
	if err := r.run(ctx, "config", "user.name", name); err != nil {
		return fmt.Errorf("git config user.name failed: %w", err)
	}
	if err := r.run(ctx, "config", "user.email", email); err != nil {
		return fmt.Errorf("git config user.email failed: %w", err)
	}
	return nil
}

// RemoteBranches lists remote-tracking branches, e.g. "origin/main"
func (r *Repo) RemoteBranches(ctx context.Context) ([]string, error) {
	out, err := r.output(ctx, "branch", "-r", "--format=%(refname:short)")
	if err != nil {
		return nil, fmt.Errorf("git branch -r failed: %w", err)
	}

	var branches []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		// skip the symbolic origin/HEAD entry, shortened to "origin" by newer gits
		if !strings.Contains(line, "/") || strings.HasSuffix(line, "/HEAD") || strings.Contains(line, "->") {
			continue
		}
		branches = append(branches, line)
	}
	return branches, nil
}

// CheckoutBase force-checks out branch and removes untracked files, leaving a
// clean tree to start the next document from.
func (r *Repo) CheckoutBase(ctx context.Context, branch string) error {
	if err := r.run(ctx, "checkout", "-f", branch); err != nil {
		return fmt.Errorf("git checkout %s failed: %w", branch, err)
	}
	if err := r.run(ctx, "clean", "-fd"); err != nil {
		return fmt.Errorf("git clean failed: %w", err)
	}
	return nil
}

// CheckoutNewBranch creates branch at HEAD and checks it out. A local branch
// of the same name left over from an earlier post is reset to HEAD.
func (r *Repo) CheckoutNewBranch(ctx context.Context, branch string) error {
	if err := r.run(ctx, "checkout", "-B", branch); err != nil {
		return fmt.Errorf("git checkout -B %s failed: %w", branch, err)
	}
	return nil
}

// CheckoutTracking checks out branch tracking its remote counterpart
func (r *Repo) CheckoutTracking(ctx context.Context, branch string) error {
	if err := r.run(ctx, "checkout", "-B", branch, "--track", Remote+"/"+branch); err != nil {
		return fmt.Errorf("git checkout %s failed: %w", branch, err)
	}
	return nil
}

// Add stages paths relative to the working copy
func (r *Repo) Add(ctx context.Context, paths ...string) error {
	args := append([]string{"add", "--"}, paths...)
	if err := r.run(ctx, args...); err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}
	return nil
}

// Commit records the staged changes
func (r *Repo) Commit(ctx context.Context, message string) error {
	if err := r.run(ctx, "commit", "-m", message); err != nil {
		return fmt.Errorf("git commit failed: %w", err)
	}
	return nil
}

// Push pushes branch to the remote, creating upstream tracking when asked
func (r *Repo) Push(ctx context.Context, branch string, setUpstream bool) error {
	args := []string{"push"}
	if setUpstream {
		args = append(args, "--set-upstream")
	}
	args = append(args, Remote, branch)

	cmd := r.command(ctx, args...)
	if err := r.client.configureAuth(cmd, r.url); err != nil {
		return err
	}
	if err := runCommand(cmd); err != nil {
		return fmt.Errorf("git push failed: %w", err)
	}
	return nil
}

// HeadCommit returns the commit hash of HEAD
func (r *Repo) HeadCommit(ctx context.Context) (string, error) {
	out, err := r.output(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (r *Repo) command(ctx context.Context, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, "git", append([]string{"-C", r.dir}, args...)...)
}

func (r *Repo) run(ctx context.Context, args ...string) error {
	return runCommand(r.command(ctx, args...))
}

func (r *Repo) output(ctx context.Context, args ...string) (string, error) {
	cmd := r.command(ctx, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%w: %s", err, string(exitErr.Stderr))
		}
		return "", err
	}
	return string(out), nil
}

// configureAuth sets up authentication for git operations
func (c *ShellClient) configureAuth(cmd *exec.Cmd, url string) error {
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	// SSH authentication
	if c.sshKeyFile != "" && (strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://")) {
		// The path is shell-quoted to prevent injection via crafted filenames.
		sshCmd := fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=accept-new -F /dev/null", shellQuote(c.sshKeyFile))
		cmd.Env = append(cmd.Env, "GIT_SSH_COMMAND="+sshCmd)
		return nil
	}

	// HTTPS authentication with token
	if c.httpsToken != "" && strings.HasPrefix(url, "https://") {
		// The token travels in the environment and is read by a credential
		// helper, so it never appears in argv or the remote URL.
		cmd.Env = append(cmd.Env, "GIT_TERMINAL_PROMPT=0")
		cmd.Env = append(cmd.Env, "NOTION2BLOG_GIT_TOKEN="+strings.TrimSpace(c.httpsToken))
		cmd.Args = insertGitFlags(cmd.Args,
			"-c", `credential.helper=!f() { echo "username=x-access-token"; echo "password=$NOTION2BLOG_GIT_TOKEN"; }; f`,
		)
	}

	return nil
}

// insertGitFlags inserts flags immediately after the "git" command name,
// before the subcommand (e.g. "clone", "push").
func insertGitFlags(args []string, flags ...string) []string {
	if len(args) == 0 {
		return flags
	}
	result := make([]string, 0, len(args)+len(flags))
	result = append(result, args[0])
	result = append(result, flags...)
	result = append(result, args[1:]...)
	return result
}

// shellQuote wraps s in single quotes, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// runCommand executes a command and returns an error with its output on failure
func runCommand(cmd *exec.Cmd) error {
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
