package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/schaermu/notion2blog/internal/forge"
)

// BranchPrefix prefixes every branch created for a post.
const BranchPrefix = "auto-generate/"

// Repository is a cloned working copy of the blog repository.
type Repository interface {
	Dir() string
	SetIdentity(ctx context.Context, name, email string) error
	RemoteBranches(ctx context.Context) ([]string, error)
	CheckoutBase(ctx context.Context, branch string) error
	CheckoutNewBranch(ctx context.Context, branch string) error
	CheckoutTracking(ctx context.Context, branch string) error
	Add(ctx context.Context, paths ...string) error
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context, branch string, setUpstream bool) error
	HeadCommit(ctx context.Context) (string, error)
}

// CloneFunc clones url into dir.
type CloneFunc func(ctx context.Context, url, dir string) (Repository, error)

// Forge is the pull request host of the blog repository.
type Forge interface {
	AuthenticatedUser(ctx context.Context) (string, error)
	FindOpenPullRequests(ctx context.Context, title string) ([]forge.PullRequest, error)
	CreatePullRequest(ctx context.Context, head, base, title string) (forge.PullRequest, error)
}

// Session is the state shared by all documents of one run: the transient
// clone, the remote branches known at start, the forge user and the paths
// written so far. It is built once by NewSession and must be closed.
type Session struct {
	Repo       Repository
	BaseBranch string
	User       string

	workDir  string
	branches map[string]bool
	paths    map[string]string
	logger   *slog.Logger
}

// SessionOptions configures NewSession.
type SessionOptions struct {
	RepoURL    string
	BaseBranch string
	// ParentDir holds the transient working directory.
	ParentDir string
	Clone     CloneFunc
	Forge     Forge
	Logger    *slog.Logger
}

// NewSession creates a temporary working directory, resolves the forge user,
// clones the repository into it and records its auto-generated branches.
// The directory is removed again if any step fails.
func NewSession(ctx context.Context, opts SessionOptions) (_ *Session, err error) {
	if err := os.MkdirAll(opts.ParentDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory parent: %w", err)
	}
	workDir, err := os.MkdirTemp(opts.ParentDir, "notion2blog-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(workDir)
		}
	}()

	user, err := opts.Forge.AuthenticatedUser(ctx)
	if err != nil {
		return nil, err
	}

	opts.Logger.Info("cloning repository", "repo", opts.RepoURL, "dest", workDir)
	repo, err := opts.Clone(ctx, opts.RepoURL, filepath.Join(workDir, "repo"))
	if err != nil {
		return nil, fmt.Errorf("failed to clone repository: %w", err)
	}

	if err := repo.SetIdentity(ctx, user, user+"@users.noreply.github.com"); err != nil {
		return nil, err
	}

	remote, err := repo.RemoteBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	branches := make(map[string]bool)
	for _, b := range remote {
		if _, name, ok := strings.Cut(b, "/"); ok && strings.HasPrefix(name, BranchPrefix) {
			branches[name] = true
		}
	}

	opts.Logger.Info("repository ready", "user", user, "existing_branches", len(branches))
	return &Session{
		Repo:       repo,
		BaseBranch: opts.BaseBranch,
		User:       user,
		workDir:    workDir,
		branches:   branches,
		paths:      make(map[string]string),
		logger:     opts.Logger,
	}, nil
}

// BranchName returns the branch used for permalink.
func BranchName(permalink string) string {
	return BranchPrefix + permalink
}

// HasRemoteBranch reports whether branch exists on the remote.
func (s *Session) HasRemoteBranch(branch string) bool {
	return s.branches[branch]
}

// markPushed records branch as present on the remote.
func (s *Session) markPushed(branch string) {
	s.branches[branch] = true
}

// claimPath records that permalink owns path for this run. It fails when a
// different document already claimed it.
func (s *Session) claimPath(path, permalink, id string) error {
	if owner, ok := s.paths[path]; ok && owner != id {
		return fmt.Errorf("%s is already produced by another document in this run (permalink %q)", path, permalink)
	}
	s.paths[path] = id
	return nil
}

// Close removes the working directory.
func (s *Session) Close() error {
	if err := os.RemoveAll(s.workDir); err != nil {
		return fmt.Errorf("failed to remove work directory: %w", err)
	}
	return nil
}
