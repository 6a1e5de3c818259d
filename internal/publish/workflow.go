// Package publish drives the per-document publish workflow: branch selection,
// diffing against the committed post, image download, commit, push and pull
// request reconciliation.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/schaermu/notion2blog/internal/diff"
	"github.com/schaermu/notion2blog/internal/post"
)

// PRTitlePrefix prefixes the title of every pull request opened for a post.
const PRTitlePrefix = "[AUTO-GENERATED] "

// Stage names the workflow step a document failed in.
type Stage string

const (
	StageValidate    Stage = "validate"
	StageBranch      Stage = "branch"
	StageConvert     Stage = "convert"
	StageDiff        Stage = "diff"
	StageImages      Stage = "images"
	StageWrite       Stage = "write"
	StageCommit      Stage = "commit"
	StagePush        Stage = "push"
	StagePullRequest Stage = "pull_request"
)

// PublishError reports the failure of a single document.
type PublishError struct {
	Permalink string
	Stage     Stage
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to publish %s (%s): %v", e.Permalink, e.Stage, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Outcome is the result of processing one document.
type Outcome int

const (
	// OutcomeSkipped means the committed post already matches.
	OutcomeSkipped Outcome = iota
	// OutcomePublished means a commit was pushed.
	OutcomePublished
	// OutcomeDryRun means a commit would have been pushed.
	OutcomeDryRun
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomePublished:
		return "published"
	case OutcomeDryRun:
		return "dry-run"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Converter renders the content of a document as markdown.
type Converter interface {
	PageMarkdown(ctx context.Context, pageID string) (string, error)
}

// ImageFetcher stores images under a directory.
type ImageFetcher interface {
	DownloadAll(ctx context.Context, dir string, refs []post.ImageReference) error
}

// Result describes what Process did with a document.
type Result struct {
	Outcome     Outcome
	Path        string
	Branch      string
	Commit      string
	PullRequest string
}

// Processor runs the workflow for single documents.
type Processor struct {
	converter  Converter
	images     ImageFetcher
	forge      Forge
	normalizer post.Normalizer
	postDir    string
	dryRun     bool
	logger     *slog.Logger
}

// NewProcessor creates a Processor. Posts are written below postDir and
// image links point below assetDir.
func NewProcessor(converter Converter, images ImageFetcher, forge Forge, assetDir, postDir string, dryRun bool, logger *slog.Logger) *Processor {
	return &Processor{
		converter:  converter,
		images:     images,
		forge:      forge,
		normalizer: post.Normalizer{AssetDir: assetDir},
		postDir:    postDir,
		dryRun:     dryRun,
		logger:     logger,
	}
}

// Process runs one document through branch selection, diffing and, when the
// content changed, the publish steps.
func (p *Processor) Process(ctx context.Context, s *Session, page post.PageRecord) (Result, error) {
	fail := func(stage Stage, err error) (Result, error) {
		return Result{}, &PublishError{Permalink: page.Permalink, Stage: stage, Err: err}
	}
	logger := p.logger.With("permalink", page.Permalink)

	if err := post.ValidatePermalink(page.Permalink); err != nil {
		return fail(StageValidate, err)
	}
	relPath, err := page.RelPath(p.postDir)
	if err != nil {
		return fail(StageValidate, err)
	}
	if err := s.claimPath(relPath, page.Permalink, page.ID); err != nil {
		return fail(StageValidate, err)
	}

	branch := BranchName(page.Permalink)
	res := Result{Path: relPath, Branch: branch}

	if err := p.selectBranch(ctx, s, branch, logger); err != nil {
		return fail(StageBranch, err)
	}

	raw, err := p.converter.PageMarkdown(ctx, page.ID)
	if err != nil {
		return fail(StageConvert, err)
	}
	doc := p.normalizer.Normalize(page, raw)
	for _, f := range post.Lint(doc) {
		logger.Warn("post lint", "kind", f.Kind, "subject", f.Subject, "message", f.Message)
	}

	absPath := filepath.Join(s.Repo.Dir(), filepath.FromSlash(relPath))
	changed, err := diff.HasFileDiff(absPath, doc)
	if err != nil {
		return fail(StageDiff, err)
	}
	if !changed {
		logger.Info("post has no diff, nothing to do", "path", relPath)
		res.Outcome = OutcomeSkipped
		return res, nil
	}
	p.logChanges(absPath, doc, logger)

	if p.dryRun {
		logger.Info("[dry-run] would publish", "path", relPath, "branch", branch, "images", len(doc.Images))
		for _, ref := range doc.Images {
			logger.Info("[dry-run] would download", "url", ref.URL, "path", post.ImageRelPath(ref))
		}
		res.Outcome = OutcomeDryRun
		return res, nil
	}

	if len(doc.Images) > 0 {
		logger.Info("downloading images", "count", len(doc.Images))
		if err := p.images.DownloadAll(ctx, filepath.Join(s.Repo.Dir(), filepath.FromSlash(post.ImageDir)), doc.Images); err != nil {
			return fail(StageImages, err)
		}
	}

	logger.Info("writing post", "path", relPath)
	if err := writeFile(absPath, []byte(doc.Markdown)); err != nil {
		return fail(StageWrite, err)
	}

	paths := []string{relPath}
	if len(doc.Images) > 0 {
		paths = append(paths, post.ImageDir)
	}
	if err := s.Repo.Add(ctx, paths...); err != nil {
		return fail(StageCommit, err)
	}
	if err := s.Repo.Commit(ctx, "update post "+page.Permalink); err != nil {
		return fail(StageCommit, err)
	}
	if res.Commit, err = s.Repo.HeadCommit(ctx); err != nil {
		return fail(StageCommit, err)
	}

	logger.Info("pushing", "branch", branch, "commit", res.Commit)
	if err := s.Repo.Push(ctx, branch, true); err != nil {
		return fail(StagePush, err)
	}
	s.markPushed(branch)

	if res.PullRequest, err = p.reconcilePullRequest(ctx, s, page.Permalink, branch, logger); err != nil {
		return fail(StagePullRequest, err)
	}

	res.Outcome = OutcomePublished
	return res, nil
}

// selectBranch resets the working copy to the base branch, then continues on
// the remote branch for this post if there is one, or starts a new one.
func (p *Processor) selectBranch(ctx context.Context, s *Session, branch string, logger *slog.Logger) error {
	if err := s.Repo.CheckoutBase(ctx, s.BaseBranch); err != nil {
		return err
	}
	if s.HasRemoteBranch(branch) {
		logger.Info("branch exists, checking out remote branch", "branch", branch)
		return s.Repo.CheckoutTracking(ctx, branch)
	}
	logger.Info("branch does not exist, creating it from base", "branch", branch, "base", s.BaseBranch)
	return s.Repo.CheckoutNewBranch(ctx, branch)
}

// reconcilePullRequest opens a pull request for branch unless one with the
// expected title is already open. It returns the URL of the created pull
// request, or an empty string.
func (p *Processor) reconcilePullRequest(ctx context.Context, s *Session, permalink, branch string, logger *slog.Logger) (string, error) {
	title := PRTitlePrefix + permalink
	open, err := p.forge.FindOpenPullRequests(ctx, title)
	if err != nil {
		return "", err
	}
	if len(open) > 0 {
		logger.Info("pull request already exists", "number", open[0].Number)
		return "", nil
	}

	pr, err := p.forge.CreatePullRequest(ctx, s.User+":"+branch, s.BaseBranch, title)
	if err != nil {
		return "", err
	}
	logger.Info("pull request created", "number", pr.Number, "url", pr.URL)
	return pr.URL, nil
}

// logChanges logs which header fields differ from the committed post.
func (p *Processor) logChanges(absPath string, doc post.NormalizedDocument, logger *slog.Logger) {
	data, err := os.ReadFile(absPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("new post detected")
		return
	}
	if err != nil {
		return
	}
	fields, err := diff.ChangedFields(string(data), doc.Markdown, doc.ContentIDs())
	if err != nil {
		logger.Warn("could not compare post headers", "error", err)
		return
	}
	logger.Info("post changed", "fields", fields)
}

// writeFile writes data to dst atomically, creating parent directories.
func writeFile(dst string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".notion2blog-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(0644); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, dst)
}
