package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/schaermu/notion2blog/internal/post"
)

// Source lists the documents to publish.
type Source interface {
	FetchEligible(ctx context.Context, databaseID string) ([]post.PageRecord, error)
}

// Report summarizes a run.
type Report struct {
	DryRun       bool
	Published    []string
	Skipped      []string
	Failed       []string
	PullRequests []string
}

// Options configures a Runner.
type Options struct {
	DatabaseID string
	RepoURL    string
	BaseBranch string
	WorkDir    string
	DryRun     bool
}

// Runner executes complete sync runs.
type Runner struct {
	opts      Options
	source    Source
	processor *Processor
	clone     CloneFunc
	forge     Forge
	logger    *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(opts Options, source Source, processor *Processor, clone CloneFunc, forge Forge, logger *slog.Logger) *Runner {
	return &Runner{
		opts:      opts,
		source:    source,
		processor: processor,
		clone:     clone,
		forge:     forge,
		logger:    logger,
	}
}

// Run fetches the eligible documents and processes them in order. A failing
// document is logged and recorded and the run moves on to the next one; the
// returned error joins every document failure. Failing to list documents or
// to prepare the repository aborts the run.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	r.logger.Info("starting sync",
		"database_id", r.opts.DatabaseID,
		"repo", r.opts.RepoURL,
		"base", r.opts.BaseBranch,
		"dry_run", r.opts.DryRun)

	pages, err := r.source.FetchEligible(ctx, r.opts.DatabaseID)
	if err != nil {
		return nil, err
	}

	report := &Report{DryRun: r.opts.DryRun}
	if len(pages) == 0 {
		r.logger.Info("no eligible documents, nothing to do")
		return report, nil
	}

	session, err := NewSession(ctx, SessionOptions{
		RepoURL:    r.opts.RepoURL,
		BaseBranch: r.opts.BaseBranch,
		ParentDir:  r.opts.WorkDir,
		Clone:      r.clone,
		Forge:      r.forge,
		Logger:     r.logger,
	})
	if err != nil {
		return report, fmt.Errorf("failed to prepare repository: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			r.logger.Warn("cleanup failed", "error", err)
		}
	}()

	var errs []error
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		r.logger.Info("processing document", "permalink", page.Permalink, "title", page.Title)
		res, err := r.processor.Process(ctx, session, page)
		if err != nil {
			r.logger.Error("document failed", "permalink", page.Permalink, "error", err)
			report.Failed = append(report.Failed, page.Permalink)
			errs = append(errs, err)
			continue
		}

		switch res.Outcome {
		case OutcomeSkipped:
			report.Skipped = append(report.Skipped, page.Permalink)
		case OutcomePublished, OutcomeDryRun:
			report.Published = append(report.Published, page.Permalink)
		}
		if res.PullRequest != "" {
			report.PullRequests = append(report.PullRequests, res.PullRequest)
		}
	}

	r.logReport(report)
	return report, errors.Join(errs...)
}

// logReport logs the run summary
func (r *Runner) logReport(report *Report) {
	msg := "sync completed"
	if report.DryRun {
		msg = "dry-run complete, no changes applied"
	}
	r.logger.Info(msg,
		"published", len(report.Published),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
		"pull_requests", len(report.PullRequests))
	for _, permalink := range report.Failed {
		r.logger.Warn("failed document", "permalink", permalink)
	}
}
