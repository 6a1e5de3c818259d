// Package forge wraps the GitHub API calls the publish workflow needs:
// looking up the authenticated user and finding or opening pull requests.
package forge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"
)

// PullRequest is an open pull request or search hit.
type PullRequest struct {
	Number int
	Title  string
	URL    string
}

// Client talks to a single repository on GitHub.
type Client struct {
	gh    *github.Client
	owner string
	repo  string
}

type options struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*options)

// WithBaseURL points the client at another API root, such as a GitHub
// Enterprise instance or a test server.
func WithBaseURL(raw string) Option {
	return func(o *options) {
		o.baseURL = raw
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// NewClient creates a client for owner/repo authenticating with token.
func NewClient(token, owner, repo string, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	gh := github.NewClient(o.httpClient).WithAuthToken(token)
	if o.baseURL != "" {
		raw := o.baseURL
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid api url %q: %w", o.baseURL, err)
		}
		gh.BaseURL = u
	}

	return &Client{gh: gh, owner: owner, repo: repo}, nil
}

// AuthenticatedUser returns the login of the token's user.
func (c *Client) AuthenticatedUser(ctx context.Context) (string, error) {
	user, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("failed to get authenticated user: %w", err)
	}
	return user.GetLogin(), nil
}

// FindOpenPullRequests returns the open pull requests of the repository whose
// title is exactly title. The search is a substring match, so hits are
// filtered again here.
func (c *Client) FindOpenPullRequests(ctx context.Context, title string) ([]PullRequest, error) {
	query := fmt.Sprintf("is:pr is:open repo:%s/%s in:title %q", c.owner, c.repo, title)
	res, _, err := c.gh.Search.Issues(ctx, query, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search pull requests: %w", err)
	}

	var prs []PullRequest
	for _, issue := range res.Issues {
		if issue.GetTitle() != title {
			continue
		}
		prs = append(prs, PullRequest{
			Number: issue.GetNumber(),
			Title:  issue.GetTitle(),
			URL:    issue.GetHTMLURL(),
		})
	}
	return prs, nil
}

// CreatePullRequest opens a pull request from head into base.
func (c *Client) CreatePullRequest(ctx context.Context, head, base, title string) (PullRequest, error) {
	pr, _, err := c.gh.PullRequests.Create(ctx, c.owner, c.repo, &github.NewPullRequest{
		Title: github.String(title),
		Head:  github.String(head),
		Base:  github.String(base),
	})
	if err != nil {
		return PullRequest{}, fmt.Errorf("failed to create pull request %q: %w", title, err)
	}
	return PullRequest{
		Number: pr.GetNumber(),
		Title:  pr.GetTitle(),
		URL:    pr.GetHTMLURL(),
	}, nil
}
