//go:build integration

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/schaermu/notion2blog/internal/testutil"
)

const (
	databaseID     = "0123456789abcdef0123456789abcdef"
	repoURL        = "https://github.com/octo/blog.git"
	botUser        = "n2b-bot"
	defaultTimeout = 2 * time.Minute
)

// Harness runs the notion2blog binary against fake Notion and GitHub APIs,
// an image host and a local bare repository standing in for the blog remote.
type Harness struct {
	t       *testing.T
	binary  string
	dir     string
	cfgPath string

	Remote string
	Notion *FakeNotion
	GitHub *FakeGitHub
	Images *httptest.Server

	downloads atomic.Int32
}

// NewHarness builds the binary and starts the fake services.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	h := &Harness{
		t:      t,
		dir:    t.TempDir(),
		Remote: testutil.InitBareRemote(t, nil),
		Notion: &FakeNotion{blocks: map[string][]map[string]any{}},
		GitHub: &FakeGitHub{},
	}

	h.buildBinary()

	notionSrv := httptest.NewServer(h.Notion.handler(t))
	t.Cleanup(notionSrv.Close)
	githubSrv := httptest.NewServer(h.GitHub.handler())
	t.Cleanup(githubSrv.Close)

	var pngData bytes.Buffer
	if err := png.Encode(&pngData, image.NewGray(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
	h.Images = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.downloads.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngData.Bytes())
	}))
	t.Cleanup(h.Images.Close)

	// the configured https remote is rewritten to the local bare repository
	gitConfig := filepath.Join(h.dir, "gitconfig")
	writeFile(t, gitConfig, fmt.Sprintf("[url \"%s\"]\n\tinsteadOf = %s\n", h.Remote, repoURL))
	t.Setenv("GIT_CONFIG_GLOBAL", gitConfig)
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")

	h.cfgPath = filepath.Join(h.dir, "config.yaml")
	writeFile(t, h.cfgPath, `notion:
  token: "secret_integration"
  database_id: "`+databaseID+`"
  base_url: "`+notionSrv.URL+`/v1"
property_names:
  permalink: "Permalink"
  tag: "Tags"
  category: "Category"
  exclude_checkbox: "Draft"
  include_checkbox: "Publish"
github:
  repo: "`+repoURL+`"
  pat: "ghp_integration"
  api_url: "`+githubSrv.URL+`/"
blog:
  asset_dir: "/"
  post_dir: "content/posts"
sync:
  work_dir: "`+filepath.Join(h.dir, "work")+`"
`)

	return h
}

// buildBinary compiles the CLI from the module root
func (h *Harness) buildBinary() {
	h.t.Helper()

	root, err := testutil.ProjectRoot()
	if err != nil {
		h.t.Fatalf("find project root: %v", err)
	}

	h.binary = filepath.Join(h.dir, "notion2blog")
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "build", "-o", h.binary, "./cmd/notion2blog")
	cmd.Dir = root
	if out, err := cmd.CombinedOutput(); err != nil {
		h.t.Fatalf("go build: %v\n%s", err, out)
	}
}

// Run executes the binary with args and returns its output and exit code.
func (h *Harness) Run(args ...string) (string, int) {
	h.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	args = append([]string{"--config", h.cfgPath, "--log-level", "debug"}, args...)
	cmd := exec.CommandContext(ctx, h.binary, args...)
	cmd.Env = append(os.Environ(), "HOME="+h.dir)

	out, err := cmd.CombinedOutput()
	h.t.Logf("[notion2blog %s]\n%s", strings.Join(args, " "), out)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), exitErr.ExitCode()
		}
		h.t.Fatalf("run notion2blog: %v", err)
	}
	return string(out), 0
}

// Serve starts "notion2blog serve" listening on addr with secret and
// returns a function that stops it with SIGTERM and waits for the exit code.
func (h *Harness) Serve(addr, secret string) func() int {
	h.t.Helper()

	secretFile := filepath.Join(h.dir, "trigger-secret")
	writeFile(h.t, secretFile, secret+"\n")

	cfg, err := os.ReadFile(h.cfgPath)
	if err != nil {
		h.t.Fatal(err)
	}
	serveCfg := filepath.Join(h.dir, "serve.yaml")
	writeFile(h.t, serveCfg, string(cfg)+"serve:\n  listen_addr: \""+addr+"\"\n  secret_file: \""+secretFile+"\"\n")

	var out bytes.Buffer
	cmd := exec.Command(h.binary, "--config", serveCfg, "--log-level", "debug", "serve")
	cmd.Env = append(os.Environ(), "HOME="+h.dir)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Start(); err != nil {
		h.t.Fatalf("start serve: %v", err)
	}

	return func() int {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		err := cmd.Wait()
		h.t.Logf("[notion2blog serve]\n%s", out.String())

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode()
		}
		if err != nil {
			h.t.Fatalf("wait for serve: %v", err)
		}
		return 0
	}
}

// Eventually polls cond until it holds or the timeout expires.
func (h *Harness) Eventually(cond func() bool, timeout time.Duration, msg string) {
	h.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	h.t.Fatalf("timed out: %s", msg)
}

// Git runs git against the bare remote.
func (h *Harness) Git(args ...string) string {
	h.t.Helper()
	return testutil.Git(h.t, append([]string{"-C", h.Remote}, args...)...)
}

// HasRemote reports whether rev exists in the bare remote.
func (h *Harness) HasRemote(rev string) bool {
	return testutil.HasObject(h.Remote, rev)
}

// Downloads returns the number of image requests served.
func (h *Harness) Downloads() int {
	return int(h.downloads.Load())
}

// ImageURL returns a signed-looking hosted image URL for id.
func (h *Harness) ImageURL(id, signature string) string {
	return h.Images.URL + "/secure.notion-static.com/" + id + "/photo.png?X-Amz-Signature=" + signature
}

// FakeNotion serves the database query and block children endpoints.
type FakeNotion struct {
	mu     sync.Mutex
	pages  []map[string]any
	blocks map[string][]map[string]any
}

// SetPage adds or replaces a page and its top-level blocks.
func (n *FakeNotion) SetPage(page map[string]any, blocks ...map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := page["id"].(string)
	for i, existing := range n.pages {
		if existing["id"] == id {
			n.pages[i] = page
			n.blocks[id] = blocks
			return
		}
	}
	n.pages = append(n.pages, page)
	n.blocks[id] = blocks
}

func (n *FakeNotion) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/databases/{id}/query", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret_integration" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"object":"error","status":401,"code":"unauthorized","message":"API token is invalid."}`))
			return
		}
		n.mu.Lock()
		defer n.mu.Unlock()
		writeJSON(t, w, map[string]any{"object": "list", "results": n.pages, "has_more": false, "next_cursor": nil})
	})
	mux.HandleFunc("GET /v1/blocks/{id}/children", func(w http.ResponseWriter, r *http.Request) {
		n.mu.Lock()
		defer n.mu.Unlock()
		blocks := n.blocks[r.PathValue("id")]
		if blocks == nil {
			blocks = []map[string]any{}
		}
		writeJSON(t, w, map[string]any{"object": "list", "results": blocks, "has_more": false, "next_cursor": nil})
	})
	return mux
}

// FakeGitHub records pull requests created through the REST API.
type FakeGitHub struct {
	mu    sync.Mutex
	pulls []PullRequest
}

// PullRequest is a pull request opened against the fake.
type PullRequest struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Head   string `json:"head"`
	Base   string `json:"base"`
}

// Pulls returns the pull requests opened so far.
func (g *FakeGitHub) Pulls() []PullRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]PullRequest(nil), g.pulls...)
}

func (g *FakeGitHub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"login":%q,"id":1}`, botUser)
	})
	mux.HandleFunc("GET /search/issues", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		items := make([]map[string]any, 0, len(g.pulls))
		for _, pr := range g.pulls {
			items = append(items, map[string]any{
				"number":   pr.Number,
				"title":    pr.Title,
				"html_url": fmt.Sprintf("https://github.com/octo/blog/pull/%d", pr.Number),
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"total_count": len(items), "items": items})
	})
	mux.HandleFunc("POST /repos/octo/blog/pulls", func(w http.ResponseWriter, r *http.Request) {
		var pr PullRequest
		if err := json.NewDecoder(r.Body).Decode(&pr); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		g.mu.Lock()
		pr.Number = len(g.pulls) + 1
		g.pulls = append(g.pulls, pr)
		g.mu.Unlock()

		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"number":%d,"title":%q,"html_url":"https://github.com/octo/blog/pull/%d"}`,
			pr.Number, pr.Title, pr.Number)
	})
	return mux
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
