// Package notion talks to the Notion REST API: it lists the eligible blog
// records of a database and renders page content as markdown.
package notion

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jomei/notionapi"
)

// DefaultBaseURL is the API root the notionapi client targets.
const DefaultBaseURL = "https://api.notion.com/v1"

// NewClient creates an API client for token. A nil httpClient gets a client
// with a 30 second timeout. A baseURL other than DefaultBaseURL redirects
// every request below it, e.g. https://proxy.example.com/notion/v1.
func NewClient(baseURL, token string, httpClient *http.Client) (*notionapi.Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL != "" && baseURL != DefaultBaseURL {
		base, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid notion base url %q: %w", baseURL, err)
		}
		if base.Scheme == "" || base.Host == "" {
			return nil, fmt.Errorf("invalid notion base url %q: scheme and host are required", baseURL)
		}

		redirected := *httpClient
		next := httpClient.Transport
		if next == nil {
			next = http.DefaultTransport
		}
		redirected.Transport = &baseURLTransport{base: base, next: next}
		httpClient = &redirected
	}

	return notionapi.NewClient(notionapi.Token(token), notionapi.WithHTTPClient(httpClient)), nil
}

// baseURLTransport rewrites requests for the public API root onto base.
type baseURLTransport struct {
	base *url.URL
	next http.RoundTripper
}

func (t *baseURLTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.base.Scheme
	out.URL.Host = t.base.Host
	out.URL.Path = strings.TrimRight(t.base.Path, "/") + strings.TrimPrefix(req.URL.Path, "/v1")
	out.URL.RawPath = ""
	out.Host = t.base.Host
	return t.next.RoundTrip(out)
}
