// gist.go implements the out-of-band proof channel: fetching the raw text
// content of a GitHub Gist over its unauthenticated raw URL.
//
// Raw URL shape: https://gist.githubusercontent.com/<user>/<id>/raw
//
// Raw URLs work for both public and "secret" (unlisted) gists, since serving
// them requires only possession of the URL, not authentication. The fetch has
// a bounded timeout and is never retried; a slow or flaky gist host should
// fail fast with a clear error rather than hang the request; the caller is
// expected to simply re-run verification.
package claims

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/botarena/botarena/internal/telemetry"
)

// DefaultGistFetchTimeout bounds the outbound raw-content request.
const DefaultGistFetchTimeout = 8 * time.Second

// maxGistContentSize caps how much gist content is read when searching for
// the verification code. 1 MB is far beyond any sane proof gist.
const maxGistContentSize = 1 << 20

// gistURLRE matches https://gist.github.com/<user>/<id>. The user segment
// follows GitHub username rules (alphanumerics and inner hyphens, max 39);
// the id segment is the hex gist identifier.
var gistURLRE = regexp.MustCompile(`^https://gist\.github\.com/([a-zA-Z0-9](?:[a-zA-Z0-9-]{0,37}[a-zA-Z0-9])?)/([0-9a-fA-F]+)/?$`)

// ParseGistURL extracts the owning handle and gist id from a gist URL.
// Returns ErrInvalidGistURL when the URL does not have the expected shape.
func ParseGistURL(gistURL string) (handle, id string, err error) {
	m := gistURLRE.FindStringSubmatch(strings.TrimSpace(gistURL))
	if m == nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidGistURL, gistURL)
	}
	return m[1], m[2], nil
}

// GistFetcher retrieves raw gist content. Implemented by HTTPGistFetcher;
// tests substitute their own.
type GistFetcher interface {
	FetchRawContent(ctx context.Context, gistURL string) (string, error)
}

// HTTPGistFetcher fetches gist content from gist.githubusercontent.com.
type HTTPGistFetcher struct {
	client *http.Client
	// rawBase overrides the raw host for tests; empty means the real one.
	rawBase string
}

// NewGistFetcher creates an HTTPGistFetcher with the given request timeout.
// A non-positive timeout falls back to DefaultGistFetchTimeout.
func NewGistFetcher(timeout time.Duration) *HTTPGistFetcher {
	if timeout <= 0 {
		timeout = DefaultGistFetchTimeout
	}
	return &HTTPGistFetcher{
		client: &http.Client{Timeout: timeout},
	}
}

// FetchRawContent downloads the raw text of a gist. It distinguishes a 404
// (ErrGistNotFound, the URL is wrong or the gist was deleted) from other
// failures (ErrGistFetch, meaning transport errors or non-200 statuses).
func (f *HTTPGistFetcher) FetchRawContent(ctx context.Context, gistURL string) (string, error) {
	handle, id, err := ParseGistURL(gistURL)
	if err != nil {
		return "", err
	}

	base := f.rawBase
	if base == "" {
		base = "https://gist.githubusercontent.com"
	}
	rawURL := fmt.Sprintf("%s/%s/%s/raw", base, handle, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGistFetch, err)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	telemetry.GistFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGistFetch, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ErrGistNotFound, gistURL)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: unexpected status %d", ErrGistFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGistContentSize))
	if err != nil {
		return "", fmt.Errorf("%w: reading body: %v", ErrGistFetch, err)
	}
	return string(body), nil
}
