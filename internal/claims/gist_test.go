package claims

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGistURL(t *testing.T) {
	cases := []struct {
		url    string
		handle string
		id     string
		ok     bool
	}{
		{"https://gist.github.com/alice/abc123f", "alice", "abc123f", true},
		{"https://gist.github.com/alice/abc123f/", "alice", "abc123f", true},
		{"https://gist.github.com/a-b-c/0123456789abcdef", "a-b-c", "0123456789abcdef", true},
		{"https://gist.github.com/alice", "", "", false},
		{"http://gist.github.com/alice/abc123f", "", "", false},
		{"https://gist.github.com/-alice/abc123f", "", "", false},
		{"https://gist.github.com/alice/abc123f/raw", "", "", false},
		{"https://example.com/alice/abc123f", "", "", false},
		{"", "", "", false},
	}
	for _, tc := range cases {
		handle, id, err := ParseGistURL(tc.url)
		if tc.ok {
			require.NoError(t, err, "url %q", tc.url)
			assert.Equal(t, tc.handle, handle)
			assert.Equal(t, tc.id, id)
		} else {
			assert.ErrorIs(t, err, ErrInvalidGistURL, "url %q", tc.url)
		}
	}
}

func newTestFetcher(ts *httptest.Server) *HTTPGistFetcher {
	f := NewGistFetcher(2 * time.Second)
	f.rawBase = ts.URL
	return f
}

func TestFetchRawContent_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/alice/abc123f/raw", r.URL.Path)
		w.Write([]byte("here is the code: xyz"))
	}))
	defer ts.Close()

	content, err := newTestFetcher(ts).FetchRawContent(context.Background(), "https://gist.github.com/alice/abc123f")
	require.NoError(t, err)
	assert.Equal(t, "here is the code: xyz", content)
}

func TestFetchRawContent_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := newTestFetcher(ts).FetchRawContent(context.Background(), "https://gist.github.com/alice/abc123f")
	assert.ErrorIs(t, err, ErrGistNotFound)
}

func TestFetchRawContent_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := newTestFetcher(ts).FetchRawContent(context.Background(), "https://gist.github.com/alice/abc123f")
	assert.ErrorIs(t, err, ErrGistFetch)
	assert.NotErrorIs(t, err, ErrGistNotFound)
}

func TestFetchRawContent_TransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	ts.Close() // connection refused from here on

	_, err := newTestFetcher(ts).FetchRawContent(context.Background(), "https://gist.github.com/alice/abc123f")
	assert.ErrorIs(t, err, ErrGistFetch)
}

func TestFetchRawContent_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer ts.Close()

	f := NewGistFetcher(50 * time.Millisecond)
	f.rawBase = ts.URL

	_, err := f.FetchRawContent(context.Background(), "https://gist.github.com/alice/abc123f")
	assert.ErrorIs(t, err, ErrGistFetch)
}

func TestFetchRawContent_RejectsBadURLBeforeDialing(t *testing.T) {
	f := NewGistFetcher(time.Second)
	_, err := f.FetchRawContent(context.Background(), "https://evil.example/alice/abc123f")
	assert.ErrorIs(t, err, ErrInvalidGistURL)
}
