package client

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicRequestRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	body, err := c.PublicRequest("p/abc/")
	require.NoError(t, err)
	assert.Contains(t, string(body), "ok")
	assert.Equal(t, int32(3), hits.Load())
}

func TestPublicRequestFailsFastOnNotFound(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.PublicRequest("p/missing/")
	var notFound *ClientNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, int32(1), hits.Load())
}

func TestPublicRequestFailsFastOnThrottle(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.PublicRequest("explore/tags/go/")
	var throttled *ClientThrottledError
	require.ErrorAs(t, err, &throttled)
	assert.Equal(t, int32(1), hits.Load())
}

func TestPublicRequestDetectsLoginWall(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/p/abc/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/accounts/login/", http.StatusFound)
	})
	mux.HandleFunc("/accounts/login/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>log in</html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.PublicRequest("p/abc/")
	var loginRequired *ClientLoginRequired
	require.ErrorAs(t, err, &loginRequired)
}

func TestPublicBrowserHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.PublicRequest("p/abc/")
	require.NoError(t, err)
	assert.Contains(t, got.Get("User-Agent"), "Mozilla/5.0")
	assert.Equal(t, AppID, got.Get("X-IG-App-ID"))
}

func TestPublicGraphQLRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/graphql/query/", r.URL.Path)
		assert.Equal(t, "abc123", r.URL.Query().Get("query_hash"))
		assert.JSONEq(t, `{"id":"42"}`, r.URL.Query().Get("variables"))
		fmt.Fprint(w, `{"data":{"user":{"id":"42"}},"status":"ok"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	data, err := c.PublicGraphQLRequest("abc123", map[string]any{"id": "42"})
	require.NoError(t, err)
	user, ok := data["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "42", user["id"])
}

func TestPublicA1Request(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("__a"))
		assert.Equal(t, "dis", r.URL.Query().Get("__d"))
		fmt.Fprint(w, `{"graphql":{"shortcode_media":{"id":"7"}},"status":"ok"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	result, err := c.PublicA1Request("p/abc/", url.Values{})
	require.NoError(t, err)
	media, ok := result["shortcode_media"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "7", media["id"])
}
