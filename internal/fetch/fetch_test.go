package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/resizr/resizr/internal/imgerr"
)

func TestFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		body := []byte("image bytes")
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(body)
		}))
		defer ts.Close()

		f := NewFetcher(nil, 0)
		got, err := f.Fetch(ctx, ts.URL)
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if !bytes.Equal(got, body) {
			t.Errorf("Fetch returned %q, want %q", got, body)
		}
	})

	t.Run("Upstream 404", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer ts.Close()

		f := NewFetcher(nil, 0)
		_, err := f.Fetch(ctx, ts.URL)
		if !errors.Is(err, imgerr.ErrNotFound) {
			t.Fatalf("Fetch = %v, want ErrNotFound", err)
		}
		var statusErr *imgerr.UpstreamStatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
			t.Errorf("Expected upstream status 404 in error chain, got %v", err)
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer ts.Close()

		f := NewFetcher(nil, 20*time.Millisecond)
		_, err := f.Fetch(ctx, ts.URL)
		if !errors.Is(err, imgerr.ErrNotFound) {
			t.Errorf("Fetch on timeout = %v, want ErrNotFound", err)
		}
	})

	t.Run("Progress tee", func(t *testing.T) {
		body := []byte("0123456789")
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(body)
		}))
		defer ts.Close()

		var progress bytes.Buffer
		f := NewFetcher(nil, 0)
		f.Progress = &progress
		if _, err := f.Fetch(ctx, ts.URL); err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if progress.Len() != len(body) {
			t.Errorf("Progress writer saw %d bytes, want %d", progress.Len(), len(body))
		}
	})
}
