// Package fetch retrieves original assets over HTTP. It performs no disk
// I/O; caching the fetched bytes is the coordinator's job.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/resizr/resizr/internal/errutil"
	"github.com/resizr/resizr/internal/imgerr"
)

// DefaultTimeout bounds a single upstream request so a slow origin cannot
// pin a worker indefinitely.
const DefaultTimeout = 30 * time.Second

// Fetcher downloads original assets.
type Fetcher struct {
	Client *http.Client

	// Progress, when set, receives every fetched byte as it arrives.
	// Used by the CLI to drive a progress bar.
	Progress io.Writer
}

// NewFetcher creates a Fetcher with a bounded-timeout client. A nil client
// gets a default one; a zero timeout means DefaultTimeout.
func NewFetcher(client *http.Client, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Fetcher{Client: client}
}

// Fetch issues a GET for url and returns the raw body. Any non-success
// status maps to ErrNotFound with the upstream status attached; transport
// errors (including timeout expiry) map to ErrNotFound as well, since from
// the caller's view the asset could not be obtained.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", imgerr.ErrInvalidArgument, err)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", imgerr.ErrNotFound, err)
	}
	defer func() {
		errutil.LogMsg(resp.Body.Close(), "Failed to close response body")
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to fetch image: %w", &imgerr.UpstreamStatusError{StatusCode: resp.StatusCode})
	}

	var r io.Reader = resp.Body
	if f.Progress != nil {
		r = io.TeeReader(resp.Body, f.Progress)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", imgerr.ErrNotFound, err)
	}
	return data, nil
}
