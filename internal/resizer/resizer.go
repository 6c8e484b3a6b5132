// Package resizer orchestrates the resize engine: cache lookups, original
// fetches, the transform pipeline and variant persistence.
//
// Request resolution for one (key, width, height, format) tuple runs under
// a singleflight critical section, so concurrent identical requests within
// one process coalesce into a single fetch/resize. Across processes
// sharing the cache root the store's atomic renames keep duplicate work
// merely wasteful, never corrupting.
package resizer

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/resizr/resizr/internal/cachekey"
	"github.com/resizr/resizr/internal/imageproc"
	"github.com/resizr/resizr/internal/imgerr"
	"github.com/resizr/resizr/internal/metrics"
)

// Fetcher retrieves original asset bytes from an upstream URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Store locates and persists cached bytes. Implemented by store.Store.
type Store interface {
	FindExact(key cachekey.Key, width, height int, format imageproc.Format) ([]byte, bool, error)
	FindBestFit(key cachekey.Key, width, height int, format imageproc.Format) ([]byte, int, int, bool, error)
	ReadOriginal(key cachekey.Key) ([]byte, imageproc.Format, bool, error)
	WriteOriginal(key cachekey.Key, format imageproc.Format, data []byte) error
	WriteVariant(key cachekey.Key, width, height int, format imageproc.Format, data []byte) error
}

// Pipeline decodes, resizes and encodes image bytes. Implemented by
// imageproc.Pipeline.
type Pipeline interface {
	Meta(data []byte) (imageproc.Format, int, int, error)
	Transform(data []byte, width, height int, out imageproc.Format, applyQuality bool) ([]byte, error)
}

// Request is a canonicalized resize request. Width is required; Height 0
// derives the height from the original's aspect ratio; Format "" uses the
// source format.
type Request struct {
	URL    string
	Width  int
	Height int
	Format imageproc.Format
}

// Result carries the output bytes and their encoding format.
type Result struct {
	Data   []byte
	Format imageproc.Format
}

// Config wires a Resizer. Store, Fetcher and Pipeline are required;
// Metrics may be nil.
type Config struct {
	Store    Store
	Fetcher  Fetcher
	Pipeline Pipeline
	Policy   imageproc.Policy
	Metrics  *metrics.Metrics

	// MaxConcurrentTransforms bounds CPU-heavy decode/encode work so it
	// cannot starve request handling. Defaults to GOMAXPROCS.
	MaxConcurrentTransforms int64
}

// Resizer resolves resize requests against the cache.
type Resizer struct {
	store    Store
	fetcher  Fetcher
	pipeline Pipeline
	policy   imageproc.Policy
	metrics  *metrics.Metrics

	flight singleflight.Group
	sem    *semaphore.Weighted
}

func New(cfg Config) *Resizer {
	n := cfg.MaxConcurrentTransforms
	if n <= 0 {
		n = int64(runtime.GOMAXPROCS(0))
	}
	return &Resizer{
		store:    cfg.Store,
		fetcher:  cfg.Fetcher,
		pipeline: cfg.Pipeline,
		policy:   cfg.Policy,
		metrics:  cfg.Metrics,
		sem:      semaphore.NewWeighted(n),
	}
}

// Resize returns the requested variant, producing and caching it if
// needed. All errors wrap one of the imgerr sentinels or are internal.
func (r *Resizer) Resize(ctx context.Context, req Request) (Result, error) {
	if req.Width < 1 {
		return Result{}, fmt.Errorf("%w: width must be >= 1", imgerr.ErrInvalidArgument)
	}
	if req.Height < 0 {
		return Result{}, fmt.Errorf("%w: height must be >= 1", imgerr.ErrInvalidArgument)
	}

	key, err := cachekey.Derive(req.URL)
	if err != nil {
		return Result{}, err
	}

	width, height, out := req.Width, req.Height, req.Format
	if out != "" {
		out = r.policy.Output(out, "")
	}
	if height == 0 || out == "" {
		// Deriving the height or defaulting the format needs original
		// metadata, which may force a fetch before any variant lookup.
		data, srcFormat, err := r.ensureOriginal(ctx, key, req.URL)
		if err != nil {
			return Result{}, err
		}
		if err := r.policy.CheckSource(srcFormat, data); err != nil {
			return Result{}, err
		}
		if height == 0 {
			_, ow, oh, err := r.pipeline.Meta(data)
			if err != nil {
				return Result{}, err
			}
			if ow == 0 {
				return Result{}, fmt.Errorf("%w: original has zero width", imgerr.ErrUnsupportedFormat)
			}
			height = int(math.Round(float64(width) * float64(oh) / float64(ow)))
			if height < 1 {
				height = 1
			}
		}
		out = r.policy.Output(req.Format, srcFormat)
	}

	opKey := fmt.Sprintf("%s:%dx%d.%s", key, width, height, out)
	v, err, _ := r.flight.Do(opKey, func() (interface{}, error) {
		// The operation outlives a disconnecting client on purpose: a
		// finished variant warms the cache for the next request.
		return r.resolve(context.WithoutCancel(ctx), key, req.URL, width, height, out)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

// resolve runs CHECK_EXACT through PERSIST for one target shape.
func (r *Resizer) resolve(ctx context.Context, key cachekey.Key, url string, width, height int, out imageproc.Format) (Result, error) {
	data, ok, err := r.store.FindExact(key, width, height, out)
	if err != nil {
		return Result{}, err
	}
	if ok {
		r.metrics.Hit("exact")
		return Result{Data: data, Format: out}, nil
	}

	// A strictly larger cached variant is a cheaper decode source than the
	// original, but it still goes through the pipeline to reach the exact
	// target shape.
	var src []byte
	best, bw, bh, ok, err := r.store.FindBestFit(key, width, height, out)
	if err != nil {
		return Result{}, err
	}
	switch {
	case ok && bw == width && bh == height:
		// The exact file appeared between the two lookups.
		r.metrics.Hit("exact")
		return Result{Data: best, Format: out}, nil
	case ok:
		r.metrics.Hit("bestfit")
		src = best
	default:
		r.metrics.Miss()
		orig, srcFormat, err := r.ensureOriginal(ctx, key, url)
		if err != nil {
			return Result{}, err
		}
		if err := r.policy.CheckSource(srcFormat, orig); err != nil {
			return Result{}, err
		}
		src = orig
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	start := time.Now()
	result, err := r.pipeline.Transform(src, width, height, out, r.policy.ApplyQuality(out, width))
	r.sem.Release(1)
	if err != nil {
		return Result{}, err
	}
	r.metrics.Transform(time.Since(start))

	if err := r.store.WriteVariant(key, width, height, out, result); err != nil {
		return Result{}, err
	}
	return Result{Data: result, Format: out}, nil
}

// ensureOriginal returns the cached original for key, fetching and
// persisting it on first use. Concurrent callers for the same key share
// one fetch.
func (r *Resizer) ensureOriginal(ctx context.Context, key cachekey.Key, url string) ([]byte, imageproc.Format, error) {
	type original struct {
		data   []byte
		format imageproc.Format
	}

	v, err, _ := r.flight.Do(string(key)+":original", func() (interface{}, error) {
		data, format, ok, err := r.store.ReadOriginal(key)
		if err != nil {
			return nil, err
		}
		if ok {
			return original{data, format}, nil
		}

		fetched, err := r.fetcher.Fetch(context.WithoutCancel(ctx), url)
		r.metrics.Fetch(err)
		if err != nil {
			return nil, err
		}
		format, err = imageproc.Sniff(fetched)
		if err != nil {
			return nil, err
		}
		if err := r.store.WriteOriginal(key, format, fetched); err != nil {
			return nil, err
		}
		return original{fetched, format}, nil
	})
	if err != nil {
		return nil, "", err
	}
	o := v.(original)
	return o.data, o.format, nil
}
