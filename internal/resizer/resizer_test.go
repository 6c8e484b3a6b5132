package resizer

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/resizr/resizr/internal/cachekey"
	"github.com/resizr/resizr/internal/imageproc"
	"github.com/resizr/resizr/internal/imgerr"
	"github.com/resizr/resizr/internal/store"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: byte(x), G: byte(y), B: 0x80, A: 0xFF})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

// countingFetcher serves a fixed body and counts calls.
type countingFetcher struct {
	data  []byte
	err   error
	calls atomic.Int64
}

func (f *countingFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

// countingPipeline wraps the real pipeline and counts Transform calls.
type countingPipeline struct {
	imageproc.Pipeline
	transforms atomic.Int64
}

func (p *countingPipeline) Transform(data []byte, w, h int, out imageproc.Format, applyQuality bool) ([]byte, error) {
	p.transforms.Add(1)
	return p.Pipeline.Transform(data, w, h, out, applyQuality)
}

func newTestResizer(t *testing.T, fetcher Fetcher) (*Resizer, *store.Store, *countingPipeline) {
	t.Helper()
	st := store.New(t.TempDir(), nil)
	pl := &countingPipeline{Pipeline: imageproc.Pipeline{Policy: imageproc.DefaultPolicy()}}
	r := New(Config{
		Store:    st,
		Fetcher:  fetcher,
		Pipeline: pl,
		Policy:   imageproc.DefaultPolicy(),
	})
	return r, st, pl
}

func outputDims(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestResizeBasic(t *testing.T) {
	fetcher := &countingFetcher{data: pngBytes(t, 100, 50)}
	r, st, _ := newTestResizer(t, fetcher)
	ctx := context.Background()

	res, err := r.Resize(ctx, Request{URL: "https://example.com/a.png", Width: 40, Height: 20, Format: imageproc.PNG})
	if err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if res.Format != imageproc.PNG {
		t.Errorf("Format = %q, want png", res.Format)
	}
	if w, h := outputDims(t, res.Data); w != 40 || h != 20 {
		t.Errorf("Output = %dx%d, want 40x20", w, h)
	}

	key, _ := cachekey.Derive("https://example.com/a.png")
	if _, ok, _ := st.FindExact(key, 40, 20, imageproc.PNG); !ok {
		t.Error("Variant was not persisted")
	}
	if _, _, ok, _ := st.ReadOriginal(key); !ok {
		t.Error("Original was not persisted")
	}
}

func TestResizeIdempotent(t *testing.T) {
	fetcher := &countingFetcher{data: pngBytes(t, 100, 50)}
	r, _, pl := newTestResizer(t, fetcher)
	ctx := context.Background()
	req := Request{URL: "https://example.com/a.png", Width: 40, Height: 20, Format: imageproc.PNG}

	first, err := r.Resize(ctx, req)
	if err != nil {
		t.Fatalf("First resize failed: %v", err)
	}
	second, err := r.Resize(ctx, req)
	if err != nil {
		t.Fatalf("Second resize failed: %v", err)
	}

	if !bytes.Equal(first.Data, second.Data) {
		t.Error("Second call returned different bytes than the cached first")
	}
	if n := fetcher.calls.Load(); n != 1 {
		t.Errorf("Fetcher called %d times, want 1", n)
	}
	if n := pl.transforms.Load(); n != 1 {
		t.Errorf("Pipeline invoked %d times, want 1", n)
	}
}

func TestResizeDerivedHeight(t *testing.T) {
	fetcher := &countingFetcher{data: pngBytes(t, 1000, 500)}
	r, st, _ := newTestResizer(t, fetcher)

	res, err := r.Resize(context.Background(), Request{URL: "https://example.com/wide.png", Width: 400})
	if err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if w, h := outputDims(t, res.Data); w != 400 || h != 200 {
		t.Errorf("Output = %dx%d, want 400x200", w, h)
	}

	key, _ := cachekey.Derive("https://example.com/wide.png")
	if _, ok, _ := st.FindExact(key, 400, 200, imageproc.PNG); !ok {
		t.Error("Derived-height variant not cached as 400x200.png")
	}
}

func TestResizeUsesBestFitInsteadOfFetch(t *testing.T) {
	fetcher := &countingFetcher{err: errors.New("fetcher must not be called")}
	r, st, pl := newTestResizer(t, fetcher)
	key, _ := cachekey.Derive("https://example.com/a.png")

	// Seed only a larger variant; no original exists.
	if err := st.WriteVariant(key, 800, 400, imageproc.PNG, pngBytes(t, 800, 400)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := r.Resize(context.Background(), Request{URL: "https://example.com/a.png", Width: 400, Height: 200, Format: imageproc.PNG})
	if err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if w, h := outputDims(t, res.Data); w != 400 || h != 200 {
		t.Errorf("Output = %dx%d, want 400x200", w, h)
	}
	if n := fetcher.calls.Load(); n != 0 {
		t.Errorf("Fetcher called %d times; best-fit should have avoided it", n)
	}
	// Larger match does not short-circuit: a resize still runs.
	if n := pl.transforms.Load(); n != 1 {
		t.Errorf("Pipeline invoked %d times, want 1", n)
	}
}

func TestResizeCoalescesConcurrentRequests(t *testing.T) {
	fetcher := &countingFetcher{data: pngBytes(t, 100, 50)}
	r, _, pl := newTestResizer(t, fetcher)
	req := Request{URL: "https://example.com/a.png", Width: 40, Height: 20, Format: imageproc.PNG}

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resize(context.Background(), req); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Concurrent resize failed: %v", err)
	}

	if calls := fetcher.calls.Load(); calls != 1 {
		t.Errorf("Fetcher called %d times, want 1", calls)
	}
	if transforms := pl.transforms.Load(); transforms != 1 {
		t.Errorf("Pipeline invoked %d times, want 1", transforms)
	}
}

func TestResizeUpstreamFailureLeavesNoFiles(t *testing.T) {
	fetcher := &countingFetcher{err: fmt.Errorf("failed to fetch image: %w", &imgerr.UpstreamStatusError{StatusCode: 404})}
	r, st, _ := newTestResizer(t, fetcher)

	_, err := r.Resize(context.Background(), Request{URL: "https://example.com/gone.png", Width: 100, Height: 100, Format: imageproc.PNG})
	if !errors.Is(err, imgerr.ErrNotFound) {
		t.Fatalf("Resize = %v, want ErrNotFound", err)
	}

	files := 0
	_ = st.Walk(func(rel string, size int64) error {
		files++
		return nil
	})
	if files != 0 {
		t.Errorf("Failed fetch left %d files in the cache", files)
	}
}

// heifFile builds a minimal HEIF container with the given bit depths.
func heifFile(depths ...byte) []byte {
	box := func(typ string, payload []byte) []byte {
		b := make([]byte, 8+len(payload))
		binary.BigEndian.PutUint32(b[0:4], uint32(len(b)))
		copy(b[4:8], typ)
		copy(b[8:], payload)
		return b
	}
	pixi := box("pixi", append([]byte{0, 0, 0, 0, byte(len(depths))}, depths...))
	meta := box("meta", append([]byte{0, 0, 0, 0}, box("iprp", box("ipco", pixi))...))
	return append(box("ftyp", append([]byte("heic"), 0, 0, 0, 0)), meta...)
}

func TestResizeRejectsDeepHEIF(t *testing.T) {
	fetcher := &countingFetcher{data: heifFile(10, 10, 10)}
	r, _, _ := newTestResizer(t, fetcher)

	_, err := r.Resize(context.Background(), Request{URL: "https://example.com/deep.heic", Width: 100, Height: 100, Format: imageproc.JPEG})
	if !errors.Is(err, imgerr.ErrUnsupportedFormat) {
		t.Errorf("Resize = %v, want ErrUnsupportedFormat", err)
	}
}

func TestResizeInvalidInputs(t *testing.T) {
	r, _, _ := newTestResizer(t, &countingFetcher{})

	cases := []Request{
		{URL: "not a url", Width: 100, Height: 100, Format: imageproc.PNG},
		{URL: "https://example.com/a.png", Width: 0, Height: 100, Format: imageproc.PNG},
		{URL: "https://example.com/a.png", Width: 100, Height: -1, Format: imageproc.PNG},
	}
	for _, req := range cases {
		if _, err := r.Resize(context.Background(), req); !errors.Is(err, imgerr.ErrInvalidArgument) {
			t.Errorf("Resize(%+v) = %v, want ErrInvalidArgument", req, err)
		}
	}
}
