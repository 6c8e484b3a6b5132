package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/resizr/resizr/internal/imageproc"
	"github.com/resizr/resizr/internal/imgerr"
	"github.com/resizr/resizr/internal/resizer"
)

type fakeService struct {
	result resizer.Result
	err    error
	got    resizer.Request
	calls  int
}

func (s *fakeService) Resize(ctx context.Context, req resizer.Request) (resizer.Result, error) {
	s.calls++
	s.got = req
	return s.result, s.err
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestServeSuccess(t *testing.T) {
	svc := &fakeService{result: resizer.Result{Data: []byte("image"), Format: imageproc.WebP}}
	h := NewResizeHandler(svc, nil)

	rec := get(t, h, "/resize?url=https://example.com/a.jpg&w=400&h=200&f=webp")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/webp" {
		t.Errorf("Content-Type = %q, want image/webp", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "public, max-age=31536000, immutable" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if rec.Body.String() != "image" {
		t.Errorf("Body = %q", rec.Body.String())
	}

	want := resizer.Request{URL: "https://example.com/a.jpg", Width: 400, Height: 200, Format: imageproc.WebP}
	if svc.got != want {
		t.Errorf("Service got %+v, want %+v", svc.got, want)
	}
}

func TestServeValidation(t *testing.T) {
	cases := []struct {
		name   string
		target string
	}{
		{"Missing url", "/resize?w=100"},
		{"Missing width", "/resize?url=https://example.com/a.jpg"},
		{"Width zero", "/resize?url=https://example.com/a.jpg&w=0"},
		{"Width over max", "/resize?url=https://example.com/a.jpg&w=2049"},
		{"Width not a number", "/resize?url=https://example.com/a.jpg&w=abc"},
		{"Height over max", "/resize?url=https://example.com/a.jpg&w=100&h=4000"},
		{"Bad format", "/resize?url=https://example.com/a.jpg&w=100&f=tiff"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{}
			rec := get(t, NewResizeHandler(svc, nil), tc.target)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want 400", rec.Code)
			}
			if svc.calls != 0 {
				t.Error("Service was called for an invalid request")
			}
		})
	}
}

func TestServeErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"Unsupported format", fmt.Errorf("wrap: %w", imgerr.ErrUnsupportedFormat), http.StatusUnsupportedMediaType},
		{"Not found", fmt.Errorf("wrap: %w", imgerr.ErrNotFound), http.StatusNotFound},
		{"Upstream status", fmt.Errorf("wrap: %w", &imgerr.UpstreamStatusError{StatusCode: 502}), http.StatusNotFound},
		{"Invalid argument", fmt.Errorf("wrap: %w", imgerr.ErrInvalidArgument), http.StatusBadRequest},
		{"Unclassified", fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{err: tc.err}
			rec := get(t, NewResizeHandler(svc, nil), "/resize?url=https://example.com/a.jpg&w=100")
			if rec.Code != tc.want {
				t.Errorf("Status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestServeMethodNotAllowed(t *testing.T) {
	svc := &fakeService{}
	rec := httptest.NewRecorder()
	NewResizeHandler(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/resize?url=https://example.com/a.jpg&w=100", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Status = %d, want 405", rec.Code)
	}
}
