// Package handler exposes the resize engine over HTTP.
//
// It owns request validation and the error-to-status contract:
// UnsupportedFormat→415, NotFound→404, InvalidArgument→400, anything
// else→500 with a generic body (full detail is logged server-side only).
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/resizr/resizr/internal/imageproc"
	"github.com/resizr/resizr/internal/imgerr"
	"github.com/resizr/resizr/internal/metrics"
	"github.com/resizr/resizr/internal/resizer"
)

// MaxDimension caps requested width and height.
const MaxDimension = 2048

// Service is the slice of the coordinator the handler needs.
type Service interface {
	Resize(ctx context.Context, req resizer.Request) (resizer.Result, error)
}

// ResizeHandler serves GET /resize?url=...&w=...[&h=...][&f=...].
type ResizeHandler struct {
	Service Service
	Metrics *metrics.Metrics
}

func NewResizeHandler(service Service, m *metrics.Metrics) *ResizeHandler {
	return &ResizeHandler{Service: service, Metrics: m}
}

func (h *ResizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := parseQuery(r)
	if err != nil {
		h.Metrics.Request("invalid")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.Service.Resize(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.Metrics.Request("ok")
	// A variant is immutable for its (url, w, h, f) tuple, so downstream
	// caches may hold it indefinitely.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("Content-Type", res.Format.MIME())
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	if _, err := w.Write(res.Data); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

func (h *ResizeHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, imgerr.ErrUnsupportedFormat):
		h.Metrics.Request("unsupported")
		http.Error(w, "unsupported image format", http.StatusUnsupportedMediaType)
	case errors.Is(err, imgerr.ErrNotFound):
		h.Metrics.Request("notfound")
		slog.Info("Upstream image not found", "url", r.URL.Query().Get("url"), "error", err)
		http.Error(w, "image not found", http.StatusNotFound)
	case errors.Is(err, imgerr.ErrInvalidArgument):
		h.Metrics.Request("invalid")
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.Metrics.Request("error")
		slog.Error("Resize failed", "url", r.URL.Query().Get("url"), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func parseQuery(r *http.Request) (resizer.Request, error) {
	q := r.URL.Query()

	srcURL := q.Get("url")
	if srcURL == "" {
		return resizer.Request{}, fmt.Errorf("missing required parameter: url")
	}

	width, err := parseDim(q.Get("w"), "w", true)
	if err != nil {
		return resizer.Request{}, err
	}
	height, err := parseDim(q.Get("h"), "h", false)
	if err != nil {
		return resizer.Request{}, err
	}

	var format imageproc.Format
	if f := q.Get("f"); f != "" {
		format, err = imageproc.ParseRequested(f)
		if err != nil {
			return resizer.Request{}, fmt.Errorf("invalid parameter f: must be one of jpg, png, webp, avif")
		}
	}

	return resizer.Request{URL: srcURL, Width: width, Height: height, Format: format}, nil
}

func parseDim(s, name string, required bool) (int, error) {
	if s == "" {
		if required {
			return 0, fmt.Errorf("missing required parameter: %s", name)
		}
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > MaxDimension {
		return 0, fmt.Errorf("invalid parameter %s: must be an integer between 1 and %d", name, MaxDimension)
	}
	return n, nil
}
