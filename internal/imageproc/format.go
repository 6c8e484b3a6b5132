// Package imageproc contains the image-side half of the resize engine:
// format detection, the output format/quality policy, and the
// decode/resize/encode pipeline.
package imageproc

import (
	"bytes"
	"fmt"

	"github.com/resizr/resizr/internal/imgerr"
)

// Format is a canonical image format name, matching the names the stdlib
// image registry reports ("jpeg", not "jpg").
type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
	GIF  Format = "gif"
	WebP Format = "webp"
	AVIF Format = "avif"
	HEIF Format = "heif"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
)

// Ext returns the file extension used in cache filenames.
func (f Format) Ext() string {
	if f == JPEG {
		return "jpg"
	}
	return string(f)
}

// MIME returns the Content-Type value for the format.
func (f Format) MIME() string {
	return "image/" + string(f)
}

// ParseRequested maps a client-supplied output format ("f" query parameter)
// to a Format. Only the documented output set is accepted.
func ParseRequested(s string) (Format, error) {
	switch s {
	case "jpg", "jpeg":
		return JPEG, nil
	case "png":
		return PNG, nil
	case "webp":
		return WebP, nil
	case "avif":
		return AVIF, nil
	}
	return "", fmt.Errorf("%w: unknown output format %q", imgerr.ErrInvalidArgument, s)
}

// ParseExt maps a cache filename extension back to a Format.
func ParseExt(ext string) (Format, bool) {
	switch ext {
	case "jpg", "jpeg":
		return JPEG, true
	case "png":
		return PNG, true
	case "gif":
		return GIF, true
	case "webp":
		return WebP, true
	case "avif":
		return AVIF, true
	case "heif", "heic":
		return HEIF, true
	case "bmp":
		return BMP, true
	case "tiff", "tif":
		return TIFF, true
	}
	return "", false
}

var heifBrands = map[string]bool{
	"heic": true, "heix": true, "heim": true, "heis": true,
	"hevc": true, "hevx": true, "hevm": true, "hevs": true,
	"mif1": true, "msf1": true,
}

// Sniff detects the format of raw image bytes from their magic numbers.
// URL path extensions are deliberately ignored; only content counts.
func Sniff(data []byte) (Format, error) {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return JPEG, nil
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return PNG, nil
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return GIF, nil
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return WebP, nil
	case bytes.HasPrefix(data, []byte("BM")):
		return BMP, nil
	case bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*")):
		return TIFF, nil
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")):
		brand := string(data[8:12])
		if brand == "avif" || brand == "avis" {
			return AVIF, nil
		}
		if heifBrands[brand] {
			return HEIF, nil
		}
	}
	return "", fmt.Errorf("%w: unrecognized image data", imgerr.ErrUnsupportedFormat)
}
