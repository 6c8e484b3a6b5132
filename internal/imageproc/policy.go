package imageproc

import (
	"fmt"

	"github.com/resizr/resizr/internal/imgerr"
)

// Default policy knobs, matching the service's historical behavior.
const (
	DefaultQuality    = 94
	DefaultQualityMin = 800
)

// Policy decides the output encoding for a resize request: which format to
// emit and whether to apply explicit quality control.
type Policy struct {
	// Quality is the encoder quality used when quality control applies.
	Quality int

	// QualityAboveWidth gates quality control: it is applied only when the
	// requested width exceeds this value. Small thumbnails ship with
	// default encoder settings.
	QualityAboveWidth int
}

// DefaultPolicy returns the production defaults (quality 94 above 800px).
func DefaultPolicy() Policy {
	return Policy{Quality: DefaultQuality, QualityAboveWidth: DefaultQualityMin}
}

// qualityFormats are the output formats whose encoders take an explicit
// quality setting.
var qualityFormats = map[Format]bool{
	JPEG: true,
	PNG:  true,
	WebP: true,
	AVIF: true,
}

// CheckSource rejects source images the pipeline cannot process.
// HEIF/AVIF sources above 8 bits per sample (or with no readable bit
// depth) are unsupported; everything else passes.
func (p Policy) CheckSource(src Format, data []byte) error {
	if src != HEIF && src != AVIF {
		return nil
	}
	depth, ok := bitsPerSample(data)
	if !ok || depth > 8 {
		return fmt.Errorf("%w: only HEIF/AVIF images up to 8-bit are supported", imgerr.ErrUnsupportedFormat)
	}
	return nil
}

// Output resolves the encode format: the requested format when given,
// otherwise the source format. HEIF is normalized to AVIF on output since
// no HEIF encoder is available.
func (p Policy) Output(requested, source Format) Format {
	out := source
	if requested != "" {
		out = requested
	}
	if out == HEIF {
		out = AVIF
	}
	return out
}

// ApplyQuality reports whether the explicit quality setting is used for
// this output format and requested width.
func (p Policy) ApplyQuality(out Format, width int) bool {
	return width > p.QualityAboveWidth && qualityFormats[out]
}
