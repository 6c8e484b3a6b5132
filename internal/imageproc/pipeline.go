package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder

	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
	_ "github.com/gen2brain/heic" // register HEIF/HEIC decoder
	_ "golang.org/x/image/bmp"    // register BMP decoder
	_ "golang.org/x/image/tiff"   // register TIFF decoder

	"github.com/resizr/resizr/internal/imgerr"
)

// Pipeline decodes, resizes and re-encodes image bytes. It is stateless
// and safe for concurrent use; CPU budgeting is the caller's concern.
type Pipeline struct {
	Policy Policy
}

// Meta sniffs the format and reads the pixel dimensions of an image
// without fully decoding it.
func (p Pipeline) Meta(data []byte) (Format, int, int, error) {
	format, err := Sniff(data)
	if err != nil {
		return "", 0, 0, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: %v", imgerr.ErrUnsupportedFormat, err)
	}
	return format, cfg.Width, cfg.Height, nil
}

// Transform decodes data, resizes it to exactly width×height (fill, not
// aspect-preserving) and encodes it as out. When applyQuality is set the
// policy's quality level is passed to the encoder; otherwise encoder
// defaults are used.
func (p Pipeline) Transform(data []byte, width, height int, out Format, applyQuality bool) ([]byte, error) {
	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", imgerr.ErrUnsupportedFormat, err)
	}
	if _, ok := ParseExt(name); !ok {
		return nil, fmt.Errorf("%w: decoder reported %q", imgerr.ErrUnsupportedFormat, name)
	}

	resized := imaging.Resize(img, width, height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := p.encode(&buf, resized, out, applyQuality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p Pipeline) encode(buf *bytes.Buffer, img image.Image, out Format, applyQuality bool) error {
	switch out {
	case JPEG:
		if applyQuality {
			return imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(p.Policy.Quality))
		}
		return imaging.Encode(buf, img, imaging.JPEG)
	case PNG:
		if applyQuality {
			// PNG has no quality knob; the closest analogue to bounding
			// file size on large outputs is best compression.
			return imaging.Encode(buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
		}
		return imaging.Encode(buf, img, imaging.PNG)
	case GIF:
		return imaging.Encode(buf, img, imaging.GIF)
	case BMP:
		return imaging.Encode(buf, img, imaging.BMP)
	case TIFF:
		return imaging.Encode(buf, img, imaging.TIFF)
	case WebP:
		if applyQuality {
			return webp.Encode(buf, img, webp.Options{Quality: p.Policy.Quality})
		}
		return webp.Encode(buf, img)
	case AVIF:
		if applyQuality {
			return avif.Encode(buf, img, avif.Options{
				Quality:      p.Policy.Quality,
				QualityAlpha: p.Policy.Quality,
				Speed:        avif.DefaultSpeed,
			})
		}
		return avif.Encode(buf, img)
	}
	return fmt.Errorf("%w: no encoder for %q", imgerr.ErrUnsupportedFormat, out)
}
