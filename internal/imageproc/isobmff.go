package imageproc

import (
	"encoding/binary"
)

// bitsPerSample extracts the per-channel bit depth of a HEIF/AVIF container
// from its pixi (pixel information) item property: meta → iprp → ipco →
// pixi. Returns false if the property cannot be located, which callers
// treat the same as an unsupported depth.
//
// The walk is purely structural; no item references are resolved, so for
// multi-item files the first pixi box wins. That matches the primary item
// in every encoder output seen in practice.
func bitsPerSample(data []byte) (int, bool) {
	meta, ok := findBox(data, "meta")
	if !ok || len(meta) < 4 {
		return 0, false
	}
	// meta is a FullBox: 1 byte version + 3 bytes flags precede children.
	iprp, ok := findBox(meta[4:], "iprp")
	if !ok {
		return 0, false
	}
	ipco, ok := findBox(iprp, "ipco")
	if !ok {
		return 0, false
	}
	pixi, ok := findBox(ipco, "pixi")
	if !ok || len(pixi) < 6 {
		return 0, false
	}
	// pixi is a FullBox: version/flags, channel count, then one depth byte
	// per channel.
	channels := int(pixi[4])
	if channels == 0 || len(pixi) < 5+channels {
		return 0, false
	}
	depth := 0
	for _, b := range pixi[5 : 5+channels] {
		if int(b) > depth {
			depth = int(b)
		}
	}
	return depth, true
}

// findBox scans a sequence of ISOBMFF boxes for the first box of the given
// type and returns its payload.
func findBox(b []byte, typ string) ([]byte, bool) {
	for len(b) >= 8 {
		size := uint64(binary.BigEndian.Uint32(b[0:4]))
		name := string(b[4:8])
		header := uint64(8)
		switch size {
		case 0:
			// Box extends to end of data.
			size = uint64(len(b))
		case 1:
			if len(b) < 16 {
				return nil, false
			}
			size = binary.BigEndian.Uint64(b[8:16])
			header = 16
		}
		if size < header || size > uint64(len(b)) {
			return nil, false
		}
		if name == typ {
			return b[header:size], true
		}
		b = b[size:]
	}
	return nil, false
}
