package codec

import (
	"image"
	"image/color"
	"io"
	"sync"
)

type capability struct {
	once      sync.Once
	supported bool
}

var capabilities = map[Format]*capability{
	JPEG: {},
	PNG:  {},
	WebP: {},
	AVIF: {},
}

// Supported reports whether f can be encoded by this build. The first
// call per format encodes a 1x1 image; the answer is cached.
func Supported(f Format) bool {
	c, ok := capabilities[f]
	if !ok {
		return false
	}
	c.once.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, 1, 1))
		img.Set(0, 0, color.RGBA{R: 128, G: 128, B: 128, A: 255})
		c.supported = probeEncode(img, f)
	})
	return c.supported
}

func probeEncode(img image.Image, f Format) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return Encode(io.Discard, img, f, 0.5) == nil
}

// Negotiate returns requested when it is supported and fallback otherwise.
// The second result reports whether the fallback was taken.
func Negotiate(requested, fallback Format) (Format, bool) {
	if Supported(requested) {
		return requested, false
	}
	return fallback, true
}
