package codec

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"math"

	webp "github.com/chai2010/webp"
	"github.com/gen2brain/avif"

	"github.com/harliandi/sizefit/pkg/jpeg"
)

// AVIFSpeed trades encode time for size; 0 is slowest, 10 fastest.
// Size searches run many probes, so it leans fast.
var AVIFSpeed = 8

// Encode writes img to w in format f. quality is in [0,1] and is mapped
// to the encoder's native scale; PNG ignores it.
func Encode(w io.Writer, img image.Image, f Format, quality float64) error {
	if img == nil {
		return fmt.Errorf("encode %s: nil image", f)
	}
	q := nativeQuality(quality)

	switch f {
	case JPEG:
		return jpeg.Encode(w, img, q)
	case PNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		return enc.Encode(w, img)
	case WebP:
		return webp.Encode(w, img, &webp.Options{Quality: float32(q)})
	case AVIF:
		return avif.Encode(w, img, avif.Options{Quality: q, QualityAlpha: q, Speed: AVIFSpeed})
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
}

// EncodeBytes encodes into a pooled buffer and returns a private copy of
// the output. sizeHint selects the buffer tier.
func EncodeBytes(img image.Image, f Format, quality float64, sizeHint int) ([]byte, error) {
	return EncodeFunc(sizeHint, func(w io.Writer) error {
		return Encode(w, img, f, quality)
	})
}

// EncodeFunc runs fn against a pooled buffer and returns a copy of what
// it wrote. It lets encoders outside this package share the pool.
func EncodeFunc(sizeHint int, fn func(w io.Writer) error) ([]byte, error) {
	buf := defaultBuffers.Get(sizeHint)
	defer defaultBuffers.Put(buf)

	if err := fn(buf); err != nil {
		return nil, err
	}
	return copyOut(buf), nil
}

// nativeQuality maps [0,1] onto the 1..100 scale the encoders share.
func nativeQuality(q float64) int {
	n := int(math.Round(q * 100))
	if n < 1 {
		return 1
	}
	if n > 100 {
		return 100
	}
	return n
}
