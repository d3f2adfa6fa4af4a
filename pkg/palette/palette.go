// Package palette encodes images as indexed PNGs with a reduced palette.
// It is the optional lossless refinement path: callers treat a nil
// Encoder as "no palette support" and skip it.
package palette

import (
	"errors"
	"image"
	"image/draw"
	"image/png"
	"io"

	"github.com/soniakeys/quant/median"
)

// DefaultColors is the palette size used when none is configured.
const DefaultColors = 256

var errNilImage = errors.New("nil image")

// Encoder writes img as a palette-reduced encoding.
type Encoder interface {
	Encode(w io.Writer, img image.Image) error
}

// MedianCut quantizes with the median cut algorithm and writes an
// indexed PNG at best compression.
type MedianCut struct {
	Colors int
}

// New returns a MedianCut encoder, or nil when colors is zero or negative
// so callers can pass the result straight through as an absent encoder.
func New(colors int) Encoder {
	if colors <= 0 {
		return nil
	}
	if colors > 256 {
		colors = 256
	}
	return MedianCut{Colors: colors}
}

// Encode implements Encoder.
func (m MedianCut) Encode(w io.Writer, img image.Image) error {
	if img == nil {
		return errNilImage
	}
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	return enc.Encode(w, m.Quantize(img))
}

// Quantize maps img onto an adaptive palette of at most m.Colors entries.
// Paletted input that already fits is returned as is.
func (m MedianCut) Quantize(img image.Image) *image.Paletted {
	colors := m.Colors
	if colors <= 0 || colors > 256 {
		colors = DefaultColors
	}
	if p, ok := img.(*image.Paletted); ok && len(p.Palette) <= colors {
		return p
	}

	paletted := median.Quantizer(colors).Paletted(img)
	draw.Draw(paletted, img.Bounds(), img, img.Bounds().Min, draw.Src)
	return paletted
}
