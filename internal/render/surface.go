// Package render turns a decoded image into the pixels a probe encodes:
// orientation, layout into a bounding box, and resampling to a scale.
package render

import (
	"fmt"
	"image"
	"math"
	"strings"

	"golang.org/x/image/draw"

	"github.com/harliandi/sizefit/pkg/jpeg"
)

// Kernel names accepted by ParseKernel.
const (
	KernelCatmullRom = "catmullrom"
	KernelBilinear   = "bilinear"
	KernelNearest    = "nearest"
)

// ParseKernel maps a kernel name to an interpolator. Empty selects CatmullRom.
func ParseKernel(name string) (draw.Interpolator, error) {
	switch strings.ToLower(name) {
	case "", KernelCatmullRom:
		return draw.CatmullRom, nil
	case KernelBilinear:
		return draw.ApproxBiLinear, nil
	case KernelNearest:
		return draw.NearestNeighbor, nil
	}
	return nil, fmt.Errorf("unknown resampling kernel %q", name)
}

// Surface is a scratch RGBA buffer reused across the probes of one search.
// The image returned by Render is only valid until the next call; a
// Surface must not be shared between goroutines.
type Surface struct {
	kernel draw.Interpolator
	pix    []uint8
	ycc    *image.YCbCr
}

// NewSurface returns a surface resampling with k, or CatmullRom when k is nil.
func NewSurface(k draw.Interpolator) *Surface {
	if k == nil {
		k = draw.CatmullRom
	}
	return &Surface{kernel: k}
}

// Dimensions returns the size of src at linear scale, at least 1x1.
func Dimensions(src image.Rectangle, scale float64) (int, int) {
	w := int(math.Round(float64(src.Dx()) * scale))
	h := int(math.Round(float64(src.Dy()) * scale))
	return max(w, 1), max(h, 1)
}

// Render resamples src into a w x h image backed by the surface buffer.
func (s *Surface) Render(src image.Image, w, h int) *image.RGBA {
	w, h = max(w, 1), max(h, 1)
	n := 4 * w * h
	if cap(s.pix) < n {
		s.pix = make([]uint8, n)
	}
	dst := &image.RGBA{
		Pix:    s.pix[:n],
		Stride: 4 * w,
		Rect:   image.Rect(0, 0, w, h),
	}

	if src.Bounds().Dx() == w && src.Bounds().Dy() == h {
		draw.Draw(dst, dst.Rect, src, src.Bounds().Min, draw.Src)
		return dst
	}
	s.kernel.Scale(dst, dst.Rect, src, src.Bounds(), draw.Src, nil)
	return dst
}

// RenderScale renders src at the given linear scale.
func (s *Surface) RenderScale(src image.Image, scale float64) *image.RGBA {
	w, h := Dimensions(src.Bounds(), scale)
	return s.Render(src, w, h)
}

// RenderYCbCr renders src at scale as 4:2:0 YCbCr, the layout the
// accelerated JPEG encoder takes. Both planes and the RGBA buffer are reused.
func (s *Surface) RenderYCbCr(src image.Image, scale float64) *image.YCbCr {
	s.ycc = jpeg.ToYCbCr420(s.ycc, s.RenderScale(src, scale))
	return s.ycc
}
