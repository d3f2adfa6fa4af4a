// Package jpeg encodes JPEG probes. Built with the turbo tag (and cgo) it
// hands 4:2:0 YCbCr images to libjpeg-turbo, which is several times faster
// than image/jpeg; everything else goes through the standard encoder.
package jpeg

import (
	"image"
	"image/color"
	"image/jpeg"
	"io"
)

const (
	// MinQuality is the minimum quality
	MinQuality = 1
	// MaxQuality is the maximum quality
	MaxQuality = 100
)

// ClampQuality limits q to [MinQuality, MaxQuality].
func ClampQuality(q int) int {
	if q < MinQuality {
		return MinQuality
	}
	if q > MaxQuality {
		return MaxQuality
	}
	return q
}

// Encode writes img to w at quality q.
func Encode(w io.Writer, img image.Image, q int) error {
	q = ClampQuality(q)
	if ycc, ok := img.(*image.YCbCr); ok && Accelerated && ycc.SubsampleRatio == image.YCbCrSubsampleRatio420 {
		data, err := encodeYCbCr(ycc, q)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: q})
}

// ToYCbCr420 converts src to a 4:2:0 YCbCr image anchored at the origin,
// reusing the planes of dst when they are large enough. Chroma is the
// mean of each 2x2 block.
func ToYCbCr420(dst *image.YCbCr, src image.Image) *image.YCbCr {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst = reuseYCbCr(dst, w, h)
	rgba, _ := src.(*image.RGBA)

	for cy := 0; cy < (h+1)/2; cy++ {
		for cx := 0; cx < (w+1)/2; cx++ {
			var cb, cr, n int
			for y := 2 * cy; y < 2*cy+2 && y < h; y++ {
				for x := 2 * cx; x < 2*cx+2 && x < w; x++ {
					r, g, bl := rgbAt(src, rgba, b.Min.X+x, b.Min.Y+y)
					yy, u, v := color.RGBToYCbCr(r, g, bl)
					dst.Y[y*dst.YStride+x] = yy
					cb += int(u)
					cr += int(v)
					n++
				}
			}
			i := cy*dst.CStride + cx
			dst.Cb[i] = uint8((cb + n/2) / n)
			dst.Cr[i] = uint8((cr + n/2) / n)
		}
	}
	return dst
}

func reuseYCbCr(dst *image.YCbCr, w, h int) *image.YCbCr {
	cw, ch := (w+1)/2, (h+1)/2
	if dst == nil || cap(dst.Y) < w*h || cap(dst.Cb) < cw*ch || cap(dst.Cr) < cw*ch {
		return image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
	}
	return &image.YCbCr{
		Y:              dst.Y[:w*h],
		Cb:             dst.Cb[:cw*ch],
		Cr:             dst.Cr[:cw*ch],
		YStride:        w,
		CStride:        cw,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, w, h),
	}
}

func rgbAt(src image.Image, rgba *image.RGBA, x, y int) (uint8, uint8, uint8) {
	if rgba != nil {
		i := rgba.PixOffset(x, y)
		return rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2]
	}
	r, g, b, _ := src.At(x, y).RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}
