package render

import (
	"bytes"
	"image"

	"github.com/adrium/goheif"
	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/harliandi/sizefit/internal/codec"
)

// Orientation reads the EXIF orientation tag from encoded data. It
// returns 1 (upright) when there is no readable tag. HEIF containers
// keep EXIF in a separate item, which is extracted first.
func Orientation(data []byte) (o int) {
	defer func() {
		if recover() != nil {
			o = 1
		}
	}()

	raw := data
	if kind, _ := codec.Detect(data); kind == codec.KindHEIF {
		heifExif, err := goheif.ExtractExif(bytes.NewReader(data))
		if err != nil || len(heifExif) == 0 {
			return 1
		}
		raw = heifExif
	}

	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err = tag.Int(0)
	if err != nil || o < 1 || o > 8 {
		return 1
	}
	return o
}

// Orient rotates and flips img upright according to data's EXIF tag.
// Output is always re-encoded from pixels, so no metadata carries over.
func Orient(img image.Image, data []byte) image.Image {
	return Transform(img, Orientation(data))
}

// Transform applies the flip/rotation for EXIF orientation 1-8.
func Transform(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}
