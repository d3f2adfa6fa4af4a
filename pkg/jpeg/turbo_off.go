//go:build !(cgo && turbo)

package jpeg

import (
	"bytes"
	"image"
	"image/jpeg"
)

// Accelerated reports whether libjpeg-turbo is linked in.
const Accelerated = false

func encodeYCbCr(img *image.YCbCr, quality int) ([]byte, error) {
	var buf bytes.Buffer
	err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	return buf.Bytes(), err
}
