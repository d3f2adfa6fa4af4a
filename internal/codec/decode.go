package codec

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"github.com/adrium/goheif"
	webp "github.com/chai2010/webp"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/avif"
)

// Input kinds returned by Detect that are decodable but not output formats.
const (
	KindHEIF    = "heif"
	KindGIF     = "gif"
	KindUnknown = "unknown"
)

// Detect sniffs data and returns the input kind with its media type.
func Detect(data []byte) (kind, mime string) {
	m := mimetype.Detect(data)
	mime = m.String()
	switch {
	case m.Is("image/jpeg"):
		return JPEG.String(), mime
	case m.Is("image/png"):
		return PNG.String(), mime
	case m.Is("image/webp"):
		return WebP.String(), mime
	case m.Is("image/avif"):
		return AVIF.String(), mime
	case m.Is("image/heic"), m.Is("image/heif"), m.Is("image/heic-sequence"), m.Is("image/heif-sequence"):
		return KindHEIF, mime
	case m.Is("image/gif"):
		return KindGIF, mime
	}
	return KindUnknown, mime
}

// Decode decodes any supported input. Every failure wraps ErrDecode.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	kind, mime := Detect(data)
	r := bytes.NewReader(data)

	var (
		img image.Image
		err error
	)
	switch kind {
	case KindHEIF:
		img, err = goheif.Decode(r)
	case "webp":
		img, err = webp.Decode(r)
	case "avif":
		img, err = avif.Decode(r)
	case "jpeg":
		img, err = jpeg.Decode(r)
	case "png":
		img, err = png.Decode(r)
	case KindGIF:
		img, _, err = image.Decode(r)
	default:
		return nil, fmt.Errorf("%w: unrecognised content %s", ErrDecode, mime)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, kind, err)
	}
	if img == nil {
		return nil, fmt.Errorf("%w: %s: no image", ErrDecode, kind)
	}
	return img, nil
}
