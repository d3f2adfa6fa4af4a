// Package codec detects, decodes and encodes the image formats sizefit
// reads and writes.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDecode is returned when the input cannot be decoded as an image.
	ErrDecode = errors.New("cannot decode image")
	// ErrUnsupportedFormat is returned for formats this build cannot encode.
	ErrUnsupportedFormat = errors.New("unsupported output format")
)

// Format is an output format.
type Format int

const (
	JPEG Format = iota
	PNG
	WebP
	AVIF
)

// Formats lists every output format in preference order.
var Formats = []Format{JPEG, PNG, WebP, AVIF}

// ParseFormat maps a name or file extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "jpeg", "jpg":
		return JPEG, nil
	case "png":
		return PNG, nil
	case "webp":
		return WebP, nil
	case "avif":
		return AVIF, nil
	}
	return JPEG, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

func (f Format) String() string {
	switch f {
	case JPEG:
		return "jpeg"
	case PNG:
		return "png"
	case WebP:
		return "webp"
	case AVIF:
		return "avif"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// Lossy reports whether the format has a quality parameter.
func (f Format) Lossy() bool {
	return f != PNG
}

// MIME returns the media type written in Content-Type.
func (f Format) MIME() string {
	switch f {
	case PNG:
		return "image/png"
	case WebP:
		return "image/webp"
	case AVIF:
		return "image/avif"
	}
	return "image/jpeg"
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string {
	if f == JPEG {
		return ".jpg"
	}
	return "." + f.String()
}
