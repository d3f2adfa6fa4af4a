package converter

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/harliandi/sizefit/internal/codec"
)

var (
	// ErrFileTooLarge is returned when the file exceeds the size limit
	ErrFileTooLarge = errors.New("file size exceeds limit")
	// ErrInvalidImageDimensions is returned when image dimensions are invalid
	ErrInvalidImageDimensions = errors.New("invalid image dimensions")
	// ErrImageTooLarge is returned when image dimensions exceed limits
	ErrImageTooLarge = errors.New("image dimensions exceed maximum allowed")
)

// Validation limits
const (
	DefaultMaxFileSize = 20 * 1024 * 1024 // 20MB max file size
	MaxImageWidth      = 20000            // 20K pixels max width
	MaxImageHeight     = 20000            // 20K pixels max height
	MaxImagePixels     = 250_000_000      // 250 megapixels max total pixels
)

// ValidateFile checks the file size before anything is decoded.
func ValidateFile(data []byte, maxSize int) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if len(data) > maxSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, len(data), maxSize)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty input", codec.ErrDecode)
	}
	return nil
}

// ValidateDimensions checks width and height against the limits.
func ValidateDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidImageDimensions, width, height)
	}
	if width > MaxImageWidth || height > MaxImageHeight {
		return fmt.Errorf("%w: %dx%d (max %dx%d)", ErrImageTooLarge, width, height, MaxImageWidth, MaxImageHeight)
	}

	// Check total pixel count (prevent decompression bomb attacks)
	if pixels := int64(width) * int64(height); pixels > MaxImagePixels {
		return fmt.Errorf("%w: %d pixels (max %d)", ErrImageTooLarge, pixels, MaxImagePixels)
	}
	return nil
}

// ValidateImage checks decoded image dimensions are within acceptable limits
func ValidateImage(img image.Image) error {
	if img == nil {
		return fmt.Errorf("%w: no image", codec.ErrDecode)
	}
	b := img.Bounds()
	return ValidateDimensions(b.Dx(), b.Dy())
}

// ImageInfo reads the dimensions from the header without decoding pixels.
// ok is false when no registered decoder understands the header.
func ImageInfo(data []byte) (width, height int, ok bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

// PrecheckDimensions rejects decompression bombs from the header alone.
// Headers nothing can parse are let through to the full decoder.
func PrecheckDimensions(data []byte) error {
	w, h, ok := ImageInfo(data)
	if !ok {
		return nil
	}
	return ValidateDimensions(w, h)
}
