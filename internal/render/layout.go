package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/oliamb/cutter"
)

// ErrInvalidLayout is returned for unknown modes or negative boxes.
var ErrInvalidLayout = errors.New("invalid layout")

// Mode selects how an image is placed into the layout box.
type Mode string

const (
	// ModeFit scales to fit inside the box, keeping the aspect ratio.
	ModeFit Mode = "fit"
	// ModeCrop fills the box and crops the overflow around the centre.
	ModeCrop Mode = "crop"
	// ModeLetterbox fits inside the box and pads the rest with Background.
	ModeLetterbox Mode = "letterbox"
	// ModeStretch scales to the box exactly.
	ModeStretch Mode = "stretch"
)

// ParseMode parses a mode name. Empty selects ModeFit.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeFit, nil
	case ModeFit, ModeCrop, ModeLetterbox, ModeStretch:
		return m, nil
	}
	return "", fmt.Errorf("%w: mode %q", ErrInvalidLayout, s)
}

// Layout is an optional bounding box. A zero Width or Height is derived
// from the aspect ratio; with both zero the image is left alone.
type Layout struct {
	Mode       Mode
	Width      int
	Height     int
	Background color.Color
}

// Validate checks the box and mode.
func (l Layout) Validate() error {
	if l.Width < 0 || l.Height < 0 {
		return fmt.Errorf("%w: box %dx%d", ErrInvalidLayout, l.Width, l.Height)
	}
	if l.Mode == "" {
		return nil
	}
	_, err := ParseMode(string(l.Mode))
	return err
}

// Empty reports whether the layout leaves images unchanged.
func (l Layout) Empty() bool {
	return l.Width == 0 && l.Height == 0
}

// Apply places img into the box. The result is the full-scale image the
// size search scales down from.
func (l Layout) Apply(img image.Image) (image.Image, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if l.Empty() {
		return img, nil
	}

	w, h := l.box(img.Bounds())
	switch l.Mode {
	case ModeStretch:
		return imaging.Resize(img, w, h, imaging.Lanczos), nil
	case ModeCrop:
		return crop(img, w, h)
	case ModeLetterbox:
		bg := l.Background
		if bg == nil {
			bg = color.White
		}
		return imaging.PasteCenter(imaging.New(w, h, bg), imaging.Fit(img, w, h, imaging.Lanczos)), nil
	default:
		return imaging.Fit(img, w, h, imaging.Lanczos), nil
	}
}

// box fills in a missing dimension from the source aspect ratio.
func (l Layout) box(src image.Rectangle) (int, int) {
	w, h := l.Width, l.Height
	sw, sh := src.Dx(), src.Dy()
	switch {
	case w == 0:
		w = max(1, sw*h/sh)
	case h == 0:
		h = max(1, sh*w/sw)
	}
	return w, h
}

// crop scales img to cover w x h and cuts the centred w x h window.
func crop(img image.Image, w, h int) (image.Image, error) {
	sw, sh := img.Bounds().Dx(), img.Bounds().Dy()
	cw, ch := w, sh*w/sw
	if ch < h {
		cw, ch = sw*h/sh, h
	}
	covered := imaging.Resize(img, max(cw, w), max(ch, h), imaging.Lanczos)

	return cutter.Crop(covered, cutter.Config{
		Width:  w,
		Height: h,
		Mode:   cutter.Centered,
	})
}
