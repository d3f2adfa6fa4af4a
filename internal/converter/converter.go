// Package converter runs the resize pipeline: decode, orient, lay out,
// then search for the scale and quality that meet a byte target.
package converter

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/harliandi/sizefit/internal/codec"
	"github.com/harliandi/sizefit/internal/render"
	"github.com/harliandi/sizefit/pkg/jpeg"
	"github.com/harliandi/sizefit/pkg/metrics"
	"github.com/harliandi/sizefit/pkg/palette"
	"github.com/harliandi/sizefit/pkg/search"
)

// ErrInvalidTarget is returned when a request has no positive target size.
var ErrInvalidTarget = errors.New("target size must be positive")

// Search strategies, reported in Output and in metrics.
const (
	StrategyQualityScale = "quality_scale"
	StrategyScale        = "scale"
	StrategyFixedQuality = "fixed_quality"
)

// Options configures a Converter.
type Options struct {
	Format            codec.Format
	MaxFileSize       int
	MinScale          float64
	MinQuality        float64
	MaxQuality        float64
	ScaleIterations   int
	QualityIterations int
	// PaletteColors enables palette refinement for PNG; 0 disables it.
	PaletteColors int
	Kernel        draw.Interpolator
	Logger        *zap.Logger
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Format:            codec.JPEG,
		MaxFileSize:       DefaultMaxFileSize,
		MinScale:          0.05,
		MinQuality:        0.3,
		MaxQuality:        0.95,
		ScaleIterations:   10,
		QualityIterations: 6,
		PaletteColors:     palette.DefaultColors,
		Kernel:            draw.CatmullRom,
	}
}

// Converter resizes images to a byte target. It is safe for concurrent
// use; every call owns its own render surface.
type Converter struct {
	opts    Options
	palette palette.Encoder
	logger  *zap.Logger
}

// New creates a Converter.
func New(opts Options) *Converter {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{
		opts:    opts,
		palette: palette.New(opts.PaletteColors),
		logger:  logger,
	}
}

// Request describes one resize.
type Request struct {
	TargetBytes    int
	ToleranceBytes int
	// Format names the output format; empty uses the converter default.
	Format string
	Layout render.Layout
	// Quality in (0,1] fixes the quality and searches scale only.
	Quality  float64
	Observer search.Observer
}

// Output is a finished resize.
type Output struct {
	Data   []byte
	Format codec.Format
	// FellBack is set when the requested format was unavailable.
	FellBack        bool
	Width           int
	Height          int
	Scale           float64
	Quality         float64
	Probes          int
	WithinTolerance bool
	Floor           bool
	Strategy        string
}

// Size returns the encoded size in bytes.
func (o *Output) Size() int {
	return len(o.Data)
}

// Outcome classifies the result for metrics and logs.
func (o *Output) Outcome() string {
	switch {
	case o.Floor:
		return "floor"
	case o.WithinTolerance:
		return "within_tolerance"
	}
	return "under_target"
}

func (c *Converter) format(name string) (codec.Format, bool, error) {
	f := c.opts.Format
	if name != "" {
		var err error
		if f, err = codec.ParseFormat(name); err != nil {
			return f, false, err
		}
	}
	f, fellBack := codec.Negotiate(f, codec.JPEG)
	return f, fellBack, nil
}

// Resize decodes data and searches for the encode that best meets req.
// A target that cannot be reached is not an error: the floor result is
// returned with Output.Floor set.
func (c *Converter) Resize(ctx context.Context, data []byte, req Request) (*Output, error) {
	start := time.Now()

	if req.TargetBytes <= 0 {
		return nil, ErrInvalidTarget
	}
	if req.ToleranceBytes < 0 {
		req.ToleranceBytes = 0
	}
	format, fellBack, err := c.format(req.Format)
	if err != nil {
		return nil, err
	}
	if fellBack {
		c.logger.Warn("output format unavailable, falling back",
			zap.String("requested", req.Format), zap.Stringer("format", format))
	}

	img, err := c.prepare(data, req.Layout)
	if err != nil {
		metrics.RecordResizeError(format.String())
		return nil, err
	}

	target := search.Target{Bytes: req.TargetBytes, Tolerance: req.ToleranceBytes}
	res, strategy, err := c.search(ctx, img, format, target, c.originalSize(data, img), req)
	if ctxErr := ctx.Err(); ctxErr != nil {
		metrics.RecordResizeError(format.String())
		return nil, ctxErr
	}
	if err != nil {
		metrics.RecordResizeError(format.String())
		return nil, err
	}

	w, h := render.Dimensions(img.Bounds(), res.Scale)
	out := &Output{
		Data:            res.Probe.Data,
		Format:          format,
		FellBack:        fellBack,
		Width:           w,
		Height:          h,
		Scale:           res.Scale,
		Quality:         res.Quality,
		Probes:          res.Probes,
		WithinTolerance: res.WithinTolerance,
		Floor:           res.Floor,
		Strategy:        strategy,
	}

	elapsed := time.Since(start)
	metrics.RecordResize(format.String(), out.Outcome(), strategy, elapsed.Seconds(), len(data), out.Size(), out.Probes)
	c.logger.Debug("resize finished",
		zap.Stringer("format", format),
		zap.String("strategy", strategy),
		zap.String("outcome", out.Outcome()),
		zap.Int("input_bytes", len(data)),
		zap.Int("output_bytes", out.Size()),
		zap.Int("target_bytes", target.Bytes),
		zap.Float64("scale", out.Scale),
		zap.Float64("quality", out.Quality),
		zap.Int("probes", out.Probes),
		zap.Duration("elapsed", elapsed),
	)
	return out, nil
}

// prepare decodes, validates, orients and lays out the source image.
func (c *Converter) prepare(data []byte, layout render.Layout) (image.Image, error) {
	if err := ValidateFile(data, c.opts.MaxFileSize); err != nil {
		return nil, err
	}
	if err := PrecheckDimensions(data); err != nil {
		return nil, err
	}

	img, err := codec.Decode(data)
	if err != nil {
		return nil, err
	}
	if err := ValidateImage(img); err != nil {
		return nil, err
	}

	img = render.Orient(img, data)
	return layout.Apply(img)
}

// originalSize estimates what the laid-out image would encode to at full
// scale, from the input size and the change in pixel count.
func (c *Converter) originalSize(data []byte, img image.Image) int {
	w, h, ok := ImageInfo(data)
	if !ok || w*h == 0 {
		return len(data)
	}
	b := img.Bounds()
	ratio := float64(b.Dx()*b.Dy()) / float64(w*h)
	return int(float64(len(data)) * ratio)
}

func (c *Converter) search(ctx context.Context, img image.Image, format codec.Format, target search.Target, original int, req Request) (search.Result, string, error) {
	surface := render.NewSurface(c.opts.Kernel)
	observer := c.observer(req.Observer)
	hint := target.Ceiling()

	if format.Lossy() && req.Quality <= 0 {
		enc := func(ctx context.Context, scale, quality float64) (search.Probe, error) {
			if err := ctx.Err(); err != nil {
				return search.Probe{}, err
			}
			data, err := codec.EncodeBytes(frame(surface, img, format, scale), format, quality, hint)
			return search.Probe{Data: data}, err
		}
		res, err := search.QualityScale(ctx, enc, search.QualityScaleOptions{
			Target:            target,
			Quality:           search.Bounds{Min: c.opts.MinQuality, Max: c.opts.MaxQuality},
			Scale:             search.Bounds{Min: c.opts.MinScale, Max: 1},
			QualityIterations: c.opts.QualityIterations,
			ScaleIterations:   c.opts.ScaleIterations,
			OriginalSize:      original,
			Observer:          observer,
		})
		return res, StrategyQualityScale, err
	}

	quality, strategy := req.Quality, StrategyFixedQuality
	if !format.Lossy() {
		quality, strategy = 0, StrategyScale
	}
	enc := func(ctx context.Context, scale float64) (search.Probe, error) {
		if err := ctx.Err(); err != nil {
			return search.Probe{}, err
		}
		data, err := codec.EncodeBytes(frame(surface, img, format, scale), format, quality, hint)
		return search.Probe{Data: data}, err
	}
	opts := search.ScaleOptions{
		Target:        target,
		MinScale:      c.opts.MinScale,
		MaxIterations: c.opts.ScaleIterations,
		OriginalSize:  original,
		Observer:      observer,
	}
	res, err := search.Scale(ctx, enc, opts)
	if err != nil {
		return res, strategy, err
	}

	if format == codec.PNG && c.palette != nil {
		res = search.Refine(ctx, c.paletteEncoder(surface, img, hint), opts, res)
	}
	res.Quality = quality
	return res, strategy, nil
}

// frame renders img for one probe. JPEG probes are rendered as 4:2:0 YCbCr
// when libjpeg-turbo is linked in so they take the accelerated encoder.
func frame(surface *render.Surface, img image.Image, format codec.Format, scale float64) image.Image {
	if format == codec.JPEG && jpeg.Accelerated {
		return surface.RenderYCbCr(img, scale)
	}
	return surface.RenderScale(img, scale)
}

func (c *Converter) paletteEncoder(surface *render.Surface, img image.Image, hint int) search.ScaleEncoder {
	return func(ctx context.Context, scale float64) (search.Probe, error) {
		if err := ctx.Err(); err != nil {
			return search.Probe{}, err
		}
		frame := surface.RenderScale(img, scale)
		data, err := codec.EncodeFunc(hint, func(w io.Writer) error {
			return c.palette.Encode(w, frame)
		})
		return search.Probe{Data: data}, err
	}
}

// observer logs every probe at debug level and forwards to next.
func (c *Converter) observer(next search.Observer) search.Observer {
	debug := c.logger.Core().Enabled(zap.DebugLevel)
	if !debug {
		return next
	}
	return func(e search.Event) {
		fields := []zap.Field{
			zap.String("phase", string(e.Phase)),
			zap.Float64("scale", e.Scale),
			zap.Float64("quality", e.Quality),
			zap.Int("size", e.Size),
			zap.Float64("low", e.Low),
			zap.Float64("high", e.High),
			zap.Bool("accepted", e.Accepted),
		}
		if e.Err != nil {
			fields = append(fields, zap.Error(e.Err))
		}
		c.logger.Debug("probe", fields...)
		if next != nil {
			next(e)
		}
	}
}

// String implements fmt.Stringer for log output.
func (o *Output) String() string {
	return fmt.Sprintf("%s %dx%d %dB scale=%.3f quality=%.2f probes=%d %s",
		o.Format, o.Width, o.Height, o.Size(), o.Scale, o.Quality, o.Probes, o.Outcome())
}
