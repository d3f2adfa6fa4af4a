package search

import (
	"context"
	"fmt"
)

// QualityScaleOptions configures QualityScale.
type QualityScaleOptions struct {
	Target            Target
	Quality           Bounds
	Scale             Bounds
	QualityIterations int
	ScaleIterations   int
	// OriginalSize is the source size in bytes, used for the initial guess.
	OriginalSize int
	Observer     Observer
}

// DefaultQualityScaleOptions returns options with the usual bounds for target.
func DefaultQualityScaleOptions(target Target) QualityScaleOptions {
	return QualityScaleOptions{
		Target:            target,
		Quality:           Bounds{Min: 0.3, Max: 0.95},
		Scale:             Bounds{Min: 0.05, Max: 1.0},
		QualityIterations: 6,
		ScaleIterations:   8,
	}
}

func (o QualityScaleOptions) normalized() QualityScaleOptions {
	if o.Quality.Min > o.Quality.Max {
		o.Quality.Min, o.Quality.Max = o.Quality.Max, o.Quality.Min
	}
	if o.Scale.Max <= 0 || o.Scale.Max > 1 {
		o.Scale.Max = 1.0
	}
	if o.Scale.Min <= 0 || o.Scale.Min > o.Scale.Max {
		o.Scale.Min = clamp(0.05, 0, o.Scale.Max)
	}
	if o.QualityIterations < 0 {
		o.QualityIterations = 0
	}
	if o.ScaleIterations < 0 {
		o.ScaleIterations = 0
	}
	return o
}

// QualityScale searches scale and quality together. At each scale the
// highest quality that fits under Target.Ceiling is searched for; the
// outer loop then looks for the largest scale where such a quality exists.
//
// A fit at full scale is returned even when it misses the tolerance band,
// since a full-resolution result is preferred over any downscaled one.
// When nothing fits, the probe at (Scale.Min, Quality.Min) is returned.
func QualityScale(ctx context.Context, enc QualityEncoder, opts QualityScaleOptions) (Result, error) {
	opts = opts.normalized()
	b := bracket{low: opts.Scale.Min, high: opts.Scale.Max}
	s := &nestedSearch{enc: enc, opts: opts, outer: &b}

	if r, ok := s.fitQuality(ctx, opts.Scale.Max); ok {
		return s.finish(r), nil
	}

	var best *Result

	try := func(scale float64) (Result, bool) {
		scale = opts.Scale.Clamp(scale)
		r, ok := s.fitQuality(ctx, scale)
		if !ok {
			b.lower(scale)
			return Result{}, false
		}
		if r.WithinTolerance {
			return r, true
		}
		best = &r
		b.raise(scale)
		return Result{}, false
	}

	guess := InitialScale(opts.Target.Bytes, opts.OriginalSize, opts.Scale.Min, opts.Scale.Max)
	if guess >= b.high {
		// full scale already failed
		guess = b.mid()
	}
	if r, done := try(guess); done {
		return s.finish(r), nil
	}
	for i := 0; i < opts.ScaleIterations && !b.converged(); i++ {
		if r, done := try(b.mid()); done {
			return s.finish(r), nil
		}
	}

	if best != nil {
		return s.finish(*best), nil
	}
	return s.floor(ctx)
}

// FitQuality searches quality alone at a fixed scale. ok is false when
// even the lowest quality overshoots Target.Ceiling.
func FitQuality(ctx context.Context, enc QualityEncoder, opts QualityScaleOptions, scale float64) (Result, bool) {
	opts = opts.normalized()
	scale = opts.Scale.Clamp(scale)
	s := &nestedSearch{enc: enc, opts: opts, outer: &bracket{low: scale, high: scale}}
	r, ok := s.fitQuality(ctx, scale)
	return s.finish(r), ok
}

type nestedSearch struct {
	enc    QualityEncoder
	opts   QualityScaleOptions
	outer  *bracket
	probes int
}

func (s *nestedSearch) finish(r Result) Result {
	r.Probes = s.probes
	return r
}

func (s *nestedSearch) probe(ctx context.Context, phase Phase, scale, quality float64, b bracket) (Probe, bool, error) {
	quality = s.opts.Quality.Clamp(quality)
	p, err := s.enc(ctx, scale, quality)
	err = checkOutput(p, err)
	s.probes++
	accepted := err == nil && s.opts.Target.Accepts(p.Size())
	s.opts.Observer.notify(Event{
		Phase: phase, Scale: scale, Quality: quality, Size: p.Size(),
		Low: b.low, High: b.high, ScaleLow: s.outer.low, ScaleHigh: s.outer.high,
		Accepted: accepted, Err: err,
	})
	return p, accepted, err
}

func (s *nestedSearch) fits(p Probe) bool {
	return p.Size() <= s.opts.Target.Ceiling()
}

func (s *nestedSearch) fitQuality(ctx context.Context, scale float64) (Result, bool) {
	q := s.opts.Quality
	b := bracket{low: q.Min, high: q.Max}

	p, accepted, err := s.probe(ctx, PhaseQuality, scale, q.Min, b)
	if err != nil || !s.fits(p) {
		return Result{}, false
	}
	best := Result{Probe: p, Scale: scale, Quality: q.Min, WithinTolerance: accepted}
	if accepted {
		return best, true
	}

	p, accepted, err = s.probe(ctx, PhaseQuality, scale, q.Max, b)
	if err == nil && s.fits(p) {
		return Result{Probe: p, Scale: scale, Quality: q.Max, WithinTolerance: accepted}, true
	}

	for i := 0; i < s.opts.QualityIterations && !b.converged(); i++ {
		mid := b.mid()
		p, accepted, err = s.probe(ctx, PhaseQuality, scale, mid, b)
		if err != nil || !s.fits(p) {
			b.lower(mid)
			continue
		}
		best = Result{Probe: p, Scale: scale, Quality: mid, WithinTolerance: accepted}
		if accepted {
			return best, true
		}
		b.raise(mid)
	}
	return best, true
}

func (s *nestedSearch) floor(ctx context.Context) (Result, error) {
	scale, quality := s.opts.Scale.Min, s.opts.Quality.Min
	s.outer = &bracket{low: scale, high: scale}
	p, accepted, err := s.probe(ctx, PhaseFloor, scale, quality, bracket{low: scale, high: scale})
	if err != nil {
		return Result{Probes: s.probes}, fmt.Errorf("%w: floor probe at scale %.3f quality %.2f: %v", ErrNoOutput, scale, quality, err)
	}
	return Result{
		Probe:           p,
		Scale:           scale,
		Quality:         quality,
		Probes:          s.probes,
		WithinTolerance: accepted,
		Floor:           true,
	}, nil
}
