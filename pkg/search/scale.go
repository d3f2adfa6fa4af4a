package search

import (
	"context"
	"fmt"
)

// ScaleOptions configures Scale and Refine.
type ScaleOptions struct {
	Target   Target
	MinScale float64
	// MaxIterations bounds the bisection rounds after the initial guess.
	MaxIterations int
	// OriginalSize is the source size in bytes, used for the initial guess.
	OriginalSize int
	Observer     Observer
}

// DefaultScaleOptions returns options with the usual bounds for target.
func DefaultScaleOptions(target Target) ScaleOptions {
	return ScaleOptions{
		Target:        target,
		MinScale:      0.05,
		MaxIterations: 10,
	}
}

func (o ScaleOptions) normalized() ScaleOptions {
	if o.MinScale <= 0 || o.MinScale > 1 {
		o.MinScale = 0.05
	}
	if o.MaxIterations < 0 {
		o.MaxIterations = 0
	}
	return o
}

// Scale finds the largest scale in [MinScale, 1] whose probe is no larger
// than the target, returning early on any probe inside the tolerance band.
// When no scale fits it returns the probe at MinScale unconditionally.
// Failed encodes count as oversized.
func Scale(ctx context.Context, enc ScaleEncoder, opts ScaleOptions) (Result, error) {
	opts = opts.normalized()
	s := scaleSearch{enc: enc, opts: opts, phase: PhaseScale}
	b := bracket{low: opts.MinScale, high: 1.0}

	guess := InitialScale(opts.Target.Bytes, opts.OriginalSize, opts.MinScale, 1.0)
	if r, done := s.step(ctx, &b, guess); done {
		return s.finish(r), nil
	}

	for i := 0; i < opts.MaxIterations && !b.converged(); i++ {
		if r, done := s.step(ctx, &b, b.mid()); done {
			return s.finish(r), nil
		}
	}

	if s.best != nil {
		return s.finish(*s.best), nil
	}
	return s.floor(ctx)
}

// Refine re-runs the scale bisection over [MinScale, prev.Scale] with
// another encoder, typically a palette-reducing one, looking for a tighter
// fit. prev is returned unchanged when it is already acceptable, is a
// floor result, or when enc is nil.
func Refine(ctx context.Context, enc ScaleEncoder, opts ScaleOptions, prev Result) Result {
	opts = opts.normalized()
	if enc == nil || prev.Floor || prev.WithinTolerance || prev.Size() > opts.Target.Bytes {
		return prev
	}

	s := scaleSearch{enc: enc, opts: opts, phase: PhaseRefine}
	b := bracket{low: opts.MinScale, high: prev.Scale}

	r, done := s.step(ctx, &b, prev.Scale)
	for i := 0; !done && i < opts.MaxIterations && !b.converged(); i++ {
		r, done = s.step(ctx, &b, b.mid())
	}
	probes := prev.Probes + s.probes
	if !done {
		if s.best == nil {
			prev.Probes = probes
			return prev
		}
		r = *s.best
	}

	if r.WithinTolerance || r.Size() > prev.Size() {
		r.Probes = probes
		return r
	}
	prev.Probes = probes
	return prev
}

type scaleSearch struct {
	enc    ScaleEncoder
	opts   ScaleOptions
	phase  Phase
	best   *Result
	probes int
}

func (s *scaleSearch) finish(r Result) Result {
	r.Probes = s.probes
	return r
}

// step probes at scale and updates the bracket. It reports done when the
// probe landed inside the tolerance band.
func (s *scaleSearch) step(ctx context.Context, b *bracket, scale float64) (Result, bool) {
	scale = clamp(scale, s.opts.MinScale, 1.0)
	p, err := s.enc(ctx, scale)
	err = checkOutput(p, err)
	s.probes++

	t := s.opts.Target
	accepted := err == nil && t.Accepts(p.Size())
	s.opts.Observer.notify(Event{
		Phase: s.phase, Scale: scale, Size: p.Size(),
		Low: b.low, High: b.high, ScaleLow: b.low, ScaleHigh: b.high,
		Accepted: accepted, Err: err,
	})

	if accepted {
		return Result{Probe: p, Scale: scale, WithinTolerance: true}, true
	}

	if err != nil || p.Size() > t.Bytes {
		b.lower(scale)
		return Result{}, false
	}

	s.best = &Result{Probe: p, Scale: scale}
	b.raise(scale)
	return Result{}, false
}

func (s *scaleSearch) floor(ctx context.Context) (Result, error) {
	scale := s.opts.MinScale
	p, err := s.enc(ctx, scale)
	err = checkOutput(p, err)
	s.probes++
	s.opts.Observer.notify(Event{
		Phase: PhaseFloor, Scale: scale, Size: p.Size(),
		Low: scale, High: scale, ScaleLow: scale, ScaleHigh: scale,
		Accepted: err == nil && s.opts.Target.Accepts(p.Size()), Err: err,
	})
	if err != nil {
		return Result{Probes: s.probes}, fmt.Errorf("%w: floor probe at scale %.3f: %v", ErrNoOutput, scale, err)
	}
	return Result{
		Probe:           p,
		Scale:           scale,
		Probes:          s.probes,
		WithinTolerance: s.opts.Target.Accepts(p.Size()),
		Floor:           true,
	}, nil
}
