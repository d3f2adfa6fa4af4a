// Package search converges on encode parameters whose output size lands
// near a byte target. The encoder is a black box: the searches only see
// the size of each probe and assume size grows with scale and quality.
// Encoders whose size is not monotone in those parameters can make the
// bracket discard a better solution outside it; that is a known limitation.
package search

import (
	"context"
	"errors"
	"math"
)

// ErrNoOutput marks an encode that returned no bytes. Search returns it
// wrapped when even the floor probe produced no output.
var ErrNoOutput = errors.New("encoder produced no output")

// convergence is the bracket width below which bisection stops.
const convergence = 1e-3

// Target is the desired encoded size and the accepted deviation from it.
type Target struct {
	Bytes     int
	Tolerance int
}

// Accepts reports whether size lies in [Bytes-Tolerance, Bytes+Tolerance].
func (t Target) Accepts(size int) bool {
	return size >= t.Bytes-t.Tolerance && size <= t.Bytes+t.Tolerance
}

// Ceiling is the largest size still inside the tolerance band.
func (t Target) Ceiling() int {
	return t.Bytes + t.Tolerance
}

// Bounds is a closed interval a search parameter is clamped into.
type Bounds struct {
	Min float64
	Max float64
}

// Clamp limits v to [b.Min, b.Max].
func (b Bounds) Clamp(v float64) float64 {
	return clamp(v, b.Min, b.Max)
}

// Mid returns the midpoint of the interval.
func (b Bounds) Mid() float64 {
	return (b.Min + b.Max) / 2
}

// Probe is one encode result. Probes are never modified after creation.
type Probe struct {
	Data []byte
}

// Size returns the encoded length in bytes.
func (p Probe) Size() int {
	return len(p.Data)
}

// Result is what a search returns: the chosen probe and the parameters
// that produced it.
type Result struct {
	Probe   Probe
	Scale   float64
	Quality float64
	// Probes counts encode calls made during the search.
	Probes int
	// WithinTolerance is set when the returned probe is inside the band.
	WithinTolerance bool
	// Floor is set when nothing fit and the floor parameters were forced.
	Floor bool
}

// Size returns the size of the chosen probe.
func (r Result) Size() int {
	return r.Probe.Size()
}

// ScaleEncoder renders and encodes at the given linear scale.
type ScaleEncoder func(ctx context.Context, scale float64) (Probe, error)

// QualityEncoder renders at scale and encodes at quality.
type QualityEncoder func(ctx context.Context, scale, quality float64) (Probe, error)

// Phase names the stage of a search an Event belongs to.
type Phase string

const (
	PhaseScale   Phase = "scale"
	PhaseRefine  Phase = "refine"
	PhaseQuality Phase = "quality"
	PhaseFloor   Phase = "floor"
)

// Event describes a single probe. Low and High are the bracket of the
// parameter being searched at the time of the probe. ScaleLow and
// ScaleHigh are the scale bracket, which in the quality phase is the
// outer bracket of QualityScale.
type Event struct {
	Phase     Phase
	Scale     float64
	Quality   float64
	Size      int
	Low       float64
	High      float64
	ScaleLow  float64
	ScaleHigh float64
	Accepted  bool
	Err       error
}

// Observer is called after every probe.
type Observer func(Event)

func (o Observer) notify(e Event) {
	if o != nil {
		o(e)
	}
}

// checkOutput reports an encode that returned no bytes as ErrNoOutput.
func checkOutput(p Probe, err error) error {
	if err == nil && p.Size() == 0 {
		return ErrNoOutput
	}
	return err
}

// InitialScale guesses the scale whose output lands on target, assuming
// encoded size grows with pixel count (quadratic in linear scale).
// A non-positive original size yields max.
func InitialScale(targetBytes, originalBytes int, min, max float64) float64 {
	if originalBytes <= 0 || targetBytes <= 0 {
		return clamp(max, min, max)
	}
	return clamp(math.Sqrt(float64(targetBytes)/float64(originalBytes)), min, max)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// bracket is the [low, high] interval a bisection narrows. low only
// grows and high only shrinks.
type bracket struct {
	low, high float64
}

func (b *bracket) mid() float64 {
	return (b.low + b.high) / 2
}

func (b *bracket) converged() bool {
	return b.high-b.low <= convergence
}

func (b *bracket) raise(v float64) {
	if v > b.low {
		b.low = v
	}
}

func (b *bracket) lower(v float64) {
	if v < b.high {
		b.high = v
	}
}
