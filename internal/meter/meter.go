// Package meter turns raw per-channel amplitudes into integer meter positions.
//
// Each refresh tick feeds one (left, right) amplitude pair into a rolling
// window per channel. The window mean is clamped to [0, 1], optionally passed
// through a soft-knee curve that lifts quiet signals, and mapped onto the
// meter scale.
package meter

import (
	"fmt"
	"math"
)

// Rounding selects how a scaled level is turned into a meter position.
type Rounding int

const (
	// RoundUp takes the ceiling, so any signal lights at least one segment.
	RoundUp Rounding = iota
	// RoundNearest rounds half away from zero.
	RoundNearest
)

const (
	DefaultWindow = 8
	DefaultKnee   = 0.1
	DefaultScale  = 10

	// ceilEpsilon absorbs float error so exact products like 0.7*10 do not
	// ceil to the next step.
	ceilEpsilon = 1e-9
)

// ParseRounding maps a config string to a Rounding policy.
func ParseRounding(s string) (Rounding, error) {
	switch s {
	case "", "up":
		return RoundUp, nil
	case "nearest":
		return RoundNearest, nil
	default:
		return RoundUp, fmt.Errorf("unknown rounding mode %q", s)
	}
}

func (r Rounding) String() string {
	switch r {
	case RoundNearest:
		return "nearest"
	default:
		return "up"
	}
}

// Options configures a Smoother. Zero values fall back to defaults.
type Options struct {
	Window   int
	Compress bool
	Knee     float64
	Scale    int
	Rounding Rounding
}

// Smoother holds the rolling windows for a stereo meter. It is not safe for
// concurrent use; the caller drives it from a single goroutine.
type Smoother struct {
	left, right *Window
	compress    bool
	knee        float64
	scale       int
	rounding    Rounding
}

func New(opts Options) *Smoother {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Knee <= 0 {
		opts.Knee = DefaultKnee
	}
	if opts.Scale <= 0 {
		opts.Scale = DefaultScale
	}
	return &Smoother{
		left:     NewWindow(opts.Window),
		right:    NewWindow(opts.Window),
		compress: opts.Compress,
		knee:     opts.Knee,
		scale:    opts.Scale,
		rounding: opts.Rounding,
	}
}

// Sample records one amplitude pair and returns the meter positions for both
// channels, each in [0, Scale].
func (s *Smoother) Sample(left, right float64) (int, int) {
	s.left.Push(sanitize(left))
	s.right.Push(sanitize(right))
	return s.position(s.left.Mean()), s.position(s.right.Mean())
}

// Reset clears both windows.
func (s *Smoother) Reset() {
	s.left.Reset()
	s.right.Reset()
}

// Scale returns the top meter position.
func (s *Smoother) Scale() int { return s.scale }

func (s *Smoother) position(mean float64) int {
	v := Clamp(mean)
	if s.compress {
		v = Compress(v, s.knee)
	}
	return ToScale(v, s.scale, s.rounding)
}

// Clamp limits v to [0, 1]. NaN maps to 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Compress applies y = (1+k)x / (k+x). For k > 0 it maps [0,1] onto [0,1],
// is monotonic, and boosts low levels.
func Compress(x, k float64) float64 {
	if x <= 0 {
		return 0
	}
	return (1 + k) * x / (k + x)
}

// ToScale maps v in [0, 1] to an integer position in [0, scale].
func ToScale(v float64, scale int, r Rounding) int {
	scaled := Clamp(v) * float64(scale)
	var pos float64
	switch r {
	case RoundNearest:
		pos = math.Round(scaled)
	default:
		pos = math.Ceil(scaled - ceilEpsilon)
	}
	if pos < 0 {
		return 0
	}
	if pos > float64(scale) {
		return scale
	}
	return int(pos)
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
