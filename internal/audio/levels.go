package audio

import (
	"math"
	"sync/atomic"
)

// levels hands the latest RMS pair from the stream callback to the meter
// tick. One writer, one reader; no locks in the callback.
type levels struct {
	left  atomic.Uint64
	right atomic.Uint64
}

func (l *levels) store(left, right float64) {
	l.left.Store(math.Float64bits(left))
	l.right.Store(math.Float64bits(right))
}

func (l *levels) load() (float64, float64) {
	return math.Float64frombits(l.left.Load()), math.Float64frombits(l.right.Load())
}

func (l *levels) reset() { l.store(0, 0) }

// channelRMS computes the RMS of the first two channels of an interleaved
// buffer. Mono input is reported on both channels.
func channelRMS(buf []float32, channels int) (float64, float64) {
	if channels < 1 {
		return 0, 0
	}
	frames := len(buf) / channels
	if frames == 0 {
		return 0, 0
	}

	var sumL, sumR float64
	for f := 0; f < frames; f++ {
		l := float64(buf[f*channels])
		r := l
		if channels > 1 {
			r = float64(buf[f*channels+1])
		}
		sumL += l * l
		sumR += r * r
	}

	n := float64(frames)
	return math.Sqrt(sumL / n), math.Sqrt(sumR / n)
}

// passthrough copies interleaved input frames into the output buffer. Output
// channels beyond the input's count repeat the last input channel.
func passthrough(in []float32, inCh int, out []float32, outCh int) {
	if inCh < 1 || outCh < 1 {
		clear(out)
		return
	}
	frames := len(out) / outCh
	for f := 0; f < frames; f++ {
		for c := 0; c < outCh; c++ {
			src := c
			if src >= inCh {
				src = inCh - 1
			}
			idx := f*inCh + src
			if idx < len(in) {
				out[f*outCh+c] = in[idx]
			} else {
				out[f*outCh+c] = 0
			}
		}
	}
}
