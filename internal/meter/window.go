package meter

import "gonum.org/v1/gonum/stat"

// Window is a fixed-capacity FIFO of the most recent samples for one channel.
type Window struct {
	buf   []float64
	start int
	n     int
}

// NewWindow returns an empty window holding at most capacity samples.
// A capacity below 1 is treated as 1.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]float64, capacity)}
}

// Push appends v, evicting the oldest sample when the window is full.
func (w *Window) Push(v float64) {
	if w.n < len(w.buf) {
		w.buf[(w.start+w.n)%len(w.buf)] = v
		w.n++
		return
	}
	w.buf[w.start] = v
	w.start = (w.start + 1) % len(w.buf)
}

// Len returns the number of samples currently held.
func (w *Window) Len() int { return w.n }

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.buf) }

// Values returns the held samples oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, w.n)
	for i := range out {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// Mean returns the arithmetic mean of the held samples, or 0 when empty.
func (w *Window) Mean() float64 {
	if w.n == 0 {
		return 0
	}
	return stat.Mean(w.Values(), nil)
}

// Reset drops all samples.
func (w *Window) Reset() {
	w.start = 0
	w.n = 0
}
