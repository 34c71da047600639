package meter

import (
	"math"
	"math/rand"
	"testing"
)

func TestWindowKeepsMostRecentInOrder(t *testing.T) {
	for _, capacity := range []int{1, 5, 8} {
		w := NewWindow(capacity)
		var seen []float64
		for i := 0; i < 3*capacity+2; i++ {
			v := float64(i)
			w.Push(v)
			seen = append(seen, v)

			if w.Len() > capacity {
				t.Fatalf("cap %d: window length %d exceeds capacity", capacity, w.Len())
			}

			want := seen
			if len(want) > capacity {
				want = want[len(want)-capacity:]
			}
			got := w.Values()
			if len(got) != len(want) {
				t.Fatalf("cap %d: expected %d values, got %d", capacity, len(want), len(got))
			}
			for j := range want {
				if got[j] != want[j] {
					t.Fatalf("cap %d: value %d mismatch: expected %f, got %f", capacity, j, want[j], got[j])
				}
			}
		}
	}
}

func TestWindowMeanEmptyIsZero(t *testing.T) {
	w := NewWindow(5)
	if m := w.Mean(); m != 0 {
		t.Fatalf("expected mean 0 for empty window, got %f", m)
	}
	w.Push(1)
	w.Reset()
	if w.Len() != 0 || w.Mean() != 0 {
		t.Fatalf("expected empty window after reset, got len %d mean %f", w.Len(), w.Mean())
	}
}

func TestSampleScenarioFiveWindow(t *testing.T) {
	s := New(Options{Window: 5, Scale: 10, Rounding: RoundUp})

	var left int
	for _, v := range []float64{0, 0, 0, 0, 1} {
		left, _ = s.Sample(v, 0)
	}

	if got := s.left.Mean(); math.Abs(got-0.2) > 1e-12 {
		t.Fatalf("expected mean 0.2, got %f", got)
	}
	if left != 2 {
		t.Fatalf("expected meter position 2, got %d", left)
	}
}

func TestSampleAlwaysInRange(t *testing.T) {
	inputs := []float64{0, 0.5, 1, 2, 1e9, math.Inf(1), -1, -math.MaxFloat64, math.NaN(), math.MaxFloat64}

	for _, compress := range []bool{false, true} {
		for _, r := range []Rounding{RoundUp, RoundNearest} {
			s := New(Options{Window: 5, Scale: 20, Compress: compress, Rounding: r})
			rng := rand.New(rand.NewSource(1))
			for i := 0; i < 500; i++ {
				l := inputs[rng.Intn(len(inputs))]
				rr := rng.Float64() * 3
				gl, gr := s.Sample(l, rr)
				if gl < 0 || gl > 20 || gr < 0 || gr > 20 {
					t.Fatalf("compress=%v rounding=%s: out of range output (%d, %d) for input (%f, %f)",
						compress, r, gl, gr, l, rr)
				}
			}
		}
	}
}

func TestCompressEndpointsAndMonotonic(t *testing.T) {
	for _, k := range []float64{0.01, 0.1, 1, 10} {
		if got := Compress(0, k); got != 0 {
			t.Errorf("k=%f: compress(0) = %f, want 0", k, got)
		}
		if got := Compress(1, k); math.Abs(got-1) > 1e-12 {
			t.Errorf("k=%f: compress(1) = %f, want 1", k, got)
		}

		prev := Compress(0, k)
		for i := 1; i <= 1000; i++ {
			x := float64(i) / 1000
			y := Compress(x, k)
			if y < prev {
				t.Fatalf("k=%f: compress not monotonic at %f: %f < %f", k, x, y, prev)
			}
			if y < x-1e-12 || y > 1+1e-12 {
				t.Fatalf("k=%f: compress(%f) = %f outside [x, 1]", k, x, y)
			}
			prev = y
		}
	}
}

func TestCompressionLiftsQuietInput(t *testing.T) {
	plain := New(Options{Window: 5, Scale: 10})
	soft := New(Options{Window: 5, Scale: 10, Compress: true})

	pl, _ := plain.Sample(0.05, 0)
	sl, _ := soft.Sample(0.05, 0)

	if pl != 1 {
		t.Fatalf("expected uncompressed position 1, got %d", pl)
	}
	// (1.1*0.05)/(0.15) = 0.3667 -> ceil(3.667) = 4
	if sl != 4 {
		t.Fatalf("expected compressed position 4, got %d", sl)
	}
}

func TestToScaleRounding(t *testing.T) {
	tests := []struct {
		name  string
		v     float64
		scale int
		r     Rounding
		want  int
	}{
		{"up exact", 0.2, 10, RoundUp, 2},
		{"up float noise", 0.7, 10, RoundUp, 7},
		{"up partial", 0.21, 10, RoundUp, 3},
		{"up tiny", 0.0001, 10, RoundUp, 1},
		{"up zero", 0, 10, RoundUp, 0},
		{"up full", 1, 10, RoundUp, 10},
		{"nearest down", 0.24, 10, RoundNearest, 2},
		{"nearest half", 0.25, 10, RoundNearest, 3},
		{"nearest tiny", 0.0001, 10, RoundNearest, 0},
		{"nearest full", 1, 10, RoundNearest, 10},
		{"above one", 3, 10, RoundNearest, 10},
		{"negative", -0.5, 10, RoundUp, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToScale(tt.v, tt.scale, tt.r); got != tt.want {
				t.Errorf("ToScale(%f, %d, %s) = %d, want %d", tt.v, tt.scale, tt.r, got, tt.want)
			}
		})
	}
}

func TestParseRounding(t *testing.T) {
	tests := []struct {
		in      string
		want    Rounding
		wantErr bool
	}{
		{"", RoundUp, false},
		{"up", RoundUp, false},
		{"nearest", RoundNearest, false},
		{"down", RoundUp, true},
	}

	for _, tt := range tests {
		got, err := ParseRounding(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRounding(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseRounding(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestResetClearsWindows(t *testing.T) {
	s := New(Options{Window: 4, Scale: 10})
	s.Sample(1, 1)
	s.Reset()

	l, r := s.Sample(0, 0)
	if l != 0 || r != 0 {
		t.Fatalf("expected silent meter after reset, got (%d, %d)", l, r)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	s := New(Options{})
	if s.left.Cap() != DefaultWindow {
		t.Errorf("expected default window %d, got %d", DefaultWindow, s.left.Cap())
	}
	if s.Scale() != DefaultScale {
		t.Errorf("expected default scale %d, got %d", DefaultScale, s.Scale())
	}
	if s.knee != DefaultKnee {
		t.Errorf("expected default knee %f, got %f", DefaultKnee, s.knee)
	}
}
