package raster

import (
	"math"
	"testing"
)

func TestArgmaxPicksMaxChannel(t *testing.T) {
	r := New(2, 1, 3)
	r.Set(0, 0, 0, 0.1)
	r.Set(0, 0, 1, 0.7)
	r.Set(0, 0, 2, 0.2)
	r.Set(1, 0, 0, 0.9)
	r.Set(1, 0, 1, 0.05)
	r.Set(1, 0, 2, 0.05)

	labels, err := r.Argmax()
	if err != nil {
		t.Fatalf("Argmax failed: %v", err)
	}
	if got := labels.At(0, 0); got != 1 {
		t.Errorf("expected label 1, got %d", got)
	}
	if got := labels.At(1, 0); got != 0 {
		t.Errorf("expected label 0, got %d", got)
	}
}

func TestArgmaxTieBreaksLowestChannel(t *testing.T) {
	r := New(1, 1, 3)
	r.Set(0, 0, 0, 0.5)
	r.Set(0, 0, 1, 0.1)
	r.Set(0, 0, 2, 0.5)

	labels, err := r.Argmax()
	if err != nil {
		t.Fatalf("Argmax failed: %v", err)
	}
	if got := labels.At(0, 0); got != 0 {
		t.Errorf("tie between channels 0 and 2 must resolve to 0, got %d", got)
	}
}

func TestArgmaxChannelCap(t *testing.T) {
	r := New(1, 1, 257)
	if _, err := r.Argmax(); err == nil {
		t.Error("expected error for more than 256 channels")
	}
}

func TestLabelsFromChannelRounds(t *testing.T) {
	r := New(3, 1, 1)
	r.Set(0, 0, 0, 0.0)
	r.Set(1, 0, 0, 1.4)
	r.Set(2, 0, 0, 1.6)

	labels := r.LabelsFromChannel(0)
	want := []int{0, 1, 2}
	for x, w := range want {
		if got := labels.At(x, 0); got != w {
			t.Errorf("pixel %d: expected label %d, got %d", x, w, got)
		}
	}
}

func TestNormalizePixel(t *testing.T) {
	r := New(2, 1, 3)
	r.Set(0, 0, 0, 2)
	r.Set(0, 0, 1, 2)
	r.Set(0, 0, 2, 4)

	r.NormalizePixel(0, 0)
	want := []float64{0.25, 0.25, 0.5}
	for c, w := range want {
		if got := r.At(0, 0, c); math.Abs(got-w) > 1e-12 {
			t.Errorf("channel %d: expected %v, got %v", c, w, got)
		}
	}

	// An all-zero vector stays untouched.
	r.NormalizePixel(1, 0)
	for c := 0; c < 3; c++ {
		if got := r.At(1, 0, c); got != 0 {
			t.Errorf("channel %d: expected 0, got %v", c, got)
		}
	}
}

func TestMaskClass(t *testing.T) {
	l := NewLabels(2, 2)
	l.Set(0, 0, 1)
	l.Set(1, 1, 1)

	mask, any := l.MaskClass(1)
	if !any {
		t.Fatal("expected mask to contain pixels")
	}
	if !mask[0] || mask[1] || mask[2] || !mask[3] {
		t.Errorf("unexpected mask %v", mask)
	}

	if _, any := l.MaskClass(7); any {
		t.Error("expected empty mask for unused class")
	}
}
