package raster

import (
	"math"
	"testing"

	"github.com/menta2k/slide-analyzer/pkg/region"
)

func TestThresholdAllBelowGivesNoFragment(t *testing.T) {
	r := New(4, 4, 1)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			r.Set(x, y, 0, 0.1)
		}
	}

	_, ok, err := r.ThresholdToROI(0, 0.5, 1.0, Transform{Downsample: 1}, region.DefaultPlane)
	if err != nil {
		t.Fatalf("ThresholdToROI failed: %v", err)
	}
	if ok {
		t.Error("expected no fragment for an all-below-threshold raster")
	}
}

func TestTraceUniformMask(t *testing.T) {
	mask := make([]bool, 16)
	for i := range mask {
		mask[i] = true
	}

	tr := Transform{Downsample: 2, TileX: 10, TileY: 20}
	r, ok, err := TraceMask(mask, 4, 4, tr, region.DefaultPlane)
	if err != nil {
		t.Fatalf("TraceMask failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a fragment")
	}

	// Tile-local 4x4 at downsample 2 covers 8x8 full-resolution pixels
	// starting at (20, 40).
	if area := r.Area(); math.Abs(area-64) > 1e-9 {
		t.Errorf("expected area 64, got %v", area)
	}
	x, y, w, h := r.Bounds()
	if x != 20 || y != 40 || w != 8 || h != 8 {
		t.Errorf("unexpected bounds %v,%v %vx%v", x, y, w, h)
	}
}

func TestTracePreservesHole(t *testing.T) {
	// 5x5 block with the center pixel excluded.
	mask := make([]bool, 25)
	for i := range mask {
		mask[i] = true
	}
	mask[2*5+2] = false

	r, ok, err := TraceMask(mask, 5, 5, Transform{Downsample: 1}, region.DefaultPlane)
	if err != nil {
		t.Fatalf("TraceMask failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a fragment")
	}
	if area := r.Area(); math.Abs(area-24) > 1e-9 {
		t.Errorf("expected area 24 (25 minus hole), got %v", area)
	}
	if pieces := r.Split(); len(pieces) != 1 {
		t.Errorf("expected 1 connected piece, got %d", len(pieces))
	}
}

func TestTraceDiagonalTouchSplits(t *testing.T) {
	// Two pixels sharing only a corner are separate components.
	mask := []bool{
		true, false,
		false, true,
	}

	r, ok, err := TraceMask(mask, 2, 2, Transform{Downsample: 1}, region.DefaultPlane)
	if err != nil {
		t.Fatalf("TraceMask failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a fragment")
	}
	pieces := r.Split()
	if len(pieces) != 2 {
		t.Fatalf("expected 2 pieces for diagonally touching pixels, got %d", len(pieces))
	}
	for i, piece := range pieces {
		if area := piece.Area(); math.Abs(area-1) > 1e-9 {
			t.Errorf("piece %d: expected area 1, got %v", i, area)
		}
	}
}

func TestClassROIExtractsOneClass(t *testing.T) {
	l := NewLabels(4, 4)
	// Class 1 occupies the left 2x4 half.
	for y := 0; y < 4; y++ {
		l.Set(0, y, 1)
		l.Set(1, y, 1)
	}

	r, ok, err := l.ClassROI(1, Transform{Downsample: 1}, region.DefaultPlane)
	if err != nil {
		t.Fatalf("ClassROI failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a fragment for class 1")
	}
	if area := r.Area(); math.Abs(area-8) > 1e-9 {
		t.Errorf("expected area 8, got %v", area)
	}

	if _, ok, err := l.ClassROI(3, Transform{Downsample: 1}, region.DefaultPlane); err != nil || ok {
		t.Errorf("expected no fragment for unused class, ok=%v err=%v", ok, err)
	}
}

func TestThresholdInterval(t *testing.T) {
	r := New(3, 1, 1)
	r.Set(0, 0, 0, 0.2)
	r.Set(1, 0, 0, 0.5)
	r.Set(2, 0, 0, 0.9)

	res, ok, err := r.ThresholdToROI(0, 0.4, 0.6, Transform{Downsample: 1}, region.DefaultPlane)
	if err != nil {
		t.Fatalf("ThresholdToROI failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a fragment")
	}
	x, _, w, _ := res.Bounds()
	if x != 1 || w != 1 {
		t.Errorf("expected single middle pixel, got x=%v w=%v", x, w)
	}
}
