package roi

import (
	"math"
	"testing"

	"github.com/menta2k/slide-analyzer/pkg/region"
)

func mustRect(t *testing.T, x, y, w, h float64) ROI {
	t.Helper()
	r, err := NewRectangle(x, y, w, h, region.DefaultPlane)
	if err != nil {
		t.Fatalf("NewRectangle failed: %v", err)
	}
	return r
}

func TestRectangleArea(t *testing.T) {
	r := mustRect(t, 10, 20, 30, 40)
	if a := r.Area(); math.Abs(a-1200) > 1e-9 {
		t.Errorf("expected area 1200, got %v", a)
	}
	x, y, w, h := r.Bounds()
	if x != 10 || y != 20 || w != 30 || h != 40 {
		t.Errorf("unexpected bounds %v,%v %vx%v", x, y, w, h)
	}
}

func TestUnionMergesOverlap(t *testing.T) {
	a := mustRect(t, 0, 0, 10, 10)
	b := mustRect(t, 5, 0, 10, 10)

	merged, err := a.Union(b)
	if err != nil {
		t.Fatalf("Union failed: %v", err)
	}
	// Overlapping area counted once: 100 + 100 - 50.
	if area := merged.Area(); math.Abs(area-150) > 1e-6 {
		t.Errorf("expected merged area 150, got %v", area)
	}
	if pieces := merged.Split(); len(pieces) != 1 {
		t.Errorf("expected a single connected piece, got %d", len(pieces))
	}
}

func TestUnionDisjointKeepsPieces(t *testing.T) {
	a := mustRect(t, 0, 0, 10, 10)
	b := mustRect(t, 100, 100, 10, 10)

	merged, err := a.Union(b)
	if err != nil {
		t.Fatalf("Union failed: %v", err)
	}
	if area := merged.Area(); math.Abs(area-200) > 1e-6 {
		t.Errorf("expected area 200, got %v", area)
	}
	if pieces := merged.Split(); len(pieces) != 2 {
		t.Errorf("expected 2 connected pieces, got %d", len(pieces))
	}
}

func TestUnionWithEmpty(t *testing.T) {
	var empty ROI
	a := mustRect(t, 0, 0, 10, 10)

	merged, err := empty.Union(a)
	if err != nil {
		t.Fatalf("Union failed: %v", err)
	}
	if math.Abs(merged.Area()-100) > 1e-9 {
		t.Errorf("expected area 100, got %v", merged.Area())
	}
}

func TestIntersect(t *testing.T) {
	a := mustRect(t, 0, 0, 10, 10)
	b := mustRect(t, 5, 5, 10, 10)

	clipped, err := a.Intersect(b)
	if err != nil {
		t.Fatalf("Intersect failed: %v", err)
	}
	if area := clipped.Area(); math.Abs(area-25) > 1e-6 {
		t.Errorf("expected area 25, got %v", area)
	}

	far := mustRect(t, 100, 100, 5, 5)
	gone, err := a.Intersect(far)
	if err != nil {
		t.Fatalf("Intersect failed: %v", err)
	}
	if !gone.IsEmpty() {
		t.Error("expected empty intersection")
	}
}

func TestRemoveSmallPiecesKeepsLargePiece(t *testing.T) {
	// Two disjoint pieces: area 50 and area 500.
	small := mustRect(t, 0, 0, 10, 5)
	large := mustRect(t, 100, 100, 25, 20)
	composite, err := small.Union(large)
	if err != nil {
		t.Fatalf("Union failed: %v", err)
	}

	filtered := composite.RemoveSmallPieces(100)
	if area := filtered.Area(); math.Abs(area-500) > 1e-6 {
		t.Errorf("expected surviving area 500, got %v", area)
	}
	if pieces := filtered.Split(); len(pieces) != 1 {
		t.Errorf("expected 1 surviving piece, got %d", len(pieces))
	}
}

func TestRemoveSmallPiecesAllBelow(t *testing.T) {
	r := mustRect(t, 0, 0, 5, 5)
	filtered := r.RemoveSmallPieces(100)
	if !filtered.IsEmpty() {
		t.Errorf("expected empty result, got area %v", filtered.Area())
	}
}

func TestPolygonWithHole(t *testing.T) {
	outer := []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	hole := []Point{{4, 4}, {4, 6}, {6, 6}, {6, 4}}
	r, err := NewPolygon(outer, [][]Point{hole}, region.DefaultPlane)
	if err != nil {
		t.Fatalf("NewPolygon failed: %v", err)
	}
	if area := r.Area(); math.Abs(area-96) > 1e-6 {
		t.Errorf("expected area 96, got %v", area)
	}
}

func TestCentroid(t *testing.T) {
	r := mustRect(t, 0, 0, 10, 10)
	c, ok := r.Centroid()
	if !ok {
		t.Fatal("expected centroid")
	}
	if math.Abs(c.X-5) > 1e-9 || math.Abs(c.Y-5) > 1e-9 {
		t.Errorf("expected centroid (5,5), got %v", c)
	}
}
