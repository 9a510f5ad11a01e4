package raster

import (
	"math"

	"github.com/menta2k/slide-analyzer/pkg/region"
	"github.com/menta2k/slide-analyzer/pkg/roi"
)

// Transform maps tile-local pixel coordinates to full-resolution space:
// full = (tileOrigin + local) * downsample, with the origin in coordinates
// of the tile's pyramid level.
type Transform struct {
	Downsample float64
	TileX      int
	TileY      int
}

func (t Transform) apply(x, y float64) (float64, float64) {
	return (float64(t.TileX) + x) * t.Downsample, (float64(t.TileY) + y) * t.Downsample
}

// gridPoint is a lattice corner between pixels.
type gridPoint struct{ x, y int }

type gridDir struct{ dx, dy int }

// TraceMask converts a binary pixel mask into a polygonal ROI by tracing
// the boundary between inside and outside pixels. Components are
// 4-connected: regions touching only at a corner become separate pieces.
// Interior holes are preserved. Returns false when the mask has no inside
// pixels at all — an empty mask yields no fragment, not an empty geometry.
func TraceMask(mask []bool, width, height int, t Transform, plane region.ImagePlane) (roi.ROI, bool, error) {
	rings := traceRings(mask, width, height)
	if len(rings) == 0 {
		return roi.ROI{}, false, nil
	}

	// Negative shoelace sign marks outer rings under the interior-on-left
	// convention with image (y-down) coordinates.
	type ringInfo struct {
		lattice []gridPoint
		area    float64 // signed, lattice units
	}
	var outers, holes []ringInfo
	for _, ring := range rings {
		info := ringInfo{lattice: ring, area: signedArea(ring)}
		if info.area < 0 {
			outers = append(outers, info)
		} else {
			holes = append(holes, info)
		}
	}

	// Assign each hole to the smallest outer ring containing it. The test
	// point is the center of a lake pixel adjacent to the hole's first edge
	// (half-integer coordinates, so the ray cast never grazes a vertex).
	holesByOuter := make([][][]gridPoint, len(outers))
	for _, hole := range holes {
		sx, sy := lakeSample(hole.lattice)
		best := -1
		bestArea := math.Inf(1)
		for i, outer := range outers {
			if math.Abs(outer.area) < math.Abs(hole.area) {
				continue
			}
			if containsLatticePoint(outer.lattice, sx, sy) && math.Abs(outer.area) < bestArea {
				best = i
				bestArea = math.Abs(outer.area)
			}
		}
		if best >= 0 {
			holesByOuter[best] = append(holesByOuter[best], hole.lattice)
		}
	}

	toPoints := func(ring []gridPoint) []roi.Point {
		pts := make([]roi.Point, len(ring))
		for i, p := range ring {
			x, y := t.apply(float64(p.x), float64(p.y))
			pts[i] = roi.Point{X: x, Y: y}
		}
		return pts
	}

	pieces := make([]roi.ROI, 0, len(outers))
	for i, outer := range outers {
		holeRings := make([][]roi.Point, 0, len(holesByOuter[i]))
		for _, hole := range holesByOuter[i] {
			holeRings = append(holeRings, toPoints(hole))
		}
		piece, err := roi.NewPolygon(toPoints(outer.lattice), holeRings, plane)
		if err != nil {
			return roi.ROI{}, false, err
		}
		pieces = append(pieces, piece)
	}
	combined, err := roi.CombineDisjoint(pieces, plane)
	if err != nil {
		return roi.ROI{}, false, err
	}
	return combined, true, nil
}

// ThresholdToROI extracts the region of one raster channel whose values lie
// in [minValue, maxValue], mapped to full-resolution coordinates. Returns
// false when no pixel qualifies.
func (r *Raster) ThresholdToROI(c int, minValue, maxValue float64, t Transform, plane region.ImagePlane) (roi.ROI, bool, error) {
	mask := make([]bool, r.Width*r.Height)
	any := false
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			v := r.At(x, y, c)
			if v >= minValue && v <= maxValue {
				mask[y*r.Width+x] = true
				any = true
			}
		}
	}
	if !any {
		return roi.ROI{}, false, nil
	}
	return TraceMask(mask, r.Width, r.Height, t, plane)
}

// ClassROI extracts the polygon of pixels labelled with channel c, i.e. the
// threshold interval [c-0.5, c+0.5] over the label raster.
func (l *Labels) ClassROI(c int, t Transform, plane region.ImagePlane) (roi.ROI, bool, error) {
	mask, any := l.MaskClass(c)
	if !any {
		return roi.ROI{}, false, nil
	}
	return TraceMask(mask, l.Width, l.Height, t, plane)
}

// traceRings extracts the closed boundary rings of a mask. Each directed
// boundary edge keeps the interior on its left; walking always takes the
// sharpest left turn at junction corners, which keeps diagonally-touching
// components separate (4-connectivity).
func traceRings(mask []bool, width, height int) [][]gridPoint {
	inside := func(x, y int) bool {
		return x >= 0 && x < width && y >= 0 && y < height && mask[y*width+x]
	}

	// Directed edges indexed by their start corner.
	edges := make(map[gridPoint][]gridPoint)
	addEdge := func(fromX, fromY, toX, toY int) {
		from := gridPoint{fromX, fromY}
		edges[from] = append(edges[from], gridPoint{toX, toY})
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !mask[y*width+x] {
				continue
			}
			if !inside(x, y-1) {
				addEdge(x+1, y, x, y)
			}
			if !inside(x, y+1) {
				addEdge(x, y+1, x+1, y+1)
			}
			if !inside(x-1, y) {
				addEdge(x, y, x, y+1)
			}
			if !inside(x+1, y) {
				addEdge(x+1, y+1, x+1, y)
			}
		}
	}

	var rings [][]gridPoint
	for len(edges) > 0 {
		var start gridPoint
		for p := range edges {
			start = p
			break
		}
		ring := []gridPoint{start}
		current := start
		dir := gridDir{}
		for {
			next, ok := takeEdge(edges, current, dir)
			if !ok {
				// Degenerate; abandon this partial ring.
				break
			}
			dir = gridDir{next.x - current.x, next.y - current.y}
			current = next
			if current == start {
				break
			}
			ring = append(ring, current)
		}
		if len(ring) >= 4 && current == start {
			rings = append(rings, ring)
		}
	}
	return rings
}

// takeEdge removes and returns the outgoing edge at p. When two edges leave
// the same corner (components touching diagonally), the one turning left
// relative to the incoming direction is taken.
func takeEdge(edges map[gridPoint][]gridPoint, p gridPoint, incoming gridDir) (gridPoint, bool) {
	candidates := edges[p]
	switch len(candidates) {
	case 0:
		return gridPoint{}, false
	case 1:
		delete(edges, p)
		return candidates[0], true
	}
	best := 0
	bestCross := math.Inf(1)
	for i, c := range candidates {
		d := gridDir{c.x - p.x, c.y - p.y}
		// With y pointing down, a left turn has negative cross product.
		cross := float64(incoming.dx*d.dy - incoming.dy*d.dx)
		if cross < bestCross {
			bestCross = cross
			best = i
		}
	}
	chosen := candidates[best]
	rest := append(candidates[:best:best], candidates[best+1:]...)
	edges[p] = rest
	return chosen, true
}

// signedArea computes the shoelace sum of a lattice ring. Outer rings are
// negative under the interior-on-left, y-down convention used here.
func signedArea(ring []gridPoint) float64 {
	var sum int
	for i, p := range ring {
		q := ring[(i+1)%len(ring)]
		sum += p.x*q.y - q.x*p.y
	}
	return float64(sum) / 2
}

// lakeSample returns the center of the excluded pixel immediately right of a
// hole ring's first edge. With interior on the left of every directed edge,
// the right side of a hole ring faces the enclosed lake.
func lakeSample(ring []gridPoint) (float64, float64) {
	a, b := ring[0], ring[1]
	dx, dy := b.x-a.x, b.y-a.y
	mx := float64(a.x+b.x) / 2
	my := float64(a.y+b.y) / 2
	// Right of (dx,dy) in y-down coordinates is (-dy,dx).
	return mx - float64(dy)/2, my + float64(dx)/2
}

// containsLatticePoint tests whether a half-integer point lies inside a
// lattice ring by ray casting. Half-integer coordinates guarantee the ray
// never passes through a vertex.
func containsLatticePoint(ring []gridPoint, px, py float64) bool {
	inside := false
	n := len(ring)
	for i := 0; i < n; i++ {
		a := ring[i]
		b := ring[(i+1)%n]
		ay, by := float64(a.y), float64(b.y)
		if (ay > py) != (by > py) {
			xAt := float64(a.x) + (py-ay)/(by-ay)*float64(b.x-a.x)
			if px < xAt {
				inside = !inside
			}
		}
	}
	return inside
}
