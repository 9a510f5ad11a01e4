// Package roi represents vector regions of interest in full-resolution
// image coordinates and the small geometry algebra the pipeline needs:
// union, intersection, area, splitting into connected pieces and dropping
// small pieces. The algebra is delegated to the simplefeatures geometry
// library; nothing outside this package touches geometry types directly.
package roi

import (
	"errors"
	"fmt"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/menta2k/slide-analyzer/pkg/region"
)

// ErrGeometry indicates a failed geometry operation.
var ErrGeometry = errors.New("geometry operation failed")

// Point is a 2D coordinate in full-resolution pixel units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ROI is a region of interest: an areal geometry attached to one imaging plane.
// The zero ROI is empty.
type ROI struct {
	g     geom.Geometry
	plane region.ImagePlane
}

// FromGeometry wraps an existing geometry.
func FromGeometry(g geom.Geometry, plane region.ImagePlane) ROI {
	return ROI{g: g, plane: plane}
}

// NewRectangle creates a rectangular ROI.
func NewRectangle(x, y, width, height float64, plane region.ImagePlane) (ROI, error) {
	return NewPolygon([]Point{
		{x, y}, {x + width, y}, {x + width, y + height}, {x, y + height},
	}, nil, plane)
}

// NewPolygon creates a polygonal ROI from an outer ring and optional holes.
// Rings need not be explicitly closed; the first point is appended when the
// ring is open.
func NewPolygon(outer []Point, holes [][]Point, plane region.ImagePlane) (ROI, error) {
	if len(outer) < 3 {
		return ROI{}, fmt.Errorf("%w: outer ring has %d points", ErrGeometry, len(outer))
	}
	rings := make([]geom.LineString, 0, 1+len(holes))
	rings = append(rings, ringToLineString(outer))
	for _, hole := range holes {
		if len(hole) < 3 {
			return ROI{}, fmt.Errorf("%w: hole ring has %d points", ErrGeometry, len(hole))
		}
		rings = append(rings, ringToLineString(hole))
	}
	poly := geom.NewPolygon(rings)
	return ROI{g: poly.AsGeometry(), plane: plane}, nil
}

func ringToLineString(ring []Point) geom.LineString {
	closed := ring
	if ring[0] != ring[len(ring)-1] {
		closed = append(append([]Point{}, ring...), ring[0])
	}
	coords := make([]float64, 0, len(closed)*2)
	for _, p := range closed {
		coords = append(coords, p.X, p.Y)
	}
	return geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
}

// Geometry exposes the wrapped geometry for serialization (WKT, GeoJSON).
func (r ROI) Geometry() geom.Geometry { return r.g }

// Plane returns the imaging plane the ROI belongs to.
func (r ROI) Plane() region.ImagePlane { return r.plane }

// IsEmpty reports whether the ROI covers no area.
func (r ROI) IsEmpty() bool {
	return r.g.IsEmpty()
}

// Area returns the enclosed area in square full-resolution pixels.
func (r ROI) Area() float64 {
	switch {
	case r.g.IsPolygon():
		return r.g.MustAsPolygon().Area()
	case r.g.IsMultiPolygon():
		return r.g.MustAsMultiPolygon().Area()
	case r.g.IsGeometryCollection():
		var total float64
		gc := r.g.MustAsGeometryCollection()
		for i := 0; i < gc.NumGeometries(); i++ {
			total += FromGeometry(gc.GeometryN(i), r.plane).Area()
		}
		return total
	default:
		return 0
	}
}

// Bounds returns the axis-aligned bounding box as (x, y, width, height).
// An empty ROI yields all zeros.
func (r ROI) Bounds() (x, y, width, height float64) {
	env := r.g.Envelope()
	min, ok := env.Min().XY()
	if !ok {
		return 0, 0, 0, 0
	}
	max, _ := env.Max().XY()
	return min.X, min.Y, max.X - min.X, max.Y - min.Y
}

// Centroid returns the area centroid. The second return is false when empty.
func (r ROI) Centroid() (Point, bool) {
	xy, ok := r.g.Centroid().XY()
	if !ok {
		return Point{}, false
	}
	return Point{X: xy.X, Y: xy.Y}, true
}

// Union merges this ROI with another on the same plane. Overlapping areas
// collapse into a single region rather than remaining duplicate shapes.
func (r ROI) Union(other ROI) (ROI, error) {
	if r.g.IsEmpty() {
		return other, nil
	}
	if other.g.IsEmpty() {
		return r, nil
	}
	merged, err := geom.Union(r.g, other.g)
	if err != nil {
		return ROI{}, fmt.Errorf("%w: union: %v", ErrGeometry, err)
	}
	return ROI{g: merged, plane: r.plane}, nil
}

// Intersect clips this ROI against another. The result may be empty.
func (r ROI) Intersect(other ROI) (ROI, error) {
	clipped, err := geom.Intersection(r.g, other.g)
	if err != nil {
		return ROI{}, fmt.Errorf("%w: intersection: %v", ErrGeometry, err)
	}
	return ROI{g: clipped, plane: r.plane}, nil
}

// Split decomposes the ROI into its maximal connected pieces. A simple
// polygon yields itself; a multi-piece region yields one ROI per piece.
func (r ROI) Split() []ROI {
	switch {
	case r.g.IsEmpty():
		return nil
	case r.g.IsMultiPolygon():
		mp := r.g.MustAsMultiPolygon()
		pieces := make([]ROI, 0, mp.NumPolygons())
		for i := 0; i < mp.NumPolygons(); i++ {
			pieces = append(pieces, ROI{g: mp.PolygonN(i).AsGeometry(), plane: r.plane})
		}
		return pieces
	default:
		return []ROI{r}
	}
}

// RemoveSmallPieces drops connected pieces with area below minArea. For a
// single-piece ROI below threshold the result is empty. Pieces are judged
// individually, so a large composite survives even when some of its pieces
// are dropped.
func (r ROI) RemoveSmallPieces(minArea float64) ROI {
	if minArea <= 0 || r.g.IsEmpty() {
		return r
	}
	pieces := r.Split()
	kept := make([]geom.Polygon, 0, len(pieces))
	for _, piece := range pieces {
		if piece.Area() >= minArea && piece.g.IsPolygon() {
			kept = append(kept, piece.g.MustAsPolygon())
		}
	}
	if len(kept) == 0 {
		return ROI{g: geom.MultiPolygon{}.AsGeometry(), plane: r.plane}
	}
	if len(kept) == 1 {
		return ROI{g: kept[0].AsGeometry(), plane: r.plane}
	}
	return ROI{g: geom.NewMultiPolygon(kept).AsGeometry(), plane: r.plane}
}

// CombineDisjoint gathers ROIs known to be pairwise disjoint polygons into
// one multi-piece ROI without running a boolean union. Used by the raster
// tracer, whose rings are disjoint by construction.
func CombineDisjoint(pieces []ROI, plane region.ImagePlane) (ROI, error) {
	polys := make([]geom.Polygon, 0, len(pieces))
	for _, piece := range pieces {
		switch {
		case piece.g.IsEmpty():
		case piece.g.IsPolygon():
			polys = append(polys, piece.g.MustAsPolygon())
		case piece.g.IsMultiPolygon():
			mp := piece.g.MustAsMultiPolygon()
			for i := 0; i < mp.NumPolygons(); i++ {
				polys = append(polys, mp.PolygonN(i))
			}
		default:
			return ROI{}, fmt.Errorf("%w: cannot combine non-areal geometry", ErrGeometry)
		}
	}
	if len(polys) == 0 {
		return ROI{g: geom.MultiPolygon{}.AsGeometry(), plane: plane}, nil
	}
	if len(polys) == 1 {
		return ROI{g: polys[0].AsGeometry(), plane: plane}, nil
	}
	return ROI{g: geom.NewMultiPolygon(polys).AsGeometry(), plane: plane}, nil
}

// UnionAll merges a set of ROIs into one composite region.
func UnionAll(rois []ROI) (ROI, error) {
	var merged ROI
	for _, r := range rois {
		var err error
		merged, err = merged.Union(r)
		if err != nil {
			return ROI{}, err
		}
	}
	return merged, nil
}
