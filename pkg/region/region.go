// Package region defines value types addressing rectangular regions of a
// pyramidal image: full-resolution region requests, the imaging plane they
// belong to, and tile requests materialized against a chosen pyramid level.
package region

import (
	"errors"
	"fmt"
)

// ErrInvalidRegion indicates a request with non-positive dimensions or downsample.
var ErrInvalidRegion = errors.New("invalid region request")

// ImagePlane identifies which 2D slice of a possibly multi-dimensional
// image a region belongs to: channel, z-slice and timepoint.
type ImagePlane struct {
	C int `json:"c"`
	Z int `json:"z"`
	T int `json:"t"`
}

// DefaultPlane is the plane of a plain 2D image.
var DefaultPlane = ImagePlane{C: -1, Z: 0, T: 0}

// Request addresses a rectangular region of an image in full-resolution
// pixel units, to be served at the given downsample.
type Request struct {
	Path       string     `json:"path"`
	Downsample float64    `json:"downsample"`
	X          int        `json:"x"`
	Y          int        `json:"y"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Plane      ImagePlane `json:"plane"`
}

// NewRequest creates a region request on the default plane.
func NewRequest(path string, downsample float64, x, y, width, height int) Request {
	return Request{
		Path:       path,
		Downsample: downsample,
		X:          x,
		Y:          y,
		Width:      width,
		Height:     height,
		Plane:      DefaultPlane,
	}
}

// Validate reports whether the request dimensions and downsample are usable.
func (r Request) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidRegion, r.Width, r.Height)
	}
	if r.Downsample <= 0 {
		return fmt.Errorf("%w: downsample %f", ErrInvalidRegion, r.Downsample)
	}
	return nil
}

// X2 returns the exclusive right edge in full-resolution units.
func (r Request) X2() int { return r.X + r.Width }

// Y2 returns the exclusive bottom edge in full-resolution units.
func (r Request) Y2() int { return r.Y + r.Height }

// Intersects reports whether the request overlaps the given full-resolution rectangle.
func (r Request) Intersects(x, y, width, height int) bool {
	return r.X < x+width && r.X2() > x && r.Y < y+height && r.Y2() > y
}

// DestWidth returns the width of the destination buffer for this request.
func (r Request) DestWidth() int {
	return int(float64(r.Width)/r.Downsample + 0.5)
}

// DestHeight returns the height of the destination buffer for this request.
func (r Request) DestHeight() int {
	return int(float64(r.Height)/r.Downsample + 0.5)
}

// String formats the request for logs.
func (r Request) String() string {
	return fmt.Sprintf("%s [ds=%.3f, %d,%d %dx%d, c=%d z=%d t=%d]",
		r.Path, r.Downsample, r.X, r.Y, r.Width, r.Height, r.Plane.C, r.Plane.Z, r.Plane.T)
}
