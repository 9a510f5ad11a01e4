// Package raster holds the dense per-tile classification output and the
// operations turning it into vector geometry: per-pixel argmax over soft
// multi-channel responses and threshold-to-polygon boundary tracing.
package raster

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Raster is a dense grid of per-channel floating point response values for
// one tile. Values are stored interleaved, channel-fastest, so one pixel's
// channel vector is a contiguous slice. A Raster is owned by the tile that
// produced it and is not retained once its polygons have been extracted.
type Raster struct {
	Width    int
	Height   int
	Channels int
	values   []float64
}

// New allocates a zeroed raster.
func New(width, height, channels int) *Raster {
	return &Raster{
		Width:    width,
		Height:   height,
		Channels: channels,
		values:   make([]float64, width*height*channels),
	}
}

// At returns the response value for one pixel and channel.
func (r *Raster) At(x, y, c int) float64 {
	return r.values[(y*r.Width+x)*r.Channels+c]
}

// Set stores the response value for one pixel and channel.
func (r *Raster) Set(x, y, c int, v float64) {
	r.values[(y*r.Width+x)*r.Channels+c] = v
}

// Pixel returns the channel vector of one pixel as a shared slice.
func (r *Raster) Pixel(x, y int) []float64 {
	i := (y*r.Width + x) * r.Channels
	return r.values[i : i+r.Channels]
}

// Labels is a per-pixel hard classification, one channel index per pixel.
type Labels struct {
	Width  int
	Height int
	data   []uint8
}

// NewLabels allocates a zeroed label raster.
func NewLabels(width, height int) *Labels {
	return &Labels{Width: width, Height: height, data: make([]uint8, width*height)}
}

// At returns the label of one pixel.
func (l *Labels) At(x, y int) int { return int(l.data[y*l.Width+x]) }

// Set stores the label of one pixel.
func (l *Labels) Set(x, y, label int) { l.data[y*l.Width+x] = uint8(label) }

// Argmax derives a hard per-pixel labelling from a soft multi-channel
// raster. Ties break in favor of the lowest channel index: channels are
// scanned 0..N-1 with a strictly-greater comparison, which is exactly what
// floats.MaxIdx does. Labels are stored as bytes, capping usable channels
// at 256.
func (r *Raster) Argmax() (*Labels, error) {
	if r.Channels > 256 {
		return nil, fmt.Errorf("argmax supports at most 256 channels, got %d", r.Channels)
	}
	labels := NewLabels(r.Width, r.Height)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			labels.Set(x, y, floats.MaxIdx(r.Pixel(x, y)))
		}
	}
	return labels, nil
}

// LabelsFromChannel interprets one channel of the raster as already-hard
// label values, rounding to the nearest integer. Used when a classifier's
// output type is Classification rather than Probability.
func (r *Raster) LabelsFromChannel(c int) *Labels {
	labels := NewLabels(r.Width, r.Height)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			labels.Set(x, y, int(r.At(x, y, c)+0.5))
		}
	}
	return labels
}

// NormalizePixel scales one pixel's channel vector to sum to 1, leaving
// all-zero vectors untouched. Useful for classifiers emitting raw scores.
func (r *Raster) NormalizePixel(x, y int) {
	p := r.Pixel(x, y)
	sum := floats.Sum(p)
	if sum != 0 {
		floats.Scale(1/sum, p)
	}
}

// MaskClass returns the binary mask of pixels whose label value lies in the
// half-open interval [c-0.5, c+0.5], i.e. pixels labelled with channel c.
// The second return is false when no pixel qualifies.
func (l *Labels) MaskClass(c int) ([]bool, bool) {
	mask := make([]bool, len(l.data))
	any := false
	lo := float64(c) - 0.5
	hi := float64(c) + 0.5
	for i, v := range l.data {
		fv := float64(v)
		if fv >= lo && fv <= hi {
			mask[i] = true
			any = true
		}
	}
	return mask, any
}
