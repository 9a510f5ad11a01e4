// Package pyramid describes the resolution levels of a multi-resolution image.
//
// A pyramid is built once from the level dimensions reported by a slide
// backend and is immutable afterwards. Backends report per-level widths and
// heights, which are authoritative; the scalar downsample for each level is
// always derived here rather than taken from the backend, because
// backend-reported per-axis downsamples can disagree and drift away from
// values that are morally exact integers (4.0000001 instead of 4.0).
package pyramid

import (
	"errors"
	"fmt"
	"math"
)

// ErrConfiguration indicates a malformed level description.
var ErrConfiguration = errors.New("invalid pyramid configuration")

// ResolutionLevel describes one level of an image pyramid.
type ResolutionLevel struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Downsample float64 `json:"downsample"`
}

// Model is an ordered, immutable set of resolution levels together with the
// full-resolution dimensions it was built from. Level 0 always has
// downsample 1.0 and the base dimensions; downsamples strictly increase.
type Model struct {
	baseWidth  int
	baseHeight int
	levels     []ResolutionLevel
}

// LevelDim is a width/height pair reported by a backend for one level.
type LevelDim struct {
	Width  int
	Height int
}

// Build constructs a pyramid model from backend-reported level dimensions.
//
// The downsample for level i is (baseWidth/w + baseHeight/h) / 2, averaging
// the two axis ratios. Level dimensions must be non-increasing in both axes
// and the first level must match the base dimensions.
func Build(baseWidth, baseHeight int, levelDims []LevelDim) (*Model, error) {
	if baseWidth <= 0 || baseHeight <= 0 {
		return nil, fmt.Errorf("%w: base dimensions %dx%d", ErrConfiguration, baseWidth, baseHeight)
	}
	if len(levelDims) == 0 {
		return nil, fmt.Errorf("%w: no levels", ErrConfiguration)
	}
	if levelDims[0].Width != baseWidth || levelDims[0].Height != baseHeight {
		return nil, fmt.Errorf("%w: level 0 is %dx%d but base is %dx%d",
			ErrConfiguration, levelDims[0].Width, levelDims[0].Height, baseWidth, baseHeight)
	}

	levels := make([]ResolutionLevel, 0, len(levelDims))
	prev := ResolutionLevel{Width: baseWidth + 1, Height: baseHeight + 1}
	for i, dim := range levelDims {
		if dim.Width <= 0 || dim.Height <= 0 {
			return nil, fmt.Errorf("%w: level %d is %dx%d", ErrConfiguration, i, dim.Width, dim.Height)
		}
		if dim.Width > prev.Width || dim.Height > prev.Height {
			return nil, fmt.Errorf("%w: level %d (%dx%d) larger than level %d (%dx%d)",
				ErrConfiguration, i, dim.Width, dim.Height, i-1, prev.Width, prev.Height)
		}
		downsample := (float64(baseWidth)/float64(dim.Width) + float64(baseHeight)/float64(dim.Height)) / 2
		if i == 0 {
			downsample = 1.0
		} else if downsample <= prev.Downsample {
			return nil, fmt.Errorf("%w: downsample %f at level %d does not increase",
				ErrConfiguration, downsample, i)
		}
		level := ResolutionLevel{Width: dim.Width, Height: dim.Height, Downsample: downsample}
		levels = append(levels, level)
		prev = level
	}

	return &Model{baseWidth: baseWidth, baseHeight: baseHeight, levels: levels}, nil
}

// BuildCropped derives a pyramid for a rectangular crop of the image this
// model was built from. Each level keeps the source level's downsample
// scalar; only the pixel counts are re-derived, by rounding
// newBase/downsample. A scanner's stated slide bounds must not perturb the
// downsample progression consumers rely on, so the scalars are reused
// rather than recomputed from the cropped dimensions.
func (m *Model) BuildCropped(newBaseWidth, newBaseHeight int) (*Model, error) {
	if newBaseWidth <= 0 || newBaseHeight <= 0 {
		return nil, fmt.Errorf("%w: cropped base dimensions %dx%d", ErrConfiguration, newBaseWidth, newBaseHeight)
	}
	levels := make([]ResolutionLevel, 0, len(m.levels))
	for _, src := range m.levels {
		levels = append(levels, ResolutionLevel{
			Width:      int(math.Round(float64(newBaseWidth) / src.Downsample)),
			Height:     int(math.Round(float64(newBaseHeight) / src.Downsample)),
			Downsample: src.Downsample,
		})
	}
	return &Model{baseWidth: newBaseWidth, baseHeight: newBaseHeight, levels: levels}, nil
}

// BaseWidth returns the full-resolution width the model was built from.
func (m *Model) BaseWidth() int { return m.baseWidth }

// BaseHeight returns the full-resolution height the model was built from.
func (m *Model) BaseHeight() int { return m.baseHeight }

// LevelCount returns the number of resolution levels.
func (m *Model) LevelCount() int { return len(m.levels) }

// Level returns the i-th resolution level.
func (m *Model) Level(i int) ResolutionLevel { return m.levels[i] }

// Levels returns a copy of all resolution levels.
func (m *Model) Levels() []ResolutionLevel {
	out := make([]ResolutionLevel, len(m.levels))
	copy(out, m.levels)
	return out
}

// Downsamples returns the downsample factor of every level, in order.
func (m *Model) Downsamples() []float64 {
	out := make([]float64, len(m.levels))
	for i, level := range m.levels {
		out[i] = level.Downsample
	}
	return out
}

// LevelForDownsample returns the index of the level best suited to serve a
// request at the given downsample: the highest level whose downsample does
// not exceed the requested one, so pixels are only ever downscaled.
func (m *Model) LevelForDownsample(downsample float64) int {
	best := 0
	for i, level := range m.levels {
		if level.Downsample <= downsample+1e-6 {
			best = i
		} else {
			break
		}
	}
	return best
}
