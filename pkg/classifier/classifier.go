// Package classifier defines the pixel classification contract used by the
// tile executor: a classifier declares how tiles must be fetched (size,
// resolution, padding) and converts a tile image into a per-channel
// response raster. Implementations range from a local intensity threshold
// to a remote vision model.
package classifier

import (
	"context"
	"fmt"
	"image"

	"github.com/menta2k/slide-analyzer/pkg/raster"
)

// OutputType describes how a classifier's raster is interpreted.
type OutputType string

const (
	// OutputProbability rasters carry one soft response per channel;
	// labels are derived by per-pixel argmax.
	OutputProbability OutputType = "probability"
	// OutputClassification rasters carry hard label values in channel 0.
	OutputClassification OutputType = "classification"
)

// Channel names one output class. Ignored channels never produce objects.
type Channel struct {
	Name    string   `json:"name"`
	Color   [3]uint8 `json:"color,omitempty"`
	Ignored bool     `json:"ignored,omitempty"`
}

// Metadata declares a classifier's input requirements and output layout.
type Metadata struct {
	// InputWidth and InputHeight are the tile dimensions, in pixels at the
	// classification resolution.
	InputWidth  int `json:"inputWidth"`
	InputHeight int `json:"inputHeight"`
	// InputDownsample is the resolution the classifier operates at,
	// relative to the full-resolution image.
	InputDownsample float64 `json:"inputDownsample"`
	// Padding is the number of context pixels required on each side of a
	// tile. The executor fetches padded tiles and the classifier returns
	// rasters of the unpadded size.
	Padding    int        `json:"padding"`
	OutputType OutputType `json:"outputType"`
	Channels   []Channel  `json:"channels"`
}

// Validate checks the metadata for internal consistency.
func (m Metadata) Validate() error {
	if m.InputWidth <= 0 || m.InputHeight <= 0 {
		return fmt.Errorf("invalid input shape %dx%d", m.InputWidth, m.InputHeight)
	}
	if m.InputDownsample <= 0 {
		return fmt.Errorf("invalid input downsample %v", m.InputDownsample)
	}
	if m.Padding < 0 {
		return fmt.Errorf("negative padding %d", m.Padding)
	}
	if len(m.Channels) == 0 {
		return fmt.Errorf("no output channels")
	}
	if m.OutputType != OutputProbability && m.OutputType != OutputClassification {
		return fmt.Errorf("unknown output type %q", m.OutputType)
	}
	return nil
}

// Classifier converts tile images into classification rasters.
type Classifier interface {
	// Metadata returns the classifier's input and output contract.
	Metadata() Metadata
	// Classify processes one tile image, which includes Metadata().Padding
	// context pixels on every side, and returns a raster of the unpadded
	// tile size.
	Classify(ctx context.Context, img *image.NRGBA) (*raster.Raster, error)
}

// IntensityClassifier assigns each pixel to a band of mean RGB intensity.
// Cutpoints split [0,255] into len(Cutpoints)+1 bands, one output channel
// per band. The output is a hard classification.
type IntensityClassifier struct {
	TileWidth  int
	TileHeight int
	Downsample float64
	Cutpoints  []float64
	Bands      []Channel
}

// Metadata implements Classifier.
func (c *IntensityClassifier) Metadata() Metadata {
	return Metadata{
		InputWidth:      c.TileWidth,
		InputHeight:     c.TileHeight,
		InputDownsample: c.Downsample,
		Padding:         0,
		OutputType:      OutputClassification,
		Channels:        c.Bands,
	}
}

// Classify implements Classifier.
func (c *IntensityClassifier) Classify(ctx context.Context, img *image.NRGBA) (*raster.Raster, error) {
	if len(c.Bands) != len(c.Cutpoints)+1 {
		return nil, fmt.Errorf("intensity classifier needs %d bands for %d cutpoints, has %d",
			len(c.Cutpoints)+1, len(c.Cutpoints), len(c.Bands))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	out := raster.New(b.Dx(), b.Dy(), 1)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			px := img.NRGBAAt(b.Min.X+x, b.Min.Y+y)
			mean := (float64(px.R) + float64(px.G) + float64(px.B)) / 3
			label := 0
			for _, cut := range c.Cutpoints {
				if mean >= cut {
					label++
				}
			}
			out.Set(x, y, 0, float64(label))
		}
	}
	return out, nil
}
