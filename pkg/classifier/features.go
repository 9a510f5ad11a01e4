package classifier

import (
	"context"
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/menta2k/slide-analyzer/pkg/raster"
)

// FeatureCalculator converts a tile image into a per-pixel feature raster.
// The input image must include Padding() context pixels on every side; the
// output raster has the unpadded tile size.
type FeatureCalculator interface {
	// Padding returns the context pixels required on each side.
	Padding() int
	// FeaturesPerPixel returns the output channel count.
	FeaturesPerPixel() int
	// CalculateFeatures extracts features from a padded tile image.
	CalculateFeatures(img *image.NRGBA) (*raster.Raster, error)
}

// NeighborWindow extracts the raw RGB values of the (2*Radius+1)^2 window
// around each pixel, giving 3*(2r+1)^2 features per pixel.
type NeighborWindow struct {
	Radius int
}

// Padding implements FeatureCalculator.
func (n NeighborWindow) Padding() int { return n.Radius }

// FeaturesPerPixel implements FeatureCalculator.
func (n NeighborWindow) FeaturesPerPixel() int {
	side := 2*n.Radius + 1
	return 3 * side * side
}

// CalculateFeatures implements FeatureCalculator.
func (n NeighborWindow) CalculateFeatures(img *image.NRGBA) (*raster.Raster, error) {
	b := img.Bounds()
	w := b.Dx() - 2*n.Radius
	h := b.Dy() - 2*n.Radius
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("image %dx%d too small for radius %d", b.Dx(), b.Dy(), n.Radius)
	}
	out := raster.New(w, h, n.FeaturesPerPixel())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := 0
			for dy := -n.Radius; dy <= n.Radius; dy++ {
				for dx := -n.Radius; dx <= n.Radius; dx++ {
					px := img.NRGBAAt(b.Min.X+x+n.Radius+dx, b.Min.Y+y+n.Radius+dy)
					out.Set(x, y, c, float64(px.R)/255)
					out.Set(x, y, c+1, float64(px.G)/255)
					out.Set(x, y, c+2, float64(px.B)/255)
					c += 3
				}
			}
		}
	}
	return out, nil
}

// Filter is one convolution kernel of a filter bank. The kernel must be
// square with odd side length.
type Filter struct {
	Name   string
	Kernel [][]float64
}

func (f Filter) radius() int { return len(f.Kernel) / 2 }

// FilterBank convolves each filter with the grayscale intensity of the
// tile, one output channel per filter. Padding is the largest kernel
// radius in the bank.
type FilterBank struct {
	Filters []Filter
}

// Padding implements FeatureCalculator.
func (fb FilterBank) Padding() int {
	max := 0
	for _, f := range fb.Filters {
		if r := f.radius(); r > max {
			max = r
		}
	}
	return max
}

// FeaturesPerPixel implements FeatureCalculator.
func (fb FilterBank) FeaturesPerPixel() int { return len(fb.Filters) }

// CalculateFeatures implements FeatureCalculator.
func (fb FilterBank) CalculateFeatures(img *image.NRGBA) (*raster.Raster, error) {
	pad := fb.Padding()
	b := img.Bounds()
	w := b.Dx() - 2*pad
	h := b.Dy() - 2*pad
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("image %dx%d too small for padding %d", b.Dx(), b.Dy(), pad)
	}
	for _, f := range fb.Filters {
		side := len(f.Kernel)
		if side == 0 || side%2 == 0 {
			return nil, fmt.Errorf("filter %q: kernel side %d must be odd", f.Name, side)
		}
		for _, row := range f.Kernel {
			if len(row) != side {
				return nil, fmt.Errorf("filter %q: kernel is not square", f.Name)
			}
		}
	}

	gray := make([]float64, b.Dx()*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			px := img.NRGBAAt(b.Min.X+x, b.Min.Y+y)
			gray[y*b.Dx()+x] = (float64(px.R) + float64(px.G) + float64(px.B)) / (3 * 255)
		}
	}

	out := raster.New(w, h, len(fb.Filters))
	for c, f := range fb.Filters {
		r := f.radius()
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var sum float64
				for ky := -r; ky <= r; ky++ {
					for kx := -r; kx <= r; kx++ {
						gx := x + pad + kx
						gy := y + pad + ky
						sum += f.Kernel[ky+r][kx+r] * gray[gy*b.Dx()+gx]
					}
				}
				out.Set(x, y, c, sum)
			}
		}
	}
	return out, nil
}

// GaussianFilter builds a normalized Gaussian smoothing kernel with the
// given radius and sigma.
func GaussianFilter(name string, radius int, sigma float64) Filter {
	side := 2*radius + 1
	kernel := make([][]float64, side)
	var total float64
	for y := 0; y < side; y++ {
		kernel[y] = make([]float64, side)
		for x := 0; x < side; x++ {
			dx := float64(x - radius)
			dy := float64(y - radius)
			v := math.Exp(-(dx*dx + dy*dy) / (2 * sigma * sigma))
			kernel[y][x] = v
			total += v
		}
	}
	for y := range kernel {
		floats.Scale(1/total, kernel[y])
	}
	return Filter{Name: name, Kernel: kernel}
}

// LinearClassifier scores feature vectors with one weight vector and bias
// per output channel, then normalizes the scores per pixel. The features
// come from an embedded FeatureCalculator, whose padding requirement it
// inherits.
type LinearClassifier struct {
	Features   FeatureCalculator
	Weights    [][]float64
	Biases     []float64
	TileWidth  int
	TileHeight int
	Downsample float64
	Classes    []Channel
}

// Metadata implements Classifier.
func (c *LinearClassifier) Metadata() Metadata {
	return Metadata{
		InputWidth:      c.TileWidth,
		InputHeight:     c.TileHeight,
		InputDownsample: c.Downsample,
		Padding:         c.Features.Padding(),
		OutputType:      OutputProbability,
		Channels:        c.Classes,
	}
}

// Classify implements Classifier.
func (c *LinearClassifier) Classify(ctx context.Context, img *image.NRGBA) (*raster.Raster, error) {
	if len(c.Weights) != len(c.Classes) || len(c.Biases) != len(c.Classes) {
		return nil, fmt.Errorf("have %d classes but %d weight vectors and %d biases",
			len(c.Classes), len(c.Weights), len(c.Biases))
	}
	feats, err := c.Features.CalculateFeatures(img)
	if err != nil {
		return nil, err
	}
	nf := c.Features.FeaturesPerPixel()
	for _, w := range c.Weights {
		if len(w) != nf {
			return nil, fmt.Errorf("weight vector length %d does not match %d features", len(w), nf)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := raster.New(feats.Width, feats.Height, len(c.Classes))
	for y := 0; y < feats.Height; y++ {
		for x := 0; x < feats.Width; x++ {
			v := feats.Pixel(x, y)
			for ci := range c.Classes {
				// Scores are exponentiated so normalization behaves like a
				// softmax over the linear responses.
				score := math.Exp(floats.Dot(c.Weights[ci], v) + c.Biases[ci])
				out.Set(x, y, ci, score)
			}
			out.NormalizePixel(x, y)
		}
	}
	return out, nil
}
