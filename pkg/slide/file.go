package slide

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/menta2k/slide-analyzer/pkg/pyramid"
	"github.com/menta2k/slide-analyzer/pkg/region"
)

// FileOptions configures the file-backed reader.
type FileOptions struct {
	// Properties is the backend property map; well-known keys control
	// calibration, background color and bounds cropping.
	Properties map[string]string

	// MinLevelSize stops pyramid synthesis once both dimensions of the next
	// level would fall below it. Defaults to 256.
	MinLevelSize int

	// Associated holds named associated images (label, macro, ...).
	Associated map[string]image.Image
}

// FileSlide serves a regular image file as a pyramidal slide. Levels are
// synthesized by successive halving, so the reader behaves like a native
// multi-level backend from the pipeline's point of view. All levels are held
// in memory; reads are safe for concurrent use.
type FileSlide struct {
	path       string
	levels     []*image.NRGBA
	model      *pyramid.Model
	properties map[string]string
	background *color.NRGBA
	bounds     Bounds
	associated map[string]image.Image
	closed     bool
}

// Open decodes an image file and builds a pyramid over it.
//
// The decode stack tries the registered decoders first and falls back to an
// explicit WebP decode, mirroring the formats the rest of the module emits.
// Construction performs a thumbnail self-test: if that read fails the
// reader is closed and an error wrapping ErrIO is returned, so a caller can
// fall back to another backend.
func Open(path string, opts FileOptions) (*FileSlide, error) {
	img, err := decodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIO, path, err)
	}
	return NewFromImage(img, path, opts)
}

// NewFromImage builds a file-backed reader over an already-decoded image.
func NewFromImage(img image.Image, path string, opts FileOptions) (*FileSlide, error) {
	if opts.MinLevelSize <= 0 {
		opts.MinLevelSize = 256
	}
	if opts.Properties == nil {
		opts.Properties = map[string]string{}
	}

	base := imaging.Clone(img)
	width := base.Bounds().Dx()
	height := base.Bounds().Dy()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: empty image %s", ErrIO, path)
	}

	// Synthesize levels by halving until the next level would be too small.
	levels := []*image.NRGBA{base}
	dims := []pyramid.LevelDim{{Width: width, Height: height}}
	for {
		last := levels[len(levels)-1]
		w := last.Bounds().Dx() / 2
		h := last.Bounds().Dy() / 2
		if w < opts.MinLevelSize && h < opts.MinLevelSize {
			break
		}
		if w < 1 || h < 1 {
			break
		}
		next := imaging.Resize(last, w, h, imaging.Lanczos)
		levels = append(levels, next)
		dims = append(dims, pyramid.LevelDim{Width: w, Height: h})
	}

	model, err := pyramid.Build(width, height, dims)
	if err != nil {
		return nil, err
	}

	s := &FileSlide{
		path:       path,
		levels:     levels,
		model:      model,
		properties: opts.Properties,
		bounds:     Bounds{Width: width, Height: height},
		associated: opts.Associated,
	}

	if bg, ok := BackgroundColor(opts.Properties); ok {
		s.background = &bg
	}

	// Apply a stated bounds rectangle, re-deriving the pyramid for the crop
	// while keeping the full-canvas downsample progression.
	if b, ok := BoundsFromProperties(opts.Properties); ok && (b.Width != width || b.Height != height) {
		cropped, err := model.BuildCropped(b.Width, b.Height)
		if err != nil {
			s.release()
			return nil, err
		}
		s.bounds = b
		s.model = cropped
	}

	// Thumbnail self-test: fail construction early rather than on first use.
	if _, err := s.Thumbnail(200, 200); err != nil {
		s.release()
		return nil, fmt.Errorf("%w: thumbnail self-test for %s: %v", ErrIO, path, err)
	}
	logrus.WithFields(logrus.Fields{
		"path":   path,
		"levels": s.model.LevelCount(),
		"size":   fmt.Sprintf("%dx%d", s.Width(), s.Height()),
	}).Info("opened slide")

	return s, nil
}

func decodeFile(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if img, _, err := image.Decode(f); err == nil {
		return img, nil
	}
	if _, err := f.Seek(0, 0); err == nil {
		if strings.Contains(strings.ToLower(path), ".webp") {
			if img, err := webp.Decode(f); err == nil {
				return img, nil
			}
		}
	}
	return nil, fmt.Errorf("unknown image format for %s", path)
}

// Path implements Reader.
func (s *FileSlide) Path() string { return s.path }

// Width implements Reader; the bounds-cropped width when bounds are stated.
func (s *FileSlide) Width() int { return s.model.BaseWidth() }

// Height implements Reader.
func (s *FileSlide) Height() int { return s.model.BaseHeight() }

// Pyramid implements Reader.
func (s *FileSlide) Pyramid() *pyramid.Model { return s.model }

// Properties implements Reader.
func (s *FileSlide) Properties() map[string]string { return s.properties }

// AssociatedImageNames implements AssociatedImageReader.
func (s *FileSlide) AssociatedImageNames() []string {
	names := make([]string, 0, len(s.associated))
	for name := range s.associated {
		names = append(names, name)
	}
	return names
}

// AssociatedImage implements AssociatedImageReader.
func (s *FileSlide) AssociatedImage(name string) (image.Image, error) {
	img, ok := s.associated[name]
	if !ok {
		return nil, fmt.Errorf("%w: no associated image %q", ErrInvalidArgument, name)
	}
	return img, nil
}

// ReadRegion implements Reader.
//
// The request is in full-resolution units relative to the cropped origin.
// The region is read from the pyramid level serving the request downsample,
// composited over the slide's background color, and resampled to the
// destination size. Portions outside the image remain background-colored;
// the padded reader never requests them.
func (s *FileSlide) ReadRegion(req region.Request) (*image.NRGBA, error) {
	if s.closed {
		return nil, fmt.Errorf("%w: reader closed", ErrIO)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	destW := req.DestWidth()
	destH := req.DestHeight()
	if destW < 1 || destH < 1 {
		return nil, fmt.Errorf("%w: destination %dx%d", ErrInvalidArgument, destW, destH)
	}

	level := s.model.LevelForDownsample(req.Downsample)
	dim := s.model.Level(level)
	src := s.levels[level]

	// Source rectangle in level coordinates of the full canvas.
	lx := int(math.Floor(float64(req.X+s.bounds.X) / dim.Downsample))
	ly := int(math.Floor(float64(req.Y+s.bounds.Y) / dim.Downsample))
	lw := int(math.Round(float64(req.Width) / dim.Downsample))
	lh := int(math.Round(float64(req.Height) / dim.Downsample))
	if lw < 1 {
		lw = 1
	}
	if lh < 1 {
		lh = 1
	}

	out := image.NewNRGBA(image.Rect(0, 0, lw, lh))
	if s.background != nil {
		draw.Draw(out, out.Bounds(), &image.Uniform{*s.background}, image.Point{}, draw.Src)
	}
	srcRect := image.Rect(lx, ly, lx+lw, ly+lh).Intersect(src.Bounds())
	if !srcRect.Empty() {
		draw.Draw(out, srcRect.Sub(image.Pt(lx, ly)), src, srcRect.Min, draw.Over)
	}

	if lw != destW || lh != destH {
		out = imaging.Resize(out, destW, destH, imaging.Lanczos)
	}
	return out, nil
}

// Thumbnail reads a whole-image overview fitting inside maxWidth x maxHeight.
func (s *FileSlide) Thumbnail(maxWidth, maxHeight int) (*image.NRGBA, error) {
	if s.closed {
		return nil, fmt.Errorf("%w: reader closed", ErrIO)
	}
	if maxWidth < 1 || maxHeight < 1 {
		return nil, fmt.Errorf("%w: thumbnail size %dx%d", ErrInvalidArgument, maxWidth, maxHeight)
	}
	downsample := math.Max(
		float64(s.Width())/float64(maxWidth),
		float64(s.Height())/float64(maxHeight))
	if downsample < 1 {
		downsample = 1
	}
	img, err := s.ReadRegion(region.NewRequest(s.path, downsample, 0, 0, s.Width(), s.Height()))
	if err != nil {
		return nil, err
	}
	return imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos), nil
}

// Close implements Reader, releasing the level buffers. Close is safe to
// call more than once.
func (s *FileSlide) Close() error {
	s.release()
	return nil
}

func (s *FileSlide) release() {
	s.levels = nil
	s.closed = true
}
