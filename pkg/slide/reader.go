// Package slide provides read access to pyramidal whole-slide images
// through a narrow region-read contract, together with padded region reads
// that replicate edge pixels for requests extending past the image bounds.
//
// The package ships a file-backed reader that serves any decodable image as
// a synthesized pyramid. Native backends (OpenSlide and friends) plug in by
// implementing Reader; everything downstream only sees the contract.
package slide

import (
	"errors"
	"image"
	"sync"

	"github.com/menta2k/slide-analyzer/pkg/pyramid"
	"github.com/menta2k/slide-analyzer/pkg/region"
)

var (
	// ErrInvalidArgument indicates a malformed read request, such as
	// negative padding or non-positive region dimensions.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIO indicates a decode or read failure in the backing image.
	ErrIO = errors.New("slide read failed")
)

// Reader is the native read contract consumed by the classification
// pipeline. Implementations must either support concurrent ReadRegion
// calls or be wrapped with Serialized.
type Reader interface {
	// ReadRegion reads the requested full-resolution region, resampled to
	// the request's downsample. The returned buffer has the request's
	// destination dimensions.
	ReadRegion(req region.Request) (*image.NRGBA, error)

	// Path identifies the image this reader serves.
	Path() string

	// Width is the full-resolution image width (after bounds cropping).
	Width() int

	// Height is the full-resolution image height (after bounds cropping).
	Height() int

	// Pyramid describes the reader's resolution levels.
	Pyramid() *pyramid.Model

	// Properties exposes the raw backend property map.
	Properties() map[string]string

	// Close releases the underlying handle. The reader is unusable afterwards.
	Close() error
}

// AssociatedImageReader is implemented by backends that carry named
// associated images (label, macro, thumbnail) alongside the pyramid.
type AssociatedImageReader interface {
	AssociatedImageNames() []string
	AssociatedImage(name string) (image.Image, error)
}

// serializedReader wraps a Reader whose backend is not safe for concurrent
// reads, funnelling every ReadRegion through one mutex. Post-processing of
// the returned buffers stays fully parallel.
type serializedReader struct {
	Reader
	mu sync.Mutex
}

// Serialized returns a Reader that serializes ReadRegion calls on r.
func Serialized(r Reader) Reader {
	return &serializedReader{Reader: r}
}

func (s *serializedReader) ReadRegion(req region.Request) (*image.NRGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Reader.ReadRegion(req)
}
