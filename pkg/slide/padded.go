package slide

import (
	"fmt"
	"image"
	"math"

	"github.com/menta2k/slide-analyzer/pkg/region"
)

// ReadPadded reads a region with `padding` extra destination pixels on every
// side, so the returned buffer measures (destWidth+2*padding) by
// (destHeight+2*padding).
//
// The padding is defined in destination pixels: with padding 5 at downsample
// 4, twenty source pixels are added in each direction. The expanded window
// is clamped to the image bounds and read with exactly one native read —
// native reads dominate the cost, so border strips are never re-read.
// Any clamped border is then filled by replicating the nearest valid row or
// column of the read buffer. Rows are replicated first and columns second,
// so corner blocks take the column replication value.
//
// Rounding: window corners are truncated toward zero; the per-edge
// destination-pixel deficit is round(clampedAmount / downsample).
func ReadPadded(r Reader, req region.Request, padding int) (*image.NRGBA, error) {
	if padding == 0 {
		return r.ReadRegion(req)
	}
	if padding < 0 {
		return nil, fmt.Errorf("%w: padding must be >= 0, got %d", ErrInvalidArgument, padding)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	downsample := req.Downsample
	x := int(float64(req.X) - float64(padding)*downsample)
	y := int(float64(req.Y) - float64(padding)*downsample)
	x2 := int(float64(req.X+req.Width) + float64(padding)*downsample)
	y2 := int(float64(req.Y+req.Height) + float64(padding)*downsample)

	var padLeft, padRight, padUp, padDown int
	outOfRange := false
	if x < 0 {
		padLeft = int(math.Round(float64(-x) / downsample))
		x = 0
		outOfRange = true
	}
	if y < 0 {
		padUp = int(math.Round(float64(-y) / downsample))
		y = 0
		outOfRange = true
	}
	if x2 > r.Width() {
		padRight = int(math.Round(float64(x2-r.Width()) / downsample))
		x2 = r.Width()
		outOfRange = true
	}
	if y2 > r.Height() {
		padDown = int(math.Round(float64(y2-r.Height()) / downsample))
		y2 = r.Height()
		outOfRange = true
	}

	inner := region.Request{
		Path:       req.Path,
		Downsample: downsample,
		X:          x,
		Y:          y,
		Width:      x2 - x,
		Height:     y2 - y,
		Plane:      req.Plane,
	}
	img, err := r.ReadRegion(inner)
	if err != nil {
		return nil, err
	}
	if !outOfRange {
		return img, nil
	}

	srcW := img.Bounds().Dx()
	srcH := img.Bounds().Dy()
	padded := image.NewNRGBA(image.Rect(0, 0, srcW+padLeft+padRight, srcH+padUp+padDown))

	// Interior.
	for row := 0; row < srcH; row++ {
		copyPixels(padded, padLeft, padUp+row, img, 0, row, srcW)
	}
	// Replicate the first/last valid row above and below, spanning the
	// source width only; the corners are finished by the column pass.
	for row := 0; row < padUp; row++ {
		copyPixels(padded, padLeft, row, img, 0, 0, srcW)
	}
	for row := padUp + srcH; row < padded.Bounds().Dy(); row++ {
		copyPixels(padded, padLeft, row, img, 0, srcH-1, srcW)
	}
	// Replicate the first/last valid column across the full padded height.
	for col := 0; col < padLeft; col++ {
		copyColumn(padded, col, padLeft)
	}
	for col := padLeft + srcW; col < padded.Bounds().Dx(); col++ {
		copyColumn(padded, col, padLeft+srcW-1)
	}
	return padded, nil
}

// copyPixels copies n pixels of one row from src into dst.
func copyPixels(dst *image.NRGBA, dstX, dstY int, src *image.NRGBA, srcX, srcY, n int) {
	di := dst.PixOffset(dstX, dstY)
	si := src.PixOffset(srcX, srcY)
	copy(dst.Pix[di:di+n*4], src.Pix[si:si+n*4])
}

// copyColumn copies a full-height column within img from srcX to dstX.
func copyColumn(img *image.NRGBA, dstX, srcX int) {
	h := img.Bounds().Dy()
	for y := 0; y < h; y++ {
		di := img.PixOffset(dstX, y)
		si := img.PixOffset(srcX, y)
		copy(img.Pix[di:di+4], img.Pix[si:si+4])
	}
}
