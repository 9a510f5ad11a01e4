// Package executor runs a pixel classifier over a slide tile by tile: it
// fans tiles out to a bounded worker pool, reads each tile with the
// classifier's declared padding, converts the resulting rasters into
// per-class polygon fragments in full-resolution coordinates and gathers
// them for assembly. Individual tile failures are logged and skipped;
// cancellation aborts the whole run with no partial result.
package executor

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/slide-analyzer/pkg/classifier"
	"github.com/menta2k/slide-analyzer/pkg/raster"
	"github.com/menta2k/slide-analyzer/pkg/region"
	"github.com/menta2k/slide-analyzer/pkg/roi"
	"github.com/menta2k/slide-analyzer/pkg/slide"
)

// Options tunes a classification run.
type Options struct {
	// Workers bounds the number of tiles processed concurrently.
	// Zero means one worker per CPU.
	Workers int
	// Clip restricts the run to tiles intersecting this region and clips
	// every fragment against it. Nil means the whole slide.
	Clip *roi.ROI
	Log  *logrus.Logger
}

// Result carries the gathered fragments of one classification run.
type Result struct {
	// Fragments maps class names to polygon fragments in full-resolution
	// coordinates, at most one fragment per tile and class. Classes that
	// produced nothing are absent.
	Fragments map[string][]roi.ROI
	// Channels echoes the classifier's output channels, including ignored
	// ones, so assembly can attach names and colors.
	Channels []classifier.Channel
	// TilesProcessed and TilesSkipped count successful and failed tiles.
	TilesProcessed int
	TilesSkipped   int
}

// ClassifyTiles classifies every tile of the slide (or of the clip region)
// and returns the per-class fragments. Tile read or classification errors
// are logged with the tile identity and skipped; the run only fails as a
// whole on context cancellation or invalid classifier metadata. A clip
// overlapping no tile yields an empty result, not an error.
func ClassifyTiles(ctx context.Context, reader slide.Reader, cls classifier.Classifier, opts Options) (*Result, error) {
	md := cls.Metadata()
	if err := md.Validate(); err != nil {
		return nil, fmt.Errorf("classifier metadata: %w", err)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	tiles, err := planTiles(reader, md, opts.Clip)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"tiles":   len(tiles),
		"workers": workers,
		"path":    reader.Path(),
	}).Debug("starting tile classification")

	res := &Result{
		Fragments: make(map[string][]roi.ROI),
		Channels:  md.Channels,
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, tile := range tiles {
		g.Go(func() error {
			frags, err := classifyTile(gctx, reader, cls, md, tile, opts.Clip)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.WithFields(logrus.Fields{
					"tile":  tile.String(),
					"error": err,
				}).Warn("tile classification failed, skipping")
				mu.Lock()
				res.TilesSkipped++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			res.TilesProcessed++
			for name, frag := range frags {
				res.Fragments[name] = append(res.Fragments[name], frag)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// planTiles selects the tiles to classify, honoring the clip region.
func planTiles(reader slide.Reader, md classifier.Metadata, clip *roi.ROI) ([]region.Tile, error) {
	tiler := region.NewTiler(reader.Pyramid(), reader.Path(), md.InputWidth, md.InputHeight)
	if clip == nil || clip.IsEmpty() {
		return tiler.AllTiles(md.InputDownsample), nil
	}
	x, y, w, h := clip.Bounds()
	req := region.Request{
		Path:       reader.Path(),
		Downsample: md.InputDownsample,
		X:          int(x),
		Y:          int(y),
		Width:      int(w + 0.5),
		Height:     int(h + 0.5),
		Plane:      clip.Plane(),
	}
	return tiler.TilesForRegion(req)
}

// classifyTile processes one tile: padded read, classification, per-class
// polygon extraction and optional clipping.
func classifyTile(ctx context.Context, reader slide.Reader, cls classifier.Classifier, md classifier.Metadata, tile region.Tile, clip *roi.ROI) (map[string]roi.ROI, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := slide.ReadPadded(reader, tile.Region, md.Padding)
	if err != nil {
		return nil, fmt.Errorf("read tile: %w", err)
	}
	resp, err := cls.Classify(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("classify tile: %w", err)
	}

	labels, err := tileLabels(resp, md)
	if err != nil {
		return nil, err
	}

	tr := raster.Transform{
		Downsample: tile.Downsample(),
		TileX:      tile.TileX,
		TileY:      tile.TileY,
	}
	frags := make(map[string]roi.ROI)
	for c, ch := range md.Channels {
		if ch.Ignored {
			continue
		}
		frag, ok, err := labels.ClassROI(c, tr, tile.Region.Plane)
		if err != nil {
			return nil, fmt.Errorf("trace class %q: %w", ch.Name, err)
		}
		if !ok {
			continue
		}
		if clip != nil && !clip.IsEmpty() {
			frag, err = frag.Intersect(*clip)
			if err != nil {
				return nil, fmt.Errorf("clip class %q: %w", ch.Name, err)
			}
			if frag.IsEmpty() {
				continue
			}
		}
		frags[ch.Name] = frag
	}
	return frags, nil
}

// tileLabels derives the hard per-pixel labelling from a classifier
// response according to its declared output type.
func tileLabels(resp *raster.Raster, md classifier.Metadata) (*raster.Labels, error) {
	switch md.OutputType {
	case classifier.OutputProbability:
		if resp.Channels != len(md.Channels) {
			return nil, fmt.Errorf("raster has %d channels, metadata declares %d",
				resp.Channels, len(md.Channels))
		}
		return resp.Argmax()
	case classifier.OutputClassification:
		return resp.LabelsFromChannel(0), nil
	default:
		return nil, fmt.Errorf("unknown output type %q", md.OutputType)
	}
}
