// Package slideanalyzer provides multi-resolution slide access and parallel
// pixel classification.
//
// The package reads pyramidal whole-slide images through a uniform region
// API, runs a pixel classifier over the slide tile by tile and assembles
// the per-tile results into merged polygon objects in a shared hierarchy.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		slideanalyzer "github.com/menta2k/slide-analyzer"
//	)
//
//	func main() {
//		analyzer := slideanalyzer.New()
//
//		// Open a slide
//		reader, err := analyzer.OpenSlide("slide.tiff")
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer reader.Close()
//
//		// Classify it and commit the detected regions
//		result, err := analyzer.Run(context.Background(), reader, nil)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		fmt.Printf("Committed %d objects from %d tiles\n",
//			result.Objects, result.TilesProcessed)
//	}
//
// The package consists of five main components:
//
// 1. Pyramid (pkg/pyramid): Resolution level model with derived downsamples
// 2. Region (pkg/region): Region requests and tile addressing
// 3. Slide (pkg/slide): Slide readers, properties and padded region reads
// 4. Executor (pkg/executor): Parallel per-tile classification
// 5. Assembly (pkg/assembly): Merging, filtering and hierarchy commit
//
// Classifiers live in pkg/classifier and range from a local intensity
// threshold to a remote vision model served over the ollama API.
package slideanalyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/slide-analyzer/internal/config"
	"github.com/menta2k/slide-analyzer/pkg/assembly"
	"github.com/menta2k/slide-analyzer/pkg/classifier"
	"github.com/menta2k/slide-analyzer/pkg/executor"
	"github.com/menta2k/slide-analyzer/pkg/hierarchy"
	"github.com/menta2k/slide-analyzer/pkg/roi"
	"github.com/menta2k/slide-analyzer/pkg/slide"
)

// Version of the slide analyzer library
const Version = "1.0.0"

// SlideAnalyzer provides a high-level interface for slide classification
type SlideAnalyzer struct {
	cfg  *config.Config
	log  *logrus.Logger
	tree *hierarchy.Hierarchy
}

// New creates a new SlideAnalyzer with default configuration
func New() *SlideAnalyzer {
	a, _ := NewWithConfig(config.Default())
	return a
}

// NewWithConfig creates a new SlideAnalyzer with custom configuration
func NewWithConfig(cfg *config.Config) (*SlideAnalyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &SlideAnalyzer{
		cfg:  cfg,
		log:  logrus.StandardLogger(),
		tree: hierarchy.New(),
	}, nil
}

// SetLogger replaces the analyzer's logger
func (a *SlideAnalyzer) SetLogger(log *logrus.Logger) {
	a.log = log
}

// Hierarchy returns the shared object hierarchy
func (a *SlideAnalyzer) Hierarchy() *hierarchy.Hierarchy {
	return a.tree
}

// OpenSlide opens a slide file with the configured options
func (a *SlideAnalyzer) OpenSlide(path string) (slide.Reader, error) {
	return slide.Open(path, slide.FileOptions{MinLevelSize: a.cfg.Slide.MinLevelSize})
}

// BuildClassifier constructs the configured classification backend
func (a *SlideAnalyzer) BuildClassifier() (classifier.Classifier, error) {
	channels := make([]classifier.Channel, len(a.cfg.Classifier.Classes))
	for i, c := range a.cfg.Classifier.Classes {
		channels[i] = classifier.Channel{Name: c.Name, Color: c.Color, Ignored: c.Ignored}
	}

	switch a.cfg.Classifier.Backend {
	case "intensity":
		return &classifier.IntensityClassifier{
			TileWidth:  a.cfg.Slide.TileWidth,
			TileHeight: a.cfg.Slide.TileHeight,
			Downsample: a.cfg.Classifier.Downsample,
			Cutpoints:  a.cfg.Classifier.Cutpoints,
			Bands:      channels,
		}, nil
	case "ollama":
		return classifier.NewRemote(a.cfg.Classifier.OllamaURL, a.cfg.Classifier.Model,
			classifier.RemoteOptions{
				TileWidth:  a.cfg.Slide.TileWidth,
				TileHeight: a.cfg.Slide.TileHeight,
				Downsample: a.cfg.Classifier.Downsample,
				Classes:    channels,
				Log:        a.log,
			})
	default:
		return nil, fmt.Errorf("unknown classifier backend %q", a.cfg.Classifier.Backend)
	}
}

// RunResult summarizes one classification run
type RunResult struct {
	Objects        int `json:"objects"`
	TilesProcessed int `json:"tilesProcessed"`
	TilesSkipped   int `json:"tilesSkipped"`
}

// Run classifies the slide and commits the resulting objects to the
// hierarchy, replacing the output of any previous run. A non-nil clip
// restricts classification to that region.
func (a *SlideAnalyzer) Run(ctx context.Context, reader slide.Reader, clip *roi.ROI) (*RunResult, error) {
	cls, err := a.BuildClassifier()
	if err != nil {
		return nil, err
	}
	return a.RunWithClassifier(ctx, reader, cls, clip)
}

// RunWithClassifier classifies the slide with a caller-supplied classifier
func (a *SlideAnalyzer) RunWithClassifier(ctx context.Context, reader slide.Reader, cls classifier.Classifier, clip *roi.ROI) (*RunResult, error) {
	res, err := executor.ClassifyTiles(ctx, reader, cls, executor.Options{
		Workers: a.cfg.Executor.Workers,
		Clip:    clip,
		Log:     a.log,
	})
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	factory := assembly.DetectionFactory
	if a.cfg.Assembly.AsAnnotations {
		factory = assembly.AnnotationFactory
	}
	n, err := assembly.AssembleAndCommit(res, a.tree, nil, assembly.Options{
		MinAreaPixels: a.cfg.Assembly.MinAreaPixels,
		Split:         a.cfg.Assembly.Split,
		Factory:       factory,
		Log:           a.log,
	})
	if err != nil {
		return nil, fmt.Errorf("assembly failed: %w", err)
	}

	return &RunResult{
		Objects:        n,
		TilesProcessed: res.TilesProcessed,
		TilesSkipped:   res.TilesSkipped,
	}, nil
}

// ObjectRecord is the serialized form of one hierarchy object
type ObjectRecord struct {
	ID       uuid.UUID          `json:"id"`
	Kind     hierarchy.Kind     `json:"kind"`
	Class    string             `json:"class,omitempty"`
	Area     float64            `json:"area"`
	Bounds   [4]float64         `json:"bounds"`
	Geometry string             `json:"geometry"`
	Measures map[string]float64 `json:"measurements,omitempty"`
}

// Records converts the current hierarchy objects to serializable records
func (a *SlideAnalyzer) Records() []ObjectRecord {
	objs := a.tree.Objects()
	records := make([]ObjectRecord, 0, len(objs))
	for _, obj := range objs {
		rec := ObjectRecord{
			ID:       obj.ID,
			Kind:     obj.Kind,
			Area:     obj.ROI.Area(),
			Geometry: obj.ROI.Geometry().AsText(),
			Measures: obj.Measurements,
		}
		if obj.Class != nil {
			rec.Class = obj.Class.Name
		}
		x, y, w, h := obj.ROI.Bounds()
		rec.Bounds = [4]float64{x, y, w, h}
		records = append(records, rec)
	}
	return records
}

// ExportJSON writes the hierarchy objects as indented JSON
func (a *SlideAnalyzer) ExportJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a.Records())
}

// ExportWKT writes one WKT geometry per line, prefixed with the class name
func (a *SlideAnalyzer) ExportWKT(w io.Writer) error {
	for _, rec := range a.Records() {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", rec.Class, rec.Geometry); err != nil {
			return err
		}
	}
	return nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
