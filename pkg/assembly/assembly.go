// Package assembly turns the per-class polygon fragments gathered by the
// executor into hierarchy objects: fragments are merged per class, filtered
// by area, optionally split into connected pieces and committed to the
// hierarchy as a single replacement batch.
package assembly

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/slide-analyzer/pkg/executor"
	"github.com/menta2k/slide-analyzer/pkg/hierarchy"
	"github.com/menta2k/slide-analyzer/pkg/roi"
)

// ObjectFactory builds one hierarchy object from a merged region.
type ObjectFactory func(r roi.ROI, class *hierarchy.PathClass) *hierarchy.PathObject

// DetectionFactory creates unlocked detection objects, the default for
// pixel classification output.
func DetectionFactory(r roi.ROI, class *hierarchy.PathClass) *hierarchy.PathObject {
	return hierarchy.NewDetection(r, class)
}

// AnnotationFactory creates locked annotation objects, for workflows that
// promote classification output to editable regions.
func AnnotationFactory(r roi.ROI, class *hierarchy.PathClass) *hierarchy.PathObject {
	obj := hierarchy.NewAnnotation(r, class)
	obj.Locked = true
	return obj
}

// Options tunes assembly.
type Options struct {
	// MinAreaPixels drops merged pieces smaller than this area, judged
	// piece by piece for multi-piece regions. Zero keeps everything.
	MinAreaPixels float64
	// Split emits one object per connected piece instead of one composite
	// object per class.
	Split bool
	// Factory builds the committed objects; nil means DetectionFactory.
	Factory ObjectFactory
	Log     *logrus.Logger
}

// AssembleAndCommit merges fragments per class, applies the area filter and
// commits the resulting objects to the hierarchy in one atomic replacement
// of target's children (target nil means the hierarchy root). Classes whose
// regions vanish entirely are omitted, not errors. Returns the number of
// committed objects.
func AssembleAndCommit(res *executor.Result, h *hierarchy.Hierarchy, target *hierarchy.PathObject, opts Options) (int, error) {
	factory := opts.Factory
	if factory == nil {
		factory = DetectionFactory
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	var objects []*hierarchy.PathObject
	for _, ch := range res.Channels {
		if ch.Ignored {
			continue
		}
		frags := res.Fragments[ch.Name]
		if len(frags) == 0 {
			log.WithField("class", ch.Name).Debug("no fragments for class")
			continue
		}
		merged, err := roi.UnionAll(frags)
		if err != nil {
			return 0, fmt.Errorf("merge class %q: %w", ch.Name, err)
		}
		merged = merged.RemoveSmallPieces(opts.MinAreaPixels)
		if merged.IsEmpty() {
			log.WithField("class", ch.Name).Debug("class vanished below the area filter")
			continue
		}

		class := &hierarchy.PathClass{Name: ch.Name, Color: ch.Color}
		regions := []roi.ROI{merged}
		if opts.Split {
			regions = merged.Split()
		}
		for _, r := range regions {
			obj := factory(r, class)
			obj.AddMeasurement("Area", r.Area())
			objects = append(objects, obj)
		}
	}

	h.ReplaceChildren(target, objects)
	log.WithField("objects", len(objects)).Info("committed classification objects")
	return len(objects), nil
}
