package assembly

import (
	"github.com/menta2k/slide-analyzer/pkg/hierarchy"
	"github.com/menta2k/slide-analyzer/pkg/roi"
)

// DuplicateSelected creates an annotation for every selected object that
// carries a region. In bbox mode the new annotation covers the object's
// bounding box; otherwise it shares the object's region, and objects that
// already are annotations are skipped. The duplicates are inserted as one
// batch; the return value is their count.
func DuplicateSelected(h *hierarchy.Hierarchy, bbox bool) (int, error) {
	var created []*hierarchy.PathObject
	for _, obj := range h.SelectedObjects() {
		if !obj.HasROI() {
			continue
		}
		if obj.IsAnnotation() && !bbox {
			continue
		}
		r := obj.ROI
		if bbox {
			x, y, w, h := r.Bounds()
			var err error
			r, err = roi.NewRectangle(x, y, w, h, r.Plane())
			if err != nil {
				return 0, err
			}
		}
		dup := hierarchy.NewAnnotation(r, obj.Class)
		dup.Name = obj.Name
		created = append(created, dup)
	}
	if len(created) == 0 {
		return 0, nil
	}
	h.AddObjects(created)
	return len(created), nil
}
