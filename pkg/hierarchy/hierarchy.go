// Package hierarchy maintains the tree of image objects produced by
// analysis: annotations and detections carrying a region of interest, an
// optional classification and measurements. A Hierarchy is safe for
// concurrent use and notifies registered listeners after each structural
// change.
package hierarchy

import (
	"sync"

	"github.com/google/uuid"

	"github.com/menta2k/slide-analyzer/pkg/roi"
)

// PathClass is a named classification with a display color.
type PathClass struct {
	Name  string   `json:"name"`
	Color [3]uint8 `json:"color,omitempty"`
}

// Kind distinguishes the object flavors in the tree.
type Kind string

const (
	KindRoot       Kind = "root"
	KindAnnotation Kind = "annotation"
	KindDetection  Kind = "detection"
)

// PathObject is one node of the hierarchy. Detections are the bulk output
// of pixel classification; annotations are coarser user-level regions.
// Children keep insertion order.
type PathObject struct {
	ID           uuid.UUID          `json:"id"`
	Kind         Kind               `json:"kind"`
	Name         string             `json:"name,omitempty"`
	Class        *PathClass         `json:"class,omitempty"`
	ROI          roi.ROI            `json:"-"`
	Locked       bool               `json:"locked,omitempty"`
	Measurements map[string]float64 `json:"measurements,omitempty"`

	children []*PathObject
}

// NewAnnotation creates an annotation object.
func NewAnnotation(r roi.ROI, class *PathClass) *PathObject {
	return &PathObject{ID: uuid.New(), Kind: KindAnnotation, Class: class, ROI: r}
}

// NewDetection creates a detection object.
func NewDetection(r roi.ROI, class *PathClass) *PathObject {
	return &PathObject{ID: uuid.New(), Kind: KindDetection, Class: class, ROI: r}
}

// HasROI reports whether the object carries a non-empty region.
func (o *PathObject) HasROI() bool { return !o.ROI.IsEmpty() }

// IsAnnotation reports whether the object is an annotation.
func (o *PathObject) IsAnnotation() bool { return o.Kind == KindAnnotation }

// IsDetection reports whether the object is a detection.
func (o *PathObject) IsDetection() bool { return o.Kind == KindDetection }

// Children returns a snapshot of the object's direct children.
func (o *PathObject) Children() []*PathObject {
	out := make([]*PathObject, len(o.children))
	copy(out, o.children)
	return out
}

// AddMeasurement records a named numeric measurement on the object.
func (o *PathObject) AddMeasurement(name string, value float64) {
	if o.Measurements == nil {
		o.Measurements = make(map[string]float64)
	}
	o.Measurements[name] = value
}

// Event describes one structural change. Target is the parent whose
// subtree changed; for whole-hierarchy changes it is the root object.
type Event struct {
	Target  *PathObject
	Added   []*PathObject
	Removed []*PathObject
}

// Listener receives change events. Listeners run after the hierarchy lock
// is released, so they may call back into the hierarchy.
type Listener func(Event)

// Hierarchy is the shared object tree for one image.
type Hierarchy struct {
	mu        sync.RWMutex
	root      *PathObject
	selection []*PathObject
	listeners []Listener
}

// New creates an empty hierarchy.
func New() *Hierarchy {
	return &Hierarchy{root: &PathObject{ID: uuid.New(), Kind: KindRoot}}
}

// Root returns the root object. Its children are the top-level objects.
func (h *Hierarchy) Root() *PathObject {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.root
}

// AddListener registers a change listener.
func (h *Hierarchy) AddListener(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, l)
}

func (h *Hierarchy) notify(ev Event) {
	h.mu.RLock()
	ls := make([]Listener, len(h.listeners))
	copy(ls, h.listeners)
	h.mu.RUnlock()
	for _, l := range ls {
		l(ev)
	}
}

// AddObjects inserts objects under the root and fires a single event.
func (h *Hierarchy) AddObjects(objs []*PathObject) {
	if len(objs) == 0 {
		return
	}
	h.mu.Lock()
	h.root.children = append(h.root.children, objs...)
	target := h.root
	h.mu.Unlock()

	h.notify(Event{Target: target, Added: append([]*PathObject{}, objs...)})
}

// ReplaceChildren atomically removes the existing children of target and
// inserts the given objects in their place, firing one event scoped to
// target. A nil target means the root. A non-root target is locked as part
// of the same commit, so callers observe the lock and the new children
// together. Replacement is idempotent: running the same commit twice
// leaves the same objects, never an accumulation.
func (h *Hierarchy) ReplaceChildren(target *PathObject, objs []*PathObject) {
	h.mu.Lock()
	if target == nil {
		target = h.root
	}
	removed := target.children
	target.children = append([]*PathObject{}, objs...)
	if target != h.root {
		target.Locked = true
	}
	h.pruneSelectionLocked(removed)
	h.mu.Unlock()

	h.notify(Event{
		Target:  target,
		Added:   append([]*PathObject{}, objs...),
		Removed: removed,
	})
}

// RemoveObject detaches one top-level object. Returns false when the
// object is not a direct child of the root.
func (h *Hierarchy) RemoveObject(obj *PathObject) bool {
	h.mu.Lock()
	idx := -1
	for i, c := range h.root.children {
		if c == obj {
			idx = i
			break
		}
	}
	if idx < 0 {
		h.mu.Unlock()
		return false
	}
	h.root.children = append(h.root.children[:idx], h.root.children[idx+1:]...)
	h.pruneSelectionLocked([]*PathObject{obj})
	target := h.root
	h.mu.Unlock()

	h.notify(Event{Target: target, Removed: []*PathObject{obj}})
	return true
}

// ClearAll removes every object and clears the selection.
func (h *Hierarchy) ClearAll() {
	h.mu.Lock()
	removed := h.root.children
	h.root.children = nil
	h.selection = nil
	target := h.root
	h.mu.Unlock()

	h.notify(Event{Target: target, Removed: removed})
}

// Objects returns a depth-first snapshot of all objects below the root.
func (h *Hierarchy) Objects() []*PathObject {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*PathObject
	var walk func(o *PathObject)
	walk = func(o *PathObject) {
		for _, c := range o.children {
			out = append(out, c)
			walk(c)
		}
	}
	walk(h.root)
	return out
}

// Annotations returns all annotation objects.
func (h *Hierarchy) Annotations() []*PathObject {
	return h.filter(func(o *PathObject) bool { return o.IsAnnotation() })
}

// Detections returns all detection objects.
func (h *Hierarchy) Detections() []*PathObject {
	return h.filter(func(o *PathObject) bool { return o.IsDetection() })
}

func (h *Hierarchy) filter(keep func(*PathObject) bool) []*PathObject {
	all := h.Objects()
	out := all[:0]
	for _, o := range all {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

// Len returns the total object count, excluding the root.
func (h *Hierarchy) Len() int {
	return len(h.Objects())
}

// SetSelection replaces the current selection.
func (h *Hierarchy) SetSelection(objs []*PathObject) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.selection = append([]*PathObject{}, objs...)
}

// SelectedObjects returns a snapshot of the current selection.
func (h *Hierarchy) SelectedObjects() []*PathObject {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*PathObject, len(h.selection))
	copy(out, h.selection)
	return out
}

// ClearSelection empties the selection without touching objects.
func (h *Hierarchy) ClearSelection() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.selection = nil
}

// pruneSelectionLocked drops removed objects and their descendants from
// the selection. Caller holds the write lock.
func (h *Hierarchy) pruneSelectionLocked(removed []*PathObject) {
	if len(h.selection) == 0 || len(removed) == 0 {
		return
	}
	gone := make(map[uuid.UUID]bool, len(removed))
	var mark func(o *PathObject)
	mark = func(o *PathObject) {
		gone[o.ID] = true
		for _, c := range o.children {
			mark(c)
		}
	}
	for _, o := range removed {
		mark(o)
	}
	kept := h.selection[:0]
	for _, o := range h.selection {
		if !gone[o.ID] {
			kept = append(kept, o)
		}
	}
	h.selection = kept
}
