package hierarchy

import (
	"sync"
	"testing"

	"github.com/menta2k/slide-analyzer/pkg/region"
	"github.com/menta2k/slide-analyzer/pkg/roi"
)

func rectObj(t *testing.T, kind Kind, x, y, w, h float64) *PathObject {
	t.Helper()
	r, err := roi.NewRectangle(x, y, w, h, region.DefaultPlane)
	if err != nil {
		t.Fatalf("NewRectangle failed: %v", err)
	}
	if kind == KindAnnotation {
		return NewAnnotation(r, nil)
	}
	return NewDetection(r, nil)
}

func TestAddObjectsAndFilter(t *testing.T) {
	h := New()
	a := rectObj(t, KindAnnotation, 0, 0, 10, 10)
	d1 := rectObj(t, KindDetection, 0, 0, 5, 5)
	d2 := rectObj(t, KindDetection, 5, 5, 5, 5)
	h.AddObjects([]*PathObject{a, d1, d2})

	if h.Len() != 3 {
		t.Fatalf("expected 3 objects, got %d", h.Len())
	}
	if got := len(h.Annotations()); got != 1 {
		t.Errorf("expected 1 annotation, got %d", got)
	}
	if got := len(h.Detections()); got != 2 {
		t.Errorf("expected 2 detections, got %d", got)
	}
}

func TestReplaceChildrenIsIdempotent(t *testing.T) {
	h := New()
	h.AddObjects([]*PathObject{rectObj(t, KindDetection, 0, 0, 5, 5)})

	batch := []*PathObject{
		rectObj(t, KindDetection, 0, 0, 5, 5),
		rectObj(t, KindDetection, 10, 0, 5, 5),
	}
	h.ReplaceChildren(nil, batch)
	if h.Len() != 2 {
		t.Fatalf("expected 2 objects after replace, got %d", h.Len())
	}

	// A second commit of the same size replaces, never accumulates.
	h.ReplaceChildren(nil, batch)
	if h.Len() != 2 {
		t.Errorf("expected 2 objects after repeated replace, got %d", h.Len())
	}
}

func TestReplaceChildrenScopedToTarget(t *testing.T) {
	h := New()
	parent := rectObj(t, KindAnnotation, 0, 0, 100, 100)
	sibling := rectObj(t, KindAnnotation, 200, 0, 50, 50)
	h.AddObjects([]*PathObject{parent, sibling})

	var events []Event
	h.AddListener(func(ev Event) { events = append(events, ev) })

	kids := []*PathObject{rectObj(t, KindDetection, 0, 0, 10, 10)}
	h.ReplaceChildren(parent, kids)

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Target != parent {
		t.Error("event not scoped to the replaced parent")
	}
	if len(parent.Children()) != 1 {
		t.Errorf("expected 1 child under parent, got %d", len(parent.Children()))
	}
	// Sibling untouched.
	if len(sibling.Children()) != 0 {
		t.Errorf("sibling gained %d children", len(sibling.Children()))
	}
	if sibling.Locked {
		t.Error("sibling must not be locked")
	}
	if h.Len() != 3 {
		t.Errorf("expected 3 objects total, got %d", h.Len())
	}
}

func TestReplaceChildrenLocksTarget(t *testing.T) {
	h := New()
	parent := rectObj(t, KindAnnotation, 0, 0, 100, 100)
	h.AddObjects([]*PathObject{parent})

	h.ReplaceChildren(parent, []*PathObject{rectObj(t, KindDetection, 0, 0, 10, 10)})
	if !parent.Locked {
		t.Error("expected the commit target to be locked")
	}

	// Committing to the root must not lock it.
	h.ReplaceChildren(nil, []*PathObject{rectObj(t, KindDetection, 0, 0, 10, 10)})
	if h.Root().Locked {
		t.Error("root must never be locked")
	}
}

func TestSelectionPrunedForRemovedSubtree(t *testing.T) {
	h := New()
	parent := rectObj(t, KindAnnotation, 0, 0, 100, 100)
	h.AddObjects([]*PathObject{parent})
	child := rectObj(t, KindDetection, 0, 0, 10, 10)
	h.ReplaceChildren(parent, []*PathObject{child})
	h.SetSelection([]*PathObject{child})

	// Removing the parent detaches the child too; the selection must not
	// keep objects that are no longer reachable from the root.
	if !h.RemoveObject(parent) {
		t.Fatal("expected removal to succeed")
	}
	if sel := h.SelectedObjects(); len(sel) != 0 {
		t.Errorf("expected empty selection after subtree removal, got %d objects", len(sel))
	}
}

func TestClearAllFiresRemovalEvent(t *testing.T) {
	h := New()
	h.AddObjects([]*PathObject{
		rectObj(t, KindDetection, 0, 0, 5, 5),
		rectObj(t, KindDetection, 10, 0, 5, 5),
	})

	var removed int
	h.AddListener(func(ev Event) { removed += len(ev.Removed) })
	h.ClearAll()

	if h.Len() != 0 {
		t.Errorf("expected empty hierarchy, got %d objects", h.Len())
	}
	if removed != 2 {
		t.Errorf("expected 2 removed objects in event, got %d", removed)
	}
}

func TestSelectionPrunedOnRemoval(t *testing.T) {
	h := New()
	a := rectObj(t, KindDetection, 0, 0, 5, 5)
	b := rectObj(t, KindDetection, 10, 0, 5, 5)
	h.AddObjects([]*PathObject{a, b})
	h.SetSelection([]*PathObject{a, b})

	if !h.RemoveObject(a) {
		t.Fatal("expected removal to succeed")
	}
	sel := h.SelectedObjects()
	if len(sel) != 1 || sel[0] != b {
		t.Errorf("expected selection pruned to b, got %d objects", len(sel))
	}

	if h.RemoveObject(a) {
		t.Error("expected second removal to fail")
	}
}

func TestListenerMayReenterHierarchy(t *testing.T) {
	h := New()
	var seen int
	h.AddListener(func(ev Event) {
		// Re-entering must not deadlock.
		seen = h.Len()
	})
	h.AddObjects([]*PathObject{rectObj(t, KindDetection, 0, 0, 5, 5)})
	if seen != 1 {
		t.Errorf("listener saw %d objects, expected 1", seen)
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	h := New()
	r, err := roi.NewRectangle(0, 0, 5, 5, region.DefaultPlane)
	if err != nil {
		t.Fatalf("NewRectangle failed: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.AddObjects([]*PathObject{NewDetection(r, nil)})
			_ = h.Len()
			_ = h.Detections()
		}()
	}
	wg.Wait()
	if h.Len() != 8 {
		t.Errorf("expected 8 objects, got %d", h.Len())
	}
}
