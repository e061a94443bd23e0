package scene

import (
	"testing"

	"github.com/matzehuels/heapview/pkg/errors"
	"github.com/matzehuels/heapview/pkg/geom"
	"github.com/matzehuels/heapview/pkg/layout/grid"
	"github.com/matzehuels/heapview/pkg/refgraph"
	"github.com/matzehuels/heapview/pkg/trace"
)

// monoMeasurer sizes every character 6x10 regardless of role.
type monoMeasurer struct{}

func (monoMeasurer) Measure(text string, _ Role) geom.Size {
	return geom.Size{W: float64(6 * len([]rune(text))), H: 10}
}

func sampleTrace() *trace.Trace {
	tr := &trace.Trace{
		Frames: []trace.Frame{{Name: "main", Locals: trace.VarsOf(map[string]trace.Value{
			"x": trace.Long(5),
			"p": trace.Ref(7),
		})}},
	}
	tr.Heap.Put(&trace.Entity{ID: 8, Label: "int[]", Body: &trace.List{Items: []trace.Value{trace.Long(1), trace.Long(2)}}})
	tr.Heap.Put(&trace.Entity{ID: 7, Label: "Node", Body: &trace.Object{Fields: trace.VarsOf(map[string]trace.Value{"v": trace.Long(1)})}})
	return tr
}

func build(t *testing.T, tr *trace.Trace, opts Options, place *refgraph.Placement) *Scene {
	t.Helper()
	s, err := Build(tr, opts, place)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return s
}

func TestBuildFramePanel(t *testing.T) {
	s := build(t, sampleTrace(), DefaultOptions(monoMeasurer{}), nil)

	if len(s.Frames) != 1 {
		t.Fatalf("frames = %d", len(s.Frames))
	}
	f := s.Frames[0]
	if f.Rect != geom.R(24, 24, 38, 56) {
		t.Errorf("frame rect = %v, want {24 24 38 56}", f.Rect)
	}
	if f.Slots[0].Key != "p" || f.Slots[1].Key != "x" {
		t.Errorf("slot keys = %q, %q", f.Slots[0].Key, f.Slots[1].Key)
	}
	if got := f.Slots[0].ValueRect; got != geom.R(42, 46, 16, 16) {
		t.Errorf("pointer slot = %v, want {42 46 16 16}", got)
	}
	if f.Slots[1].Text != "5" {
		t.Errorf("x text = %q", f.Slots[1].Text)
	}
	if s.Statics != nil {
		t.Error("statics panel should be absent when there are no statics")
	}
}

func TestBuildHeapFlow(t *testing.T) {
	opts := DefaultOptions(monoMeasurer{})
	s := build(t, sampleTrace(), opts, nil)

	if len(s.Entities) != 2 || s.Entities[0].ID != 7 || s.Entities[1].ID != 8 {
		t.Fatalf("entities out of id order: %+v", s.Entities)
	}
	if got := s.Entities[0].Rect; got != geom.R(110, 24, 32, 36) {
		t.Errorf("entity 7 = %v, want {110 24 32 36}", got)
	}
	if got := s.Entities[1].Rect; got != geom.R(166, 24, 38, 54) {
		t.Errorf("entity 8 = %v, want {166 24 38 54}", got)
	}

	opts.FlowWidth = 50
	s = build(t, sampleTrace(), opts, nil)
	if got := s.Entities[1].Rect.Min(); got != (geom.Point{X: 110, Y: 84}) {
		t.Errorf("wrapped entity 8 at %v, want (110, 84)", got)
	}
}

func TestBuildListUsesGrid(t *testing.T) {
	opts := DefaultOptions(monoMeasurer{})
	opts.Mode = grid.Stacked
	s := build(t, sampleTrace(), opts, nil)

	list, ok := s.Entity(8)
	if !ok {
		t.Fatal("entity 8 missing")
	}
	if list.Mode != grid.Grid || list.Body != trace.KindList {
		t.Errorf("list mode = %v body = %v", list.Mode, list.Body)
	}
	if list.Slots[0].Key != "0" || list.Slots[1].Key != "1" {
		t.Errorf("index keys = %q %q", list.Slots[0].Key, list.Slots[1].Key)
	}
	obj, _ := s.Entity(7)
	if obj.Mode != grid.Stacked {
		t.Errorf("object mode = %v, want stacked", obj.Mode)
	}

	opts.Mode = grid.Grid
	s = build(t, sampleTrace(), opts, nil)
	obj, _ = s.Entity(7)
	if obj.Mode != grid.Grid {
		t.Errorf("object mode = %v, want grid", obj.Mode)
	}
}

func TestBuildPlacementOverride(t *testing.T) {
	var place refgraph.Placement
	place.Override(7, geom.Point{X: 500, Y: 300})

	s := build(t, sampleTrace(), DefaultOptions(monoMeasurer{}), &place)
	e, _ := s.Entity(7)
	if e.Rect.Min() != (geom.Point{X: 500, Y: 300}) {
		t.Errorf("entity 7 at %v, want override", e.Rect.Min())
	}
	if s.Defaults[7] != (geom.Point{X: 110, Y: 24}) {
		t.Errorf("default = %v, want flow position", s.Defaults[7])
	}
	// Overrides do not shift the rest of the flow.
	other, _ := s.Entity(8)
	if other.Rect.Min() != (geom.Point{X: 166, Y: 24}) {
		t.Errorf("entity 8 at %v", other.Rect.Min())
	}
	// Slot rects move with the box.
	if !e.Rect.Contains(e.Slots[0].ValueRect.Center()) {
		t.Error("slot should lie inside its moved box")
	}
}

func TestReferences(t *testing.T) {
	tr := sampleTrace()
	tr.Statics = trace.VarsOf(map[string]trace.Value{"S.root": trace.Ref(8)})
	tr.Heap.Put(&trace.Entity{ID: 9, Label: "Map", Body: &trace.Map{Pairs: []trace.Pair{
		{Key: trace.Ref(7), Val: trace.Ref(42)},
	}}})

	s := build(t, tr, DefaultOptions(monoMeasurer{}), nil)
	refs := s.References()

	want := []struct {
		target int64
		area   trace.Area
		isKey  bool
	}{
		{7, trace.AreaFrame, false},
		{8, trace.AreaStatic, false},
		{7, trace.AreaHeap, true},
		{42, trace.AreaHeap, false},
	}
	if len(refs) != len(want) {
		t.Fatalf("refs = %+v", refs)
	}
	for i, w := range want {
		r := refs[i]
		if r.Target != w.target || r.Path.Area != w.area || r.Path.IsKey != w.isKey {
			t.Errorf("ref %d = %+v, want %+v", i, r, w)
		}
	}

	var g refgraph.Graph
	g.Recompute(refs, s.BoxRects())
	// 42 is dangling.
	if g.Len() != 3 {
		t.Errorf("edges = %d, want 3", g.Len())
	}
}

func TestChangedFlags(t *testing.T) {
	tr := sampleTrace()
	tr.Frames[0].Locals.Ptr("x").Changed = true

	s := build(t, tr, DefaultOptions(monoMeasurer{}), nil)
	if !s.Frames[0].Slots[1].Changed || s.Frames[0].Slots[0].Changed {
		t.Errorf("changed flags = %v, %v", s.Frames[0].Slots[0].Changed, s.Frames[0].Slots[1].Changed)
	}
}

func TestMoveAndEntityAt(t *testing.T) {
	s := build(t, sampleTrace(), DefaultOptions(monoMeasurer{}), nil)

	if id, ok := s.EntityAt(geom.Point{X: 120, Y: 30}); !ok || id != 7 {
		t.Errorf("EntityAt = %d, %v; want 7", id, ok)
	}
	if _, ok := s.EntityAt(geom.Point{X: 5, Y: 5}); ok {
		t.Error("no entity at the margin")
	}

	if !s.Move(7, geom.Point{X: 0, Y: 400}) {
		t.Fatal("Move failed")
	}
	e, _ := s.Entity(7)
	if e.Rect.Min() != (geom.Point{X: 0, Y: 400}) {
		t.Errorf("moved to %v", e.Rect.Min())
	}
	if s.Move(99, geom.Point{}) {
		t.Error("Move of unknown id should fail")
	}
	if b := s.Bounds(); b.Max().Y < 436 {
		t.Errorf("bounds %v should cover the moved box", b)
	}
}

func TestStaticsPanel(t *testing.T) {
	tr := sampleTrace()
	tr.Statics = trace.VarsOf(map[string]trace.Value{"Main.count": trace.Long(3)})

	s := build(t, tr, DefaultOptions(monoMeasurer{}), nil)
	if s.Statics == nil {
		t.Fatal("statics panel missing")
	}
	if s.Statics.Rect.Y <= s.Frames[0].Rect.Max().Y {
		t.Errorf("statics at y=%v should sit below the frames", s.Statics.Rect.Y)
	}
	if s.Statics.Slots[0].Path.Area != trace.AreaStatic {
		t.Error("statics slot path should be in the static area")
	}
}

func TestBuildNoMeasurer(t *testing.T) {
	_, err := Build(sampleTrace(), Options{}, nil)
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("err = %v, want INVALID_INPUT", err)
	}
}
