// Package diff annotates a trace with per-value change flags by comparing it
// against the trace captured one step earlier.
//
// Matching is deliberately shallow:
//   - frames pair by name, taking the first previous frame with that name
//   - locals, statics and object fields pair by name
//   - heap entities pair by id
//   - list items and map pairs pair by position
//
// Recursive calls that repeat a frame name all diff against the outermost
// previous frame, and reordering the pairs of a map flags every moved pair.
// Both are known limitations of identity/position matching and are kept as is.
//
// Only slots present on both sides are compared. Values that appear for the
// first time, and values that disappeared, are never flagged.
package diff

import (
	"github.com/matzehuels/heapview/pkg/trace"
)

// Change records one value that differs from its previous counterpart.
type Change struct {
	Path  trace.Path
	Frame string // frame name for frame locals
	Old   trace.Value
	New   trace.Value
}

// Stats summarizes an [Annotate] pass.
type Stats struct {
	Frames   int // current frames paired with a previous frame
	Entities int // heap entities present in both traces
	Compared int // value slots compared
	Changes  []Change
}

// Changed returns the number of values flagged as changed.
func (s Stats) Changed() int { return len(s.Changes) }

// Annotate sets the Changed flag of every value in current. All flags are
// cleared first, so the result never depends on an earlier pass. A nil
// previous leaves every flag false. previous is only read.
func Annotate(current, previous *trace.Trace) Stats {
	for _, v := range current.Values() {
		v.Changed = false
	}
	if previous == nil {
		return Stats{}
	}

	var s Stats
	for fi := range current.Frames {
		f := &current.Frames[fi]
		pf := firstFrame(previous.Frames, f.Name)
		if pf == nil {
			continue
		}
		s.Frames++
		s.vars(f.Locals, pf.Locals, func(name string) trace.Path {
			return trace.Path{Area: trace.AreaFrame, Frame: fi, Name: name, Index: -1}
		}, f.Name)
	}

	s.vars(current.Statics, previous.Statics, func(name string) trace.Path {
		return trace.Path{Area: trace.AreaStatic, Name: name, Index: -1}
	}, "")

	for e := range current.Heap.All() {
		pe, ok := previous.Entity(e.ID)
		if !ok {
			continue
		}
		s.Entities++
		s.entity(e, pe)
	}
	return s
}

func firstFrame(frames []trace.Frame, name string) *trace.Frame {
	for i := range frames {
		if frames[i].Name == name {
			return &frames[i]
		}
	}
	return nil
}

func (s *Stats) vars(cur, prev trace.Vars, path func(string) trace.Path, frame string) {
	for i := range cur {
		old, ok := prev.Get(cur[i].Name)
		if !ok {
			continue
		}
		s.compare(&cur[i].Value, old, path(cur[i].Name), frame)
	}
}

// entity compares two bodies of the same id. An entity whose variant changed
// between steps has no comparable slots and is left unflagged.
func (s *Stats) entity(e, prev *trace.Entity) {
	switch b := e.Body.(type) {
	case *trace.Object:
		pb, ok := prev.Body.(*trace.Object)
		if !ok {
			return
		}
		s.vars(b.Fields, pb.Fields, func(name string) trace.Path {
			return trace.Path{Area: trace.AreaHeap, ID: e.ID, Name: name, Index: -1}
		}, "")
	case *trace.List:
		pb, ok := prev.Body.(*trace.List)
		if !ok {
			return
		}
		for i := range min(len(b.Items), len(pb.Items)) {
			s.compare(&b.Items[i], pb.Items[i], trace.Path{Area: trace.AreaHeap, ID: e.ID, Index: i}, "")
		}
	case *trace.Map:
		pb, ok := prev.Body.(*trace.Map)
		if !ok {
			return
		}
		for i := range min(len(b.Pairs), len(pb.Pairs)) {
			s.compare(&b.Pairs[i].Key, pb.Pairs[i].Key, trace.Path{Area: trace.AreaHeap, ID: e.ID, Index: i, IsKey: true}, "")
			s.compare(&b.Pairs[i].Val, pb.Pairs[i].Val, trace.Path{Area: trace.AreaHeap, ID: e.ID, Index: i}, "")
		}
	case nil:
	default:
		panic("diff: unknown entity body " + string(b.Kind()))
	}
}

func (s *Stats) compare(v *trace.Value, old trace.Value, p trace.Path, frame string) {
	s.Compared++
	v.Changed = !v.Equal(old)
	if v.Changed {
		s.Changes = append(s.Changes, Change{Path: p, Frame: frame, Old: old, New: *v})
	}
}
