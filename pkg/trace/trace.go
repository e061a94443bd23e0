package trace

import (
	"cmp"
	"iter"
	"slices"
	"strconv"
)

// Var is one named slot: a local variable, a static, or an object field.
type Var struct {
	Name  string
	Value Value
}

// Vars is a name-ordered mapping from identifier to Value.
// Keep it sorted by going through [Vars.Set]; lookups use binary search.
type Vars []Var

// VarsOf builds name-ordered Vars from a map. Handy for tests and producers.
func VarsOf(m map[string]Value) Vars {
	vs := make(Vars, 0, len(m))
	for name, v := range m {
		vs = append(vs, Var{Name: name, Value: v})
	}
	slices.SortFunc(vs, func(a, b Var) int { return cmp.Compare(a.Name, b.Name) })
	return vs
}

func (vs Vars) find(name string) (int, bool) {
	return slices.BinarySearchFunc(vs, name, func(v Var, n string) int { return cmp.Compare(v.Name, n) })
}

// Get returns the value bound to name.
func (vs Vars) Get(name string) (Value, bool) {
	if i, ok := vs.find(name); ok {
		return vs[i].Value, true
	}
	return Value{}, false
}

// Ptr returns a pointer to the value bound to name so its Changed flag can
// be updated in place, or nil if name is unbound.
func (vs Vars) Ptr(name string) *Value {
	if i, ok := vs.find(name); ok {
		return &vs[i].Value
	}
	return nil
}

// Set binds name to v, replacing an existing binding.
func (vs *Vars) Set(name string, v Value) {
	i, ok := vs.find(name)
	if ok {
		(*vs)[i].Value = v
		return
	}
	*vs = slices.Insert(*vs, i, Var{Name: name, Value: v})
}

// Frame is one call-stack entry.
type Frame struct {
	// Name is the qualified method name. The diff engine matches frames by it.
	Name string
	// Internal marks synthetic frames inserted by the producer.
	Internal bool
	Locals   Vars
}

// EntityKind names the variant of an entity body.
type EntityKind string

const (
	KindObject EntityKind = "OBJECT"
	KindList   EntityKind = "LIST"
	KindMap    EntityKind = "MAP"
)

// Body is the variant payload of a heap entity. It is sealed: the only
// implementations are *Object, *List and *Map, and every consumer switches
// over all three.
type Body interface {
	Kind() EntityKind
	sealed()
}

// Object is an instance with named fields.
type Object struct {
	Fields Vars
}

// List is an indexed sequence (arrays, lists, sets).
type List struct {
	Items []Value
}

// Pair is one map entry. Keys are values too; they may be references to
// mutable heap entities.
type Pair struct {
	Key Value
	Val Value
}

// Map is an ordered sequence of key/value pairs.
type Map struct {
	Pairs []Pair
}

func (*Object) Kind() EntityKind { return KindObject }
func (*List) Kind() EntityKind   { return KindList }
func (*Map) Kind() EntityKind    { return KindMap }

func (*Object) sealed() {}
func (*List) sealed()   {}
func (*Map) sealed()    {}

// Entity is a heap-resident structure with a process-unique, stable id.
type Entity struct {
	ID    int64
	Label string
	Body  Body
}

// Heap holds entities keyed by id and iterates them in ascending id order.
// The zero value is an empty heap ready for use.
type Heap struct {
	byID map[int64]*Entity
	ids  []int64
}

// Put adds e, replacing any entity with the same id.
func (h *Heap) Put(e *Entity) {
	if h.byID == nil {
		h.byID = make(map[int64]*Entity)
	}
	if _, exists := h.byID[e.ID]; !exists {
		i, _ := slices.BinarySearch(h.ids, e.ID)
		h.ids = slices.Insert(h.ids, i, e.ID)
	}
	h.byID[e.ID] = e
}

// Delete removes the entity with the given id, if present.
func (h *Heap) Delete(id int64) {
	if _, ok := h.byID[id]; !ok {
		return
	}
	delete(h.byID, id)
	if i, ok := slices.BinarySearch(h.ids, id); ok {
		h.ids = slices.Delete(h.ids, i, i+1)
	}
}

// Get returns the entity with the given id.
func (h *Heap) Get(id int64) (*Entity, bool) {
	e, ok := h.byID[id]
	return e, ok
}

// Len returns the number of entities.
func (h *Heap) Len() int { return len(h.ids) }

// IDs returns a copy of the entity ids in ascending order.
func (h *Heap) IDs() []int64 { return slices.Clone(h.ids) }

// All iterates entities in ascending id order.
func (h *Heap) All() iter.Seq[*Entity] {
	return func(yield func(*Entity) bool) {
		for _, id := range h.ids {
			if !yield(h.byID[id]) {
				return
			}
		}
	}
}

// Trace is one captured execution snapshot.
//
// A Trace is immutable once produced, except for the Changed flags on its
// values, which the diff engine sets in place when the trace is ingested.
type Trace struct {
	Frames  []Frame
	Heap    Heap
	Statics Vars
}

// Entity returns the heap entity with the given id.
func (t *Trace) Entity(id int64) (*Entity, bool) { return t.Heap.Get(id) }

// Area identifies which part of a trace a slot belongs to.
type Area uint8

const (
	AreaFrame Area = iota
	AreaStatic
	AreaHeap
)

// Path locates a single value slot inside a trace.
type Path struct {
	Area  Area
	Frame int    // frame index for AreaFrame
	ID    int64  // entity id for AreaHeap
	Name  string // local, static or field name; empty for list items and map pairs
	Index int    // list item or map pair index; -1 for named slots
	IsKey bool   // the key half of a map pair
}

// String renders the path for diagnostics, e.g. "frames[0].x", "heap[7][2].key".
func (p Path) String() string {
	var prefix string
	switch p.Area {
	case AreaFrame:
		prefix = "frames[" + strconv.Itoa(p.Frame) + "]"
	case AreaStatic:
		prefix = "statics"
	case AreaHeap:
		prefix = "heap[" + strconv.FormatInt(p.ID, 10) + "]"
	}
	if p.Index < 0 {
		return prefix + "." + p.Name
	}
	s := prefix + "[" + strconv.Itoa(p.Index) + "]"
	if p.IsKey {
		return s + ".key"
	}
	return s
}

// Values iterates every value slot of the trace: frame locals in call order,
// statics, then heap entities in ascending id order. Map pairs yield their key
// before their value. The yielded pointers alias the trace.
func (t *Trace) Values() iter.Seq2[Path, *Value] {
	return func(yield func(Path, *Value) bool) {
		for fi := range t.Frames {
			locals := t.Frames[fi].Locals
			for i := range locals {
				if !yield(Path{Area: AreaFrame, Frame: fi, Name: locals[i].Name, Index: -1}, &locals[i].Value) {
					return
				}
			}
		}
		for i := range t.Statics {
			if !yield(Path{Area: AreaStatic, Name: t.Statics[i].Name, Index: -1}, &t.Statics[i].Value) {
				return
			}
		}
		for e := range t.Heap.All() {
			if !yieldEntity(e, yield) {
				return
			}
		}
	}
}

func yieldEntity(e *Entity, yield func(Path, *Value) bool) bool {
	switch b := e.Body.(type) {
	case *Object:
		for i := range b.Fields {
			if !yield(Path{Area: AreaHeap, ID: e.ID, Name: b.Fields[i].Name, Index: -1}, &b.Fields[i].Value) {
				return false
			}
		}
	case *List:
		for i := range b.Items {
			if !yield(Path{Area: AreaHeap, ID: e.ID, Index: i}, &b.Items[i]) {
				return false
			}
		}
	case *Map:
		for i := range b.Pairs {
			if !yield(Path{Area: AreaHeap, ID: e.ID, Index: i, IsKey: true}, &b.Pairs[i].Key) {
				return false
			}
			if !yield(Path{Area: AreaHeap, ID: e.ID, Index: i}, &b.Pairs[i].Val) {
				return false
			}
		}
	case nil:
	default:
		panic("trace: unknown entity body " + string(b.Kind()))
	}
	return true
}
