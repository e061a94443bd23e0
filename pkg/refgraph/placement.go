package refgraph

import (
	"maps"
	"slices"

	"github.com/matzehuels/heapview/pkg/geom"
)

// Placement holds user position overrides for entity boxes, keyed by entity
// id. An override outlives any number of trace updates as long as its id keeps
// appearing in the heap. The zero value is ready to use.
type Placement struct {
	overrides map[int64]geom.Point
}

// Override pins the top-left corner of entity id at pt.
func (p *Placement) Override(id int64, pt geom.Point) {
	if p.overrides == nil {
		p.overrides = make(map[int64]geom.Point)
	}
	p.overrides[id] = pt
}

// Clear removes the override for id, returning the box to its default spot.
func (p *Placement) Clear(id int64) { delete(p.overrides, id) }

// Lookup returns the override for id, if any.
func (p *Placement) Lookup(id int64) (geom.Point, bool) {
	pt, ok := p.overrides[id]
	return pt, ok
}

// Resolve returns the override for id, or def when there is none.
func (p *Placement) Resolve(id int64, def geom.Point) geom.Point {
	if pt, ok := p.overrides[id]; ok {
		return pt
	}
	return def
}

// Retain drops overrides for ids that live reports as gone and returns how
// many were dropped. An entity that disappears and later comes back starts
// over at its default position.
func (p *Placement) Retain(live func(id int64) bool) int {
	n := 0
	for id := range p.overrides {
		if !live(id) {
			delete(p.overrides, id)
			n++
		}
	}
	return n
}

// Len returns the number of overrides.
func (p *Placement) Len() int { return len(p.overrides) }

// IDs returns the overridden ids in ascending order.
func (p *Placement) IDs() []int64 {
	return slices.Sorted(maps.Keys(p.overrides))
}
