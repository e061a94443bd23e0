// Package refgraph turns reference-valued slots into drawable edges.
//
// A [Graph] owns the edge set of one diagram. Each call to [Graph.Recompute]
// rebuilds it from the current reference slots and entity boxes:
//
//	g.Recompute(scene.References(), scene.BoxRects())
//	if e, ok := g.HitTest(pointer, 4); ok {
//	    g.SetLabel(e.Target, "head")
//	}
//
// # Identity
//
// An edge is identified by the id of the entity it points at, not by the slot
// it starts from. Recompute carries user labels over from the previous edge
// set by target id. All edges into one entity therefore share a label, and an
// id that is missing from a single recomputation loses its label for good.
//
// # Geometry
//
// Edges leave the right-center of the reference slot and enter the
// left-center of the target box along a cubic Bézier curve with horizontal
// tangents at both ends. Hit testing measures the distance to a flattened
// copy of that curve.
//
// Nothing in this package performs I/O, and every operation runs in time
// linear in the number of edges.
package refgraph

import (
	"math"

	"github.com/matzehuels/heapview/pkg/errors"
	"github.com/matzehuels/heapview/pkg/geom"
	"github.com/matzehuels/heapview/pkg/trace"
)

const (
	// minTangent keeps short and backward edges visibly curved.
	minTangent = 30.0
	// flattenSteps is the number of segments used to approximate a curve.
	flattenSteps = 24
)

// Source is one rendered reference slot.
type Source struct {
	Path   trace.Path // where the slot lives in the trace
	Slot   geom.Rect  // absolute rectangle of the slot
	Target int64      // referenced entity id
}

// Edge is a directed link from a reference slot to an entity box.
type Edge struct {
	Target int64      `json:"target"`
	From   geom.Point `json:"from"`
	To     geom.Point `json:"to"`
	Label  string     `json:"label,omitempty"`

	// Source is the slot path; Order is its position in the input to Recompute.
	Source trace.Path `json:"-"`
	Order  int        `json:"-"`
}

// Curve returns the four control points of the edge's cubic Bézier path.
func (e Edge) Curve() [4]geom.Point {
	t := math.Max(math.Abs(e.To.X-e.From.X)/2, minTangent)
	return [4]geom.Point{
		e.From,
		{X: e.From.X + t, Y: e.From.Y},
		{X: e.To.X - t, Y: e.To.Y},
		e.To,
	}
}

// Distance returns the distance from pt to the edge's path.
func (e Edge) Distance(pt geom.Point) float64 {
	c := e.Curve()
	best := math.Inf(1)
	prev := c[0]
	for i := 1; i <= flattenSteps; i++ {
		next := bezier(c, float64(i)/flattenSteps)
		best = math.Min(best, geom.SegmentDist(pt, prev, next))
		prev = next
	}
	return best
}

func bezier(c [4]geom.Point, t float64) geom.Point {
	u := 1 - t
	a, b, cc, d := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
	return geom.Point{
		X: a*c[0].X + b*c[1].X + cc*c[2].X + d*c[3].X,
		Y: a*c[0].Y + b*c[1].Y + cc*c[2].Y + d*c[3].Y,
	}
}

// Graph is the edge set of a diagram together with its label and selection
// state. The zero value is an empty graph. A Graph is not safe for
// concurrent use.
type Graph struct {
	edges    []Edge
	selected int64
	hasSel   bool
}

// Recompute rebuilds the edge set. Sources whose target has no box are
// dropped. Each new edge takes the label of the first previous edge with the
// same target; the selection survives if its target still has an edge.
func (g *Graph) Recompute(sources []Source, boxes map[int64]geom.Rect) {
	labels := make(map[int64]string, len(g.edges))
	for _, e := range g.edges {
		if _, seen := labels[e.Target]; !seen {
			labels[e.Target] = e.Label
		}
	}

	edges := make([]Edge, 0, len(sources))
	for i, s := range sources {
		box, ok := boxes[s.Target]
		if !ok {
			continue
		}
		edges = append(edges, Edge{
			Target: s.Target,
			From:   s.Slot.RightCenter(),
			To:     box.LeftCenter(),
			Label:  labels[s.Target],
			Source: s.Path,
			Order:  i,
		})
	}
	g.edges = edges

	if g.hasSel && !g.hasTarget(g.selected) {
		g.hasSel = false
	}
}

// Edges returns a copy of the current edges in source order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Len returns the number of edges.
func (g *Graph) Len() int { return len(g.edges) }

// EdgesTo returns the edges pointing at target.
func (g *Graph) EdgesTo(target int64) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Target == target {
			out = append(out, e)
		}
	}
	return out
}

func (g *Graph) hasTarget(target int64) bool {
	for _, e := range g.edges {
		if e.Target == target {
			return true
		}
	}
	return false
}

// HitTest returns the edge nearest to pt whose path passes within tolerance.
// Among equally near edges the one with the lower target id wins, then the
// one that came first in source order.
func (g *Graph) HitTest(pt geom.Point, tolerance float64) (Edge, bool) {
	best, bestDist := -1, math.Inf(1)
	for i, e := range g.edges {
		d := e.Distance(pt)
		if d > tolerance {
			continue
		}
		if best < 0 || d < bestDist || d == bestDist && e.Target < g.edges[best].Target {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return Edge{}, false
	}
	return g.edges[best], true
}

// Select marks the edge under pt as selected, or clears the selection when
// no edge is within tolerance. It reports whether the selection changed.
func (g *Graph) Select(pt geom.Point, tolerance float64) bool {
	e, ok := g.HitTest(pt, tolerance)
	before, had := g.selected, g.hasSel
	g.selected, g.hasSel = e.Target, ok
	return had != ok || ok && before != e.Target
}

// Selected returns the target id of the selected edge.
func (g *Graph) Selected() (int64, bool) { return g.selected, g.hasSel }

// ClearSelection drops the selection.
func (g *Graph) ClearSelection() { g.hasSel = false }

// Activate replaces the label of the selected edge. An empty label clears it.
func (g *Graph) Activate(label string) error {
	if !g.hasSel {
		return errors.New(errors.ErrCodeNotFound, "no edge selected")
	}
	return g.SetLabel(g.selected, label)
}

// SetLabel replaces the label of the edge pointing at target.
func (g *Graph) SetLabel(target int64, label string) error {
	if err := errors.ValidateLabel(label); err != nil {
		return err
	}
	found := false
	for i := range g.edges {
		if g.edges[i].Target == target {
			g.edges[i].Label = label
			found = true
		}
	}
	if !found {
		return errors.New(errors.ErrCodeNotFound, "no edge points at entity %d", target)
	}
	return nil
}
