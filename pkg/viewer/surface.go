package viewer

import (
	"github.com/matzehuels/heapview/pkg/geom"
	"github.com/matzehuels/heapview/pkg/layout/grid"
	"github.com/matzehuels/heapview/pkg/refgraph"
	"github.com/matzehuels/heapview/pkg/scene"
)

// Surface is everything a host needs to paint the panel. Coordinates are in
// model units; multiply by Scale for screen pixels.
type Surface struct {
	Scale    float64       `json:"scale"`
	Mode     grid.Mode     `json:"mode"`
	Bounds   geom.Rect     `json:"bounds"`
	Frames   []scene.Panel `json:"frames"`
	Statics  *scene.Panel  `json:"statics,omitempty"`
	Entities []scene.Panel `json:"entities"`
	Edges    []SurfaceEdge `json:"edges"`
	Changed  int           `json:"changed"`
	Dragging *int64        `json:"dragging,omitempty"`
}

// SurfaceEdge is an edge with its selection state.
type SurfaceEdge struct {
	refgraph.Edge
	Selected bool `json:"selected,omitempty"`
}

// Surface snapshots the current geometry. The result shares no memory with
// the panel.
func (p *Panel) Surface() Surface {
	s := Surface{
		Scale:   p.scale,
		Mode:    p.opts.Scene.Mode,
		Changed: p.stats.Changed(),
	}
	if p.scene == nil {
		return s
	}

	s.Bounds = p.scene.Bounds()
	s.Frames = clonePanels(p.scene.Frames)
	s.Entities = clonePanels(p.scene.Entities)
	if p.scene.Statics != nil {
		st := clonePanel(*p.scene.Statics)
		s.Statics = &st
	}

	sel, hasSel := p.graph.Selected()
	for _, e := range p.graph.Edges() {
		s.Edges = append(s.Edges, SurfaceEdge{Edge: e, Selected: hasSel && e.Target == sel})
	}
	if id, ok := p.Dragging(); ok {
		s.Dragging = &id
	}
	return s
}

func clonePanels(in []scene.Panel) []scene.Panel {
	out := make([]scene.Panel, len(in))
	for i, p := range in {
		out[i] = clonePanel(p)
	}
	return out
}

func clonePanel(p scene.Panel) scene.Panel {
	p.Slots = append([]scene.Slot(nil), p.Slots...)
	p.Lines = append([]scene.Line(nil), p.Lines...)
	return p
}
