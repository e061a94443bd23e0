// Package viewer is the interactive diagram panel: it ingests traces and
// pointer input and exposes the resulting geometry as a [Surface].
//
// A [Panel] is single threaded. Hosts that receive traces and input on several
// goroutines must funnel them into one queue and call the Panel from a single
// goroutine (the serve command does exactly that).
//
// # Recomputation
//
// Geometry is recomputed synchronously on four events:
//   - a new trace ([Panel.SetTrace]), diffed against the previous one before
//     anything is laid out
//   - a finished drag ([Panel.EndDrag])
//   - a scale change ([Panel.SetScale])
//   - a layout mode change ([Panel.SetMode], [Panel.ToggleMode])
//
// While a drag is in progress only the dragged box moves; edges are rebuilt
// when it is released.
//
// # Coordinates
//
// Pointer positions and drag deltas are screen pixels. The panel divides them
// by the scale factor to get model coordinates. Everything in a Surface is in
// model coordinates; the host multiplies by Surface.Scale when painting.
package viewer

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/heapview/pkg/diff"
	"github.com/matzehuels/heapview/pkg/errors"
	"github.com/matzehuels/heapview/pkg/geom"
	"github.com/matzehuels/heapview/pkg/layout/grid"
	"github.com/matzehuels/heapview/pkg/observability"
	"github.com/matzehuels/heapview/pkg/refgraph"
	"github.com/matzehuels/heapview/pkg/scene"
	"github.com/matzehuels/heapview/pkg/trace"
)

// DefaultHitTolerance is the edge pick radius in screen pixels.
const DefaultHitTolerance = 4.0

// Recompute reasons reported to logs and hooks.
const (
	ReasonTrace = "trace"
	ReasonDrag  = "drag"
	ReasonScale = "scale"
	ReasonMode  = "mode"
)

// Options configures a Panel.
type Options struct {
	Scene        scene.Options
	HitTolerance float64 // screen pixels
	Logger       *log.Logger
}

// Panel is the diagram state of one viewer. The zero value is not usable;
// create panels with [New].
type Panel struct {
	opts   Options
	logger *log.Logger

	scale   float64
	current *trace.Trace
	stats   diff.Stats

	scene *scene.Scene
	graph refgraph.Graph
	place refgraph.Placement

	drag *dragState
}

type dragState struct {
	id  int64
	pos geom.Point // current top-left in model units
}

// New returns an empty panel at scale 1.
func New(opts Options) *Panel {
	if opts.HitTolerance == 0 {
		opts.HitTolerance = DefaultHitTolerance
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Panel{opts: opts, logger: logger, scale: 1}
}

// SetTrace makes t the displayed trace. t is diffed against the trace it
// replaces, which is then dropped. Position overrides of entities missing
// from t are discarded. An in-progress drag is abandoned.
func (p *Panel) SetTrace(t *trace.Trace) (diff.Stats, error) {
	return p.SetStep(t, p.current)
}

// SetStep is SetTrace with an explicit predecessor, for hosts that jump
// around a recording. prev may be nil.
func (p *Panel) SetStep(t, prev *trace.Trace) (diff.Stats, error) {
	if t == nil {
		return diff.Stats{}, errors.New(errors.ErrCodeInvalidInput, "nil trace")
	}
	start := time.Now()
	p.stats = diff.Annotate(t, prev)
	observability.Pipeline().OnDiffComplete(context.Background(), p.stats.Compared, p.stats.Changed(), time.Since(start))
	p.current = t
	p.drag = nil

	if n := p.place.Retain(func(id int64) bool { _, ok := t.Entity(id); return ok }); n > 0 {
		p.logger.Debug("dropped position overrides", "count", n)
	}
	if err := p.rebuild(ReasonTrace); err != nil {
		return p.stats, err
	}
	return p.stats, nil
}

// Trace returns the displayed trace, or nil.
func (p *Panel) Trace() *trace.Trace { return p.current }

// Diff returns the statistics of the last diff pass.
func (p *Panel) Diff() diff.Stats { return p.stats }

// Scale returns the current scale factor.
func (p *Panel) Scale() float64 { return p.scale }

// SetScale changes the zoom factor.
func (p *Panel) SetScale(s float64) error {
	if !(s > 0) {
		return errors.New(errors.ErrCodeInvalidInput, "scale must be positive, got %v", s)
	}
	p.scale = s
	return p.rebuild(ReasonScale)
}

// Mode returns the layout mode of object and map bodies.
func (p *Panel) Mode() grid.Mode { return p.opts.Scene.Mode }

// SetMode switches the layout mode of object and map bodies.
func (p *Panel) SetMode(m grid.Mode) error {
	p.opts.Scene.Mode = m
	return p.rebuild(ReasonMode)
}

// ToggleMode flips between stacked and grid layout and returns the new mode.
func (p *Panel) ToggleMode() (grid.Mode, error) {
	m := p.opts.Scene.Mode.Toggle()
	return m, p.SetMode(m)
}

// Press starts dragging the entity box under the screen point, if any.
func (p *Panel) Press(x, y float64) (int64, bool) {
	if p.scene == nil {
		return 0, false
	}
	id, ok := p.scene.EntityAt(p.model(x, y))
	if !ok {
		return 0, false
	}
	return id, p.BeginDrag(id) == nil
}

// BeginDrag starts dragging entity id.
func (p *Panel) BeginDrag(id int64) error {
	if p.scene == nil {
		return errors.New(errors.ErrCodeNotFound, "entity %d is not displayed", id)
	}
	box, ok := p.scene.Entity(id)
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "entity %d is not displayed", id)
	}
	p.drag = &dragState{id: id, pos: box.Rect.Min()}
	return nil
}

// Dragging returns the id of the entity being dragged.
func (p *Panel) Dragging() (int64, bool) {
	if p.drag == nil {
		return 0, false
	}
	return p.drag.id, true
}

// DragBy moves the dragged box by a screen-pixel delta. Edges are not
// recomputed until [Panel.EndDrag].
func (p *Panel) DragBy(dx, dy float64) error {
	if p.drag == nil {
		return errors.New(errors.ErrCodeInvalidInput, "no drag in progress")
	}
	p.drag.pos = p.drag.pos.Add(geom.Point{X: dx / p.scale, Y: dy / p.scale})
	p.scene.Move(p.drag.id, p.drag.pos)
	return nil
}

// EndDrag records the dragged box's position as an override and recomputes.
func (p *Panel) EndDrag() error {
	if p.drag == nil {
		return errors.New(errors.ErrCodeInvalidInput, "no drag in progress")
	}
	p.place.Override(p.drag.id, p.drag.pos)
	p.drag = nil
	return p.rebuild(ReasonDrag)
}

// ResetPosition drops the override of entity id so it returns to its flow
// position.
func (p *Panel) ResetPosition(id int64) error {
	if _, ok := p.place.Lookup(id); !ok {
		return nil
	}
	p.place.Clear(id)
	return p.rebuild(ReasonDrag)
}

// PointerMove updates the hovered edge and reports whether it changed.
func (p *Panel) PointerMove(x, y float64) bool {
	return p.graph.Select(p.model(x, y), p.tolerance())
}

// Click handles a click with the given click count. A double click on an edge
// selects it and returns it as the target for label editing.
func (p *Panel) Click(x, y float64, clicks int) (refgraph.Edge, bool) {
	pt := p.model(x, y)
	p.graph.Select(pt, p.tolerance())
	if clicks < 2 {
		return refgraph.Edge{}, false
	}
	return p.graph.HitTest(pt, p.tolerance())
}

// Activate replaces the label of the selected edge. An empty label clears it.
func (p *Panel) Activate(label string) error { return p.graph.Activate(label) }

// SetLabel replaces the label of the edge pointing at target.
func (p *Panel) SetLabel(target int64, label string) error { return p.graph.SetLabel(target, label) }

// Edges returns the current edges.
func (p *Panel) Edges() []refgraph.Edge { return p.graph.Edges() }

func (p *Panel) model(x, y float64) geom.Point {
	return geom.Point{X: x / p.scale, Y: y / p.scale}
}

// tolerance converts the pick radius to model units.
func (p *Panel) tolerance() float64 { return p.opts.HitTolerance / p.scale }

func (p *Panel) rebuild(reason string) error {
	if p.current == nil {
		return nil
	}
	start := time.Now()
	sc, err := scene.Build(p.current, p.opts.Scene, &p.place)
	if err != nil {
		observability.Pipeline().OnLayoutComplete(context.Background(), reason, time.Since(start), err)
		return err
	}
	p.scene = sc
	p.graph.Recompute(sc.References(), sc.BoxRects())

	elapsed := time.Since(start)
	observability.Pipeline().OnLayoutComplete(context.Background(), reason, elapsed, nil)
	p.logger.Debug("recomputed",
		"reason", reason,
		"frames", len(sc.Frames),
		"entities", len(sc.Entities),
		"edges", p.graph.Len(),
		"changed", p.stats.Changed(),
		"duration", elapsed)
	return nil
}
