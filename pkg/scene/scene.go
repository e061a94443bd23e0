// Package scene computes the geometry of a whole diagram for one trace.
//
// A [Scene] has one panel per stack frame, an optional statics panel, and one
// box per heap entity. Every panel holds a titled key/value grid whose cells
// carry absolute rectangles. Frame panels are stacked in a column on the
// left. Entity boxes flow left to right in ascending id order to the right of
// that column and wrap at [Options.FlowWidth]. A [refgraph.Placement] override
// replaces the flow position of its box.
//
// Scene knows nothing about fonts or colors. Text extents come from the
// [Measurer] supplied by the host, so the same trace measured by the same
// Measurer always yields the same scene.
package scene

import (
	"strconv"

	"github.com/matzehuels/heapview/pkg/errors"
	"github.com/matzehuels/heapview/pkg/geom"
	"github.com/matzehuels/heapview/pkg/layout/grid"
	"github.com/matzehuels/heapview/pkg/refgraph"
	"github.com/matzehuels/heapview/pkg/trace"
)

// Role tells a [Measurer] what kind of text it is sizing.
type Role uint8

const (
	RoleTitle Role = iota // panel and box titles
	RoleKey               // local, static, field and map-key names
	RoleValue             // rendered primitive values
	RoleIndex             // list indices
	RoleLabel             // edge labels
)

// Measurer returns the size a text needs when drawn in the given role.
type Measurer interface {
	Measure(text string, role Role) geom.Size
}

// PanelKind distinguishes the three panel families.
type PanelKind string

const (
	PanelFrame   PanelKind = "frame"
	PanelStatics PanelKind = "statics"
	PanelEntity  PanelKind = "entity"
)

// Options controls scene geometry.
type Options struct {
	Mode        grid.Mode // layout of object and map bodies
	Padding     float64   // grid padding
	Gap         float64   // space between panels and boxes
	FlowWidth   float64   // heap area width before boxes wrap
	PointerSlot geom.Size // fixed size of reference value cells
	Measurer    Measurer
}

// DefaultOptions returns the geometry used when no theme overrides it.
func DefaultOptions(m Measurer) Options {
	return Options{
		Mode:        grid.Stacked,
		Padding:     4,
		Gap:         24,
		FlowWidth:   900,
		PointerSlot: geom.Size{W: 16, H: 16},
		Measurer:    m,
	}
}

// Slot is one key/value row (or column) of a panel.
type Slot struct {
	Path      trace.Path   `json:"-"`
	Key       string       `json:"key"`
	KeyRect   geom.Rect    `json:"keyRect"`
	MapKey    *trace.Value `json:"-"` // key value of a map pair
	Value     trace.Value  `json:"-"`
	Text      string       `json:"value"`
	ValueRect geom.Rect    `json:"valueRect"`
	Changed   bool         `json:"changed,omitempty"`
	KeyChange bool         `json:"keyChanged,omitempty"`
}

// Line is a divider segment inside a panel.
type Line struct {
	From geom.Point `json:"from"`
	To   geom.Point `json:"to"`
}

// Panel is a titled key/value grid: a frame, the statics, or a heap entity.
type Panel struct {
	Kind      PanelKind        `json:"kind"`
	ID        int64            `json:"id,omitempty"`
	Title     string           `json:"title"`
	Body      trace.EntityKind `json:"body,omitempty"`
	Internal  bool             `json:"internal,omitempty"`
	Mode      grid.Mode        `json:"mode"`
	Rect      geom.Rect        `json:"rect"`
	TitleRect geom.Rect        `json:"titleRect"`
	Slots     []Slot           `json:"slots"`
	Lines     []Line           `json:"lines,omitempty"`
}

// Translate moves the panel and all of its cells by (dx, dy).
func (p *Panel) Translate(dx, dy float64) {
	p.Rect = p.Rect.Translate(dx, dy)
	p.TitleRect = p.TitleRect.Translate(dx, dy)
	for i := range p.Slots {
		p.Slots[i].KeyRect = p.Slots[i].KeyRect.Translate(dx, dy)
		p.Slots[i].ValueRect = p.Slots[i].ValueRect.Translate(dx, dy)
	}
	for i := range p.Lines {
		p.Lines[i].From = p.Lines[i].From.Add(geom.Point{X: dx, Y: dy})
		p.Lines[i].To = p.Lines[i].To.Add(geom.Point{X: dx, Y: dy})
	}
}

// Scene is the laid-out diagram of one trace.
type Scene struct {
	Frames   []Panel `json:"frames"`
	Statics  *Panel  `json:"statics,omitempty"`
	Entities []Panel `json:"entities"`

	// Defaults holds each entity's flow position before overrides.
	Defaults map[int64]geom.Point `json:"-"`

	index map[int64]int
}

// Build lays out t. Overrides in place, which may be nil, win over the
// default flow position of their entity.
func Build(t *trace.Trace, opts Options, place *refgraph.Placement) (*Scene, error) {
	if opts.Measurer == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "scene: no measurer")
	}
	b := builder{opts: opts}
	s := &Scene{
		Defaults: make(map[int64]geom.Point, t.Heap.Len()),
		index:    make(map[int64]int, t.Heap.Len()),
	}

	// Stack column.
	y, colW := opts.Gap, 0.0
	for fi, f := range t.Frames {
		p, err := b.panel(f.Name, grid.Stacked, b.varCells(f.Locals, func(name string) trace.Path {
			return trace.Path{Area: trace.AreaFrame, Frame: fi, Name: name, Index: -1}
		}))
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidLayout, err, "frame %d (%s)", fi, f.Name)
		}
		p.Kind, p.Internal = PanelFrame, f.Internal
		p.Translate(opts.Gap, y)
		y += p.Rect.H + opts.Gap
		colW = max(colW, p.Rect.W)
		s.Frames = append(s.Frames, p)
	}
	if len(t.Statics) > 0 {
		p, err := b.panel("statics", grid.Stacked, b.varCells(t.Statics, func(name string) trace.Path {
			return trace.Path{Area: trace.AreaStatic, Name: name, Index: -1}
		}))
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidLayout, err, "statics")
		}
		p.Kind = PanelStatics
		p.Translate(opts.Gap, y)
		colW = max(colW, p.Rect.W)
		s.Statics = &p
	}

	// Heap flow.
	left := opts.Gap + colW + 2*opts.Gap
	x, rowY, rowH := left, opts.Gap, 0.0
	for e := range t.Heap.All() {
		p, err := b.entity(e)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidLayout, err, "entity %d", e.ID)
		}
		if x > left && x+p.Rect.W > left+opts.FlowWidth {
			x, rowY, rowH = left, rowY+rowH+opts.Gap, 0
		}
		def := geom.Point{X: x, Y: rowY}
		s.Defaults[e.ID] = def
		x += p.Rect.W + opts.Gap
		rowH = max(rowH, p.Rect.H)

		at := def
		if place != nil {
			at = place.Resolve(e.ID, def)
		}
		p.Translate(at.X, at.Y)
		s.index[e.ID] = len(s.Entities)
		s.Entities = append(s.Entities, p)
	}
	return s, nil
}

// Entity returns the box of entity id.
func (s *Scene) Entity(id int64) (*Panel, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return &s.Entities[i], true
}

// Move places the top-left corner of entity id at pt.
func (s *Scene) Move(id int64, pt geom.Point) bool {
	p, ok := s.Entity(id)
	if !ok {
		return false
	}
	p.Translate(pt.X-p.Rect.X, pt.Y-p.Rect.Y)
	return true
}

// EntityAt returns the topmost entity box containing pt. Later boxes are
// drawn over earlier ones.
func (s *Scene) EntityAt(pt geom.Point) (int64, bool) {
	for i := len(s.Entities) - 1; i >= 0; i-- {
		if s.Entities[i].Rect.Contains(pt) {
			return s.Entities[i].ID, true
		}
	}
	return 0, false
}

// BoxRects returns the rectangle of every entity box keyed by id.
func (s *Scene) BoxRects() map[int64]geom.Rect {
	out := make(map[int64]geom.Rect, len(s.Entities))
	for _, p := range s.Entities {
		out[p.ID] = p.Rect
	}
	return out
}

// Bounds returns the smallest rectangle covering every panel.
func (s *Scene) Bounds() geom.Rect {
	var r geom.Rect
	for _, p := range s.Panels() {
		r = r.Union(p.Rect)
	}
	return r
}

// Panels returns frames, statics and entities in drawing order.
func (s *Scene) Panels() []*Panel {
	out := make([]*Panel, 0, len(s.Frames)+len(s.Entities)+1)
	for i := range s.Frames {
		out = append(out, &s.Frames[i])
	}
	if s.Statics != nil {
		out = append(out, s.Statics)
	}
	for i := range s.Entities {
		out = append(out, &s.Entities[i])
	}
	return out
}

// References returns every reference-valued cell as an edge source, in
// drawing order. Map keys come before their values.
func (s *Scene) References() []refgraph.Source {
	var out []refgraph.Source
	for _, p := range s.Panels() {
		for _, sl := range p.Slots {
			if sl.MapKey != nil && sl.MapKey.IsRef() {
				kp := sl.Path
				kp.IsKey = true
				out = append(out, refgraph.Source{Path: kp, Slot: sl.KeyRect, Target: sl.MapKey.Ref})
			}
			if sl.Value.IsRef() {
				out = append(out, refgraph.Source{Path: sl.Path, Slot: sl.ValueRect, Target: sl.Value.Ref})
			}
		}
	}
	return out
}

// =============================================================================
// Builder
// =============================================================================

type builder struct {
	opts Options
}

// cellInput is one slot before layout.
type cellInput struct {
	slot    Slot
	keyRole Role
}

func (b *builder) varCells(vs trace.Vars, path func(string) trace.Path) []cellInput {
	out := make([]cellInput, len(vs))
	for i, v := range vs {
		out[i] = cellInput{keyRole: RoleKey, slot: Slot{Path: path(v.Name), Key: v.Name, Value: v.Value}}
	}
	return out
}

func (b *builder) entity(e *trace.Entity) (Panel, error) {
	var (
		cells []cellInput
		mode  = b.opts.Mode
	)
	switch body := e.Body.(type) {
	case *trace.Object:
		cells = b.varCells(body.Fields, func(name string) trace.Path {
			return trace.Path{Area: trace.AreaHeap, ID: e.ID, Name: name, Index: -1}
		})
	case *trace.List:
		mode = grid.Grid
		cells = make([]cellInput, len(body.Items))
		for i, v := range body.Items {
			cells[i] = cellInput{keyRole: RoleIndex, slot: Slot{
				Path:  trace.Path{Area: trace.AreaHeap, ID: e.ID, Index: i},
				Key:   strconv.Itoa(i),
				Value: v,
			}}
		}
	case *trace.Map:
		cells = make([]cellInput, len(body.Pairs))
		for i, pr := range body.Pairs {
			key := pr.Key
			cells[i] = cellInput{keyRole: RoleKey, slot: Slot{
				Path:   trace.Path{Area: trace.AreaHeap, ID: e.ID, Index: i},
				Key:    key.String(),
				MapKey: &key,
				Value:  pr.Val,
			}}
		}
	case nil:
		return Panel{}, errors.New(errors.ErrCodeInvalidInput, "entity %d has no body", e.ID)
	default:
		panic("scene: unknown entity body " + string(body.Kind()))
	}

	title := e.Label
	if title == "" {
		title = string(e.Body.Kind())
	}
	p, err := b.panel(title, mode, cells)
	if err != nil {
		return Panel{}, err
	}
	p.Kind, p.ID, p.Body = PanelEntity, e.ID, e.Body.Kind()
	return p, nil
}

// panel lays out a titled grid at the origin.
func (b *builder) panel(title string, mode grid.Mode, in []cellInput) (Panel, error) {
	m := b.opts.Measurer
	cells := make([]grid.Cell, len(in))
	for i, c := range in {
		cells[i] = grid.Cell{Key: b.keySize(c), Value: b.valueSize(c.slot.Value)}
	}
	l, err := grid.Build(cells, mode, b.opts.Padding)
	if err != nil {
		return Panel{}, err
	}

	ts := m.Measure(title, RoleTitle)
	pad := b.opts.Padding
	w := max(l.Size.W, ts.W+2*pad)
	th := ts.H + 2*pad

	p := Panel{
		Title:     title,
		Mode:      mode,
		Rect:      geom.R(0, 0, w, th+l.Size.H),
		TitleRect: geom.R(0, 0, w, th),
		Slots:     make([]Slot, len(in)),
	}
	for i, c := range in {
		s := c.slot
		s.KeyRect = l.Keys[i].Translate(0, th)
		s.ValueRect = l.Values[i].Translate(0, th)
		s.Text = s.Value.String()
		s.Changed = s.Value.Changed
		if s.MapKey != nil {
			s.KeyChange = s.MapKey.Changed
		}
		p.Slots[i] = s
	}
	p.Lines = dividers(l, w, th, pad)
	return p, nil
}

func (b *builder) keySize(c cellInput) geom.Size {
	if c.slot.MapKey != nil && c.slot.MapKey.IsRef() {
		return b.opts.PointerSlot
	}
	return b.opts.Measurer.Measure(c.slot.Key, c.keyRole)
}

func (b *builder) valueSize(v trace.Value) geom.Size {
	if v.IsRef() {
		return b.opts.PointerSlot
	}
	return b.opts.Measurer.Measure(v.String(), RoleValue)
}

// dividers converts grid offsets into segments in panel coordinates: the
// key/value divider plus a rule between consecutive pairs.
func dividers(l grid.Layout, w, top, pad float64) []Line {
	n := l.Len()
	if n == 0 {
		return nil
	}
	lines := make([]Line, 0, n)
	bottom := top + l.Size.H
	switch l.Mode {
	case grid.Stacked:
		lines = append(lines, Line{geom.Point{X: l.Divider, Y: top}, geom.Point{X: l.Divider, Y: bottom}})
		for _, sep := range l.Separators[:n-1] {
			y := top + sep - pad/2
			lines = append(lines, Line{geom.Point{X: 0, Y: y}, geom.Point{X: w, Y: y}})
		}
	case grid.Grid:
		y := top + l.Divider
		lines = append(lines, Line{geom.Point{X: 0, Y: y}, geom.Point{X: w, Y: y}})
		for _, sep := range l.Separators[:n-1] {
			x := sep - pad/2
			lines = append(lines, Line{geom.Point{X: x, Y: top}, geom.Point{X: x, Y: bottom}})
		}
	}
	return lines
}
