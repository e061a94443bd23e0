// Package svg paints a viewer surface as a standalone SVG document.
//
// Frames, the statics panel and heap boxes are drawn as titled grids with
// their divider rules; reference cells show a dot, and every edge is a cubic
// curve from the dot to the left edge of the target box with an arrow head
// and its optional label at the curve's midpoint. Changed values use the
// theme's changed color.
//
//	p := viewer.New(viewer.Options{Scene: th.SceneOptions()})
//	p.SetTrace(t)
//	doc := svg.Render(p.Surface(), th, svg.WithInteraction())
//
// Output is deterministic: the same surface and theme always produce the same
// bytes, which is what lets the render runner cache it.
package svg

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/matzehuels/heapview/pkg/geom"
	"github.com/matzehuels/heapview/pkg/scene"
	"github.com/matzehuels/heapview/pkg/theme"
	"github.com/matzehuels/heapview/pkg/trace"
	"github.com/matzehuels/heapview/pkg/viewer"
)

const interactionCSS = `
    .entity { transition: opacity 0.15s ease; }
    .entity.dim { opacity: 0.35; }
    .edge { transition: stroke-width 0.15s ease; }
    .edge.highlight { stroke-width: 3; }`

const interactionJS = `
    function focusEntity(id) {
      document.querySelectorAll('.entity').forEach(b => b.classList.toggle('dim', id !== null && b.id !== 'entity-' + id));
      document.querySelectorAll('.edge').forEach(e => e.classList.toggle('highlight', e.dataset.target === id));
    }
    document.querySelectorAll('.entity').forEach(el => {
      el.addEventListener('mouseenter', () => focusEntity(el.id.replace('entity-', '')));
      el.addEventListener('mouseleave', () => focusEntity(null));
    });`

// Option configures rendering.
type Option func(*renderer)

type renderer struct {
	theme       *theme.Theme
	colors      theme.Colors // attribute-escaped
	interaction bool
	title       string
}

// WithInteraction embeds hover highlighting of boxes and their incoming edges.
func WithInteraction() Option { return func(r *renderer) { r.interaction = true } }

// WithTitle sets the document <title>.
func WithTitle(s string) Option { return func(r *renderer) { r.title = s } }

// Render paints s. A nil theme uses [theme.Default].
func Render(s viewer.Surface, th *theme.Theme, opts ...Option) []byte {
	r := renderer{theme: th}
	if r.theme == nil {
		r.theme = theme.Default()
	}
	for _, opt := range opts {
		opt(&r)
	}
	r.colors = escapeColors(r.theme.Colors)

	scale := s.Scale
	if !(scale > 0) {
		scale = 1
	}
	margin := r.theme.Layout.Gap
	w := (s.Bounds.X + s.Bounds.W + margin) * scale
	h := (s.Bounds.Y + s.Bounds.H + margin) * scale

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.1f %.1f" width="%.0f" height="%.0f">`+"\n", w, h, w, h)
	if r.title != "" {
		fmt.Fprintf(&buf, "  <title>%s</title>\n", escape(r.title))
	}
	r.defs(&buf)
	fmt.Fprintf(&buf, `  <rect width="100%%" height="100%%" fill="%s"/>`+"\n", r.colors.Background)
	fmt.Fprintf(&buf, `  <g transform="scale(%g)" font-family="%s">`+"\n", scale, escape(r.theme.Fonts.Family))

	for i, p := range s.Frames {
		r.panel(&buf, p, fmt.Sprintf("frame-%d", i), "frame", false)
	}
	if s.Statics != nil {
		r.panel(&buf, *s.Statics, "statics", "statics", false)
	}
	for _, p := range s.Entities {
		dragging := s.Dragging != nil && *s.Dragging == p.ID
		r.panel(&buf, p, fmt.Sprintf("entity-%d", p.ID), "entity", dragging)
	}
	for _, e := range s.Edges {
		r.edge(&buf, e)
	}

	buf.WriteString("  </g>\n")
	if r.interaction {
		fmt.Fprintf(&buf, "  <style>%s\n  </style>\n", interactionCSS)
		fmt.Fprintf(&buf, "  <script type=\"text/javascript\"><![CDATA[%s\n  ]]></script>\n", interactionJS)
	}
	buf.WriteString("</svg>\n")
	return buf.Bytes()
}

func (r *renderer) defs(buf *bytes.Buffer) {
	c := r.colors
	buf.WriteString("  <defs>\n")
	for _, m := range []struct{ id, color string }{{"arrow", c.Edge}, {"arrow-selected", c.EdgeSelected}} {
		fmt.Fprintf(buf, `    <marker id="%s" viewBox="0 0 10 10" refX="10" refY="5" markerWidth="7" markerHeight="7" orient="auto-start-reverse">`+
			`<path d="M 0 0 L 10 5 L 0 10 z" fill="%s"/></marker>`+"\n", m.id, m.color)
	}
	buf.WriteString("  </defs>\n")
}

func (r *renderer) panel(buf *bytes.Buffer, p scene.Panel, id, class string, dragging bool) {
	c := r.colors
	if dragging {
		class += " dragging"
	}
	opacity := ""
	if dragging {
		opacity = ` opacity="0.8"`
	}
	fmt.Fprintf(buf, `    <g id="%s" class="%s"%s>`+"\n", id, class, opacity)

	fill := c.Panel
	if p.Internal {
		fill = c.Internal
	}
	fmt.Fprintf(buf, `      <rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s" stroke="%s"/>`+"\n",
		p.Rect.X, p.Rect.Y, p.Rect.W, p.Rect.H, fill, c.Border)
	fmt.Fprintf(buf, `      <rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s" stroke="%s"/>`+"\n",
		p.TitleRect.X, p.TitleRect.Y, p.TitleRect.W, p.TitleRect.H, c.Title, c.Border)
	ct := p.TitleRect.Center()
	fmt.Fprintf(buf, `      <text x="%.1f" y="%.1f" font-size="%g" font-weight="bold" fill="%s" text-anchor="middle" dominant-baseline="central">%s</text>`+"\n",
		ct.X, ct.Y, r.theme.FontSize(scene.RoleTitle), c.TitleText, escape(p.Title))

	for _, l := range p.Lines {
		fmt.Fprintf(buf, `      <line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s"/>`+"\n",
			l.From.X, l.From.Y, l.To.X, l.To.Y, c.Divider)
	}

	keyRole := scene.RoleKey
	if p.Body == trace.KindList {
		keyRole = scene.RoleIndex
	}
	for _, s := range p.Slots {
		if s.MapKey != nil && s.MapKey.IsRef() {
			r.pointer(buf, s.KeyRect)
		} else {
			r.text(buf, s.KeyRect, s.Key, keyRole, c.Key, s.KeyChange)
		}
		if s.Value.IsRef() {
			r.pointer(buf, s.ValueRect)
		} else {
			r.text(buf, s.ValueRect, s.Text, scene.RoleValue, c.Value, s.Changed)
		}
	}
	buf.WriteString("    </g>\n")
}

func (r *renderer) text(buf *bytes.Buffer, rect geom.Rect, s string, role scene.Role, color string, changed bool) {
	weight := ""
	if changed {
		color = r.colors.Changed
		weight = ` font-weight="bold" class="changed"`
	}
	fmt.Fprintf(buf, `      <text x="%.1f" y="%.1f" font-size="%g" fill="%s"%s dominant-baseline="central">%s</text>`+"\n",
		rect.X, rect.Y+rect.H/2, r.theme.FontSize(role), color, weight, escape(s))
}

func (r *renderer) pointer(buf *bytes.Buffer, rect geom.Rect) {
	c := rect.Center()
	fmt.Fprintf(buf, `      <circle cx="%.1f" cy="%.1f" r="%.1f" fill="%s"/>`+"\n",
		c.X, c.Y, min(rect.W, rect.H)/4, r.colors.Pointer)
}

func (r *renderer) edge(buf *bytes.Buffer, e viewer.SurfaceEdge) {
	color, marker, width := r.colors.Edge, "arrow", 1.5
	if e.Selected {
		color, marker, width = r.colors.EdgeSelected, "arrow-selected", 2.5
	}
	c := e.Curve()
	fmt.Fprintf(buf, `    <path class="edge" data-target="%d" d="M %.1f %.1f C %.1f %.1f, %.1f %.1f, %.1f %.1f" fill="none" stroke="%s" stroke-width="%g" marker-end="url(#%s)"/>`+"\n",
		e.Target, c[0].X, c[0].Y, c[1].X, c[1].Y, c[2].X, c[2].Y, c[3].X, c[3].Y, color, width, marker)
	if e.Label == "" {
		return
	}
	mid := midpoint(c)
	fmt.Fprintf(buf, `    <text class="edge-label" x="%.1f" y="%.1f" font-size="%g" fill="%s" text-anchor="middle">%s</text>`+"\n",
		mid.X, mid.Y-3, r.theme.FontSize(scene.RoleLabel), r.colors.Label, escape(e.Label))
}

// midpoint evaluates a cubic Bézier at t = 0.5.
func midpoint(c [4]geom.Point) geom.Point {
	return geom.Point{
		X: (c[0].X + 3*c[1].X + 3*c[2].X + c[3].X) / 8,
		Y: (c[0].Y + 3*c[1].Y + 3*c[2].Y + c[3].Y) / 8,
	}
}

// escapeColors escapes every color for use inside an attribute value.
func escapeColors(c theme.Colors) theme.Colors {
	for _, p := range []*string{
		&c.Background, &c.Panel, &c.Title, &c.TitleText, &c.Internal, &c.Border, &c.Divider,
		&c.Key, &c.Value, &c.Changed, &c.Pointer, &c.Edge, &c.EdgeSelected, &c.Label,
	} {
		*p = escape(*p)
	}
	return c
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
