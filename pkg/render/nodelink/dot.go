package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/heapview/pkg/scene"
	"github.com/matzehuels/heapview/pkg/theme"
	"github.com/matzehuels/heapview/pkg/trace"
	"github.com/matzehuels/heapview/pkg/viewer"
)

// Options configures DOT generation.
type Options struct {
	// Compact draws each panel as its title only, with edges between boxes
	// instead of from individual slots.
	Compact bool
}

type port struct {
	node, name string
}

// ToDOT converts a surface to Graphviz DOT. Frames, statics and heap boxes
// become HTML-table nodes with one row per slot; references become edges
// from the slot's port to the target box. A nil theme uses [theme.Default].
func ToDOT(s viewer.Surface, th *theme.Theme, opts Options) string {
	if th == nil {
		th = theme.Default()
	}
	c := th.Colors

	var buf bytes.Buffer
	buf.WriteString("digraph heap {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	fmt.Fprintf(&buf, "  node [shape=plaintext, fontname=%q, fontsize=%g];\n", th.Fonts.Family, th.Fonts.Size)
	fmt.Fprintf(&buf, "  edge [color=%q, fontname=%q, fontsize=%g, fontcolor=%q];\n", c.Edge, th.Fonts.Family, th.Fonts.LabelSize, c.Label)
	buf.WriteString("  ranksep=0.6;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	ports := make(map[trace.Path]port)
	writePanel := func(p scene.Panel, node string) {
		fmt.Fprintf(&buf, "  %q [label=<%s>];\n", node, table(p, th, opts.Compact))
		for i, sl := range p.Slots {
			ports[sl.Path] = port{node, "v" + strconv.Itoa(i)}
			kp := sl.Path
			kp.IsKey = true
			ports[kp] = port{node, "k" + strconv.Itoa(i)}
		}
	}

	buf.WriteString("  subgraph cluster_stack {\n    style=invis;\n")
	for i, p := range s.Frames {
		buf.WriteString("  ")
		writePanel(p, "frame"+strconv.Itoa(i))
	}
	if s.Statics != nil {
		buf.WriteString("  ")
		writePanel(*s.Statics, "statics")
	}
	buf.WriteString("  }\n")
	for _, p := range s.Entities {
		writePanel(p, entityNode(p.ID))
	}

	buf.WriteString("\n")
	seen := make(map[[2]string]bool)
	for _, e := range s.Edges {
		from, ok := ports[e.Source]
		if !ok {
			continue
		}
		to := entityNode(e.Target)
		var attrs []string
		if e.Label != "" {
			attrs = append(attrs, fmt.Sprintf("label=%q", e.Label))
		}
		if e.Selected {
			attrs = append(attrs, fmt.Sprintf("color=%q", c.EdgeSelected), "penwidth=2")
		}
		if opts.Compact {
			k := [2]string{from.node, to}
			if seen[k] {
				continue
			}
			seen[k] = true
			fmt.Fprintf(&buf, "  %q -> %q", from.node, to)
		} else {
			fmt.Fprintf(&buf, "  %q:%q -> %q", from.node, from.name, to)
		}
		if len(attrs) > 0 {
			fmt.Fprintf(&buf, " [%s]", strings.Join(attrs, ", "))
		}
		buf.WriteString(";\n")
	}

	buf.WriteString("}\n")
	return buf.String()
}

func entityNode(id int64) string { return "e" + strconv.FormatInt(id, 10) }

// table renders a panel as a Graphviz HTML-like label.
func table(p scene.Panel, th *theme.Theme, compact bool) string {
	c := th.Colors
	fill := c.Panel
	if p.Internal {
		fill = c.Internal
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<TABLE BORDER="0" CELLBORDER="1" CELLSPACING="0" CELLPADDING="4" BGCOLOR="%s" COLOR="%s">`, fill, c.Border)
	fmt.Fprintf(&b, `<TR><TD COLSPAN="2" BGCOLOR="%s"><FONT COLOR="%s"><B>%s</B></FONT></TD></TR>`, c.Title, c.TitleText, esc(p.Title))
	if compact {
		b.WriteString("</TABLE>")
		return b.String()
	}
	for i, sl := range p.Slots {
		key := esc(sl.Key)
		if sl.MapKey != nil && sl.MapKey.IsRef() {
			key = "&#8226;"
		}
		val := esc(sl.Text)
		if sl.Value.IsRef() {
			val = "&#8226;"
		}
		fmt.Fprintf(&b, `<TR><TD PORT="k%d" ALIGN="RIGHT">%s</TD><TD PORT="v%d" ALIGN="LEFT">%s</TD></TR>`,
			i, cell(key, c.Key, sl.KeyChange, c.Changed), i, cell(val, c.Value, sl.Changed, c.Changed))
	}
	b.WriteString("</TABLE>")
	return b.String()
}

func cell(text, color string, changed bool, changedColor string) string {
	if changed {
		return fmt.Sprintf(`<FONT COLOR="%s"><B>%s</B></FONT>`, changedColor, text)
	}
	return fmt.Sprintf(`<FONT COLOR="%s">%s</FONT>`, color, text)
}

func esc(s string) string {
	if s == "" {
		return " "
	}
	return html.EscapeString(s)
}

// RenderSVG lays out DOT with Graphviz and returns the SVG.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces Graphviz's pt-sized root element with one whose
// width and height match the viewBox.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}
	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}
	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`, w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}
