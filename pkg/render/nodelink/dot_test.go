package nodelink

import (
	"context"
	"strings"
	"testing"

	"github.com/matzehuels/heapview/pkg/theme"
	"github.com/matzehuels/heapview/pkg/trace"
	"github.com/matzehuels/heapview/pkg/viewer"
)

func surface(t *testing.T) viewer.Surface {
	t.Helper()
	tr := &trace.Trace{
		Frames: []trace.Frame{{Name: "main", Locals: trace.VarsOf(map[string]trace.Value{
			"a": trace.Ref(3),
			"b": trace.Ref(3),
			"s": trace.String(`say "hi" & <bye>`),
		})}},
		Statics: trace.VarsOf(map[string]trace.Value{"Main.count": trace.Long(2)}),
	}
	tr.Heap.Put(&trace.Entity{ID: 3, Label: "Box", Body: &trace.Map{Pairs: []trace.Pair{
		{Key: trace.Ref(3), Val: trace.Long(1)},
	}}})

	p := viewer.New(viewer.Options{Scene: theme.Default().SceneOptions()})
	if _, err := p.SetTrace(tr); err != nil {
		t.Fatalf("SetTrace: %v", err)
	}
	if err := p.SetLabel(3, "box"); err != nil {
		t.Fatal(err)
	}
	return p.Surface()
}

func TestToDOT(t *testing.T) {
	dot := ToDOT(surface(t), nil, Options{})

	tests := []struct {
		name string
		want string
	}{
		{"header", "digraph heap {"},
		{"frame node", `"frame0" [label=<`},
		{"statics node", `"statics" [label=<`},
		{"entity node", `"e3" [label=<`},
		{"slot edge", `"frame0":"v0" -> "e3" [label="box"]`},
		{"map key edge", `"e3":"k0" -> "e3"`},
		{"escaped text", `&#34;hi&#34; &amp; &lt;bye&gt;`},
		{"pointer glyph", `&#8226;`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(dot, tt.want) {
				t.Errorf("DOT lacks %q\n%s", tt.want, dot)
			}
		})
	}
	if n := strings.Count(dot, " -> "); n != 3 {
		t.Errorf("%d edges, want 3", n)
	}
}

func TestToDOTCompact(t *testing.T) {
	dot := ToDOT(surface(t), nil, Options{Compact: true})
	if strings.Contains(dot, "PORT=") {
		t.Error("compact output should not contain slot rows")
	}
	// a and b both point at 3 from the same frame: one merged edge.
	if n := strings.Count(dot, `"frame0" -> "e3"`); n != 1 {
		t.Errorf("%d frame edges, want 1", n)
	}
}

func TestRenderSVG(t *testing.T) {
	svg, err := RenderSVG(context.Background(), ToDOT(surface(t), nil, Options{}))
	if err != nil {
		t.Fatalf("RenderSVG: %v", err)
	}
	out := string(svg)
	if !strings.Contains(out, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 `) {
		t.Errorf("root element not normalized: %.200s", out)
	}
	if !strings.Contains(out, "e3") {
		t.Error("entity node missing from SVG")
	}
}

func TestNormalizeViewBox(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"rewrites root",
			`<svg width="62pt" height="44pt" viewBox="0.00 0.00 62.00 44.00" xmlns="http://www.w3.org/2000/svg"><g/></svg>`,
			`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 62.00 44.00" width="62" height="44"><g/></svg>`,
		},
		{"no viewBox", `<svg><g/></svg>`, `<svg><g/></svg>`},
		{"zero size", `<svg viewBox="0 0 0 10"></svg>`, `<svg viewBox="0 0 0 10"></svg>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(normalizeViewBox([]byte(tt.in))); got != tt.want {
				t.Errorf("got %s\nwant %s", got, tt.want)
			}
		})
	}
}
