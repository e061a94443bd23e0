package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/matzehuels/heapview/pkg/cache"
	"github.com/matzehuels/heapview/pkg/errors"
	"github.com/matzehuels/heapview/pkg/layout/grid"
)

const (
	prevJSON = `{"frames":[{"name":"main","locals":[["n",["LONG",1]],["p",["REFERENCE",4]]]}],` +
		`"heap":[{"id":4,"label":"Node","type":"OBJECT","fields":[["v",["BOOLEAN",false]]]}]}`
	curJSON = `{"frames":[{"name":"main","locals":[["n",["LONG",2]],["p",["REFERENCE",4]]]}],` +
		`"heap":[{"id":4,"label":"Node","type":"OBJECT","fields":[["v",["BOOLEAN",true]]]}]}`
)

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"svg", false},
		{"dot", false},
		{"graphviz", false},
		{"json", false},
		{"png", true},
		{"SVG", true},
		{"", true},
	}
	for _, tt := range tests {
		err := ValidateFormat(tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateFormat(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
		}
	}
}

func TestValidateAndSetDefaults(t *testing.T) {
	opts := Options{Trace: []byte(curJSON)}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatal(err)
	}
	if opts.Scale != DefaultScale || len(opts.Formats) != 1 || opts.Formats[0] != FormatSVG {
		t.Errorf("defaults = scale %v formats %v", opts.Scale, opts.Formats)
	}
	if opts.Theme == nil || opts.LayoutMode() != grid.Stacked {
		t.Error("theme and mode should default")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		code errors.Code
	}{
		{"no trace", Options{}, errors.ErrCodeInvalidInput},
		{"negative scale", Options{Trace: []byte("{}"), Scale: -1}, errors.ErrCodeInvalidInput},
		{"bad mode", Options{Trace: []byte("{}"), Mode: "diagonal"}, errors.ErrCodeInvalidMode},
		{"bad format", Options{Trace: []byte("{}"), Formats: []string{"pdf"}}, errors.ErrCodeUnsupported},
		{"bad label", Options{Trace: []byte("{}"), Labels: map[int64]string{1: "a\nb"}}, errors.ErrCodeInvalidLabel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.ValidateAndSetDefaults()
			if !errors.Is(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestExecute(t *testing.T) {
	r := NewRunner(nil, nil, nil)
	res, err := r.Execute(context.Background(), Options{
		Trace:    []byte(curJSON),
		Previous: []byte(prevJSON),
		Formats:  []string{FormatSVG, FormatDOT, FormatJSON},
		Labels:   map[int64]string{4: "node"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if res.Stats.Changed != 2 || res.Stats.Entities != 1 || res.Stats.Edges != 1 {
		t.Errorf("stats = %+v", res.Stats)
	}
	if res.CacheInfo.RenderHit {
		t.Error("null cache cannot hit")
	}
	if !strings.HasPrefix(string(res.Artifacts[FormatSVG]), "<svg") {
		t.Error("svg artifact missing")
	}
	if !strings.Contains(string(res.Artifacts[FormatDOT]), `[label="node"]`) {
		t.Errorf("dot artifact lacks the label:\n%s", res.Artifacts[FormatDOT])
	}

	var s struct {
		Changed int `json:"changed"`
		Edges   []struct {
			Label string `json:"label"`
		} `json:"edges"`
	}
	if err := json.Unmarshal(res.Artifacts[FormatJSON], &s); err != nil {
		t.Fatal(err)
	}
	if s.Changed != 2 || len(s.Edges) != 1 || s.Edges[0].Label != "node" {
		t.Errorf("json surface = %+v", s)
	}
}

func TestExecuteCaches(t *testing.T) {
	ctx := context.Background()
	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	r := NewRunner(c, nil, nil)
	opts := Options{Trace: []byte(curJSON), Formats: []string{FormatSVG, FormatDOT}}

	first, err := r.Execute(ctx, opts)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Execute(ctx, opts)
	if err != nil {
		t.Fatal(err)
	}
	if !second.CacheInfo.RenderHit {
		t.Error("second run should come from cache")
	}
	if string(first.Artifacts[FormatSVG]) != string(second.Artifacts[FormatSVG]) {
		t.Error("cached artifact differs")
	}

	tests := []struct {
		name   string
		change func(*Options)
	}{
		{"refresh", func(o *Options) { o.Refresh = true }},
		{"mode", func(o *Options) { o.Mode = "grid" }},
		{"scale", func(o *Options) { o.Scale = 2 }},
		{"previous", func(o *Options) { o.Previous = []byte(prevJSON) }},
		{"labels", func(o *Options) { o.Labels = map[int64]string{4: "x"} }},
		{"new format", func(o *Options) { o.Formats = []string{FormatSVG, FormatJSON} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := opts
			tt.change(&o)
			res, err := r.Execute(ctx, o)
			if err != nil {
				t.Fatal(err)
			}
			if res.CacheInfo.RenderHit {
				t.Errorf("changing %s should miss the cache", tt.name)
			}
		})
	}
}

func TestExecuteDecodeError(t *testing.T) {
	r := NewRunner(nil, nil, nil)
	_, err := r.Execute(context.Background(), Options{Trace: []byte(`{"frames":[]}`)})
	if !errors.Is(err, errors.ErrCodeInvalidFormat) {
		t.Errorf("err = %v, want INVALID_FORMAT", err)
	}
	_, err = r.Execute(context.Background(), Options{Trace: []byte(curJSON), Previous: []byte("nope")})
	if !errors.Is(err, errors.ErrCodeInvalidFormat) {
		t.Errorf("previous err = %v, want INVALID_FORMAT", err)
	}
}

func TestExecuteUnknownLabelTarget(t *testing.T) {
	r := NewRunner(nil, nil, nil)
	res, err := r.Execute(context.Background(), Options{
		Trace:   []byte(curJSON),
		Formats: []string{FormatDOT},
		Labels:  map[int64]string{99: "ghost"},
	})
	if err != nil {
		t.Fatalf("a label without an edge should be skipped: %v", err)
	}
	if strings.Contains(string(res.Artifacts[FormatDOT]), "ghost") {
		t.Error("label applied to a missing edge")
	}
}

func TestExtension(t *testing.T) {
	for format, want := range map[string]string{
		FormatSVG:      ".svg",
		FormatDOT:      ".dot",
		FormatJSON:     ".json",
		FormatGraphviz: ".graphviz.svg",
	} {
		if got := Extension(format); got != want {
			t.Errorf("Extension(%s) = %s, want %s", format, got, want)
		}
	}
}
