package theme

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matzehuels/heapview/pkg/errors"
	"github.com/matzehuels/heapview/pkg/layout/grid"
	"github.com/matzehuels/heapview/pkg/scene"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestParse(t *testing.T) {
	th, err := Parse([]byte(`
[fonts]
size = 14

[colors]
changed = "#ff0000"

[layout]
mode = "grid"
flow_width = 1200
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if th.Fonts.Size != 14 {
		t.Errorf("size = %v, want 14", th.Fonts.Size)
	}
	if th.Colors.Changed != "#ff0000" {
		t.Errorf("changed = %q", th.Colors.Changed)
	}
	if th.Layout.Mode != grid.Grid || th.Layout.FlowWidth != 1200 {
		t.Errorf("layout = %+v", th.Layout)
	}
	// Untouched keys keep their defaults.
	def := Default()
	if th.Colors.Edge != def.Colors.Edge || th.Layout.Padding != def.Layout.Padding {
		t.Error("missing keys should fall back to defaults")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  errors.Code
	}{
		{"syntax", `[fonts`, errors.ErrCodeInvalidFormat},
		{"unknown key", "[fonts]\nweight = 3", errors.ErrCodeInvalidFormat},
		{"bad mode", "[layout]\nmode = \"spiral\"", errors.ErrCodeInvalidFormat},
		{"zero size", "[fonts]\nsize = 0", errors.ErrCodeInvalidInput},
		{"negative padding", "[layout]\npadding = -1", errors.ErrCodeInvalidInput},
		{"quoted color", "[colors]\nedge = 'red\" onload=\"alert(1)'", errors.ErrCodeInvalidInput},
		{"markup color", "[colors]\nbackground = \"</svg>\"", errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			if !errors.Is(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "theme.toml")
	if err := os.WriteFile(path, []byte("[layout]\ngap = 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	th, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if th.Layout.Gap != 10 {
		t.Errorf("gap = %v, want 10", th.Layout.Gap)
	}

	if _, err := Load(filepath.Join(dir, "missing.toml")); !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("missing file err = %v", err)
	}
}

func TestMeasure(t *testing.T) {
	th := Default()
	th.Fonts.Size, th.Fonts.CharWidth, th.Fonts.LineHeight = 10, 0.5, 2
	m := th.Measurer()

	tests := []struct {
		text string
		role scene.Role
		w, h float64
	}{
		{"abcd", scene.RoleValue, 20, 20},
		{"", scene.RoleKey, 0, 20},
		{"世界", scene.RoleValue, 20, 20}, // two wide runes, four cells
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := m.Measure(tt.text, tt.role)
			if got.W != tt.w || got.H != tt.h {
				t.Errorf("Measure(%q) = %v, want %vx%v", tt.text, got, tt.w, tt.h)
			}
		})
	}

	if th.FontSize(scene.RoleIndex) >= th.FontSize(scene.RoleValue) {
		t.Error("indices should be smaller than values")
	}
}

func TestSceneOptions(t *testing.T) {
	th := Default()
	opts := th.SceneOptions()
	if opts.Measurer == nil || opts.PointerSlot.W != th.Layout.PointerSlot {
		t.Errorf("options = %+v", opts)
	}
}
