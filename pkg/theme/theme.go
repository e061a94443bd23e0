// Package theme holds the visual configuration shared by the painters and
// the text measurer: fonts, colors and the spacing constants fed into scene
// layout.
//
// Themes are TOML files. Every key is optional and falls back to [Default]:
//
//	[fonts]
//	family = "JetBrains Mono, monospace"
//	size = 12
//
//	[colors]
//	changed = "#f5c542"
//
//	[layout]
//	padding = 4
//	flow_width = 1200
//	hit_tolerance = 5
//
// Unknown keys are rejected so that typos do not silently fall back.
package theme

import (
	"os"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/heapview/pkg/errors"
	"github.com/matzehuels/heapview/pkg/geom"
	"github.com/matzehuels/heapview/pkg/layout/grid"
	"github.com/matzehuels/heapview/pkg/scene"
)

// Theme is a complete visual configuration.
type Theme struct {
	Fonts  Fonts   `toml:"fonts"`
	Colors Colors  `toml:"colors"`
	Layout Spacing `toml:"layout"`
}

// Fonts describes text metrics. Widths are estimated from the terminal cell
// width of each rune times CharWidth times the font size.
type Fonts struct {
	Family     string  `toml:"family"`
	Size       float64 `toml:"size"`        // key and value text, px
	TitleSize  float64 `toml:"title_size"`  // panel titles, px
	LabelSize  float64 `toml:"label_size"`  // edge labels, px
	CharWidth  float64 `toml:"char_width"`  // advance per cell as a fraction of size
	LineHeight float64 `toml:"line_height"` // line box as a multiple of size
}

// Colors are CSS color strings.
type Colors struct {
	Background   string `toml:"background"`
	Panel        string `toml:"panel"`
	Title        string `toml:"title"`
	TitleText    string `toml:"title_text"`
	Internal     string `toml:"internal"`
	Border       string `toml:"border"`
	Divider      string `toml:"divider"`
	Key          string `toml:"key"`
	Value        string `toml:"value"`
	Changed      string `toml:"changed"`
	Pointer      string `toml:"pointer"`
	Edge         string `toml:"edge"`
	EdgeSelected string `toml:"edge_selected"`
	Label        string `toml:"label"`
}

// Spacing holds the layout constants in model units.
type Spacing struct {
	Mode         grid.Mode `toml:"mode"`
	Padding      float64   `toml:"padding"`
	Gap          float64   `toml:"gap"`
	FlowWidth    float64   `toml:"flow_width"`
	PointerSlot  float64   `toml:"pointer_slot"`
	HitTolerance float64   `toml:"hit_tolerance"`
}

// Default returns the built-in light theme.
func Default() *Theme {
	return &Theme{
		Fonts: Fonts{
			Family:     "Menlo, Consolas, monospace",
			Size:       12,
			TitleSize:  12,
			LabelSize:  11,
			CharWidth:  0.6,
			LineHeight: 1.4,
		},
		Colors: Colors{
			Background:   "#ffffff",
			Panel:        "#fbfbfb",
			Title:        "#e8eef7",
			TitleText:    "#1f2933",
			Internal:     "#eeeeee",
			Border:       "#9aa5b1",
			Divider:      "#cbd2d9",
			Key:          "#52606d",
			Value:        "#1f2933",
			Changed:      "#d64545",
			Pointer:      "#2f80ed",
			Edge:         "#2f80ed",
			EdgeSelected: "#f7931e",
			Label:        "#323f4b",
		},
		Layout: Spacing{
			Mode:         grid.Stacked,
			Padding:      4,
			Gap:          24,
			FlowWidth:    900,
			PointerSlot:  14,
			HitTolerance: 4,
		},
	}
}

// Load reads a theme file on top of [Default].
func Load(path string) (*Theme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "theme %s", path)
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read theme %s", path)
	}
	return Parse(data)
}

// Parse decodes TOML theme data on top of [Default].
func Parse(data []byte) (*Theme, error) {
	t := Default()
	md, err := toml.Decode(string(data), t)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "parse theme")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.New(errors.ErrCodeInvalidFormat, "unknown theme keys: %s", strings.Join(keys, ", "))
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks that sizes are positive, spacing is non-negative and colors
// hold no markup.
func (t *Theme) Validate() error {
	positive := map[string]float64{
		"fonts.size":          t.Fonts.Size,
		"fonts.title_size":    t.Fonts.TitleSize,
		"fonts.label_size":    t.Fonts.LabelSize,
		"fonts.char_width":    t.Fonts.CharWidth,
		"fonts.line_height":   t.Fonts.LineHeight,
		"layout.flow_width":   t.Layout.FlowWidth,
		"layout.pointer_slot": t.Layout.PointerSlot,
	}
	for key, v := range positive {
		if !(v > 0) {
			return errors.New(errors.ErrCodeInvalidInput, "theme: %s must be positive, got %v", key, v)
		}
	}
	nonNegative := map[string]float64{
		"layout.padding":       t.Layout.Padding,
		"layout.gap":           t.Layout.Gap,
		"layout.hit_tolerance": t.Layout.HitTolerance,
	}
	for key, v := range nonNegative {
		if !(v >= 0) {
			return errors.New(errors.ErrCodeInvalidInput, "theme: %s must not be negative, got %v", key, v)
		}
	}
	for key, v := range t.Colors.named() {
		if strings.ContainsAny(v, `"'<>&`) || strings.IndexFunc(v, unicode.IsControl) >= 0 {
			return errors.New(errors.ErrCodeInvalidInput, "theme: colors.%s is not a CSS color: %q", key, v)
		}
	}
	return nil
}

func (c Colors) named() map[string]string {
	return map[string]string{
		"background":    c.Background,
		"panel":         c.Panel,
		"title":         c.Title,
		"title_text":    c.TitleText,
		"internal":      c.Internal,
		"border":        c.Border,
		"divider":       c.Divider,
		"key":           c.Key,
		"value":         c.Value,
		"changed":       c.Changed,
		"pointer":       c.Pointer,
		"edge":          c.Edge,
		"edge_selected": c.EdgeSelected,
		"label":         c.Label,
	}
}

// SceneOptions returns scene geometry for this theme.
func (t *Theme) SceneOptions() scene.Options {
	return scene.Options{
		Mode:        t.Layout.Mode,
		Padding:     t.Layout.Padding,
		Gap:         t.Layout.Gap,
		FlowWidth:   t.Layout.FlowWidth,
		PointerSlot: geom.Size{W: t.Layout.PointerSlot, H: t.Layout.PointerSlot},
		Measurer:    t.Measurer(),
	}
}
