package theme

import (
	"github.com/mattn/go-runewidth"

	"github.com/matzehuels/heapview/pkg/geom"
	"github.com/matzehuels/heapview/pkg/scene"
)

// indexScale shrinks list indices relative to the body font.
const indexScale = 0.85

// Measurer returns a text measurer for the theme's fonts.
func (t *Theme) Measurer() scene.Measurer { return measurer{t.Fonts} }

type measurer struct {
	fonts Fonts
}

// Measure estimates the text box from cell widths, so wide CJK runes and
// emoji count double and combining marks count zero.
func (m measurer) Measure(text string, role scene.Role) geom.Size {
	size := m.FontSize(role)
	cells := runewidth.StringWidth(text)
	return geom.Size{
		W: float64(cells) * size * m.fonts.CharWidth,
		H: size * m.fonts.LineHeight,
	}
}

// FontSize returns the pixel size used for role.
func (m measurer) FontSize(role scene.Role) float64 {
	switch role {
	case scene.RoleTitle:
		return m.fonts.TitleSize
	case scene.RoleLabel:
		return m.fonts.LabelSize
	case scene.RoleIndex:
		return m.fonts.Size * indexScale
	default:
		return m.fonts.Size
	}
}

// FontSize returns the pixel size the theme uses for role.
func (t *Theme) FontSize(role scene.Role) float64 { return measurer{t.Fonts}.FontSize(role) }
