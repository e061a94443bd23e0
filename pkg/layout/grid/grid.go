// Package grid lays out ordered key/value pairs as a two-band table.
//
// Every structured value in a diagram (frame locals, object fields, list
// items, map pairs) is drawn as a grid of key cells and value cells. Given the
// intrinsic size of each cell, [Build] returns the rectangle of every cell in
// the grid's local coordinate space, the overall size, and the offsets at
// which divider lines are drawn.
//
// # Modes
//
// [Stacked] places one pair per row: a right-aligned key column and a
// left-aligned value column, separated by a vertical divider.
//
//	+--------------+
//	|   key | value |
//	|-------+-------|
//	| k     | v     |
//	+--------------+
//
// [Grid] is the transposed layout: one pair per column, keys bottom-aligned in
// a key band above values top-aligned in a value band.
//
// Build is a pure function of its input. Re-running it on identical input
// yields identical rectangles, so callers may lay out again on every update
// without caching.
package grid

import (
	"math"
	"strings"

	"github.com/matzehuels/heapview/pkg/errors"
	"github.com/matzehuels/heapview/pkg/geom"
)

// Mode selects the grid orientation.
type Mode uint8

const (
	// Stacked lays pairs out as rows.
	Stacked Mode = iota
	// Grid lays pairs out as columns.
	Grid
)

// String returns "stacked" or "grid".
func (m Mode) String() string {
	if m == Grid {
		return "grid"
	}
	return "stacked"
}

// Toggle returns the other mode.
func (m Mode) Toggle() Mode {
	if m == Grid {
		return Stacked
	}
	return Grid
}

// ParseMode accepts "stacked" or "grid" in any case. "list" and "table" are
// accepted as aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stacked", "list", "rows":
		return Stacked, nil
	case "grid", "table", "columns":
		return Grid, nil
	}
	return Stacked, errors.New(errors.ErrCodeInvalidMode, "unknown layout mode %q (want stacked or grid)", s)
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Cell is the intrinsic size of one key and its value.
type Cell struct {
	Key   geom.Size
	Value geom.Size
}

// Zip pairs key sizes with value sizes. The slices must have equal length.
func Zip(keys, values []geom.Size) ([]Cell, error) {
	if len(keys) != len(values) {
		return nil, errors.New(errors.ErrCodeInvalidLayout, "%d keys but %d values", len(keys), len(values))
	}
	cells := make([]Cell, len(keys))
	for i := range keys {
		cells[i] = Cell{Key: keys[i], Value: values[i]}
	}
	return cells, nil
}

// Layout is the result of [Build]. All coordinates are relative to the
// grid's top-left corner.
type Layout struct {
	Mode   Mode
	Keys   []geom.Rect
	Values []geom.Rect
	Size   geom.Size

	// Separators holds one offset per pair, measured along the stacking axis
	// (y for Stacked, x for Grid), marking the end of that pair's row or column.
	Separators []float64

	// Divider is the offset of the line between the key and value bands,
	// measured across the stacking axis.
	Divider float64
}

// Len returns the number of pairs.
func (l Layout) Len() int { return len(l.Keys) }

// Build lays out cells in the given mode. It fails with an
// [errors.ErrCodeInvalidLayout] error on a negative or NaN size or padding.
// An empty input yields a padding-only box.
func Build(cells []Cell, mode Mode, padding float64) (Layout, error) {
	if !(padding >= 0) || math.IsInf(padding, 1) {
		return Layout{}, errors.New(errors.ErrCodeInvalidLayout, "invalid padding %v", padding)
	}
	for i, c := range cells {
		if !c.Key.Valid() || !c.Value.Valid() {
			return Layout{}, errors.New(errors.ErrCodeInvalidLayout, "pair %d: invalid size key=%v value=%v", i, c.Key, c.Value)
		}
	}

	l := Layout{
		Mode:       mode,
		Keys:       make([]geom.Rect, len(cells)),
		Values:     make([]geom.Rect, len(cells)),
		Separators: make([]float64, len(cells)),
	}
	switch mode {
	case Stacked:
		buildStacked(&l, cells, padding)
	case Grid:
		buildGrid(&l, cells, padding)
	default:
		return Layout{}, errors.New(errors.ErrCodeInvalidMode, "unknown layout mode %d", mode)
	}
	return l, nil
}

func buildStacked(l *Layout, cells []Cell, p float64) {
	var kw, vw float64
	for _, c := range cells {
		kw = max(kw, c.Key.W)
		vw = max(vw, c.Value.W)
	}

	y := p
	for i, c := range cells {
		h := max(c.Key.H, c.Value.H)
		l.Keys[i] = geom.R(p+kw-c.Key.W, y, c.Key.W, h)
		l.Values[i] = geom.R(3*p+kw, y, vw, h)
		y += h + p
		l.Separators[i] = y
	}
	l.Size = geom.Size{W: 4*p + kw + vw, H: y}
	l.Divider = kw + 2*p
}

func buildGrid(l *Layout, cells []Cell, p float64) {
	var kh, vh float64
	for _, c := range cells {
		kh = max(kh, c.Key.H)
		vh = max(vh, c.Value.H)
	}

	x := p
	for i, c := range cells {
		w := max(c.Key.W, c.Value.W)
		l.Keys[i] = geom.R(x, p+kh-c.Key.H, w, c.Key.H)
		l.Values[i] = geom.R(x, 3*p+kh, w, vh)
		x += w + p
		l.Separators[i] = x
	}
	l.Size = geom.Size{W: x, H: 4*p + kh + vh}
	l.Divider = kh + 2*p
}
