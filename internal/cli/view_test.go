package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/matzehuels/heapview/pkg/errors"
	"github.com/matzehuels/heapview/pkg/geom"
	"github.com/matzehuels/heapview/pkg/layout/grid"
	"github.com/matzehuels/heapview/pkg/theme"
	"github.com/matzehuels/heapview/pkg/timeline"
)

func newTestStepper(t *testing.T) stepperModel {
	t.Helper()
	dir := t.TempDir()
	tl, err := timeline.Load(writeRecording(t, dir))
	if err != nil {
		t.Fatal(err)
	}
	m, err := newStepperModel(tl, theme.Default(), grid.Stacked, filepath.Join(dir, "run"))
	if err != nil {
		t.Fatalf("newStepperModel: %v", err)
	}
	return m
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

// press feeds msgs through Update in order.
func press(t *testing.T, m stepperModel, msgs ...tea.Msg) stepperModel {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		sm, ok := next.(stepperModel)
		if !ok {
			t.Fatalf("Update returned %T", next)
		}
		m = sm
	}
	return m
}

func (m stepperModel) box(id int64) geom.Point {
	if p := m.entity(id); p != nil {
		return p.Rect.Min()
	}
	return geom.Point{X: -1, Y: -1}
}

func TestStepperStepping(t *testing.T) {
	m := newTestStepper(t)

	tests := []struct {
		name        string
		key         tea.KeyMsg
		wantStep    int
		wantChanged int
	}{
		{"back at start stays", tea.KeyMsg{Type: tea.KeyLeft}, 0, 0},
		{"next", tea.KeyMsg{Type: tea.KeyRight}, 1, 2},
		{"last", runes("G"), 2, 0},
		{"next at end stays", runes("n"), 2, 0},
		{"previous rediffs", tea.KeyMsg{Type: tea.KeyLeft}, 1, 2},
		{"first", runes("g"), 0, 0},
	}
	for _, tt := range tests {
		m = press(t, m, tt.key)
		if m.step != tt.wantStep || m.surface.Changed != tt.wantChanged {
			t.Errorf("%s: step %d changed %d, want step %d changed %d",
				tt.name, m.step, m.surface.Changed, tt.wantStep, tt.wantChanged)
		}
		if m.err != nil {
			t.Errorf("%s: err = %v", tt.name, m.err)
		}
	}
}

func TestStepperModeAndZoom(t *testing.T) {
	m := newTestStepper(t)

	m = press(t, m, runes("m"))
	if m.surface.Mode != grid.Grid {
		t.Errorf("mode = %v, want grid", m.surface.Mode)
	}
	m = press(t, m, runes("+"), runes("+"))
	if got, want := m.surface.Scale, zoomStep*zoomStep; got != want {
		t.Errorf("scale = %v, want %v", got, want)
	}
	for range 40 {
		m = press(t, m, runes("-"))
	}
	if m.surface.Scale != minScale {
		t.Errorf("scale = %v, want floor %v", m.surface.Scale, minScale)
	}
}

func TestStepperFocusNudgeReset(t *testing.T) {
	m := newTestStepper(t)

	// Nudging without focus does nothing.
	before := m.box(4)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyShiftRight})
	if m.box(4) != before {
		t.Error("nudge without focus moved a box")
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if !m.focused || m.focus != 4 {
		t.Fatalf("focus = %d (%v), want 4", m.focus, m.focused)
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyShiftRight}, tea.KeyMsg{Type: tea.KeyShiftDown})
	if got, want := m.box(4), before.Add(geom.Point{X: nudgeStep, Y: nudgeStep}); got != want {
		t.Errorf("nudged box at %v, want %v", got, want)
	}

	// The position sticks across steps.
	m = press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	if got, want := m.box(4), before.Add(geom.Point{X: nudgeStep, Y: nudgeStep}); got != want {
		t.Errorf("box after step at %v, want %v", got, want)
	}

	m = press(t, m, runes("r"))
	fresh := press(t, newTestStepper(t), tea.KeyMsg{Type: tea.KeyRight})
	if m.box(4) != fresh.box(4) {
		t.Errorf("reset box at %v, want flow position %v", m.box(4), fresh.box(4))
	}
}

func TestStepperFocusCycle(t *testing.T) {
	m := newTestStepper(t)
	tab := tea.KeyMsg{Type: tea.KeyTab}

	var seen []int64
	for range 2 {
		m = press(t, m, tab)
		seen = append(seen, m.focus)
	}
	if seen[0] != 4 || seen[1] != 5 {
		t.Errorf("focus order = %v, want [4 5]", seen)
	}
	if m = press(t, m, tab); m.focused {
		t.Error("tab past the last box should clear the focus")
	}

	// Focus on 5 is dropped when 5 disappears.
	m = press(t, m, tab, tab)
	m = press(t, m, runes("G"))
	if m.focused {
		t.Errorf("focus on vanished box kept: %d", m.focus)
	}
}

func TestStepperLabel(t *testing.T) {
	m := newTestStepper(t)

	m = press(t, m, runes("l"))
	if m.labeling || m.status == "" {
		t.Error("labelling without focus should be refused with a hint")
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyTab}, runes("l"))
	if !m.labeling {
		t.Fatal("l should open the label input")
	}
	m = press(t, m, runes("head"))
	if !strings.Contains(m.View(), "head") {
		t.Error("label input should echo typed text")
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.labeling || m.err != nil {
		t.Fatalf("after enter: labeling %v, err %v", m.labeling, m.err)
	}
	if got := m.labelOf(4); got != "head" {
		t.Errorf("label = %q, want head", got)
	}

	// Escape leaves the label alone.
	m = press(t, m, runes("l"), runes("xx"), tea.KeyMsg{Type: tea.KeyEsc})
	if got := m.labelOf(4); got != "head" {
		t.Errorf("label after esc = %q, want head", got)
	}

	// Labels survive stepping.
	m = press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	if got := m.labelOf(4); got != "head" {
		t.Errorf("label after step = %q, want head", got)
	}
	if !strings.Contains(m.View(), "(head)") {
		t.Error("view should show the label next to the reference")
	}
}

func TestStepperWriteSVG(t *testing.T) {
	m := newTestStepper(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyRight}, runes("w"))
	if m.err != nil {
		t.Fatalf("write: %v", m.err)
	}
	if len(m.written) != 1 || !strings.HasSuffix(m.written[0], "run.step001.svg") {
		t.Fatalf("written = %v", m.written)
	}
	data, err := os.ReadFile(m.written[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "<svg") {
		t.Error("written file is not an SVG")
	}
}

func TestStepperView(t *testing.T) {
	m := newTestStepper(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyRight})

	v := m.View()
	for _, want := range []string{"run.jsonl:2", "step 2/3", "2 changed", "main", "#4 Node", "#5 ArrayList", "true"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}

func TestStepperQuit(t *testing.T) {
	m := newTestStepper(t)
	if _, cmd := m.Update(runes("q")); cmd == nil {
		t.Error("q should return a quit command")
	}
}

func TestStepperEmptyRecording(t *testing.T) {
	tl, err := timeline.Parse(nil, "empty")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := newStepperModel(tl, theme.Default(), grid.Stacked, "x"); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}
