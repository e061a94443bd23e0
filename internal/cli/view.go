package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/matzehuels/heapview/pkg/errors"
	"github.com/matzehuels/heapview/pkg/layout/grid"
	"github.com/matzehuels/heapview/pkg/pipeline"
	"github.com/matzehuels/heapview/pkg/render/svg"
	"github.com/matzehuels/heapview/pkg/scene"
	"github.com/matzehuels/heapview/pkg/theme"
	"github.com/matzehuels/heapview/pkg/timeline"
	"github.com/matzehuels/heapview/pkg/viewer"
)

const (
	zoomStep  = 1.25
	minScale  = 0.1
	nudgeStep = 10.0 // screen pixels
)

func (c *CLI) viewCommand() *cobra.Command {
	var themePath, mode string

	cmd := &cobra.Command{
		Use:   "view <recording>",
		Short: "Step through a recording in the terminal",
		Long: `Step through a recording one snapshot at a time.

Values that changed since the previous step are highlighted. Press ? for the
key bindings; w writes the current step as SVG next to the recording.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			th, err := loadTheme(themePath)
			if err != nil {
				return err
			}
			m := th.Layout.Mode
			if mode != "" {
				if m, err = grid.ParseMode(mode); err != nil {
					return err
				}
			}
			tl, err := timeline.Load(args[0])
			if err != nil {
				return err
			}
			c.Logger.Debug("recording loaded", "path", args[0], "steps", tl.Len())

			base := strings.TrimSuffix(args[0], filepath.Ext(args[0]))
			model, err := newStepperModel(tl, th, m, base)
			if err != nil {
				return err
			}

			final, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			if err != nil {
				return err
			}
			if sm, ok := final.(stepperModel); ok {
				for _, path := range sm.written {
					printFile(path)
				}
				if sm.err != nil {
					printError("%s", errors.UserMessage(sm.err))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&themePath, "theme", "", "theme file (TOML)")
	cmd.Flags().StringVar(&mode, "mode", "", "object layout: stacked or grid (default from theme)")
	return cmd
}

// =============================================================================
// Key bindings
// =============================================================================

type stepperKeyMap struct {
	Next       key.Binding
	Prev       key.Binding
	First      key.Binding
	Last       key.Binding
	Mode       key.Binding
	ZoomIn     key.Binding
	ZoomOut    key.Binding
	Focus      key.Binding
	NudgeLeft  key.Binding
	NudgeRight key.Binding
	NudgeUp    key.Binding
	NudgeDown  key.Binding
	Reset      key.Binding
	Label      key.Binding
	Write      key.Binding
	Help       key.Binding
	Quit       key.Binding
}

var stepperKeys = stepperKeyMap{
	Next:       key.NewBinding(key.WithKeys("right", "n"), key.WithHelp("→/n", "next step")),
	Prev:       key.NewBinding(key.WithKeys("left", "p"), key.WithHelp("←/p", "previous step")),
	First:      key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("g", "first step")),
	Last:       key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("G", "last step")),
	Mode:       key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "stacked/grid")),
	ZoomIn:     key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "zoom in")),
	ZoomOut:    key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "zoom out")),
	Focus:      key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "focus next box")),
	NudgeLeft:  key.NewBinding(key.WithKeys("shift+left"), key.WithHelp("shift+←", "move box left")),
	NudgeRight: key.NewBinding(key.WithKeys("shift+right"), key.WithHelp("shift+→", "move box right")),
	NudgeUp:    key.NewBinding(key.WithKeys("shift+up"), key.WithHelp("shift+↑", "move box up")),
	NudgeDown:  key.NewBinding(key.WithKeys("shift+down"), key.WithHelp("shift+↓", "move box down")),
	Reset:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset box")),
	Label:      key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "label arrow")),
	Write:      key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "write svg")),
	Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k stepperKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Prev, k.Next, k.Mode, k.Focus, k.Write, k.Help, k.Quit}
}

func (k stepperKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Prev, k.Next, k.First, k.Last},
		{k.Mode, k.ZoomIn, k.ZoomOut, k.Write},
		{k.Focus, k.NudgeLeft, k.NudgeRight, k.NudgeUp, k.NudgeDown},
		{k.Reset, k.Label, k.Help, k.Quit},
	}
}

// =============================================================================
// stepperModel - the view command's bubbletea model
// =============================================================================

var (
	stepperFocusStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	stepperBoxStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	stepperErrStyle   = lipgloss.NewStyle().Foreground(colorRed)
)

// stepperModel drives one viewer panel through a timeline. The panel is
// shared between copies of the model; bubbletea only ever holds one.
type stepperModel struct {
	tl      *timeline.Timeline
	panel   *viewer.Panel
	theme   *theme.Theme
	outBase string

	step    int
	surface viewer.Surface
	focus   int64
	focused bool

	labeling bool
	input    textinput.Model
	help     help.Model
	showHelp bool

	status  string
	err     error
	written []string
}

func newStepperModel(tl *timeline.Timeline, th *theme.Theme, mode grid.Mode, outBase string) (stepperModel, error) {
	if tl.Len() == 0 {
		return stepperModel{}, errors.New(errors.ErrCodeNotFound, "recording has no snapshots")
	}
	in := textinput.New()
	in.Placeholder = "arrow label"
	in.CharLimit = errors.MaxLabelLength
	in.Prompt = "label: "

	m := stepperModel{
		tl:      tl,
		panel:   pipeline.NewPanel(th, mode, nil),
		theme:   th,
		outBase: outBase,
		input:   in,
		help:    help.New(),
	}
	if err := m.load(0); err != nil {
		return stepperModel{}, err
	}
	return m, nil
}

func (m stepperModel) Init() tea.Cmd { return nil }

func (m stepperModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		m.input.Width = msg.Width - len(m.input.Prompt) - 1
		return m, nil

	case tea.KeyMsg:
		if m.labeling {
			return m.updateLabel(msg)
		}
		m.status, m.err = "", nil

		switch {
		case key.Matches(msg, stepperKeys.Quit):
			return m, tea.Quit
		case key.Matches(msg, stepperKeys.Next):
			if m.step+1 < m.tl.Len() {
				m.err = m.load(m.step + 1)
			}
		case key.Matches(msg, stepperKeys.Prev):
			if m.step > 0 {
				m.err = m.load(m.step - 1)
			}
		case key.Matches(msg, stepperKeys.First):
			m.err = m.load(0)
		case key.Matches(msg, stepperKeys.Last):
			m.err = m.load(m.tl.Len() - 1)
		case key.Matches(msg, stepperKeys.Mode):
			_, m.err = m.panel.ToggleMode()
		case key.Matches(msg, stepperKeys.ZoomIn):
			m.err = m.panel.SetScale(m.panel.Scale() * zoomStep)
		case key.Matches(msg, stepperKeys.ZoomOut):
			m.err = m.panel.SetScale(max(m.panel.Scale()/zoomStep, minScale))
		case key.Matches(msg, stepperKeys.Focus):
			m.cycleFocus()
		case key.Matches(msg, stepperKeys.NudgeLeft):
			m.err = m.nudge(-nudgeStep, 0)
		case key.Matches(msg, stepperKeys.NudgeRight):
			m.err = m.nudge(nudgeStep, 0)
		case key.Matches(msg, stepperKeys.NudgeUp):
			m.err = m.nudge(0, -nudgeStep)
		case key.Matches(msg, stepperKeys.NudgeDown):
			m.err = m.nudge(0, nudgeStep)
		case key.Matches(msg, stepperKeys.Reset):
			if m.focused {
				m.err = m.panel.ResetPosition(m.focus)
			}
		case key.Matches(msg, stepperKeys.Label):
			if !m.focused {
				m.status = "press tab to focus a box first"
				break
			}
			m.labeling = true
			m.input.SetValue(m.labelOf(m.focus))
			m.input.CursorEnd()
			cmd := m.input.Focus()
			return m, cmd
		case key.Matches(msg, stepperKeys.Write):
			m.err = m.writeSVG()
		case key.Matches(msg, stepperKeys.Help):
			m.showHelp = !m.showHelp
		}
		m.surface = m.panel.Surface()
	}
	return m, nil
}

func (m stepperModel) updateLabel(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.labeling = false
		m.input.Blur()
		if m.err = m.panel.SetLabel(m.focus, m.input.Value()); m.err == nil {
			m.status = fmt.Sprintf("labelled arrow into #%d", m.focus)
		}
		m.surface = m.panel.Surface()
		return m, nil
	case tea.KeyEsc:
		m.labeling = false
		m.input.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// load shows step i diffed against step i-1.
func (m *stepperModel) load(i int) error {
	cur, prev, err := m.tl.Pair(i)
	if err != nil {
		return err
	}
	if _, err := m.panel.SetStep(cur, prev); err != nil {
		return err
	}
	m.step = i
	m.surface = m.panel.Surface()
	if m.focused && m.entity(m.focus) == nil {
		m.focused = false
	}
	return nil
}

// cycleFocus moves the focus to the next heap box, wrapping to none.
func (m *stepperModel) cycleFocus() {
	ents := m.surface.Entities
	if len(ents) == 0 {
		m.focused = false
		return
	}
	if !m.focused {
		m.focus, m.focused = ents[0].ID, true
		return
	}
	for i, e := range ents {
		if e.ID != m.focus {
			continue
		}
		if i+1 < len(ents) {
			m.focus = ents[i+1].ID
		} else {
			m.focused = false
		}
		return
	}
	m.focus = ents[0].ID
}

// nudge drags the focused box by a screen-pixel delta.
func (m *stepperModel) nudge(dx, dy float64) error {
	if !m.focused {
		return nil
	}
	if err := m.panel.BeginDrag(m.focus); err != nil {
		return err
	}
	if err := m.panel.DragBy(dx, dy); err != nil {
		return err
	}
	return m.panel.EndDrag()
}

func (m *stepperModel) writeSVG() error {
	path := fmt.Sprintf("%s.step%03d.svg", m.outBase, m.step)
	data := svg.Render(m.surface, m.theme, svg.WithTitle(m.tl.Source(m.step)), svg.WithInteraction())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	m.written = append(m.written, path)
	m.status = "wrote " + path
	return nil
}

func (m stepperModel) entity(id int64) *scene.Panel {
	for i := range m.surface.Entities {
		if m.surface.Entities[i].ID == id {
			return &m.surface.Entities[i]
		}
	}
	return nil
}

func (m stepperModel) labelOf(target int64) string {
	for _, e := range m.surface.Edges {
		if e.Target == target {
			return e.Label
		}
	}
	return ""
}

// =============================================================================
// View
// =============================================================================

func (m stepperModel) View() string {
	var b strings.Builder

	s := m.surface
	b.WriteString(StyleTitle.Render(appName) + "  " + StyleHighlight.Render(m.tl.Source(m.step)))
	b.WriteString(StyleDim.Render(fmt.Sprintf("  step %d/%d  %s  ×%.2f  ", m.step+1, m.tl.Len(), s.Mode, s.Scale)))
	if s.Changed > 0 {
		b.WriteString(StyleChanged.Render(fmt.Sprintf("%d changed", s.Changed)))
	} else {
		b.WriteString(StyleDim.Render("no changes"))
	}
	b.WriteString("\n\n")

	for _, f := range s.Frames {
		m.writePanel(&b, f, false)
	}
	if s.Statics != nil {
		m.writePanel(&b, *s.Statics, false)
	}
	if len(s.Entities) > 0 {
		b.WriteString(StyleDim.Render("heap") + "\n")
	}
	for _, e := range s.Entities {
		m.writePanel(&b, e, m.focused && e.ID == m.focus)
	}

	b.WriteString("\n")
	switch {
	case m.labeling:
		b.WriteString(m.input.View() + "\n")
	case m.err != nil:
		b.WriteString(stepperErrStyle.Render(iconError+" "+errors.UserMessage(m.err)) + "\n")
	case m.status != "":
		b.WriteString(StyleDim.Render(m.status) + "\n")
	}

	m.help.ShowAll = m.showHelp
	b.WriteString(m.help.View(stepperKeys))
	return b.String()
}

func (m stepperModel) writePanel(b *strings.Builder, p scene.Panel, focused bool) {
	title := p.Title
	if p.Kind == scene.PanelEntity {
		title = fmt.Sprintf("#%d %s", p.ID, p.Title)
	}
	switch {
	case focused:
		b.WriteString(stepperFocusStyle.Render("▸ " + title))
	case p.Internal:
		b.WriteString("  " + StyleDim.Render(title))
	default:
		b.WriteString("  " + stepperBoxStyle.Render(title))
	}
	b.WriteString("\n")

	for _, sl := range p.Slots {
		k := StyleDim.Render(sl.Key)
		if sl.KeyChange {
			k = StyleChanged.Render(sl.Key)
		}
		b.WriteString("      " + k + "  " + m.slotValue(sl) + "\n")
	}
}

func (m stepperModel) slotValue(sl scene.Slot) string {
	if sl.Value.IsRef() {
		text := iconArrow + fmt.Sprintf(" #%d", sl.Value.Ref)
		if l := m.labelOf(sl.Value.Ref); l != "" {
			text += " (" + l + ")"
		}
		if sl.Changed {
			return StyleChanged.Render(text)
		}
		return StyleRef.Render(text)
	}
	if sl.Changed {
		return StyleChanged.Render(sl.Text)
	}
	return StyleValue.Render(sl.Text)
}
