package tui

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/formulize/internal/formula"
	"github.com/san-kum/formulize/internal/provider"
	"github.com/san-kum/formulize/internal/viz"
)

const coarseSteps = 10

// session is shared by every copy of the model; the provider callback
// writes into it.
type session struct {
	p       *provider.Provider
	changed []string
	series  []viz.Series
	stale   bool
}

type model struct {
	s      *session
	styles viz.Styles

	inputs []string
	cursor int
	vizIdx int

	editing bool
	editBuf string
	status  string
	failed  bool

	width  int
	height int
}

// New builds the interactive session for p. The caller keeps ownership of
// p and tears it down after the program exits.
func New(p *provider.Provider) tea.Model {
	s := &session{p: p, stale: true}
	p.Subscribe(func(c provider.Change) {
		s.changed = c.Keys
		s.stale = true
	})

	m := model{
		s:      s,
		styles: viz.NewStyles(viz.ThemeDefault),
		inputs: p.Inputs(),
		width:  80,
		height: 24,
	}
	m.resample()
	return m
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		var cmd tea.Cmd
		m, cmd = m.handleKey(msg)
		m.resample()
		return m, cmd
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	if m.editing {
		return m.editKey(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.inputs)-1 {
			m.cursor++
		}
	case "left", "h":
		m.nudge(-1)
	case "right", "l":
		m.nudge(1)
	case "shift+left", "H":
		m.nudge(-coarseSteps)
	case "shift+right", "L":
		m.nudge(coarseSteps)
	case "tab":
		if n := len(m.s.p.Visualizations()); n > 0 {
			m.vizIdx = (m.vizIdx + 1) % n
			m.s.stale = true
		}
	case "enter", " ":
		if v, ok := m.selected(); ok {
			m.editing = true
			m.editBuf = strconv.FormatFloat(v.Current, 'g', -1, 64)
		}
	}
	return m, nil
}

func (m model) editKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.editing = false
		val, err := strconv.ParseFloat(strings.TrimSpace(m.editBuf), 64)
		m.editBuf = ""
		if err != nil {
			m.status, m.failed = fmt.Sprintf("not a number: %v", err), true
			return m, nil
		}
		m.set(val)
	case "esc":
		m.editing = false
		m.editBuf = ""
	case "backspace":
		if len(m.editBuf) > 0 {
			m.editBuf = m.editBuf[:len(m.editBuf)-1]
		}
	default:
		if len(msg.String()) == 1 {
			c := msg.String()[0]
			if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == 'e' {
				m.editBuf += string(c)
			}
		}
	}
	return m, nil
}

func (m model) selected() (formula.Variable, bool) {
	if len(m.inputs) == 0 {
		return formula.Variable{}, false
	}
	v, err := m.s.p.GetVariable(m.inputs[m.cursor])
	return v, err == nil
}

// nudge moves the selected input by n steps, stopping at the range bounds.
func (m *model) nudge(n int) {
	v, ok := m.selected()
	if !ok {
		return
	}
	step := v.Step
	if step <= 0 {
		step = 1
	}
	next := v.Current + float64(n)*step
	if lo, hi, ok := v.Bounds(); ok {
		next = min(max(next, lo), hi)
	}
	m.set(next)
}

func (m *model) set(value float64) {
	key := m.inputs[m.cursor]
	res, err := m.s.p.UpdateInput(key, value)
	switch {
	case err != nil:
		m.status, m.failed = describe(err), true
	case len(res.Affected) == 0:
		m.status, m.failed = fmt.Sprintf("%s unchanged", key), false
	case res.Adjusted:
		m.status, m.failed = fmt.Sprintf("%s = %g (aligned to step)", key, res.Applied), false
	case len(res.Affected) == 1:
		m.status, m.failed = fmt.Sprintf("%s = %g", key, res.Applied), false
	default:
		m.status, m.failed = fmt.Sprintf("%s = %g, updated %s", key, res.Applied, strings.Join(res.Affected[1:], ", ")), false
	}
}

func describe(err error) string {
	var rangeErr *formula.OutOfRangeError
	if errors.As(err, &rangeErr) {
		return fmt.Sprintf("%g is outside [%g, %g]", rangeErr.Value, rangeErr.Min, rangeErr.Max)
	}
	return err.Error()
}

func (m *model) resample() {
	if !m.s.stale {
		return
	}
	m.s.stale = false
	vizs := m.s.p.Visualizations()
	if len(vizs) == 0 {
		m.s.series = nil
		return
	}
	series, err := m.s.p.Sample(vizs[m.vizIdx].ID)
	if err != nil {
		m.s.series = nil
		m.status, m.failed = describe(err), true
		return
	}
	m.s.series = series
}

func (m model) View() string {
	var b strings.Builder
	st := m.styles
	cfg := m.s.p.Config()

	title := cfg.Name
	if title == "" {
		title = "formulize"
	}
	b.WriteString("\n  " + st.Title.Render(title) + "\n")
	for _, f := range m.s.p.Formulas() {
		label := f.Latex
		if label == "" {
			label = f.Expression
		}
		b.WriteString("  " + st.Label.Render(label) + "\n")
	}
	b.WriteString("  " + st.Separator(min(m.width-4, 60)) + "\n\n")

	for _, v := range m.s.p.Variables() {
		state := viz.RowNormal
		switch {
		case len(m.inputs) > 0 && v.Key == m.inputs[m.cursor]:
			state = viz.RowSelected
		case slices.Contains(m.s.changed, v.Key):
			state = viz.RowChanged
		}
		row := st.FormatVariable(v, state)
		if v.IsInput() {
			row += "  " + st.Slider(v, 20)
		}
		b.WriteString("  " + row + "\n")
	}

	if m.editing {
		b.WriteString("\n  " + st.Selected.Render("value: "+m.editBuf+"▋") + "\n")
	}

	if vizs := m.s.p.Visualizations(); len(vizs) > 0 && len(m.s.series) > 0 {
		spec := vizs[m.vizIdx]
		cols, rows := viz.PlotSize(spec)
		cols = min(cols, max(m.width-16, 20))
		rows = min(rows, max(m.height-len(m.s.p.Variables())-14, 5))
		b.WriteString("\n" + st.Panel.Render(viz.PlotSized(m.s.series, spec, cols, rows)) + "\n")
	}

	if m.status != "" {
		style := st.Hint
		if m.failed {
			style = st.Error
		}
		b.WriteString("  " + style.Render(m.status) + "\n")
	}
	b.WriteString("\n  " + st.Hint.Render("↑↓ select  ←→ step  HL ×10  enter edit  tab plot  q quit") + "\n")
	return b.String()
}

// Run starts the interactive session on the alternate screen.
func Run(p *provider.Provider) error {
	_, err := tea.NewProgram(New(p), tea.WithAltScreen()).Run()
	return err
}
