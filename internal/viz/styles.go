package viz

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/formulize/internal/formula"
)

// Theme defines the colour scheme of the formula display.
type Theme struct {
	Name      string
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color
	Text      lipgloss.Color
	Muted     lipgloss.Color
	Changed   lipgloss.Color
	Error     lipgloss.Color
}

var (
	ThemeDefault = Theme{
		Name:      "default",
		Primary:   lipgloss.Color("#00ccff"),
		Secondary: lipgloss.Color("#ff00ff"),
		Accent:    lipgloss.Color("#ffcc00"),
		Text:      lipgloss.Color("#ffffff"),
		Muted:     lipgloss.Color("#666688"),
		Changed:   lipgloss.Color("#00ff88"),
		Error:     lipgloss.Color("#ff4444"),
	}

	ThemeMinimal = Theme{
		Name:      "minimal",
		Primary:   lipgloss.Color("#ffffff"),
		Secondary: lipgloss.Color("#cccccc"),
		Accent:    lipgloss.Color("#0088ff"),
		Text:      lipgloss.Color("#ffffff"),
		Muted:     lipgloss.Color("#888888"),
		Changed:   lipgloss.Color("#00ff00"),
		Error:     lipgloss.Color("#ff0000"),
	}
)

// Styles holds the rendered styles derived from a Theme.
type Styles struct {
	Title    lipgloss.Style
	Panel    lipgloss.Style
	Label    lipgloss.Style
	Input    lipgloss.Style
	Computed lipgloss.Style
	Selected lipgloss.Style
	Changed  lipgloss.Style
	Units    lipgloss.Style
	Hint     lipgloss.Style
	Error    lipgloss.Style
}

func NewStyles(t Theme) Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Primary),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Muted).
			Padding(0, 1),
		Label:    lipgloss.NewStyle().Foreground(t.Muted),
		Input:    lipgloss.NewStyle().Foreground(t.Text),
		Computed: lipgloss.NewStyle().Foreground(t.Primary).Bold(true),
		Selected: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Secondary),
		Changed: lipgloss.NewStyle().Foreground(t.Changed).Bold(true),
		Units:   lipgloss.NewStyle().Foreground(t.Muted).Italic(true),
		Hint:    lipgloss.NewStyle().Foreground(t.Muted).Italic(true),
		Error:   lipgloss.NewStyle().Foreground(t.Error).Bold(true),
	}
}

// RowState marks how a variable row is highlighted.
type RowState int

const (
	RowNormal RowState = iota
	RowSelected
	RowChanged
)

// FormatVariable renders one "name = value units" row. Values are rounded
// to the variable's precision here and nowhere else.
func (s Styles) FormatVariable(v formula.Variable, state RowState) string {
	marker := "  "
	name := s.Label.Render(fmt.Sprintf("%-12s", v.DisplayName()))
	valueStyle := s.Input
	if !v.IsInput() {
		valueStyle = s.Computed
	}

	switch state {
	case RowSelected:
		marker = s.Selected.Render("▸ ")
		name = s.Selected.Render(fmt.Sprintf("%-12s", v.DisplayName()))
	case RowChanged:
		valueStyle = s.Changed
	}

	row := marker + name + " = " + valueStyle.Render(v.Format())
	if v.Units != "" {
		row += " " + s.Units.Render(v.Units)
	}
	if lo, hi, ok := v.Bounds(); ok && v.IsInput() {
		row += s.Hint.Render(fmt.Sprintf("  [%g, %g] step %g", lo, hi, v.Step))
	}
	return row
}

// Slider draws the position of an input inside its range.
func (s Styles) Slider(v formula.Variable, width int) string {
	lo, hi, ok := v.Bounds()
	if !ok || width <= 0 || hi <= lo {
		return ""
	}
	frac := (v.Current - lo) / (hi - lo)
	filled := clamp(int(frac*float64(width)+0.5), 0, width)
	return s.Computed.Render(strings.Repeat("█", filled)) + s.Label.Render(strings.Repeat("░", width-filled))
}

// Separator draws a muted rule.
func (s Styles) Separator(width int) string {
	if width < 8 {
		return s.Label.Render(strings.Repeat("─", max(width, 0)))
	}
	mid := width / 2
	return s.Label.Render(strings.Repeat("─", mid-2) + " ◆ " + strings.Repeat("─", width-mid-1))
}
