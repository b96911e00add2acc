package report

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	primary = lipgloss.Color("#7C3AED")
	ok      = lipgloss.Color("#10B981")
	warning = lipgloss.Color("#F59E0B")
	danger  = lipgloss.Color("#EF4444")
	muted   = lipgloss.Color("#6B7280")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(primary).MarginBottom(1)
	labelStyle = lipgloss.NewStyle().Foreground(muted).Width(24)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(1, 2)
)

// Render writes the capacity report as a bordered panel.
func Render(w io.Writer, s Summary) error {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Workshop capacity report"))
	b.WriteString("\n")
	for _, l := range s.Lines() {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(l.Label), valueStyle(s, l).Render(l.Value)))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, panelStyle.Render(strings.TrimRight(b.String(), "\n"))+"\n")
	return err
}

func valueStyle(s Summary, l Line) lipgloss.Style {
	style := lipgloss.NewStyle().Bold(true)
	switch l.Label {
	case "Outcome":
		if s.Kind == "solved" {
			return style.Foreground(ok)
		}
		return style.Foreground(warning)
	case "Days below minimum", "Days over maximum":
		if l.Value != "0" {
			return style.Foreground(danger)
		}
		return style.Foreground(ok)
	}
	return style
}
