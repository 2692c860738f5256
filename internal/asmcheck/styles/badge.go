package styles

import (
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"
)

var matchBadge = lipgloss.NewStyle().
	Bold(true).
	Padding(0, 1).
	Foreground(lipgloss.Color(charmtone.Zest.Hex())).
	Background(lipgloss.Color(charmtone.Guac.Hex()))

var noMatchBadge = lipgloss.NewStyle().
	Bold(true).
	Padding(0, 1).
	Foreground(lipgloss.Color(charmtone.Zest.Hex())).
	Background(lipgloss.Color(charmtone.Cheeky.Hex()))

// Verdict renders a match result; plain keeps it free of escape codes for pipes.
func Verdict(matched, plain bool) string {
	text := "NO MATCH"
	style := noMatchBadge
	if matched {
		text = "MATCH"
		style = matchBadge
	}
	if plain {
		return text
	}
	return style.Render(text)
}
