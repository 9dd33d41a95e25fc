package commands

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("141"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	mutedStyle   = lipgloss.NewStyle().Faint(true)
	promptStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75"))
)

const renderWidth = 80

// renderMarkdown renders an interpretation for the terminal. Plain mode and
// renderer failures return the text unchanged.
func renderMarkdown(text string, plain bool) string {
	if plain {
		return strings.TrimSpace(text) + "\n"
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(renderWidth),
	)
	if err != nil {
		return strings.TrimSpace(text) + "\n"
	}
	out, err := r.Render(text)
	if err != nil {
		return strings.TrimSpace(text) + "\n"
	}
	return out
}
