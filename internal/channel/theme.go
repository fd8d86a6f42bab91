package channel

import "github.com/charmbracelet/lipgloss"

type theme struct {
	userTag      lipgloss.Style
	assistantTag lipgloss.Style
	systemTag    lipgloss.Style
	toolTag      lipgloss.Style
	errorTag     lipgloss.Style
	errorText    lipgloss.Style
	tool         lipgloss.Style
	help         lipgloss.Style
	title        lipgloss.Style
	header       lipgloss.Style
	cell         lipgloss.Style
	border       lipgloss.Style
}

func newTheme(r *lipgloss.Renderer) theme {
	pink := lipgloss.Color("#ff71ce")
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	muted := lipgloss.Color("#9ca3d8")

	return theme{
		userTag:      r.NewStyle().Foreground(blue).Bold(true),
		assistantTag: r.NewStyle().Foreground(mint).Bold(true),
		systemTag:    r.NewStyle().Foreground(muted),
		toolTag:      r.NewStyle().Foreground(muted).Italic(true),
		errorTag:     r.NewStyle().Foreground(pink).Bold(true).Reverse(true).Padding(0, 1),
		errorText:    r.NewStyle().Foreground(pink),
		tool:         r.NewStyle().Foreground(muted).Italic(true),
		help:         r.NewStyle().Foreground(muted),
		title:        r.NewStyle().Foreground(mint).Bold(true),
		header:       r.NewStyle().Foreground(blue).Bold(true).Padding(0, 1),
		cell:         r.NewStyle().Padding(0, 1),
		border:       r.NewStyle().Foreground(blue),
	}
}

// roleTags renders the speaker tag for each message role.
type roleTags struct {
	theme   theme
	isError bool
}

func (t roleTags) System() string     { return t.theme.systemTag.Render("System") }
func (t roleTags) User() string       { return t.theme.userTag.Render("You") }
func (t roleTags) Tool() string       { return t.theme.toolTag.Render("Tool") }
func (t roleTags) ToolResult() string { return t.theme.toolTag.Render("Result") }

func (t roleTags) Assistant() string {
	if t.isError {
		return t.theme.errorTag.Render("Assistant")
	}
	return t.theme.assistantTag.Render("Assistant")
}
