// Package tui implements the wizard's terminal interaction: line prompts with
// hidden input, Bubble Tea selection menus and styled progress output.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#1e66f5", Dark: "#89b4fa"}
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#40a02b", Dark: "#a6e3a1"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#df8e1d", Dark: "#f9e2af"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#d20f39", Dark: "#f38ba8"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#6c6f85", Dark: "#6c7086"}
)

// Styles contains the lipgloss styles used for prompts and reports.
type Styles struct {
	Section lipgloss.Style
	Label   lipgloss.Style
	Info    lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style

	Cursor   lipgloss.Style
	Selected lipgloss.Style
	Help     lipgloss.Style
}

// DefaultStyles returns the colored styles.
func DefaultStyles() Styles {
	return Styles{
		Section: lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary).MarginTop(1),
		Label:   lipgloss.NewStyle().Bold(true),
		Info:    lipgloss.NewStyle(),
		Success: lipgloss.NewStyle().Foreground(ColorSuccess),
		Warning: lipgloss.NewStyle().Foreground(ColorWarning),
		Error:   lipgloss.NewStyle().Foreground(ColorError).Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(ColorMuted),

		Cursor:   lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true),
		Selected: lipgloss.NewStyle().Foreground(ColorSuccess),
		Help:     lipgloss.NewStyle().Foreground(ColorMuted).MarginTop(1),
	}
}

// PlainStyles renders text unchanged, for pipes and tests.
func PlainStyles() Styles {
	s := lipgloss.NewStyle()
	return Styles{
		Section: s, Label: s, Info: s, Success: s, Warning: s, Error: s, Muted: s,
		Cursor: s, Selected: s, Help: s,
	}
}
