// Package watch implements the blockbridge live dispatch monitor.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for the monitor.
type Theme struct {
	Sent       lipgloss.Style
	Dropped    lipgloss.Style
	Declined   lipgloss.Style
	Suppressed lipgloss.Style
	Fault      lipgloss.Style

	Border lipgloss.Style
	Title  lipgloss.Style
	Dim    lipgloss.Style
	Help   lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		Sent:       lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		Dropped:    lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Declined:   lipgloss.NewStyle().Foreground(lipgloss.Color("#61AFEF")),
		Suppressed: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		Fault:      lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim:  lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Help: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// ForStatus picks the style for a dispatch status.
func (t Theme) ForStatus(status string) lipgloss.Style {
	switch status {
	case "sent":
		return t.Sent
	case "declined":
		return t.Declined
	case "suppressed":
		return t.Suppressed
	case "fault":
		return t.Fault
	default:
		return t.Dropped
	}
}
