package match

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title      lipgloss.Style
	header     lipgloss.Style
	matchID    lipgloss.Style
	key        lipgloss.Style
	detail     lipgloss.Style
	link       lipgloss.Style
	section    lipgloss.Style
	empty      lipgloss.Style
	teamAmber  lipgloss.Style
	teamBlue   lipgloss.Style
	barBracket lipgloss.Style
	barFill    lipgloss.Style
	barEmpty   lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:      lipgloss.NewStyle().Bold(true),
		header:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		matchID:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		key:        lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		detail:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		link:       lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("159")),
		section:    lipgloss.NewStyle().MarginTop(1),
		empty:      lipgloss.NewStyle().Faint(true),
		teamAmber:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		teamBlue:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75")),
		barBracket: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		barFill:    lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
		barEmpty:   lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
	}
}
