package tui

import "github.com/charmbracelet/lipgloss"

var (
	Primary = lipgloss.Color("#22d3ee")
	Success = lipgloss.Color("#10B981")
	Warning = lipgloss.Color("#F59E0B")
	Error   = lipgloss.Color("#EF4444")
	Muted   = lipgloss.Color("#6B7280")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)

	StatusStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Italic(true)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			Padding(0, 1)

	CellStyle = lipgloss.NewStyle().
			Padding(0, 1)

	LocalCellStyle = CellStyle.
			Bold(true)

	ErrorBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(Error).
			Padding(1, 2)

	ErrorTitleStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	HintStyle = lipgloss.NewStyle().
			Foreground(Warning)
)

// стиль состояния Peer сессии
func stateStyle(state string) lipgloss.Style {
	switch state {
	case "connected":
		return lipgloss.NewStyle().Foreground(Success)
	case "failed":
		return lipgloss.NewStyle().Foreground(Error)
	case "negotiating", "idle":
		return lipgloss.NewStyle().Foreground(Warning)
	default:
		return lipgloss.NewStyle().Foreground(Muted)
	}
}
