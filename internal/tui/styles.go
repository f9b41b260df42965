package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#B4BEFE"))

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#1E1E2E")).
			Background(lipgloss.Color("#CBA6F7")).
			Padding(0, 1)

	tabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A6ADC8")).
			Padding(0, 1)

	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))

	stoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))

	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF"))

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6ADC8"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#585B70")).
			Padding(0, 1)

	// Record styles
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	requestStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89B4FA"))
	responseStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A6E3A1"))
	channelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#CBA6F7"))
	noteStyle      = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#FAB387"))
	localStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF"))
	payloadStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#CDD6F4"))
)
