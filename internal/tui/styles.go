package tui

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the monitor.
var (
	colorRed     = lipgloss.Color("#FF5555")
	colorGreen   = lipgloss.Color("#50FA7B")
	colorYellow  = lipgloss.Color("#F1FA8C")
	colorOrange  = lipgloss.Color("#FFB86C")
	colorCyan    = lipgloss.Color("#8BE9FD")
	colorGray    = lipgloss.Color("#6272A4")
	colorDimGray = lipgloss.Color("#44475A")
	colorWhite   = lipgloss.Color("#F8F8F2")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	recordingStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	processingStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	completedStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	dividerStyle = lipgloss.NewStyle().
			Foreground(colorDimGray)

	levelLowStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	levelHighStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	levelEmptyStyle = lipgloss.NewStyle().
			Foreground(colorDimGray)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	footerDescStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite)

	toastStyle = lipgloss.NewStyle().
			Foreground(colorCyan)
)

// severityStyles colour alerts by urgency.
var severityStyles = map[string]lipgloss.Style{
	"low":      lipgloss.NewStyle().Foreground(colorGray),
	"medium":   lipgloss.NewStyle().Foreground(colorYellow),
	"high":     lipgloss.NewStyle().Foreground(colorOrange).Bold(true),
	"critical": lipgloss.NewStyle().Foreground(colorRed).Bold(true),
}
