package ui

import "github.com/charmbracelet/lipgloss"

var (
	normalDim = lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"}
	gray      = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}
	midGray   = lipgloss.AdaptiveColor{Light: "#B2B2B2", Dark: "#4A4A4A"}
	fuchsia   = lipgloss.Color("#EE6FF8")
	green     = lipgloss.Color("#04B575")
	red       = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	yellow    = lipgloss.Color("#ECFD65")
	blue      = lipgloss.Color("#00AAFF")

	mintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}
)

var (
	errorTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F1F1F1")).
			Background(red).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#5A56E0")).
			Padding(0, 1)

	subtleStyle = lipgloss.NewStyle().Foreground(gray)
	dimStyle    = lipgloss.NewStyle().Foreground(normalDim)
	promptStyle = lipgloss.NewStyle().Bold(true)
	answerStyle = lipgloss.NewStyle().Foreground(green)
	wrongStyle  = lipgloss.NewStyle().Foreground(red)
	timerStyle  = lipgloss.NewStyle().Foreground(fuchsia).Bold(true)
	urgentStyle = lipgloss.NewStyle().Foreground(red).Bold(true)

	responseBoxStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(midGray).
				Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(mintGreen).
			Background(darkGreen).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().Foreground(gray)
)
