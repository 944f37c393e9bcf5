package tui

import "github.com/charmbracelet/lipgloss"

// ANSI 256 palette indexes.
const (
	colorYellow = lipgloss.Color("11")
	colorGreen  = lipgloss.Color("10")
	colorRed    = lipgloss.Color("9")
	colorOrange = lipgloss.Color("208")
	colorGrey   = lipgloss.Color("240")
	colorDim    = lipgloss.Color("241")
)

// Task status styles.
var (
	StyleStatusRunning    = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	StyleStatusComplete   = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	StyleStatusFailed     = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	StyleStatusSuppressed = lipgloss.NewStyle().Foreground(colorOrange)
	StyleStatusPending    = lipgloss.NewStyle().Foreground(colorGrey)
)

var (
	StyleTitle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	StyleHelp  = lipgloss.NewStyle().Foreground(colorDim)
)
