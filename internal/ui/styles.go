package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorWarning   = lipgloss.Color("214") // Orange
	colorDanger    = lipgloss.Color("196") // Red
)

// SelectedRow style for the currently highlighted row.
var SelectedRow = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary)

// NormalRow style for unselected rows.
var NormalRow = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255"))

// TimeColumn style for the timestamp column.
var TimeColumn = lipgloss.NewStyle().
	Foreground(colorSecondary)

// MonitorBadge style for monitor name badges.
var MonitorBadge = lipgloss.NewStyle().
	Foreground(colorPrimary).
	Background(lipgloss.Color("236")).
	Padding(0, 1).
	MarginRight(1)

// Status styles keyed by row status.
var (
	StatusUp       = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	StatusDown     = lipgloss.NewStyle().Foreground(colorDanger).Bold(true)
	StatusDegraded = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	StatusOther    = lipgloss.NewStyle().Foreground(colorSecondary)
)

// LiveBadge marks live mode in the status bar.
var LiveBadge = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(colorSuccess).
	Bold(true).
	Padding(0, 1)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(colorDanger).
	Bold(true).
	Padding(0, 1)

// HelpStyle for help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(1, 2)

// EndMarker is shown below the last row once history is exhausted.
var EndMarker = lipgloss.NewStyle().
	Foreground(colorMuted).
	Italic(true).
	Padding(0, 1)

// DebugPanel frames the event overlay.
var DebugPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(1, 2)

// DebugHeaderStyle titles sections of the event overlay.
var DebugHeaderStyle = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)
