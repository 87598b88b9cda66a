// Package styles defines the shared lipgloss styles for the LiveSec
// terminal dashboard.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	Primary    = lipgloss.Color("#2563EB")
	Secondary  = lipgloss.Color("#10B981")
	Warning    = lipgloss.Color("#F59E0B")
	Error      = lipgloss.Color("#EF4444")
	MutedColor = lipgloss.Color("#6B7280")
	White      = lipgloss.Color("#F9FAFB")

	// Title is the main header style.
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		Padding(0, 1)

	// Subtitle is used for section headers within a scene.
	Subtitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(White).
			Padding(0, 1)

	// Box wraps a content section with a rounded border.
	Box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Padding(0, 1)

	// Status indicators
	StatusOK = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	StatusWarning = lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true)

	StatusError = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	// Severity colors for anomaly rows.
	SeverityHigh = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	SeverityMedium = lipgloss.NewStyle().
			Foreground(Warning)

	SeverityLow = lipgloss.NewStyle().
			Foreground(Secondary)

	// Tabs
	TabActive = lipgloss.NewStyle().
			Bold(true).
			Foreground(White).
			Background(Primary).
			Padding(0, 2)

	TabInactive = lipgloss.NewStyle().
			Foreground(MutedColor).
			Padding(0, 2)

	// Help is the footer key-binding hint line.
	Help = lipgloss.NewStyle().
		Foreground(MutedColor).
		Padding(0, 1)

	// Table styles
	TableHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)

	TableRow = lipgloss.NewStyle().
			Foreground(White)

	TableRowSelected = lipgloss.NewStyle().
				Foreground(White).
				Background(MutedColor)

	// Metric cards on the dashboard.
	MetricCard = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(0, 1).
			Width(18)

	MetricValue = lipgloss.NewStyle().
			Bold(true).
			Foreground(Secondary)

	MetricLabel = lipgloss.NewStyle().
			Foreground(MutedColor)
)

// ForSeverity returns the style used to render a severity label.
func ForSeverity(severity string) lipgloss.Style {
	switch severity {
	case "High":
		return SeverityHigh
	case "Medium":
		return SeverityMedium
	case "Low":
		return SeverityLow
	default:
		return TableRow
	}
}
