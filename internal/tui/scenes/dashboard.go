// Package scenes contains the individual views of the LiveSec dashboard.
package scenes

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"livesec/internal/tui/api"
	"livesec/internal/tui/styles"
)

// TickMsg drives periodic refresh. Scene identifies the view that
// scheduled the tick so inactive scenes can ignore it.
type TickMsg struct {
	Scene string
	Time  time.Time
}

type statsMsg struct {
	stats *api.Stats
	err   error
}

// Dashboard is the overview scene showing throughput and health.
type Dashboard struct {
	client *api.Client
	stats  *api.Stats
	err    error
	width  int
	height int
}

// NewDashboard creates the overview scene.
func NewDashboard(client *api.Client) *Dashboard {
	return &Dashboard{client: client}
}

// Init triggers the first stats fetch.
func (d *Dashboard) Init() tea.Cmd {
	return d.fetchStats()
}

func (d *Dashboard) fetchStats() tea.Cmd {
	return func() tea.Msg {
		stats, err := d.client.GetStats()
		return statsMsg{stats: stats, err: err}
	}
}

// TickCmd schedules the next refresh of this scene.
func (d *Dashboard) TickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Scene: "dashboard", Time: t}
	})
}

// Update handles messages for the dashboard scene.
func (d *Dashboard) Update(msg tea.Msg) (*Dashboard, tea.Cmd) {
	switch msg := msg.(type) {
	case statsMsg:
		d.stats = msg.stats
		d.err = msg.err
		return d, nil
	case TickMsg:
		if msg.Scene == "dashboard" {
			return d, tea.Batch(d.fetchStats(), d.TickCmd())
		}
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
	}
	return d, nil
}

// View renders the dashboard.
func (d *Dashboard) View() string {
	if d.err != nil {
		return styles.StatusError.Render("Error: " + d.err.Error())
	}
	if d.stats == nil {
		return styles.Help.Render("Loading...")
	}

	var status string
	switch {
	case d.stats.Healthy:
		status = styles.StatusOK.Render("● HEALTHY")
	case d.stats.HealthStatus == "degraded":
		status = styles.StatusWarning.Render("● DEGRADED")
	default:
		status = styles.StatusError.Render("● OFFLINE")
	}
	statusLine := lipgloss.JoinHorizontal(lipgloss.Center,
		status, "  ", styles.Help.Render(d.stats.StatusReason))

	cards := lipgloss.JoinHorizontal(lipgloss.Top,
		renderMetricCard("Entries", formatNumber(d.stats.EntriesTotal)),
		renderMetricCard("Anomalies", formatNumber(d.stats.AnomaliesTotal)),
		renderMetricCard("Entries/sec", fmt.Sprintf("%.1f", d.stats.EntriesPerSecond)),
		renderMetricCard("Queue", fmt.Sprintf("%.0f%%", d.stats.QueueUsage)),
	)

	pipeline := styles.Box.Render(lipgloss.JoinVertical(lipgloss.Left,
		styles.TableHeader.Render("Pipeline"),
		fmt.Sprintf("  Queued      %s", formatNumber(d.stats.QueuePushed)),
		fmt.Sprintf("  Processed   %s", formatNumber(d.stats.QueuePopped)),
		fmt.Sprintf("  Dropped     %s", formatNumber(d.stats.QueueDropped)),
		fmt.Sprintf("  Malformed   %s", formatNumber(d.stats.MalformedTotal)),
	))

	uptime := styles.Help.Render("Uptime: " + d.stats.Uptime)

	return lipgloss.JoinVertical(lipgloss.Left,
		"",
		statusLine,
		"",
		cards,
		"",
		pipeline,
		"",
		uptime,
	)
}

func renderMetricCard(label, value string) string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		styles.MetricValue.Render(value),
		styles.MetricLabel.Render(label),
	)
	return styles.MetricCard.Render(content)
}

func formatNumber(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
