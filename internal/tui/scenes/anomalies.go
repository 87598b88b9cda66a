package scenes

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"livesec/internal/tui/api"
	"livesec/internal/tui/styles"
)

// severityFilters is the cycle order for the f key. Empty means all.
var severityFilters = []string{"", "High", "Medium", "Low"}

type anomaliesMsg struct {
	anomalies []api.Anomaly
	err       error
}

// Anomalies is the scrollable list of recent detections.
type Anomalies struct {
	client    *api.Client
	anomalies []api.Anomaly
	err       error
	filterIdx int
	cursor    int
	offset    int
	width     int
	height    int
}

// NewAnomalies creates the anomaly list scene.
func NewAnomalies(client *api.Client) *Anomalies {
	return &Anomalies{client: client}
}

// Init triggers the first fetch.
func (a *Anomalies) Init() tea.Cmd {
	return a.fetch()
}

func (a *Anomalies) fetch() tea.Cmd {
	severity := severityFilters[a.filterIdx]
	return func() tea.Msg {
		resp, err := a.client.GetAnomalies(200, severity)
		if err != nil {
			return anomaliesMsg{err: err}
		}
		return anomaliesMsg{anomalies: resp.Anomalies}
	}
}

// TickCmd schedules the next refresh of this scene.
func (a *Anomalies) TickCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Scene: "anomalies", Time: t}
	})
}

func (a *Anomalies) maxRows() int {
	rows := a.height - 12
	if rows < 5 {
		rows = 5
	}
	return rows
}

// Update handles messages for the anomaly list.
func (a *Anomalies) Update(msg tea.Msg) (*Anomalies, tea.Cmd) {
	switch msg := msg.(type) {
	case anomaliesMsg:
		a.anomalies = msg.anomalies
		a.err = msg.err
		if a.cursor >= len(a.anomalies) {
			a.cursor = 0
			a.offset = 0
		}
		return a, nil
	case TickMsg:
		if msg.Scene == "anomalies" {
			return a, tea.Batch(a.fetch(), a.TickCmd())
		}
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if a.cursor > 0 {
				a.cursor--
				if a.cursor < a.offset {
					a.offset = a.cursor
				}
			}
		case "down", "j":
			if a.cursor < len(a.anomalies)-1 {
				a.cursor++
				if a.cursor >= a.offset+a.maxRows() {
					a.offset = a.cursor - a.maxRows() + 1
				}
			}
		case "pgup":
			a.cursor -= a.maxRows()
			if a.cursor < 0 {
				a.cursor = 0
			}
			if a.cursor < a.offset {
				a.offset = a.cursor
			}
		case "pgdown":
			a.cursor += a.maxRows()
			if a.cursor > len(a.anomalies)-1 {
				a.cursor = len(a.anomalies) - 1
			}
			if a.cursor >= a.offset+a.maxRows() {
				a.offset = a.cursor - a.maxRows() + 1
			}
		case "f":
			a.filterIdx = (a.filterIdx + 1) % len(severityFilters)
			a.cursor = 0
			a.offset = 0
			return a, a.fetch()
		case "r":
			return a, a.fetch()
		}
	}
	return a, nil
}

// View renders the anomaly list.
func (a *Anomalies) View() string {
	if a.err != nil {
		return styles.StatusError.Render("Error: " + a.err.Error())
	}

	filter := severityFilters[a.filterIdx]
	if filter == "" {
		filter = "all"
	}
	header := styles.Subtitle.Render(fmt.Sprintf("Anomalies (%d) · filter: %s", len(a.anomalies), filter))

	if len(a.anomalies) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			header,
			"",
			styles.Help.Render("  No anomalies recorded."),
		)
	}

	columns := styles.TableHeader.Render(fmt.Sprintf("  %-8s %-8s %-10s %-24s %s",
		"TIME", "SEV", "CATEGORY", "TYPE", "MESSAGE"))

	rows := []string{header, "", columns}
	end := a.offset + a.maxRows()
	if end > len(a.anomalies) {
		end = len(a.anomalies)
	}
	for i := a.offset; i < end; i++ {
		rows = append(rows, a.renderRow(a.anomalies[i], i == a.cursor))
	}

	if len(a.anomalies) > a.maxRows() {
		rows = append(rows, styles.Help.Render(
			fmt.Sprintf("  %d-%d of %d", a.offset+1, end, len(a.anomalies))))
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (a *Anomalies) renderRow(rec api.Anomaly, selected bool) string {
	msgWidth := a.width - 60
	if msgWidth < 16 {
		msgWidth = 16
	}

	line := fmt.Sprintf("  %-8s %-8s %-10s %-24s %s",
		rec.Timestamp.Local().Format("15:04:05"),
		rec.Severity,
		truncate(rec.Category, 10),
		truncate(rec.Type, 24),
		truncate(rec.Message, msgWidth),
	)

	if selected {
		return styles.TableRowSelected.Render(line)
	}
	return styles.ForSeverity(rec.Severity).Render(line)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
