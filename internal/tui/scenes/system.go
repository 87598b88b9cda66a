package scenes

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"livesec/internal/tui/api"
	"livesec/internal/tui/styles"
)

// System shows connection details and queue configuration.
type System struct {
	client  *api.Client
	baseURL string
	stats   *api.Stats
	err     error
	width   int
	height  int
}

// NewSystem creates the system scene.
func NewSystem(client *api.Client, baseURL string) *System {
	return &System{client: client, baseURL: baseURL}
}

// Init triggers the first stats fetch.
func (s *System) Init() tea.Cmd {
	return s.fetchStats()
}

func (s *System) fetchStats() tea.Cmd {
	return func() tea.Msg {
		stats, err := s.client.GetStats()
		return statsMsg{stats: stats, err: err}
	}
}

// TickCmd schedules the next refresh of this scene.
func (s *System) TickCmd() tea.Cmd {
	return tea.Tick(10*time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Scene: "system", Time: t}
	})
}

// Update handles messages for the system scene.
func (s *System) Update(msg tea.Msg) (*System, tea.Cmd) {
	switch msg := msg.(type) {
	case statsMsg:
		s.stats = msg.stats
		s.err = msg.err
		return s, nil
	case TickMsg:
		if msg.Scene == "system" {
			return s, tea.Batch(s.fetchStats(), s.TickCmd())
		}
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
	}
	return s, nil
}

// View renders the system scene.
func (s *System) View() string {
	if s.err != nil {
		return styles.StatusError.Render("Error: " + s.err.Error())
	}
	if s.stats == nil {
		return styles.Help.Render("Loading...")
	}

	var connStatus string
	switch {
	case s.stats.Healthy:
		connStatus = styles.StatusOK.Render("connected")
	case s.stats.HealthStatus == "degraded":
		connStatus = styles.StatusWarning.Render("degraded")
	default:
		connStatus = styles.StatusError.Render("unreachable")
	}

	connection := styles.Box.Render(lipgloss.JoinVertical(lipgloss.Left,
		styles.TableHeader.Render("Backend"),
		fmt.Sprintf("  URL       %s", s.baseURL),
		fmt.Sprintf("  Status    %s", connStatus),
		fmt.Sprintf("  Uptime    %s", s.stats.Uptime),
	))

	usageStyle := styles.StatusOK
	if s.stats.QueueUsage >= 90 {
		usageStyle = styles.StatusError
	} else if s.stats.QueueUsage >= 70 {
		usageStyle = styles.StatusWarning
	}

	queue := styles.Box.Render(lipgloss.JoinVertical(lipgloss.Left,
		styles.TableHeader.Render("Queue"),
		fmt.Sprintf("  Depth     %d / %d", s.stats.QueueDepth, s.stats.QueueCapacity),
		fmt.Sprintf("  Usage     %s", usageStyle.Render(fmt.Sprintf("%.1f%%", s.stats.QueueUsage))),
		fmt.Sprintf("  Dropped   %d", s.stats.QueueDropped),
	))

	endpoints := styles.Box.Render(lipgloss.JoinVertical(lipgloss.Left,
		styles.TableHeader.Render("Endpoints"),
		"  POST /v1/logs        submit log entries",
		"  GET  /v1/anomalies   recent detections",
		"  GET  /health         service health",
		"  GET  /metrics        Prometheus metrics",
	))

	return lipgloss.JoinVertical(lipgloss.Left,
		"",
		connection,
		"",
		queue,
		"",
		endpoints,
	)
}
