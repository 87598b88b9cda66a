// Package tui implements the LiveSec terminal dashboard.
package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"livesec/internal/tui/api"
	"livesec/internal/tui/scenes"
	"livesec/internal/tui/styles"
)

// Scene identifies the active view.
type Scene int

const (
	SceneDashboard Scene = iota
	SceneAnomalies
	SceneSystem
)

var sceneNames = []string{"Dashboard", "Anomalies", "System"}

// Model is the root bubbletea model holding the scene state.
type Model struct {
	client    *api.Client
	scene     Scene
	dashboard *scenes.Dashboard
	anomalies *scenes.Anomalies
	system    *scenes.System
	width     int
	height    int
	quitting  bool
}

// NewModel creates the root model for the given backend URL.
func NewModel(baseURL, apiKey string) Model {
	client := api.NewClient(baseURL)
	if apiKey != "" {
		client = client.WithAPIKey(apiKey)
	}
	return Model{
		client:    client,
		scene:     SceneDashboard,
		dashboard: scenes.NewDashboard(client),
		anomalies: scenes.NewAnomalies(client),
		system:    scenes.NewSystem(client, baseURL),
	}
}

// Init starts the initial scene.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.dashboard.Init(), m.dashboard.TickCmd())
}

// Update routes messages to the active scene.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "1":
			return m.switchScene(SceneDashboard)
		case "2":
			return m.switchScene(SceneAnomalies)
		case "3":
			return m.switchScene(SceneSystem)
		case "tab":
			return m.switchScene((m.scene + 1) % 3)
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		var cmds []tea.Cmd
		var cmd tea.Cmd
		m.dashboard, cmd = m.dashboard.Update(msg)
		cmds = append(cmds, cmd)
		m.anomalies, cmd = m.anomalies.Update(msg)
		cmds = append(cmds, cmd)
		m.system, cmd = m.system.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}

	// Everything else, ticks included, goes only to the active scene.
	var cmd tea.Cmd
	switch m.scene {
	case SceneDashboard:
		m.dashboard, cmd = m.dashboard.Update(msg)
	case SceneAnomalies:
		m.anomalies, cmd = m.anomalies.Update(msg)
	case SceneSystem:
		m.system, cmd = m.system.Update(msg)
	}
	return m, cmd
}

func (m Model) switchScene(scene Scene) (tea.Model, tea.Cmd) {
	if scene == m.scene {
		return m, nil
	}
	m.scene = scene
	switch scene {
	case SceneDashboard:
		return m, tea.Batch(m.dashboard.Init(), m.dashboard.TickCmd())
	case SceneAnomalies:
		return m, tea.Batch(m.anomalies.Init(), m.anomalies.TickCmd())
	case SceneSystem:
		return m, tea.Batch(m.system.Init(), m.system.TickCmd())
	}
	return m, nil
}

// View renders the full frame.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var body string
	switch m.scene {
	case SceneDashboard:
		body = m.dashboard.View()
	case SceneAnomalies:
		body = m.anomalies.View()
	case SceneSystem:
		body = m.system.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderFooter(),
	)
}

func (m Model) renderHeader() string {
	title := styles.Title.Render("LiveSec")

	tabs := make([]string, len(sceneNames))
	for i, name := range sceneNames {
		label := fmt.Sprintf("%d %s", i+1, name)
		if Scene(i) == m.scene {
			tabs[i] = styles.TabActive.Render(label)
		} else {
			tabs[i] = styles.TabInactive.Render(label)
		}
	}
	tabBar := lipgloss.JoinHorizontal(lipgloss.Center, tabs...)

	header := lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", tabBar)
	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(styles.MutedColor).
		Render(header)
}

func (m Model) renderFooter() string {
	help := "1/2/3 or tab switch · ↑/↓ scroll · f filter · r refresh · q quit"
	return styles.Help.Render(help)
}

// Run starts the dashboard against the given backend.
func Run(baseURL, apiKey string) error {
	p := tea.NewProgram(NewModel(baseURL, apiKey), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
