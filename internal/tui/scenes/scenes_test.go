package scenes

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"livesec/internal/tui/api"
)

func keyDown() tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyDown} }
func keyUp() tea.KeyMsg   { return tea.KeyMsg{Type: tea.KeyUp} }

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1500, "1.5K"},
		{2_400_000, "2.4M"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.n); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"brute_force_pattern", 10, "brute_f..."},
		{"abc", 3, "abc"},
		{"abcd", 3, "abc"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestAnomaliesCursorMovement(t *testing.T) {
	a := NewAnomalies(api.NewClient("http://localhost:8080"))
	a.height = 40

	recs := make([]api.Anomaly, 10)
	for i := range recs {
		recs[i] = api.Anomaly{
			Type:      "rare_destination_port",
			Severity:  "Low",
			Timestamp: time.Now(),
		}
	}
	a, _ = a.Update(anomaliesMsg{anomalies: recs})

	a, _ = a.Update(keyDown())
	a, _ = a.Update(keyDown())
	if a.cursor != 2 {
		t.Errorf("cursor = %d, want 2", a.cursor)
	}

	a, _ = a.Update(keyUp())
	if a.cursor != 1 {
		t.Errorf("cursor = %d, want 1", a.cursor)
	}
}

func TestAnomaliesFilterCycleResetsCursor(t *testing.T) {
	a := NewAnomalies(api.NewClient("http://localhost:8080"))
	a.cursor = 3

	a, cmd := a.Update(keyRune('f'))
	if a.filterIdx != 1 {
		t.Errorf("filterIdx = %d, want 1", a.filterIdx)
	}
	if a.cursor != 0 {
		t.Errorf("cursor = %d, want 0", a.cursor)
	}
	if cmd == nil {
		t.Error("filter change should trigger a fetch")
	}
	if severityFilters[a.filterIdx] != "High" {
		t.Errorf("filter = %q, want High", severityFilters[a.filterIdx])
	}
}
