// Package api provides the HTTP client the dashboard uses to talk to the
// LiveSec backend.
package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to the LiveSec ingest service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an API client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// WithAPIKey sets the key sent in the X-API-Key header.
func (c *Client) WithAPIKey(key string) *Client {
	c.apiKey = key
	return c
}

// HealthResponse mirrors GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	UptimeSeconds int    `json:"uptime_seconds"`
}

// Anomaly mirrors one anomaly record returned by GET /v1/anomalies.
type Anomaly struct {
	RecordID    string         `json:"record_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Category    string         `json:"category"`
	Type        string         `json:"anomaly_type"`
	Severity    string         `json:"severity"`
	Message     string         `json:"message"`
	Metrics     map[string]any `json:"metrics,omitempty"`
	Explanation string         `json:"explanation,omitempty"`
}

// AnomaliesResponse mirrors GET /v1/anomalies.
type AnomaliesResponse struct {
	Anomalies []Anomaly `json:"anomalies"`
	Count     int       `json:"count"`
}

// Stats is the combined view the dashboard renders, assembled from the
// health and metrics endpoints.
type Stats struct {
	EntriesTotal     int64
	EntriesPerSecond float64
	AnomaliesTotal   int64
	MalformedTotal   int64
	QueueDepth       int
	QueueCapacity    int
	QueuePushed      int64
	QueuePopped      int64
	QueueDropped     int64
	QueueUsage       float64
	Uptime           string
	UptimeSeconds    int
	Healthy          bool
	HealthStatus     string
	StatusReason     string
}

func (c *Client) get(path string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	return resp, nil
}

// GetHealth fetches the backend health status.
func (c *Client) GetHealth() (*HealthResponse, error) {
	resp, err := c.get("/health")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &health, nil
}

// GetAnomalies fetches recent anomalies, optionally filtered by severity.
func (c *Client) GetAnomalies(limit int, severity string) (*AnomaliesResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if severity != "" {
		params.Set("severity", severity)
	}

	path := "/v1/anomalies"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	resp, err := c.get(path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	var anomalies AnomaliesResponse
	if err := json.NewDecoder(resp.Body).Decode(&anomalies); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &anomalies, nil
}

// GetStats assembles dashboard stats from /health and /metrics.
func (c *Client) GetStats() (*Stats, error) {
	stats := &Stats{
		HealthStatus: "unknown",
		StatusReason: "Unable to connect to backend",
	}

	health, err := c.GetHealth()
	if err != nil {
		stats.StatusReason = err.Error()
		return stats, nil
	}

	stats.HealthStatus = health.Status
	stats.Healthy = health.Status == "healthy"
	stats.QueueDepth = health.QueueDepth
	stats.QueueCapacity = health.QueueCapacity
	stats.UptimeSeconds = health.UptimeSeconds
	stats.Uptime = formatUptime(float64(health.UptimeSeconds))

	if health.QueueCapacity > 0 {
		stats.QueueUsage = float64(health.QueueDepth) / float64(health.QueueCapacity) * 100
	}

	if health.Status == "degraded" {
		stats.StatusReason = fmt.Sprintf("Queue at %.0f%% capacity", stats.QueueUsage)
	} else if stats.Healthy {
		stats.StatusReason = "All systems operational"
	}

	resp, err := c.get("/metrics")
	if err == nil {
		defer resp.Body.Close()

		buf := new(strings.Builder)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			buf.WriteString(scanner.Text())
			buf.WriteString("\n")
		}
		metrics := parsePrometheusMetrics(buf.String())

		if v, ok := metrics["livesec_entries_total"]; ok {
			stats.EntriesTotal = int64(v)
		}
		if v, ok := metrics["livesec_anomalies_emitted_total"]; ok {
			stats.AnomaliesTotal = int64(v)
		}
		if v, ok := metrics["livesec_entries_malformed_total"]; ok {
			stats.MalformedTotal = int64(v)
		}
		if v, ok := metrics["livesec_queue_pushed_total"]; ok {
			stats.QueuePushed = int64(v)
		}
		if v, ok := metrics["livesec_queue_popped_total"]; ok {
			stats.QueuePopped = int64(v)
		}
		if v, ok := metrics["livesec_queue_dropped_total"]; ok {
			stats.QueueDropped = int64(v)
		}
		if uptime, ok := metrics["livesec_uptime_seconds"]; ok && uptime > 0 {
			stats.EntriesPerSecond = float64(stats.EntriesTotal) / uptime
		}
	}

	return stats, nil
}

// parsePrometheusMetrics extracts name/value pairs from text exposition
// format, ignoring comments.
func parsePrometheusMetrics(body string) map[string]float64 {
	metrics := make(map[string]float64)
	scanner := bufio.NewScanner(strings.NewReader(body))

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) >= 2 {
			if val, err := strconv.ParseFloat(parts[1], 64); err == nil {
				metrics[parts[0]] = val
			}
		}
	}
	return metrics
}

func formatUptime(seconds float64) string {
	d := time.Duration(seconds) * time.Second
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
	}
	if mins > 0 {
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	return fmt.Sprintf("%ds", secs)
}
