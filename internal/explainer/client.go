// Package explainer turns anomaly records into analyst-readable explanations.
// When an OpenAI-compatible chat API is configured the explanation comes from
// the model; otherwise a canned per-type explanation is used. Explanations
// are cached so repeated anomalies of the same shape cost one API call.
package explainer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"livesec/internal/config"
	"livesec/internal/schema"
)

// Client talks to an OpenAI-compatible chat completions API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a chat completions client from configuration.
func NewClient(cfg config.ExplainerConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Explain asks the model for an explanation of the anomaly.
func (c *Client) Explain(ctx context.Context, rec *schema.AnomalyRecord) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a cybersecurity expert providing clear, actionable explanations of security anomalies."},
			{Role: "user", Content: buildPrompt(rec)},
		},
		MaxTokens:   200,
		Temperature: 0.3,
	}

	resp, err := c.doRequest(ctx, "/chat/completions", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("chat response contained no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func buildPrompt(rec *schema.AnomalyRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are analyzing a %s severity anomaly.\n\n", strings.ToLower(string(rec.Severity)))
	fmt.Fprintf(&b, "Anomaly Type: %s\n", rec.Type)
	fmt.Fprintf(&b, "Severity: %s\n", rec.Severity)
	fmt.Fprintf(&b, "Description: %s\n\nAdditional Details:\n", rec.Message)
	for key, value := range rec.Metrics {
		fmt.Fprintf(&b, "- %s: %v\n", key, value)
	}
	b.WriteString(`
Provide a concise, professional explanation of this cybersecurity anomaly that includes:
1. What happened (1-2 sentences)
2. Why this is concerning (1-2 sentences)
3. Recommended immediate action (1 sentence)

Keep the explanation under 150 words and use clear, non-technical language that security analysts can quickly understand.
`)
	return b.String()
}

func (c *Client) doRequest(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return resp, nil
}

// retryAfter gives the client a small pause between consecutive calls to
// stay under provider rate limits.
const retryAfter = 500 * time.Millisecond
