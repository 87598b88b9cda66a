package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"livesec/internal/config"
	"livesec/internal/queue"
	"livesec/internal/schema"
)

func newTestHandler(queueSize int) (*Handler, *queue.EntryQueue, *AnomalyLog) {
	q := queue.New(queueSize)
	recent := NewAnomalyLog(100)
	h := NewHandler(schema.NewValidator(), q, recent)
	return h, q, recent
}

func postLogs(t *testing.T, h *Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/logs", bytes.NewReader(data))
	w := httptest.NewRecorder()
	h.HandleLogs(w, req)
	return w
}

func validLoginInput() EntryInput {
	return EntryInput{
		Timestamp: time.Now().UTC(),
		Category:  schema.CategoryLogin,
		Login: &schema.Login{
			Username:   "alice",
			SourceIP:   "10.0.0.5",
			GeoCountry: "USA",
			Success:    true,
		},
	}
}

func TestHandleLogs_AcceptsValidBatch(t *testing.T) {
	h, q, _ := newTestHandler(10)

	w := postLogs(t, h, IngestRequest{Entries: []EntryInput{validLoginInput(), validLoginInput()}})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp IngestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Accepted != 2 || resp.Rejected != 0 {
		t.Errorf("response = %+v", resp)
	}
	if q.Len() != 2 {
		t.Errorf("queue depth = %d, want 2", q.Len())
	}
}

func TestHandleLogs_PartialBatch(t *testing.T) {
	h, q, _ := newTestHandler(10)

	bad := validLoginInput()
	bad.Login.SourceIP = "not-an-ip"

	w := postLogs(t, h, IngestRequest{Entries: []EntryInput{validLoginInput(), bad, validLoginInput()}})

	if w.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want 207: %s", w.Code, w.Body.String())
	}
	var resp IngestResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Accepted != 2 || resp.Rejected != 1 {
		t.Errorf("accepted/rejected = %d/%d, want 2/1", resp.Accepted, resp.Rejected)
	}
	if len(resp.Errors) != 1 {
		t.Errorf("errors = %v, want one entry error", resp.Errors)
	}
	// The malformed entry never reaches the queue.
	if q.Len() != 2 {
		t.Errorf("queue depth = %d, want 2", q.Len())
	}
}

func TestHandleLogs_AllRejected(t *testing.T) {
	h, _, _ := newTestHandler(10)

	bad := EntryInput{Timestamp: time.Now().UTC(), Category: "dns"}
	w := postLogs(t, h, IngestRequest{Entries: []EntryInput{bad}})

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleLogs_PayloadMismatchRejected(t *testing.T) {
	h, _, _ := newTestHandler(10)

	// Declared login but carries a network payload.
	bad := EntryInput{
		Timestamp: time.Now().UTC(),
		Category:  schema.CategoryLogin,
		Network:   &schema.NetworkFlow{Host: "h1"},
	}
	w := postLogs(t, h, IngestRequest{Entries: []EntryInput{bad}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleLogs_BadRequests(t *testing.T) {
	h, _, _ := newTestHandler(10)

	t.Run("invalid JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/logs", bytes.NewReader([]byte("{not json")))
		w := httptest.NewRecorder()
		h.HandleLogs(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		w := postLogs(t, h, IngestRequest{})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("oversized batch", func(t *testing.T) {
		h.WithMaxBatch(2)
		w := postLogs(t, h, IngestRequest{Entries: []EntryInput{validLoginInput(), validLoginInput(), validLoginInput()}})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestHandleLogs_QueueFull(t *testing.T) {
	h, _, _ := newTestHandler(1)

	w := postLogs(t, h, IngestRequest{Entries: []EntryInput{validLoginInput(), validLoginInput()}})

	if w.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want 207", w.Code)
	}
	var resp IngestResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Accepted != 1 || resp.Rejected != 1 {
		t.Errorf("accepted/rejected = %d/%d, want 1/1", resp.Accepted, resp.Rejected)
	}
}

func TestHandleAnomalies(t *testing.T) {
	h, _, recent := newTestHandler(10)

	for i := 0; i < 5; i++ {
		sev := schema.SeverityMedium
		if i%2 == 0 {
			sev = schema.SeverityHigh
		}
		recent.Add(schema.AnomalyRecord{
			RecordID: uuid.New(),
			Type:     schema.AnomalySuspiciousPort,
			Severity: sev,
			Message:  fmt.Sprintf("anomaly %d", i),
		})
	}

	t.Run("all", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/anomalies", nil)
		w := httptest.NewRecorder()
		h.HandleAnomalies(w, req)

		var resp AnomaliesResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Count != 5 {
			t.Errorf("count = %d, want 5", resp.Count)
		}
		// Newest first.
		if resp.Anomalies[0].Message != "anomaly 4" {
			t.Errorf("first = %q, want newest", resp.Anomalies[0].Message)
		}
	})

	t.Run("limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/anomalies?limit=2", nil)
		w := httptest.NewRecorder()
		h.HandleAnomalies(w, req)

		var resp AnomaliesResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Count != 2 {
			t.Errorf("count = %d, want 2", resp.Count)
		}
	})

	t.Run("severity filter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/anomalies?severity=High", nil)
		w := httptest.NewRecorder()
		h.HandleAnomalies(w, req)

		var resp AnomaliesResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Count != 3 {
			t.Errorf("count = %d, want 3", resp.Count)
		}
	})

	t.Run("invalid severity", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/anomalies?severity=Hot", nil)
		w := httptest.NewRecorder()
		h.HandleAnomalies(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestHealthCheck(t *testing.T) {
	h, _, _ := newTestHandler(10)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.HealthCheck(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", resp["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _, _ := newTestHandler(10)
	postLogs(t, h, IngestRequest{Entries: []EntryInput{validLoginInput()}})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.Metrics(w, req)

	body := w.Body.String()
	for _, metric := range []string{"livesec_entries_total 1", "livesec_queue_depth 1", "livesec_queue_capacity 10"} {
		if !bytes.Contains([]byte(body), []byte(metric)) {
			t.Errorf("metrics output missing %q", metric)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeys = []string{"k1"}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := WithMiddleware(inner, cfg)

	t.Run("missing key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/logs", nil)
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("valid key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/logs", nil)
		req.Header.Set("X-API-Key", "k1")
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("health stays open", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerIP = 2
	cfg.RateLimit.BurstSize = 0
	cfg.RateLimit.WindowSize = time.Minute

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := WithMiddleware(inner, cfg)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/logs", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/logs", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
}

func TestAnomalyLog_Eviction(t *testing.T) {
	l := NewAnomalyLog(3)
	for i := 0; i < 5; i++ {
		l.Add(schema.AnomalyRecord{Message: fmt.Sprintf("m%d", i)})
	}
	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}
	got := l.List(10, "")
	if len(got) != 3 || got[0].Message != "m4" || got[2].Message != "m2" {
		t.Errorf("List() = %+v, want m4..m2 newest first", got)
	}
}
