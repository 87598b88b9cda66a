// Package ingest exposes the HTTP intake surface: batch log submission,
// recent anomaly retrieval, health, and metrics.
package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"livesec/internal/detection"
	"livesec/internal/queue"
	"livesec/internal/schema"
)

// Handler serves the intake API.
type Handler struct {
	validator  *schema.Validator
	queue      *queue.EntryQueue
	recent     *AnomalyLog
	maxPayload int
	maxBatch   int
	startTime  time.Time

	engineMetrics func() detection.Metrics

	entriesTotal  uint64
	rejectedTotal uint64
}

// NewHandler creates an intake Handler.
func NewHandler(validator *schema.Validator, q *queue.EntryQueue, recent *AnomalyLog) *Handler {
	return &Handler{
		validator:  validator,
		queue:      q,
		recent:     recent,
		maxPayload: 10 * 1024 * 1024,
		maxBatch:   1000,
		startTime:  time.Now(),
	}
}

// WithMaxPayload sets the maximum request body size in bytes.
func (h *Handler) WithMaxPayload(size int) *Handler {
	if size > 0 {
		h.maxPayload = size
	}
	return h
}

// WithMaxBatch sets the maximum number of entries per request.
func (h *Handler) WithMaxBatch(size int) *Handler {
	if size > 0 {
		h.maxBatch = size
	}
	return h
}

// WithEngineMetrics wires the detection engine's counters into /metrics.
func (h *Handler) WithEngineMetrics(fn func() detection.Metrics) *Handler {
	h.engineMetrics = fn
	return h
}

// EntryInput is the wire format for a submitted log entry. EntryID is
// assigned at intake when absent.
type EntryInput struct {
	EntryID      *uuid.UUID           `json:"entry_id,omitempty"`
	Timestamp    time.Time            `json:"timestamp"`
	Category     schema.Category      `json:"category"`
	Login        *schema.Login        `json:"login,omitempty"`
	Network      *schema.NetworkFlow  `json:"network,omitempty"`
	FileTransfer *schema.FileTransfer `json:"file_transfer,omitempty"`
}

// IngestRequest is the request body for POST /v1/logs.
type IngestRequest struct {
	Entries []EntryInput `json:"entries"`
}

// IngestResponse reports per-batch intake results.
type IngestResponse struct {
	Success   bool     `json:"success"`
	Accepted  int      `json:"accepted"`
	Rejected  int      `json:"rejected"`
	Errors    []string `json:"errors,omitempty"`
	RequestID string   `json:"request_id"`
}

// HandleLogs handles POST /v1/logs. Each entry is validated and enqueued
// independently; a bad entry never rejects the rest of the batch.
func (h *Handler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxPayload))
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if err.Error() == "http: request body too large" {
			respondError(w, http.StatusRequestEntityTooLarge, "payload too large", requestID)
			return
		}
		respondError(w, http.StatusBadRequest, "failed to read request body", requestID)
		return
	}

	var req IngestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err), requestID)
		return
	}
	if len(req.Entries) == 0 {
		respondError(w, http.StatusBadRequest, "no entries provided", requestID)
		return
	}
	if len(req.Entries) > h.maxBatch {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("batch size exceeds maximum of %d", h.maxBatch), requestID)
		return
	}

	var accepted, rejected int
	var errs []string

	for i, input := range req.Entries {
		entry := h.convertInput(input)

		if err := h.validator.Validate(entry); err != nil {
			rejected++
			atomic.AddUint64(&h.rejectedTotal, 1)
			errs = append(errs, fmt.Sprintf("entry[%d]: %s", i, err.Error()))
			continue
		}

		if err := h.queue.Push(entry); err != nil {
			rejected++
			atomic.AddUint64(&h.rejectedTotal, 1)
			if err == queue.ErrQueueFull {
				errs = append(errs, fmt.Sprintf("entry[%d]: queue full", i))
			} else {
				errs = append(errs, fmt.Sprintf("entry[%d]: %s", i, err.Error()))
			}
			continue
		}

		accepted++
		atomic.AddUint64(&h.entriesTotal, 1)
	}

	resp := IngestResponse{
		Success:   rejected == 0,
		Accepted:  accepted,
		Rejected:  rejected,
		RequestID: requestID,
	}
	if len(errs) > 0 {
		resp.Errors = errs
	}

	status := http.StatusOK
	if accepted == 0 && rejected > 0 {
		status = http.StatusBadRequest
	} else if rejected > 0 {
		status = http.StatusMultiStatus
	}
	respondJSON(w, status, resp)
}

func (h *Handler) convertInput(input EntryInput) *schema.Entry {
	entry := &schema.Entry{
		Timestamp:    input.Timestamp,
		Category:     input.Category,
		Login:        input.Login,
		Network:      input.Network,
		FileTransfer: input.FileTransfer,
		ReceivedAt:   time.Now().UTC(),
	}
	if input.EntryID != nil {
		entry.EntryID = *input.EntryID
	} else {
		entry.EntryID = uuid.New()
	}
	return entry
}

// AnomaliesResponse is the body of GET /v1/anomalies.
type AnomaliesResponse struct {
	Anomalies []schema.AnomalyRecord `json:"anomalies"`
	Count     int                    `json:"count"`
}

// HandleAnomalies handles GET /v1/anomalies. Supports ?limit= and
// ?severity= filters over the in-memory recent window.
func (h *Handler) HandleAnomalies(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", uuid.New().String())
			return
		}
		limit = parsed
	}

	var severity schema.Severity
	if raw := r.URL.Query().Get("severity"); raw != "" {
		severity = schema.Severity(raw)
		if !severity.IsValid() {
			respondError(w, http.StatusBadRequest, "invalid severity", uuid.New().String())
			return
		}
	}

	records := h.recent.List(limit, severity)
	respondJSON(w, http.StatusOK, AnomaliesResponse{
		Anomalies: records,
		Count:     len(records),
	})
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	metrics := h.queue.Metrics()

	status := "healthy"
	if metrics.Depth > int(float64(metrics.Capacity)*0.9) {
		status = "degraded"
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"queue_depth":    metrics.Depth,
		"queue_capacity": metrics.Capacity,
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
	})
}

// Metrics handles GET /metrics in Prometheus text format.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	qm := h.queue.Metrics()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeCounter(w, "livesec_entries_total", "Total log entries accepted at intake", atomic.LoadUint64(&h.entriesTotal))
	writeCounter(w, "livesec_entries_rejected_total", "Total log entries rejected at intake", atomic.LoadUint64(&h.rejectedTotal))
	writeCounter(w, "livesec_queue_pushed_total", "Total entries pushed to the queue", qm.Pushed)
	writeCounter(w, "livesec_queue_popped_total", "Total entries popped from the queue", qm.Popped)
	writeCounter(w, "livesec_queue_dropped_total", "Total entries dropped due to a full queue", qm.Dropped)
	writeGauge(w, "livesec_queue_depth", "Current queue depth", uint64(qm.Depth))
	writeGauge(w, "livesec_queue_capacity", "Queue capacity", uint64(qm.Capacity))

	if h.engineMetrics != nil {
		em := h.engineMetrics()
		writeCounter(w, "livesec_entries_processed_total", "Total entries run through detection", em.Processed)
		writeCounter(w, "livesec_anomalies_emitted_total", "Total anomaly records emitted", em.Emitted)
		writeCounter(w, "livesec_entries_malformed_total", "Total malformed entries rejected by detection", em.Malformed)
	}

	writeGauge(w, "livesec_uptime_seconds", "Uptime in seconds", uint64(time.Since(h.startTime).Seconds()))
}

func writeCounter(w io.Writer, name, help string, value uint64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, value)
}

func writeGauge(w io.Writer, name, help string, value uint64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n\n", name, help, name, name, value)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message, requestID string) {
	respondJSON(w, status, map[string]any{
		"success":    false,
		"error":      message,
		"request_id": requestID,
	})
}
