package ingest

import (
	"sync"

	"livesec/internal/schema"
)

// AnomalyLog keeps the most recent anomaly records in memory for the
// /v1/anomalies endpoint and the dashboard. Oldest records are evicted once
// the window is full.
type AnomalyLog struct {
	mu      sync.RWMutex
	records []schema.AnomalyRecord
	next    int
	full    bool
}

// NewAnomalyLog creates a log holding up to size records.
func NewAnomalyLog(size int) *AnomalyLog {
	if size <= 0 {
		size = 1000
	}
	return &AnomalyLog{records: make([]schema.AnomalyRecord, size)}
}

// Add appends a record, evicting the oldest when full.
func (l *AnomalyLog) Add(rec schema.AnomalyRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[l.next] = rec
	l.next = (l.next + 1) % len(l.records)
	if l.next == 0 {
		l.full = true
	}
}

// List returns up to limit records, newest first, optionally filtered by
// severity. An empty severity matches everything.
func (l *AnomalyLog) List(limit int, severity schema.Severity) []schema.AnomalyRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	count := l.next
	if l.full {
		count = len(l.records)
	}

	out := make([]schema.AnomalyRecord, 0, min(limit, count))
	for i := 0; i < count && len(out) < limit; i++ {
		idx := (l.next - 1 - i + len(l.records)) % len(l.records)
		rec := l.records[idx]
		if severity != "" && rec.Severity != severity {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Len returns the number of records currently held.
func (l *AnomalyLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.full {
		return len(l.records)
	}
	return l.next
}
