// Package detection implements the LiveSec anomaly detection engine:
// per-category rule evaluators over baseline snapshots, severity scoring,
// and the orchestrator that ties them together per entry.
package detection

import (
	"time"

	"livesec/internal/baseline"
	"livesec/internal/schema"
)

// Candidate is an unscored detection produced by a rule evaluator.
type Candidate struct {
	Type    schema.AnomalyType
	Message string
	Metrics map[string]any
}

// Snapshot captures everything an evaluator may read about an entry's key,
// taken strictly before the entry itself is folded into the baseline.
// Evaluators never touch the store directly; they see only this frozen view.
type Snapshot struct {
	Key string

	// Numeric running stats per metric name (bytes_sent, file_size_bytes, ...).
	Stats map[string]baseline.Stats

	// Login history.
	SeenCountries   []string
	CountrySeen     bool // current entry's country already in history
	IPFailures      int  // failures for the entry's source IP inside the window, prior entries only
	LastCountry     string
	LastSeenAt      time.Time
	HasLastLocation bool
}

// Metric names used for baseline statistics.
const (
	MetricBytesSent       = "bytes_sent"
	MetricBytesReceived   = "bytes_received"
	MetricConnectionCount = "connection_count"
	MetricFileSizeBytes   = "file_size_bytes"
)
