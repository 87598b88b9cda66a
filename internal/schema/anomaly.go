package schema

import (
	"time"

	"github.com/google/uuid"
)

// Severity is the tier assigned to an anomaly record.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// IsValid checks if the severity is a known tier.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Escalate returns the next tier up. High stays High.
func (s Severity) Escalate() Severity {
	switch s {
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	}
	return SeverityHigh
}

// AnomalyType enumerates every anomaly the rule evaluators can produce.
type AnomalyType string

const (
	AnomalySuspiciousGeoLocation AnomalyType = "suspicious_geo_location"
	AnomalyUnusualLoginTime      AnomalyType = "unusual_login_time"
	AnomalyBruteForcePattern     AnomalyType = "brute_force_pattern"
	AnomalyGeoInconsistency      AnomalyType = "geo_inconsistency"

	AnomalyTrafficSpikeSent     AnomalyType = "traffic_spike_sent"
	AnomalyTrafficSpikeReceived AnomalyType = "traffic_spike_received"
	AnomalySuspiciousPort       AnomalyType = "suspicious_port_connection"
	AnomalyHighConnectionCount  AnomalyType = "high_connection_count"

	AnomalyLargeFileTransfer   AnomalyType = "large_file_transfer"
	AnomalySensitiveFileAccess AnomalyType = "sensitive_file_access"
	AnomalyOffhoursMovement    AnomalyType = "offhours_data_movement"
	AnomalyExternalTransfer    AnomalyType = "external_transfer"
)

// AllAnomalyTypes lists every type an evaluator can emit. Severity scoring
// must cover all of them; the scorer validates this at startup.
func AllAnomalyTypes() []AnomalyType {
	return []AnomalyType{
		AnomalySuspiciousGeoLocation,
		AnomalyUnusualLoginTime,
		AnomalyBruteForcePattern,
		AnomalyGeoInconsistency,
		AnomalyTrafficSpikeSent,
		AnomalyTrafficSpikeReceived,
		AnomalySuspiciousPort,
		AnomalyHighConnectionCount,
		AnomalyLargeFileTransfer,
		AnomalySensitiveFileAccess,
		AnomalyOffhoursMovement,
		AnomalyExternalTransfer,
	}
}

// AnomalyRecord is a scored, finalized detection. Records are self-contained:
// all evidence lives in Metrics, with no back-reference to the triggering
// entry.
type AnomalyRecord struct {
	RecordID  uuid.UUID      `json:"record_id"`
	Timestamp time.Time      `json:"timestamp"`
	Category  Category       `json:"category"`
	Type      AnomalyType    `json:"anomaly_type"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Metrics   map[string]any `json:"metrics,omitempty"`

	// Filled in by the explainer before the record reaches sinks. Empty
	// when explanation is disabled.
	Explanation string `json:"explanation,omitempty"`
}
