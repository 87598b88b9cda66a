package detection

import (
	"errors"
	"fmt"

	"livesec/internal/config"
	"livesec/internal/schema"
)

// ErrUnknownAnomalyType is returned when a candidate carries a type the
// scorer has no severity mapping for.
var ErrUnknownAnomalyType = errors.New("detection: unknown anomaly type")

// baseSeverity is the severity tier assigned to each anomaly type before
// escalation. Every type emitted by an evaluator must appear here; coverage
// is validated at engine construction so a gap fails at startup rather than
// on the first live detection.
var baseSeverity = map[schema.AnomalyType]schema.Severity{
	schema.AnomalySuspiciousGeoLocation: schema.SeverityHigh,
	schema.AnomalyUnusualLoginTime:      schema.SeverityMedium,
	schema.AnomalyBruteForcePattern:     schema.SeverityMedium,
	schema.AnomalyGeoInconsistency:      schema.SeverityMedium,
	schema.AnomalyTrafficSpikeSent:      schema.SeverityMedium,
	schema.AnomalyTrafficSpikeReceived:  schema.SeverityMedium,
	schema.AnomalySuspiciousPort:        schema.SeverityHigh,
	schema.AnomalyHighConnectionCount:   schema.SeverityMedium,
	schema.AnomalyLargeFileTransfer:     schema.SeverityMedium,
	schema.AnomalySensitiveFileAccess:   schema.SeverityHigh,
	schema.AnomalyOffhoursMovement:      schema.SeverityMedium,
	schema.AnomalyExternalTransfer:      schema.SeverityMedium,
}

// Scorer maps scored anomaly candidates to severity tiers. Scoring is a pure
// function of the candidate's type and metrics plus immutable configuration.
type Scorer struct {
	escalation config.EscalationConfig
}

func NewScorer(cfg config.EscalationConfig) *Scorer {
	return &Scorer{escalation: cfg}
}

// ValidateCoverage verifies every listed anomaly type has a base severity.
func (s *Scorer) ValidateCoverage(types []schema.AnomalyType) error {
	for _, t := range types {
		if _, ok := baseSeverity[t]; !ok {
			return fmt.Errorf("%w: %s has no severity mapping", ErrUnknownAnomalyType, t)
		}
	}
	return nil
}

// Score returns the severity for a candidate, escalating one tier when the
// candidate's metrics cross the configured escalation threshold for its type.
func (s *Scorer) Score(c Candidate) (schema.Severity, error) {
	base, ok := baseSeverity[c.Type]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAnomalyType, c.Type)
	}
	if s.escalates(c) {
		return base.Escalate(), nil
	}
	return base, nil
}

func (s *Scorer) escalates(c Candidate) bool {
	switch c.Type {
	case schema.AnomalyBruteForcePattern:
		return metricInt(c.Metrics, "failure_count") >= s.escalation.BruteForceCount
	case schema.AnomalyLargeFileTransfer:
		return metricInt64(c.Metrics, "file_size_bytes") >= s.escalation.TransferBytes
	case schema.AnomalyExternalTransfer:
		return metricInt64(c.Metrics, "file_size_bytes") >= s.escalation.ExfilBytes
	case schema.AnomalyTrafficSpikeSent, schema.AnomalyTrafficSpikeReceived:
		return metricFloat(c.Metrics, "zscore") >= s.escalation.SpikeStddevK
	case schema.AnomalyGeoInconsistency:
		return metricFloat(c.Metrics, "distance_km") >= s.escalation.TravelDistanceKm
	}
	return false
}

func metricInt(m map[string]any, key string) int {
	if v, ok := m[key].(int); ok {
		return v
	}
	return 0
}

func metricInt64(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func metricFloat(m map[string]any, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}
