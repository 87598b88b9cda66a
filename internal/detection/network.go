package detection

import (
	"fmt"

	"livesec/internal/config"
	"livesec/internal/schema"
)

// evaluateNetwork runs the network flow rules against a frozen baseline snapshot.
func evaluateNetwork(e *schema.Entry, snap *Snapshot, cfg *config.DetectionConfig) []Candidate {
	flow := e.Network
	if flow == nil {
		return nil
	}

	var out []Candidate

	if c, ok := spikeCandidate(snap, cfg, MetricBytesSent, schema.AnomalyTrafficSpikeSent, flow.Host, float64(flow.BytesSent)); ok {
		out = append(out, c)
	}
	if c, ok := spikeCandidate(snap, cfg, MetricBytesReceived, schema.AnomalyTrafficSpikeReceived, flow.Host, float64(flow.BytesReceived)); ok {
		out = append(out, c)
	}

	if containsInt(cfg.SuspiciousPorts, flow.DestPort) {
		out = append(out, Candidate{
			Type:    schema.AnomalySuspiciousPort,
			Message: fmt.Sprintf("host %s connected to suspicious port %d", flow.Host, flow.DestPort),
			Metrics: map[string]any{
				"host":           flow.Host,
				"dest_port":      flow.DestPort,
				"bytes_sent":     flow.BytesSent,
				"bytes_received": flow.BytesReceived,
			},
		})
	}

	if flow.ConnectionCount > cfg.ConnectionFloodThreshold {
		out = append(out, Candidate{
			Type:    schema.AnomalyHighConnectionCount,
			Message: fmt.Sprintf("host %s opened %d connections, above the flood threshold", flow.Host, flow.ConnectionCount),
			Metrics: map[string]any{
				"host":             flow.Host,
				"connection_count": flow.ConnectionCount,
				"threshold":        cfg.ConnectionFloodThreshold,
			},
		})
	}

	return out
}

// spikeCandidate flags a value sitting more than K standard deviations above
// the key's running mean. Cold baselines and degenerate (zero stddev)
// baselines never fire.
func spikeCandidate(snap *Snapshot, cfg *config.DetectionConfig, metric string, typ schema.AnomalyType, host string, value float64) (Candidate, bool) {
	stats := snap.Stats[metric]
	if stats.Cold(cfg.MinSamples) || stats.StdDev <= 0 {
		return Candidate{}, false
	}
	threshold := stats.Mean + cfg.SpikeStddevK*stats.StdDev
	if value <= threshold {
		return Candidate{}, false
	}
	zscore := (value - stats.Mean) / stats.StdDev
	return Candidate{
		Type:    typ,
		Message: fmt.Sprintf("host %s %s of %.0f is %.1f stddevs above its mean of %.0f", host, metric, value, zscore, stats.Mean),
		Metrics: map[string]any{
			"host":            host,
			"metric":          metric,
			"observed":        value,
			"baseline_mean":   stats.Mean,
			"baseline_stddev": stats.StdDev,
			"baseline_count":  stats.Count,
			"zscore":          zscore,
		},
	}, true
}

func containsInt(set []int, v int) bool {
	for _, p := range set {
		if p == v {
			return true
		}
	}
	return false
}
