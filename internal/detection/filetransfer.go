package detection

import (
	"fmt"
	"strings"

	"livesec/internal/config"
	"livesec/internal/schema"
)

// evaluateFileTransfer runs the file transfer rules against a frozen
// baseline snapshot.
func evaluateFileTransfer(e *schema.Entry, snap *Snapshot, cfg *config.DetectionConfig) []Candidate {
	xfer := e.FileTransfer
	if xfer == nil {
		return nil
	}

	var out []Candidate

	// Large transfer: an absolute cap applies always, and a statistical
	// check against the user's own history applies once the baseline warms.
	size := xfer.FileSizeBytes
	switch {
	case size > cfg.LargeTransferBytes:
		out = append(out, Candidate{
			Type:    schema.AnomalyLargeFileTransfer,
			Message: fmt.Sprintf("user %s transferred %d bytes, above the absolute cap", xfer.User, size),
			Metrics: map[string]any{
				"user":            xfer.User,
				"file_path":       xfer.FilePath,
				"file_size_bytes": size,
				"threshold_bytes": cfg.LargeTransferBytes,
				"reason":          "absolute",
			},
		})
	default:
		stats := snap.Stats[MetricFileSizeBytes]
		if !stats.Cold(cfg.MinSamples) && stats.StdDev > 0 {
			if float64(size) > stats.Mean+cfg.SpikeStddevK*stats.StdDev {
				zscore := (float64(size) - stats.Mean) / stats.StdDev
				out = append(out, Candidate{
					Type:    schema.AnomalyLargeFileTransfer,
					Message: fmt.Sprintf("user %s transferred %d bytes, %.1f stddevs above their mean", xfer.User, size, zscore),
					Metrics: map[string]any{
						"user":            xfer.User,
						"file_path":       xfer.FilePath,
						"file_size_bytes": size,
						"baseline_mean":   stats.Mean,
						"baseline_stddev": stats.StdDev,
						"baseline_count":  stats.Count,
						"zscore":          zscore,
						"reason":          "statistical",
					},
				})
			}
		}
	}

	if pattern, ok := matchSensitivePath(xfer.FilePath, cfg.SensitivePathPatterns); ok {
		out = append(out, Candidate{
			Type:    schema.AnomalySensitiveFileAccess,
			Message: fmt.Sprintf("user %s touched sensitive path %s", xfer.User, xfer.FilePath),
			Metrics: map[string]any{
				"user":      xfer.User,
				"file_path": xfer.FilePath,
				"pattern":   pattern,
			},
		})
	}

	hour := e.Timestamp.Hour()
	offhours := hour < cfg.BusinessHoursStart || hour >= cfg.BusinessHoursEnd
	if offhours && size > cfg.OffhoursTransferBytes {
		out = append(out, Candidate{
			Type:    schema.AnomalyOffhoursMovement,
			Message: fmt.Sprintf("user %s moved %d bytes at hour %d outside business hours", xfer.User, size, hour),
			Metrics: map[string]any{
				"user":            xfer.User,
				"file_path":       xfer.FilePath,
				"file_size_bytes": size,
				"hour":            hour,
				"threshold_bytes": cfg.OffhoursTransferBytes,
			},
		})
	}

	if xfer.Destination != "" && !containsString(cfg.InternalDestinations, xfer.Destination) {
		out = append(out, Candidate{
			Type:    schema.AnomalyExternalTransfer,
			Message: fmt.Sprintf("user %s sent %s to external destination %s", xfer.User, xfer.FilePath, xfer.Destination),
			Metrics: map[string]any{
				"user":            xfer.User,
				"file_path":       xfer.FilePath,
				"destination":     xfer.Destination,
				"file_size_bytes": size,
			},
		})
	}

	return out
}

func matchSensitivePath(path string, patterns []string) (string, bool) {
	lower := strings.ToLower(path)
	for _, p := range patterns {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return p, true
		}
	}
	return "", false
}
