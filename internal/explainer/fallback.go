package explainer

import (
	"fmt"

	"livesec/internal/schema"
)

// fallbackExplanations are used when the language model API is disabled or
// unreachable. Keyed by anomaly type.
var fallbackExplanations = map[schema.AnomalyType]string{
	schema.AnomalyUnusualLoginTime:      "This login occurred outside normal business hours, which could indicate unauthorized access or compromise.",
	schema.AnomalySuspiciousGeoLocation: "Login detected from a high-risk geographic location known for cyber attacks.",
	schema.AnomalyBruteForcePattern:     "Repeated failed login attempts detected, which could be part of a brute force attack.",
	schema.AnomalyGeoInconsistency:      "User logged in from an unusual geographic location far from their typical login patterns.",
	schema.AnomalyTrafficSpikeSent:      "Unusual outbound network traffic spike detected, potentially indicating data exfiltration.",
	schema.AnomalyTrafficSpikeReceived:  "Unusual inbound network traffic spike detected, potentially indicating DDoS or data injection.",
	schema.AnomalySuspiciousPort:        "Network connection to a suspicious port commonly used by malware or attackers.",
	schema.AnomalyHighConnectionCount:   "Unusually high number of network connections, potentially indicating scanning or botnet activity.",
	schema.AnomalyLargeFileTransfer:     "Large file transfer detected, which could indicate data exfiltration or unauthorized copying.",
	schema.AnomalySensitiveFileAccess:   "Access to sensitive file detected, requiring monitoring for potential data breach.",
	schema.AnomalyOffhoursMovement:      "File transfer outside normal business hours, potentially indicating unauthorized activity.",
	schema.AnomalyExternalTransfer:      "Large file sent to external destination, high risk of data exfiltration or breach.",
}

const genericFallback = "Security anomaly detected that requires investigation."

// FallbackExplanation builds an explanation from the canned text for the
// record's type, enriched with the record's metrics and a severity-based
// recommendation.
func FallbackExplanation(rec *schema.AnomalyRecord) string {
	text, ok := fallbackExplanations[rec.Type]
	if !ok {
		text = genericFallback
	}
	out := text + " "

	switch rec.Type {
	case schema.AnomalySuspiciousGeoLocation:
		if country, ok := rec.Metrics["country"].(string); ok {
			out += fmt.Sprintf("Login originated from %s. ", country)
		}
	case schema.AnomalyGeoInconsistency:
		if dist, ok := rec.Metrics["distance_km"].(float64); ok {
			out += fmt.Sprintf("Location is %.0fkm from the previous login. ", dist)
		}
	case schema.AnomalyTrafficSpikeSent, schema.AnomalyTrafficSpikeReceived:
		if z, ok := rec.Metrics["zscore"].(float64); ok {
			out += fmt.Sprintf("Traffic volume is %.1f standard deviations above normal levels. ", z)
		}
	case schema.AnomalyLargeFileTransfer:
		if size, ok := rec.Metrics["file_size_bytes"].(int64); ok {
			out += fmt.Sprintf("File size: %.1fMB. ", float64(size)/1024/1024)
		}
	}

	switch rec.Severity {
	case schema.SeverityHigh:
		out += "IMMEDIATE INVESTIGATION REQUIRED."
	case schema.SeverityMedium:
		out += "Monitor closely and investigate if pattern continues."
	default:
		out += "Document for trend analysis."
	}
	return out
}
