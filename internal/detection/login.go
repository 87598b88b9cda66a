package detection

import (
	"fmt"

	"livesec/internal/config"
	"livesec/internal/schema"
)

// evaluateLogin runs the login rules against a frozen baseline snapshot.
// Rule order is fixed so repeated evaluation of the same inputs yields
// identical candidates in identical order.
func evaluateLogin(e *schema.Entry, snap *Snapshot, cfg *config.DetectionConfig) []Candidate {
	login := e.Login
	if login == nil {
		return nil
	}

	var out []Candidate

	// New country that is also on the high-risk list.
	if login.GeoCountry != "" && !snap.CountrySeen && containsString(cfg.HighRiskCountries, login.GeoCountry) {
		out = append(out, Candidate{
			Type:    schema.AnomalySuspiciousGeoLocation,
			Message: fmt.Sprintf("login from high-risk country %s never seen for user %s", login.GeoCountry, login.Username),
			Metrics: map[string]any{
				"username":       login.Username,
				"country":        login.GeoCountry,
				"seen_countries": snap.SeenCountries,
			},
		})
	}

	// Off-hours login.
	hour := e.Timestamp.Hour()
	if hour < cfg.BusinessHoursStart || hour >= cfg.BusinessHoursEnd {
		out = append(out, Candidate{
			Type:    schema.AnomalyUnusualLoginTime,
			Message: fmt.Sprintf("login for user %s at hour %d outside business hours", login.Username, hour),
			Metrics: map[string]any{
				"username":             login.Username,
				"hour":                 hour,
				"business_hours_start": cfg.BusinessHoursStart,
				"business_hours_end":   cfg.BusinessHoursEnd,
			},
		})
	}

	// Brute force: failed attempts from this source IP inside the trailing
	// window. The snapshot count covers prior entries only, so the current
	// failure is added here before comparing against the threshold.
	if !login.Success {
		failures := snap.IPFailures + 1
		if failures > cfg.BruteForceThreshold {
			out = append(out, Candidate{
				Type:    schema.AnomalyBruteForcePattern,
				Message: fmt.Sprintf("%d failed logins from %s within %s", failures, login.SourceIP, cfg.BruteForceWindow),
				Metrics: map[string]any{
					"username":       login.Username,
					"source_ip":      login.SourceIP,
					"failure_count":  failures,
					"window_seconds": int(cfg.BruteForceWindow.Seconds()),
					"threshold":      cfg.BruteForceThreshold,
				},
			})
		}
	}

	// Impossible travel relative to the user's previous login location.
	if snap.HasLastLocation && snap.LastCountry != login.GeoCountry {
		if dist, ok := countryDistanceKm(snap.LastCountry, login.GeoCountry); ok && dist >= cfg.TravelMinDistanceKm {
			elapsed := e.Timestamp.Sub(snap.LastSeenAt)
			// Zero or negative elapsed time means the jump is impossible
			// outright; otherwise compare the implied speed.
			implausible := elapsed <= 0
			speed := 0.0
			if elapsed > 0 {
				speed = dist / elapsed.Hours()
				implausible = speed > cfg.TravelMaxSpeedKmh
			}
			if implausible {
				out = append(out, Candidate{
					Type:    schema.AnomalyGeoInconsistency,
					Message: fmt.Sprintf("user %s moved %s to %s (%.0f km) implausibly fast", login.Username, snap.LastCountry, login.GeoCountry, dist),
					Metrics: map[string]any{
						"username":         login.Username,
						"previous_country": snap.LastCountry,
						"country":          login.GeoCountry,
						"distance_km":      dist,
						"elapsed_minutes":  elapsed.Minutes(),
						"speed_kmh":        speed,
					},
				})
			}
		}
	}

	return out
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
