package detection

import "math"

const earthRadiusKm = 6371

type coordinate struct {
	lat float64
	lon float64
}

// countryCentroids maps country names to approximate geographic centers.
// Distance checks degrade gracefully for countries not listed here.
var countryCentroids = map[string]coordinate{
	"USA":         {39.8283, -98.5795},
	"Canada":      {56.1304, -106.3468},
	"UK":          {55.3781, -3.4360},
	"Germany":     {51.1657, 10.4515},
	"France":      {46.6034, 1.8883},
	"Japan":       {36.2048, 138.2529},
	"Australia":   {-25.2744, 133.7751},
	"Brazil":      {-14.2350, -51.9253},
	"Russia":      {61.5240, 105.3188},
	"China":       {35.8617, 104.1954},
	"North Korea": {40.3399, 127.5101},
	"Iran":        {32.4279, 53.6880},
}

// countryDistanceKm returns the great-circle distance between the centroids
// of two countries. The second return is false when either country is unknown.
func countryDistanceKm(a, b string) (float64, bool) {
	ca, okA := countryCentroids[a]
	cb, okB := countryCentroids[b]
	if !okA || !okB {
		return 0, false
	}
	return haversineKm(ca, cb), true
}

func haversineKm(a, b coordinate) float64 {
	lat1 := a.lat * math.Pi / 180
	lat2 := b.lat * math.Pi / 180
	dlat := (b.lat - a.lat) * math.Pi / 180
	dlon := (b.lon - a.lon) * math.Pi / 180

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
