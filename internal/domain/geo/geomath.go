package geo

import "math"

// DefaultAvgSpeedKmh is the assumed average travel speed used for ETA
// estimates when no better figure is configured.
const DefaultAvgSpeedKmh = 40.0

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometers between two
// lat/lng points given in degrees. Symmetric in its arguments.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	a1 := lat1 * math.Pi / 180
	a2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a1)*math.Cos(a2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// EstimateETAMinutes converts a straight-line distance into whole minutes of
// travel at avgSpeedKmh, rounded up and floored at 1 minute. This is a
// straight-line estimate with a fixed average speed, not a routed ETA.
func EstimateETAMinutes(distanceKm, avgSpeedKmh float64) int {
	if avgSpeedKmh <= 0 {
		avgSpeedKmh = DefaultAvgSpeedKmh
	}
	minutes := int(math.Ceil(distanceKm / avgSpeedKmh * 60))
	if minutes < 1 {
		return 1
	}
	return minutes
}
