package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKm(t *testing.T) {
	t.Run("zero distance for identical points", func(t *testing.T) {
		assert.Zero(t, HaversineKm(14.5547, 121.0244, 14.5547, 121.0244))
	})

	t.Run("symmetric in its arguments", func(t *testing.T) {
		d1 := HaversineKm(14.5547, 121.0244, 14.5510, 121.0232)
		d2 := HaversineKm(14.5510, 121.0232, 14.5547, 121.0244)
		assert.InDelta(t, d1, d2, 1e-12)
	})

	t.Run("short urban hop", func(t *testing.T) {
		// Makati CBD, roughly 430 meters apart
		d := HaversineKm(14.5547, 121.0244, 14.5510, 121.0232)
		assert.InDelta(t, 0.43, d, 0.02)
	})

	t.Run("known long distance", func(t *testing.T) {
		// Manila to Cebu, about 570 km great-circle
		d := HaversineKm(14.5995, 120.9842, 10.3157, 123.8854)
		assert.InDelta(t, 570, d, 10)
	})
}

func TestEstimateETAMinutes(t *testing.T) {
	t.Run("floors at one minute", func(t *testing.T) {
		assert.Equal(t, 1, EstimateETAMinutes(0, 40))
		assert.Equal(t, 1, EstimateETAMinutes(0.4, 40)) // 36s of travel
	})

	t.Run("rounds up to whole minutes", func(t *testing.T) {
		// 10 km at 40 km/h is exactly 15 minutes
		assert.Equal(t, 15, EstimateETAMinutes(10, 40))
		// a hair over 10 km rounds up
		assert.Equal(t, 16, EstimateETAMinutes(10.1, 40))
	})

	t.Run("nearby mechanic gets a one minute eta", func(t *testing.T) {
		d := HaversineKm(14.5547, 121.0244, 14.5510, 121.0232)
		assert.Equal(t, 1, EstimateETAMinutes(d, DefaultAvgSpeedKmh))
	})

	t.Run("non-positive speed falls back to default", func(t *testing.T) {
		assert.Equal(t, EstimateETAMinutes(10, DefaultAvgSpeedKmh), EstimateETAMinutes(10, 0))
		assert.Equal(t, EstimateETAMinutes(10, DefaultAvgSpeedKmh), EstimateETAMinutes(10, -5))
	})
}
