package geo

import (
	"errors"
	"math"
	"strings"
	"time"
)

// Point is a plain lat/lng pair in degrees.
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// MechanicLocation is the latest known position of one mechanic. There is at
// most one live record per mechanic id; the record is upserted on every
// sample and retained with IsOnline=false once tracking stops, so the last
// known position stays displayable.
type MechanicLocation struct {
	MechanicID     string
	Latitude       float64
	Longitude      float64
	AccuracyMeters *float64
	SpeedKmh       *float64
	HeadingDegrees *float64
	IsOnline       bool
	LastUpdated    time.Time
}

var (
	ErrMissingMechanicID  = errors.New("mechanic id is required")
	ErrInvalidLatitude    = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude   = errors.New("longitude must be between -180 and 180")
	ErrNegativeAccuracy   = errors.New("accuracy_meters cannot be negative")
	ErrNegativeSpeed      = errors.New("speed_kmh cannot be negative")
	ErrInvalidHeading     = errors.New("heading_degrees must be between 0 and 360")
	ErrZeroUpdateTime     = errors.New("last_updated must be a valid timestamp")
	ErrInvalidCoordinates = errors.New("coordinates cannot be zero")
)

// NewMechanicLocation builds an online location record stamped now (UTC).
func NewMechanicLocation(mechanicID string, lat, lng float64, accuracy, speed, heading *float64) (*MechanicLocation, error) {
	loc := &MechanicLocation{
		MechanicID:     strings.TrimSpace(mechanicID),
		Latitude:       lat,
		Longitude:      lng,
		AccuracyMeters: accuracy,
		SpeedKmh:       speed,
		HeadingDegrees: heading,
		IsOnline:       true,
		LastUpdated:    time.Now().UTC(),
	}
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	return loc, nil
}

// Validate checks invariants of the MechanicLocation record.
func (loc *MechanicLocation) Validate() error {
	if loc.MechanicID == "" {
		return ErrMissingMechanicID
	}
	if loc.Latitude == 0 && loc.Longitude == 0 {
		return ErrInvalidCoordinates
	}
	if loc.Latitude < -90 || loc.Latitude > 90 || math.IsNaN(loc.Latitude) {
		return ErrInvalidLatitude
	}
	if loc.Longitude < -180 || loc.Longitude > 180 || math.IsNaN(loc.Longitude) {
		return ErrInvalidLongitude
	}
	if loc.AccuracyMeters != nil && (*loc.AccuracyMeters < 0 || math.IsNaN(*loc.AccuracyMeters)) {
		return ErrNegativeAccuracy
	}
	if loc.SpeedKmh != nil && (*loc.SpeedKmh < 0 || math.IsNaN(*loc.SpeedKmh)) {
		return ErrNegativeSpeed
	}
	if loc.HeadingDegrees != nil {
		// allow exactly 0 and 360 (some devices report 360.0 instead of 0.0)
		if *loc.HeadingDegrees < 0 || *loc.HeadingDegrees > 360 || math.IsNaN(*loc.HeadingDegrees) {
			return ErrInvalidHeading
		}
	}
	if loc.LastUpdated.IsZero() {
		return ErrZeroUpdateTime
	}
	return nil
}

// Point returns the record's coordinates as a Point.
func (loc *MechanicLocation) Point() Point {
	return Point{Latitude: loc.Latitude, Longitude: loc.Longitude}
}

// MarkOffline flips the record offline, keeping the last known coordinates.
func (loc *MechanicLocation) MarkOffline() {
	loc.IsOnline = false
	loc.LastUpdated = time.Now().UTC()
}

// Clone returns a copy of the record. Subscribers get clones, never shared
// pointers into the store.
func (loc *MechanicLocation) Clone() MechanicLocation {
	out := *loc
	out.AccuracyMeters = clonePtr(loc.AccuracyMeters)
	out.SpeedKmh = clonePtr(loc.SpeedKmh)
	out.HeadingDegrees = clonePtr(loc.HeadingDegrees)
	return out
}

func clonePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
