package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mech-dispatch/internal/domain/geo"
	"mech-dispatch/internal/ports"

	"github.com/redis/go-redis/v9"
)

const (
	locationKeyPrefix = "mechanic:location:"
	onlineSetKey      = "mechanics:online"
)

// MechanicLocationRepo is the hot store for live mechanic positions, backed
// by Redis. One JSON value per mechanic plus a set of online mechanic ids.
// Records survive going offline so the last known position stays readable.
type MechanicLocationRepo struct {
	client *redis.Client
}

// NewMechanicLocationRepo constructs a repo bound to the given client.
func NewMechanicLocationRepo(client *redis.Client) ports.MechanicLocationRepository {
	return &MechanicLocationRepo{client: client}
}

// locationRecord is the stored JSON shape.
type locationRecord struct {
	MechanicID     string    `json:"mechanic_id"`
	Latitude       float64   `json:"lat"`
	Longitude      float64   `json:"lng"`
	AccuracyMeters *float64  `json:"accuracy_meters,omitempty"`
	SpeedKmh       *float64  `json:"speed_kmh,omitempty"`
	HeadingDegrees *float64  `json:"heading_degrees,omitempty"`
	IsOnline       bool      `json:"is_online"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Upsert stores the latest position for a mechanic and keeps the online set
// in sync. Last write wins; there is at most one record per mechanic id.
func (repo *MechanicLocationRepo) Upsert(ctx context.Context, loc *geo.MechanicLocation) error {
	if err := loc.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(toRecord(loc))
	if err != nil {
		return fmt.Errorf("marshal location: %w", err)
	}

	pipe := repo.client.TxPipeline()
	pipe.Set(ctx, locationKeyPrefix+loc.MechanicID, body, 0)
	if loc.IsOnline {
		pipe.SAdd(ctx, onlineSetKey, loc.MechanicID)
	} else {
		pipe.SRem(ctx, onlineSetKey, loc.MechanicID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert location: %w", err)
	}
	return nil
}

// Get returns the latest known position for a mechanic, online or not.
func (repo *MechanicLocationRepo) Get(ctx context.Context, mechanicID string) (*geo.MechanicLocation, error) {
	body, err := repo.client.Get(ctx, locationKeyPrefix+mechanicID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("get location: %w", err)
	}

	var rec locationRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal location: %w", err)
	}
	return fromRecord(&rec), nil
}

// MarkOffline flips the stored record offline at the given time, keeping the
// last known coordinates, and returns the updated record.
func (repo *MechanicLocationRepo) MarkOffline(ctx context.Context, mechanicID string, at time.Time) (*geo.MechanicLocation, error) {
	loc, err := repo.Get(ctx, mechanicID)
	if err != nil {
		return nil, err
	}

	loc.IsOnline = false
	if !at.IsZero() {
		loc.LastUpdated = at.UTC()
	} else {
		loc.LastUpdated = time.Now().UTC()
	}

	if err := repo.Upsert(ctx, loc); err != nil {
		return nil, err
	}
	return loc, nil
}

// ListOnline returns the live records of every mechanic in the online set.
// Stale set members whose record disappeared are skipped and pruned.
func (repo *MechanicLocationRepo) ListOnline(ctx context.Context) ([]*geo.MechanicLocation, error) {
	ids, err := repo.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list online mechanics: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = locationKeyPrefix + id
	}

	values, err := repo.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget locations: %w", err)
	}

	out := make([]*geo.MechanicLocation, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// record vanished but the set member lingered
			repo.client.SRem(ctx, onlineSetKey, ids[i])
			continue
		}
		var rec locationRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal location %s: %w", ids[i], err)
		}
		if !rec.IsOnline {
			continue
		}
		out = append(out, fromRecord(&rec))
	}
	return out, nil
}

func toRecord(loc *geo.MechanicLocation) *locationRecord {
	return &locationRecord{
		MechanicID:     loc.MechanicID,
		Latitude:       loc.Latitude,
		Longitude:      loc.Longitude,
		AccuracyMeters: loc.AccuracyMeters,
		SpeedKmh:       loc.SpeedKmh,
		HeadingDegrees: loc.HeadingDegrees,
		IsOnline:       loc.IsOnline,
		LastUpdated:    loc.LastUpdated,
	}
}

func fromRecord(rec *locationRecord) *geo.MechanicLocation {
	return &geo.MechanicLocation{
		MechanicID:     rec.MechanicID,
		Latitude:       rec.Latitude,
		Longitude:      rec.Longitude,
		AccuracyMeters: rec.AccuracyMeters,
		SpeedKmh:       rec.SpeedKmh,
		HeadingDegrees: rec.HeadingDegrees,
		IsOnline:       rec.IsOnline,
		LastUpdated:    rec.LastUpdated,
	}
}
