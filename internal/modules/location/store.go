// README: Location store backed by Redis GEO (live positions, availability) and Postgres snapshots.
package location

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"schoolride/internal/types"
)

const (
	driverGeoKey       = "location:drivers"
	driverAvailableKey = "location:drivers:available"
)

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewStore(db *pgxpool.Pool, redis *redis.Client) *Store {
	return &Store{db: db, redis: redis}
}

func (s *Store) SetGeo(ctx context.Context, id types.ID, pos types.Point) error {
	return s.redis.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	}).Err()
}

// GetGeo returns the last known position of a driver; ok is false when none is recorded.
func (s *Store) GetGeo(ctx context.Context, id types.ID) (types.Point, bool, error) {
	res, err := s.redis.GeoPos(ctx, driverGeoKey, string(id)).Result()
	if err != nil {
		return types.Point{}, false, err
	}
	if len(res) == 0 || res[0] == nil {
		return types.Point{}, false, nil
	}
	return types.Point{Lat: res[0].Latitude, Lng: res[0].Longitude}, true, nil
}

// SearchGeo returns driver ids within radiusKm of p with their stored positions.
func (s *Store) SearchGeo(ctx context.Context, p types.Point, radiusKm float64) ([]redis.GeoLocation, error) {
	return s.redis.GeoSearchLocation(ctx, driverGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lng,
			Latitude:   p.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
	}).Result()
}

func (s *Store) SetAvailable(ctx context.Context, id types.ID, available bool) error {
	if available {
		return s.redis.SAdd(ctx, driverAvailableKey, string(id)).Err()
	}
	return s.redis.SRem(ctx, driverAvailableKey, string(id)).Err()
}

func (s *Store) IsAvailable(ctx context.Context, id types.ID) (bool, error) {
	return s.redis.SIsMember(ctx, driverAvailableKey, string(id)).Result()
}

func (s *Store) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO driver_location_snapshots (driver_id, lat, lng, recorded_at)
		VALUES ($1, $2, $3, $4)`,
		string(snap.DriverID), snap.Position.Lat, snap.Position.Lng, snap.RecordedAt,
	)
	return err
}
