// README: Location service records driver positions and answers position/availability lookups.
package location

import (
	"context"
	"errors"
	"time"

	"schoolride/internal/types"
)

var ErrBadRequest = errors.New("bad request")

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

type UpdateCommand struct {
	DriverID types.ID
	Position types.Point
}

// UpdatePosition stores the live position and appends a history snapshot.
func (s *Service) UpdatePosition(ctx context.Context, cmd UpdateCommand) error {
	if cmd.DriverID == "" || !validPoint(cmd.Position) {
		return ErrBadRequest
	}
	if err := s.store.SetGeo(ctx, cmd.DriverID, cmd.Position); err != nil {
		return err
	}
	return s.store.AppendSnapshot(ctx, Snapshot{
		DriverID:   cmd.DriverID,
		Position:   cmd.Position,
		RecordedAt: time.Now(),
	})
}

func (s *Service) SetAvailability(ctx context.Context, driverID types.ID, available bool) error {
	if driverID == "" {
		return ErrBadRequest
	}
	return s.store.SetAvailable(ctx, driverID, available)
}

func (s *Service) IsAvailable(ctx context.Context, driverID types.ID) (bool, error) {
	return s.store.IsAvailable(ctx, driverID)
}

func (s *Service) DriverPosition(ctx context.Context, driverID types.ID) (types.Point, bool, error) {
	return s.store.GetGeo(ctx, driverID)
}

// NearbyAvailableDrivers lists available drivers within radiusKm of p, closest first.
func (s *Service) NearbyAvailableDrivers(ctx context.Context, p types.Point, radiusKm float64) ([]NearbyDriver, error) {
	if !validPoint(p) || radiusKm <= 0 {
		return nil, ErrBadRequest
	}
	locs, err := s.store.SearchGeo(ctx, p, radiusKm)
	if err != nil {
		return nil, err
	}
	out := make([]NearbyDriver, 0, len(locs))
	for _, l := range locs {
		id := types.ID(l.Name)
		ok, err := s.store.IsAvailable(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		pos := types.Point{Lat: l.Latitude, Lng: l.Longitude}
		out = append(out, NearbyDriver{DriverID: id, Position: pos, DistanceKm: DistanceKm(p, pos)})
	}
	sortByDistance(out, func(d NearbyDriver) float64 { return d.DistanceKm })
	return out, nil
}

func validPoint(p types.Point) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
