// README: Ride store backed by PostgreSQL.
package ride

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"schoolride/internal/types"
)

var (
	ErrNotFound  = errors.New("ride not found")
	ErrDuplicate = errors.New("ride already scheduled for kid at this time")
)

const uniqueViolation = "23505"

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const rideColumns = `
	id, kid_id, parent_id, subscription_id, ride_type, status,
	scheduled_pickup_time, scheduled_dropoff_time,
	pickup_address, pickup_lat, pickup_lng,
	dropoff_address, dropoff_lat, dropoff_lng,
	base_fare, distance_fare, total_fare, parent_notes, created_at`

func (s *Store) Create(ctx context.Context, spec CreateSpec) (*Ride, error) {
	r := &Ride{
		ID:                   types.NewID(),
		KidID:                spec.KidID,
		ParentID:             spec.ParentID,
		SubscriptionID:       spec.SubscriptionID,
		Type:                 spec.Type,
		Status:               StatusScheduled,
		ScheduledPickupTime:  spec.ScheduledPickupTime,
		ScheduledDropoffTime: spec.ScheduledDropoffTime,
		PickupAddress:        spec.PickupAddress,
		Pickup:               spec.Pickup,
		DropoffAddress:       spec.DropoffAddress,
		Dropoff:              spec.Dropoff,
		BaseFare:             spec.BaseFare,
		DistanceFare:         spec.DistanceFare,
		TotalFare:            spec.TotalFare,
		ParentNotes:          spec.ParentNotes,
		CreatedAt:            time.Now(),
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO rides (`+rideColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		string(r.ID), string(r.KidID), string(r.ParentID), idPtr(r.SubscriptionID),
		string(r.Type), string(r.Status),
		r.ScheduledPickupTime, r.ScheduledDropoffTime,
		r.PickupAddress, r.Pickup.Lat, r.Pickup.Lng,
		r.DropoffAddress, r.Dropoff.Lat, r.Dropoff.Lng,
		r.BaseFare, r.DistanceFare, r.TotalFare, r.ParentNotes, r.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ExistsForKidDateTime reports whether a ride is already scheduled for the kid
// at exactly pickupAt (calendar day plus pickup time).
func (s *Store) ExistsForKidDateTime(ctx context.Context, kidID types.ID, pickupAt time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM rides
			WHERE kid_id = $1 AND scheduled_pickup_time = $2
		)`, string(kidID), pickupAt,
	).Scan(&exists)
	return exists, err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id))
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *Store) ListBySubscription(ctx context.Context, subscriptionID types.ID) ([]*Ride, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE subscription_id = $1
		ORDER BY scheduled_pickup_time ASC`, string(subscriptionID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var subID sql.NullString
	var dropoffAt sql.NullTime
	var notes sql.NullString
	err := row.Scan(
		&r.ID, &r.KidID, &r.ParentID, &subID, &r.Type, &r.Status,
		&r.ScheduledPickupTime, &dropoffAt,
		&r.PickupAddress, &r.Pickup.Lat, &r.Pickup.Lng,
		&r.DropoffAddress, &r.Dropoff.Lat, &r.Dropoff.Lng,
		&r.BaseFare, &r.DistanceFare, &r.TotalFare, &notes, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if subID.Valid {
		id := types.ID(subID.String)
		r.SubscriptionID = &id
	}
	if dropoffAt.Valid {
		t := dropoffAt.Time
		r.ScheduledDropoffTime = &t
	}
	r.ParentNotes = notes.String
	return &r, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
