// README: Subscription store backed by PostgreSQL.
package subscription

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"schoolride/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const subscriptionColumns = `
	id, parent_id, kid_id, school_id, subscription_type, status, status_version,
	start_date, end_date, days_of_week,
	to_char(pickup_time, 'HH24:MI'), to_char(dropoff_time, 'HH24:MI'),
	pickup_address, pickup_lat, pickup_lng,
	dropoff_address, dropoff_lat, dropoff_lng,
	base_fare, distance_fare, total_fare_per_ride, subscription_total,
	parent_notes, auto_generate_rides, last_ride_generated_date,
	created_at, updated_at, paused_at, cancelled_at`

func (s *Store) Create(ctx context.Context, sub *Subscription) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO subscriptions (
			id, parent_id, kid_id, school_id, subscription_type, status, status_version,
			start_date, end_date, days_of_week, pickup_time, dropoff_time,
			pickup_address, pickup_lat, pickup_lng,
			dropoff_address, dropoff_lat, dropoff_lng,
			base_fare, distance_fare, total_fare_per_ride, subscription_total,
			parent_notes, auto_generate_rides, last_ride_generated_date,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11::text::time, $12::text::time,
			$13, $14, $15,
			$16, $17, $18,
			$19, $20, $21, $22,
			$23, $24, $25,
			$26, $27
		)`,
		string(sub.ID), string(sub.ParentID), string(sub.KidID), string(sub.SchoolID),
		string(sub.Type), string(sub.Status), sub.StatusVersion,
		sub.StartDate, sub.EndDate, toInt32s(sub.DaysOfWeek),
		sub.PickupTime.String(), timeOfDayPtr(sub.DropoffTime),
		sub.PickupAddress, sub.Pickup.Lat, sub.Pickup.Lng,
		sub.DropoffAddress, sub.Dropoff.Lat, sub.Dropoff.Lng,
		sub.BaseFare, sub.DistanceFare, sub.TotalFarePerRide, sub.SubscriptionTotal,
		nullString(sub.ParentNotes), sub.AutoGenerateRides, sub.LastRideGeneratedDate,
		sub.CreatedAt, sub.UpdatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Subscription, error) {
	row := s.db.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, string(id))
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sub, err
}

func (s *Store) ListByParent(ctx context.Context, parentID types.ID, activeOnly bool) ([]*Subscription, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE parent_id = $1 AND (NOT $2 OR status = 'ACTIVE')
		ORDER BY created_at DESC`, string(parentID), activeOnly,
	)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListEligible returns subscriptions the scheduler should generate for on day.
// An ended subscription stays eligible until its checkpoint reaches the end
// date, so days missed before it ended are still generated.
func (s *Store) ListEligible(ctx context.Context, day time.Time) ([]*Subscription, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = 'ACTIVE'
		  AND auto_generate_rides
		  AND start_date <= $1
		  AND (end_date IS NULL
		       OR end_date >= $1
		       OR last_ride_generated_date IS NULL
		       OR last_ride_generated_date < end_date)
		ORDER BY id`, day,
	)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Update writes the mutable fields and sub.Status in one statement, only
// while the row is still at (from, version). A changed status bumps the
// version. It reports false when another writer got there first.
func (s *Store) Update(ctx context.Context, sub *Subscription, from Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE subscriptions
		SET end_date = $2,
			days_of_week = $3,
			pickup_time = $4::text::time,
			dropoff_time = $5::text::time,
			pickup_address = $6, pickup_lat = $7, pickup_lng = $8,
			dropoff_address = $9, dropoff_lat = $10, dropoff_lng = $11,
			base_fare = $12, distance_fare = $13, total_fare_per_ride = $14,
			subscription_total = $15, parent_notes = $16, auto_generate_rides = $17,
			status = $18::text,
			status_version = CASE WHEN status <> $18::text THEN status_version + 1 ELSE status_version END,
			paused_at = CASE WHEN $18::text = 'PAUSED' AND status <> 'PAUSED' THEN NOW() ELSE paused_at END,
			cancelled_at = CASE WHEN $18::text = 'CANCELLED' THEN NOW() ELSE cancelled_at END,
			updated_at = NOW()
		WHERE id = $1 AND status = $19::text AND status_version = $20`,
		string(sub.ID), sub.EndDate, toInt32s(sub.DaysOfWeek),
		sub.PickupTime.String(), timeOfDayPtr(sub.DropoffTime),
		sub.PickupAddress, sub.Pickup.Lat, sub.Pickup.Lng,
		sub.DropoffAddress, sub.Dropoff.Lat, sub.Dropoff.Lng,
		sub.BaseFare, sub.DistanceFare, sub.TotalFarePerRide,
		sub.SubscriptionTotal, nullString(sub.ParentNotes), sub.AutoGenerateRides,
		string(sub.Status), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStatus moves a subscription between statuses when it is still at
// (from, version). It reports false when another writer got there first.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE subscriptions
		SET status = $1,
			status_version = status_version + 1,
			paused_at = CASE WHEN $1 = 'PAUSED' THEN NOW() ELSE paused_at END,
			cancelled_at = CASE WHEN $1 = 'CANCELLED' THEN NOW() ELSE cancelled_at END,
			updated_at = NOW()
		WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(to),
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AdvanceCheckpoint sets last_ride_generated_date to next only if it still
// equals expected (NULL included) and next does not move it backwards.
func (s *Store) AdvanceCheckpoint(ctx context.Context, id types.ID, expected *time.Time, next time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE subscriptions
		SET last_ride_generated_date = $3, updated_at = NOW()
		WHERE id = $1
		  AND last_ride_generated_date IS NOT DISTINCT FROM $2::date
		  AND $3::date >= COALESCE(last_ride_generated_date, $3::date)`,
		string(id), expected, next,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ExpireEnded marks live subscriptions whose end date is before today as EXPIRED.
func (s *Store) ExpireEnded(ctx context.Context, today time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE subscriptions
		SET status = 'EXPIRED', status_version = status_version + 1, updated_at = NOW()
		WHERE status IN ('ACTIVE', 'PAUSED')
		  AND end_date IS NOT NULL
		  AND end_date < $1`, today,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func collect(rows pgx.Rows) ([]*Subscription, error) {
	defer rows.Close()
	var out []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	var endDate, checkpoint, pausedAt, cancelledAt sql.NullTime
	var days []int32
	var pickup string
	var dropoff, notes sql.NullString
	var distanceFare, total sql.NullFloat64

	err := row.Scan(
		&sub.ID, &sub.ParentID, &sub.KidID, &sub.SchoolID, &sub.Type, &sub.Status, &sub.StatusVersion,
		&sub.StartDate, &endDate, &days,
		&pickup, &dropoff,
		&sub.PickupAddress, &sub.Pickup.Lat, &sub.Pickup.Lng,
		&sub.DropoffAddress, &sub.Dropoff.Lat, &sub.Dropoff.Lng,
		&sub.BaseFare, &distanceFare, &sub.TotalFarePerRide, &total,
		&notes, &sub.AutoGenerateRides, &checkpoint,
		&sub.CreatedAt, &sub.UpdatedAt, &pausedAt, &cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	if sub.PickupTime, err = types.ParseTimeOfDay(pickup); err != nil {
		return nil, err
	}
	if dropoff.Valid {
		t, err := types.ParseTimeOfDay(dropoff.String)
		if err != nil {
			return nil, err
		}
		sub.DropoffTime = &t
	}
	sub.DaysOfWeek = make([]int, len(days))
	for i, d := range days {
		sub.DaysOfWeek[i] = int(d)
	}
	sub.StartDate = types.DateOf(sub.StartDate)
	sub.EndDate = toDatePtr(endDate)
	sub.LastRideGeneratedDate = toDatePtr(checkpoint)
	sub.PausedAt = toTimePtr(pausedAt)
	sub.CancelledAt = toTimePtr(cancelledAt)
	if distanceFare.Valid {
		v := distanceFare.Float64
		sub.DistanceFare = &v
	}
	if total.Valid {
		v := total.Float64
		sub.SubscriptionTotal = &v
	}
	sub.ParentNotes = notes.String
	return &sub, nil
}

func toInt32s(days []int) []int32 {
	out := make([]int32, len(days))
	for i, d := range days {
		out[i] = int32(d)
	}
	return out
}

func timeOfDayPtr(t *types.TimeOfDay) *string {
	if t == nil {
		return nil
	}
	v := t.String()
	return &v
}

func nullString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func toDatePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := types.DateOf(v.Time)
	return &t
}
