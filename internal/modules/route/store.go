// README: Route store backed by PostgreSQL (waypoints kept as JSONB).
package route

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

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

const routeColumns = `
	id, school_id, proposed_driver_id, driver_id, status, name, description,
	waypoints, estimated_distance_km, estimated_duration_minutes, is_active,
	created_at, updated_at`

func (s *Store) Create(ctx context.Context, r *Route) error {
	wp, err := json.Marshal(r.Waypoints)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO routes (`+routeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		string(r.ID), string(r.SchoolID), string(r.ProposedDriverID), toStringPtr(r.DriverID),
		string(r.Status), r.Name, r.Description,
		wp, r.EstimatedDistanceKm, r.EstimatedDurationMinutes, r.IsActive,
		r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Route, error) {
	row := s.db.QueryRow(ctx, `SELECT `+routeColumns+` FROM routes WHERE id = $1`, string(id))
	r, err := scanRoute(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *Store) List(ctx context.Context, f ListFilter) ([]*Route, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+routeColumns+` FROM routes
		WHERE ($1 = '' OR school_id = $1)
		  AND ($2 = '' OR driver_id = $2 OR proposed_driver_id = $2)
		  AND (NOT $3 OR is_active)
		ORDER BY created_at DESC`,
		string(f.SchoolID), string(f.DriverID), f.ActiveOnly,
	)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListProposed returns active PENDING proposals addressed to driverID.
func (s *Store) ListProposed(ctx context.Context, driverID types.ID) ([]*Route, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+routeColumns+` FROM routes
		WHERE proposed_driver_id = $1 AND status = 'PENDING' AND is_active
		ORDER BY created_at DESC`, string(driverID),
	)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Update rewrites a PENDING route. It returns ErrInvalidState when the route
// is no longer pending and ErrNotFound when it does not exist.
func (s *Store) Update(ctx context.Context, r *Route) error {
	wp, err := json.Marshal(r.Waypoints)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE routes
		SET school_id = $2, name = $3, description = $4, waypoints = $5,
			estimated_distance_km = $6, estimated_duration_minutes = $7,
			is_active = $8, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`,
		string(r.ID), string(r.SchoolID), r.Name, r.Description, wp,
		r.EstimatedDistanceKm, r.EstimatedDurationMinutes, r.IsActive,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM routes WHERE id = $1)`, string(r.ID)).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInvalidState
}

// UpdateStatus moves an active route from one status to another, recording
// driverID when given. It reports false when the route is no longer at from.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, driverID *types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE routes
		SET status = $1,
			driver_id = COALESCE($2, driver_id),
			updated_at = NOW()
		WHERE id = $3 AND status = $4 AND is_active`,
		string(to),
		toStringPtr(driverID),
		string(id),
		string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SoftDelete(ctx context.Context, id types.ID) error {
	tag, err := s.db.Exec(ctx, `UPDATE routes SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collect(rows pgx.Rows) ([]*Route, error) {
	defer rows.Close()
	var out []*Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRoute(row pgx.Row) (*Route, error) {
	var r Route
	var driverID sql.NullString
	var wp []byte
	var dist sql.NullFloat64
	var dur sql.NullInt32
	err := row.Scan(
		&r.ID, &r.SchoolID, &r.ProposedDriverID, &driverID, &r.Status, &r.Name, &r.Description,
		&wp, &dist, &dur, &r.IsActive,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(wp, &r.Waypoints); err != nil {
		return nil, err
	}
	if driverID.Valid {
		d := types.ID(driverID.String)
		r.DriverID = &d
	}
	if dist.Valid {
		v := dist.Float64
		r.EstimatedDistanceKm = &v
	}
	if dur.Valid {
		v := int(dur.Int32)
		r.EstimatedDurationMinutes = &v
	}
	return &r, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
