// README: Fare rate store backed by PostgreSQL.
package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"schoolride/internal/types"
)

var ErrRateNotFound = errors.New("fare rate not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetRate(ctx context.Context, schoolID types.ID) (Rate, error) {
	r := Rate{SchoolID: schoolID}
	err := s.db.QueryRow(ctx, `
		SELECT per_km_rate FROM fare_rates WHERE school_id = $1`, string(schoolID),
	).Scan(&r.PerKmRate)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, ErrRateNotFound
	}
	if err != nil {
		return Rate{}, err
	}
	return r, nil
}
