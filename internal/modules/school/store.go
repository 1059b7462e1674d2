// README: School store backed by PostgreSQL.
package school

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"schoolride/internal/types"
)

var ErrNotFound = errors.New("school not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, sc *School) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO schools (id, name, address, lat, lng, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(sc.ID), sc.Name, sc.Address, sc.Location.Lat, sc.Location.Lng, sc.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*School, error) {
	var sc School
	err := s.db.QueryRow(ctx, `
		SELECT id, name, address, lat, lng, created_at
		FROM schools
		WHERE id = $1`, string(id),
	).Scan(&sc.ID, &sc.Name, &sc.Address, &sc.Location.Lat, &sc.Location.Lng, &sc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *Store) Exists(ctx context.Context, id types.ID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schools WHERE id = $1)`, string(id)).Scan(&exists)
	return exists, err
}
