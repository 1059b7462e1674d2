// README: Ride read service (rides are created by subscription generation).
package ride

import (
	"context"

	"schoolride/internal/types"
)

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListBySubscription(ctx context.Context, subscriptionID types.ID) ([]*Ride, error) {
	return s.store.ListBySubscription(ctx, subscriptionID)
}
