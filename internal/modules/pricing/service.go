// README: Fare estimation (distance fare + base fare) with per-school rate overrides.
package pricing

import (
	"context"
	"errors"
	"math"

	"schoolride/internal/modules/location"
	"schoolride/internal/types"
)

// Estimator derives per-ride fare components. The base fare is additive and
// never scaled by distance.
type Estimator struct {
	PerKmRate float64
}

func NewEstimator(perKmRate float64) Estimator {
	if perKmRate <= 0 {
		perKmRate = DefaultPerKmRate
	}
	return Estimator{PerKmRate: perKmRate}
}

func (e Estimator) DistanceFare(distanceKm float64) float64 {
	return distanceKm * e.PerKmRate
}

func (e Estimator) TotalFare(baseFare, distanceFare float64) float64 {
	return baseFare + distanceFare
}

// RateStore is satisfied by *Store.
type RateStore interface {
	GetRate(ctx context.Context, schoolID types.ID) (Rate, error)
}

type Service struct {
	store    RateStore
	fallback Estimator
}

func NewService(store RateStore, defaultPerKmRate float64) *Service {
	return &Service{store: store, fallback: NewEstimator(defaultPerKmRate)}
}

// Estimator returns the estimator for a school, falling back to the default rate.
func (s *Service) Estimator(ctx context.Context, schoolID types.ID) (Estimator, error) {
	if s.store == nil || schoolID == "" {
		return s.fallback, nil
	}
	r, err := s.store.GetRate(ctx, schoolID)
	if errors.Is(err, ErrRateNotFound) {
		return s.fallback, nil
	}
	if err != nil {
		return Estimator{}, err
	}
	return NewEstimator(r.PerKmRate), nil
}

func (s *Service) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	est, err := s.Estimator(ctx, req.SchoolID)
	if err != nil {
		return Quote{}, err
	}
	dist := location.DistanceKm(req.Pickup, req.Dropoff)
	df := roundCents(est.DistanceFare(dist))
	return Quote{
		DistanceKm:   dist,
		BaseFare:     req.BaseFare,
		DistanceFare: df,
		TotalFare:    roundCents(est.TotalFare(req.BaseFare, df)),
		PerKmRate:    est.PerKmRate,
	}, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
