// README: Ride generation: walks the calendar from the checkpoint and materialises one ride per matching day.
package subscription

import (
	"context"
	"errors"
	"time"

	"schoolride/internal/modules/location"
	"schoolride/internal/modules/pricing"
	"schoolride/internal/modules/ride"
	"schoolride/internal/types"
)

// RideStore is satisfied by *ride.Store.
type RideStore interface {
	Create(ctx context.Context, spec ride.CreateSpec) (*ride.Ride, error)
	ExistsForKidDateTime(ctx context.Context, kidID types.ID, pickupAt time.Time) (bool, error)
}

// CheckpointStore is satisfied by *Store.
type CheckpointStore interface {
	AdvanceCheckpoint(ctx context.Context, id types.ID, expected *time.Time, next time.Time) (bool, error)
}

// RateSource is satisfied by *pricing.Service.
type RateSource interface {
	Estimator(ctx context.Context, schoolID types.ID) (pricing.Estimator, error)
}

type Generator struct {
	rides       RideStore
	checkpoints CheckpointStore
	rates       RateSource
	loc         *time.Location
}

// NewGenerator builds a generator. Pickup and dropoff times are interpreted in
// loc (UTC when nil); rates may be nil to always use the default per-km rate.
func NewGenerator(rides RideStore, checkpoints CheckpointStore, rates RateSource, loc *time.Location) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{rides: rides, checkpoints: checkpoints, rates: rates, loc: loc}
}

// Generate creates the rides of sub for every matching day after its
// checkpoint up to upTo (inclusive, clamped to the end date) and returns how
// many were created. On success with a non-zero count sub's checkpoint is
// advanced to the clamped upTo, both in the store and on sub itself.
func (g *Generator) Generate(ctx context.Context, sub *Subscription, upTo time.Time) (int, error) {
	if !CanGenerate(sub) {
		return 0, ErrInvalidState
	}

	walkStart := types.DateOf(sub.StartDate)
	if sub.LastRideGeneratedDate != nil {
		walkStart = types.DateOf(*sub.LastRideGeneratedDate).AddDate(0, 0, 1)
	}
	last := types.DateOf(upTo)
	if sub.EndDate != nil && last.After(types.DateOf(*sub.EndDate)) {
		last = types.DateOf(*sub.EndDate)
	}

	distance := distanceOf(sub)
	var fares *rideFares
	count := 0
	for day := walkStart; !day.After(last); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if !sub.hasDay(day.Weekday()) {
			continue
		}

		pickupAt := sub.PickupTime.On(day, g.loc)
		exists, err := g.rides.ExistsForKidDateTime(ctx, sub.KidID, pickupAt)
		if err != nil {
			return count, err
		}
		if exists {
			continue
		}

		if fares == nil {
			f, err := g.fares(ctx, sub, distance)
			if err != nil {
				return count, err
			}
			fares = &f
		}

		spec := ride.CreateSpec{
			KidID:               sub.KidID,
			ParentID:            sub.ParentID,
			SubscriptionID:      &sub.ID,
			Type:                ride.TypeForPickup(sub.PickupTime),
			ScheduledPickupTime: pickupAt,
			PickupAddress:       sub.PickupAddress,
			Pickup:              sub.Pickup,
			DropoffAddress:      sub.DropoffAddress,
			Dropoff:             sub.Dropoff,
			BaseFare:            sub.BaseFare,
			DistanceFare:        fares.distance,
			TotalFare:           fares.total,
			ParentNotes:         sub.ParentNotes,
		}
		if sub.DropoffTime != nil {
			dropoffAt := sub.DropoffTime.On(day, g.loc)
			spec.ScheduledDropoffTime = &dropoffAt
		}

		if _, err := g.rides.Create(ctx, spec); err != nil {
			if errors.Is(err, ride.ErrDuplicate) {
				continue
			}
			return count, err
		}
		count++
	}

	if count == 0 {
		return 0, nil
	}
	ok, err := g.checkpoints.AdvanceCheckpoint(ctx, sub.ID, sub.LastRideGeneratedDate, last)
	if err != nil {
		return count, err
	}
	if !ok {
		return count, ErrCheckpointConflict
	}
	sub.LastRideGeneratedDate = &last
	return count, nil
}

func distanceOf(sub *Subscription) float64 {
	return location.DistanceKm(sub.Pickup, sub.Dropoff)
}

type rideFares struct {
	distance float64
	total    float64
}

func (g *Generator) fares(ctx context.Context, sub *Subscription, distanceKm float64) (rideFares, error) {
	est := pricing.NewEstimator(0)
	if g.rates != nil {
		e, err := g.rates.Estimator(ctx, sub.SchoolID)
		if err != nil {
			return rideFares{}, err
		}
		est = e
	}
	f := rideFares{total: sub.TotalFarePerRide}
	if sub.DistanceFare != nil {
		f.distance = *sub.DistanceFare
	} else {
		f.distance = est.DistanceFare(distanceKm)
	}
	if f.total == 0 {
		f.total = est.TotalFare(sub.BaseFare, f.distance)
	}
	return f, nil
}
