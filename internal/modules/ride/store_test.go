package ride_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolride/internal/modules/ride"
	"schoolride/internal/testutil"
	"schoolride/internal/types"
)

func spec(kid types.ID, pickup time.Time) ride.CreateSpec {
	return ride.CreateSpec{
		KidID:               kid,
		ParentID:            "parent-1",
		Type:                ride.TypeToSchool,
		ScheduledPickupTime: pickup,
		PickupAddress:       "1 Home St",
		Pickup:              types.Point{Lat: 25.03, Lng: 121.56},
		DropoffAddress:      "1 School Rd",
		Dropoff:             types.Point{Lat: 25.05, Lng: 121.52},
		BaseFare:            10,
		DistanceFare:        2.5,
		TotalFare:           12.5,
	}
}

func TestStoreCreateAndExists(t *testing.T) {
	pool := testutil.NewPool(t)
	ctx := context.Background()
	store := ride.NewStore(pool)
	pickup := time.Date(2024, 1, 1, 7, 30, 0, 0, time.UTC)

	exists, err := store.ExistsForKidDateTime(ctx, "kid-1", pickup)
	require.NoError(t, err)
	assert.False(t, exists)

	created, err := store.Create(ctx, spec("kid-1", pickup))
	require.NoError(t, err)
	assert.Equal(t, ride.StatusScheduled, created.Status)

	exists, err = store.ExistsForKidDateTime(ctx, "kid-1", pickup)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.ExistsForKidDateTime(ctx, "kid-1", pickup.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, exists)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, pickup.Equal(got.ScheduledPickupTime))
	assert.Nil(t, got.SubscriptionID)
	assert.Nil(t, got.ScheduledDropoffTime)
	assert.Equal(t, 12.5, got.TotalFare)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ride.ErrNotFound)
}

func TestStoreDuplicateSubscriptionRide(t *testing.T) {
	pool := testutil.NewPool(t)
	ctx := context.Background()
	store := ride.NewStore(pool)

	subID := types.ID("sub-1")
	_, err := pool.Exec(ctx, `
		INSERT INTO subscriptions (
			id, parent_id, kid_id, school_id, subscription_type, status,
			start_date, days_of_week, pickup_time,
			pickup_address, pickup_lat, pickup_lng,
			dropoff_address, dropoff_lat, dropoff_lng,
			base_fare, total_fare_per_ride
		) VALUES ($1, 'parent-1', 'kid-1', 'school-1', 'WEEKLY', 'ACTIVE',
			'2024-01-01', '{1,3,5}', '07:30',
			'1 Home St', 0, 0, '1 School Rd', 0, 0, 10, 10)`, string(subID))
	require.NoError(t, err)

	pickup := time.Date(2024, 1, 1, 7, 30, 0, 0, time.UTC)
	first := spec("kid-1", pickup)
	first.SubscriptionID = &subID
	_, err = store.Create(ctx, first)
	require.NoError(t, err)

	_, err = store.Create(ctx, first)
	assert.ErrorIs(t, err, ride.ErrDuplicate)

	next := spec("kid-1", pickup.AddDate(0, 0, 2))
	next.SubscriptionID = &subID
	_, err = store.Create(ctx, next)
	require.NoError(t, err)

	rides, err := store.ListBySubscription(ctx, subID)
	require.NoError(t, err)
	require.Len(t, rides, 2)
	assert.True(t, rides[0].ScheduledPickupTime.Before(rides[1].ScheduledPickupTime))
}
