package location

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"schoolride/internal/types"
)

func TestDriverPositionAndAvailability(t *testing.T) {
	redisAddr := os.Getenv("SCHOOLRIDE_TEST_REDIS")
	if redisAddr == "" {
		t.Skip("SCHOOLRIDE_TEST_REDIS not set; skipping integration test")
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	store := NewStore(nil, rdb)
	svc := NewService(store)
	ctx := context.Background()

	id := types.ID(fmt.Sprintf("driver_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		rdb.ZRem(ctx, driverGeoKey, string(id))
		rdb.SRem(ctx, driverAvailableKey, string(id))
	})

	if _, ok, err := svc.DriverPosition(ctx, id); err != nil || ok {
		t.Fatalf("expected no position yet, ok=%v err=%v", ok, err)
	}

	pos := types.Point{Lat: 40.7128, Lng: -74.0060}
	if err := store.SetGeo(ctx, id, pos); err != nil {
		t.Fatalf("set geo: %v", err)
	}
	got, ok, err := svc.DriverPosition(ctx, id)
	if err != nil || !ok {
		t.Fatalf("expected position, ok=%v err=%v", ok, err)
	}
	if DistanceKm(got, pos) > 0.01 {
		t.Errorf("stored position drifted: %v vs %v", got, pos)
	}

	if err := svc.SetAvailability(ctx, id, true); err != nil {
		t.Fatalf("set availability: %v", err)
	}
	nearby, err := svc.NearbyAvailableDrivers(ctx, types.Point{Lat: 40.72, Lng: -74.0}, 5)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	found := false
	for _, d := range nearby {
		if d.DriverID == id {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s among nearby drivers, got %v", id, nearby)
	}

	if err := svc.SetAvailability(ctx, id, false); err != nil {
		t.Fatalf("unset availability: %v", err)
	}
	if ok, _ := svc.IsAvailable(ctx, id); ok {
		t.Errorf("driver should be unavailable")
	}
}

func TestUpdatePosition_RejectsOutOfRange(t *testing.T) {
	svc := NewService(nil)
	err := svc.UpdatePosition(context.Background(), UpdateCommand{DriverID: "d1", Position: types.Point{Lat: 91, Lng: 0}})
	if err != ErrBadRequest {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}
