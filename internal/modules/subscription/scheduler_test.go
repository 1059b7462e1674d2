package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepOnce(t *testing.T) {
	eligible := activeSub()

	paused := activeSub()
	paused.ID, paused.KidID = "sub-2", "kid-2"
	paused.Status = StatusPaused

	ended := activeSub()
	ended.ID, ended.KidID = "sub-3", "kid-3"
	ended.EndDate = datePtr(2024, 1, 5)

	manual := activeSub()
	manual.ID, manual.KidID = "sub-4", "kid-4"
	manual.AutoGenerateRides = false

	repo, rides := newMemRepo(eligible, paused, ended, manual), newMemRides()
	svc, _ := newTestService(repo, rides, time.Date(2024, 1, 10, 6, 0, 0, 0, time.UTC))

	res, err := svc.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Expired)
	assert.Equal(t, 2, res.Processed)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 11, res.Rides)

	// The ended subscription gets its remaining days before it expires.
	got, _ := repo.Get(context.Background(), "sub-3")
	assert.Equal(t, StatusExpired, got.Status)
	assert.Equal(t, date(2024, 1, 5), *repo.checkpoint("sub-3"))
	assert.Equal(t, date(2024, 1, 17), *repo.checkpoint("sub-1"))
	assert.Nil(t, repo.checkpoint("sub-2"))

	// A second sweep on the same day has nothing left to do.
	res, err = svc.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Expired)
	assert.Zero(t, res.Rides)
	assert.Len(t, rides.created, 11)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	good := activeSub()
	bad := activeSub()
	bad.ID, bad.KidID = "sub-2", "kid-bad"

	repo, rides := newMemRepo(good, bad), newMemRides()
	rides.failKid = "kid-bad"
	svc, _ := newTestService(repo, rides, time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))

	res, err := svc.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 4, res.Rides)
	assert.Nil(t, repo.checkpoint("sub-2"))
}

func TestSweepRetriesCheckpointConflict(t *testing.T) {
	repo, rides := newMemRepo(activeSub()), newMemRides()
	repo.advanceConflicts = 1
	svc, _ := newTestService(repo, rides, time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))

	res, err := svc.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 4, res.Rides)
	assert.Len(t, rides.created, 4)
}

func TestSweepSkipsHeldLease(t *testing.T) {
	repo, rides := newMemRepo(activeSub()), newMemRides()
	svc, _ := newTestService(repo, rides, time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))
	svc.locker = busyLocker{}

	res, err := svc.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Failed)
	assert.Empty(t, rides.created)
}

func TestRunGenerationTickerStopsOnCancel(t *testing.T) {
	repo, rides := newMemRepo(activeSub()), newMemRides()
	svc, _ := newTestService(repo, rides, time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))
	svc.cfg.TickSeconds = 3600

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunGenerationTicker(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return repo.checkpoint("sub-1") != nil
	}, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ticker did not stop after cancel")
	}
}
