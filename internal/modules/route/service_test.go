package route

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolride/internal/modules/school"
	"schoolride/internal/types"
)

type memRepo struct {
	mu     sync.Mutex
	routes map[types.ID]*Route
}

var _ Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{routes: map[types.ID]*Route{}}
}

func cloneRoute(r *Route) *Route {
	c := *r
	c.Waypoints = append([]Waypoint(nil), r.Waypoints...)
	return &c
}

func (m *memRepo) Create(_ context.Context, r *Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[r.ID] = cloneRoute(r)
	return nil
}

func (m *memRepo) Get(_ context.Context, id types.ID) (*Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRoute(r), nil
}

func (m *memRepo) List(_ context.Context, f ListFilter) ([]*Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Route
	for _, r := range m.routes {
		if f.SchoolID != "" && r.SchoolID != f.SchoolID {
			continue
		}
		if f.DriverID != "" && r.ProposedDriverID != f.DriverID && (r.DriverID == nil || *r.DriverID != f.DriverID) {
			continue
		}
		if f.ActiveOnly && !r.IsActive {
			continue
		}
		out = append(out, cloneRoute(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) ListProposed(_ context.Context, driverID types.ID) ([]*Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Route
	for _, r := range m.routes {
		if r.ProposedDriverID == driverID && r.Status == StatusPending && r.IsActive {
			out = append(out, cloneRoute(r))
		}
	}
	return out, nil
}

func (m *memRepo) Update(_ context.Context, r *Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.routes[r.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != StatusPending {
		return ErrInvalidState
	}
	m.routes[r.ID] = cloneRoute(r)
	return nil
}

func (m *memRepo) UpdateStatus(_ context.Context, id types.ID, from, to Status, driverID *types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok || r.Status != from || !r.IsActive {
		return false, nil
	}
	r.Status = to
	if driverID != nil {
		d := *driverID
		r.DriverID = &d
	}
	return true, nil
}

func (m *memRepo) SoftDelete(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return ErrNotFound
	}
	r.IsActive = false
	return nil
}

type schoolMap map[types.ID]*school.School

func (s schoolMap) Get(_ context.Context, id types.ID) (*school.School, error) {
	sc, ok := s[id]
	if !ok {
		return nil, school.ErrNotFound
	}
	return sc, nil
}

type driverFake struct {
	positions map[types.ID]types.Point
	available map[types.ID]bool
}

func (d driverFake) DriverPosition(_ context.Context, id types.ID) (types.Point, bool, error) {
	p, ok := d.positions[id]
	return p, ok, nil
}

func (d driverFake) IsAvailable(_ context.Context, id types.ID) (bool, error) {
	return d.available[id], nil
}

type geocoderFake map[string]types.Point

func (g geocoderFake) Geocode(_ context.Context, address string) (types.Point, error) {
	p, ok := g[address]
	if !ok {
		return types.Point{}, errors.New("address not found")
	}
	return p, nil
}

type topicRecorder struct {
	topics []string
}

func (r *topicRecorder) Publish(_ context.Context, topic string, _ any) error {
	r.topics = append(r.topics, topic)
	return nil
}

func newTestService() (*Service, *memRepo, *topicRecorder) {
	repo := newMemRepo()
	schools := schoolMap{
		"school-1": {ID: "school-1", Name: "Lincoln Elementary", Address: "1 School Rd", Location: types.Point{Lat: 0, Lng: 15}},
	}
	drivers := driverFake{
		positions: map[types.ID]types.Point{"driver-1": {Lat: 0, Lng: -1}},
		available: map[types.ID]bool{"driver-1": true, "driver-2": true},
	}
	geo := geocoderFake{"9 Elm St": {Lat: 0, Lng: 7}}
	rec := &topicRecorder{}
	return NewService(repo, schools, drivers, geo, rec), repo, rec
}

func TestOptimizeUsesDriverPositionAndSchool(t *testing.T) {
	svc, repo, rec := newTestService()

	r, err := svc.Optimize(context.Background(), OptimizeCommand{
		SchoolID:  "school-1",
		DriverID:  "driver-1",
		Waypoints: []Waypoint{wp(0, 10), wp(0, 5)},
	})
	require.NoError(t, err)

	require.Len(t, r.Waypoints, 4)
	assert.Equal(t, types.Point{Lat: 0, Lng: -1}, r.Waypoints[0].Point())
	assert.Equal(t, types.Point{Lat: 0, Lng: 5}, r.Waypoints[1].Point())
	assert.Equal(t, types.Point{Lat: 0, Lng: 10}, r.Waypoints[2].Point())
	assert.Equal(t, "1 School Rd", r.Waypoints[3].Address)
	assert.Equal(t, "Optimized Route to Lincoln Elementary", r.Name)
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, types.ID("driver-1"), r.ProposedDriverID)
	require.NotNil(t, r.EstimatedDistanceKm)
	assert.InDelta(t, TotalDistanceKm(r.Waypoints), *r.EstimatedDistanceKm, 1e-9)

	stored, err := repo.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Waypoints, stored.Waypoints)
	assert.Equal(t, []string{TopicProposed}, rec.topics)
}

func TestOptimizeStartsAtFirstWaypointWithoutPosition(t *testing.T) {
	svc, _, _ := newTestService()

	r, err := svc.Optimize(context.Background(), OptimizeCommand{
		SchoolID:  "school-1",
		DriverID:  "driver-2",
		Waypoints: []Waypoint{wp(0, 10), wp(0, 5)},
		Name:      "Morning run",
	})
	require.NoError(t, err)
	assert.Equal(t, "Morning run", r.Name)
	assert.Equal(t, types.Point{Lat: 0, Lng: 10}, r.Waypoints[0].Point())
	assert.Len(t, r.Waypoints, 4)
}

func TestOptimizeErrors(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Optimize(ctx, OptimizeCommand{SchoolID: "school-404", DriverID: "driver-1", Waypoints: []Waypoint{wp(0, 1)}})
	assert.ErrorIs(t, err, ErrSchoolNotFound)

	_, err = svc.Optimize(ctx, OptimizeCommand{SchoolID: "school-1", DriverID: "driver-1"})
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = svc.Optimize(ctx, OptimizeCommand{SchoolID: "school-1", Waypoints: []Waypoint{wp(0, 1)}})
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = svc.Optimize(ctx, OptimizeCommand{SchoolID: "school-1", DriverID: "driver-9", Waypoints: []Waypoint{wp(0, 1)}})
	assert.ErrorIs(t, err, ErrDriverUnavailable)

	_, err = svc.Optimize(ctx, OptimizeCommand{SchoolID: "school-1", DriverID: "driver-1", Waypoints: []Waypoint{wp(91, 0)}})
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestPreviewDoesNotPersist(t *testing.T) {
	svc, repo, rec := newTestService()

	plan, err := svc.Preview(context.Background(), OptimizeCommand{
		SchoolID:  "school-1",
		Waypoints: []Waypoint{wp(0, 10), wp(0, 5)},
	})
	require.NoError(t, err)
	assert.Len(t, plan.Waypoints, 4)
	assert.Empty(t, repo.routes)
	assert.Empty(t, rec.topics)
}

func TestCreateComputesEstimatesAndGeocodes(t *testing.T) {
	svc, _, _ := newTestService()

	in := []Waypoint{wp(0, 1), {Address: "9 Elm St"}}
	r, err := svc.Create(context.Background(), CreateCommand{
		SchoolID:         "school-1",
		ProposedDriverID: "driver-1",
		Name:             "Manual",
		Waypoints:        in,
	})
	require.NoError(t, err)
	assert.Equal(t, types.Point{Lat: 0, Lng: 7}, r.Waypoints[1].Point())
	assert.Zero(t, in[1].Longitude)
	require.NotNil(t, r.EstimatedDistanceKm)
	assert.InDelta(t, 6*111.195, *r.EstimatedDistanceKm, 0.01)
	require.NotNil(t, r.EstimatedDurationMinutes)
	assert.Equal(t, EstimateDurationMinutes(*r.EstimatedDistanceKm), *r.EstimatedDurationMinutes)
}

func TestCreateKeepsGivenEstimatesForSingleWaypoint(t *testing.T) {
	svc, _, _ := newTestService()
	dist, dur := 3.5, 9

	r, err := svc.Create(context.Background(), CreateCommand{
		SchoolID:                 "school-1",
		ProposedDriverID:         "driver-1",
		Waypoints:                []Waypoint{wp(0, 1)},
		EstimatedDistanceKm:      &dist,
		EstimatedDurationMinutes: &dur,
	})
	require.NoError(t, err)
	assert.Equal(t, 3.5, *r.EstimatedDistanceKm)
	assert.Equal(t, 9, *r.EstimatedDurationMinutes)
}

func TestCreateUnknownAddress(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Create(context.Background(), CreateCommand{
		SchoolID:         "school-1",
		ProposedDriverID: "driver-1",
		Waypoints:        []Waypoint{{Address: "nowhere"}},
	})
	assert.Error(t, err)
}

func TestAcceptRejectFlow(t *testing.T) {
	svc, _, rec := newTestService()
	ctx := context.Background()

	r, err := svc.Optimize(ctx, OptimizeCommand{SchoolID: "school-1", DriverID: "driver-1", Waypoints: []Waypoint{wp(0, 5)}})
	require.NoError(t, err)

	proposed, err := svc.ListProposed(ctx, "driver-1")
	require.NoError(t, err)
	assert.Len(t, proposed, 1)

	_, err = svc.Accept(ctx, r.ID, "driver-2")
	assert.ErrorIs(t, err, ErrNotProposedToDriver)

	accepted, err := svc.Accept(ctx, r.ID, "driver-1")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, accepted.Status)
	require.NotNil(t, accepted.DriverID)
	assert.Equal(t, types.ID("driver-1"), *accepted.DriverID)

	_, err = svc.Reject(ctx, r.ID, "driver-1")
	assert.ErrorIs(t, err, ErrInvalidState)

	proposed, err = svc.ListProposed(ctx, "driver-1")
	require.NoError(t, err)
	assert.Empty(t, proposed)
	assert.Equal(t, []string{TopicProposed, TopicAccepted}, rec.topics)
}

func TestUpdateRefusedOnceAnswered(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	r, err := svc.Optimize(ctx, OptimizeCommand{SchoolID: "school-1", DriverID: "driver-1", Waypoints: []Waypoint{wp(0, 5), wp(0, 10)}})
	require.NoError(t, err)
	_, err = svc.Accept(ctx, r.ID, "driver-1")
	require.NoError(t, err)

	ws := []Waypoint{wp(0, 1), wp(0, 2)}
	name := "Detour"
	_, err = svc.Update(ctx, r.ID, UpdatePatch{Name: &name, Waypoints: &ws})
	assert.ErrorIs(t, err, ErrInvalidState)

	stored, err := repo.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Name, stored.Name)
	assert.Equal(t, r.Waypoints, stored.Waypoints)
	assert.Equal(t, *r.EstimatedDistanceKm, *stored.EstimatedDistanceKm)
}

func TestRejectLeavesDriverUnset(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	r, err := svc.Optimize(ctx, OptimizeCommand{SchoolID: "school-1", DriverID: "driver-2", Waypoints: []Waypoint{wp(0, 5)}})
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, r.ID, "driver-2")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Nil(t, rejected.DriverID)
}

func TestUpdateAndSoftDelete(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	r, err := svc.Create(ctx, CreateCommand{SchoolID: "school-1", ProposedDriverID: "driver-1", Waypoints: []Waypoint{wp(0, 0), wp(0, 1)}})
	require.NoError(t, err)

	name := "Renamed"
	ws := []Waypoint{wp(0, 0), wp(0, 2)}
	updated, err := svc.Update(ctx, r.ID, UpdatePatch{Name: &name, Waypoints: &ws})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.InDelta(t, 2*111.195, *updated.EstimatedDistanceKm, 0.01)

	other := types.ID("school-404")
	_, err = svc.Update(ctx, r.ID, UpdatePatch{SchoolID: &other})
	assert.ErrorIs(t, err, ErrSchoolNotFound)

	require.NoError(t, svc.Delete(ctx, r.ID))
	stored, err := repo.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	active, err := svc.List(ctx, ListFilter{SchoolID: "school-1", ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = svc.Accept(ctx, r.ID, "driver-1")
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.ErrorIs(t, svc.Delete(ctx, "missing"), ErrNotFound)
}
