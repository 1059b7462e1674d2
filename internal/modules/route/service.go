// README: Route service: proposals to drivers, nearest-neighbour optimisation and accept/reject.
package route

import (
	"context"
	"errors"
	"fmt"
	"time"

	"schoolride/internal/modules/school"
	"schoolride/internal/types"
)

var (
	ErrNotFound            = errors.New("route not found")
	ErrBadRequest          = errors.New("bad request")
	ErrSchoolNotFound      = errors.New("school not found")
	ErrDriverUnavailable   = errors.New("driver is not available")
	ErrNotProposedToDriver = errors.New("route is not proposed to this driver")
	ErrInvalidState        = errors.New("route is no longer pending")
	ErrConflict            = errors.New("route state conflict")
)

const (
	TopicProposed = "route.proposed"
	TopicAccepted = "route.accepted"
	TopicRejected = "route.rejected"
)

// Repository is satisfied by *Store.
type Repository interface {
	Create(ctx context.Context, r *Route) error
	Get(ctx context.Context, id types.ID) (*Route, error)
	List(ctx context.Context, f ListFilter) ([]*Route, error)
	ListProposed(ctx context.Context, driverID types.ID) ([]*Route, error)
	Update(ctx context.Context, r *Route) error
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, driverID *types.ID) (bool, error)
	SoftDelete(ctx context.Context, id types.ID) error
}

// SchoolLookup is satisfied by *school.Store.
type SchoolLookup interface {
	Get(ctx context.Context, id types.ID) (*school.School, error)
}

// DriverLocator is satisfied by *location.Service.
type DriverLocator interface {
	DriverPosition(ctx context.Context, driverID types.ID) (types.Point, bool, error)
	IsAvailable(ctx context.Context, driverID types.ID) (bool, error)
}

// Geocoder resolves address-only waypoints. Satisfied by *maps.Geocoder.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (types.Point, error)
}

// Publisher is satisfied by *infra.Producer. A nil Publisher disables events.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

type Service struct {
	repo     Repository
	schools  SchoolLookup
	drivers  DriverLocator
	geocoder Geocoder
	events   Publisher
	now      func() time.Time
}

// NewService wires the service. geocoder and events may be nil.
func NewService(repo Repository, schools SchoolLookup, drivers DriverLocator, geocoder Geocoder, events Publisher) *Service {
	return &Service{
		repo:     repo,
		schools:  schools,
		drivers:  drivers,
		geocoder: geocoder,
		events:   events,
		now:      time.Now,
	}
}

// Create stores a PENDING proposal in the caller's waypoint order.
// Distance and duration are recomputed whenever there are two or more waypoints.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Route, error) {
	if _, err := s.school(ctx, cmd.SchoolID); err != nil {
		return nil, err
	}
	if err := s.checkDriver(ctx, cmd.ProposedDriverID); err != nil {
		return nil, err
	}
	waypoints, err := s.resolve(ctx, cmd.Waypoints)
	if err != nil {
		return nil, err
	}

	now := s.now()
	r := &Route{
		ID:                       types.NewID(),
		SchoolID:                 cmd.SchoolID,
		ProposedDriverID:         cmd.ProposedDriverID,
		Status:                   StatusPending,
		Name:                     cmd.Name,
		Description:              cmd.Description,
		Waypoints:                waypoints,
		EstimatedDistanceKm:      cmd.EstimatedDistanceKm,
		EstimatedDurationMinutes: cmd.EstimatedDurationMinutes,
		IsActive:                 true,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	applyEstimates(r)
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	s.publish(ctx, TopicProposed, r)
	return r, nil
}

// Optimize orders the waypoints from the driver's position (or the first
// waypoint when unknown) to the school and stores the result as a proposal.
func (s *Service) Optimize(ctx context.Context, cmd OptimizeCommand) (*Route, error) {
	sc, err := s.school(ctx, cmd.SchoolID)
	if err != nil {
		return nil, err
	}
	if len(cmd.Waypoints) == 0 {
		return nil, fmt.Errorf("%w: at least one waypoint is required", ErrBadRequest)
	}
	if err := s.checkDriver(ctx, cmd.DriverID); err != nil {
		return nil, err
	}
	plan, err := s.plan(ctx, sc, cmd)
	if err != nil {
		return nil, err
	}

	name := cmd.Name
	if name == "" {
		name = "Optimized Route to " + sc.Name
	}
	desc := cmd.Description
	if desc == "" {
		desc = "Optimized route for multiple pickups"
	}
	dist, dur := plan.TotalDistanceKm, plan.TotalDurationMinutes
	now := s.now()
	r := &Route{
		ID:                       types.NewID(),
		SchoolID:                 sc.ID,
		ProposedDriverID:         cmd.DriverID,
		Status:                   StatusPending,
		Name:                     name,
		Description:              desc,
		Waypoints:                plan.Waypoints,
		EstimatedDistanceKm:      &dist,
		EstimatedDurationMinutes: &dur,
		IsActive:                 true,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	s.publish(ctx, TopicProposed, r)
	return r, nil
}

// Preview returns the optimised plan without storing it. The driver is
// optional and need not be available.
func (s *Service) Preview(ctx context.Context, cmd OptimizeCommand) (Plan, error) {
	sc, err := s.school(ctx, cmd.SchoolID)
	if err != nil {
		return Plan{}, err
	}
	if len(cmd.Waypoints) == 0 {
		return Plan{}, fmt.Errorf("%w: at least one waypoint is required", ErrBadRequest)
	}
	return s.plan(ctx, sc, cmd)
}

func (s *Service) plan(ctx context.Context, sc *school.School, cmd OptimizeCommand) (Plan, error) {
	waypoints, err := s.resolve(ctx, cmd.Waypoints)
	if err != nil {
		return Plan{}, err
	}
	start := waypoints[0]
	if cmd.DriverID != "" && s.drivers != nil {
		pos, ok, err := s.drivers.DriverPosition(ctx, cmd.DriverID)
		if err != nil {
			return Plan{}, err
		}
		if ok {
			start = WaypointAt(pos, "")
		}
	}
	end := WaypointAt(sc.Location, sc.Address)
	return Optimize(waypoints, start, end), nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Route, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*Route, error) {
	if f.SchoolID != "" {
		if _, err := s.school(ctx, f.SchoolID); err != nil {
			return nil, err
		}
	}
	return s.repo.List(ctx, f)
}

func (s *Service) ListProposed(ctx context.Context, driverID types.ID) ([]*Route, error) {
	if driverID == "" {
		return nil, ErrBadRequest
	}
	return s.repo.ListProposed(ctx, driverID)
}

// Update edits a proposal. Once a driver has answered it the route is frozen.
func (s *Service) Update(ctx context.Context, id types.ID, patch UpdatePatch) (*Route, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPending {
		return nil, ErrInvalidState
	}
	if patch.SchoolID != nil && *patch.SchoolID != r.SchoolID {
		if _, err := s.school(ctx, *patch.SchoolID); err != nil {
			return nil, err
		}
		r.SchoolID = *patch.SchoolID
	}
	if patch.Name != nil {
		r.Name = *patch.Name
	}
	if patch.Description != nil {
		r.Description = *patch.Description
	}
	if patch.IsActive != nil {
		r.IsActive = *patch.IsActive
	}
	if patch.Waypoints != nil {
		waypoints, err := s.resolve(ctx, *patch.Waypoints)
		if err != nil {
			return nil, err
		}
		r.Waypoints = waypoints
		applyEstimates(r)
	}
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	r.UpdatedAt = s.now()
	return r, nil
}

// Delete deactivates the route; it stays readable by id.
func (s *Service) Delete(ctx context.Context, id types.ID) error {
	return s.repo.SoftDelete(ctx, id)
}

func (s *Service) Accept(ctx context.Context, id, driverID types.ID) (*Route, error) {
	return s.respond(ctx, id, driverID, StatusAccepted)
}

func (s *Service) Reject(ctx context.Context, id, driverID types.ID) (*Route, error) {
	return s.respond(ctx, id, driverID, StatusRejected)
}

func (s *Service) respond(ctx context.Context, id, driverID types.ID, to Status) (*Route, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.ProposedDriverID != driverID {
		return nil, ErrNotProposedToDriver
	}
	if r.Status != StatusPending || !r.IsActive {
		return nil, ErrInvalidState
	}
	var assign *types.ID
	if to == StatusAccepted {
		assign = &driverID
	}
	ok, err := s.repo.UpdateStatus(ctx, id, StatusPending, to, assign)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	r.Status = to
	if assign != nil {
		r.DriverID = assign
	}
	r.UpdatedAt = s.now()

	topic := TopicRejected
	if to == StatusAccepted {
		topic = TopicAccepted
	}
	s.publish(ctx, topic, r)
	return r, nil
}

func (s *Service) school(ctx context.Context, id types.ID) (*school.School, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: school_id is required", ErrBadRequest)
	}
	sc, err := s.schools.Get(ctx, id)
	if errors.Is(err, school.ErrNotFound) {
		return nil, ErrSchoolNotFound
	}
	return sc, err
}

func (s *Service) checkDriver(ctx context.Context, driverID types.ID) error {
	if driverID == "" {
		return fmt.Errorf("%w: proposed driver is required", ErrBadRequest)
	}
	if s.drivers == nil {
		return nil
	}
	ok, err := s.drivers.IsAvailable(ctx, driverID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDriverUnavailable
	}
	return nil
}

// resolve validates coordinates and geocodes waypoints that only carry an
// address (both coordinates zero). The input slice is not modified.
func (s *Service) resolve(ctx context.Context, in []Waypoint) ([]Waypoint, error) {
	out := make([]Waypoint, len(in))
	for i, w := range in {
		if w.Latitude == 0 && w.Longitude == 0 && w.Address != "" && s.geocoder != nil {
			p, err := s.geocoder.Geocode(ctx, w.Address)
			if err != nil {
				return nil, fmt.Errorf("geocode waypoint %d: %w", i, err)
			}
			w.Latitude, w.Longitude = p.Lat, p.Lng
		}
		if w.Latitude < -90 || w.Latitude > 90 || w.Longitude < -180 || w.Longitude > 180 {
			return nil, fmt.Errorf("%w: waypoint %d out of range", ErrBadRequest, i)
		}
		out[i] = w
	}
	return out, nil
}

func applyEstimates(r *Route) {
	if len(r.Waypoints) < 2 {
		return
	}
	dist := TotalDistanceKm(r.Waypoints)
	dur := EstimateDurationMinutes(dist)
	r.EstimatedDistanceKm = &dist
	r.EstimatedDurationMinutes = &dur
}

func (s *Service) publish(ctx context.Context, topic string, r *Route) {
	if s.events == nil {
		return
	}
	driver := r.ProposedDriverID
	if r.DriverID != nil {
		driver = *r.DriverID
	}
	// Events are best effort; the stored route is authoritative.
	_ = s.events.Publish(ctx, topic, Event{
		RouteID:    r.ID,
		SchoolID:   r.SchoolID,
		DriverID:   driver,
		Status:     r.Status,
		OccurredAt: s.now(),
	})
}
