package subscription

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"schoolride/internal/modules/pricing"
	"schoolride/internal/modules/ride"
	"schoolride/internal/types"
)

// memRepo is an in-memory Repository with the same CAS semantics as *Store.
type memRepo struct {
	mu   sync.Mutex
	subs map[types.ID]*Subscription

	// advanceConflicts makes the next N AdvanceCheckpoint calls lose the race.
	advanceConflicts int
	statusConflict   bool
	advanceCalls     int
}

var _ Repository = (*memRepo)(nil)

func newMemRepo(subs ...*Subscription) *memRepo {
	r := &memRepo{subs: map[types.ID]*Subscription{}}
	for _, s := range subs {
		r.subs[s.ID] = clone(s)
	}
	return r
}

func clone(s *Subscription) *Subscription {
	c := *s
	c.DaysOfWeek = append([]int(nil), s.DaysOfWeek...)
	return &c
}

func (r *memRepo) Create(_ context.Context, sub *Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.ID] = clone(sub)
	return nil
}

func (r *memRepo) Get(_ context.Context, id types.ID) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (r *memRepo) ListByParent(_ context.Context, parentID types.ID, activeOnly bool) ([]*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Subscription
	for _, s := range r.subs {
		if s.ParentID != parentID || (activeOnly && s.Status != StatusActive) {
			continue
		}
		out = append(out, clone(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) ListEligible(_ context.Context, day time.Time) ([]*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Subscription
	for _, s := range r.subs {
		if !CanGenerate(s) || s.StartDate.After(day) {
			continue
		}
		if s.EndDate != nil && s.EndDate.Before(day) &&
			s.LastRideGeneratedDate != nil && !s.LastRideGeneratedDate.Before(*s.EndDate) {
			continue
		}
		out = append(out, clone(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) Update(_ context.Context, sub *Subscription, from Status, version int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.subs[sub.ID]
	if !ok || r.statusConflict || cur.Status != from || cur.StatusVersion != version {
		return false, nil
	}
	next := clone(sub)
	next.StatusVersion = cur.StatusVersion
	if next.Status != cur.Status {
		next.StatusVersion++
	}
	next.LastRideGeneratedDate = cur.LastRideGeneratedDate
	r.subs[sub.ID] = next
	return true, nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.subs[id]
	if !ok || r.statusConflict || cur.Status != from || cur.StatusVersion != version {
		return false, nil
	}
	cur.Status = to
	cur.StatusVersion++
	return true, nil
}

func (r *memRepo) AdvanceCheckpoint(_ context.Context, id types.ID, expected *time.Time, next time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advanceCalls++
	if r.advanceConflicts > 0 {
		r.advanceConflicts--
		return false, nil
	}
	cur, ok := r.subs[id]
	if !ok {
		return false, nil
	}
	switch {
	case expected == nil && cur.LastRideGeneratedDate != nil:
		return false, nil
	case expected != nil && (cur.LastRideGeneratedDate == nil || !cur.LastRideGeneratedDate.Equal(*expected)):
		return false, nil
	case cur.LastRideGeneratedDate != nil && next.Before(*cur.LastRideGeneratedDate):
		return false, nil
	}
	n := next
	cur.LastRideGeneratedDate = &n
	return true, nil
}

func (r *memRepo) ExpireEnded(_ context.Context, today time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.subs {
		if (s.Status == StatusActive || s.Status == StatusPaused) && s.EndDate != nil && s.EndDate.Before(today) {
			s.Status = StatusExpired
			s.StatusVersion++
			n++
		}
	}
	return n, nil
}

func (r *memRepo) checkpoint(id types.ID) *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs[id].LastRideGeneratedDate
}

// memRides is an in-memory RideStore keyed like the unique index on rides.
type memRides struct {
	mu          sync.Mutex
	created     []ride.CreateSpec
	keys        map[string]bool
	existsCalls int
	// blindExists makes ExistsForKidDateTime always report false so the
	// duplicate is only caught by Create.
	blindExists bool
	failKid     types.ID
}

var _ RideStore = (*memRides)(nil)

var errRideStore = errors.New("ride store unavailable")

func newMemRides() *memRides {
	return &memRides{keys: map[string]bool{}}
}

func rideKey(kid types.ID, at time.Time) string {
	return string(kid) + "|" + at.UTC().Format(time.RFC3339)
}

func (m *memRides) seed(kid types.ID, at time.Time) {
	m.keys[rideKey(kid, at)] = true
}

func (m *memRides) ExistsForKidDateTime(_ context.Context, kidID types.ID, pickupAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existsCalls++
	if kidID == m.failKid {
		return false, errRideStore
	}
	if m.blindExists {
		return false, nil
	}
	return m.keys[rideKey(kidID, pickupAt)], nil
}

func (m *memRides) Create(_ context.Context, spec ride.CreateSpec) (*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := rideKey(spec.KidID, spec.ScheduledPickupTime)
	if m.keys[k] {
		return nil, ride.ErrDuplicate
	}
	m.keys[k] = true
	m.created = append(m.created, spec)
	return &ride.Ride{ID: types.NewID(), KidID: spec.KidID, ScheduledPickupTime: spec.ScheduledPickupTime}, nil
}

func (m *memRides) pickupDays() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.created))
	for i, r := range m.created {
		out[i] = r.ScheduledPickupTime.Format(types.DateLayout)
	}
	return out
}

type fixedRate struct {
	perKm float64
	err   error
}

func (f fixedRate) Estimator(context.Context, types.ID) (pricing.Estimator, error) {
	if f.err != nil {
		return pricing.Estimator{}, f.err
	}
	return pricing.NewEstimator(f.perKm), nil
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, types.ID) (func(), error) {
	return nil, ErrGenerationInProgress
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	if e, ok := payload.(Event); ok {
		p.events = append(p.events, e)
	}
	return nil
}

type schoolSet map[types.ID]bool

func (s schoolSet) Exists(_ context.Context, id types.ID) (bool, error) {
	return s[id], nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

// activeSub is an ACTIVE Mon/Wed/Fri subscription starting Monday 2024-01-01.
func activeSub() *Subscription {
	return &Subscription{
		ID:                "sub-1",
		ParentID:          "parent-1",
		KidID:             "kid-1",
		SchoolID:          "school-1",
		Type:              TypeWeekly,
		Status:            StatusActive,
		StartDate:         date(2024, 1, 1),
		DaysOfWeek:        []int{1, 3, 5},
		PickupTime:        types.TimeOfDay{Hour: 7, Minute: 30},
		PickupAddress:     "12 Home St",
		Pickup:            types.Point{Lat: 0, Lng: 0},
		DropoffAddress:    "School Rd",
		Dropoff:           types.Point{Lat: 0, Lng: 1},
		BaseFare:          10,
		AutoGenerateRides: true,
	}
}
