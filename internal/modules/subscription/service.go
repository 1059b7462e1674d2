// README: Subscription service: lifecycle transitions, sparse updates and generation triggers.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"schoolride/internal/config"
	"schoolride/internal/types"
)

var (
	ErrInvalidState         = errors.New("invalid subscription state")
	ErrInvalidInput         = errors.New("invalid subscription input")
	ErrCheckpointConflict   = errors.New("subscription checkpoint changed concurrently")
	ErrGenerationInProgress = errors.New("ride generation already in progress")
	ErrNotFound             = errors.New("subscription not found")
	ErrConflict             = errors.New("subscription state conflict")
	ErrSchoolNotFound       = errors.New("school not found")
	// ErrInitialGeneration accompanies a subscription that was stored but
	// whose first generation run failed.
	ErrInitialGeneration = errors.New("initial ride generation failed")
)

// Repository is satisfied by *Store.
type Repository interface {
	CheckpointStore
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id types.ID) (*Subscription, error)
	ListByParent(ctx context.Context, parentID types.ID, activeOnly bool) ([]*Subscription, error)
	ListEligible(ctx context.Context, day time.Time) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription, from Status, version int) (bool, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error)
	ExpireEnded(ctx context.Context, today time.Time) (int64, error)
}

// SchoolChecker is satisfied by *school.Store.
type SchoolChecker interface {
	Exists(ctx context.Context, id types.ID) (bool, error)
}

type Service struct {
	repo    Repository
	gen     *Generator
	schools SchoolChecker
	locker  Locker
	events  Publisher
	log     logrus.FieldLogger
	cfg     config.GenerationConfig
	now     func() time.Time
}

// NewService wires the service. schools, locker and events are optional.
func NewService(repo Repository, gen *Generator, schools SchoolChecker, locker Locker, events Publisher, log logrus.FieldLogger, cfg config.GenerationConfig) *Service {
	if locker == nil {
		locker = noopLocker{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		repo:    repo,
		gen:     gen,
		schools: schools,
		locker:  locker,
		events:  events,
		log:     log,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Today is the current calendar date in the generation time zone.
func (s *Service) Today() time.Time {
	return types.DateOf(s.now().In(s.gen.loc))
}

// Horizon is the default upper bound for a generation run.
func (s *Service) Horizon() time.Time {
	return s.Today().AddDate(0, 0, s.cfg.HorizonDays)
}

// Create stores a new subscription and, when it can generate, materialises
// rides up to the horizon. It returns the number of rides created.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Subscription, int, error) {
	if err := cmd.validate(); err != nil {
		return nil, 0, err
	}
	if s.schools != nil {
		ok, err := s.schools.Exists(ctx, cmd.SchoolID)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			return nil, 0, ErrSchoolNotFound
		}
	}

	now := s.now()
	start := types.DateOf(cmd.StartDate)
	end := DefaultEndDate(cmd.Type, start)
	if cmd.EndDate != nil {
		end = types.DateOf(*cmd.EndDate)
	}
	status := StatusActive
	if cmd.Status != "" {
		status = cmd.Status
	}
	auto := true
	if cmd.AutoGenerateRides != nil {
		auto = *cmd.AutoGenerateRides
	}

	sub := &Subscription{
		ID:                types.NewID(),
		ParentID:          cmd.ParentID,
		KidID:             cmd.KidID,
		SchoolID:          cmd.SchoolID,
		Type:              cmd.Type,
		Status:            status,
		StartDate:         start,
		EndDate:           &end,
		DaysOfWeek:        append([]int(nil), cmd.DaysOfWeek...),
		PickupTime:        cmd.PickupTime,
		DropoffTime:       cmd.DropoffTime,
		PickupAddress:     cmd.PickupAddress,
		Pickup:            cmd.Pickup,
		DropoffAddress:    cmd.DropoffAddress,
		Dropoff:           cmd.Dropoff,
		BaseFare:          cmd.BaseFare,
		DistanceFare:      cmd.DistanceFare,
		TotalFarePerRide:  cmd.TotalFarePerRide,
		SubscriptionTotal: cmd.SubscriptionTotal,
		ParentNotes:       cmd.ParentNotes,
		AutoGenerateRides: auto,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if sub.TotalFarePerRide == 0 {
		f, err := s.gen.fares(ctx, sub, distanceOf(sub))
		if err != nil {
			return nil, 0, err
		}
		sub.TotalFarePerRide = f.total
	}
	if sub.SubscriptionTotal == nil {
		total := float64(CountRidesInPeriod(start, end, sub.DaysOfWeek)) * sub.TotalFarePerRide
		sub.SubscriptionTotal = &total
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, 0, err
	}
	s.publish(ctx, TopicStatusChanged, Event{
		SubscriptionID: sub.ID,
		ParentID:       sub.ParentID,
		ToStatus:       sub.Status,
		OccurredAt:     now,
	})

	if !CanGenerate(sub) {
		return sub, 0, nil
	}
	n, err := s.generate(ctx, sub.ID, s.Horizon())
	if err != nil {
		// The subscription is stored either way; the sweep retries generation.
		s.log.WithError(err).WithField("subscription_id", sub.ID).Warn("initial ride generation failed")
		return s.reload(ctx, sub), n, fmt.Errorf("%w: %w", ErrInitialGeneration, err)
	}
	return s.reload(ctx, sub), n, nil
}

func (s *Service) Get(ctx context.Context, id types.ID, actor types.Actor) (*Subscription, error) {
	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(sub.ParentID) {
		return nil, ErrNotFound
	}
	return sub, nil
}

func (s *Service) ListForParent(ctx context.Context, parentID types.ID, activeOnly bool) ([]*Subscription, error) {
	return s.repo.ListByParent(ctx, parentID, activeOnly)
}

// Update applies a sparse patch. A status change goes through the lifecycle
// table and is written together with the fields, conditioned on the status
// version read here, so a rejected or lost transition stores nothing.
// Moving to ACTIVE triggers generation; the returned count is the number of
// rides generated as a consequence.
func (s *Service) Update(ctx context.Context, id types.ID, patch UpdatePatch, actor types.Actor) (*Subscription, int, error) {
	sub, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, 0, err
	}
	from, version := sub.Status, sub.StatusVersion
	if from == StatusCancelled || from == StatusExpired {
		return nil, 0, ErrInvalidState
	}
	to := from
	if patch.Status != nil && *patch.Status != from {
		to = *patch.Status
		if !CanTransition(from, to) {
			return nil, 0, ErrInvalidState
		}
	}

	patch.apply(sub)
	if err := validateSubscription(sub); err != nil {
		return nil, 0, err
	}
	sub.Status = to
	ok, err := s.repo.Update(ctx, sub, from, version)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, ErrConflict
	}

	now := s.now()
	sub.UpdatedAt = now
	if to == from {
		return sub, 0, nil
	}
	s.statusChanged(ctx, sub, from, to, now)
	if to == StatusActive {
		return s.generateAfterActivation(ctx, sub)
	}
	return sub, 0, nil
}

// Pause freezes generation; the checkpoint is left untouched.
func (s *Service) Pause(ctx context.Context, id types.ID, actor types.Actor) (*Subscription, error) {
	sub, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, sub, StatusPaused); err != nil {
		return nil, err
	}
	return sub, nil
}

// Resume reactivates a paused subscription and catches up on missed days.
func (s *Service) Resume(ctx context.Context, id types.ID, actor types.Actor) (*Subscription, int, error) {
	sub, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, 0, err
	}
	if sub.Status != StatusPaused {
		return nil, 0, ErrInvalidState
	}
	if err := s.transition(ctx, sub, StatusActive); err != nil {
		return nil, 0, err
	}
	return s.generateAfterActivation(ctx, sub)
}

func (s *Service) Cancel(ctx context.Context, id types.ID, actor types.Actor) (*Subscription, error) {
	sub, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, sub, StatusCancelled); err != nil {
		return nil, err
	}
	return sub, nil
}

// Generate is the manual trigger. upTo defaults to the horizon.
func (s *Service) Generate(ctx context.Context, id types.ID, upTo *time.Time, actor types.Actor) (int, error) {
	sub, err := s.Get(ctx, id, actor)
	if err != nil {
		return 0, err
	}
	if !CanGenerate(sub) {
		return 0, ErrInvalidState
	}
	limit := s.Horizon()
	if upTo != nil {
		limit = types.DateOf(*upTo)
	}
	return s.generate(ctx, sub.ID, limit)
}

func (s *Service) generateAfterActivation(ctx context.Context, sub *Subscription) (*Subscription, int, error) {
	if !CanGenerate(sub) {
		return sub, 0, nil
	}
	n, err := s.generate(ctx, sub.ID, s.Horizon())
	if err != nil {
		return nil, 0, err
	}
	return s.reload(ctx, sub), n, nil
}

// generate runs the generator under the per-subscription lease against a
// fresh read, so the checkpoint it starts from is the committed one.
func (s *Service) generate(ctx context.Context, id types.ID, upTo time.Time) (int, error) {
	release, err := s.locker.Acquire(ctx, id)
	if err != nil {
		return 0, err
	}
	defer release()

	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	n, err := s.gen.Generate(ctx, sub, upTo)
	if err != nil {
		return n, fmt.Errorf("generate rides for %s: %w", id, err)
	}
	if n > 0 {
		s.publish(ctx, TopicRidesGenerated, Event{
			SubscriptionID: sub.ID,
			ParentID:       sub.ParentID,
			RidesGenerated: n,
			OccurredAt:     s.now(),
		})
	}
	return n, nil
}

func (s *Service) transition(ctx context.Context, sub *Subscription, to Status) error {
	if !CanTransition(sub.Status, to) {
		return ErrInvalidState
	}
	from := sub.Status
	ok, err := s.repo.UpdateStatus(ctx, sub.ID, from, to, sub.StatusVersion)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.statusChanged(ctx, sub, from, to, s.now())
	return nil
}

// statusChanged records a committed transition on sub and announces it.
func (s *Service) statusChanged(ctx context.Context, sub *Subscription, from, to Status, now time.Time) {
	sub.Status = to
	sub.StatusVersion++
	sub.UpdatedAt = now
	switch to {
	case StatusPaused:
		sub.PausedAt = &now
	case StatusCancelled:
		sub.CancelledAt = &now
	}
	s.publish(ctx, TopicStatusChanged, Event{
		SubscriptionID: sub.ID,
		ParentID:       sub.ParentID,
		FromStatus:     from,
		ToStatus:       to,
		OccurredAt:     now,
	})
}

func (s *Service) reload(ctx context.Context, sub *Subscription) *Subscription {
	fresh, err := s.repo.Get(ctx, sub.ID)
	if err != nil {
		return sub
	}
	return fresh
}

func (s *Service) publish(ctx context.Context, topic string, e Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, topic, e); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"topic":           topic,
			"subscription_id": e.SubscriptionID,
		}).Warn("publish subscription event")
	}
}
