// README: Subscription aggregate, lifecycle table and calendar helpers.
package subscription

import (
	"time"

	"schoolride/internal/types"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

type Type string

const (
	TypeWeekly  Type = "WEEKLY"
	TypeMonthly Type = "MONTHLY"
)

type Subscription struct {
	ID                    types.ID         `json:"id"`
	ParentID              types.ID         `json:"parent_id"`
	KidID                 types.ID         `json:"kid_id"`
	SchoolID              types.ID         `json:"school_id"`
	Type                  Type             `json:"subscription_type"`
	Status                Status           `json:"status"`
	StatusVersion         int              `json:"-"`
	StartDate             time.Time        `json:"start_date"`
	EndDate               *time.Time       `json:"end_date,omitempty"`
	DaysOfWeek            []int            `json:"days_of_week"`
	PickupTime            types.TimeOfDay  `json:"pickup_time"`
	DropoffTime           *types.TimeOfDay `json:"dropoff_time,omitempty"`
	PickupAddress         string           `json:"pickup_address"`
	Pickup                types.Point      `json:"pickup"`
	DropoffAddress        string           `json:"dropoff_address"`
	Dropoff               types.Point      `json:"dropoff"`
	BaseFare              float64          `json:"base_fare"`
	DistanceFare          *float64         `json:"distance_fare,omitempty"`
	TotalFarePerRide      float64          `json:"total_fare_per_ride"`
	SubscriptionTotal     *float64         `json:"subscription_total,omitempty"`
	ParentNotes           string           `json:"parent_notes,omitempty"`
	AutoGenerateRides     bool             `json:"auto_generate_rides"`
	LastRideGeneratedDate *time.Time       `json:"last_ride_generated_date,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
	PausedAt              *time.Time       `json:"paused_at,omitempty"`
	CancelledAt           *time.Time       `json:"cancelled_at,omitempty"`
}

// AllowedTransitions represents the subscription lifecycle as code.
// CANCELLED and EXPIRED are terminal.
var AllowedTransitions = map[Status][]Status{
	StatusActive: {StatusPaused, StatusCancelled, StatusExpired},
	StatusPaused: {StatusActive, StatusCancelled, StatusExpired},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// CanGenerate reports whether rides may be materialised for s.
func CanGenerate(s *Subscription) bool {
	return s.Status == StatusActive && s.AutoGenerateRides
}

func (s *Subscription) hasDay(weekday time.Weekday) bool {
	for _, d := range s.DaysOfWeek {
		if d == int(weekday) {
			return true
		}
	}
	return false
}

// DefaultEndDate is used when a subscription is created without an end date.
func DefaultEndDate(t Type, start time.Time) time.Time {
	if t == TypeMonthly {
		return start.AddDate(0, 6, 0)
	}
	return start.AddDate(0, 3, 0)
}

// CountRidesInPeriod counts the days in [start, end] whose weekday is in days.
func CountRidesInPeriod(start, end time.Time, days []int) int {
	set := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		set[time.Weekday(d)] = true
	}
	n := 0
	for d := types.DateOf(start); !d.After(types.DateOf(end)); d = d.AddDate(0, 0, 1) {
		if set[d.Weekday()] {
			n++
		}
	}
	return n
}

// UpdatePatch is a sparse update; nil fields are left untouched.
type UpdatePatch struct {
	Status            *Status
	EndDate           *time.Time
	DaysOfWeek        *[]int
	PickupTime        *types.TimeOfDay
	DropoffTime       *types.TimeOfDay
	PickupAddress     *string
	Pickup            *types.Point
	DropoffAddress    *string
	Dropoff           *types.Point
	BaseFare          *float64
	DistanceFare      *float64
	TotalFarePerRide  *float64
	SubscriptionTotal *float64
	ParentNotes       *string
	AutoGenerateRides *bool
}

func (p UpdatePatch) apply(s *Subscription) {
	if p.EndDate != nil {
		d := types.DateOf(*p.EndDate)
		s.EndDate = &d
	}
	if p.DaysOfWeek != nil {
		s.DaysOfWeek = append([]int(nil), (*p.DaysOfWeek)...)
	}
	if p.PickupTime != nil {
		s.PickupTime = *p.PickupTime
	}
	if p.DropoffTime != nil {
		t := *p.DropoffTime
		s.DropoffTime = &t
	}
	if p.PickupAddress != nil {
		s.PickupAddress = *p.PickupAddress
	}
	if p.Pickup != nil {
		s.Pickup = *p.Pickup
	}
	if p.DropoffAddress != nil {
		s.DropoffAddress = *p.DropoffAddress
	}
	if p.Dropoff != nil {
		s.Dropoff = *p.Dropoff
	}
	if p.BaseFare != nil {
		s.BaseFare = *p.BaseFare
	}
	if p.DistanceFare != nil {
		v := *p.DistanceFare
		s.DistanceFare = &v
	}
	if p.TotalFarePerRide != nil {
		s.TotalFarePerRide = *p.TotalFarePerRide
	}
	if p.SubscriptionTotal != nil {
		v := *p.SubscriptionTotal
		s.SubscriptionTotal = &v
	}
	if p.ParentNotes != nil {
		s.ParentNotes = *p.ParentNotes
	}
	if p.AutoGenerateRides != nil {
		s.AutoGenerateRides = *p.AutoGenerateRides
	}
}

// Event is published on lifecycle changes and generation runs.
type Event struct {
	SubscriptionID types.ID  `json:"subscription_id"`
	ParentID       types.ID  `json:"parent_id"`
	FromStatus     Status    `json:"from_status,omitempty"`
	ToStatus       Status    `json:"to_status,omitempty"`
	RidesGenerated int       `json:"rides_generated,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
