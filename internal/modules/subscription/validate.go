// README: Input validation for subscription commands.
package subscription

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"schoolride/internal/types"
)

var validate = validator.New()

type CreateCommand struct {
	ParentID          types.ID         `validate:"required"`
	KidID             types.ID         `validate:"required"`
	SchoolID          types.ID         `validate:"required"`
	Type              Type             `validate:"required,oneof=WEEKLY MONTHLY"`
	Status            Status           `validate:"omitempty,oneof=ACTIVE PAUSED"`
	StartDate         time.Time
	EndDate           *time.Time
	DaysOfWeek        []int            `validate:"required,min=1,max=7,unique,dive,min=0,max=6"`
	PickupTime        types.TimeOfDay
	DropoffTime       *types.TimeOfDay
	PickupAddress     string           `validate:"required"`
	Pickup            types.Point
	DropoffAddress    string           `validate:"required"`
	Dropoff           types.Point
	BaseFare          float64          `validate:"gte=0"`
	DistanceFare      *float64         `validate:"omitempty,gte=0"`
	TotalFarePerRide  float64          `validate:"gte=0"`
	SubscriptionTotal *float64         `validate:"omitempty,gte=0"`
	ParentNotes       string
	AutoGenerateRides *bool
}

func (c CreateCommand) validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if c.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalidInput)
	}
	if c.EndDate != nil && types.DateOf(*c.EndDate).Before(types.DateOf(c.StartDate)) {
		return fmt.Errorf("%w: end date before start date", ErrInvalidInput)
	}
	if err := validateDays(c.DaysOfWeek); err != nil {
		return err
	}
	if err := validateTime(c.PickupTime); err != nil {
		return err
	}
	if c.DropoffTime != nil {
		return validateTime(*c.DropoffTime)
	}
	return nil
}

// validateSubscription re-checks invariants after a patch has been applied.
func validateSubscription(s *Subscription) error {
	if s.EndDate != nil && s.EndDate.Before(s.StartDate) {
		return fmt.Errorf("%w: end date before start date", ErrInvalidInput)
	}
	if err := validateDays(s.DaysOfWeek); err != nil {
		return err
	}
	if err := validateTime(s.PickupTime); err != nil {
		return err
	}
	if s.DropoffTime != nil {
		if err := validateTime(*s.DropoffTime); err != nil {
			return err
		}
	}
	if s.BaseFare < 0 || s.TotalFarePerRide < 0 || (s.DistanceFare != nil && *s.DistanceFare < 0) {
		return fmt.Errorf("%w: fares must not be negative", ErrInvalidInput)
	}
	return nil
}

func validateDays(days []int) error {
	if len(days) == 0 {
		return fmt.Errorf("%w: at least one day of week must be specified", ErrInvalidInput)
	}
	seen := make(map[int]bool, len(days))
	for _, d := range days {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: invalid day of week %d (0=Sunday, 6=Saturday)", ErrInvalidInput, d)
		}
		if seen[d] {
			return fmt.Errorf("%w: duplicate day of week %d", ErrInvalidInput, d)
		}
		seen[d] = true
	}
	return nil
}

func validateTime(t types.TimeOfDay) error {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("%w: invalid time of day %s", ErrInvalidInput, t)
	}
	return nil
}
