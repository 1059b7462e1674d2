// README: Ride aggregate produced by subscription generation.
package ride

import (
	"time"

	"schoolride/internal/types"
)

type Type string

const (
	TypeToSchool   Type = "TO_SCHOOL"
	TypeFromSchool Type = "FROM_SCHOOL"
)

// TypeForPickup classifies a ride by pickup hour: mornings go to school.
func TypeForPickup(t types.TimeOfDay) Type {
	if t.Hour < 12 {
		return TypeToSchool
	}
	return TypeFromSchool
}

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
)

type Ride struct {
	ID                   types.ID    `json:"id"`
	KidID                types.ID    `json:"kid_id"`
	ParentID             types.ID    `json:"parent_id"`
	SubscriptionID       *types.ID   `json:"subscription_id,omitempty"`
	Type                 Type        `json:"ride_type"`
	Status               Status      `json:"status"`
	ScheduledPickupTime  time.Time   `json:"scheduled_pickup_time"`
	ScheduledDropoffTime *time.Time  `json:"scheduled_dropoff_time,omitempty"`
	PickupAddress        string      `json:"pickup_address"`
	Pickup               types.Point `json:"pickup"`
	DropoffAddress       string      `json:"dropoff_address"`
	Dropoff              types.Point `json:"dropoff"`
	BaseFare             float64     `json:"base_fare"`
	DistanceFare         float64     `json:"distance_fare"`
	TotalFare            float64     `json:"total_fare"`
	ParentNotes          string      `json:"parent_notes,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
}

// CreateSpec carries every field of a ride to be created.
type CreateSpec struct {
	KidID                types.ID
	ParentID             types.ID
	SubscriptionID       *types.ID
	Type                 Type
	ScheduledPickupTime  time.Time
	ScheduledDropoffTime *time.Time
	PickupAddress        string
	Pickup               types.Point
	DropoffAddress       string
	Dropoff              types.Point
	BaseFare             float64
	DistanceFare         float64
	TotalFare            float64
	ParentNotes          string
}
