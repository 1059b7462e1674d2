// README: Route proposal aggregate, waypoints and optimisation plan.
package route

import (
	"time"

	"schoolride/internal/types"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
)

type Waypoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
	Order     *int    `json:"order,omitempty"`
}

func (w Waypoint) Point() types.Point {
	return types.Point{Lat: w.Latitude, Lng: w.Longitude}
}

func WaypointAt(p types.Point, address string) Waypoint {
	return Waypoint{Latitude: p.Lat, Longitude: p.Lng, Address: address}
}

type Route struct {
	ID                       types.ID   `json:"id"`
	SchoolID                 types.ID   `json:"school_id"`
	ProposedDriverID         types.ID   `json:"proposed_driver_id"`
	DriverID                 *types.ID  `json:"driver_id,omitempty"`
	Status                   Status     `json:"status"`
	Name                     string     `json:"name"`
	Description              string     `json:"description,omitempty"`
	Waypoints                []Waypoint `json:"waypoints"`
	EstimatedDistanceKm      *float64   `json:"estimated_distance_km,omitempty"`
	EstimatedDurationMinutes *int       `json:"estimated_duration_minutes,omitempty"`
	IsActive                 bool       `json:"is_active"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

// Plan is the result of ordering waypoints between a start and an end.
type Plan struct {
	Waypoints            []Waypoint `json:"waypoints"`
	TotalDistanceKm      float64    `json:"total_distance_km"`
	TotalDurationMinutes int        `json:"total_duration_minutes"`
}

type CreateCommand struct {
	SchoolID                 types.ID
	ProposedDriverID         types.ID
	Name                     string
	Description              string
	Waypoints                []Waypoint
	EstimatedDistanceKm      *float64
	EstimatedDurationMinutes *int
}

type OptimizeCommand struct {
	SchoolID    types.ID
	DriverID    types.ID
	Waypoints   []Waypoint
	Name        string
	Description string
}

// UpdatePatch is a sparse update; nil fields are left untouched.
type UpdatePatch struct {
	SchoolID    *types.ID
	Name        *string
	Description *string
	Waypoints   *[]Waypoint
	IsActive    *bool
}

type ListFilter struct {
	SchoolID   types.ID
	DriverID   types.ID
	ActiveOnly bool
}

// Event is published when a proposal is made, accepted or rejected.
type Event struct {
	RouteID    types.ID  `json:"route_id"`
	SchoolID   types.ID  `json:"school_id"`
	DriverID   types.ID  `json:"driver_id"`
	Status     Status    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}
