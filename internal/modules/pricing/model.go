// README: Fare rate definition and quote shapes.
package pricing

import "schoolride/internal/types"

// DefaultPerKmRate applies when neither config nor a school override sets one.
const DefaultPerKmRate = 1.5

// Rate is a per-school override of the per-kilometre fare.
type Rate struct {
	SchoolID  types.ID
	PerKmRate float64
}

type QuoteRequest struct {
	Pickup   types.Point
	Dropoff  types.Point
	BaseFare float64
	SchoolID types.ID
}

type Quote struct {
	DistanceKm   float64 `json:"distance_km"`
	BaseFare     float64 `json:"base_fare"`
	DistanceFare float64 `json:"distance_fare"`
	TotalFare    float64 `json:"total_fare"`
	PerKmRate    float64 `json:"per_km_rate"`
}
