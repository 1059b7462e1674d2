// README: Driver position snapshots and nearby-driver results.
package location

import (
	"time"

	"schoolride/internal/types"
)

type Snapshot struct {
	ID         int64
	DriverID   types.ID
	Position   types.Point
	RecordedAt time.Time
}

// NearbyDriver is an available driver with its distance from a query point.
type NearbyDriver struct {
	DriverID   types.ID    `json:"driver_id"`
	Position   types.Point `json:"position"`
	DistanceKm float64     `json:"distance_km"`
}
