// README: Nearest-neighbour waypoint ordering with distance and duration estimates.
package route

import (
	"math"

	"schoolride/internal/modules/location"
)

// AverageSpeedKmh is the assumed urban driving speed for duration estimates.
const AverageSpeedKmh = 40.0

// Optimize orders waypoints greedily: from start, always visit the nearest
// unvisited waypoint (the first one wins a tie), then finish at end. The
// returned waypoints carry Order 0..len(waypoints)+1. The input is not mutated.
//
// This is a greedy heuristic in O(n²), not a TSP solver.
func Optimize(waypoints []Waypoint, start, end Waypoint) Plan {
	unvisited := make([]Waypoint, len(waypoints))
	copy(unvisited, waypoints)

	ordered := make([]Waypoint, 0, len(waypoints)+2)
	ordered = append(ordered, withOrder(start, 0))
	current := start
	for len(unvisited) > 0 {
		nearest := 0
		best := location.DistanceKm(current.Point(), unvisited[0].Point())
		for i := 1; i < len(unvisited); i++ {
			if d := location.DistanceKm(current.Point(), unvisited[i].Point()); d < best {
				best = d
				nearest = i
			}
		}
		current = unvisited[nearest]
		ordered = append(ordered, withOrder(current, len(ordered)))
		unvisited = append(unvisited[:nearest], unvisited[nearest+1:]...)
	}
	ordered = append(ordered, withOrder(end, len(ordered)))

	total := TotalDistanceKm(ordered)
	return Plan{
		Waypoints:            ordered,
		TotalDistanceKm:      total,
		TotalDurationMinutes: EstimateDurationMinutes(total),
	}
}

// TotalDistanceKm sums the legs between consecutive waypoints.
func TotalDistanceKm(waypoints []Waypoint) float64 {
	total := 0.0
	for i := 1; i < len(waypoints); i++ {
		total += location.DistanceKm(waypoints[i-1].Point(), waypoints[i].Point())
	}
	return total
}

func EstimateDurationMinutes(distanceKm float64) int {
	return int(math.Round(distanceKm / AverageSpeedKmh * 60))
}

func withOrder(w Waypoint, order int) Waypoint {
	o := order
	w.Order = &o
	return w
}
