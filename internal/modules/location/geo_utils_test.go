package location

import (
	"math"
	"testing"

	"schoolride/internal/types"
)

func TestHaversineKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		lat1      float64
		lng1      float64
		lat2      float64
		lng2      float64
		wantKm    float64
		tolerance float64
	}{
		{
			name: "same point",
			lat1: 25.033, lng1: 121.565,
			lat2: 25.033, lng2: 121.565,
			wantKm:    0,
			tolerance: 0.001,
		},
		{
			name: "one degree of longitude on the equator",
			lat1: 0, lng1: 0,
			lat2: 0, lng2: 1,
			wantKm:    111.195,
			tolerance: 0.01,
		},
		{
			name: "New York to Los Angeles (~3944km)",
			lat1: 40.7128, lng1: -74.0060,
			lat2: 34.0522, lng2: -118.2437,
			wantKm:    3944,
			tolerance: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := haversineKm(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("haversineKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestDistanceKm_Symmetry(t *testing.T) {
	points := []types.Point{
		{Lat: 25.0, Lng: 121.0},
		{Lat: 26.0, Lng: 122.0},
		{Lat: -33.8688, Lng: 151.2093},
		{Lat: 51.5074, Lng: -0.1278},
		{Lat: 89.9, Lng: 179.9},
		{Lat: -89.9, Lng: -179.9},
	}
	for _, a := range points {
		if d := DistanceKm(a, a); d != 0 {
			t.Errorf("DistanceKm(%v, %v) = %f, want 0", a, a, d)
		}
		for _, b := range points {
			d1 := DistanceKm(a, b)
			d2 := DistanceKm(b, a)
			if math.Abs(d1-d2) > 1e-9 {
				t.Errorf("not symmetric for %v, %v: %f vs %f", a, b, d1, d2)
			}
		}
	}
}

func TestSortByDistance_Drivers(t *testing.T) {
	drivers := []NearbyDriver{
		{DriverID: types.ID("c"), DistanceKm: 5.0},
		{DriverID: types.ID("a"), DistanceKm: 1.0},
		{DriverID: types.ID("b"), DistanceKm: 3.0},
	}

	sortByDistance(drivers, func(d NearbyDriver) float64 { return d.DistanceKm })

	if drivers[0].DriverID != "a" || drivers[1].DriverID != "b" || drivers[2].DriverID != "c" {
		t.Errorf("unexpected sort order: %v", drivers)
	}
}

func TestSortByDistance_Empty(t *testing.T) {
	var drivers []NearbyDriver
	sortByDistance(drivers, func(d NearbyDriver) float64 { return d.DistanceKm })
}
