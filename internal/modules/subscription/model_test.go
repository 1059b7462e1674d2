package subscription

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusActive, StatusPaused, true},
		{StatusActive, StatusCancelled, true},
		{StatusActive, StatusExpired, true},
		{StatusPaused, StatusActive, true},
		{StatusPaused, StatusCancelled, true},
		{StatusActive, StatusActive, false},
		{StatusCancelled, StatusActive, false},
		{StatusCancelled, StatusPaused, false},
		{StatusExpired, StatusActive, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCanGenerate(t *testing.T) {
	for _, st := range []Status{StatusActive, StatusPaused, StatusCancelled, StatusExpired} {
		for _, auto := range []bool{true, false} {
			s := &Subscription{Status: st, AutoGenerateRides: auto}
			want := st == StatusActive && auto
			if got := CanGenerate(s); got != want {
				t.Errorf("CanGenerate(%s, auto=%v) = %v, want %v", st, auto, got, want)
			}
		}
	}
}

func TestCountRidesInPeriod(t *testing.T) {
	cases := []struct {
		name       string
		start, end time.Time
		days       []int
		want       int
	}{
		{"one week mon/wed/fri", date(2024, 1, 1), date(2024, 1, 7), []int{1, 3, 5}, 3},
		{"single day match", date(2024, 1, 1), date(2024, 1, 1), []int{1}, 1},
		{"single day miss", date(2024, 1, 1), date(2024, 1, 1), []int{0}, 0},
		{"every day of january", date(2024, 1, 1), date(2024, 1, 31), []int{0, 1, 2, 3, 4, 5, 6}, 31},
		{"end before start", date(2024, 1, 7), date(2024, 1, 1), []int{1}, 0},
	}
	for _, tc := range cases {
		if got := CountRidesInPeriod(tc.start, tc.end, tc.days); got != tc.want {
			t.Errorf("%s: CountRidesInPeriod() = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestDefaultEndDate(t *testing.T) {
	start := date(2024, 1, 15)
	if got := DefaultEndDate(TypeWeekly, start); !got.Equal(date(2024, 4, 15)) {
		t.Errorf("weekly default end = %v", got)
	}
	if got := DefaultEndDate(TypeMonthly, start); !got.Equal(date(2024, 7, 15)) {
		t.Errorf("monthly default end = %v", got)
	}
}
