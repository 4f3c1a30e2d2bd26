package tracking

import (
	"testing"
	"time"
)

func TestCountUniqueVisits(t *testing.T) {
	base := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		times    []time.Time
		expected int
	}{
		{"no visits", nil, 1},
		{"single visit", []time.Time{base}, 1},
		{"61 minutes apart", []time.Time{base, base.Add(61 * time.Minute)}, 2},
		{"10 minutes apart", []time.Time{base, base.Add(10 * time.Minute)}, 1},
		{"exactly one hour", []time.Time{base, base.Add(time.Hour)}, 2},
		{"unordered input", []time.Time{base.Add(3 * time.Hour), base, base.Add(20 * time.Minute)}, 2},
		{"next day same hour", []time.Time{base, base.AddDate(0, 0, 1)}, 2},
		{"chain of short gaps", []time.Time{base, base.Add(40 * time.Minute), base.Add(80 * time.Minute)}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountUniqueVisits(tt.times); got != tt.expected {
				t.Errorf("Expected %d unique visits, got %d", tt.expected, got)
			}
		})
	}
}

func TestStartsNewSession_MixedLocations(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	prev := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	next := time.Date(2024, 5, 10, 10, 30, 0, 0, berlin) // 09:30 UTC

	if StartsNewSession(prev, next) {
		t.Error("Expected 30 minutes across zones to stay in the same session")
	}
	if !StartsNewSession(time.Time{}, next) {
		t.Error("Expected the first visit to start a session")
	}
}
