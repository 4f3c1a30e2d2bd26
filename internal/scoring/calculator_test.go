package scoring

import (
	"testing"
	"time"
)

func TestCalculator_TotalMatchesIncrementalDeltas(t *testing.T) {
	calc := NewCalculator(DefaultFactors(), DefaultCategoryDeltas())

	// two sessions, three page visits, one download, one link click, one tagged page visit
	incremental := calc.EventDelta(EventPagevisit, true) +
		calc.EventDelta(EventPagevisit, false) +
		calc.EventDelta(EventPagevisit, true) +
		calc.EventDelta(EventDownload, false) +
		calc.EventDelta(EventLinkclick, false) +
		calc.CategoryDelta(EventPagevisit)

	total := calc.Total(Activity{
		Sessions:    2,
		Pagevisits:  3,
		Downloads:   1,
		Linkclicks:  1,
		CategorySum: calc.CategoryDelta(EventPagevisit),
	})

	if total != incremental {
		t.Errorf("Expected total %d to equal incremental sum %d", total, incremental)
	}
}

func TestCalculator_ScoreAt(t *testing.T) {
	calc := NewCalculator(Factors{DecayDays: 3}, CategoryDeltas{})
	last := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		total    int
		now      time.Time
		expected int
	}{
		{"same day", 10, last.Add(2 * time.Hour), 10},
		{"six days", 10, last.AddDate(0, 0, 6), 8},
		{"never negative", 1, last.AddDate(0, 0, 30), 0},
		{"clock before activity", 4, last.Add(-time.Hour), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calc.ScoreAt(tt.total, last, tt.now); got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}

	noDecay := NewCalculator(Factors{}, CategoryDeltas{})
	if got := noDecay.ScoreAt(10, last, last.AddDate(1, 0, 0)); got != 10 {
		t.Errorf("Expected decay disabled to keep 10, got %d", got)
	}
}
