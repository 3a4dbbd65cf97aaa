package stats

import (
	"testing"
	"time"
)

func resultsWith(percentages ...float64) []ResultView {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	rs := make([]ResultView, len(percentages))
	for i, p := range percentages {
		rs[i] = ResultView{
			ResultID:    string(rune('a' + i)),
			Percentage:  p,
			Passed:      p >= 40,
			ProcessedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return rs
}

func TestAggregateBasics(t *testing.T) {
	c := Aggregate(resultsWith(50, 60, 70, 80))

	if c.Count != 4 {
		t.Errorf("count = %d", c.Count)
	}
	if c.MeanPercentage != 65.00 {
		t.Errorf("mean = %f, want 65.00", c.MeanPercentage)
	}
	if c.MedianPercentage != 65.00 {
		t.Errorf("median = %f, want 65.00", c.MedianPercentage)
	}
	if c.PassCount != 4 {
		t.Errorf("pass count = %d", c.PassCount)
	}

	wantOrder := []float64{80, 70, 60, 50}
	for i, r := range c.Ranked {
		if r.Percentage != wantOrder[i] {
			t.Errorf("rank %d: percentage %f, want %f", i+1, r.Percentage, wantOrder[i])
		}
		if r.Rank != i+1 {
			t.Errorf("rank field = %d, want %d", r.Rank, i+1)
		}
	}
}

func TestAggregateOddMedian(t *testing.T) {
	c := Aggregate(resultsWith(10, 90, 50))
	if c.MedianPercentage != 50.00 {
		t.Errorf("median = %f, want 50.00", c.MedianPercentage)
	}
}

func TestAggregateTieBrokenByProcessedAt(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	rs := []ResultView{
		{ResultID: "later", Percentage: 70, ProcessedAt: base.Add(time.Hour)},
		{ResultID: "earlier", Percentage: 70, ProcessedAt: base},
		{ResultID: "top", Percentage: 95, ProcessedAt: base.Add(2 * time.Hour)},
	}

	c := Aggregate(rs)
	if c.Ranked[0].ResultID != "top" {
		t.Errorf("rank 1 = %s", c.Ranked[0].ResultID)
	}
	if c.Ranked[1].ResultID != "earlier" {
		t.Errorf("tie should favor earlier processedAt, rank 2 = %s", c.Ranked[1].ResultID)
	}
	if c.Ranked[2].ResultID != "later" {
		t.Errorf("rank 3 = %s", c.Ranked[2].ResultID)
	}
}

func TestAggregateEmpty(t *testing.T) {
	c := Aggregate(nil)
	if c.Count != 0 || c.MeanPercentage != 0 || len(c.Ranked) != 0 {
		t.Errorf("empty input should produce zero stats: %+v", c)
	}
}

func TestAggregatePassCount(t *testing.T) {
	rs := resultsWith(30, 45, 80)
	c := Aggregate(rs)
	if c.PassCount != 2 {
		t.Errorf("pass count = %d, want 2", c.PassCount)
	}
}

func TestAggregateRounding(t *testing.T) {
	c := Aggregate(resultsWith(33.33, 33.34, 33.34))
	// (33.33+33.34+33.34)/3 = 33.336666... -> 33.34
	if c.MeanPercentage != 33.34 {
		t.Errorf("mean = %f, want 33.34", c.MeanPercentage)
	}
}
