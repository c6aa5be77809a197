package reliability

import (
	"testing"
	"time"
)

func testEngine(minTrips int) *Engine {
	return NewEngine(DefaultEngineConfig(30*time.Minute, minTrips))
}

func TestIsExemptCancelCode(t *testing.T) {
	e := testEngine(10)

	exempt := []string{"rider_no_show", "safety_concern", "vehicle_breakdown", "rider_requested"}
	for _, code := range exempt {
		if !e.IsExemptCancelCode(code) {
			t.Errorf("expected %q to be exempt", code)
		}
	}

	nonExempt := []string{"driver_unavailable", "changed_mind", "", "RIDER_NO_SHOW"}
	for _, code := range nonExempt {
		if e.IsExemptCancelCode(code) {
			t.Errorf("expected %q to not be exempt", code)
		}
	}
}

func TestCooldownDuration_DefaultPolicy(t *testing.T) {
	e := testEngine(10)
	if got := e.CooldownDuration("driver_unavailable"); got != 30*time.Minute {
		t.Fatalf("expected 30m, got %s", got)
	}
}

func TestCalculateScore_InsufficientData(t *testing.T) {
	e := testEngine(10)
	if s := e.CalculateScore(Aggregate{Awarded: 20, Accepted: 9}); s != nil {
		t.Fatalf("expected nil below minimum sample, got %+v", s)
	}
	if s := e.CalculateScore(Aggregate{}); s != nil {
		t.Fatalf("expected nil for empty aggregate, got %+v", s)
	}
}

func TestCalculateScore_PerfectDriver(t *testing.T) {
	e := testEngine(10)
	s := e.CalculateScore(Aggregate{
		Awarded:       20,
		Accepted:      20,
		DriverCancels: 0,
		OntimePickups: 20,
		TotalPickups:  20,
		HonoredBids:   20,
	})
	if s == nil {
		t.Fatal("expected a score")
	}
	if s.Value != 100 {
		t.Fatalf("expected 100 for a perfect window, got %f", s.Value)
	}
}

func TestCalculateScore_CancellationSubtracts(t *testing.T) {
	e := testEngine(10)
	clean := e.CalculateScore(Aggregate{
		Awarded: 20, Accepted: 20, OntimePickups: 20, TotalPickups: 20, HonoredBids: 20,
	})
	flaky := e.CalculateScore(Aggregate{
		Awarded: 20, Accepted: 20, DriverCancels: 10,
		OntimePickups: 20, TotalPickups: 20, HonoredBids: 20,
	})
	if clean == nil || flaky == nil {
		t.Fatal("expected scores for both drivers")
	}
	if flaky.Value >= clean.Value {
		t.Fatalf("cancellations must lower the score: clean=%f flaky=%f", clean.Value, flaky.Value)
	}
}

func TestCalculateScore_BoundsAndClamping(t *testing.T) {
	e := testEngine(1)
	tests := []struct {
		name string
		agg  Aggregate
	}{
		{"zero pickup denominator", Aggregate{Awarded: 5, Accepted: 5, HonoredBids: 5}},
		{"numerator above denominator", Aggregate{Awarded: 2, Accepted: 5, OntimePickups: 9, TotalPickups: 5, HonoredBids: 9}},
		{"all cancels", Aggregate{Awarded: 5, Accepted: 5, DriverCancels: 5, TotalPickups: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := e.CalculateScore(tt.agg)
			if s == nil {
				t.Fatal("expected a score")
			}
			if s.Value < 0 || s.Value > 100 {
				t.Fatalf("score out of range: %f", s.Value)
			}
			for _, r := range []float64{s.AcceptanceRate, s.CancellationRate, s.OntimeArrival, s.BidHonoring} {
				if r < 0 || r > 1 {
					t.Fatalf("component rate out of range: %f", r)
				}
			}
		})
	}
}
