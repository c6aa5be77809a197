package bidding

import (
	"math"
	"testing"
)

func newTestValidator() *Validator {
	return NewValidator(5.0, 7.5, 2.5)
}

func TestValidate_SpecScenarios(t *testing.T) {
	// 2-mile ride, min=5, maxPerMile=7.5 -> ceiling = 20.
	v := newTestValidator()
	tests := []struct {
		name       string
		raw        float64
		distance   float64
		wantAmount float64
		wantClamp  ClampDirection
	}{
		{"in range unclamped", 12, 2, 12, ClampNone},
		{"below minimum raised", 2, 2, 5, ClampUp},
		{"above ceiling lowered", 50, 2, 20, ClampDown},
		{"exactly minimum", 5, 2, 5, ClampNone},
		{"exactly ceiling", 20, 2, 20, ClampNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(tt.raw, tt.distance)
			if got.Amount != tt.wantAmount {
				t.Errorf("Validate(%v, %v).Amount = %v, want %v", tt.raw, tt.distance, got.Amount, tt.wantAmount)
			}
			if got.ClampDirection != tt.wantClamp {
				t.Errorf("Validate(%v, %v).ClampDirection = %v, want %v", tt.raw, tt.distance, got.ClampDirection, tt.wantClamp)
			}
			if got.WasClamped != (tt.wantClamp != ClampNone) {
				t.Errorf("WasClamped inconsistent with direction %v", got.ClampDirection)
			}
		})
	}
}

func TestValidate_NonFiniteYieldsMinimum(t *testing.T) {
	v := newTestValidator()
	for _, raw := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		got := v.Validate(raw, 2)
		if got.Amount != 5 {
			t.Errorf("Validate(%v) = %v, want exactly minimum fare", raw, got.Amount)
		}
	}
}

func TestValidateString_Malformed(t *testing.T) {
	v := newTestValidator()
	for _, raw := range []string{"", "abc", "12.3.4", "NaN", "+Inf"} {
		got := v.ValidateString(raw, 2)
		if got.Amount != 5 {
			t.Errorf("ValidateString(%q) = %v, want minimum fare", raw, got.Amount)
		}
	}
	if got := v.ValidateString("12.50", 2); got.Amount != 12.5 || got.WasClamped {
		t.Errorf("ValidateString(\"12.50\") = %+v, want 12.5 unclamped", got)
	}
}

func TestValidate_ResultAlwaysInRange(t *testing.T) {
	v := newTestValidator()
	amounts := []float64{-100, -0.01, 0, 0.01, 4.99, 5, 19.99, 20, 20.01, 1e9}
	distances := []float64{0.1, 1, 2, 2.5, 10, 100}
	for _, d := range distances {
		ceiling := 5 + d*7.5
		for _, a := range amounts {
			got := v.Validate(a, d)
			if got.Amount < 5 || got.Amount > ceiling+0.005 {
				t.Errorf("Validate(%v, %v) = %v outside [5, %v]", a, d, got.Amount, ceiling)
			}
		}
	}
}

func TestValidate_Idempotent(t *testing.T) {
	v := newTestValidator()
	for _, a := range []float64{-3, 0, 2, 7.77, 12.345, 50, 1e6} {
		first := v.Validate(a, 2)
		second := v.Validate(first.Amount, 2)
		if second.Amount != first.Amount {
			t.Errorf("not idempotent: Validate(%v) = %v, revalidated = %v", a, first.Amount, second.Amount)
		}
		if second.WasClamped {
			t.Errorf("revalidating a clamped amount must not clamp again: %v", first.Amount)
		}
	}
}

func TestValidate_MissingDistanceUsesFallback(t *testing.T) {
	v := newTestValidator()
	// Fallback distance 2.5 -> ceiling = 5 + 2.5*7.5 = 23.75.
	for _, d := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		got := v.Validate(100, d)
		if got.Amount != 23.75 {
			t.Errorf("Validate(100, %v) = %v, want fallback ceiling 23.75", d, got.Amount)
		}
	}
}

func TestValidate_RoundsHalfUpToTwoDecimals(t *testing.T) {
	v := newTestValidator()
	tests := []struct {
		raw  float64
		want float64
	}{
		{12.344, 12.34},
		{12.346, 12.35},
		// 12.375 is exactly representable in binary, so the half-up rule
		// is observable without float noise.
		{12.375, 12.38},
	}
	for _, tt := range tests {
		if got := v.Validate(tt.raw, 2); got.Amount != tt.want {
			t.Errorf("Validate(%v) = %v, want %v", tt.raw, got.Amount, tt.want)
		}
	}
}
