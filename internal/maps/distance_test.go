package maps

import (
	"math"
	"testing"

	"ridebid/internal/types"
)

func TestHaversineMiles_ZeroDistance(t *testing.T) {
	p := types.Point{Lat: 40.7128, Lng: -74.0060}
	if d := HaversineMiles(p, p); d != 0 {
		t.Fatalf("expected 0 for identical points, got %f", d)
	}
}

func TestHaversineMiles_KnownPair(t *testing.T) {
	// NYC to Philadelphia, roughly 80 miles great-circle.
	nyc := types.Point{Lat: 40.7128, Lng: -74.0060}
	phl := types.Point{Lat: 39.9526, Lng: -75.1652}
	d := HaversineMiles(nyc, phl)
	if math.Abs(d-80.5) > 2.0 {
		t.Fatalf("expected ~80.5 miles, got %f", d)
	}
}

func TestHaversineMiles_Symmetric(t *testing.T) {
	a := types.Point{Lat: 34.0522, Lng: -118.2437}
	b := types.Point{Lat: 36.1699, Lng: -115.1398}
	if d1, d2 := HaversineMiles(a, b), HaversineMiles(b, a); math.Abs(d1-d2) > 1e-9 {
		t.Fatalf("distance not symmetric: %f vs %f", d1, d2)
	}
}
