// README: Distance estimation used to bound bid amounts when a request carries no distance.
package maps

import (
	"context"
	"fmt"
	"math"

	gmaps "googlemaps.github.io/maps"

	"ridebid/internal/types"
)

const (
	earthRadiusMiles = 3958.8
	metersPerMile    = 1609.344
)

// Estimator returns an estimated driving distance in miles between two points.
type Estimator interface {
	DistanceMiles(ctx context.Context, pickup, dropoff types.Point) (float64, error)
}

// RouteEstimator queries the Google Maps Directions API and falls back to the
// great-circle distance when the API is unavailable or returns no route.
type RouteEstimator struct {
	client *gmaps.Client
}

func NewRouteEstimator(apiKey string) (*RouteEstimator, error) {
	client, err := gmaps.NewClient(gmaps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteEstimator{client: client}, nil
}

func (e *RouteEstimator) DistanceMiles(ctx context.Context, pickup, dropoff types.Point) (float64, error) {
	r := &gmaps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", pickup.Lat, pickup.Lng),
		Destination: fmt.Sprintf("%f,%f", dropoff.Lat, dropoff.Lng),
		Mode:        gmaps.TravelModeDriving,
	}
	routes, _, err := e.client.Directions(ctx, r)
	if err != nil || len(routes) == 0 || len(routes[0].Legs) == 0 {
		// Road distance beats nothing, but straight-line beats an error.
		return HaversineMiles(pickup, dropoff), nil
	}
	return float64(routes[0].Legs[0].Distance.Meters) / metersPerMile, nil
}

// HaversineEstimator computes straight-line distance only. Used when no maps
// API key is configured.
type HaversineEstimator struct{}

func (HaversineEstimator) DistanceMiles(_ context.Context, pickup, dropoff types.Point) (float64, error) {
	return HaversineMiles(pickup, dropoff), nil
}

// HaversineMiles returns the great-circle distance in miles between two
// points specified in decimal degrees.
func HaversineMiles(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMiles * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
