// README: FCM-backed gateway: pushes outcome events to driver devices.
package notify

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"

	"ridebid/internal/logger"
)

// TokenResolver maps a driver ID to their current FCM registration token.
type TokenResolver interface {
	TokenForDriver(ctx context.Context, driverID string) (string, error)
}

// FCMGateway delivers events as high-priority data messages so the driver app
// can decide how to surface them.
type FCMGateway struct {
	client *messaging.Client
	tokens TokenResolver
	log    logger.Logger
}

func NewFCMGateway(client *messaging.Client, tokens TokenResolver, log logger.Logger) *FCMGateway {
	return &FCMGateway{client: client, tokens: tokens, log: log}
}

func (g *FCMGateway) Publish(ctx context.Context, ev Event) error {
	token, err := g.tokens.TokenForDriver(ctx, ev.DriverID)
	if err != nil {
		return fmt.Errorf("resolve fcm token for %s: %w", ev.DriverID, err)
	}
	if token == "" {
		// Driver has no registered device; nothing to deliver.
		g.log.Debugf("no fcm token for driver %s, skipping %s", ev.DriverID, ev.Type)
		return nil
	}

	data := map[string]string{
		"type":      string(ev.Type),
		"ride_id":   ev.RideID,
		"driver_id": ev.DriverID,
	}
	for k, v := range ev.Payload {
		data[k] = v
	}

	msg := &messaging.Message{
		Token: token,
		Data:  data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
				},
			},
		},
	}

	if _, err := g.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("send fcm message: %w", err)
	}
	return nil
}
