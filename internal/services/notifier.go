package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/token"

	"github.com/AlexDid/simple-debts-api/internal/models"
)

// PushNotifier delivers APNs pushes to a user's registered device
// tokens. A nil *PushNotifier is valid and does nothing, so pushes can
// be left unconfigured.
type PushNotifier struct {
	client *apns2.Client
	topic  string
}

// NewPushNotifier creates a push notifier from a .p8 signing key.
func NewPushNotifier(keyPath, keyID, teamID, topic string, production bool) (*PushNotifier, error) {
	authKey, err := token.AuthKeyFromFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   keyID,
		TeamID:  teamID,
	})
	if production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &PushNotifier{client: client, topic: topic}, nil
}

// Push sends an alert to every device token the user registered.
// Failures are logged per token and never surfaced.
func (n *PushNotifier) Push(ctx context.Context, user *models.User, alert string) {
	if n == nil || user == nil {
		return
	}

	payload := fmt.Sprintf(`{"aps":{"alert":%q}}`, alert)
	for _, deviceToken := range user.PushTokens {
		notification := &apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       n.topic,
			Payload:     []byte(payload),
		}

		res, err := n.client.PushWithContext(ctx, notification)
		if err != nil {
			log.Error().
				Err(err).
				Str("user_id", user.ID).
				Msg("Failed to send push notification")
			continue
		}
		if !res.Sent() {
			log.Warn().
				Str("user_id", user.ID).
				Str("reason", res.Reason).
				Msg("Push notification rejected")
		}
	}
}
