package notification

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// PushMessage is one push to one device token
type PushMessage struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// PushResult is the delivery outcome for one token
type PushResult struct {
	Token   string
	Success bool
	// Unregistered is set when FCM reports the token is no longer valid
	Unregistered bool
	Error        error
}

// FCMGateway sends push notifications through Firebase Cloud Messaging
type FCMGateway struct {
	client *messaging.Client
	logger *zap.Logger
}

// NewFCMGateway creates a gateway from a service account file.
// It returns nil when credentials are missing or invalid so that the
// server can still start; a nil gateway reports every push as failed.
func NewFCMGateway(ctx context.Context, credentialsFile string, logger *zap.Logger) *FCMGateway {
	logger = logger.Named("fcm")
	if credentialsFile == "" {
		logger.Warn("Firebase credentials not provided, push notifications disabled")
		return nil
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		logger.Warn("Failed to initialize Firebase app, push notifications disabled", zap.Error(err))
		return nil
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		logger.Warn("Failed to get messaging client, push notifications disabled", zap.Error(err))
		return nil
	}

	logger.Info("Firebase FCM initialized")
	return &FCMGateway{client: client, logger: logger}
}

// Send delivers a batch and returns one result per message, in order
func (g *FCMGateway) Send(ctx context.Context, msgs []PushMessage) ([]PushResult, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	if g == nil || g.client == nil {
		return nil, fmt.Errorf("push gateway not configured")
	}

	batch := make([]*messaging.Message, 0, len(msgs))
	for _, m := range msgs {
		batch = append(batch, &messaging.Message{
			Token: m.Token,
			Notification: &messaging.Notification{
				Title: m.Title,
				Body:  m.Body,
			},
			Data: m.Data,
			Android: &messaging.AndroidConfig{
				Priority: "high",
				Notification: &messaging.AndroidNotification{
					ClickAction: "FLUTTER_NOTIFICATION_CLICK",
				},
			},
			APNS: &messaging.APNSConfig{
				Payload: &messaging.APNSPayload{
					Aps: &messaging.Aps{
						Sound: "default",
					},
				},
			},
		})
	}

	br, err := g.client.SendEach(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("error sending push batch: %w", err)
	}

	results := make([]PushResult, len(msgs))
	for i, resp := range br.Responses {
		results[i] = PushResult{Token: msgs[i].Token, Success: resp.Success, Error: resp.Error}
		if !resp.Success {
			results[i].Unregistered = messaging.IsUnregistered(resp.Error)
			g.logger.Warn("FCM delivery failed", zap.String("token", redactToken(msgs[i].Token)), zap.Error(resp.Error))
		}
	}
	return results, nil
}

// redactToken keeps enough of a registration token to correlate log lines
func redactToken(token string) string {
	const keep = 8
	if len(token) <= keep {
		return "***"
	}
	return token[:keep] + "..."
}
