// Package fcm implements notify.Messenger on Firebase Cloud Messaging.
// Messages go to per-user topics, so the service never tracks device
// tokens; devices subscribe to their user's topic on login.
package fcm

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"linka/internal/notify"
)

// Client sends push notifications through FCM topics.
type Client struct {
	msgClient *messaging.Client
	log       zerolog.Logger
}

var _ notify.Messenger = (*Client)(nil)

// NewClient initializes a Firebase app and returns an FCM client.
// credentialsFile may be empty to use application default credentials.
func NewClient(ctx context.Context, projectID, credentialsFile string, log zerolog.Logger) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging client: %w", err)
	}

	return &Client{
		msgClient: msgClient,
		log:       log.With().Str("component", "fcm").Logger(),
	}, nil
}

// Send publishes a notification to the user's topic. All of the user's
// subscribed devices receive it.
func (c *Client) Send(ctx context.Context, userID, title, body string, data map[string]string) error {
	msg := &messaging.Message{
		Topic: userTopic(userID),
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	}

	id, err := c.msgClient.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to send FCM message to user %s: %w", userID, err)
	}
	c.log.Debug().Str("userId", userID).Str("messageId", id).Msg("push notification sent")
	return nil
}

func userTopic(userID string) string {
	return "user-" + userID
}
