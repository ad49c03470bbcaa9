package firebase

import (
	"context"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCM rejects multicasts above 500 tokens.
const multicastLimit = 500

// TokenDeactivator marks a dead FCM token inactive so it is never
// targeted again. Wired to the notification repository by the caller.
type TokenDeactivator func(ctx context.Context, token string) error

// Client delivers pushes over Firebase Cloud Messaging. It implements
// notification.Messenger; budget alerts and sync summaries go out
// through here.
type Client struct {
	fcm        *messaging.Client
	deactivate TokenDeactivator
}

// NewClient builds the Firebase app from a service-account credentials
// file. deactivate may be nil, in which case dead tokens are only logged.
func NewClient(ctx context.Context, credentialsFile string, deactivate TokenDeactivator) (*Client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	fcm, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging client: %w", err)
	}
	return &Client{fcm: fcm, deactivate: deactivate}, nil
}

// Send pushes to a single device token.
func (c *Client) Send(ctx context.Context, token string, title, body string, data map[string]string) error {
	_, err := c.fcm.Send(ctx, &messaging.Message{
		Token:        token,
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         data,
	})
	if err == nil {
		return nil
	}
	if isDeadToken(err) {
		c.pruneToken(ctx, token, err)
		return fmt.Errorf("invalid token: %w", err)
	}
	return fmt.Errorf("failed to send FCM message: %w", err)
}

// SendMulticast pushes to every token, batching to the FCM limit.
// Per-token failures are handled inline and do not fail the call;
// dead tokens get pruned so the next alert skips them.
func (c *Client) SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	var sent, failed int
	for start := 0; start < len(tokens); start += multicastLimit {
		end := min(start+multicastLimit, len(tokens))
		batch := tokens[start:end]

		resp, err := c.fcm.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens:       batch,
			Notification: &messaging.Notification{Title: title, Body: body},
			Data:         data,
		})
		if err != nil {
			return fmt.Errorf("failed to send FCM multicast: %w", err)
		}

		sent += resp.SuccessCount
		failed += resp.FailureCount
		for i, r := range resp.Responses {
			switch {
			case r.Error == nil:
			case isDeadToken(r.Error):
				c.pruneToken(ctx, batch[i], r.Error)
			default:
				log.Printf("FCM send error for token %s: %v", batch[i], r.Error)
			}
		}
	}

	if len(tokens) > 0 {
		log.Printf("FCM multicast: %d sent, %d failed", sent, failed)
	}
	return nil
}

func isDeadToken(err error) bool {
	return messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err)
}

func (c *Client) pruneToken(ctx context.Context, token string, cause error) {
	log.Printf("Deactivating invalid FCM token %s: %v", token, cause)
	if c.deactivate == nil {
		return
	}
	if err := c.deactivate(ctx, token); err != nil {
		log.Printf("Failed to deactivate FCM token %s: %v", token, err)
	}
}
