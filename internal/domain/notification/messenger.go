package notification

import "context"

// Messenger delivers push notifications to device tokens. The FCM
// client in the infrastructure layer implements it; a nil Messenger
// means alerts are stored but never pushed.
type Messenger interface {
	Send(ctx context.Context, token string, title, body string, data map[string]string) error
	SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) error
}
