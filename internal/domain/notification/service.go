package notification

import (
	"context"
	"errors"
	"log"
)

// Service contains the business logic for notification operations.
// It satisfies budget.Notifier: the recalculator's threshold alerts
// land here.
type Service struct {
	repo      Repository
	messenger Messenger
}

// NewService creates a new notification service
func NewService(repo Repository, messenger Messenger) *Service {
	return &Service{repo: repo, messenger: messenger}
}

// RegisterDevice registers a device token for the authenticated user.
// If the token already belongs to another user, it is reassigned.
func (s *Service) RegisterDevice(ctx context.Context, params CreateDeviceTokenParams) (*DeviceToken, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return s.repo.UpsertDeviceToken(ctx, params)
}

// Notify delivers a push notification to every active device of the
// user and stores the record. Push delivery failures are logged, not
// returned: the stored record is the source of truth.
func (s *Service) Notify(ctx context.Context, userID int64, kind, title, body string, data map[string]string) error {
	if data == nil {
		data = make(map[string]string)
	}
	if _, ok := data["kind"]; !ok {
		data["kind"] = kind
	}

	if s.messenger != nil {
		tokens, err := s.repo.GetActiveTokensByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if len(tokens) == 0 {
			log.Printf("No active device tokens for user %d", userID)
		} else {
			tokenStrings := make([]string, len(tokens))
			for i, t := range tokens {
				tokenStrings[i] = t.Token
			}
			if err := s.messenger.SendMulticast(ctx, tokenStrings, title, body, data); err != nil {
				log.Printf("Error sending notification to user %d: %v", userID, err)
			}
		}
	}

	if _, err := s.repo.CreateNotification(ctx, CreateNotificationParams{
		UserID: userID,
		Kind:   kind,
		Title:  title,
		Body:   body,
		Data:   data,
	}); err != nil {
		log.Printf("Error storing notification for user %d: %v", userID, err)
	}

	return nil
}

// ListNotifications returns paginated notifications for a user
func (s *Service) ListNotifications(ctx context.Context, userID int64, page, perPage int) ([]*Notification, int, error) {
	if userID <= 0 {
		return nil, 0, errors.New("valid user ID is required")
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	return s.repo.ListByUserID(ctx, userID, page, perPage)
}

// MarkNotificationOpened marks a notification as opened by the authenticated user
func (s *Service) MarkNotificationOpened(ctx context.Context, notificationID string, userID int64) error {
	if notificationID == "" {
		return errors.New("notification ID is required")
	}
	if userID <= 0 {
		return errors.New("valid user ID is required")
	}

	return s.repo.MarkOpened(ctx, notificationID, userID)
}
