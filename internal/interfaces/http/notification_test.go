package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"finzen/internal/domain/notification"
)

// MockNotificationRepo implements notification.Repository for testing
type MockNotificationRepo struct {
	UpsertDeviceTokenFunc       func(ctx context.Context, params notification.CreateDeviceTokenParams) (*notification.DeviceToken, error)
	GetActiveTokensByUserIDFunc func(ctx context.Context, userID int64) ([]*notification.DeviceToken, error)
	DeactivateTokenFunc         func(ctx context.Context, token string) error
	CreateNotificationFunc      func(ctx context.Context, params notification.CreateNotificationParams) (*notification.Notification, error)
	ListByUserIDFunc            func(ctx context.Context, userID int64, page, perPage int) ([]*notification.Notification, int, error)
	MarkOpenedFunc              func(ctx context.Context, notificationID string, userID int64) error
}

func (m *MockNotificationRepo) UpsertDeviceToken(ctx context.Context, params notification.CreateDeviceTokenParams) (*notification.DeviceToken, error) {
	if m.UpsertDeviceTokenFunc != nil {
		return m.UpsertDeviceTokenFunc(ctx, params)
	}
	return &notification.DeviceToken{ID: "dt-1", UserID: params.UserID, Token: params.Token, DeviceType: params.DeviceType, IsActive: true}, nil
}

func (m *MockNotificationRepo) GetActiveTokensByUserID(ctx context.Context, userID int64) ([]*notification.DeviceToken, error) {
	if m.GetActiveTokensByUserIDFunc != nil {
		return m.GetActiveTokensByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockNotificationRepo) DeactivateToken(ctx context.Context, token string) error {
	if m.DeactivateTokenFunc != nil {
		return m.DeactivateTokenFunc(ctx, token)
	}
	return nil
}

func (m *MockNotificationRepo) CreateNotification(ctx context.Context, params notification.CreateNotificationParams) (*notification.Notification, error) {
	if m.CreateNotificationFunc != nil {
		return m.CreateNotificationFunc(ctx, params)
	}
	return &notification.Notification{ID: "n-1"}, nil
}

func (m *MockNotificationRepo) ListByUserID(ctx context.Context, userID int64, page, perPage int) ([]*notification.Notification, int, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID, page, perPage)
	}
	return nil, 0, nil
}

func (m *MockNotificationRepo) MarkOpened(ctx context.Context, notificationID string, userID int64) error {
	if m.MarkOpenedFunc != nil {
		return m.MarkOpenedFunc(ctx, notificationID, userID)
	}
	return nil
}

func newNotificationHandler(repo *MockNotificationRepo) *NotificationHandler {
	return NewNotificationHandler(notification.NewService(repo, nil))
}

func TestHandleNotifications(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := &MockNotificationRepo{
		ListByUserIDFunc: func(ctx context.Context, userID int64, page, perPage int) ([]*notification.Notification, int, error) {
			if userID != 1 {
				t.Errorf("userID = %d, want 1", userID)
			}
			return []*notification.Notification{
				{
					ID:        "n-1",
					UserID:    userID,
					Kind:      "budget_alert",
					Title:     "Budget alert",
					Message:   "Dining is at 85% of its limit",
					Data:      map[string]string{"kind": "budget_alert", "budget_id": "b-1"},
					CreatedAt: created,
				},
			}, 41, nil
		},
	}
	h := newNotificationHandler(repo)

	r := authedRequest(http.MethodGet, "/api/notifications/?page=2&per_page=10", "")
	w := httptest.NewRecorder()

	h.HandleNotifications(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp NotificationListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if len(resp.Notifications) != 1 {
		t.Fatalf("got %d notifications, want 1", len(resp.Notifications))
	}
	n := resp.Notifications[0]
	if n.Kind != "budget_alert" || n.Data["budget_id"] != "b-1" {
		t.Errorf("unexpected notification: %+v", n)
	}
	if n.CreatedAt != "2025-06-01T12:00:00Z" {
		t.Errorf("created_at = %q", n.CreatedAt)
	}
	if n.OpenedAt != nil {
		t.Errorf("opened_at = %v, want nil", *n.OpenedAt)
	}
	if resp.Pagination.Page != 2 || resp.Pagination.PerPage != 10 || resp.Pagination.Total != 41 || resp.Pagination.Pages != 5 {
		t.Errorf("unexpected pagination: %+v", resp.Pagination)
	}
}

func TestHandleNotifications_DefaultPagination(t *testing.T) {
	var gotPage, gotPerPage int
	repo := &MockNotificationRepo{
		ListByUserIDFunc: func(ctx context.Context, userID int64, page, perPage int) ([]*notification.Notification, int, error) {
			gotPage, gotPerPage = page, perPage
			return nil, 0, nil
		},
	}
	h := newNotificationHandler(repo)

	r := authedRequest(http.MethodGet, "/api/notifications/", "")
	w := httptest.NewRecorder()

	h.HandleNotifications(w, r)

	if gotPage != 1 || gotPerPage != 20 {
		t.Errorf("pagination = (%d, %d), want (1, 20)", gotPage, gotPerPage)
	}
}

func TestHandleNotificationByID_MarksOpened(t *testing.T) {
	var markedID string
	repo := &MockNotificationRepo{
		MarkOpenedFunc: func(ctx context.Context, notificationID string, userID int64) error {
			markedID = notificationID
			return nil
		},
	}
	h := newNotificationHandler(repo)

	r := authedRequest(http.MethodPut, "/api/notifications/n-7", "")
	r.SetPathValue("id", "n-7")
	w := httptest.NewRecorder()

	h.HandleNotificationByID(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if markedID != "n-7" {
		t.Errorf("marked id = %q, want n-7", markedID)
	}
}

func TestHandleNotificationByID_NotFound(t *testing.T) {
	repo := &MockNotificationRepo{
		MarkOpenedFunc: func(ctx context.Context, notificationID string, userID int64) error {
			return notification.ErrNotificationNotFound
		},
	}
	h := newNotificationHandler(repo)

	r := authedRequest(http.MethodPut, "/api/notifications/missing", "")
	r.SetPathValue("id", "missing")
	w := httptest.NewRecorder()

	h.HandleNotificationByID(w, r)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestHandleRegisterDevice(t *testing.T) {
	var registered notification.CreateDeviceTokenParams
	repo := &MockNotificationRepo{
		UpsertDeviceTokenFunc: func(ctx context.Context, params notification.CreateDeviceTokenParams) (*notification.DeviceToken, error) {
			registered = params
			return &notification.DeviceToken{ID: "dt-1", UserID: params.UserID, Token: params.Token, DeviceType: params.DeviceType, IsActive: true}, nil
		},
	}
	h := newNotificationHandler(repo)

	r := authedRequest(http.MethodPost, "/api/notifications/register-device/", `{"token":"fcm-token-abc","device_type":"ios"}`)
	w := httptest.NewRecorder()

	h.HandleRegisterDevice(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if registered.UserID != 1 || registered.Token != "fcm-token-abc" || registered.DeviceType != "ios" {
		t.Errorf("unexpected params: %+v", registered)
	}
}

func TestHandleRegisterDevice_InvalidDeviceType(t *testing.T) {
	h := newNotificationHandler(&MockNotificationRepo{})

	r := authedRequest(http.MethodPost, "/api/notifications/register-device/", `{"token":"fcm-token-abc","device_type":"desktop"}`)
	w := httptest.NewRecorder()

	h.HandleRegisterDevice(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleRegisterDevice_BadJSON(t *testing.T) {
	h := newNotificationHandler(&MockNotificationRepo{})

	r := authedRequest(http.MethodPost, "/api/notifications/register-device/", `{not json`)
	w := httptest.NewRecorder()

	h.HandleRegisterDevice(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}
