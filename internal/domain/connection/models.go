package connection

import (
	"time"
)

// SyncStatus is the closed set of connection sync states.
type SyncStatus string

const (
	SyncPending    SyncStatus = "PENDING"
	SyncInProgress SyncStatus = "IN_PROGRESS"
	SyncSuccess    SyncStatus = "SUCCESS"
	SyncFailed     SyncStatus = "FAILED"
)

// Valid reports whether s is a known status.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncPending, SyncInProgress, SyncSuccess, SyncFailed:
		return true
	}
	return false
}

// Terminal reports whether s ends a run.
func (s SyncStatus) Terminal() bool {
	return s == SyncSuccess || s == SyncFailed
}

// Connection is a user's linked mailbox for one provider. At most one
// active connection exists per (user, provider) pair.
type Connection struct {
	ID             string     `json:"id"`
	UserID         int64      `json:"userId"`
	Provider       string     `json:"provider"` // provider.Gmail or provider.Outlook
	EmailAddress   string     `json:"emailAddress"`
	AccessToken    string     `json:"-"`
	RefreshToken   *string    `json:"-"`
	TokenExpiresAt time.Time  `json:"tokenExpiresAt"`
	Active         bool       `json:"active"`
	LastSyncAt     *time.Time `json:"lastSyncAt,omitempty"`
	LastSyncStatus SyncStatus `json:"lastSyncStatus"`
	LastSyncError  *string    `json:"lastSyncError,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type UpsertConnectionParams struct {
	UserID         int64
	Provider       string
	EmailAddress   string
	AccessToken    string
	RefreshToken   *string
	TokenExpiresAt time.Time
}

// BankFilter is one bank's sender/keyword rule attached to a connection.
// Seeded from the country bank catalog at connect time and toggled by
// the user afterwards; never auto-deleted.
type BankFilter struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connectionId"`
	BankName     string    `json:"bankName"`
	Senders      []string  `json:"senders"`
	Keywords     []string  `json:"keywords"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}

type CreateBankFilterParams struct {
	ConnectionID string
	BankName     string
	Senders      []string
	Keywords     []string
}
