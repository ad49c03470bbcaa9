package connection

import (
	"context"
	"time"
)

// Repository defines the interface for connection data access
// This interface is defined in the domain layer, but implemented in the infrastructure layer
type Repository interface {
	// Upsert creates or replaces the connection for (user, provider),
	// keeping the at-most-one-active invariant
	Upsert(ctx context.Context, params UpsertConnectionParams) (*Connection, error)

	// GetByID retrieves a connection by its ID
	GetByID(ctx context.Context, id string) (*Connection, error)

	// GetByUserAndProvider retrieves the active connection for (user, provider)
	GetByUserAndProvider(ctx context.Context, userID int64, providerName string) (*Connection, error)

	// ListByUserID retrieves all active connections for a user
	ListByUserID(ctx context.Context, userID int64) ([]*Connection, error)

	// ListActive retrieves every active connection (scheduler input)
	ListActive(ctx context.Context) ([]*Connection, error)

	// BeginSync atomically moves the connection to IN_PROGRESS.
	// The update is conditional: it only succeeds when the current status
	// is not IN_PROGRESS, or when the row was last touched before
	// staleBefore (an abandoned run). Returns false when another run
	// holds the connection.
	BeginSync(ctx context.Context, id string, staleBefore time.Time) (bool, error)

	// FinishSync records the terminal status of a run. lastSyncAt is only
	// advanced when non-nil, so a failed run keeps the previous watermark.
	FinishSync(ctx context.Context, id string, status SyncStatus, syncErr *string, lastSyncAt *time.Time) error

	// UpdateTokens persists refreshed tokens
	UpdateTokens(ctx context.Context, id string, accessToken string, refreshToken *string, expiresAt time.Time) error

	// Delete removes a connection and its bank filters
	Delete(ctx context.Context, id string) error
}

// BankFilterRepository defines the interface for bank filter data access
type BankFilterRepository interface {
	// CreateBatch creates filters for a freshly connected mailbox
	CreateBatch(ctx context.Context, params []CreateBankFilterParams) ([]*BankFilter, error)

	// ListByConnection returns all filters for a connection
	ListByConnection(ctx context.Context, connectionID string) ([]*BankFilter, error)

	// ListActiveByConnection returns only the active filters
	ListActiveByConnection(ctx context.Context, connectionID string) ([]*BankFilter, error)

	// SetActive toggles a filter
	SetActive(ctx context.Context, id string, active bool) error
}
