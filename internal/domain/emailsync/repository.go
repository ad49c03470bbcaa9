package emailsync

import (
	"context"
	"time"
)

// ImportedEmailRepository defines the interface for imported-email data
// access. This interface is defined in the domain layer, but implemented
// in the infrastructure layer
type ImportedEmailRepository interface {
	// Create inserts a new imported email in PROCESSING status
	Create(ctx context.Context, params CreateImportedEmailParams) (*ImportedEmail, error)

	// Exists reports whether (connection, message) was already imported
	Exists(ctx context.Context, connectionID, messageID string) (bool, error)

	// HasAny reports whether any email was ever imported for the
	// connection. Used to distinguish a first sync from an incremental one.
	HasAny(ctx context.Context, connectionID string) (bool, error)

	// Finalize sets the terminal status exactly once
	Finalize(ctx context.Context, id string, status EmailStatus, parsedData *string, transactionID *string, errorMessage *string) error

	// ListByConnection returns the most recent imported emails
	ListByConnection(ctx context.Context, connectionID string, limit int) ([]*ImportedEmail, error)
}

// SyncLogRepository defines the interface for sync-run log data access
type SyncLogRepository interface {
	// Create inserts a new IN_PROGRESS sync log
	Create(ctx context.Context, connectionID string, startedAt time.Time) (*SyncLog, error)

	// Finalize closes the run with its status and counts
	Finalize(ctx context.Context, id string, status SyncLogStatus, counts SyncCounts, errorMessage *string, completedAt time.Time) error

	// ListByConnection returns the most recent sync runs
	ListByConnection(ctx context.Context, connectionID string, limit int) ([]*SyncLog, error)
}
