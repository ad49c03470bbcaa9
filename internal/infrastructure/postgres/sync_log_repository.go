package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finzen/internal/domain/emailsync"
)

type SyncLogRepository struct {
	db *DB
}

func NewSyncLogRepository(db *DB) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

func (r *SyncLogRepository) Create(ctx context.Context, connectionID string, startedAt time.Time) (*emailsync.SyncLog, error) {
	query := `
		INSERT INTO sync_logs (id, connection_id, status, started_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, connection_id, status, started_at
	`

	var log emailsync.SyncLog
	err := r.db.QueryRowContext(
		ctx, query,
		uuid.New().String(), connectionID, string(emailsync.RunInProgress), startedAt,
	).Scan(&log.ID, &log.ConnectionID, &log.Status, &log.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync log: %w", err)
	}
	return &log, nil
}

func (r *SyncLogRepository) Finalize(ctx context.Context, id string, status emailsync.SyncLogStatus, counts emailsync.SyncCounts, errorMessage *string, completedAt time.Time) error {
	query := `
		UPDATE sync_logs
		SET status = $2, emails_found = $3, emails_processed = $4, emails_skipped = $5,
		    transactions_created = $6, error_message = $7, completed_at = $8
		WHERE id = $1
	`

	_, err := r.db.ExecContext(
		ctx, query,
		id, string(status), counts.EmailsFound, counts.EmailsProcessed, counts.EmailsSkipped,
		counts.TransactionsCreated, errorMessage, completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize sync log: %w", err)
	}
	return nil
}

func (r *SyncLogRepository) ListByConnection(ctx context.Context, connectionID string, limit int) ([]*emailsync.SyncLog, error) {
	query := `
		SELECT id, connection_id, status, emails_found, emails_processed, emails_skipped,
		       transactions_created, error_message, started_at, completed_at
		FROM sync_logs
		WHERE connection_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, connectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync logs: %w", err)
	}
	defer rows.Close()

	var logs []*emailsync.SyncLog
	for rows.Next() {
		var log emailsync.SyncLog
		var errorMessage sql.NullString
		var completedAt sql.NullTime

		err := rows.Scan(
			&log.ID, &log.ConnectionID, &log.Status,
			&log.EmailsFound, &log.EmailsProcessed, &log.EmailsSkipped,
			&log.TransactionsCreated, &errorMessage, &log.StartedAt, &completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}

		if errorMessage.Valid {
			log.ErrorMessage = &errorMessage.String
		}
		if completedAt.Valid {
			log.CompletedAt = &completedAt.Time
		}
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}
