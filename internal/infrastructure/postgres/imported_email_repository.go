package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finzen/internal/domain/emailsync"
)

type ImportedEmailRepository struct {
	db *DB
}

func NewImportedEmailRepository(db *DB) *ImportedEmailRepository {
	return &ImportedEmailRepository{db: db}
}

func (r *ImportedEmailRepository) Create(ctx context.Context, params emailsync.CreateImportedEmailParams) (*emailsync.ImportedEmail, error) {
	query := `
		INSERT INTO imported_emails (id, connection_id, message_id, subject, sender, received_at, body, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, connection_id, message_id, subject, sender, received_at, status, created_at
	`

	var email emailsync.ImportedEmail
	var status string
	err := r.db.QueryRowContext(
		ctx, query,
		uuid.New().String(), params.ConnectionID, params.MessageID,
		params.Subject, params.Sender, params.ReceivedAt, params.Body,
		string(emailsync.EmailProcessing),
	).Scan(
		&email.ID, &email.ConnectionID, &email.MessageID,
		&email.Subject, &email.Sender, &email.ReceivedAt, &status, &email.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create imported email: %w", err)
	}

	email.Status = emailsync.EmailStatus(status)
	email.Body = params.Body
	return &email, nil
}

func (r *ImportedEmailRepository) Exists(ctx context.Context, connectionID, messageID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM imported_emails WHERE connection_id = $1 AND message_id = $2)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, connectionID, messageID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check imported email: %w", err)
	}
	return exists, nil
}

func (r *ImportedEmailRepository) HasAny(ctx context.Context, connectionID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM imported_emails WHERE connection_id = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, connectionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check import history: %w", err)
	}
	return exists, nil
}

// Finalize is restricted to rows still in PROCESSING so a terminal
// status is written exactly once.
func (r *ImportedEmailRepository) Finalize(ctx context.Context, id string, status emailsync.EmailStatus, parsedData *string, transactionID *string, errorMessage *string) error {
	query := `
		UPDATE imported_emails
		SET status = $2, parsed_data = $3, transaction_id = $4, error_message = $5, processed_at = $6
		WHERE id = $1 AND status = $7
	`

	result, err := r.db.ExecContext(
		ctx, query,
		id, string(status), parsedData, transactionID, errorMessage,
		time.Now(), string(emailsync.EmailProcessing),
	)
	if err != nil {
		return fmt.Errorf("failed to finalize imported email: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check finalize result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("imported email %s is not in PROCESSING", id)
	}
	return nil
}

func (r *ImportedEmailRepository) ListByConnection(ctx context.Context, connectionID string, limit int) ([]*emailsync.ImportedEmail, error) {
	query := `
		SELECT id, connection_id, message_id, subject, sender, received_at, status,
		       parsed_data, transaction_id, error_message, processed_at, created_at
		FROM imported_emails
		WHERE connection_id = $1
		ORDER BY received_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, connectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query imported emails: %w", err)
	}
	defer rows.Close()

	var emails []*emailsync.ImportedEmail
	for rows.Next() {
		var email emailsync.ImportedEmail
		var status string
		var parsedData, transactionID, errorMessage sql.NullString
		var processedAt sql.NullTime

		err := rows.Scan(
			&email.ID, &email.ConnectionID, &email.MessageID,
			&email.Subject, &email.Sender, &email.ReceivedAt, &status,
			&parsedData, &transactionID, &errorMessage, &processedAt, &email.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan imported email: %w", err)
		}

		email.Status = emailsync.EmailStatus(status)
		if parsedData.Valid {
			email.ParsedData = &parsedData.String
		}
		if transactionID.Valid {
			email.TransactionID = &transactionID.String
		}
		if errorMessage.Valid {
			email.ErrorMessage = &errorMessage.String
		}
		if processedAt.Valid {
			email.ProcessedAt = &processedAt.Time
		}
		emails = append(emails, &email)
	}
	return emails, rows.Err()
}
