package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finzen/internal/domain/connection"
	"finzen/internal/infrastructure/crypto"
)

// ConnectionRepository persists mailbox connections. Access and refresh
// tokens are encrypted at rest with AES-GCM.
type ConnectionRepository struct {
	db        *DB
	encryptor *crypto.Encryptor
}

func NewConnectionRepository(db *DB, encryptor *crypto.Encryptor) *ConnectionRepository {
	return &ConnectionRepository{db: db, encryptor: encryptor}
}

const connectionColumns = `
	id, user_id, provider, email_address, access_token, refresh_token,
	token_expires_at, is_active, last_sync_at, last_sync_status, last_sync_error,
	created_at, updated_at
`

func (r *ConnectionRepository) Upsert(ctx context.Context, params connection.UpsertConnectionParams) (*connection.Connection, error) {
	accessToken, err := r.encryptor.Encrypt(params.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	var refreshToken sql.NullString
	if params.RefreshToken != nil {
		enc, err := r.encryptor.Encrypt(*params.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
		refreshToken = sql.NullString{String: enc, Valid: true}
	}

	query := `
		INSERT INTO email_connections (id, user_id, provider, email_address, access_token, refresh_token, token_expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			email_address = EXCLUDED.email_address,
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(EXCLUDED.refresh_token, email_connections.refresh_token),
			token_expires_at = EXCLUDED.token_expires_at,
			is_active = TRUE,
			updated_at = NOW()
		RETURNING ` + connectionColumns

	row := r.db.QueryRowContext(
		ctx, query,
		uuid.New().String(), params.UserID, params.Provider, params.EmailAddress,
		accessToken, refreshToken, params.TokenExpiresAt,
	)
	return r.scanConnection(row)
}

func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*connection.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM email_connections WHERE id = $1`
	conn, err := r.scanConnection(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	return conn, err
}

func (r *ConnectionRepository) GetByUserAndProvider(ctx context.Context, userID int64, providerName string) (*connection.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM email_connections WHERE user_id = $1 AND provider = $2`
	conn, err := r.scanConnection(r.db.QueryRowContext(ctx, query, userID, providerName))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return conn, err
}

func (r *ConnectionRepository) ListByUserID(ctx context.Context, userID int64) ([]*connection.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM email_connections WHERE user_id = $1 ORDER BY created_at`
	return r.queryConnections(ctx, query, userID)
}

func (r *ConnectionRepository) ListActive(ctx context.Context) ([]*connection.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM email_connections WHERE is_active = TRUE ORDER BY created_at`
	return r.queryConnections(ctx, query)
}

// BeginSync claims the connection's sync slot with a conditional
// update: it succeeds only when no run is IN_PROGRESS, or the one that
// is went stale before staleBefore. This makes the in-progress guard a
// compare-and-swap rather than a read-then-write race.
func (r *ConnectionRepository) BeginSync(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	query := `
		UPDATE email_connections
		SET last_sync_status = $2, last_sync_error = NULL, updated_at = NOW()
		WHERE id = $1
		  AND (last_sync_status IS DISTINCT FROM $2 OR updated_at < $3)
	`

	result, err := r.db.ExecContext(ctx, query, id, string(connection.SyncInProgress), staleBefore)
	if err != nil {
		return false, fmt.Errorf("failed to begin sync: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check begin sync result: %w", err)
	}
	return affected == 1, nil
}

// FinishSync records the run outcome. A nil lastSyncAt keeps the
// existing watermark so a failed run does not lose the last good lower
// bound.
func (r *ConnectionRepository) FinishSync(ctx context.Context, id string, status connection.SyncStatus, syncErr *string, lastSyncAt *time.Time) error {
	query := `
		UPDATE email_connections
		SET last_sync_status = $2,
		    last_sync_error = $3,
		    last_sync_at = COALESCE($4, last_sync_at),
		    updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, id, string(status), syncErr, lastSyncAt)
	if err != nil {
		return fmt.Errorf("failed to finish sync: %w", err)
	}
	return nil
}

func (r *ConnectionRepository) UpdateTokens(ctx context.Context, id string, accessToken string, refreshToken *string, expiresAt time.Time) error {
	encAccess, err := r.encryptor.Encrypt(accessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}

	var encRefresh sql.NullString
	if refreshToken != nil {
		enc, err := r.encryptor.Encrypt(*refreshToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
		encRefresh = sql.NullString{String: enc, Valid: true}
	}

	query := `
		UPDATE email_connections
		SET access_token = $2,
		    refresh_token = COALESCE($3, refresh_token),
		    token_expires_at = $4,
		    updated_at = NOW()
		WHERE id = $1
	`

	_, err = r.db.ExecContext(ctx, query, id, encAccess, encRefresh, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	return nil
}

func (r *ConnectionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM email_connections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ConnectionRepository) scanConnection(row rowScanner) (*connection.Connection, error) {
	var conn connection.Connection
	var refreshToken, lastSyncStatus, lastSyncError sql.NullString
	var lastSyncAt sql.NullTime

	err := row.Scan(
		&conn.ID, &conn.UserID, &conn.Provider, &conn.EmailAddress,
		&conn.AccessToken, &refreshToken, &conn.TokenExpiresAt, &conn.Active,
		&lastSyncAt, &lastSyncStatus, &lastSyncError,
		&conn.CreatedAt, &conn.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan connection: %w", err)
	}

	conn.AccessToken, err = r.encryptor.Decrypt(conn.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	if refreshToken.Valid {
		dec, err := r.encryptor.Decrypt(refreshToken.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
		}
		conn.RefreshToken = &dec
	}
	if lastSyncAt.Valid {
		conn.LastSyncAt = &lastSyncAt.Time
	}
	if lastSyncStatus.Valid {
		conn.LastSyncStatus = connection.SyncStatus(lastSyncStatus.String)
	}
	if lastSyncError.Valid {
		conn.LastSyncError = &lastSyncError.String
	}

	return &conn, nil
}

func (r *ConnectionRepository) queryConnections(ctx context.Context, query string, args ...any) ([]*connection.Connection, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer rows.Close()

	var conns []*connection.Connection
	for rows.Next() {
		conn, err := r.scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}
