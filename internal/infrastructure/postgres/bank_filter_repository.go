package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"finzen/internal/domain/connection"
)

type BankFilterRepository struct {
	db *DB
}

func NewBankFilterRepository(db *DB) *BankFilterRepository {
	return &BankFilterRepository{db: db}
}

func (r *BankFilterRepository) CreateBatch(ctx context.Context, params []connection.CreateBankFilterParams) ([]*connection.BankFilter, error) {
	query := `
		INSERT INTO bank_filters (id, connection_id, bank_name, senders, keywords, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id, connection_id, bank_name, senders, keywords, is_active, created_at
	`

	filters := make([]*connection.BankFilter, 0, len(params))
	for _, p := range params {
		var f connection.BankFilter
		err := r.db.QueryRowContext(
			ctx, query,
			uuid.New().String(), p.ConnectionID, p.BankName,
			pq.Array(p.Senders), pq.Array(p.Keywords),
		).Scan(
			&f.ID, &f.ConnectionID, &f.BankName,
			pq.Array(&f.Senders), pq.Array(&f.Keywords), &f.Active, &f.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create bank filter %q: %w", p.BankName, err)
		}
		filters = append(filters, &f)
	}
	return filters, nil
}

func (r *BankFilterRepository) ListByConnection(ctx context.Context, connectionID string) ([]*connection.BankFilter, error) {
	query := `
		SELECT id, connection_id, bank_name, senders, keywords, is_active, created_at
		FROM bank_filters
		WHERE connection_id = $1
		ORDER BY bank_name
	`
	return r.queryFilters(ctx, query, connectionID)
}

func (r *BankFilterRepository) ListActiveByConnection(ctx context.Context, connectionID string) ([]*connection.BankFilter, error) {
	query := `
		SELECT id, connection_id, bank_name, senders, keywords, is_active, created_at
		FROM bank_filters
		WHERE connection_id = $1 AND is_active = TRUE
		ORDER BY bank_name
	`
	return r.queryFilters(ctx, query, connectionID)
}

func (r *BankFilterRepository) SetActive(ctx context.Context, id string, active bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE bank_filters SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to toggle bank filter: %w", err)
	}
	return nil
}

func (r *BankFilterRepository) queryFilters(ctx context.Context, query string, args ...any) ([]*connection.BankFilter, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bank filters: %w", err)
	}
	defer rows.Close()

	var filters []*connection.BankFilter
	for rows.Next() {
		var f connection.BankFilter
		err := rows.Scan(
			&f.ID, &f.ConnectionID, &f.BankName,
			pq.Array(&f.Senders), pq.Array(&f.Keywords), &f.Active, &f.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bank filter: %w", err)
		}
		filters = append(filters, &f)
	}
	return filters, rows.Err()
}
