package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"finzen/internal/domain/category"
)

type CategoryRepository struct {
	db *DB
}

func NewCategoryRepository(db *DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) ListExpenseNames(ctx context.Context) ([]string, error) {
	query := `SELECT name FROM categories WHERE kind = 'EXPENSE' ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query expense categories: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan category name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// MerchantMappingRepository stores user corrections: once a user
// re-categorizes an imported transaction, the merchant sticks to that
// category on repeat emails.
type MerchantMappingRepository struct {
	db *DB
}

func NewMerchantMappingRepository(db *DB) *MerchantMappingRepository {
	return &MerchantMappingRepository{db: db}
}

func (r *MerchantMappingRepository) Lookup(ctx context.Context, userID int64, merchantName string) (*category.MerchantMapping, error) {
	query := `
		SELECT id, user_id, merchant_name, category, created_at, updated_at
		FROM merchant_mappings
		WHERE user_id = $1 AND merchant_name = $2
	`

	var m category.MerchantMapping
	err := r.db.QueryRowContext(ctx, query, userID, merchantName).Scan(
		&m.ID, &m.UserID, &m.MerchantName, &m.Category, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up merchant mapping: %w", err)
	}
	return &m, nil
}

func (r *MerchantMappingRepository) Save(ctx context.Context, userID int64, merchantName, categoryName string) (*category.MerchantMapping, error) {
	query := `
		INSERT INTO merchant_mappings (id, user_id, merchant_name, category)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, merchant_name) DO UPDATE SET
			category = EXCLUDED.category,
			updated_at = NOW()
		RETURNING id, user_id, merchant_name, category, created_at, updated_at
	`

	var m category.MerchantMapping
	err := r.db.QueryRowContext(ctx, query, uuid.New().String(), userID, merchantName, categoryName).Scan(
		&m.ID, &m.UserID, &m.MerchantName, &m.Category, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save merchant mapping: %w", err)
	}
	return &m, nil
}
