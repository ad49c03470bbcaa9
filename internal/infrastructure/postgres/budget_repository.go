package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"finzen/internal/domain/budget"
)

type BudgetRepository struct {
	db *DB
}

func NewBudgetRepository(db *DB) *BudgetRepository {
	return &BudgetRepository{db: db}
}

const budgetColumns = `
	id, user_id, category, amount, spent, alert_threshold,
	start_date, end_date, is_active, created_at, updated_at
`

func (r *BudgetRepository) GetByID(ctx context.Context, id string) (*budget.Budget, error) {
	query := `SELECT ` + budgetColumns + ` FROM budgets WHERE id = $1`

	var b budget.Budget
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.UserID, &b.Category, &b.Amount, &b.Spent, &b.AlertThreshold,
		&b.StartDate, &b.EndDate, &b.Active, &b.CreatedAt, &b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get budget: %w", err)
	}
	return &b, nil
}

func (r *BudgetRepository) ListActiveMatching(ctx context.Context, userID int64, category string, date time.Time) ([]*budget.Budget, error) {
	query := `
		SELECT ` + budgetColumns + `
		FROM budgets
		WHERE user_id = $1 AND category = $2 AND is_active = TRUE
		  AND start_date <= $3 AND end_date >= $3
	`

	rows, err := r.db.QueryContext(ctx, query, userID, category, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query matching budgets: %w", err)
	}
	defer rows.Close()

	var budgets []*budget.Budget
	for rows.Next() {
		var b budget.Budget
		err := rows.Scan(
			&b.ID, &b.UserID, &b.Category, &b.Amount, &b.Spent, &b.AlertThreshold,
			&b.StartDate, &b.EndDate, &b.Active, &b.CreatedAt, &b.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan budget: %w", err)
		}
		budgets = append(budgets, &b)
	}
	return budgets, rows.Err()
}

func (r *BudgetRepository) UpdateSpent(ctx context.Context, id string, spent float64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE budgets SET spent = $2, updated_at = NOW() WHERE id = $1`, id, spent)
	if err != nil {
		return fmt.Errorf("failed to update budget spent: %w", err)
	}
	return nil
}
