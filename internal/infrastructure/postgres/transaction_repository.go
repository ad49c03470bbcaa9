package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finzen/internal/domain/transaction"
)

type TransactionRepository struct {
	db *DB
}

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, params transaction.CreateTransactionParams) (*transaction.Transaction, error) {
	query := `
		INSERT INTO transactions (id, user_id, amount, description, category, transaction_date, type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, user_id, amount, description, category, transaction_date, type, created_at, updated_at
	`

	var txn transaction.Transaction
	err := r.db.QueryRowContext(
		ctx, query,
		uuid.New().String(), params.UserID, params.Amount, params.Description,
		params.Category, params.Date, params.Type,
	).Scan(
		&txn.ID, &txn.UserID, &txn.Amount, &txn.Description,
		&txn.Category, &txn.Date, &txn.Type, &txn.CreatedAt, &txn.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	return &txn, nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*transaction.Transaction, error) {
	query := `
		SELECT id, user_id, amount, description, category, transaction_date, type, created_at, updated_at
		FROM transactions
		WHERE id = $1
	`

	var txn transaction.Transaction
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&txn.ID, &txn.UserID, &txn.Amount, &txn.Description,
		&txn.Category, &txn.Date, &txn.Type, &txn.CreatedAt, &txn.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return &txn, nil
}

func (r *TransactionRepository) FindExpensesOnDay(ctx context.Context, criteria transaction.DayMatchCriteria) ([]*transaction.Transaction, error) {
	query := `
		SELECT id, user_id, amount, description, category, transaction_date, type, created_at, updated_at
		FROM transactions
		WHERE user_id = $1 AND amount = $2 AND type = $3
		  AND transaction_date >= $4 AND transaction_date < $5
	`

	rows, err := r.db.QueryContext(
		ctx, query,
		criteria.UserID, criteria.Amount, transaction.TypeExpense,
		criteria.DayStart, criteria.DayEnd,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query same-day expenses: %w", err)
	}
	defer rows.Close()

	var txns []*transaction.Transaction
	for rows.Next() {
		var txn transaction.Transaction
		err := rows.Scan(
			&txn.ID, &txn.UserID, &txn.Amount, &txn.Description,
			&txn.Category, &txn.Date, &txn.Type, &txn.CreatedAt, &txn.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, &txn)
	}
	return txns, rows.Err()
}

func (r *TransactionRepository) SumExpenses(ctx context.Context, userID int64, category string, from, to time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE user_id = $1 AND category = $2 AND type = $3
		  AND transaction_date >= $4 AND transaction_date <= $5
	`

	var sum float64
	err := r.db.QueryRowContext(ctx, query, userID, category, transaction.TypeExpense, from, to).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum expenses: %w", err)
	}
	return sum, nil
}
