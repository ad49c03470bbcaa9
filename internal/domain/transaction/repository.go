package transaction

import (
	"context"
	"time"
)

// DayMatchCriteria defines the search criteria for finding same-day expense
// matches during email-import deduplication.
type DayMatchCriteria struct {
	UserID   int64
	Amount   float64
	DayStart time.Time // inclusive
	DayEnd   time.Time // exclusive
}

// Repository defines the interface for transaction data access
// This interface is defined in the domain layer, but implemented in the infrastructure layer
type Repository interface {
	// Create creates a new transaction
	Create(ctx context.Context, params CreateTransactionParams) (*Transaction, error)

	// GetByID retrieves a transaction by its ID
	GetByID(ctx context.Context, id string) (*Transaction, error)

	// FindExpensesOnDay finds EXPENSE transactions for the user with the exact
	// amount whose date falls inside [DayStart, DayEnd)
	FindExpensesOnDay(ctx context.Context, criteria DayMatchCriteria) ([]*Transaction, error)

	// SumExpenses returns the sum of EXPENSE amounts for (user, category)
	// with date in [from, to]
	SumExpenses(ctx context.Context, userID int64, category string, from, to time.Time) (float64, error)
}
