package budget

import (
	"context"
	"time"
)

// Repository defines the interface for budget data access
type Repository interface {
	// GetByID retrieves a budget by its ID
	GetByID(ctx context.Context, id string) (*Budget, error)

	// ListActiveMatching returns all active budgets for (user, category)
	// whose [StartDate, EndDate] range contains date
	ListActiveMatching(ctx context.Context, userID int64, category string, date time.Time) ([]*Budget, error)

	// UpdateSpent overwrites the spent amount for a budget
	UpdateSpent(ctx context.Context, id string, spent float64) error
}
