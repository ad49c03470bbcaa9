package budget

import (
	"time"
)

type Budget struct {
	ID             string    `json:"id"`
	UserID         int64     `json:"userId"`
	Category       string    `json:"category"`
	Amount         float64   `json:"amount"`
	Spent          float64   `json:"spent"`
	AlertThreshold float64   `json:"alertThreshold"` // percentage, e.g. 80
	StartDate      time.Time `json:"startDate"`
	EndDate        time.Time `json:"endDate"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// PercentSpent returns spent as a percentage of the budget amount.
// A zero-amount budget reports 0 to avoid division by zero.
func (b *Budget) PercentSpent() float64 {
	if b.Amount <= 0 {
		return 0
	}
	return b.Spent / b.Amount * 100
}
