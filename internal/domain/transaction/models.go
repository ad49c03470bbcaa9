package transaction

import (
	"time"
)

// Transaction types.
const (
	TypeExpense = "EXPENSE"
	TypeIncome  = "INCOME"
)

type Transaction struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"userId"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Date        time.Time `json:"date"`
	Type        string    `json:"type"` // "EXPENSE" or "INCOME"
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type CreateTransactionParams struct {
	UserID      int64
	Amount      float64
	Description string
	Category    string
	Date        time.Time
	Type        string
}
