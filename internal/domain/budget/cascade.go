package budget

import (
	"context"
	"fmt"
	"log"
	"time"

	"finzen/internal/domain/transaction"
)

// Notification kinds emitted by the recalculator.
const (
	KindBudgetAlert    = "budget_alert"
	KindBudgetExceeded = "budget_exceeded"
)

// Notifier delivers a push notification to a user.
// Implemented by the firebase messenger in the infrastructure layer.
type Notifier interface {
	Notify(ctx context.Context, userID int64, kind, title, body string, data map[string]string) error
}

// ExpenseSummer provides the aggregate sum used to recompute spent.
// Satisfied by transaction.Repository.
type ExpenseSummer interface {
	SumExpenses(ctx context.Context, userID int64, category string, from, to time.Time) (float64, error)
}

// Recalculator recomputes budget spent amounts after a transaction is created
// and emits threshold-crossing alerts. Spent is always a full resum of the
// matching expenses, never an increment, so re-running is idempotent.
type Recalculator struct {
	budgets  Repository
	expenses ExpenseSummer
	notifier Notifier
}

// NewRecalculator creates a new budget recalculator.
func NewRecalculator(budgets Repository, expenses ExpenseSummer, notifier Notifier) *Recalculator {
	return &Recalculator{budgets: budgets, expenses: expenses, notifier: notifier}
}

// OnTransactionCreated recomputes every active budget matching the new
// transaction's (user, category) whose date range contains its date.
// Errors are collected and returned, but each budget is processed
// independently: the created transaction is never rolled back.
func (r *Recalculator) OnTransactionCreated(ctx context.Context, txn *transaction.Transaction) error {
	if txn.Type != transaction.TypeExpense {
		return nil
	}

	budgets, err := r.budgets.ListActiveMatching(ctx, txn.UserID, txn.Category, txn.Date)
	if err != nil {
		return fmt.Errorf("failed to list matching budgets: %w", err)
	}

	var firstErr error
	for _, b := range budgets {
		if err := r.recompute(ctx, b); err != nil {
			log.Printf("Budget recompute failed for budget %s: %v", b.ID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// recompute resums spent for one budget, persists it, and fires crossing
// alerts based on the before/after percentage comparison.
func (r *Recalculator) recompute(ctx context.Context, b *Budget) error {
	spent, err := r.expenses.SumExpenses(ctx, b.UserID, b.Category, b.StartDate, b.EndDate)
	if err != nil {
		return fmt.Errorf("failed to sum expenses: %w", err)
	}

	prevPct := b.PercentSpent()
	b.Spent = spent
	newPct := b.PercentSpent()

	if err := r.budgets.UpdateSpent(ctx, b.ID, spent); err != nil {
		return fmt.Errorf("failed to update spent: %w", err)
	}

	r.emitCrossingAlerts(ctx, b, prevPct, newPct)
	return nil
}

// emitCrossingAlerts fires at most one notification per crossing event.
// A crossing only happens when the previous percentage was below the line and
// the new one is at or above it, so recomputing with an unchanged final state
// never re-fires.
func (r *Recalculator) emitCrossingAlerts(ctx context.Context, b *Budget, prevPct, newPct float64) {
	if r.notifier == nil {
		return
	}

	crossedThreshold := prevPct < b.AlertThreshold && newPct >= b.AlertThreshold && newPct < 100
	crossedLimit := prevPct < 100 && newPct >= 100

	switch {
	case crossedLimit:
		title := "Budget exceeded"
		body := fmt.Sprintf("You spent %.0f%% of your %s budget", newPct, b.Category)
		if err := r.notifier.Notify(ctx, b.UserID, KindBudgetExceeded, title, body, map[string]string{
			"budgetId": b.ID,
			"category": b.Category,
		}); err != nil {
			log.Printf("Failed to send budget exceeded notification for budget %s: %v", b.ID, err)
		}
	case crossedThreshold:
		title := "Budget alert"
		body := fmt.Sprintf("You reached %.0f%% of your %s budget", newPct, b.Category)
		if err := r.notifier.Notify(ctx, b.UserID, KindBudgetAlert, title, body, map[string]string{
			"budgetId": b.ID,
			"category": b.Category,
		}); err != nil {
			log.Printf("Failed to send budget alert notification for budget %s: %v", b.ID, err)
		}
	}
}
