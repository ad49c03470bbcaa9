package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"finzen/internal/domain/transaction"
)

type MockBudgetRepo struct {
	GetByIDFunc            func(ctx context.Context, id string) (*Budget, error)
	ListActiveMatchingFunc func(ctx context.Context, userID int64, category string, date time.Time) ([]*Budget, error)
	UpdateSpentFunc        func(ctx context.Context, id string, spent float64) error
}

func (m *MockBudgetRepo) GetByID(ctx context.Context, id string) (*Budget, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}
func (m *MockBudgetRepo) ListActiveMatching(ctx context.Context, userID int64, category string, date time.Time) ([]*Budget, error) {
	if m.ListActiveMatchingFunc != nil {
		return m.ListActiveMatchingFunc(ctx, userID, category, date)
	}
	return nil, nil
}
func (m *MockBudgetRepo) UpdateSpent(ctx context.Context, id string, spent float64) error {
	if m.UpdateSpentFunc != nil {
		return m.UpdateSpentFunc(ctx, id, spent)
	}
	return nil
}

type MockSummer struct {
	SumExpensesFunc func(ctx context.Context, userID int64, category string, from, to time.Time) (float64, error)
}

func (m *MockSummer) SumExpenses(ctx context.Context, userID int64, category string, from, to time.Time) (float64, error) {
	if m.SumExpensesFunc != nil {
		return m.SumExpensesFunc(ctx, userID, category, from, to)
	}
	return 0, nil
}

type sentNotification struct {
	userID int64
	kind   string
}

type MockNotifier struct {
	sent []sentNotification
	err  error
}

func (m *MockNotifier) Notify(ctx context.Context, userID int64, kind, title, body string, data map[string]string) error {
	m.sent = append(m.sent, sentNotification{userID: userID, kind: kind})
	return m.err
}

func testBudget(spent float64) *Budget {
	return &Budget{
		ID:             "budget-1",
		UserID:         7,
		Category:       "Groceries",
		Amount:         1000,
		Spent:          spent,
		AlertThreshold: 80,
		StartDate:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC),
		Active:         true,
	}
}

func expenseTxn(amount float64) *transaction.Transaction {
	return &transaction.Transaction{
		ID:       "txn-1",
		UserID:   7,
		Amount:   amount,
		Category: "Groceries",
		Date:     time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
		Type:     transaction.TypeExpense,
	}
}

func TestOnTransactionCreated_RecomputesSpentFromSum(t *testing.T) {
	b := testBudget(100)
	var updatedSpent float64

	repo := &MockBudgetRepo{
		ListActiveMatchingFunc: func(ctx context.Context, userID int64, category string, date time.Time) ([]*Budget, error) {
			return []*Budget{b}, nil
		},
		UpdateSpentFunc: func(ctx context.Context, id string, spent float64) error {
			updatedSpent = spent
			return nil
		},
	}
	summer := &MockSummer{
		SumExpensesFunc: func(ctx context.Context, userID int64, category string, from, to time.Time) (float64, error) {
			return 345.50, nil
		},
	}

	r := NewRecalculator(repo, summer, &MockNotifier{})
	if err := r.OnTransactionCreated(context.Background(), expenseTxn(45)); err != nil {
		t.Fatalf("OnTransactionCreated() failed: %v", err)
	}

	// Spent is the aggregate sum, not previous spent plus the new amount
	if updatedSpent != 345.50 {
		t.Errorf("UpdateSpent() got %v, want 345.50", updatedSpent)
	}
}

func TestOnTransactionCreated_IgnoresIncome(t *testing.T) {
	called := false
	repo := &MockBudgetRepo{
		ListActiveMatchingFunc: func(ctx context.Context, userID int64, category string, date time.Time) ([]*Budget, error) {
			called = true
			return nil, nil
		},
	}

	r := NewRecalculator(repo, &MockSummer{}, &MockNotifier{})
	txn := expenseTxn(45)
	txn.Type = transaction.TypeIncome

	if err := r.OnTransactionCreated(context.Background(), txn); err != nil {
		t.Fatalf("OnTransactionCreated() failed: %v", err)
	}
	if called {
		t.Error("income transaction should not touch budgets")
	}
}

func TestEmitAlert_FiresOnceOnThresholdCrossing(t *testing.T) {
	b := testBudget(700) // 70%
	notifier := &MockNotifier{}

	repo := &MockBudgetRepo{
		ListActiveMatchingFunc: func(ctx context.Context, userID int64, category string, date time.Time) ([]*Budget, error) {
			return []*Budget{b}, nil
		},
	}
	summer := &MockSummer{
		SumExpensesFunc: func(ctx context.Context, userID int64, category string, from, to time.Time) (float64, error) {
			return 850, nil // 85%, crosses the 80% threshold
		},
	}

	r := NewRecalculator(repo, summer, notifier)
	if err := r.OnTransactionCreated(context.Background(), expenseTxn(150)); err != nil {
		t.Fatalf("OnTransactionCreated() failed: %v", err)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notifier.sent))
	}
	if notifier.sent[0].kind != KindBudgetAlert {
		t.Errorf("kind = %q, want %q", notifier.sent[0].kind, KindBudgetAlert)
	}

	// Re-running with the same final state must not re-fire: the budget is
	// already at 85%, so there is no crossing anymore.
	if err := r.OnTransactionCreated(context.Background(), expenseTxn(0)); err != nil {
		t.Fatalf("second OnTransactionCreated() failed: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Errorf("got %d notifications after re-run, want still 1", len(notifier.sent))
	}
}

func TestEmitAlert_ExceededWinsOverThreshold(t *testing.T) {
	b := testBudget(700) // 70%
	notifier := &MockNotifier{}

	repo := &MockBudgetRepo{
		ListActiveMatchingFunc: func(ctx context.Context, userID int64, category string, date time.Time) ([]*Budget, error) {
			return []*Budget{b}, nil
		},
	}
	summer := &MockSummer{
		SumExpensesFunc: func(ctx context.Context, userID int64, category string, from, to time.Time) (float64, error) {
			return 1100, nil // jumps straight past 100%
		},
	}

	r := NewRecalculator(repo, summer, notifier)
	if err := r.OnTransactionCreated(context.Background(), expenseTxn(400)); err != nil {
		t.Fatalf("OnTransactionCreated() failed: %v", err)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notifier.sent))
	}
	if notifier.sent[0].kind != KindBudgetExceeded {
		t.Errorf("kind = %q, want %q", notifier.sent[0].kind, KindBudgetExceeded)
	}
}

func TestEmitAlert_NoCrossingNoNotification(t *testing.T) {
	b := testBudget(850) // already at 85%
	notifier := &MockNotifier{}

	repo := &MockBudgetRepo{
		ListActiveMatchingFunc: func(ctx context.Context, userID int64, category string, date time.Time) ([]*Budget, error) {
			return []*Budget{b}, nil
		},
	}
	summer := &MockSummer{
		SumExpensesFunc: func(ctx context.Context, userID int64, category string, from, to time.Time) (float64, error) {
			return 900, nil // still between threshold and 100
		},
	}

	r := NewRecalculator(repo, summer, notifier)
	if err := r.OnTransactionCreated(context.Background(), expenseTxn(50)); err != nil {
		t.Fatalf("OnTransactionCreated() failed: %v", err)
	}

	if len(notifier.sent) != 0 {
		t.Errorf("got %d notifications, want 0", len(notifier.sent))
	}
}

func TestOnTransactionCreated_BudgetErrorDoesNotStopOthers(t *testing.T) {
	b1 := testBudget(0)
	b2 := testBudget(0)
	b2.ID = "budget-2"
	var updated []string

	repo := &MockBudgetRepo{
		ListActiveMatchingFunc: func(ctx context.Context, userID int64, category string, date time.Time) ([]*Budget, error) {
			return []*Budget{b1, b2}, nil
		},
		UpdateSpentFunc: func(ctx context.Context, id string, spent float64) error {
			if id == "budget-1" {
				return errors.New("db down")
			}
			updated = append(updated, id)
			return nil
		},
	}

	r := NewRecalculator(repo, &MockSummer{}, &MockNotifier{})
	err := r.OnTransactionCreated(context.Background(), expenseTxn(10))
	if err == nil {
		t.Error("expected error from failing budget, got nil")
	}
	if len(updated) != 1 || updated[0] != "budget-2" {
		t.Errorf("second budget should still be updated, got %v", updated)
	}
}

func TestPercentSpent_ZeroAmount(t *testing.T) {
	b := &Budget{Amount: 0, Spent: 50}
	if pct := b.PercentSpent(); pct != 0 {
		t.Errorf("PercentSpent() = %v, want 0", pct)
	}
}
