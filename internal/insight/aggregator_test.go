package insight

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/insight-engine/internal/domain"
)

// fakeReader is a function-field mock for store.TransactionReader.
type fakeReader struct {
	ListIncomeFunc   func(ctx context.Context, userID string, since time.Time) ([]domain.Income, error)
	ListExpensesFunc func(ctx context.Context, userID string, since time.Time) ([]domain.Expense, error)
}

func (f *fakeReader) ListIncome(ctx context.Context, userID string, since time.Time) ([]domain.Income, error) {
	if f.ListIncomeFunc != nil {
		return f.ListIncomeFunc(ctx, userID, since)
	}
	return nil, nil
}

func (f *fakeReader) ListExpenses(ctx context.Context, userID string, since time.Time) ([]domain.Expense, error) {
	if f.ListExpensesFunc != nil {
		return f.ListExpensesFunc(ctx, userID, since)
	}
	return nil, nil
}

func TestFigures_SumsAndCategoryTotals(t *testing.T) {
	reader := &fakeReader{
		ListIncomeFunc: func(ctx context.Context, userID string, since time.Time) ([]domain.Income, error) {
			return []domain.Income{{Source: "Salary", Amount: 200}}, nil
		},
		ListExpensesFunc: func(ctx context.Context, userID string, since time.Time) ([]domain.Expense, error) {
			return []domain.Expense{
				{Category: "Food", Amount: 50},
				{Category: "Food", Amount: 45},
			}, nil
		},
	}

	fig, err := NewAggregator(reader).Figures(context.Background(), "u1", domain.WindowWeekly)
	if err != nil {
		t.Fatalf("Figures: %v", err)
	}

	if fig.TotalIncome != 200 {
		t.Errorf("TotalIncome = %v, want 200", fig.TotalIncome)
	}
	if fig.TotalExpense != 95 {
		t.Errorf("TotalExpense = %v, want 95", fig.TotalExpense)
	}
	if fig.Balance != 105 {
		t.Errorf("Balance = %v, want 105", fig.Balance)
	}
	if fig.IncomeCount != 1 || fig.ExpenseCount != 2 {
		t.Errorf("counts = %d income / %d expense, want 1/2", fig.IncomeCount, fig.ExpenseCount)
	}
	if got := fig.CategoryTotals["Food"]; got != 95 {
		t.Errorf("CategoryTotals[Food] = %v, want 95", got)
	}
	if len(fig.CategoryTotals) != 1 {
		t.Errorf("expected a single category, got %v", fig.CategoryTotals)
	}
}

func TestFigures_NegativeBalance(t *testing.T) {
	reader := &fakeReader{
		ListIncomeFunc: func(ctx context.Context, userID string, since time.Time) ([]domain.Income, error) {
			return []domain.Income{{Source: "Salary", Amount: 1000}}, nil
		},
		ListExpensesFunc: func(ctx context.Context, userID string, since time.Time) ([]domain.Expense, error) {
			return []domain.Expense{{Category: "Rent", Amount: 1300}}, nil
		},
	}

	fig, err := NewAggregator(reader).Figures(context.Background(), "u1", domain.WindowWeekly)
	if err != nil {
		t.Fatalf("Figures: %v", err)
	}
	if fig.Balance != -300 {
		t.Errorf("Balance = %v, want -300", fig.Balance)
	}
}

func TestFigures_IncomeReadFailureAborts(t *testing.T) {
	expenseCalled := false
	reader := &fakeReader{
		ListIncomeFunc: func(ctx context.Context, userID string, since time.Time) ([]domain.Income, error) {
			return nil, errors.New("backend unavailable")
		},
		ListExpensesFunc: func(ctx context.Context, userID string, since time.Time) ([]domain.Expense, error) {
			expenseCalled = true
			return nil, nil
		},
	}

	_, err := NewAggregator(reader).Figures(context.Background(), "u1", domain.WindowWeekly)

	var readErr *DataReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("expected DataReadError, got %v", err)
	}
	if readErr.Collection != "income" {
		t.Errorf("Collection = %q, want income", readErr.Collection)
	}
	if expenseCalled {
		t.Error("expense read should not run after income read failure")
	}
}

func TestFigures_ExpenseReadFailureAborts(t *testing.T) {
	reader := &fakeReader{
		ListIncomeFunc: func(ctx context.Context, userID string, since time.Time) ([]domain.Income, error) {
			return []domain.Income{{Amount: 100}}, nil
		},
		ListExpensesFunc: func(ctx context.Context, userID string, since time.Time) ([]domain.Expense, error) {
			return nil, errors.New("backend unavailable")
		},
	}

	_, err := NewAggregator(reader).Figures(context.Background(), "u1", domain.WindowWeekly)

	var readErr *DataReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("expected DataReadError, got %v", err)
	}
	if readErr.Collection != "expense" {
		t.Errorf("Collection = %q, want expense", readErr.Collection)
	}
}

func TestFigures_WindowBounds(t *testing.T) {
	var incomeSince, expenseSince time.Time
	reader := &fakeReader{
		ListIncomeFunc: func(ctx context.Context, userID string, since time.Time) ([]domain.Income, error) {
			incomeSince = since
			return nil, nil
		},
		ListExpensesFunc: func(ctx context.Context, userID string, since time.Time) ([]domain.Expense, error) {
			expenseSince = since
			return nil, nil
		},
	}

	agg := NewAggregator(reader)
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	agg.now = func() time.Time { return now }

	if _, err := agg.Figures(context.Background(), "u1", domain.WindowWeekly); err != nil {
		t.Fatalf("Figures: %v", err)
	}
	want := now.AddDate(0, 0, -7)
	if !incomeSince.Equal(want) || !expenseSince.Equal(want) {
		t.Errorf("weekly since = %v / %v, want %v", incomeSince, expenseSince, want)
	}

	if _, err := agg.Figures(context.Background(), "u1", domain.WindowAll); err != nil {
		t.Fatalf("Figures all-time: %v", err)
	}
	if !incomeSince.IsZero() || !expenseSince.IsZero() {
		t.Errorf("all-time since should be zero, got %v / %v", incomeSince, expenseSince)
	}
}
