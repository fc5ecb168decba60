package insight

import (
	"context"
	"time"

	"github.com/dvloznov/insight-engine/internal/domain"
	"github.com/dvloznov/insight-engine/internal/store"
)

// Aggregator computes a user's aggregate figures for a time window. It only
// reads; a failed read on either collection aborts with DataReadError so the
// pipeline never works from partial figures.
type Aggregator struct {
	reader store.TransactionReader
	now    func() time.Time
}

// NewAggregator creates an aggregator over the given transaction reader.
func NewAggregator(reader store.TransactionReader) *Aggregator {
	return &Aggregator{reader: reader, now: time.Now}
}

// Figures fetches the user's income and expense records in the window and
// sums them. Category totals accumulate from expenses only.
func (a *Aggregator) Figures(ctx context.Context, userID string, window domain.Window) (domain.AggregateFigures, error) {
	since := window.Start(a.now())

	incomes, err := a.reader.ListIncome(ctx, userID, since)
	if err != nil {
		return domain.AggregateFigures{}, &DataReadError{Collection: "income", Err: err}
	}

	expenses, err := a.reader.ListExpenses(ctx, userID, since)
	if err != nil {
		return domain.AggregateFigures{}, &DataReadError{Collection: "expense", Err: err}
	}

	fig := domain.AggregateFigures{
		UserID:         userID,
		Window:         window,
		CategoryTotals: make(map[string]float64),
	}

	for _, in := range incomes {
		fig.TotalIncome += in.Amount
		fig.IncomeCount++
	}
	for _, ex := range expenses {
		fig.TotalExpense += ex.Amount
		fig.ExpenseCount++
		if ex.Category != "" {
			fig.CategoryTotals[ex.Category] += ex.Amount
		}
	}
	fig.Balance = fig.TotalIncome - fig.TotalExpense

	return fig, nil
}
