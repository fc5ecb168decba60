package domain

import (
	"time"
)

// Expense is one expense record written by the user through the entry forms.
// Records are immutable once written and read-only to the pipeline.
type Expense struct {
	ID         string
	Category   string
	Amount     float64
	Note       string
	ReceiptURI string // optional reference to the stored receipt image
	OccurredAt time.Time
}

// Income is one income record.
type Income struct {
	ID          string
	Source      string
	Amount      float64
	Note        string
	DocumentURI string // optional reference to a supporting document
	OccurredAt  time.Time
}

// Window is the analysis time range for a pipeline run.
type Window string

const (
	WindowWeekly  Window = "weekly"
	WindowMonthly Window = "monthly"
	WindowYearly  Window = "yearly"
	WindowAll     Window = "all"
)

// ParseWindow maps a request string to a Window, defaulting to weekly.
func ParseWindow(s string) Window {
	switch Window(s) {
	case WindowMonthly, WindowYearly, WindowAll:
		return Window(s)
	default:
		return WindowWeekly
	}
}

// Start returns the inclusive lower bound of the window relative to now.
// The zero time means no lower bound (all-time).
func (w Window) Start(now time.Time) time.Time {
	switch w {
	case WindowMonthly:
		return now.AddDate(0, 0, -30)
	case WindowYearly:
		return now.AddDate(0, 0, -365)
	case WindowAll:
		return time.Time{}
	default:
		return now.AddDate(0, 0, -7)
	}
}

// AggregateFigures is the derived, non-persistent summary of a user's
// transactions within a window. It is recomputed on every run and never
// stored.
type AggregateFigures struct {
	UserID       string
	Window       Window
	TotalIncome  float64
	TotalExpense float64
	Balance      float64 // income minus expense
	IncomeCount  int
	ExpenseCount int

	// CategoryTotals maps expense category labels to summed amounts.
	// Income records do not contribute.
	CategoryTotals map[string]float64
}

// Empty reports whether there is nothing to analyze.
func (f AggregateFigures) Empty() bool {
	return f.TotalIncome == 0 && f.TotalExpense == 0
}

// TopCategory returns the expense category with the highest total. Ties are
// broken by label so the result is deterministic. Returns "General" when no
// expenses were recorded.
func (f AggregateFigures) TopCategory() (string, float64) {
	top, amount := "General", 0.0
	for cat, sum := range f.CategoryTotals {
		if sum > amount || (sum == amount && amount > 0 && cat < top) {
			top, amount = cat, sum
		}
	}
	return top, amount
}
