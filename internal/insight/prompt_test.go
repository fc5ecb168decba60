package insight

import (
	"strings"
	"testing"

	"github.com/dvloznov/insight-engine/internal/domain"
)

func TestBuildAlertAdvicePrompt_StatesFigures(t *testing.T) {
	fig := domain.AggregateFigures{
		Window:       domain.WindowWeekly,
		TotalIncome:  1000,
		TotalExpense: 1300,
		Balance:      -300,
		CategoryTotals: map[string]float64{
			"Rent": 900,
			"Food": 400,
		},
	}

	prompt := BuildAlertAdvicePrompt(fig, nil)

	for _, want := range []string{"$1000.00", "$1300.00", "$-300.00", "Rent", "$900.00"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}

	// Negative balance must be called out for the advice.
	if !strings.Contains(prompt, "expenses exceed income by $300.00") {
		t.Errorf("prompt missing negative-balance condition:\n%s", prompt)
	}
}

func TestBuildAlertAdvicePrompt_ContractFields(t *testing.T) {
	fig := domain.AggregateFigures{TotalIncome: 10, TotalExpense: 5, Balance: 5}
	prompt := BuildAlertAdvicePrompt(fig, nil)

	for _, field := range []string{`"type"`, `"title"`, `"body"`, `"category"`} {
		if !strings.Contains(prompt, field) {
			t.Errorf("prompt missing contract field %s", field)
		}
	}
	if !strings.Contains(prompt, "Do not use markdown or code blocks") {
		t.Error("prompt must forbid markdown fencing")
	}
}

func TestBuildAlertAdvicePrompt_PriorInsights(t *testing.T) {
	fig := domain.AggregateFigures{TotalIncome: 10, TotalExpense: 5, Balance: 5}
	prior := []domain.InsightRecord{
		{Title: "High Food Spending", Body: "You spent $95.00 on Food, your highest category."},
		{Body: "Body without a headline."},
		{}, // fully empty records are skipped
	}

	prompt := BuildAlertAdvicePrompt(fig, prior)

	if !strings.Contains(prompt, "Do not repeat") {
		t.Error("prompt must instruct the model not to repeat prior insights")
	}
	if !strings.Contains(prompt, "High Food Spending: You spent $95.00 on Food") {
		t.Error("prompt must list the prior insight title and body together")
	}
	if !strings.Contains(prompt, "Body without a headline.") {
		t.Error("prompt must list title-less prior insights by body")
	}
}

func TestBuildTipsPrompt_Contract(t *testing.T) {
	fig := domain.AggregateFigures{
		Window:       domain.WindowMonthly,
		TotalIncome:  200,
		TotalExpense: 95,
		Balance:      105,
		IncomeCount:  1,
		ExpenseCount: 2,
	}

	prompt := BuildTipsPrompt(fig, nil)

	if !strings.Contains(prompt, "monthly activity") {
		t.Errorf("prompt missing window label:\n%s", prompt)
	}
	if !strings.Contains(prompt, `"text"`) || !strings.Contains(prompt, `"icon"`) {
		t.Error("tips prompt must demand text/icon fields")
	}
	if !strings.Contains(prompt, `"insights"`) {
		t.Error("tips prompt must demand the insights wrapper")
	}
}

func TestBuildReportPrompt_IncludesCategoryTotals(t *testing.T) {
	fig := domain.AggregateFigures{
		TotalIncome:  500,
		TotalExpense: 220,
		Balance:      280,
		CategoryTotals: map[string]float64{
			"Transport": 125,
			"Food":      95,
		},
	}

	prompt := BuildReportPrompt(fig)

	if !strings.Contains(prompt, "- Food: $95.00") || !strings.Contains(prompt, "- Transport: $125.00") {
		t.Errorf("report prompt missing category totals:\n%s", prompt)
	}
	if !strings.Contains(prompt, `"category"`) || !strings.Contains(prompt, `"text"`) {
		t.Error("report prompt must demand category/text fields")
	}
}
