package insight

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/insight-engine/internal/domain"
)

// Prompt construction for the three generation modes. The field names and
// response shapes demanded here are a strict contract with the parser; change
// them together or not at all.

// BuildAlertAdvicePrompt composes the instruction for the persisted
// Alert/Advice pipeline: exactly one Alert and one Advice as a JSON array of
// {type,title,body,category} objects, never repeating prior insight texts.
func BuildAlertAdvicePrompt(fig domain.AggregateFigures, prior []domain.InsightRecord) string {
	topCategory, topAmount := fig.TopCategory()

	var b strings.Builder
	fmt.Fprintf(&b,
		"The user's total income is $%.2f and expenses are $%.2f, resulting in a balance of $%.2f. ",
		fig.TotalIncome, fig.TotalExpense, fig.Balance)
	fmt.Fprintf(&b,
		"The highest spending category is %s with $%.2f.\n\n", topCategory, topAmount)

	b.WriteString("Return a JSON array with exactly one Alert and one Advice. Each element must be an object with these fields:\n")
	b.WriteString("- \"type\": \"Alert\" or \"Advice\"\n")
	b.WriteString("- \"title\": short headline\n")
	b.WriteString("- \"body\": one or two sentences referencing the figures above\n")
	fmt.Fprintf(&b, "- \"category\": the spending category concerned, e.g. %q, or \"General\"\n\n", topCategory)

	if fig.Balance < 0 {
		fmt.Fprintf(&b,
			"The balance is negative: expenses exceed income by $%.2f. The Advice must address reducing spending or increasing income.\n\n",
			-fig.Balance)
	}

	if texts := priorTexts(prior); len(texts) > 0 {
		b.WriteString("Do not repeat any of these previously delivered insights:\n")
		for _, t := range texts {
			b.WriteString("- " + t + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Respond only with a valid JSON array. Do not use markdown or code blocks.")
	return b.String()
}

// BuildTipsPrompt composes the instruction for the ephemeral UI-tips mode:
// 2-3 short tips as {"insights":[{"text","icon"}]}.
func BuildTipsPrompt(fig domain.AggregateFigures, prior []domain.InsightRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b,
		"You are a financial assistant. Generate 2-3 short tips for the user's %s activity.\n",
		strings.ToLower(string(fig.Window)))
	writeFigures(&b, fig)

	if texts := priorTexts(prior); len(texts) > 0 {
		b.WriteString("\nAvoid repeating these:\n")
		for _, t := range texts {
			b.WriteString("- " + t + "\n")
		}
	}

	b.WriteString("\nRespond in JSON: { \"insights\": [ { \"text\": \"...\", \"icon\": \"alert|advice|info\" } ] }\n")
	b.WriteString("Respond only with raw JSON. Do not use markdown or code blocks.")
	return b.String()
}

// BuildReportPrompt composes the instruction for the report mode: 4-6 line
// insights grouped by category as {"insights":[{"category","text"}]}.
func BuildReportPrompt(fig domain.AggregateFigures) string {
	var b strings.Builder
	b.WriteString("You are a financial analyst writing insights for a user's expense report based on real transaction data.\n")
	b.WriteString("Each insight must be 4-6 lines long and specific to the actual spending behavior shown in the data.\n")
	b.WriteString("Group insights by spending category. Focus on patterns, spikes or anomalies; avoid generic advice.\n")
	b.WriteString("Do NOT include icons, labels like 'alert' or 'advice', or markdown.\n\n")
	writeFigures(&b, fig)

	b.WriteString("\nRespond strictly in raw JSON format:\n")
	b.WriteString("{ \"insights\": [\n")
	b.WriteString("  { \"category\": \"Food\", \"text\": \"Your food expenses totaled $95.00 this period.\" }\n")
	b.WriteString("] }")
	return b.String()
}

func writeFigures(b *strings.Builder, fig domain.AggregateFigures) {
	fmt.Fprintf(b, "Total income: $%.2f across %d transactions.\n", fig.TotalIncome, fig.IncomeCount)
	fmt.Fprintf(b, "Total expenses: $%.2f across %d transactions.\n", fig.TotalExpense, fig.ExpenseCount)
	fmt.Fprintf(b, "Balance: $%.2f.\n", fig.Balance)

	if len(fig.CategoryTotals) == 0 {
		return
	}
	b.WriteString("Expense totals by category:\n")
	cats := make([]string, 0, len(fig.CategoryTotals))
	for cat := range fig.CategoryTotals {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	for _, cat := range cats {
		fmt.Fprintf(b, "- %s: $%.2f\n", cat, fig.CategoryTotals[cat])
	}
}

// priorTexts renders prior insights for the do-not-repeat list. Titles are
// included so the model cannot reuse an old headline over new wording.
func priorTexts(prior []domain.InsightRecord) []string {
	texts := make([]string, 0, len(prior))
	for _, rec := range prior {
		switch {
		case rec.Title != "" && rec.Body != "":
			texts = append(texts, rec.Title+": "+rec.Body)
		case rec.Body != "":
			texts = append(texts, rec.Body)
		case rec.Title != "":
			texts = append(texts, rec.Title)
		}
	}
	return texts
}
