package report

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dvloznov/insight-engine/internal/domain"
)

type fakeFigures struct {
	fig domain.AggregateFigures
	err error
}

func (f *fakeFigures) Figures(ctx context.Context, userID string, window domain.Window) (domain.AggregateFigures, error) {
	return f.fig, f.err
}

type fakeGenerator struct {
	response string
	err      error
	calls    int
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.response, f.err
}

type memArchiver struct {
	saved []Document
	err   error
}

func (m *memArchiver) Save(ctx context.Context, doc Document) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.saved = append(m.saved, doc)
	return "gs://test-bucket/reports/" + doc.UserID + "/report.json", nil
}

func TestBuild_ArchivesDocument(t *testing.T) {
	figures := &fakeFigures{
		fig: domain.AggregateFigures{
			Window:       domain.WindowMonthly,
			TotalIncome:  200,
			TotalExpense: 95,
			Balance:      105,
			IncomeCount:  1,
			ExpenseCount: 2,
			CategoryTotals: map[string]float64{
				"Food": 95,
			},
		},
	}
	gen := &fakeGenerator{
		response: `{"insights":[{"category":"Food","text":"Food was your largest expense at $95.00."}]}`,
	}
	arch := &memArchiver{}

	doc, uri, err := NewBuilder(figures, gen, arch, zerolog.Nop()).Build(context.Background(), "u1", domain.WindowMonthly)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !strings.HasPrefix(uri, "gs://") {
		t.Errorf("uri = %q, want a gs:// location", uri)
	}
	if len(doc.Sections) != 1 || doc.Sections[0].Category != "Food" {
		t.Errorf("sections = %+v", doc.Sections)
	}
	if doc.Totals.Balance != 105 {
		t.Errorf("balance = %v, want 105", doc.Totals.Balance)
	}
	if len(arch.saved) != 1 {
		t.Fatalf("archived = %d documents, want 1", len(arch.saved))
	}
}

func TestBuild_EmptyDatasetSkipsGeneration(t *testing.T) {
	gen := &fakeGenerator{}
	b := NewBuilder(&fakeFigures{}, gen, &memArchiver{}, zerolog.Nop())

	_, _, err := b.Build(context.Background(), "u1", domain.WindowMonthly)

	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if gen.calls != 0 {
		t.Errorf("generation service called %d times, want 0", gen.calls)
	}
}

func TestBuild_ArchiveFailure(t *testing.T) {
	figures := &fakeFigures{
		fig: domain.AggregateFigures{TotalIncome: 10, IncomeCount: 1, Balance: 10},
	}
	gen := &fakeGenerator{response: `[{"category":"General","text":"ok"}]`}
	arch := &memArchiver{err: errors.New("bucket unavailable")}

	_, _, err := NewBuilder(figures, gen, arch, zerolog.Nop()).Build(context.Background(), "u1", domain.WindowMonthly)
	if err == nil || !strings.Contains(err.Error(), "archiving report") {
		t.Fatalf("expected archive error, got %v", err)
	}
}
