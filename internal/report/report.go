// Package report builds category-grouped financial reports and archives them
// as JSON documents in Cloud Storage.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/insight-engine/internal/domain"
	"github.com/dvloznov/insight-engine/internal/insight"
)

// ErrNoData is returned when the user has no transactions in the window.
var ErrNoData = errors.New("report: no transactions in window")

// Document is one archived report.
type Document struct {
	UserID      string                 `json:"user_id"`
	Window      domain.Window          `json:"window"`
	GeneratedAt time.Time              `json:"generated_at"`
	Totals      Totals                 `json:"totals"`
	Sections    []domain.ReportSection `json:"sections"`
}

// Totals carries the aggregate figures the report was generated from.
type Totals struct {
	Income   float64            `json:"income"`
	Expense  float64            `json:"expense"`
	Balance  float64            `json:"balance"`
	Category map[string]float64 `json:"by_category,omitempty"`
}

// Archiver persists a finished report and returns its location.
type Archiver interface {
	Save(ctx context.Context, doc Document) (string, error)
}

// FigureSource supplies aggregate figures for the report window.
type FigureSource interface {
	Figures(ctx context.Context, userID string, window domain.Window) (domain.AggregateFigures, error)
}

// Builder turns one user's window of transactions into an archived report.
type Builder struct {
	figures   FigureSource
	generator insight.Generator
	archiver  Archiver
	log       zerolog.Logger
	now       func() time.Time
}

// NewBuilder wires a report builder.
func NewBuilder(figures FigureSource, generator insight.Generator, archiver Archiver, log zerolog.Logger) *Builder {
	return &Builder{
		figures:   figures,
		generator: generator,
		archiver:  archiver,
		log:       log,
		now:       time.Now,
	}
}

// Build generates and archives a report, returning the document and its
// archive URI. An empty dataset yields ErrNoData without calling the
// generation service.
func (b *Builder) Build(ctx context.Context, userID string, window domain.Window) (Document, string, error) {
	fig, err := b.figures.Figures(ctx, userID, window)
	if err != nil {
		return Document{}, "", err
	}
	if fig.Empty() {
		return Document{}, "", ErrNoData
	}

	raw, err := b.generator.Generate(ctx, insight.BuildReportPrompt(fig))
	if err != nil {
		return Document{}, "", err
	}

	sections, err := insight.ParseReportSections(raw)
	if err != nil {
		return Document{}, "", err
	}

	doc := Document{
		UserID:      userID,
		Window:      window,
		GeneratedAt: b.now(),
		Totals: Totals{
			Income:   fig.TotalIncome,
			Expense:  fig.TotalExpense,
			Balance:  fig.Balance,
			Category: fig.CategoryTotals,
		},
		Sections: sections,
	}

	uri, err := b.archiver.Save(ctx, doc)
	if err != nil {
		return Document{}, "", fmt.Errorf("archiving report: %w", err)
	}

	b.log.Info().
		Str("user_id", userID).
		Str("window", string(window)).
		Int("sections", len(sections)).
		Str("uri", uri).
		Msg("Report archived")

	return doc, uri, nil
}

// GCSArchiver stores report documents in a Cloud Storage bucket under
// reports/{user_id}/{timestamp}-{id}.json.
// It assumes Application Default Credentials are configured.
type GCSArchiver struct {
	bucket string
}

// NewGCSArchiver creates an archiver for the given bucket.
func NewGCSArchiver(bucket string) *GCSArchiver {
	return &GCSArchiver{bucket: bucket}
}

// Save implements Archiver.
func (a *GCSArchiver) Save(ctx context.Context, doc Document) (string, error) {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	objectName := fmt.Sprintf("reports/%s/%s-%s.json",
		doc.UserID,
		doc.GeneratedAt.UTC().Format("20060102T150405Z"),
		uuid.NewString())

	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := bytes.NewReader(payload).WriteTo(w); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy report to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", a.bucket, objectName), nil
}

var _ Archiver = (*GCSArchiver)(nil)
