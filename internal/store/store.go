// Package store defines the boundary to the user-scoped document store.
// The pipeline reads transactions, appends insight records and watches the
// insight collection; everything else about the store is out of scope.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/insight-engine/internal/domain"
)

// ErrNotFound reports that the addressed record does not exist. Backends wrap
// it so callers can tell a missing record from a failing store.
var ErrNotFound = errors.New("store: record not found")

// TransactionReader reads a user's transaction records. A zero `since` means
// all-time. Results are unordered.
type TransactionReader interface {
	ListIncome(ctx context.Context, userID string, since time.Time) ([]domain.Income, error)
	ListExpenses(ctx context.Context, userID string, since time.Time) ([]domain.Expense, error)
}

// InsightStore is the durable append-only log of delivered insights.
// Append is the pipeline's only write; MarkRead is invoked by the client and
// is the only permitted mutation of an existing record.
type InsightStore interface {
	// Append persists one accepted candidate with a store-assigned id and
	// creation timestamp and read=false.
	Append(ctx context.Context, userID string, cand domain.InsightCandidate) (domain.InsightRecord, error)

	// ListRecent returns the user's insight records created at or after
	// `since` (zero means all), newest first.
	ListRecent(ctx context.Context, userID string, since time.Time) ([]domain.InsightRecord, error)

	// MarkRead flips the read flag of one record.
	MarkRead(ctx context.Context, userID, insightID string) error
}

// InsightWatcher is a continuously-active subscription over a user's insight
// records. Each delivery is the full current set; the channel is closed when
// the context ends or the underlying stream fails.
type InsightWatcher interface {
	Watch(ctx context.Context, userID string) (<-chan []domain.InsightRecord, error)
}

// DeviceTokenSource resolves the push channel for a user's registered device.
// An empty token with nil error means the user has no registered device.
type DeviceTokenSource interface {
	DeviceToken(ctx context.Context, userID string) (string, error)
}
