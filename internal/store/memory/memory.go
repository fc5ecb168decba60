// Package memory provides an in-memory document store. It backs tests and
// credential-less local runs; data is lost on restart.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/insight-engine/internal/domain"
	"github.com/dvloznov/insight-engine/internal/store"
	"github.com/google/uuid"
)

// Store keeps per-user transaction and insight collections in memory.
// It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	income   map[string][]domain.Income
	expenses map[string][]domain.Expense
	insights map[string][]domain.InsightRecord
	tokens   map[string]string

	subs    map[string]map[int]chan []domain.InsightRecord
	nextSub int

	// Now is the record timestamp source, overridable in tests.
	Now func() time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		income:   make(map[string][]domain.Income),
		expenses: make(map[string][]domain.Expense),
		insights: make(map[string][]domain.InsightRecord),
		tokens:   make(map[string]string),
		subs:     make(map[string]map[int]chan []domain.InsightRecord),
		Now:      time.Now,
	}
}

// AddIncome seeds an income record, assigning an id when absent.
func (s *Store) AddIncome(userID string, in domain.Income) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	s.income[userID] = append(s.income[userID], in)
}

// AddExpense seeds an expense record, assigning an id when absent.
func (s *Store) AddExpense(userID string, ex domain.Expense) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	s.expenses[userID] = append(s.expenses[userID], ex)
}

// SetDeviceToken registers a push channel for the user.
func (s *Store) SetDeviceToken(userID, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[userID] = token
}

// ListIncome implements store.TransactionReader.
func (s *Store) ListIncome(ctx context.Context, userID string, since time.Time) ([]domain.Income, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Income
	for _, in := range s.income[userID] {
		if since.IsZero() || !in.OccurredAt.Before(since) {
			out = append(out, in)
		}
	}
	return out, nil
}

// ListExpenses implements store.TransactionReader.
func (s *Store) ListExpenses(ctx context.Context, userID string, since time.Time) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Expense
	for _, ex := range s.expenses[userID] {
		if since.IsZero() || !ex.OccurredAt.Before(since) {
			out = append(out, ex)
		}
	}
	return out, nil
}

// Append implements store.InsightStore.
func (s *Store) Append(ctx context.Context, userID string, cand domain.InsightCandidate) (domain.InsightRecord, error) {
	s.mu.Lock()
	rec := domain.InsightRecord{
		ID:        uuid.NewString(),
		Type:      cand.Type,
		Title:     cand.Title,
		Body:      cand.Body,
		Category:  cand.Category,
		Hash:      cand.Hash,
		Read:      false,
		CreatedAt: s.Now(),
	}
	s.insights[userID] = append(s.insights[userID], rec)
	s.mu.Unlock()

	s.notify(userID)
	return rec, nil
}

// ListRecent implements store.InsightStore.
func (s *Store) ListRecent(ctx context.Context, userID string, since time.Time) ([]domain.InsightRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(userID, since), nil
}

// MarkRead implements store.InsightStore.
func (s *Store) MarkRead(ctx context.Context, userID, insightID string) error {
	s.mu.Lock()
	found := false
	records := s.insights[userID]
	for i := range records {
		if records[i].ID == insightID {
			records[i].Read = true
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("memory: insight %s for user %s: %w", insightID, userID, store.ErrNotFound)
	}
	s.notify(userID)
	return nil
}

// Watch implements store.InsightWatcher. The current set is delivered
// immediately, then again after every append or read-flag change.
func (s *Store) Watch(ctx context.Context, userID string) (<-chan []domain.InsightRecord, error) {
	ch := make(chan []domain.InsightRecord, 8)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[int]chan []domain.InsightRecord)
	}
	s.subs[userID][id] = ch
	initial := s.snapshotLocked(userID, time.Time{})
	s.mu.Unlock()

	ch <- initial

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if sub, ok := s.subs[userID][id]; ok {
			delete(s.subs[userID], id)
			close(sub)
		}
		s.mu.Unlock()
	}()

	return ch, nil
}

// DeviceToken implements store.DeviceTokenSource.
func (s *Store) DeviceToken(ctx context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[userID], nil
}

func (s *Store) notify(userID string) {
	// Send while holding the lock: the Watch cancel path closes subscriber
	// channels under the write lock, so a send outside it could hit a closed
	// channel.
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.snapshotLocked(userID, time.Time{})
	for _, ch := range s.subs[userID] {
		// Drop the delivery rather than block a slow subscriber; the next
		// change carries the full snapshot anyway.
		select {
		case ch <- snapshot:
		default:
		}
	}
}

func (s *Store) snapshotLocked(userID string, since time.Time) []domain.InsightRecord {
	var out []domain.InsightRecord
	for _, rec := range s.insights[userID] {
		if since.IsZero() || !rec.CreatedAt.Before(since) {
			out = append(out, rec)
		}
	}
	domain.SortInsightsDesc(out)
	return out
}

var _ store.TransactionReader = (*Store)(nil)
var _ store.InsightStore = (*Store)(nil)
var _ store.InsightWatcher = (*Store)(nil)
var _ store.DeviceTokenSource = (*Store)(nil)
