// Package liveview maintains a continuously updated per-user summary of the
// insight collection: counts by type, unread count and the latest message.
// The presentation layer reads or subscribes to it instead of re-querying the
// store.
package liveview

import (
	"context"
	"sync"
	"time"

	"github.com/dvloznov/insight-engine/internal/domain"
	"github.com/dvloznov/insight-engine/internal/store"
	"github.com/rs/zerolog"
)

// Summary is one recomputed state of a user's insight collection.
type Summary struct {
	UserID      string             `json:"user_id"`
	Total       int                `json:"total"`
	Unread      int                `json:"unread"`
	Alerts      int                `json:"alerts"`
	Advice      int                `json:"advice"`
	LatestID    string             `json:"latest_id,omitempty"`
	LatestType  domain.InsightType `json:"latest_type,omitempty"`
	LatestTitle string             `json:"latest_title,omitempty"`
	LatestBody  string             `json:"latest_body,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Compute derives the summary from a full snapshot of the user's insight
// records. Records of unknown type are ignored; the latest message is the
// newest by creation time.
func Compute(userID string, records []domain.InsightRecord) Summary {
	sorted := make([]domain.InsightRecord, 0, len(records))
	for _, rec := range records {
		if rec.Type != domain.InsightAlert && rec.Type != domain.InsightAdvice {
			continue
		}
		sorted = append(sorted, rec)
	}
	domain.SortInsightsDesc(sorted)

	sum := Summary{UserID: userID, UpdatedAt: time.Now()}
	for _, rec := range sorted {
		sum.Total++
		if !rec.Read {
			sum.Unread++
		}
		switch rec.Type {
		case domain.InsightAlert:
			sum.Alerts++
		case domain.InsightAdvice:
			sum.Advice++
		}
	}
	if len(sorted) > 0 {
		latest := sorted[0]
		sum.LatestID = latest.ID
		sum.LatestType = latest.Type
		sum.LatestTitle = latest.Title
		sum.LatestBody = latest.Body
	}
	return sum
}

// View consumes store snapshots for one user and keeps the latest summary.
// Readers either poll Current or Subscribe for pushed updates.
type View struct {
	userID string

	mu      sync.RWMutex
	current Summary
	subs    map[int]chan Summary
	nextSub int

	done chan struct{}
}

// NewView starts a view over the user's insight collection. The view runs
// until ctx ends or the underlying watch stream closes.
func NewView(ctx context.Context, watcher store.InsightWatcher, userID string, log zerolog.Logger) (*View, error) {
	snapshots, err := watcher.Watch(ctx, userID)
	if err != nil {
		return nil, err
	}

	v := &View{
		userID:  userID,
		current: Summary{UserID: userID, UpdatedAt: time.Now()},
		subs:    make(map[int]chan Summary),
		done:    make(chan struct{}),
	}

	go func() {
		defer close(v.done)
		for records := range snapshots {
			v.apply(Compute(userID, records))
		}
		log.Debug().Str("user_id", userID).Msg("Insight watch stream closed")
	}()

	return v, nil
}

// Current returns the latest summary without blocking.
func (v *View) Current() Summary {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Subscribe registers for summary updates. The current summary is delivered
// first. The returned cancel function releases the subscription.
func (v *View) Subscribe() (<-chan Summary, func()) {
	ch := make(chan Summary, 4)

	v.mu.Lock()
	id := v.nextSub
	v.nextSub++
	v.subs[id] = ch
	ch <- v.current
	v.mu.Unlock()

	cancel := func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if sub, ok := v.subs[id]; ok {
			delete(v.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Done reports stream termination; after it closes Current keeps serving the
// last computed summary.
func (v *View) Done() <-chan struct{} {
	return v.done
}

func (v *View) apply(sum Summary) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.current = sum
	for _, ch := range v.subs {
		// A slow subscriber misses intermediate states, never the final one:
		// each delivery is a full summary.
		select {
		case ch <- sum:
		default:
		}
	}
}

// Registry lazily starts one view per user and hands out the shared instance.
type Registry struct {
	watcher store.InsightWatcher
	log     zerolog.Logger

	mu    sync.Mutex
	views map[string]*View
}

// NewRegistry creates an empty registry over the given watcher.
func NewRegistry(watcher store.InsightWatcher, log zerolog.Logger) *Registry {
	return &Registry{
		watcher: watcher,
		log:     log,
		views:   make(map[string]*View),
	}
}

// ViewFor returns the user's view, starting it on first use. The supplied
// context bounds the lifetime of a newly started view.
func (r *Registry) ViewFor(ctx context.Context, userID string) (*View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.views[userID]; ok {
		return v, nil
	}

	v, err := NewView(ctx, r.watcher, userID, r.log)
	if err != nil {
		return nil, err
	}
	r.views[userID] = v
	return v, nil
}
