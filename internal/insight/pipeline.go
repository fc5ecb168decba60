package insight

import (
	"context"
	"time"

	"github.com/dvloznov/insight-engine/internal/domain"
	"github.com/dvloznov/insight-engine/internal/notify"
	"github.com/dvloznov/insight-engine/internal/runlog"
	"github.com/dvloznov/insight-engine/internal/store"
	"github.com/rs/zerolog"
)

// DefaultDedupRetention is how far back previously delivered hashes count
// when filtering new candidates.
const DefaultDedupRetention = 30 * 24 * time.Hour

// Service orchestrates one generation run end to end:
// gate -> aggregate -> prior insights -> prompt -> generate -> parse ->
// dedup -> per-candidate store+notify.
//
// Failures before deduplication abort the whole run; store and notify
// failures after acceptance are isolated per candidate.
type Service struct {
	aggregator *Aggregator
	insights   store.InsightStore
	generator  Generator
	notifier   notify.Notifier
	gate       *RunGate
	runs       runlog.Recorder
	retention  time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

// ServiceOptions bundles the service's collaborators.
type ServiceOptions struct {
	Reader    store.TransactionReader
	Insights  store.InsightStore
	Generator Generator
	Notifier  notify.Notifier
	Gate      *RunGate
	Runs      runlog.Recorder
	// Retention is the dedup window; zero means DefaultDedupRetention.
	Retention time.Duration
	Log       zerolog.Logger
}

// NewService wires a pipeline service.
func NewService(opts ServiceOptions) *Service {
	retention := opts.Retention
	if retention <= 0 {
		retention = DefaultDedupRetention
	}
	runs := opts.Runs
	if runs == nil {
		runs = runlog.NoopRecorder{}
	}
	return &Service{
		aggregator: NewAggregator(opts.Reader),
		insights:   opts.Insights,
		generator:  opts.Generator,
		notifier:   opts.Notifier,
		gate:       opts.Gate,
		runs:       runs,
		retention:  retention,
		log:        opts.Log,
		now:        time.Now,
	}
}

// RunResult reports the outcome of one trigger.
type RunResult struct {
	// Skipped is true when no generation was attempted: the gate was busy or
	// the dataset was empty. Neither is an error.
	Skipped    bool
	SkipReason string

	// Candidates is the parsed candidate count before deduplication.
	Candidates int

	// Stored holds the records that reached the insight store.
	Stored []domain.InsightRecord

	// StoreFailures and NotifyFailures count per-candidate failures that did
	// not abort the run.
	StoreFailures  int
	NotifyFailures int
}

// Run executes one generation run for the user. The returned error follows
// the pipeline taxonomy: DataReadError, TransportError, ServiceError,
// ErrEmptyGeneration or ParseError. Callers receive the outcome here and
// must not expect panics across the asynchronous boundary.
func (s *Service) Run(ctx context.Context, userID string, window domain.Window) (*RunResult, error) {
	if !s.gate.TryAcquire(userID) {
		s.log.Debug().Str("user_id", userID).Msg("Generation already in progress, skipping trigger")
		return &RunResult{Skipped: true, SkipReason: "generation already in progress"}, nil
	}
	defer s.gate.Release(userID)

	runID, err := s.runs.StartRun(ctx, userID, string(window))
	if err != nil {
		// Auditing must not block generation.
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to record run start")
	}

	result, runErr := s.execute(ctx, userID, window)

	switch {
	case runErr != nil:
		s.runs.FinishRun(ctx, runID, runlog.StatusFailed, 0, runErr)
	case result.Skipped:
		s.runs.FinishRun(ctx, runID, runlog.StatusSkipped, 0, nil)
	default:
		s.runs.FinishRun(ctx, runID, runlog.StatusSuccess, len(result.Stored), nil)
	}

	return result, runErr
}

func (s *Service) execute(ctx context.Context, userID string, window domain.Window) (*RunResult, error) {
	fig, err := s.aggregator.Figures(ctx, userID, window)
	if err != nil {
		return nil, err
	}

	if fig.Empty() {
		s.log.Info().Str("user_id", userID).Msg("No income or expense data, skipping generation")
		return &RunResult{Skipped: true, SkipReason: "no transactions to analyze"}, nil
	}

	prior, err := s.insights.ListRecent(ctx, userID, s.now().Add(-s.retention))
	if err != nil {
		return nil, &DataReadError{Collection: "insight", Err: err}
	}

	prompt := BuildAlertAdvicePrompt(fig, prior)

	raw, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	cands, err := ParseCandidates(raw)
	if err != nil {
		return nil, err
	}

	dedup := NewDeduplicator(priorHashes(prior))
	accepted := dedup.Filter(cands)

	result := &RunResult{Candidates: len(cands)}
	for _, cand := range accepted {
		// Store first; a record only counts as delivered once persisted.
		rec, err := s.insights.Append(ctx, userID, cand)
		if err != nil {
			result.StoreFailures++
			s.log.Error().Err(err).
				Str("user_id", userID).
				Str("hash", cand.Hash).
				Msg("Failed to store insight")
			continue
		}
		result.Stored = append(result.Stored, rec)

		if err := s.notifier.Push(ctx, userID, rec); err != nil {
			result.NotifyFailures++
			s.log.Error().Err(err).
				Str("user_id", userID).
				Str("insight_id", rec.ID).
				Msg("Push delivery failed")
		}
	}

	s.log.Info().
		Str("user_id", userID).
		Str("window", string(window)).
		Int("candidates", result.Candidates).
		Int("stored", len(result.Stored)).
		Int("dropped_duplicates", result.Candidates-len(accepted)).
		Msg("Generation run finished")

	return result, nil
}

// GenerateTips produces ephemeral UI tips for the insights screen. Tips are
// returned to the caller and never persisted, so the run gate does not apply.
// An empty dataset yields an empty slice without calling the generation
// service.
func (s *Service) GenerateTips(ctx context.Context, userID string, window domain.Window) ([]domain.UITip, error) {
	fig, err := s.aggregator.Figures(ctx, userID, window)
	if err != nil {
		return nil, err
	}
	if fig.Empty() {
		return nil, nil
	}

	prior, err := s.insights.ListRecent(ctx, userID, s.now().Add(-s.retention))
	if err != nil {
		return nil, &DataReadError{Collection: "insight", Err: err}
	}

	raw, err := s.generator.Generate(ctx, BuildTipsPrompt(fig, prior))
	if err != nil {
		return nil, err
	}
	return ParseTips(raw)
}

// Figures exposes the aggregator for callers that need raw summary numbers
// (report generation, summary endpoints).
func (s *Service) Figures(ctx context.Context, userID string, window domain.Window) (domain.AggregateFigures, error) {
	return s.aggregator.Figures(ctx, userID, window)
}

func priorHashes(prior []domain.InsightRecord) []string {
	hashes := make([]string, 0, len(prior))
	for _, rec := range prior {
		if rec.Hash != "" {
			hashes = append(hashes, rec.Hash)
		}
	}
	return hashes
}
