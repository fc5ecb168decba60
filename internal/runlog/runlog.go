// Package runlog records pipeline run outcomes to BigQuery for auditing.
// Recording is best-effort and must never block or fail a run.
package runlog

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	datasetID = "insights"
	tableID   = "generation_runs"
)

// Run statuses.
const (
	StatusRunning = "RUNNING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
	StatusSkipped = "SKIPPED"
)

// RunRow is one generation run in the insights.generation_runs table.
type RunRow struct {
	RunID       string                 `bigquery:"run_id"`
	UserID      string                 `bigquery:"user_id"`
	Window      string                 `bigquery:"window"`
	Status      string                 `bigquery:"status"`
	StartedTS   time.Time              `bigquery:"started_ts"`
	FinishedTS  bigquery.NullTimestamp `bigquery:"finished_ts"`
	StoredCount bigquery.NullInt64     `bigquery:"stored_count"`
	ErrorMsg    string                 `bigquery:"error_message"`
}

// Recorder tracks the lifecycle of one pipeline run.
type Recorder interface {
	// StartRun records a RUNNING row and returns its run id.
	StartRun(ctx context.Context, userID, window string) (string, error)

	// FinishRun closes the run with a terminal status. runErr may be nil.
	FinishRun(ctx context.Context, runID, status string, stored int, runErr error)
}

// BigQueryRecorder persists runs to BigQuery.
type BigQueryRecorder struct {
	client *bigquery.Client
	log    zerolog.Logger
}

// NewBigQueryRecorder creates a recorder with a shared client.
func NewBigQueryRecorder(ctx context.Context, projectID string, log zerolog.Logger) (*BigQueryRecorder, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("runlog: creating bigquery client: %w", err)
	}
	return &BigQueryRecorder{client: client, log: log}, nil
}

// Close releases the BigQuery client.
func (r *BigQueryRecorder) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// StartRun implements Recorder.
func (r *BigQueryRecorder) StartRun(ctx context.Context, userID, window string) (string, error) {
	runID := uuid.NewString()
	row := &RunRow{
		RunID:     runID,
		UserID:    userID,
		Window:    window,
		Status:    StatusRunning,
		StartedTS: time.Now(),
	}

	inserter := r.client.Dataset(datasetID).Table(tableID).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return "", fmt.Errorf("runlog: inserting run row: %w", err)
	}
	return runID, nil
}

// FinishRun implements Recorder. Update failures are logged and swallowed.
func (r *BigQueryRecorder) FinishRun(ctx context.Context, runID, status string, stored int, runErr error) {
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		const maxLen = 2000
		if len(errMsg) > maxLen {
			errMsg = errMsg[:maxLen]
		}
	}

	q := r.client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    finished_ts = @finished_ts,
		    stored_count = @stored_count,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, datasetID, tableID))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: status},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "stored_count", Value: int64(stored)},
		{Name: "error_message", Value: errMsg},
		{Name: "run_id", Value: runID},
	}

	job, err := q.Run(ctx)
	if err != nil {
		r.log.Error().Err(err).Str("run_id", runID).Msg("Failed to update run row")
		return
	}
	st, err := job.Wait(ctx)
	if err != nil {
		r.log.Error().Err(err).Str("run_id", runID).Msg("Failed waiting for run update")
		return
	}
	if err := st.Err(); err != nil {
		r.log.Error().Err(err).Str("run_id", runID).Msg("Run update job failed")
	}
}

// NoopRecorder discards run records. Used when no BigQuery project is
// configured.
type NoopRecorder struct{}

func (NoopRecorder) StartRun(ctx context.Context, userID, window string) (string, error) {
	return uuid.NewString(), nil
}

func (NoopRecorder) FinishRun(ctx context.Context, runID, status string, stored int, runErr error) {
}

var _ Recorder = (*BigQueryRecorder)(nil)
var _ Recorder = NoopRecorder{}
