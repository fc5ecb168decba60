package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/insight-engine/internal/api/middleware"
	"github.com/dvloznov/insight-engine/internal/domain"
	"github.com/dvloznov/insight-engine/internal/insight"
	"github.com/dvloznov/insight-engine/internal/jobs"
	"github.com/dvloznov/insight-engine/internal/liveview"
	"github.com/dvloznov/insight-engine/internal/report"
	"github.com/dvloznov/insight-engine/internal/store"
)

// insightJSON is the wire shape of one insight record.
type insightJSON struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Category  string    `json:"category,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

func toInsightJSON(records []domain.InsightRecord) []insightJSON {
	out := make([]insightJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, insightJSON{
			ID:        rec.ID,
			Type:      string(rec.Type),
			Title:     rec.Title,
			Body:      rec.Body,
			Category:  rec.Category,
			Read:      rec.Read,
			CreatedAt: rec.CreatedAt,
		})
	}
	return out
}

// writePipelineError maps the generation pipeline's error taxonomy to HTTP
// statuses. Upstream generation trouble is a gateway problem, not ours.
func writePipelineError(w http.ResponseWriter, err error) {
	var (
		readErr  *insight.DataReadError
		svcErr   *insight.ServiceError
		tranErr  *insight.TransportError
		parseErr *insight.ParseError
	)
	switch {
	case errors.As(err, &readErr):
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read transaction data")
	case errors.As(err, &svcErr), errors.As(err, &parseErr), errors.Is(err, insight.ErrEmptyGeneration):
		middleware.WriteError(w, http.StatusBadGateway, "Generation service failed")
	case errors.As(err, &tranErr):
		middleware.WriteError(w, http.StatusGatewayTimeout, "Generation service unreachable")
	default:
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// InsightsHandler handles insight-related endpoints.
type InsightsHandler struct {
	svc       *insight.Service
	insights  store.InsightStore
	views     *liveview.Registry
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewInsightsHandler creates a new insights handler.
func NewInsightsHandler(svc *insight.Service, insights store.InsightStore, views *liveview.Registry, publisher jobs.Publisher, log zerolog.Logger) *InsightsHandler {
	return &InsightsHandler{
		svc:       svc,
		insights:  insights,
		views:     views,
		publisher: publisher,
		log:       log,
	}
}

// EnqueueGenerate handles POST /api/insights/generate
func (h *InsightsHandler) EnqueueGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Window string `json:"window"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	ctx := r.Context()
	job := &jobs.InsightRunJob{
		Type:   jobs.JobTypeInsightRun,
		UserID: req.UserID,
		Window: string(domain.ParseWindow(req.Window)),
	}

	if err := h.publisher.PublishInsightRun(ctx, job); err != nil {
		h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to enqueue generation run")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue generation run")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("user_id", req.UserID).Msg("Generation run enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":  job.JobID,
		"user_id": req.UserID,
		"status":  string(job.Status),
	})
}

// ListInsights handles GET /api/insights
func (h *InsightsHandler) ListInsights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	userID := query.Get("user_id")
	if userID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	records, err := h.insights.ListRecent(ctx, userID, time.Time{})
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to list insights")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list insights")
		return
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit < len(records) {
			records = records[:limit]
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"insights": toInsightJSON(records),
		"count":    len(records),
	})
}

// MarkRead handles POST /api/insights/read
func (h *InsightsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"user_id"`
		InsightID string `json:"insight_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || req.InsightID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id and insight_id are required")
		return
	}

	if err := h.insights.MarkRead(r.Context(), req.UserID, req.InsightID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Insight not found")
			return
		}
		h.log.Error().Err(err).Str("insight_id", req.InsightID).Msg("Failed to mark insight read")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to mark insight read")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Summary handles GET /api/insights/summary
func (h *InsightsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	view, err := h.views.ViewFor(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to start live view")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read summary")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, view.Current())
}

// Tips handles POST /api/insights/tips
func (h *InsightsHandler) Tips(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Window string `json:"window"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	tips, err := h.svc.GenerateTips(r.Context(), req.UserID, domain.ParseWindow(req.Window))
	if err != nil {
		h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Tip generation failed")
		writePipelineError(w, err)
		return
	}

	type tipJSON struct {
		Text string `json:"text"`
		Icon string `json:"icon"`
	}
	out := make([]tipJSON, 0, len(tips))
	for _, tip := range tips {
		out = append(out, tipJSON{Text: tip.Text, Icon: tip.Icon})
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"insights": out,
		"count":    len(out),
	})
}

// ReportsHandler handles report-related endpoints.
type ReportsHandler struct {
	builder *report.Builder
	log     zerolog.Logger
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(builder *report.Builder, log zerolog.Logger) *ReportsHandler {
	return &ReportsHandler{builder: builder, log: log}
}

// CreateReport handles POST /api/reports
func (h *ReportsHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Window string `json:"window"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	doc, uri, err := h.builder.Build(r.Context(), req.UserID, domain.ParseWindow(req.Window))
	if err != nil {
		if errors.Is(err, report.ErrNoData) {
			middleware.WriteError(w, http.StatusUnprocessableEntity, "No transactions to report on")
			return
		}
		h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Report build failed")
		writePipelineError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"gcs_uri":  uri,
		"sections": len(doc.Sections),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{store: store, log: log}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		UserID: query.Get("user_id"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
