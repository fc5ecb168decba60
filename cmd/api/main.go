package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/insight-engine/internal/api/handlers"
	"github.com/dvloznov/insight-engine/internal/api/middleware"
	"github.com/dvloznov/insight-engine/internal/config"
	"github.com/dvloznov/insight-engine/internal/domain"
	"github.com/dvloznov/insight-engine/internal/insight"
	"github.com/dvloznov/insight-engine/internal/jobs"
	"github.com/dvloznov/insight-engine/internal/jobs/inmemory"
	"github.com/dvloznov/insight-engine/internal/liveview"
	"github.com/dvloznov/insight-engine/internal/logger"
	"github.com/dvloznov/insight-engine/internal/notify"
	"github.com/dvloznov/insight-engine/internal/report"
	"github.com/dvloznov/insight-engine/internal/runlog"
	"github.com/dvloznov/insight-engine/internal/store"
	"github.com/dvloznov/insight-engine/internal/store/firestore"
	"github.com/dvloznov/insight-engine/internal/store/memory"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()

	// Document store: Firestore when a project is configured, otherwise the
	// in-memory store for credential-less local runs.
	var (
		reader   store.TransactionReader
		insights store.InsightStore
		watcher  store.InsightWatcher
		tokens   store.DeviceTokenSource
	)
	if cfg.ProjectID != "" {
		client, err := firestore.New(ctx, cfg.ProjectID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Firestore client")
		}
		defer client.Close()
		reader, insights, watcher, tokens = client, client, client, client
	} else {
		log.Warn().Msg("No GOOGLE_CLOUD_PROJECT configured - using in-memory store")
		mem := memory.New()
		reader, insights, watcher, tokens = mem, mem, mem, mem
	}

	// Push delivery: FCM with real credentials, log-only otherwise.
	var notifier notify.Notifier
	if cfg.ProjectID != "" {
		fcm, err := notify.NewFCMNotifier(ctx, tokens, logger.ForComponent(log, "notify"))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create FCM notifier")
		}
		notifier = fcm
	} else {
		notifier = &notify.LogNotifier{Log: logger.ForComponent(log, "notify")}
	}

	// Run auditing.
	var runs runlog.Recorder = runlog.NoopRecorder{}
	if cfg.ProjectID != "" {
		recorder, err := runlog.NewBigQueryRecorder(ctx, cfg.ProjectID, logger.ForComponent(log, "runlog"))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create run recorder")
		}
		defer recorder.Close()
		runs = recorder
	}

	keys := config.NewCachedSecretSource(
		&config.StaticSecretSource{Key: cfg.GeminiAPIKey},
		cfg.KeyRefreshInterval,
	)
	generator := insight.NewGeminiGenerator(keys, cfg.GeminiModel, cfg.GenerateTimeout)

	svc := insight.NewService(insight.ServiceOptions{
		Reader:    reader,
		Insights:  insights,
		Generator: generator,
		Notifier:  notifier,
		Gate:      insight.NewRunGate(cfg.RunGateWindow),
		Runs:      runs,
		Retention: cfg.DedupRetention,
		Log:       logger.ForComponent(log, "pipeline"),
	})

	if cfg.ReportBucket == "" {
		log.Warn().Msg("No REPORT_BUCKET configured - report archiving will fail")
	}
	reportBuilder := report.NewBuilder(
		svc,
		generator,
		report.NewGCSArchiver(cfg.ReportBucket),
		logger.ForComponent(log, "report"),
	)

	// Job infrastructure; the API binary runs the consumer in-process.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 2, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		runJob, ok := job.(*jobs.InsightRunJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}
		return processJob(ctx, runJob, svc, reportBuilder, log)
	}

	go func() {
		log.Info().Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	views := liveview.NewRegistry(watcher, logger.ForComponent(log, "liveview"))

	insightsHandler := handlers.NewInsightsHandler(svc, insights, views, jobQueue, log)
	reportsHandler := handlers.NewReportsHandler(reportBuilder, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/insights", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			insightsHandler.ListInsights(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/insights/generate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			insightsHandler.EnqueueGenerate(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/insights/read", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			insightsHandler.MarkRead(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/insights/summary", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			insightsHandler.Summary(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/insights/tips", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			insightsHandler.Tips(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/reports", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			reportsHandler.CreateReport(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // synchronous tip/report generation
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}

// processJob dispatches one queued job to the pipeline or report builder and
// records the outcome on the job itself.
func processJob(ctx context.Context, job *jobs.InsightRunJob, svc *insight.Service, builder *report.Builder, log zerolog.Logger) error {
	window := domain.ParseWindow(job.Window)

	switch job.GetType() {
	case jobs.JobTypeReport:
		_, uri, err := builder.Build(ctx, job.UserID, window)
		if err != nil {
			return classifyRunError(err)
		}
		job.ReportURI = uri
		return nil

	default:
		res, err := svc.Run(ctx, job.UserID, window)
		if err != nil {
			return classifyRunError(err)
		}
		if res.Skipped {
			log.Info().
				Str("job_id", job.JobID).
				Str("user_id", job.UserID).
				Str("reason", res.SkipReason).
				Msg("Generation run skipped")
			return nil
		}
		job.StoredCount = len(res.Stored)
		return nil
	}
}

// classifyRunError lets the queue retry transport-class failures only; a bad
// model reply or service rejection will not improve on re-run.
func classifyRunError(err error) error {
	var transportErr *insight.TransportError
	var readErr *insight.DataReadError
	if errors.As(err, &transportErr) || errors.As(err, &readErr) {
		return err
	}
	return jobs.Permanent(err)
}
