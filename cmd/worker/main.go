package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/insight-engine/internal/config"
	"github.com/dvloznov/insight-engine/internal/domain"
	"github.com/dvloznov/insight-engine/internal/insight"
	"github.com/dvloznov/insight-engine/internal/jobs"
	"github.com/dvloznov/insight-engine/internal/jobs/inmemory"
	"github.com/dvloznov/insight-engine/internal/logger"
	"github.com/dvloznov/insight-engine/internal/notify"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		reader   store.TransactionReader
		insights store.InsightStore
		tokens   store.DeviceTokenSource
	)
	if cfg.ProjectID != "" {
		client, err := firestore.New(ctx, cfg.ProjectID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Firestore client")
		}
		defer client.Close()
		reader, insights, tokens = client, client, client
	} else {
		log.Warn().Msg("No GOOGLE_CLOUD_PROJECT configured - using in-memory store")
		mem := memory.New()
		reader, insights, tokens = mem, mem, mem
	}

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

	svc := insight.NewService(insight.ServiceOptions{
		Reader:    reader,
		Insights:  insights,
		Generator: insight.NewGeminiGenerator(keys, cfg.GeminiModel, cfg.GenerateTimeout),
		Notifier:  notifier,
		Gate:      insight.NewRunGate(cfg.RunGateWindow),
		Runs:      runs,
		Retention: cfg.DedupRetention,
		Log:       logger.ForComponent(log, "pipeline"),
	})

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 2, jobStore)

	log.Info().Msg("Starting worker service")

	handler := func(ctx context.Context, job jobs.Job) error {
		runJob, ok := job.(*jobs.InsightRunJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", runJob.JobID).
			Str("user_id", runJob.UserID).
			Str("window", runJob.Window).
			Msg("Processing generation run")

		res, err := svc.Run(ctx, runJob.UserID, domain.ParseWindow(runJob.Window))
		if err != nil {
			log.Error().
				Err(err).
				Str("job_id", runJob.JobID).
				Str("user_id", runJob.UserID).
				Msg("Generation run failed")
			return classifyRunError(err)
		}

		if res.Skipped {
			log.Info().
				Str("job_id", runJob.JobID).
				Str("reason", res.SkipReason).
				Msg("Generation run skipped")
			return nil
		}

		runJob.StoredCount = len(res.Stored)
		log.Info().
			Str("job_id", runJob.JobID).
			Int("stored", len(res.Stored)).
			Msg("Generation run completed")
		return nil
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	// Periodic trigger for the configured user list. Deduplication and the
	// run gate keep repeated triggers harmless.
	if len(cfg.TriggerUsers) > 0 {
		go func() {
			ticker := time.NewTicker(cfg.TriggerInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					for _, userID := range cfg.TriggerUsers {
						job := &jobs.InsightRunJob{UserID: userID, Window: string(domain.WindowWeekly)}
						if err := jobQueue.PublishInsightRun(ctx, job); err != nil {
							log.Error().Err(err).Str("user_id", userID).Msg("Failed to enqueue periodic run")
						}
					}
				}
			}
		}()
		log.Info().
			Int("users", len(cfg.TriggerUsers)).
			Dur("interval", cfg.TriggerInterval).
			Msg("Periodic trigger enabled")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
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
