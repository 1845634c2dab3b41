// cmd/gateway/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"courier-gateway/internal/api"
	"courier-gateway/internal/common/config"
	"courier-gateway/internal/common/crypto"
	"courier-gateway/internal/common/database"
	stderrors "courier-gateway/internal/common/errors"
	"courier-gateway/internal/common/logger"
	"courier-gateway/internal/common/observability"
	"courier-gateway/internal/common/urlcheck"
	"courier-gateway/internal/dispatch"
	"courier-gateway/internal/ledger"
	"courier-gateway/internal/models"
	"courier-gateway/internal/platforms"
	"courier-gateway/internal/queue"
	"courier-gateway/internal/webhooks"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New("info", "console")
		fallback.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting courier gateway...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch (optional audit sink) ---
	var esClient *database.ElasticsearchClient
	if cfg.Database.Elasticsearch.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Credential cipher ---
	cipher, err := crypto.NewCipher(cfg.Security.EncryptionKey)
	if err != nil {
		zapLog.Fatal("encryption key invalid", zap.Error(err))
	}

	// --- Stores ---
	platformStore := ledger.NewPlatformStore(pg.DB)
	attemptStore := ledger.NewAttemptStore(pg.DB)
	webhookStore := ledger.NewWebhookStore(pg.DB)
	deliveryStore := ledger.NewDeliveryStore(pg.DB)

	// --- Platform adapter registry ---
	registry := platforms.NewRegistry(log)
	registry.Register(platforms.TypeTelegram, platforms.TelegramFactory())
	registry.Register(platforms.TypeDiscord, platforms.DiscordFactory())
	registry.Register(platforms.TypeEmail, platforms.EmailFactory())
	registry.Register(platforms.TypeSMS, platforms.SMSFactory())
	zapLog.Info("Platform adapters registered",
		zap.Strings("types", []string{
			platforms.TypeTelegram, platforms.TypeDiscord,
			platforms.TypeEmail, platforms.TypeSMS,
		}),
	)

	// --- Webhook notifier ---
	notifier := webhooks.NewNotifier(
		webhookStore,
		deliveryStore,
		urlcheck.NewPolicy(cfg.Webhooks.AllowPrivateURLs),
		webhooks.NotifierOptions{
			Concurrency: cfg.Webhooks.Concurrency,
			Timeout:     time.Duration(cfg.Webhooks.TimeoutMS) * time.Millisecond,
			MaxAttempts: cfg.Webhooks.MaxAttempts,
			RatePerSec:  cfg.Webhooks.RatePerSec,
		},
		log,
	)

	// --- Dispatch processor ---
	processor := dispatch.NewProcessor(platformStore, attemptStore, cipher, registry, notifier, log)
	if esClient != nil {
		processor.WithAuditSink(dispatch.NewElasticAuditSink(esClient.Client, log))
	}

	// --- Job queue ---
	var jobQueue *queue.Queue
	jobQueue = queue.New(rdb.Client, queue.Options{
		Name:              cfg.Queue.Name,
		Workers:           cfg.Queue.Workers,
		MaxAttempts:       cfg.Queue.MaxAttempts,
		BackoffBase:       time.Duration(cfg.Queue.BackoffBaseMS) * time.Millisecond,
		CompletedRetained: int64(cfg.Queue.CompletedRetained),
		JobTimeout:        time.Duration(cfg.Queue.JobTimeoutMS) * time.Millisecond,
	}, func(ctx context.Context, job *models.SendJob) error {
		start := time.Now()
		result, err := processor.Process(ctx, job)
		if err != nil {
			obs.RecordJobProcessed(ctx, "error")
			obs.RecordJobDuration(ctx, time.Since(start), "error")
			return err
		}
		outcome := "complete"
		if !result.Success {
			outcome = "partial"
		}
		obs.RecordJobProcessed(ctx, outcome)
		obs.RecordJobDuration(ctx, time.Since(start), outcome)

		if err := jobQueue.SetResult(ctx, job.ID, result); err != nil {
			log.Error("job result store failed", map[string]interface{}{"jobId": job.ID, "error": err})
		}
		// Transient target failures bounce the whole job back for a queue
		// retry; already-sent targets are skipped on the next pass. A job
		// with only permanent failures completes, retrying cannot help it.
		if hasTransientFailure(result) {
			return stderrors.NewDeliveryFailedError(
				fmt.Sprintf("%d of %d targets failed", result.FailureCount, result.UniqueTargets))
		}
		return nil
	}, log)
	processor.Progress = func(jobID string, pct int) {
		if err := jobQueue.SetProgress(ctx, jobID, pct); err != nil {
			log.Debug("progress update failed", map[string]interface{}{"jobId": jobID, "error": err})
		}
	}

	runCtx, stopWorkers := context.WithCancel(ctx)
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		jobQueue.Run(runCtx)
	}()
	zapLog.Info("Queue workers started",
		zap.String("queue", cfg.Queue.Name),
		zap.Int("workers", cfg.Queue.Workers),
	)

	// --- Retention sweep ---
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Webhooks.CleanupSchedule, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := notifier.Cleanup(sweepCtx, cfg.Webhooks.RetentionDays); err != nil {
			log.Error("delivery retention sweep failed", map[string]interface{}{"error": err})
		}
	}); err != nil {
		zapLog.Fatal("cleanup schedule invalid", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	// --- HTTP API, health and metrics ---
	mux := http.NewServeMux()
	api.NewServer(jobQueue, notifier, log).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	addr := cfg.App.MetricsAddr
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}

	stopWorkers()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		zapLog.Warn("queue workers did not drain in time")
	}

	notifier.Drain()
	zapLog.Info("Courier gateway stopped gracefully")
}

func hasTransientFailure(result *dispatch.Result) bool {
	for _, r := range result.Results {
		if r.Status == models.AttemptStatusFailed && r.Classification == string(stderrors.Transient) {
			return true
		}
	}
	return false
}
