// cmd/prediction-server/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"credit-prediction/internal/api"
	"credit-prediction/internal/batch"
	"credit-prediction/internal/common/aws"
	"credit-prediction/internal/common/camunda"
	"credit-prediction/internal/common/config"
	"credit-prediction/internal/common/database"
	"credit-prediction/internal/common/logger"
	"credit-prediction/internal/common/observability"
	"credit-prediction/internal/inference"
	"credit-prediction/internal/metadata"
	"credit-prediction/internal/store"
	"credit-prediction/pkg/registry"

	pcl "credit-prediction/internal/workers/scoring/predict-credit-limit"
	pct "credit-prediction/internal/workers/scoring/predict-credit-tier"
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
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting prediction server...",
		zap.String("app", cfg.App.Name),
		zap.String("environment", cfg.App.Environment),
	)

	obs, err := observability.New(cfg.App.Name, observability.WithTracing(cfg.Tracing.Enabled, cfg.Tracing.SampleRatio))
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Pipelines ---
	st := store.Load(ctx, store.SourcesFrom(cfg.Artifacts), log)
	if st.LoadedCount() == 0 {
		zapLog.Warn("No pipeline loaded; prediction endpoints will reject requests")
	}

	// --- Result cache (optional) ---
	var inferenceOpts []inference.Option
	if cfg.Cache.Enabled {
		redis := database.NewRedis(cfg.Cache.Redis)
		err = retryWithBackoff(func() error { return redis.Ping(ctx) }, 5, time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Warn("result cache disabled", zap.Error(err))
			redis.Close()
		} else {
			defer redis.Close()
			cache := inference.NewCache(redis, time.Duration(cfg.Cache.TTL)*time.Second, log)
			inferenceOpts = append(inferenceOpts, inference.WithCache(cache))
			zapLog.Info("Redis result cache enabled")
		}
	}

	// --- Metrics tables ---
	var source metadata.MetricsSource = metadata.NewCSVSource(cfg.Artifacts)
	if cfg.Database.Postgres.Enabled {
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 5, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Warn("postgres metrics source unavailable, using CSV files", zap.Error(err))
		} else {
			defer pg.Close()
			source = metadata.NewPostgresSource(pg)
			zapLog.Info("PostgreSQL metrics source connected")
		}
	}

	// --- Batch notifications (optional) ---
	batchOpts := []batch.Option{batch.WithObservability(obs), batch.WithLogger(log)}
	if cfg.Notifications.SNS.Enabled {
		sns, err := aws.NewSNSClient(ctx, cfg.Notifications.SNS.Region, cfg.Notifications.SNS.TopicARN)
		if err != nil {
			zapLog.Warn("batch notifications disabled", zap.Error(err))
		} else {
			batchOpts = append(batchOpts, batch.WithNotifier(batch.NewSNSNotifier(sns, log)))
		}
	}

	inferenceOpts = append(inferenceOpts, inference.WithObservability(obs), inference.WithLogger(log))
	predictor := inference.NewEngine(st, inferenceOpts...)
	scorer := batch.NewEngine(st, cfg.Batch, batchOpts...)
	reporter := metadata.NewReporter(st, source, cfg.Serving, log)

	// --- Zeebe workers (optional) ---
	var workers []*camunda.CamundaWorker
	if cfg.Camunda.Enabled {
		var zeebe *camunda.Client
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(ctx, camunda.ClientConfigFrom(cfg.Camunda))
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer zeebe.Close()
		activities := registry.Default()

		if config.IsWorkerEnabled(cfg, pcl.TaskType) {
			handler := pcl.NewHandler(pcl.LoadConfig(cfg), predictor, log)
			workers = append(workers, startWorker(zeebe, activities, pcl.TaskType, config.GetWorkerConfig(cfg, pcl.TaskType), handler, zapLog))
		}
		if config.IsWorkerEnabled(cfg, pct.TaskType) {
			handler := pct.NewHandler(pct.LoadConfig(cfg), predictor, log)
			workers = append(workers, startWorker(zeebe, activities, pct.TaskType, config.GetWorkerConfig(cfg, pct.TaskType), handler, zapLog))
		}
		zapLog.Info("Zeebe workers registered", zap.Int("count", len(workers)))
	}

	// --- HTTP ---
	server := api.NewServer(cfg.Server, api.Dependencies{
		Store:             st,
		Inference:         predictor,
		Batch:             scorer,
		Reporter:          reporter,
		Obs:               obs,
		Logger:            log,
		DefaultSchemaKind: cfg.Serving.DefaultSchemaKind,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// --- Graceful Shutdown ---
	select {
	case <-ctx.Done():
		zapLog.Info("Shutdown signal received, stopping...")
	case err := <-serverErr:
		if err != nil {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}

	for _, w := range workers {
		w.Stop()
	}
	if err := server.Shutdown(context.Background()); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("observability shutdown failed", zap.Error(err))
	}
	zapLog.Info("Prediction server stopped")
}

func startWorker(client *camunda.Client, activities *registry.ActivityRegistry, taskType string, wc config.WorkerConfig, handler camunda.JobHandler, log *zap.Logger) *camunda.CamundaWorker {
	if a, ok := activities.Find(taskType); ok {
		log.Info("Registering worker",
			zap.String("taskType", taskType),
			zap.String("activity", a.DisplayName),
			zap.String("version", a.Version),
		)
	} else {
		log.Warn("Worker has no activity registry entry", zap.String("taskType", taskType))
	}
	return camunda.NewWorker(
		client.GetClient(),
		taskType,
		wc.MaxJobsActive,
		config.GetDuration(wc.Timeout),
		handler,
		log,
	)
}
