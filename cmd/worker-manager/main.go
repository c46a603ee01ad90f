// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"grantmatch-workers/internal/common/camunda"
	"grantmatch-workers/internal/common/config"
	"grantmatch-workers/internal/common/database"
	"grantmatch-workers/internal/common/logger"
	"grantmatch-workers/internal/common/observability"
	"grantmatch-workers/internal/grants/store"
	"grantmatch-workers/internal/recommend/activeset"
	"grantmatch-workers/internal/recommend/interaction"
	"grantmatch-workers/internal/recommend/ledger"
	"grantmatch-workers/internal/recommend/scoring"
	"grantmatch-workers/internal/recommend/service"
	"grantmatch-workers/pkg/registry"

	fg "grantmatch-workers/internal/workers/grants/filter-grants"
	sac "grantmatch-workers/internal/workers/notification/send-apply-confirmation"
	aga "grantmatch-workers/internal/workers/recommendation/apply-grant-action"
	gba "grantmatch-workers/internal/workers/recommendation/get-grants-by-action"
	gr "grantmatch-workers/internal/workers/recommendation/get-recommended"
	uga "grantmatch-workers/internal/workers/recommendation/undo-grant-action"
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
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("worker-manager")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var zeebeClient *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebeClient, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         30 * time.Second,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

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

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
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

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Compose the recommendation engine ---
	grantStore := store.NewGrantStore(esClient.Client, cfg.Database.Elasticsearch.GrantIndex, log)
	profileStore := store.NewProfileStore(
		pg.DB, redis.Client,
		time.Duration(cfg.Recommendation.ProfileCacheTTL)*time.Millisecond,
		log,
	)
	interactionLedger := ledger.New(pg.DB, log)
	scorer := scoring.NewEngine()

	setManager := activeset.NewManager(
		activeset.Config{
			TargetCount:  cfg.Recommendation.TargetCount,
			FetchTimeout: time.Duration(cfg.Recommendation.FetchTimeout) * time.Millisecond,
			FetchFactor:  cfg.Recommendation.FetchFactor,
		},
		grantStore, interactionLedger, profileStore, scorer, log,
	)
	synchronizer := interaction.NewSynchronizer(interactionLedger, setManager, log)
	svc := service.New(setManager, synchronizer, grantStore, log)

	zapLog.Info("Recommendation engine initialized")

	// Registry input schemas gate job payloads; a missing registry only
	// disables that gate.
	var fgActivity *registry.Activity
	if reg, err := registry.LoadRegistry("configs/activity-registry.json"); err != nil {
		zapLog.Warn("activity registry unavailable, input schema validation disabled", zap.Error(err))
	} else if fgActivity, err = reg.FindByTaskType(fg.TaskType); err != nil {
		zapLog.Warn("activity registry entry missing", zap.String("taskType", fg.TaskType), zap.Error(err))
	}

	// --- Register Workers ---
	var workers []*camunda.Worker

	if cfg.Workers[gr.TaskType].Enabled {
		handler := gr.NewHandler(
			&gr.Config{
				Timeout: time.Duration(cfg.Workers[gr.TaskType].Timeout) * time.Millisecond,
			},
			svc, log,
		)
		workers = append(workers, startWorker(zeebeClient, gr.TaskType, cfg.Workers[gr.TaskType], handler.Handle, zapLog))
	}

	if cfg.Workers[aga.TaskType].Enabled {
		handler := aga.NewHandler(
			&aga.Config{
				Timeout: time.Duration(cfg.Workers[aga.TaskType].Timeout) * time.Millisecond,
			},
			svc, log,
		)
		workers = append(workers, startWorker(zeebeClient, aga.TaskType, cfg.Workers[aga.TaskType], handler.Handle, zapLog))
	}

	if cfg.Workers[uga.TaskType].Enabled {
		handler := uga.NewHandler(
			&uga.Config{
				Timeout: time.Duration(cfg.Workers[uga.TaskType].Timeout) * time.Millisecond,
			},
			svc, log,
		)
		workers = append(workers, startWorker(zeebeClient, uga.TaskType, cfg.Workers[uga.TaskType], handler.Handle, zapLog))
	}

	if cfg.Workers[gba.TaskType].Enabled {
		handler := gba.NewHandler(
			&gba.Config{
				Timeout: time.Duration(cfg.Workers[gba.TaskType].Timeout) * time.Millisecond,
			},
			svc, log,
		)
		workers = append(workers, startWorker(zeebeClient, gba.TaskType, cfg.Workers[gba.TaskType], handler.Handle, zapLog))
	}

	if cfg.Workers[fg.TaskType].Enabled {
		handler := fg.NewHandler(
			&fg.Config{
				Timeout: time.Duration(cfg.Workers[fg.TaskType].Timeout) * time.Millisecond,
			},
			svc, fgActivity, log,
		)
		workers = append(workers, startWorker(zeebeClient, fg.TaskType, cfg.Workers[fg.TaskType], handler.Handle, zapLog))
	}

	if cfg.Workers[sac.TaskType].Enabled {
		handler, err := sac.NewHandler(
			&sac.Config{
				Timeout:      time.Duration(cfg.Workers[sac.TaskType].Timeout) * time.Millisecond,
				AWSRegion:    cfg.Notifications.AWS.Region,
				FromEmail:    cfg.Notifications.Email.FromEmail,
				EmailEnabled: cfg.Notifications.Email.Enabled,
				SMSEnabled:   cfg.Notifications.SMS.Enabled,
			},
			pg.DB, log,
		)
		if err != nil {
			zapLog.Fatal("failed to create send-apply-confirmation handler", zap.Error(err))
		}
		workers = append(workers, startWorker(zeebeClient, sac.TaskType, cfg.Workers[sac.TaskType], handler.Handle, zapLog))
	}

	zapLog.Info("All workers registered successfully")

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := zeebeClient.HealthCheck(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "degraded",
					"error":  err.Error(),
					"time":   time.Now().Format(time.RFC3339),
				})
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")

	for _, w := range workers {
		if w != nil {
			w.Close()
		}
	}

	// Let in-flight replenishments settle before dropping connections.
	svc.Wait()

	if err := zeebeClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func startWorker(client *camunda.Client, taskType string, wcfg config.WorkerConfig, handlerFunc camunda.HandlerFunc, log *zap.Logger) *camunda.Worker {
	if !wcfg.Enabled {
		log.Info("worker disabled", zap.String("taskType", taskType))
		return nil
	}

	return client.NewWorker(taskType, camunda.WorkerSettings{
		MaxJobsActive: wcfg.MaxJobsActive,
		Timeout:       time.Duration(wcfg.Timeout) * time.Millisecond,
	}, handlerFunc, log)
}
