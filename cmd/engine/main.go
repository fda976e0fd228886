package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vitalsense/pulsewatch/internal/adapters/config"
	"github.com/vitalsense/pulsewatch/internal/adapters/database"
	redisadapter "github.com/vitalsense/pulsewatch/internal/adapters/redis"
	"github.com/vitalsense/pulsewatch/internal/adapters/telegram"
	"github.com/vitalsense/pulsewatch/internal/baseline"
	"github.com/vitalsense/pulsewatch/internal/measurements"
	"github.com/vitalsense/pulsewatch/internal/rules"
	"github.com/vitalsense/pulsewatch/internal/triggers"
	"github.com/vitalsense/pulsewatch/internal/workers"
	"github.com/vitalsense/pulsewatch/pkg/logger"
	"github.com/vitalsense/pulsewatch/pkg/worker"

	_ "github.com/lib/pq"
)

func main() {
	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Symptom deviation engine starting...",
		zap.String("match_policy", cfg.Engine.MatchPolicy),
		zap.Int("min_baseline_samples", cfg.Engine.MinBaselineSamples),
	)

	// Initialize database
	db, err := initDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// Initialize optional ClickHouse archive; baselines fall back to the
	// Postgres feed when it is absent
	measurementsRepo := measurements.NewRepository(db.DB())

	var history workers.HistorySource = measurementsRepo
	if cfg.ClickHouse.Enabled {
		chDB, err := database.NewClickHouse(cfg.ClickHouse.GetDSN())
		if err != nil {
			logger.Warn("ClickHouse unavailable, baselines will read the Postgres feed",
				zap.Error(err),
			)
		} else {
			defer chDB.Close()
			history = measurements.NewArchive(chDB.DB())
			logger.Info("ClickHouse measurement archive connected",
				zap.String("host", cfg.ClickHouse.Host),
			)
		}
	}

	// Initialize Redis for trigger locks and the live trigger cache.
	// Without Redis a single instance still runs correctly on local locks.
	lockFactory, triggerCache := initRedis(cfg)

	// Initialize notification bridge
	bridge := initBridge(cfg)

	// Wire the engine
	rulesRepo := rules.NewRepository(db.DB())
	baselineStore := baseline.NewStore(db.DB())
	calculator := baseline.NewCalculator(cfg.Engine.MinBaselineSamples)

	triggerRepo := triggers.NewRepository(db.DB())
	manager := triggers.NewManager(triggerRepo, bridge, lockFactory, triggerCache)

	evalWorker := workers.NewEvaluationWorker(rulesRepo, measurementsRepo, baselineStore, manager, &cfg.Engine)
	baselineWorker := workers.NewBaselineWorker(rulesRepo, measurementsRepo, history, calculator, baselineStore, &cfg.Engine)

	group := worker.NewWorkerGroup(ctx)
	group.Add(baselineWorker, cfg.Engine.BaselineInterval)
	group.Add(evalWorker, cfg.Engine.EvalInterval)
	group.Start()

	<-ctx.Done()
	logger.Info("shutting down gracefully...")
	group.Stop(30 * time.Second)

	return nil
}

// initDatabase initializes database connection with sqlx
func initDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	migrationsPath := "./migrations"
	if err := database.RunMigrations(db.Conn(), migrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("database connection established (sqlx)",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Name),
	)

	return db, nil
}

// initRedis connects Redis when enabled, falling back to in-process locks
func initRedis(cfg *config.Config) (redisadapter.LockFactory, *triggers.Cache) {
	if !cfg.Redis.Enabled {
		logger.Info("Redis disabled, using in-process trigger locks")
		return redisadapter.NewLocalLockFactory(), nil
	}

	client, err := redisadapter.New(&cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, using in-process trigger locks",
			zap.Error(err),
		)
		return redisadapter.NewLocalLockFactory(), nil
	}

	factory := redisadapter.NewRedisLockFactory(client.GetLockManager()).
		WithTTL(cfg.Engine.TriggerLockTTL)
	cache := triggers.NewCache(client.Cache(), cfg.Engine.TriggerCacheTTL)

	return factory, cache
}

// initBridge wires the Telegram notifier when configured
func initBridge(cfg *config.Config) triggers.Bridge {
	if cfg.Telegram.BotToken == "" {
		logger.Info("no notification channel configured, trigger events are dropped")
		return triggers.NopBridge{}
	}

	notifier, err := telegram.NewNotifier(&cfg.Telegram)
	if err != nil {
		logger.Error("failed to create telegram notifier, trigger events are dropped",
			zap.Error(err),
		)
		return triggers.NopBridge{}
	}

	logger.Info("📱 Telegram notification bridge ready",
		zap.Int64("chat_id", cfg.Telegram.ChatID),
	)

	return notifier
}
