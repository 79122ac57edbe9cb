package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"badgewatch/internal/aggregator"
	"badgewatch/internal/cache"
	"badgewatch/internal/config"
	"badgewatch/internal/consumer"
	"badgewatch/internal/models"
	"badgewatch/internal/repository"
	"badgewatch/internal/streams"
	"badgewatch/internal/synth"
	"badgewatch/internal/telemetry"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Refresh triggers.
const (
	TriggerStartup = "startup"
	TriggerPolling = "polling"
	TriggerEvents  = consumer.TriggerEvents
	TriggerManual  = "manual"
)

// SummaryExporter receives every rebuilt month
type SummaryExporter interface {
	UpsertMonthlySummaries(ctx context.Context, refreshID string, summaries []models.MonthlyPersonSummary) (int, error)
	CountByMonth(ctx context.Context, monthKey string) (int, error)
}

// RefreshSource blocks delivering refresh requests until ctx ends
type RefreshSource interface {
	Start(ctx context.Context) error
}

// Dependencies collaborators of the service. Exporter and Consumer are
// optional; Roster and Metrics are required.
type Dependencies struct {
	Dataset  synth.Dataset
	Roster   *cache.RosterCache
	Exporter SummaryExporter
	Consumer RefreshSource
	Metrics  *telemetry.Metrics

	// closed by Stop when set
	RedisClient *redis.Client
	DB          *sql.DB
}

// AggregatorService keeps the monthly rosters of the dataset fresh
type AggregatorService struct {
	config   *config.Config
	logger   *zap.Logger
	dataset  synth.Dataset
	roster   *cache.RosterCache
	exporter SummaryExporter
	consumer RefreshSource
	metrics  *telemetry.Metrics

	redisClient *redis.Client
	db          *sql.DB

	newRefreshID func() string
}

// NewAggregatorService wires the service from configuration: generates the
// dataset, connects Redis and Postgres when enabled, and builds the refresh
// consumer in events mode
func NewAggregatorService(cfg *config.Config, logger *zap.Logger, metrics *telemetry.Metrics) (*AggregatorService, error) {
	deps := Dependencies{
		Dataset: synth.GenerateDataset(synth.DatasetConfig{
			Seed:         cfg.Dataset.Seed,
			PersonCount:  cfg.Dataset.PersonCount,
			Anchor:       cfg.Dataset.Anchor,
			LookbackDays: cfg.Dataset.LookbackDays,
		}),
		Metrics: metrics,
	}

	var kv cache.KVStore
	if cfg.Redis.Enabled {
		redisClient := streams.NewRedisClient(&cfg.Redis)
		if err := streams.Ping(context.Background(), redisClient); err != nil {
			_ = streams.Close(redisClient)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		deps.RedisClient = redisClient
		kv = cache.NewRedisKVStore(redisClient)
	} else {
		logger.Info("Redis disabled, using in-memory roster cache")
		kv = cache.NewMemoryKVStore()
	}
	deps.Roster = cache.NewRosterCache(kv, cfg.CacheTTL(), logger)

	if cfg.Database.Enabled {
		db, err := repository.NewPostgresDB(&cfg.Database)
		if err != nil {
			_ = streams.Close(deps.RedisClient)
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		repo := repository.NewSummaryRepository(db, logger)
		if err := repo.EnsureSchema(context.Background()); err != nil {
			_ = db.Close()
			_ = streams.Close(deps.RedisClient)
			return nil, err
		}
		deps.DB = db
		deps.Exporter = repo
	}

	s := NewWithDependencies(cfg, logger, deps)
	if cfg.Aggregator.TriggerMode == config.TriggerEvents {
		s.consumer = consumer.NewRefreshConsumer(
			streams.NewBroker(deps.RedisClient),
			s,
			logger,
			cfg.Aggregator.RefreshStream,
			cfg.Aggregator.ConsumerGroup,
			cfg.Aggregator.ConsumerName,
			int64(cfg.Aggregator.BatchSize),
		)
	}
	return s, nil
}

// NewWithDependencies builds the service from ready collaborators
func NewWithDependencies(cfg *config.Config, logger *zap.Logger, deps Dependencies) *AggregatorService {
	return &AggregatorService{
		config:       cfg,
		logger:       logger,
		dataset:      deps.Dataset,
		roster:       deps.Roster,
		exporter:     deps.Exporter,
		consumer:     deps.Consumer,
		metrics:      deps.Metrics,
		redisClient:  deps.RedisClient,
		db:           deps.DB,
		newRefreshID: uuid.NewString,
	}
}

// Dataset the generated dataset
func (s *AggregatorService) Dataset() synth.Dataset {
	return s.dataset
}

// Months month keys present in the dataset, newest first
func (s *AggregatorService) Months() []string {
	return aggregator.ListMonthKeys(s.dataset.Events)
}

// Start runs the configured trigger mode until ctx is cancelled
func (s *AggregatorService) Start(ctx context.Context) error {
	s.logger.Info("Starting badgewatch aggregator service",
		zap.String("trigger_mode", s.config.Aggregator.TriggerMode),
		zap.Int("person_count", len(s.dataset.People)),
		zap.Int("event_count", len(s.dataset.Events)),
		zap.Bool("export_enabled", s.exporter != nil),
	)
	s.metrics.DatasetEvents.Set(float64(len(s.dataset.Events)))

	switch s.config.Aggregator.TriggerMode {
	case config.TriggerPolling:
		return s.startPollingMode(ctx)
	case config.TriggerEvents:
		return s.startEventDrivenMode(ctx)
	default:
		return fmt.Errorf("unsupported trigger mode: %s", s.config.Aggregator.TriggerMode)
	}
}

func (s *AggregatorService) startPollingMode(ctx context.Context) error {
	interval := s.config.PollingInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Starting polling mode", zap.Duration("interval", interval))

	if err := s.RefreshAll(ctx, TriggerStartup); err != nil {
		s.logger.Error("Failed to refresh rosters on startup", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.RefreshAll(ctx, TriggerPolling); err != nil {
				s.logger.Error("Failed to refresh rosters", zap.Error(err))
			}
		}
	}
}

func (s *AggregatorService) startEventDrivenMode(ctx context.Context) error {
	s.logger.Info("Starting event-driven mode")

	if err := s.RefreshAll(ctx, TriggerStartup); err != nil {
		s.logger.Error("Failed to refresh rosters on startup", zap.Error(err))
	}

	if s.consumer == nil {
		return errors.New("refresh consumer not initialized")
	}
	return s.consumer.Start(ctx)
}

// RefreshAll rebuilds every month. A failing month is logged and counted;
// the remaining months are still rebuilt.
func (s *AggregatorService) RefreshAll(ctx context.Context, trigger string) error {
	months := s.Months()
	successCount := 0
	errorCount := 0

	for _, monthKey := range months {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.RefreshMonth(ctx, trigger, monthKey); err != nil {
			s.logger.Error("Failed to refresh month",
				zap.String("month_key", monthKey),
				zap.Error(err),
			)
			errorCount++
			continue
		}
		successCount++
	}

	s.logger.Info("Completed refreshing rosters",
		zap.String("trigger", trigger),
		zap.Int("success_count", successCount),
		zap.Int("error_count", errorCount),
		zap.Int("total_count", len(months)),
	)

	if errorCount > 0 {
		return fmt.Errorf("failed to refresh %d of %d months", errorCount, len(months))
	}
	return nil
}

// RefreshMonth rebuilds one month, writes it to the roster cache and, when
// configured, exports it to Postgres
func (s *AggregatorService) RefreshMonth(ctx context.Context, trigger, monthKey string) (err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveRefresh(trigger, started, err) }()

	refreshID := s.newRefreshID()
	summaries, err := aggregator.BuildMonthlySummaries(s.dataset.People, s.dataset.Events, monthKey)
	if err != nil {
		return err
	}

	if err = s.roster.Put(ctx, monthKey, summaries); err != nil {
		return fmt.Errorf("failed to cache roster %s: %w", monthKey, err)
	}

	if s.exporter != nil {
		if err = s.export(ctx, refreshID, monthKey, summaries); err != nil {
			// drop the roster written above; readers rebuild it
			if invErr := s.roster.Invalidate(ctx, monthKey); invErr != nil {
				s.logger.Warn("Failed to invalidate roster cache",
					zap.String("month_key", monthKey),
					zap.Error(invErr),
				)
			}
			return err
		}
	}

	s.logger.Debug("Refreshed month",
		zap.String("refresh_id", refreshID),
		zap.String("trigger", trigger),
		zap.String("month_key", monthKey),
		zap.Int("person_count", len(summaries)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// export upserts the month into the sink and logs the stored row count
func (s *AggregatorService) export(ctx context.Context, refreshID, monthKey string, summaries []models.MonthlyPersonSummary) error {
	n, err := s.exporter.UpsertMonthlySummaries(ctx, refreshID, summaries)
	if err != nil {
		return fmt.Errorf("failed to export roster %s: %w", monthKey, err)
	}
	s.metrics.ExportedRows.Add(float64(n))

	stored, err := s.exporter.CountByMonth(ctx, monthKey)
	if err != nil {
		s.logger.Warn("Failed to count exported summaries",
			zap.String("month_key", monthKey),
			zap.Error(err),
		)
		return nil
	}
	s.logger.Debug("Exported roster",
		zap.String("refresh_id", refreshID),
		zap.String("month_key", monthKey),
		zap.Int("written", n),
		zap.Int("stored", stored),
	)
	return nil
}

// Roster monthly roster, served from the cache when present. hit reports
// whether the cache answered.
func (s *AggregatorService) Roster(ctx context.Context, monthKey string) (summaries []models.MonthlyPersonSummary, hit bool, err error) {
	if _, err := aggregator.ParseMonthKey(monthKey); err != nil {
		return nil, false, err
	}

	cached, err := s.roster.Get(ctx, monthKey)
	switch {
	case err == nil:
		s.metrics.ObserveCache(telemetry.CacheHit)
		return cached, true, nil
	case errors.Is(err, cache.ErrCacheMiss):
		s.metrics.ObserveCache(telemetry.CacheMiss)
	default:
		s.metrics.ObserveCache(telemetry.CacheError)
		s.logger.Warn("Roster cache lookup failed",
			zap.String("month_key", monthKey),
			zap.Error(err),
		)
	}

	summaries, err = aggregator.BuildMonthlySummaries(s.dataset.People, s.dataset.Events, monthKey)
	if err != nil {
		return nil, false, err
	}
	if err := s.roster.Put(ctx, monthKey, summaries); err != nil {
		s.logger.Warn("Failed to backfill roster cache",
			zap.String("month_key", monthKey),
			zap.Error(err),
		)
	}
	return summaries, false, nil
}

// Stop closes Redis and the database
func (s *AggregatorService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping badgewatch aggregator service")

	if s.redisClient != nil {
		if err := streams.Close(s.redisClient); err != nil {
			s.logger.Error("Error closing redis connection", zap.Error(err))
		}
	}

	if s.db != nil {
		if err := repository.Close(s.db); err != nil {
			s.logger.Error("Error closing database connection", zap.Error(err))
		}
	}

	s.logger.Info("Badgewatch aggregator service stopped")
	return nil
}
