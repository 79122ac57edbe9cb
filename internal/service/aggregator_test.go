package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"badgewatch/internal/aggregator"
	"badgewatch/internal/cache"
	"badgewatch/internal/config"
	"badgewatch/internal/models"
	"badgewatch/internal/synth"
	"badgewatch/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockSummaryExporter is a mock implementation of SummaryExporter
type MockSummaryExporter struct {
	mock.Mock
}

func (m *MockSummaryExporter) UpsertMonthlySummaries(ctx context.Context, refreshID string, summaries []models.MonthlyPersonSummary) (int, error) {
	args := m.Called(refreshID, summaries)
	return args.Int(0), args.Error(1)
}

func (m *MockSummaryExporter) CountByMonth(ctx context.Context, monthKey string) (int, error) {
	args := m.Called(monthKey)
	return args.Int(0), args.Error(1)
}

type failingKVStore struct{}

func (failingKVStore) Get(ctx context.Context, key string) (string, error) {
	return "", errors.New("connection reset")
}

func (failingKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return errors.New("connection reset")
}

func (failingKVStore) Del(ctx context.Context, keys ...string) error {
	return errors.New("connection reset")
}

type stubSource struct {
	started bool
	err     error
}

func (s *stubSource) Start(ctx context.Context) error {
	s.started = true
	return s.err
}

func testConfig(mode string) *config.Config {
	cfg := &config.Config{}
	cfg.Aggregator.TriggerMode = mode
	cfg.Aggregator.Polling.Interval = 3600
	cfg.Cache.TTL = 60
	return cfg
}

func testDataset() synth.Dataset {
	return synth.GenerateDataset(synth.DatasetConfig{Seed: "svc", PersonCount: 6})
}

func newTestService(t *testing.T, kv cache.KVStore, exporter SummaryExporter) (*AggregatorService, *telemetry.Metrics) {
	t.Helper()
	metrics := telemetry.New()
	deps := Dependencies{
		Dataset:  testDataset(),
		Roster:   cache.NewRosterCache(kv, time.Minute, zap.NewNop()),
		Exporter: exporter,
		Metrics:  metrics,
	}
	s := NewWithDependencies(testConfig(config.TriggerPolling), zap.NewNop(), deps)
	s.newRefreshID = func() string { return "refresh-1" }
	return s, metrics
}

func TestRefreshMonth_CachesAndExports(t *testing.T) {
	kv := cache.NewMemoryKVStore()
	exporter := &MockSummaryExporter{}
	s, metrics := newTestService(t, kv, exporter)

	monthKey := s.Months()[0]
	want, err := aggregator.BuildMonthlySummaries(s.dataset.People, s.dataset.Events, monthKey)
	require.NoError(t, err)

	exporter.On("UpsertMonthlySummaries", "refresh-1", want).Return(len(want), nil).Once()
	exporter.On("CountByMonth", monthKey).Return(len(want), nil).Once()

	require.NoError(t, s.RefreshMonth(context.Background(), TriggerManual, monthKey))

	exporter.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RefreshRuns.WithLabelValues(TriggerManual, telemetry.StatusSuccess)))
	assert.Equal(t, float64(len(want)), testutil.ToFloat64(metrics.ExportedRows))

	roster, hit, err := s.Roster(context.Background(), monthKey)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, want, roster)
}

func TestRefreshMonth_InvalidMonth(t *testing.T) {
	s, metrics := newTestService(t, cache.NewMemoryKVStore(), nil)

	err := s.RefreshMonth(context.Background(), TriggerEvents, "2024-13")

	require.Error(t, err)
	assert.ErrorIs(t, err, aggregator.ErrInvalidMonthKey)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RefreshRuns.WithLabelValues(TriggerEvents, telemetry.StatusFailed)))
}

func TestRefreshMonth_ExportErrorInvalidatesRoster(t *testing.T) {
	exporter := &MockSummaryExporter{}
	exporter.On("UpsertMonthlySummaries", mock.Anything, mock.Anything).
		Return(0, errors.New("db down"))
	kv := cache.NewMemoryKVStore()
	s, metrics := newTestService(t, kv, exporter)
	monthKey := s.Months()[0]

	_, _, err := s.Roster(context.Background(), monthKey)
	require.NoError(t, err)
	_, err = kv.Get(context.Background(), cache.RosterKey(monthKey))
	require.NoError(t, err)

	err = s.RefreshMonth(context.Background(), TriggerManual, monthKey)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to export roster")
	_, err = kv.Get(context.Background(), cache.RosterKey(monthKey))
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
	exporter.AssertNotCalled(t, "CountByMonth", mock.Anything)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RefreshRuns.WithLabelValues(TriggerManual, telemetry.StatusFailed)))
}

func TestRefreshMonth_CountErrorIsNotFatal(t *testing.T) {
	exporter := &MockSummaryExporter{}
	exporter.On("UpsertMonthlySummaries", mock.Anything, mock.Anything).Return(6, nil)
	exporter.On("CountByMonth", mock.Anything).Return(0, errors.New("timeout"))
	s, _ := newTestService(t, cache.NewMemoryKVStore(), exporter)

	require.NoError(t, s.RefreshMonth(context.Background(), TriggerManual, s.Months()[0]))
	exporter.AssertExpectations(t)
}

func TestRefreshAll_EveryMonth(t *testing.T) {
	exporter := &MockSummaryExporter{}
	exporter.On("UpsertMonthlySummaries", "refresh-1", mock.Anything).Return(6, nil)
	exporter.On("CountByMonth", mock.Anything).Return(6, nil)
	s, metrics := newTestService(t, cache.NewMemoryKVStore(), exporter)

	months := s.Months()
	require.NotEmpty(t, months)

	require.NoError(t, s.RefreshAll(context.Background(), TriggerPolling))

	exporter.AssertNumberOfCalls(t, "UpsertMonthlySummaries", len(months))
	assert.Equal(t, float64(len(months)), testutil.ToFloat64(metrics.RefreshRuns.WithLabelValues(TriggerPolling, telemetry.StatusSuccess)))
}

func TestRefreshAll_CountsFailures(t *testing.T) {
	s, metrics := newTestService(t, failingKVStore{}, nil)

	err := s.RefreshAll(context.Background(), TriggerPolling)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "months")
	assert.Equal(t, float64(len(s.Months())), testutil.ToFloat64(metrics.RefreshRuns.WithLabelValues(TriggerPolling, telemetry.StatusFailed)))
}

func TestRoster_MissBuildsAndBackfills(t *testing.T) {
	s, metrics := newTestService(t, cache.NewMemoryKVStore(), nil)
	monthKey := s.Months()[0]

	first, hit, err := s.Roster(context.Background(), monthKey)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, first, len(s.dataset.People))

	second, hit, err := s.Roster(context.Background(), monthKey)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RosterCache.WithLabelValues(telemetry.CacheMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RosterCache.WithLabelValues(telemetry.CacheHit)))
}

func TestRoster_CacheErrorFallsBack(t *testing.T) {
	s, metrics := newTestService(t, failingKVStore{}, nil)

	roster, hit, err := s.Roster(context.Background(), s.Months()[0])

	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotEmpty(t, roster)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RosterCache.WithLabelValues(telemetry.CacheError)))
}

func TestRoster_ZeroEventMonth(t *testing.T) {
	s, _ := newTestService(t, cache.NewMemoryKVStore(), nil)

	roster, _, err := s.Roster(context.Background(), "2023-06")

	require.NoError(t, err)
	require.Len(t, roster, len(s.dataset.People))
	for _, row := range roster {
		assert.Zero(t, row.TotalEvents)
	}
}

func TestRoster_InvalidMonth(t *testing.T) {
	s, _ := newTestService(t, cache.NewMemoryKVStore(), nil)

	_, _, err := s.Roster(context.Background(), "Feb-2024")
	assert.ErrorIs(t, err, aggregator.ErrInvalidMonthKey)
}

func TestStart_PollingStopsOnCancel(t *testing.T) {
	s, metrics := newTestService(t, cache.NewMemoryKVStore(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.RefreshRuns.WithLabelValues(TriggerStartup, telemetry.StatusSuccess)) == float64(len(s.Months()))
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.Equal(t, float64(len(s.dataset.Events)), testutil.ToFloat64(metrics.DatasetEvents))
}

func TestStart_EventsModeRunsConsumer(t *testing.T) {
	s, _ := newTestService(t, cache.NewMemoryKVStore(), nil)
	s.config = testConfig(config.TriggerEvents)
	source := &stubSource{}
	s.consumer = source

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, source.started)
}

func TestStart_EventsModeWithoutConsumer(t *testing.T) {
	s, _ := newTestService(t, cache.NewMemoryKVStore(), nil)
	s.config = testConfig(config.TriggerEvents)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh consumer not initialized")
}

func TestStart_UnsupportedMode(t *testing.T) {
	s, _ := newTestService(t, cache.NewMemoryKVStore(), nil)
	s.config = testConfig("cron")

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported trigger mode")
}

func TestStop_WithoutConnections(t *testing.T) {
	s, _ := newTestService(t, cache.NewMemoryKVStore(), nil)
	assert.NoError(t, s.Stop(context.Background()))
}
