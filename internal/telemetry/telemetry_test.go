package telemetry

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRefresh(t *testing.T) {
	m := New()

	m.ObserveRefresh("polling", time.Now(), nil)
	m.ObserveRefresh("polling", time.Now(), nil)
	m.ObserveRefresh("events", time.Now(), errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RefreshRuns.WithLabelValues("polling", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshRuns.WithLabelValues("events", StatusFailed)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RefreshRuns.WithLabelValues("events", StatusSuccess)))
}

func TestObserveCache(t *testing.T) {
	m := New()

	m.ObserveCache(CacheHit)
	m.ObserveCache(CacheMiss)
	m.ObserveCache(CacheMiss)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RosterCache.WithLabelValues(CacheHit)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RosterCache.WithLabelValues(CacheMiss)))
}

func TestRegistriesAreIsolated(t *testing.T) {
	a, b := New(), New()
	a.DatasetEvents.Set(42)

	assert.Equal(t, 42.0, testutil.ToFloat64(a.DatasetEvents))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.DatasetEvents))
}

func TestHandler(t *testing.T) {
	m := New()
	m.DatasetEvents.Set(7)
	m.ObserveRefresh("startup", time.Now(), nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "badgewatch_dataset_events 7")
	assert.Contains(t, string(body), `badgewatch_refresh_runs_total{status="success",trigger="startup"} 1`)
	assert.Contains(t, string(body), "badgewatch_refresh_duration_seconds_bucket")
}
