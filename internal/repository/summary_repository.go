package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"badgewatch/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const createSummariesTable = `
	CREATE TABLE IF NOT EXISTS monthly_person_summaries (
		person_id              TEXT NOT NULL,
		month_key              CHAR(7) NOT NULL,
		name                   TEXT NOT NULL,
		severity               TEXT NOT NULL,
		is_anomaly             SMALLINT NOT NULL,
		anomaly_score          DOUBLE PRECISION NOT NULL,
		isolation_forest_score DOUBLE PRECISION NOT NULL,
		shannon_entropy        DOUBLE PRECISION NOT NULL,
		denied_rate            DOUBLE PRECISION NOT NULL,
		weekend_rate           DOUBLE PRECISION NOT NULL,
		after_hours_rate       DOUBLE PRECISION NOT NULL,
		new_location_rate      DOUBLE PRECISION NOT NULL,
		rapid_repeat_rate      DOUBLE PRECISION NOT NULL,
		unique_device_count    INT NOT NULL,
		total_events           INT NOT NULL,
		accepted_count         INT NOT NULL,
		denied_count           INT NOT NULL,
		after_hours_count      INT NOT NULL,
		weekend_count          INT NOT NULL,
		rapid_badging_count    INT NOT NULL,
		badged_days            INT[] NOT NULL,
		unique_devices         TEXT[] NOT NULL,
		denial_reasons         JSONB NOT NULL,
		last_event_at          TIMESTAMPTZ NOT NULL,
		refresh_id             UUID NOT NULL,
		exported_at            TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (person_id, month_key)
	)`

const upsertSummary = `
	INSERT INTO monthly_person_summaries (
		person_id, month_key, name, severity, is_anomaly,
		anomaly_score, isolation_forest_score, shannon_entropy,
		denied_rate, weekend_rate, after_hours_rate, new_location_rate, rapid_repeat_rate,
		unique_device_count, total_events, accepted_count, denied_count,
		after_hours_count, weekend_count, rapid_badging_count,
		badged_days, unique_devices, denial_reasons, last_event_at,
		refresh_id, exported_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26
	)
	ON CONFLICT (person_id, month_key) DO UPDATE SET
		name = EXCLUDED.name,
		severity = EXCLUDED.severity,
		is_anomaly = EXCLUDED.is_anomaly,
		anomaly_score = EXCLUDED.anomaly_score,
		isolation_forest_score = EXCLUDED.isolation_forest_score,
		shannon_entropy = EXCLUDED.shannon_entropy,
		denied_rate = EXCLUDED.denied_rate,
		weekend_rate = EXCLUDED.weekend_rate,
		after_hours_rate = EXCLUDED.after_hours_rate,
		new_location_rate = EXCLUDED.new_location_rate,
		rapid_repeat_rate = EXCLUDED.rapid_repeat_rate,
		unique_device_count = EXCLUDED.unique_device_count,
		total_events = EXCLUDED.total_events,
		accepted_count = EXCLUDED.accepted_count,
		denied_count = EXCLUDED.denied_count,
		after_hours_count = EXCLUDED.after_hours_count,
		weekend_count = EXCLUDED.weekend_count,
		rapid_badging_count = EXCLUDED.rapid_badging_count,
		badged_days = EXCLUDED.badged_days,
		unique_devices = EXCLUDED.unique_devices,
		denial_reasons = EXCLUDED.denial_reasons,
		last_event_at = EXCLUDED.last_event_at,
		refresh_id = EXCLUDED.refresh_id,
		exported_at = EXCLUDED.exported_at`

// SummaryRepository write-only Postgres sink for monthly summaries
type SummaryRepository struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewSummaryRepository creates a new summary repository
func NewSummaryRepository(db *sql.DB, logger *zap.Logger) *SummaryRepository {
	return &SummaryRepository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// EnsureSchema creates the summaries table if it does not exist
func (r *SummaryRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createSummariesTable); err != nil {
		return fmt.Errorf("failed to create monthly_person_summaries: %w", err)
	}
	return nil
}

// UpsertMonthlySummaries writes summaries in one transaction, replacing
// rows with the same (person_id, month_key). Returns the number written.
func (r *SummaryRepository) UpsertMonthlySummaries(ctx context.Context, refreshID string, summaries []models.MonthlyPersonSummary) (int, error) {
	if len(summaries) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	exportedAt := r.now()
	for _, s := range summaries {
		var reasons []byte
		reasons, err = json.Marshal(s.DenialReasons)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal denial reasons: %w", err)
		}

		days := make([]int64, len(s.BadgedDays))
		for i, d := range s.BadgedDays {
			days[i] = int64(d)
		}
		devices := s.UniqueDevices
		if devices == nil {
			devices = []string{}
		}

		_, err = tx.ExecContext(ctx, upsertSummary,
			s.PersonID, s.MonthKey, s.Name, string(s.Severity), s.IsAnomaly,
			s.AnomalyScore, s.IsolationForestScore, s.ShannonEntropy,
			s.DeniedRate, s.WeekendRate, s.AfterHoursRate, s.NewLocationRate, s.RapidRepeatRate,
			s.UniqueDeviceCount, s.TotalEvents, s.AcceptedCount, s.DeniedCount,
			s.AfterHoursCount, s.WeekendCount, s.RapidBadgingCount,
			pq.Array(days), pq.Array(devices), string(reasons), s.LastEventTimestamp,
			refreshID, exportedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert summary %s/%s: %w", s.PersonID, s.MonthKey, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debug("Exported monthly summaries",
		zap.String("refresh_id", refreshID),
		zap.String("month_key", summaries[0].MonthKey),
		zap.Int("count", len(summaries)),
	)
	return len(summaries), nil
}

// CountByMonth counts exported rows for a month
func (r *SummaryRepository) CountByMonth(ctx context.Context, monthKey string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM monthly_person_summaries WHERE month_key = $1`,
		monthKey,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count summaries: %w", err)
	}
	return count, nil
}
