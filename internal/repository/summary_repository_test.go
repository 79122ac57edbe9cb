package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"badgewatch/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedExport = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *SummaryRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewSummaryRepository(db, zap.NewNop())
	repo.now = func() time.Time { return fixedExport }

	return db, mock, repo
}

func sampleSummaries() []models.MonthlyPersonSummary {
	last := time.Date(2024, 2, 14, 9, 30, 0, 0, time.UTC)
	return []models.MonthlyPersonSummary{
		{
			PersonID:           "p-001",
			Name:               "Avery Chen",
			MonthKey:           "2024-02",
			Severity:           models.SeverityAlert,
			IsAnomaly:          models.AnomalyDelinquent,
			AnomalyScore:       0.4,
			TotalEvents:        3,
			AcceptedCount:      2,
			DeniedCount:        1,
			BadgedDays:         []int{3, 14},
			UniqueDevices:      []string{"DEV-p-001-1"},
			UniqueDeviceCount:  1,
			DenialReasons:      []models.DenialReasonStat{{Reason: models.DenialNoAccess, Count: 1}},
			LastEventTimestamp: last,
		},
		{
			PersonID:           "p-002",
			Name:               "Blake Diaz",
			MonthKey:           "2024-02",
			Severity:           models.SeverityNormal,
			LastEventTimestamp: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestUpsertMonthlySummaries_Success(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	summaries := sampleSummaries()

	mock.ExpectBegin()
	for _, s := range summaries {
		mock.ExpectExec(`INSERT INTO monthly_person_summaries`).
			WithArgs(
				s.PersonID, s.MonthKey, s.Name, string(s.Severity), s.IsAnomaly,
				s.AnomalyScore, s.IsolationForestScore, s.ShannonEntropy,
				s.DeniedRate, s.WeekendRate, s.AfterHoursRate, s.NewLocationRate, s.RapidRepeatRate,
				s.UniqueDeviceCount, s.TotalEvents, s.AcceptedCount, s.DeniedCount,
				s.AfterHoursCount, s.WeekendCount, s.RapidBadgingCount,
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), s.LastEventTimestamp,
				"run-1", fixedExport,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	n, err := repo.UpsertMonthlySummaries(context.Background(), "run-1", summaries)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertMonthlySummaries_Empty(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	n, err := repo.UpsertMonthlySummaries(context.Background(), "run-1", nil)

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertMonthlySummaries_RollsBackOnError(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO monthly_person_summaries`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO monthly_person_summaries`).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	n, err := repo.UpsertMonthlySummaries(context.Background(), "run-1", sampleSummaries())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upsert summary p-002/2024-02")
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertMonthlySummaries_BeginError(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, err := repo.UpsertMonthlySummaries(context.Background(), "run-1", sampleSummaries())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to begin transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByMonth(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM monthly_person_summaries`).
		WithArgs("2024-02").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(40))

	count, err := repo.CountByMonth(context.Background(), "2024-02")

	require.NoError(t, err)
	assert.Equal(t, 40, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS monthly_person_summaries`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
