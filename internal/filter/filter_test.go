package filter_test

import (
	"math"
	"testing"
	"time"

	"badgewatch/internal/filter"
	"badgewatch/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(day, hour int) time.Time {
	return time.Date(2024, time.February, day, hour, 30, 0, 0, time.UTC)
}

func sampleEvents() []models.BadgeEvent {
	expired := models.DenialExpiredBadge
	return []models.BadgeEvent{
		{ID: "e1", PersonID: "p-001", Timestamp: at(1, 0), ScannerID: "SC-100", Outcome: models.OutcomeApproved, DeviceID: "DEV-p-001-1", Flags: []models.Flag{models.FlagAfterHours}},
		{ID: "e2", PersonID: "p-001", Timestamp: at(10, 9), ScannerID: "SC-101", Outcome: models.OutcomeDenied, DenialReason: &expired, DeviceID: "DEV-p-001-2", Flags: []models.Flag{}},
		{ID: "e3", PersonID: "p-002", Timestamp: at(10, 22), ScannerID: "SC-102", Outcome: models.OutcomeApproved, DeviceID: "DEV-p-002-7", Flags: []models.Flag{models.FlagAfterHours, models.FlagNewLocation}},
		{ID: "e4", PersonID: "p-002", Timestamp: at(20, 12), ScannerID: "SC-100", Outcome: models.OutcomeApproved, DeviceID: "DEV-p-002-1", Flags: []models.Flag{models.FlagRapidRepeat}},
	}
}

func baseState() filter.FilterState {
	s := filter.DefaultFilters(time.Date(2024, time.February, 29, 12, 0, 0, 0, time.UTC))
	s.DateRange = filter.DateRange{}
	return s
}

func ids(events []models.BadgeEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}

func TestFilterEvents(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *filter.FilterState)
		want   []string
	}{
		{"no restriction", func(s *filter.FilterState) {}, []string{"e1", "e2", "e3", "e4"}},
		{"date range inclusive of whole end day", func(s *filter.FilterState) {
			s.DateRange = filter.DateRange{Start: "2024-02-01", End: "2024-02-10"}
		}, []string{"e1", "e2", "e3"}},
		{"timestamp bounds use calendar date", func(s *filter.FilterState) {
			s.DateRange = filter.DateRange{Start: "2024-02-10T23:00:00Z", End: "2024-02-20T00:00:00Z"}
		}, []string{"e2", "e3", "e4"}},
		{"unparseable bound is open", func(s *filter.FilterState) {
			s.DateRange = filter.DateRange{Start: "not-a-date", End: "2024-02-01"}
		}, []string{"e1"}},
		{"denied only", func(s *filter.FilterState) { s.IncludeApproved = false }, []string{"e2"}},
		{"both outcomes excluded", func(s *filter.FilterState) {
			s.IncludeApproved = false
			s.IncludeDenied = false
		}, []string{}},
		{"location allow-list", func(s *filter.FilterState) { s.Locations = []string{"SC-100"} }, []string{"e1", "e4"}},
		{"device substring case-insensitive", func(s *filter.FilterState) { s.DeviceIDQuery = "  dev-P-002 " }, []string{"e3", "e4"}},
		{"after hours only", func(s *filter.FilterState) { s.AfterHoursOnly = true }, []string{"e1", "e3"}},
		{"flagged only", func(s *filter.FilterState) { s.FlaggedOnly = true }, []string{"e1", "e3", "e4"}},
		{"required flags superset", func(s *filter.FilterState) {
			s.RequiredFlags = []models.Flag{models.FlagAfterHours, models.FlagNewLocation}
		}, []string{"e3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := baseState()
			tt.mutate(&s)
			got := filter.FilterEvents(sampleEvents(), s)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestFilterEvents_LocalCalendarDates(t *testing.T) {
	east := time.FixedZone("UTC+5", 5*60*60)
	s := baseState()
	s.Location = east
	s.DateRange = filter.DateRange{Start: "2024-02-11", End: "2024-02-11"}

	// e3 is 22:30 UTC on the 10th, 03:30 on the 11th at UTC+5
	assert.Equal(t, []string{"e3"}, ids(filter.FilterEvents(sampleEvents(), s)))
}

func TestFilterPeople(t *testing.T) {
	people := []models.Person{
		{ID: "p-001", Name: "Avery Chen"},
		{ID: "p-002", Name: "Malik Johnson"},
		{ID: "p-003", Name: "Priya Nayar"},
	}

	s := baseState()
	assert.Len(t, filter.FilterPeople(people, s), 3)

	s.PersonQuery = " CHEN"
	got := filter.FilterPeople(people, s)
	require.Len(t, got, 1)
	assert.Equal(t, "p-001", got[0].ID)

	s.PersonQuery = "p-00"
	assert.Len(t, filter.FilterPeople(people, s), 3)

	s.PersonQuery = "nobody"
	assert.Empty(t, filter.FilterPeople(people, s))
}

func TestNormalizeAnomalyRange(t *testing.T) {
	tests := []struct {
		in   filter.AnomalyRange
		want filter.AnomalyRange
	}{
		{filter.AnomalyRange{Min: 80, Max: 20}, filter.AnomalyRange{Min: 20, Max: 80}},
		{filter.AnomalyRange{Min: -10, Max: 150}, filter.AnomalyRange{Min: 0, Max: 100}},
		{filter.AnomalyRange{Min: 150, Max: -10}, filter.AnomalyRange{Min: 0, Max: 100}},
		{filter.AnomalyRange{Min: 30, Max: 30}, filter.AnomalyRange{Min: 30, Max: 30}},
		{filter.AnomalyRange{Min: math.NaN(), Max: 50}, filter.AnomalyRange{Min: 0, Max: 50}},
		{filter.AnomalyRange{Min: 40, Max: math.NaN()}, filter.AnomalyRange{Min: 40, Max: 100}},
		{filter.AnomalyRange{Min: math.NaN(), Max: math.NaN()}, filter.AnomalyRange{Min: 0, Max: 100}},
		{filter.AnomalyRange{Min: math.Inf(-1), Max: math.Inf(1)}, filter.AnomalyRange{Min: 0, Max: 100}},
	}
	for _, tt := range tests {
		got := filter.NormalizeAnomalyRange(tt.in)
		assert.Equal(t, tt.want, got)
		assert.LessOrEqual(t, got.Min, got.Max)
	}

	assert.True(t, filter.AnomalyRange{Min: 80, Max: 20}.Contains(50))
	assert.False(t, filter.AnomalyRange{Min: 80, Max: 20}.Contains(90))
	assert.True(t, filter.AnomalyRange{Min: math.NaN(), Max: 50}.Contains(25))
}

func TestDefaultFilters(t *testing.T) {
	anchor := time.Date(2024, time.February, 15, 12, 0, 0, 0, time.UTC)
	s := filter.DefaultFilters(anchor)

	assert.Equal(t, "2024-01-16", s.DateRange.Start)
	assert.Equal(t, "2024-02-15", s.DateRange.End)
	assert.Equal(t, filter.DefaultWindowLabel, s.DateRange.Label)
	assert.True(t, s.IncludeApproved)
	assert.True(t, s.IncludeDenied)
	assert.Equal(t, filter.AnomalyRange{Min: 0, Max: 100}, s.AnomalyRange)

	start, hasStart, end, hasEnd := s.DateRange.Bounds(s.Location)
	require.True(t, hasStart)
	require.True(t, hasEnd)
	assert.Equal(t, time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, time.February, 15, 23, 59, 59, 999000000, time.UTC), end)
}
