// Package aggregator turns raw badge events into per-person roll-ups: the
// monthly summaries, windowed profiles and the peer baseline behind them.
// Everything here is a pure function of its inputs.
package aggregator

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"badgewatch/internal/metrics"
	"badgewatch/internal/models"
)

// ErrInvalidMonthKey month key is not YYYY-MM.
var ErrInvalidMonthKey = errors.New("invalid month key")

// ErrPersonNotFound no person with the requested ID.
var ErrPersonNotFound = errors.New("person not found")

const monthKeyLayout = "2006-01"

// RapidBadgingWindow span within which three scans count as rapid badging.
// Unrelated to the 2-minute Rapid Repeat event flag.
const RapidBadgingWindow = 15 * time.Second

const rapidBadgingRun = 3

// ToMonthKey YYYY-MM of t in UTC.
func ToMonthKey(t time.Time) string {
	return t.UTC().Format(monthKeyLayout)
}

// ParseMonthKey first instant (UTC) of the month named by key.
func ParseMonthKey(key string) (time.Time, error) {
	if len(key) != len(monthKeyLayout) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidMonthKey, key)
	}
	start, err := time.Parse(monthKeyLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidMonthKey, key)
	}
	return start, nil
}

// ListMonthKeys distinct month keys present in events, newest first.
func ListMonthKeys(events []models.BadgeEvent) []string {
	seen := make(map[string]struct{})
	keys := make([]string, 0)
	for i := range events {
		key := ToMonthKey(events[i].Timestamp)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	// YYYY-MM sorts lexically
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys
}

// MonthEvents events whose UTC month is monthKey, in input order.
func MonthEvents(events []models.BadgeEvent, monthKey string) []models.BadgeEvent {
	out := make([]models.BadgeEvent, 0)
	for i := range events {
		if ToMonthKey(events[i].Timestamp) == monthKey {
			out = append(out, events[i])
		}
	}
	return out
}

// SortNewestFirst returns a copy of events ordered by timestamp descending.
// Ties keep their input order.
func SortNewestFirst(events []models.BadgeEvent) []models.BadgeEvent {
	sorted := append([]models.BadgeEvent(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	if sorted == nil {
		sorted = make([]models.BadgeEvent, 0)
	}
	return sorted
}

// BuildMonthlySummaries one summary per person, in people order, over the
// events of monthKey. People without events in the month get a zero record
// stamped with the first instant of the month.
func BuildMonthlySummaries(people []models.Person, events []models.BadgeEvent, monthKey string) ([]models.MonthlyPersonSummary, error) {
	monthStart, err := ParseMonthKey(monthKey)
	if err != nil {
		return nil, err
	}

	byPerson := make(map[string][]models.BadgeEvent)
	for i := range events {
		e := events[i]
		if ToMonthKey(e.Timestamp) != monthKey {
			continue
		}
		byPerson[e.PersonID] = append(byPerson[e.PersonID], e)
	}

	summaries := make([]models.MonthlyPersonSummary, 0, len(people))
	for _, person := range people {
		summaries = append(summaries, summarize(person, byPerson[person.ID], monthKey, monthStart))
	}
	return summaries, nil
}

// MonthlyRow summary of a single person for monthKey.
func MonthlyRow(personID, monthKey string, people []models.Person, events []models.BadgeEvent) (models.MonthlyPersonSummary, error) {
	for _, person := range people {
		if person.ID != personID {
			continue
		}
		rows, err := BuildMonthlySummaries([]models.Person{person}, events, monthKey)
		if err != nil {
			return models.MonthlyPersonSummary{}, err
		}
		return rows[0], nil
	}
	return models.MonthlyPersonSummary{}, fmt.Errorf("%w: %s", ErrPersonNotFound, personID)
}

// FindSummary picks personID's row out of an already built roster.
func FindSummary(summaries []models.MonthlyPersonSummary, personID string) (models.MonthlyPersonSummary, error) {
	for i := range summaries {
		if summaries[i].PersonID == personID {
			return summaries[i], nil
		}
	}
	return models.MonthlyPersonSummary{}, fmt.Errorf("%w: %s", ErrPersonNotFound, personID)
}

func summarize(person models.Person, events []models.BadgeEvent, monthKey string, monthStart time.Time) models.MonthlyPersonSummary {
	sorted := SortNewestFirst(events)
	total := len(sorted)

	var accepted, denied, afterHours, weekend int
	deviceIDs := make([]string, 0, total)
	deviceCounts := make(map[string]int)
	for i := range sorted {
		e := &sorted[i]
		if e.IsDenied() {
			denied++
		} else {
			accepted++
		}
		if metrics.IsAfterHours(e.Timestamp) {
			afterHours++
		}
		if metrics.IsWeekend(e.Timestamp) {
			weekend++
		}
		deviceIDs = append(deviceIDs, e.DeviceID)
		deviceCounts[e.DeviceID]++
	}

	devices := make([]string, 0, len(deviceCounts))
	for id := range deviceCounts {
		devices = append(devices, id)
	}
	sort.Strings(devices)
	counts := make([]float64, len(devices))
	for i, id := range devices {
		counts[i] = float64(deviceCounts[id])
	}

	deniedRate := metrics.Rate(denied, total)
	afterHoursRate := metrics.Rate(afterHours, total)
	newLocationRate := metrics.Rate(metrics.CountFlag(sorted, models.FlagNewLocation), total)
	rapidRepeatRate := metrics.Rate(metrics.CountFlag(sorted, models.FlagRapidRepeat), total)
	entropy := metrics.ShannonEntropy(sorted)
	deviceRatio := metrics.UniqueRatio(deviceIDs, total)

	iso := metrics.IsolationForestScore(metrics.IsolationInputs{
		DenialPercent:     deniedRate,
		Entropy:           entropy,
		AfterHoursRate:    afterHoursRate,
		NewLocationRate:   newLocationRate,
		RapidRepeatRate:   rapidRepeatRate,
		UniqueDeviceRatio: deviceRatio,
	})
	score := metrics.AnomalyScoreFromIso(iso)

	last := monthStart
	if total > 0 {
		last = sorted[0].Timestamp
	}

	return models.MonthlyPersonSummary{
		PersonID:             person.ID,
		Name:                 person.Name,
		MonthKey:             monthKey,
		LastEventTimestamp:   last,
		AnomalyScore:         score,
		IsolationForestScore: iso,
		IsAnomaly:            person.IsAnomaly,
		Severity:             SeverityFor(person.IsAnomaly, score),
		ShannonEntropy:       entropy,
		DeniedRate:           deniedRate,
		WeekendRate:          metrics.Rate(weekend, total),
		AfterHoursRate:       afterHoursRate,
		NewLocationRate:      newLocationRate,
		RapidRepeatRate:      rapidRepeatRate,
		UniqueDeviceRatio:    deviceRatio,
		UniqueDeviceStdDev:   metrics.StdDev(counts),
		UniqueDeviceCount:    len(devices),
		UniqueDevices:        devices,
		DenialReasons:        metrics.DenialReasonStats(sorted),
		TotalEvents:          total,
		AcceptedCount:        accepted,
		DeniedCount:          denied,
		AfterHoursCount:      afterHours,
		WeekendCount:         weekend,
		RapidBadgingCount:    CountRapidBadging(sorted),
		BadgedDays:           BadgedDays(sorted),
	}
}

// CountRapidBadging number of chronological windows of three consecutive
// scans spanning at most RapidBadgingWindow. Overlapping windows each count.
func CountRapidBadging(events []models.BadgeEvent) int {
	if len(events) < rapidBadgingRun {
		return 0
	}
	times := make([]time.Time, len(events))
	for i := range events {
		times[i] = events[i].Timestamp
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	count := 0
	for i := 0; i+rapidBadgingRun-1 < len(times); i++ {
		if times[i+rapidBadgingRun-1].Sub(times[i]) <= RapidBadgingWindow {
			count++
		}
	}
	return count
}

// BadgedDays distinct UTC days of month with at least one event, ascending.
func BadgedDays(events []models.BadgeEvent) []int {
	seen := make(map[int]struct{})
	days := make([]int, 0)
	for i := range events {
		day := events[i].Timestamp.UTC().Day()
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	sort.Ints(days)
	return days
}
