package aggregator

import (
	"fmt"
	"time"

	"badgewatch/internal/filter"
	"badgewatch/internal/metrics"
	"badgewatch/internal/models"
)

// BuildPersonProfile windowed profile of one person. events must already be
// narrowed to the person and window; fallback stamps people without events.
func BuildPersonProfile(person models.Person, events []models.BadgeEvent, windowLabel string, fallback time.Time) models.PersonProfile {
	sorted := SortNewestFirst(events)
	total := len(sorted)

	var approved, denied, afterHours, weekend int
	deviceIDs := make([]string, 0, total)
	for i := range sorted {
		e := &sorted[i]
		if e.IsDenied() {
			denied++
		} else {
			approved++
		}
		if metrics.IsAfterHours(e.Timestamp) {
			afterHours++
		}
		if metrics.IsWeekend(e.Timestamp) {
			weekend++
		}
		deviceIDs = append(deviceIDs, e.DeviceID)
	}

	denialPercent := metrics.Rate(denied, total)
	afterHoursRate := metrics.Rate(afterHours, total)
	rapidRepeatRate := metrics.Rate(metrics.CountFlag(sorted, models.FlagRapidRepeat), total)
	entropy := metrics.ShannonEntropy(sorted)
	deviceRatio := metrics.UniqueRatio(deviceIDs, total)

	iso := metrics.IsolationForestScore(metrics.IsolationInputs{
		DenialPercent:     denialPercent,
		Entropy:           entropy,
		AfterHoursRate:    afterHoursRate,
		NewLocationRate:   metrics.Rate(metrics.CountFlag(sorted, models.FlagNewLocation), total),
		RapidRepeatRate:   rapidRepeatRate,
		UniqueDeviceRatio: deviceRatio,
	})
	score := metrics.AnomalyScoreFromIso(iso)

	status := deriveStatus(statusInputs{
		isAnomaly:      person.IsAnomaly,
		score:          score,
		denialPercent:  denialPercent,
		afterHoursRate: afterHoursRate,
		rapidAttempts:  rapidRepeatRate > RapidRepeatRateThreshold,
	})

	last := fallback
	if total > 0 {
		last = sorted[0].Timestamp
	}

	return models.PersonProfile{
		ID:                   person.ID,
		Name:                 person.Name,
		AnomalyScore:         score,
		IsAnomaly:            person.IsAnomaly,
		IsolationForestScore: iso,
		ShannonEntropy:       entropy,
		ApprovedCount:        approved,
		DeniedCount:          denied,
		ScannerLocations:     metrics.LocationStats(sorted),
		DenialPercent:        denialPercent,
		UniqueDeviceRatio:    deviceRatio,
		AfterHoursRate:       afterHoursRate,
		WeekendRate:          metrics.Rate(weekend, total),
		RapidRepeatRate:      rapidRepeatRate,
		LastBadgeTimestamp:   last,
		ActiveWindowLabel:    windowLabel,
		TotalEvents:          total,
		DenialReasons:        metrics.DenialReasonStats(sorted),
		RecentEvents:         sorted,
		TopFlags:             metrics.FlagStats(sorted, status.TrainingOverdue),
		Severity:             status.Severity,
		StatusLabel:          status.Label,
		StatusReasons:        status.Reasons,
	}
}

// BuildPersonRollup roster row of a profile.
func BuildPersonRollup(p models.PersonProfile) models.PersonRollup {
	return models.PersonRollup{
		ID:                   p.ID,
		Name:                 p.Name,
		AnomalyScore:         p.AnomalyScore,
		IsAnomaly:            p.IsAnomaly,
		IsolationForestScore: p.IsolationForestScore,
		ShannonEntropy:       p.ShannonEntropy,
		DenialPercent:        p.DenialPercent,
		LastBadgeTimestamp:   p.LastBadgeTimestamp,
		ActiveWindowLabel:    p.ActiveWindowLabel,
		TotalEvents:          p.TotalEvents,
		StatusLabel:          p.StatusLabel,
	}
}

func deniedOnly(events []models.BadgeEvent) []models.BadgeEvent {
	out := make([]models.BadgeEvent, 0)
	for i := range events {
		if events[i].IsDenied() {
			out = append(out, events[i])
		}
	}
	return out
}

// BuildDenialBreakdown denial drill-down of a windowed profile.
func BuildDenialBreakdown(p models.PersonProfile) models.DenialBreakdown {
	return models.DenialBreakdown{
		PersonID:           p.ID,
		TotalDenied:        p.DeniedCount,
		DenialReasons:      p.DenialReasons,
		TopFlags:           p.TopFlags,
		RecentDeniedEvents: deniedOnly(p.RecentEvents),
	}
}

// BuildMonthlyDenialBreakdown denial drill-down of a monthly summary. events
// may be the whole collection; only the summary's person and month are used.
func BuildMonthlyDenialBreakdown(s models.MonthlyPersonSummary, events []models.BadgeEvent) models.DenialBreakdown {
	own := make([]models.BadgeEvent, 0, s.TotalEvents)
	for i := range events {
		if events[i].PersonID == s.PersonID && ToMonthKey(events[i].Timestamp) == s.MonthKey {
			own = append(own, events[i])
		}
	}
	sorted := SortNewestFirst(own)
	return models.DenialBreakdown{
		PersonID:           s.PersonID,
		MonthKey:           s.MonthKey,
		TotalDenied:        s.DeniedCount,
		DenialReasons:      s.DenialReasons,
		TopFlags:           metrics.FlagStats(sorted, MonthlyStatus(s).TrainingOverdue),
		RecentDeniedEvents: deniedOnly(sorted),
	}
}

// BuildPersonnelSummary header KPIs. After-hours days are distinct calendar
// dates in each event's own location.
func BuildPersonnelSummary(events []models.BadgeEvent, profiles []models.PersonProfile, windowLabel string) models.PersonnelSummary {
	afterHours := 0
	days := make(map[string]struct{})
	for i := range events {
		if metrics.IsAfterHours(events[i].Timestamp) {
			afterHours++
			days[events[i].Timestamp.Format("2006-01-02")] = struct{}{}
		}
	}

	totalEvents := 0
	scores := make([]float64, 0, len(profiles))
	for i := range profiles {
		totalEvents += profiles[i].TotalEvents
		scores = append(scores, profiles[i].AnomalyScore)
	}

	return models.PersonnelSummary{
		TotalPersonnel:    len(profiles),
		TotalEvents:       totalEvents,
		AvgAnomaly:        metrics.Mean(scores),
		AfterHoursEvents:  afterHours,
		AfterHoursDays:    len(days),
		ActiveWindowLabel: windowLabel,
	}
}

// ProfileSet profiles that passed the filters, their roster rows and KPIs.
type ProfileSet struct {
	Profiles []models.PersonProfile  `json:"profiles"`
	Rollups  []models.PersonRollup   `json:"rollups"`
	Summary  models.PersonnelSummary `json:"summary"`
}

// BuildProfiles filters people and events, builds a profile per remaining
// person and keeps those whose anomaly percent lies in the range. People
// without events are dropped unless IncludeZeroEvents is set.
func BuildProfiles(people []models.Person, events []models.BadgeEvent, state filter.FilterState) ProfileSet {
	filteredPeople := filter.FilterPeople(people, state)
	filteredEvents := filter.FilterEvents(events, state)
	anomalyRange := filter.NormalizeAnomalyRange(state.AnomalyRange)
	_, _, fallback, _ := state.DateRange.Bounds(state.Location)

	byPerson := make(map[string][]models.BadgeEvent)
	for i := range filteredEvents {
		id := filteredEvents[i].PersonID
		byPerson[id] = append(byPerson[id], filteredEvents[i])
	}

	set := ProfileSet{
		Profiles: make([]models.PersonProfile, 0, len(filteredPeople)),
		Rollups:  make([]models.PersonRollup, 0, len(filteredPeople)),
	}
	for _, person := range filteredPeople {
		profile := BuildPersonProfile(person, byPerson[person.ID], state.DateRange.Label, fallback)
		if !state.IncludeZeroEvents && profile.TotalEvents == 0 {
			continue
		}
		if !anomalyRange.Contains(metrics.AnomalyPercent(profile.AnomalyScore)) {
			continue
		}
		set.Profiles = append(set.Profiles, profile)
		set.Rollups = append(set.Rollups, BuildPersonRollup(profile))
	}
	set.Summary = BuildPersonnelSummary(filteredEvents, set.Profiles, state.DateRange.Label)
	return set
}

// ProfileForPerson default-window profile of one person, the window ending on
// anchor's date.
func ProfileForPerson(personID string, people []models.Person, events []models.BadgeEvent, anchor time.Time) (models.PersonProfile, error) {
	for _, person := range people {
		if person.ID != personID {
			continue
		}
		state := filter.DefaultFilters(anchor)
		own := make([]models.BadgeEvent, 0)
		for i := range events {
			if events[i].PersonID == personID {
				own = append(own, events[i])
			}
		}
		return BuildPersonProfile(person, filter.FilterEvents(own, state), state.DateRange.Label, anchor), nil
	}
	return models.PersonProfile{}, fmt.Errorf("%w: %s", ErrPersonNotFound, personID)
}

// AnomalyPercentile rank (0-100) of personID's anomaly score among the
// summaries that have events. ok is false when the person has none.
func AnomalyPercentile(summaries []models.MonthlyPersonSummary, personID string) (rank int, ok bool) {
	scores := make([]float64, 0, len(summaries))
	var target float64
	for i := range summaries {
		if summaries[i].TotalEvents == 0 {
			continue
		}
		scores = append(scores, summaries[i].AnomalyScore)
		if summaries[i].PersonID == personID {
			target = summaries[i].AnomalyScore
			ok = true
		}
	}
	if !ok {
		return 0, false
	}
	return metrics.PercentileRank(scores, target), true
}
