// Package filter narrows the person and event collections before roll-up.
package filter

import (
	"math"
	"strings"
	"time"

	"badgewatch/internal/metrics"
	"badgewatch/internal/models"
)

const dateLayout = "2006-01-02"

// DefaultWindowDays length of the default date window.
const DefaultWindowDays = 30

// DefaultWindowLabel label of the default date window.
const DefaultWindowLabel = "Last 30d"

// DateRange inclusive calendar-date window. Start and End accept
// "2006-01-02" or an RFC 3339 timestamp; either way only the calendar date
// in the filter's location counts. An empty or unparseable bound is open.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Label string `json:"label"`
}

// AnomalyRange bounds on the anomaly percent (0-100).
type AnomalyRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// FilterState user-selected filters.
//
// Outcomes are opt-in: a zero FilterState includes neither approved nor
// denied events and therefore matches nothing. Start from DefaultFilters.
type FilterState struct {
	DateRange         DateRange      `json:"dateRange"`
	Locations         []string       `json:"locations"`
	DeviceIDQuery     string         `json:"deviceIdQuery"`
	PersonQuery       string         `json:"personQuery"`
	IncludeApproved   bool           `json:"includeApproved"`
	IncludeDenied     bool           `json:"includeDenied"`
	AfterHoursOnly    bool           `json:"afterHoursOnly"`
	FlaggedOnly       bool           `json:"flaggedOnly"`
	RequiredFlags     []models.Flag  `json:"requiredFlags"`
	AnomalyRange      AnomalyRange   `json:"anomalyRange"`
	IncludeZeroEvents bool           `json:"includeZeroEvents"`
	Location          *time.Location `json:"-"` // calendar zone for DateRange; nil is time.Local
}

// DefaultFilters last-30-days window ending on anchor's date, every outcome,
// full anomaly range.
func DefaultFilters(anchor time.Time) FilterState {
	return FilterState{
		DateRange: DateRange{
			Start: anchor.AddDate(0, 0, -DefaultWindowDays).Format(dateLayout),
			End:   anchor.Format(dateLayout),
			Label: DefaultWindowLabel,
		},
		Locations:       []string{},
		IncludeApproved: true,
		IncludeDenied:   true,
		RequiredFlags:   []models.Flag{},
		AnomalyRange:    AnomalyRange{Min: 0, Max: 100},
		Location:        anchor.Location(),
	}
}

func (s FilterState) location() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

func parseDay(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if day, err := time.ParseInLocation(dateLayout, value, loc); err == nil {
		return day, true
	}
	if ts, err := models.ParseTimestamp(value); err == nil {
		ts = ts.In(loc)
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, loc), true
	}
	return time.Time{}, false
}

// Bounds resolves the window to instants: start of the first day and the
// last millisecond of the last day. ok flags report which bounds exist.
func (r DateRange) Bounds(loc *time.Location) (start time.Time, hasStart bool, end time.Time, hasEnd bool) {
	if loc == nil {
		loc = time.Local
	}
	start, hasStart = parseDay(r.Start, loc)
	if day, ok := parseDay(r.End, loc); ok {
		end = day.AddDate(0, 0, 1).Add(-time.Millisecond)
		hasEnd = true
	}
	return start, hasStart, end, hasEnd
}

// FilterEvents applies date range, outcome, location allow-list, device
// substring, after-hours-only, flagged-only and required flags, in that order.
func FilterEvents(events []models.BadgeEvent, state FilterState) []models.BadgeEvent {
	out := make([]models.BadgeEvent, 0)
	if !state.IncludeApproved && !state.IncludeDenied {
		return out
	}

	start, hasStart, end, hasEnd := state.DateRange.Bounds(state.location())
	locations := make(map[string]struct{}, len(state.Locations))
	for _, l := range state.Locations {
		locations[l] = struct{}{}
	}
	deviceQuery := strings.ToLower(strings.TrimSpace(state.DeviceIDQuery))

	for i := range events {
		e := &events[i]
		if hasStart && e.Timestamp.Before(start) {
			continue
		}
		if hasEnd && e.Timestamp.After(end) {
			continue
		}
		if e.IsDenied() && !state.IncludeDenied {
			continue
		}
		if !e.IsDenied() && !state.IncludeApproved {
			continue
		}
		if len(locations) > 0 {
			if _, ok := locations[e.ScannerID]; !ok {
				continue
			}
		}
		if deviceQuery != "" && !strings.Contains(strings.ToLower(e.DeviceID), deviceQuery) {
			continue
		}
		if state.AfterHoursOnly && !metrics.IsAfterHours(e.Timestamp) {
			continue
		}
		if state.FlaggedOnly && len(e.Flags) == 0 {
			continue
		}
		if !hasAllFlags(e, state.RequiredFlags) {
			continue
		}
		out = append(out, *e)
	}
	return out
}

func hasAllFlags(e *models.BadgeEvent, required []models.Flag) bool {
	for _, f := range required {
		if !e.HasFlag(f) {
			return false
		}
	}
	return true
}

// FilterPeople case-insensitive substring match of PersonQuery on name or ID.
func FilterPeople(people []models.Person, state FilterState) []models.Person {
	query := strings.ToLower(strings.TrimSpace(state.PersonQuery))
	out := make([]models.Person, 0, len(people))
	for _, p := range people {
		if query == "" ||
			strings.Contains(strings.ToLower(p.Name), query) ||
			strings.Contains(strings.ToLower(p.ID), query) {
			out = append(out, p)
		}
	}
	return out
}

// NormalizeAnomalyRange clamps both bounds to [0,100] and swaps them when
// inverted, so Min <= Max always holds. A NaN bound falls back to the full
// range end (0 for Min, 100 for Max).
func NormalizeAnomalyRange(r AnomalyRange) AnomalyRange {
	if math.IsNaN(r.Min) {
		r.Min = 0
	}
	if math.IsNaN(r.Max) {
		r.Max = 100
	}
	lo := metrics.Clamp(r.Min, 0, 100)
	hi := metrics.Clamp(r.Max, 0, 100)
	if lo > hi {
		lo, hi = hi, lo
	}
	return AnomalyRange{Min: lo, Max: hi}
}

// Contains reports whether percent lies within the normalised range.
func (r AnomalyRange) Contains(percent float64) bool {
	n := NormalizeAnomalyRange(r)
	return percent >= n.Min && percent <= n.Max
}
