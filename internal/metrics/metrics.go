// Package metrics is the pure statistics layer over badge events: rates,
// location entropy, frequency tables and the composite isolation score.
// Nothing here returns NaN; empty inputs produce 0.
package metrics

import (
	"math"
	"sort"
	"time"

	"badgewatch/internal/models"
)

// Rate percentage of count over total, 0 when total is 0.
func Rate(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}

// UniqueRatio distinct values over total, 0 when total is 0.
func UniqueRatio(values []string, total int) float64 {
	if total == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return float64(len(seen)) / float64(total)
}

// CountBy counts occurrences of each key.
func CountBy[K comparable](items []K) map[K]int {
	counts := make(map[K]int)
	for _, item := range items {
		counts[item]++
	}
	return counts
}

// ShannonEntropy entropy (bits) of the scanner distribution.
func ShannonEntropy(events []models.BadgeEvent) float64 {
	if len(events) == 0 {
		return 0
	}
	ids := make([]string, len(events))
	for i := range events {
		ids[i] = events[i].ScannerID
	}
	counts := CountBy(ids)

	// fixed summation order keeps results bit-identical between runs
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	total := float64(len(events))
	entropy := 0.0
	for _, k := range keys {
		p := float64(counts[k]) / total
		entropy -= p * math.Log2(p)
	}
	if entropy <= 0 {
		return 0
	}
	return entropy
}

// LocationStats scanner usage, most used first (ties by scanner ID).
func LocationStats(events []models.BadgeEvent) []models.LocationStat {
	index := make(map[string]int)
	stats := make([]models.LocationStat, 0)
	for i := range events {
		e := &events[i]
		if pos, ok := index[e.ScannerID]; ok {
			stats[pos].Count++
			continue
		}
		index[e.ScannerID] = len(stats)
		stats = append(stats, models.LocationStat{LocationID: e.ScannerID, DisplayName: e.ScannerName, Count: 1})
	}
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].LocationID < stats[j].LocationID
	})
	return stats
}

// DenialReasonStats denial reasons of denied events, most frequent first.
// Denied events without a reason count as Unknown.
func DenialReasonStats(events []models.BadgeEvent) []models.DenialReasonStat {
	reasons := make([]models.DenialReason, 0)
	for i := range events {
		if events[i].IsDenied() {
			reasons = append(reasons, events[i].Reason())
		}
	}
	counts := CountBy(reasons)
	stats := make([]models.DenialReasonStat, 0, len(counts))
	for reason, count := range counts {
		stats = append(stats, models.DenialReasonStat{Reason: reason, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Reason < stats[j].Reason
	})
	return stats
}

// FlagStats flag frequencies, most frequent first. includeTrainingOverdue adds
// one synthetic Training Overdue entry for the person.
func FlagStats(events []models.BadgeEvent, includeTrainingOverdue bool) []models.FlagStat {
	flags := make([]models.Flag, 0)
	for i := range events {
		flags = append(flags, events[i].Flags...)
	}
	if includeTrainingOverdue {
		flags = append(flags, models.FlagTrainingOverdue)
	}
	counts := CountBy(flags)
	stats := make([]models.FlagStat, 0, len(counts))
	for flag, count := range counts {
		stats = append(stats, models.FlagStat{Flag: flag, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Flag < stats[j].Flag
	})
	return stats
}

// CountFlag number of events carrying flag f.
func CountFlag(events []models.BadgeEvent, f models.Flag) int {
	n := 0
	for i := range events {
		if events[i].HasFlag(f) {
			n++
		}
	}
	return n
}

// IsAfterHours hour before 06:00 or from 19:00, in t's location.
func IsAfterHours(t time.Time) bool {
	h := t.Hour()
	return h < 6 || h >= 19
}

// IsWeekend Saturday or Sunday in t's location.
func IsWeekend(t time.Time) bool {
	d := t.Weekday()
	return d == time.Saturday || d == time.Sunday
}
