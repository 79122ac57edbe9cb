// Package synth generates the deterministic synthetic badge dataset.
package synth

import (
	"fmt"
	"math"
	"sort"
	"time"

	"badgewatch/internal/metrics"
	"badgewatch/internal/models"
	"badgewatch/internal/prng"
)

const (
	preferredCount       = 3
	preferredShare       = 0.72
	afterHoursBase       = 0.08
	denialBase           = 0.04
	maxDenialProbability = 0.6
	newLocationBase      = 0.25
	rapidRepeatBase      = 0.1
	rapidRepeatWindow    = 2 * time.Minute
)

// DefaultAnchor reference "now" of the synthetic dataset.
var DefaultAnchor = time.Date(2024, time.February, 15, 12, 0, 0, 0, time.UTC)

// DefaultLookbackDays size of the generated window.
const DefaultLookbackDays = 30

// Options where the generated window sits.
type Options struct {
	Anchor       time.Time
	LookbackDays int
}

func (o Options) withDefaults() Options {
	if o.Anchor.IsZero() {
		o.Anchor = DefaultAnchor
	}
	if o.LookbackDays <= 0 {
		o.LookbackDays = DefaultLookbackDays
	}
	return o
}

// cumulative denial reason table
var reasonTable = []struct {
	upTo   float64
	reason models.DenialReason
}{
	{0.32, models.DenialExpiredBadge},
	{0.56, models.DenialTimeRestricted},
	{0.78, models.DenialInvalidEntryCode},
	{1.0, models.DenialNoAccess},
}

func weightedReason(rng *prng.Stream) models.DenialReason {
	roll := rng.Float64()
	for _, row := range reasonTable {
		if roll < row.upTo {
			return row.reason
		}
	}
	return models.DenialNoAccess
}

func pickUnique(rng *prng.Stream, pool []models.Scanner, count int) []models.Scanner {
	remaining := append([]models.Scanner(nil), pool...)
	picked := make([]models.Scanner, 0, count)
	for i := 0; i < count && len(remaining) > 0; i++ {
		idx := rng.Intn(len(remaining))
		picked = append(picked, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return picked
}

func weekendOffsets(anchor time.Time, lookback int) []int {
	offsets := make([]int, 0)
	for i := 0; i < lookback; i++ {
		if metrics.IsWeekend(anchor.AddDate(0, 0, -i)) {
			offsets = append(offsets, i)
		}
	}
	return offsets
}

// GenerateEvents synthesizes one person's events, newest first. The result
// depends only on the arguments; seed drives a private stream.
func GenerateEvents(personID string, seed uint32, traits TraitProfile, opts Options) []models.BadgeEvent {
	events := make([]models.BadgeEvent, 0)
	if traits.EventMax <= 0 {
		return events
	}
	opts = opts.withDefaults()
	rng := prng.New(seed)

	total := rng.IntRange(max(traits.EventMin, 0), traits.EventMax)
	preferred := pickUnique(rng, Scanners, preferredCount)
	preferredIDs := make(map[string]struct{}, len(preferred))
	for _, s := range preferred {
		preferredIDs[s.ID] = struct{}{}
	}
	others := make([]models.Scanner, 0, len(Scanners))
	for _, s := range Scanners {
		if _, ok := preferredIDs[s.ID]; !ok {
			others = append(others, s)
		}
	}

	poolSize := int(metrics.Clamp(math.Round(12+traits.DeviceVariance*25), 8, 40))
	devices := make([]string, poolSize)
	for i := range devices {
		devices[i] = fmt.Sprintf("DEV-%s-%d", personID, i)
	}

	weekends := weekendOffsets(opts.Anchor, opts.LookbackDays)
	denialProbability := metrics.Clamp(denialBase+traits.DenialBias, 0, maxDenialProbability)
	loc := opts.Anchor.Location()

	for i := 0; i < total; i++ {
		var offset int
		if rng.Chance(traits.WeekendBias) && len(weekends) > 0 {
			offset = weekends[rng.Intn(len(weekends))]
		} else {
			offset = rng.IntRange(0, opts.LookbackDays-1)
		}
		day := opts.Anchor.AddDate(0, 0, -offset)

		var hour int
		if rng.Chance(afterHoursBase + traits.AfterHoursBias) {
			if rng.Chance(0.5) {
				hour = rng.IntRange(0, 5)
			} else {
				hour = rng.IntRange(19, 23)
			}
		} else {
			hour = rng.IntRange(7, 18)
		}
		minute := rng.IntRange(0, 59)
		second := rng.IntRange(0, 59)
		ts := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, second, 0, loc)

		var scanner models.Scanner
		if rng.Chance(preferredShare) {
			scanner = preferred[rng.Intn(len(preferred))]
		} else {
			scanner = Scanners[rng.Intn(len(Scanners))]
			if _, ok := preferredIDs[scanner.ID]; ok && len(others) > 0 && rng.Chance(traits.EntropyBias) {
				scanner = others[rng.Intn(len(others))]
			}
		}
		_, isPreferred := preferredIDs[scanner.ID]

		denied := rng.Chance(denialProbability)

		event := models.BadgeEvent{
			ID:          fmt.Sprintf("%s-evt-%d", personID, i),
			PersonID:    personID,
			Timestamp:   ts,
			ScannerID:   scanner.ID,
			ScannerName: scanner.Name,
			Outcome:     models.OutcomeApproved,
			Flags:       make([]models.Flag, 0, 2),
		}
		if metrics.IsAfterHours(ts) {
			event.AddFlag(models.FlagAfterHours)
		}
		if !isPreferred && rng.Chance(newLocationBase+traits.NewLocationBias) {
			event.AddFlag(models.FlagNewLocation)
		}
		if denied {
			reason := weightedReason(rng)
			event.Outcome = models.OutcomeDenied
			event.DenialReason = &reason
		}
		event.DeviceID = devices[rng.Intn(len(devices))]

		events = append(events, event)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})

	chron := make([]int, len(events))
	for i := range chron {
		chron[i] = i
	}
	sort.SliceStable(chron, func(i, j int) bool {
		return events[chron[i]].Timestamp.Before(events[chron[j]].Timestamp)
	})
	for k := 1; k < len(chron); k++ {
		prev := &events[chron[k-1]]
		cur := &events[chron[k]]
		if cur.Timestamp.Sub(prev.Timestamp) <= rapidRepeatWindow && rng.Chance(traits.RapidRepeatBias+rapidRepeatBase) {
			cur.AddFlag(models.FlagRapidRepeat)
		}
	}

	return events
}
