package synth

import (
	"badgewatch/internal/metrics"
	"badgewatch/internal/models"
	"badgewatch/internal/prng"
)

// Cohort behavioural archetype assigned by person index.
type Cohort string

const (
	CohortDelinquent Cohort = "delinquent"
	CohortWatch      Cohort = "watch"
	CohortTypical    Cohort = "typical"
	CohortVeryNormal Cohort = "very-normal"
)

// Cohort boundaries as shares of the person count, applied in order.
// Whatever is left after the three shares is very-normal.
const (
	DelinquentShare = 0.10
	WatchShare      = 0.15
	TypicalShare    = 0.50
)

// traitJitter relative spread applied to every cohort bias.
const traitJitter = 0.25

// TraitProfile per-person generation parameters. Biases are probabilities
// nudging each behaviour; EventMin/EventMax bound the event count.
type TraitProfile struct {
	DenialBias      float64
	AfterHoursBias  float64
	WeekendBias     float64
	EntropyBias     float64
	NewLocationBias float64
	RapidRepeatBias float64
	DeviceVariance  float64
	EventMin        int
	EventMax        int
}

var cohortBaselines = map[Cohort]TraitProfile{
	CohortDelinquent: {
		DenialBias:      0.24,
		AfterHoursBias:  0.20,
		WeekendBias:     0.18,
		EntropyBias:     0.45,
		NewLocationBias: 0.25,
		RapidRepeatBias: 0.16,
		DeviceVariance:  0.65,
		EventMin:        220,
		EventMax:        320,
	},
	CohortWatch: {
		DenialBias:      0.10,
		AfterHoursBias:  0.12,
		WeekendBias:     0.14,
		EntropyBias:     0.30,
		NewLocationBias: 0.15,
		RapidRepeatBias: 0.10,
		DeviceVariance:  0.45,
		EventMin:        160,
		EventMax:        240,
	},
	CohortTypical: {
		DenialBias:      0.04,
		AfterHoursBias:  0.06,
		WeekendBias:     0.08,
		EntropyBias:     0.18,
		NewLocationBias: 0.08,
		RapidRepeatBias: 0.05,
		DeviceVariance:  0.30,
		EventMin:        100,
		EventMax:        180,
	},
	CohortVeryNormal: {
		DenialBias:      0.01,
		AfterHoursBias:  0.03,
		WeekendBias:     0.04,
		EntropyBias:     0.10,
		NewLocationBias: 0.04,
		RapidRepeatBias: 0.03,
		DeviceVariance:  0.15,
		EventMin:        60,
		EventMax:        120,
	},
}

// CohortForIndex assigns the cohort of person i out of n.
func CohortForIndex(i, n int) Cohort {
	if n <= 0 {
		return CohortTypical
	}
	pos := float64(i) / float64(n)
	switch {
	case pos < DelinquentShare:
		return CohortDelinquent
	case pos < DelinquentShare+WatchShare:
		return CohortWatch
	case pos < DelinquentShare+WatchShare+TypicalShare:
		return CohortTypical
	default:
		return CohortVeryNormal
	}
}

// AnomalyMarker pre-assigned IsAnomaly value for members of the cohort.
func (c Cohort) AnomalyMarker() int {
	switch c {
	case CohortDelinquent:
		return models.AnomalyDelinquent
	case CohortWatch:
		return models.AnomalyFlagged
	default:
		return models.AnomalyNormal
	}
}

// Baseline returns the un-jittered profile of the cohort; unknown cohorts get
// the typical baseline.
func (c Cohort) Baseline() TraitProfile {
	if base, ok := cohortBaselines[c]; ok {
		return base
	}
	return cohortBaselines[CohortTypical]
}

// DeriveTraits cohort baseline with per-person jitter drawn from rng. The
// draw order is fixed so the same stream always gives the same profile.
func DeriveTraits(cohort Cohort, rng *prng.Stream) TraitProfile {
	base := cohort.Baseline()
	jitter := func(v float64) float64 {
		return metrics.Clamp(v+rng.Jitter(v*traitJitter), 0, 1)
	}
	return TraitProfile{
		DenialBias:      jitter(base.DenialBias),
		AfterHoursBias:  jitter(base.AfterHoursBias),
		WeekendBias:     jitter(base.WeekendBias),
		EntropyBias:     jitter(base.EntropyBias),
		NewLocationBias: jitter(base.NewLocationBias),
		RapidRepeatBias: jitter(base.RapidRepeatBias),
		DeviceVariance:  jitter(base.DeviceVariance),
		EventMin:        base.EventMin,
		EventMax:        base.EventMax,
	}
}
