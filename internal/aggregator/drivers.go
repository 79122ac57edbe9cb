package aggregator

import (
	"math"
	"sort"

	"badgewatch/internal/metrics"
	"badgewatch/internal/models"
)

// MetricKey peer-comparable monthly metric.
type MetricKey string

const (
	MetricCountEvents    MetricKey = "count_events"
	MetricUniqueDevices  MetricKey = "unique_devices"
	MetricOffHoursRatio  MetricKey = "off_hours_ratio"
	MetricWeekendRatio   MetricKey = "weekend_ratio"
	MetricRapidScans     MetricKey = "rapid_scan_sequence_count"
	MetricDenialRate     MetricKey = "denial_rate"
	MetricIForestScore   MetricKey = "iforest_score"
	MetricShannonEntropy MetricKey = "shannon_entropy"
)

// MetricKeys every driver metric in display order.
var MetricKeys = []MetricKey{
	MetricCountEvents,
	MetricUniqueDevices,
	MetricOffHoursRatio,
	MetricWeekendRatio,
	MetricRapidScans,
	MetricDenialRate,
	MetricIForestScore,
	MetricShannonEntropy,
}

var metricLabels = map[MetricKey]string{
	MetricCountEvents:    "Total Events",
	MetricUniqueDevices:  "Unique Devices",
	MetricOffHoursRatio:  "Off-Hours Ratio",
	MetricWeekendRatio:   "Weekend Ratio",
	MetricRapidScans:     "Rapid Scans",
	MetricDenialRate:     "Denial Rate",
	MetricIForestScore:   "Isolation Forest",
	MetricShannonEntropy: "Location Entropy",
}

// Label display name of the metric.
func (k MetricKey) Label() string {
	if label, ok := metricLabels[k]; ok {
		return label
	}
	return string(k)
}

// Value reads the metric off a monthly summary.
func (k MetricKey) Value(s models.MonthlyPersonSummary) float64 {
	switch k {
	case MetricCountEvents:
		return float64(s.TotalEvents)
	case MetricUniqueDevices:
		return float64(s.UniqueDeviceCount)
	case MetricOffHoursRatio:
		return s.AfterHoursRate
	case MetricWeekendRatio:
		return s.WeekendRate
	case MetricRapidScans:
		return float64(s.RapidBadgingCount)
	case MetricDenialRate:
		return s.DeniedRate
	case MetricIForestScore:
		return s.IsolationForestScore
	case MetricShannonEntropy:
		return s.ShannonEntropy
	default:
		return 0
	}
}

// MetricStats peer distribution of one metric.
type MetricStats struct {
	Mean  float64 `json:"mean"`
	P25   float64 `json:"p25"`
	P75   float64 `json:"p75"`
	Count int     `json:"count"`
}

// Baseline peer statistics keyed by metric.
type Baseline map[MetricKey]MetricStats

// BuildPeerBaseline statistics of every metric over the summaries that have
// at least one event.
func BuildPeerBaseline(summaries []models.MonthlyPersonSummary) Baseline {
	baseline := make(Baseline, len(MetricKeys))
	for _, key := range MetricKeys {
		values := make([]float64, 0, len(summaries))
		for i := range summaries {
			if summaries[i].TotalEvents > 0 {
				values = append(values, key.Value(summaries[i]))
			}
		}
		baseline[key] = MetricStats{
			Mean:  metrics.Mean(values),
			P25:   metrics.Quantile(values, 0.25),
			P75:   metrics.Quantile(values, 0.75),
			Count: len(values),
		}
	}
	return baseline
}

// Direction of a value relative to the peer mean.
type Direction string

const (
	DirectionHigher Direction = "higher"
	DirectionLower  Direction = "lower"
	DirectionSame   Direction = "about_the_same"
)

const sameEpsilon = 1e-6

// Driver one metric compared against peers.
type Driver struct {
	Key       MetricKey `json:"key"`
	Label     string    `json:"label"`
	Value     float64   `json:"value"`
	PeerAvg   float64   `json:"peerAvg"`
	P25       float64   `json:"p25"`
	P75       float64   `json:"p75"`
	Delta     float64   `json:"delta"`
	Direction Direction `json:"direction"`
}

// spreadOf interquartile spread, falling back to the mean magnitude and then
// 1 so every delta can be scaled.
func spreadOf(stats MetricStats) float64 {
	if iqr := stats.P75 - stats.P25; iqr > sameEpsilon {
		return iqr
	}
	if m := math.Abs(stats.Mean); m > sameEpsilon {
		return m
	}
	return 1
}

// ExplainDrivers compares the summary with the baseline, strongest deviation
// (delta scaled by the peer spread) first. Metrics missing from the baseline
// are skipped.
func ExplainDrivers(s models.MonthlyPersonSummary, baseline Baseline) []Driver {
	type scored struct {
		driver Driver
		weight float64
		order  int
	}
	rows := make([]scored, 0, len(MetricKeys))
	for i, key := range MetricKeys {
		stats, ok := baseline[key]
		if !ok {
			continue
		}
		value := key.Value(s)
		delta := value - stats.Mean
		direction := DirectionSame
		switch {
		case delta > sameEpsilon:
			direction = DirectionHigher
		case delta < -sameEpsilon:
			direction = DirectionLower
		}
		rows = append(rows, scored{
			driver: Driver{
				Key:       key,
				Label:     key.Label(),
				Value:     value,
				PeerAvg:   stats.Mean,
				P25:       stats.P25,
				P75:       stats.P75,
				Delta:     delta,
				Direction: direction,
			},
			weight: math.Abs(delta) / spreadOf(stats),
			order:  i,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].weight != rows[j].weight {
			return rows[i].weight > rows[j].weight
		}
		return rows[i].order < rows[j].order
	})

	drivers := make([]Driver, len(rows))
	for i := range rows {
		drivers[i] = rows[i].driver
	}
	return drivers
}
