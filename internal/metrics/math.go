package metrics

import (
	"math"
	"sort"
)

// Clamp bounds v to [min,max].
func Clamp(v, min, max float64) float64 {
	return math.Min(math.Max(v, min), max)
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(v*factor) / factor
}

// Mean returns 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev population standard deviation; 0 for an empty slice.
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}

// Quantile linear-interpolated quantile q in [0,1]; 0 for an empty slice.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	pos := Clamp(q, 0, 1) * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// PercentileRank mid-rank percentile of value within values, 0-100.
func PercentileRank(values []float64, value float64) int {
	if len(values) == 0 {
		return 0
	}
	less, equal := 0, 0
	for _, v := range values {
		if v < value {
			less++
		}
		if v == value {
			equal++
		}
	}
	rank := (float64(less) + 0.5*float64(equal)) / float64(len(values))
	return int(math.Round(rank * 100))
}
