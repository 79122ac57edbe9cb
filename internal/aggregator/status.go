package aggregator

import "badgewatch/internal/models"

// Severity cut-offs on the signed anomaly score.
const (
	AlertThreshold = 0.2
	WatchThreshold = -0.1
)

// Status reason thresholds (percentages unless noted).
const (
	HighDenialRateThreshold      = 14.0
	AfterHoursSurgeThreshold     = 18.0
	RapidRepeatRateThreshold     = 8.0
	RapidBadgingCountThreshold   = 6 // monthly form, a count not a rate
	TrainingOverdueDenialPercent = 16.0
)

const (
	ReasonHighDenied      = "High denied rate"
	ReasonAfterHoursSurge = "After-hours surge"
	ReasonRapidRepeat     = "Rapid repeat attempts"
	ReasonAnomalyElevated = "Anomaly score elevated"
	ReasonTrainingOverdue = "Training overdue"
	ReasonBaseline        = "Within expected baseline"
)

// SeverityFor maps the pre-assigned anomaly marker and score to a severity.
// Delinquent people are always alerts; flagged people are at least watch.
func SeverityFor(isAnomaly int, score float64) models.Severity {
	switch {
	case score >= AlertThreshold || isAnomaly == models.AnomalyDelinquent:
		return models.SeverityAlert
	case score >= WatchThreshold || isAnomaly == models.AnomalyFlagged:
		return models.SeverityWatch
	default:
		return models.SeverityNormal
	}
}

// SeverityLabel upper-case display label.
func SeverityLabel(s models.Severity) string {
	switch s {
	case models.SeverityAlert:
		return "ALERT"
	case models.SeverityWatch:
		return "WATCH"
	default:
		return "NORMAL"
	}
}

// Status derived severity plus the human-readable reasons behind it.
type Status struct {
	Severity        models.Severity `json:"severity"`
	Label           string          `json:"label"`
	Reasons         []string        `json:"reasons"`
	TrainingOverdue bool            `json:"trainingOverdue"`
}

type statusInputs struct {
	isAnomaly      int
	score          float64
	denialPercent  float64
	afterHoursRate float64
	rapidAttempts  bool
}

func deriveStatus(in statusInputs) Status {
	reasons := make([]string, 0, 5)
	if in.denialPercent > HighDenialRateThreshold {
		reasons = append(reasons, ReasonHighDenied)
	}
	if in.afterHoursRate > AfterHoursSurgeThreshold {
		reasons = append(reasons, ReasonAfterHoursSurge)
	}
	if in.rapidAttempts {
		reasons = append(reasons, ReasonRapidRepeat)
	}
	if in.score >= WatchThreshold {
		reasons = append(reasons, ReasonAnomalyElevated)
	}
	if len(reasons) == 0 {
		reasons = append(reasons, ReasonBaseline)
	}

	overdue := in.score >= WatchThreshold || in.denialPercent > TrainingOverdueDenialPercent
	if overdue {
		reasons = append(reasons, ReasonTrainingOverdue)
	}

	severity := SeverityFor(in.isAnomaly, in.score)
	return Status{
		Severity:        severity,
		Label:           SeverityLabel(severity),
		Reasons:         reasons,
		TrainingOverdue: overdue,
	}
}

// MonthlyStatus status of a monthly summary. The rapid reason fires on the
// 15-second rapid badging count rather than the Rapid Repeat flag rate.
func MonthlyStatus(s models.MonthlyPersonSummary) Status {
	return deriveStatus(statusInputs{
		isAnomaly:      s.IsAnomaly,
		score:          s.AnomalyScore,
		denialPercent:  s.DeniedRate,
		afterHoursRate: s.AfterHoursRate,
		rapidAttempts:  s.RapidBadgingCount > RapidBadgingCountThreshold,
	})
}
