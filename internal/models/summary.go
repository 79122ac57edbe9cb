package models

import "time"

// LocationStat scanner usage count
type LocationStat struct {
	LocationID  string `json:"locationId"`
	DisplayName string `json:"displayName"`
	Count       int    `json:"count"`
}

// DenialReasonStat denial reason count
type DenialReasonStat struct {
	Reason DenialReason `json:"reason"`
	Count  int          `json:"count"`
}

// FlagStat flag count
type FlagStat struct {
	Flag  Flag `json:"flag"`
	Count int  `json:"count"`
}

// Severity roster status bucket
type Severity string

const (
	SeverityNormal Severity = "normal"
	SeverityWatch  Severity = "watch"
	SeverityAlert  Severity = "alert"
)

// MonthlyPersonSummary one (person, month) roll-up.
//
// AnomalyScore is signed in [-1,1]; positive values are more anomalous
// (it is the affine remap of IsolationForestScore, which grows with every
// risk input). Rates are percentages in [0,100].
type MonthlyPersonSummary struct {
	PersonID             string             `json:"personId"`
	Name                 string             `json:"name"`
	MonthKey             string             `json:"monthKey"`
	LastEventTimestamp   time.Time          `json:"lastEventTimestamp"`
	AnomalyScore         float64            `json:"anomalyScore"`
	IsolationForestScore float64            `json:"isolationForestScore"`
	IsAnomaly            int                `json:"isAnomaly"`
	Severity             Severity           `json:"severity"`
	ShannonEntropy       float64            `json:"shannonEntropy"`
	DeniedRate           float64            `json:"deniedRate"`
	WeekendRate          float64            `json:"weekendRate"`
	AfterHoursRate       float64            `json:"afterHoursRate"`
	NewLocationRate      float64            `json:"newLocationRate"`
	RapidRepeatRate      float64            `json:"rapidRepeatRate"`
	UniqueDeviceRatio    float64            `json:"uniqueDeviceRatio"`
	UniqueDeviceStdDev   float64            `json:"uniqueDeviceStdDev"`
	UniqueDeviceCount    int                `json:"uniqueDeviceCount"`
	UniqueDevices        []string           `json:"uniqueDevices"`
	DenialReasons        []DenialReasonStat `json:"denialReasons"`
	TotalEvents          int                `json:"totalEvents"`
	AcceptedCount        int                `json:"acceptedCount"`
	DeniedCount          int                `json:"deniedCount"`
	AfterHoursCount      int                `json:"afterHoursCount"`
	WeekendCount         int                `json:"weekendCount"`
	RapidBadgingCount    int                `json:"rapidBadgingCount"` // 3 scans within 15s, not the Rapid Repeat flag
	BadgedDays           []int              `json:"badgedDays"`
}
