package models

import "time"

// PersonProfile windowed profile for the profile screen
type PersonProfile struct {
	ID                   string             `json:"id"`
	Name                 string             `json:"name"`
	AnomalyScore         float64            `json:"anomalyScore"`
	IsAnomaly            int                `json:"isAnomaly"`
	IsolationForestScore float64            `json:"isolationForestScore"`
	ShannonEntropy       float64            `json:"shannonEntropy"`
	ApprovedCount        int                `json:"approvedCount"`
	DeniedCount          int                `json:"deniedCount"`
	ScannerLocations     []LocationStat     `json:"scannerLocations"`
	DenialPercent        float64            `json:"denialPercent"`
	UniqueDeviceRatio    float64            `json:"uniqueDeviceRatio"`
	AfterHoursRate       float64            `json:"afterHoursRate"`
	WeekendRate          float64            `json:"weekendRate"`
	RapidRepeatRate      float64            `json:"rapidRepeatRate"`
	LastBadgeTimestamp   time.Time          `json:"lastBadgeTimestamp"`
	ActiveWindowLabel    string             `json:"activeWindowLabel"`
	TotalEvents          int                `json:"totalEvents"`
	DenialReasons        []DenialReasonStat `json:"denialReasons"`
	RecentEvents         []BadgeEvent       `json:"recentEvents"`
	TopFlags             []FlagStat         `json:"topFlags"`
	Severity             Severity           `json:"severity"`
	StatusLabel          string             `json:"statusLabel"`
	StatusReasons        []string           `json:"statusReasons"`
}

// PersonRollup lightweight roster row
type PersonRollup struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	AnomalyScore         float64   `json:"anomalyScore"`
	IsAnomaly            int       `json:"isAnomaly"`
	IsolationForestScore float64   `json:"isolationForestScore"`
	ShannonEntropy       float64   `json:"shannonEntropy"`
	DenialPercent        float64   `json:"denialPercent"`
	LastBadgeTimestamp   time.Time `json:"lastBadgeTimestamp"`
	ActiveWindowLabel    string    `json:"activeWindowLabel"`
	TotalEvents          int       `json:"totalEvents"`
	StatusLabel          string    `json:"statusLabel"`
}

// DenialBreakdown denial drill-down model
type DenialBreakdown struct {
	PersonID           string             `json:"personId"`
	MonthKey           string             `json:"monthKey,omitempty"`
	TotalDenied        int                `json:"totalDenied"`
	DenialReasons      []DenialReasonStat `json:"denialReasons"`
	TopFlags           []FlagStat         `json:"topFlags"`
	RecentDeniedEvents []BadgeEvent       `json:"recentDeniedEvents"`
}

// PersonnelSummary header KPIs for a roster
type PersonnelSummary struct {
	TotalPersonnel    int     `json:"totalPersonnel"`
	TotalEvents       int     `json:"totalEvents"`
	AvgAnomaly        float64 `json:"avgAnomaly"`
	AfterHoursEvents  int     `json:"afterHoursEvents"`
	AfterHoursDays    int     `json:"afterHoursDays"`
	ActiveWindowLabel string  `json:"activeWindowLabel"`
}
