package models

import (
	"fmt"
	"time"
)

// Outcome badge access outcome
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeDenied   Outcome = "denied"
)

// DenialReason why a badge attempt was denied
type DenialReason string

const (
	DenialExpiredBadge     DenialReason = "Expired Badge"
	DenialTimeRestricted   DenialReason = "Time Restricted"
	DenialInvalidEntryCode DenialReason = "Invalid Entry Code"
	DenialNoAccess         DenialReason = "No Access"
	DenialUnknown          DenialReason = "Unknown"
)

// DenialReasons lists every reason in display order.
var DenialReasons = []DenialReason{
	DenialExpiredBadge,
	DenialTimeRestricted,
	DenialInvalidEntryCode,
	DenialNoAccess,
	DenialUnknown,
}

// NormalizeDenialReason maps anything outside the known set to Unknown.
func NormalizeDenialReason(r DenialReason) DenialReason {
	for _, known := range DenialReasons {
		if r == known {
			return r
		}
	}
	return DenialUnknown
}

// Flag event-level tag
type Flag string

const (
	FlagAfterHours      Flag = "After-Hours"
	FlagNewLocation     Flag = "New Location"
	FlagRapidRepeat     Flag = "Rapid Repeat" // scan within 2 minutes of the previous one
	FlagTrainingOverdue Flag = "Training Overdue"
)

// BadgeEvent one access attempt
type BadgeEvent struct {
	ID           string        `json:"id"`
	PersonID     string        `json:"personId"`
	Timestamp    time.Time     `json:"timestamp"`
	ScannerID    string        `json:"scannerId"`
	ScannerName  string        `json:"scannerName"`
	Outcome      Outcome       `json:"outcome"`
	DenialReason *DenialReason `json:"denialReason,omitempty"`
	Flags        []Flag        `json:"flags"`
	DeviceID     string        `json:"deviceId"`
}

// IsDenied reports whether the attempt was denied.
func (e *BadgeEvent) IsDenied() bool {
	return e.Outcome == OutcomeDenied
}

// HasFlag reports whether the event carries flag f.
func (e *BadgeEvent) HasFlag(f Flag) bool {
	for _, existing := range e.Flags {
		if existing == f {
			return true
		}
	}
	return false
}

// AddFlag appends f unless it is already present.
func (e *BadgeEvent) AddFlag(f Flag) {
	if !e.HasFlag(f) {
		e.Flags = append(e.Flags, f)
	}
}

// Reason returns the denial reason, Unknown when a denied event has none.
func (e *BadgeEvent) Reason() DenialReason {
	if e.DenialReason == nil {
		return DenialUnknown
	}
	return NormalizeDenialReason(*e.DenialReason)
}

// ParseTimestamp validates an externally supplied ISO-8601 timestamp.
// Ingestion boundaries must reject what this rejects instead of letting a zero
// time leak into comparisons.
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}
