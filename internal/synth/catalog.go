package synth

import "badgewatch/internal/models"

// Scanners fixed badge reader catalog.
var Scanners = []models.Scanner{
	{ID: "SC-100", Name: "HQ North Lobby"},
	{ID: "SC-101", Name: "HQ South Lobby"},
	{ID: "SC-102", Name: "Annex 2F West"},
	{ID: "SC-103", Name: "R&D East Bay"},
	{ID: "SC-104", Name: "Ops Warehouse"},
	{ID: "SC-105", Name: "Data Center A"},
	{ID: "SC-106", Name: "Parking Gate 3"},
	{ID: "SC-107", Name: "Training Wing"},
	{ID: "SC-108", Name: "Remote Intake"},
	{ID: "SC-109", Name: "HQ Level 5"},
}

var firstNames = []string{
	"Avery", "Malik", "Priya", "Sofia", "Omar",
	"Hannah", "Emilio", "Noah", "Ivy", "Declan",
}

var lastNames = []string{
	"Chen", "Johnson", "Nayar", "Alvarez", "Rahman",
	"Park", "Torres", "Bennett", "Thompson", "Wu",
}

// personName is unique for the first len(firstNames)*len(lastNames) indexes.
func personName(i int) string {
	first := firstNames[i%len(firstNames)]
	last := lastNames[(i/len(firstNames)+3*i)%len(lastNames)]
	return first + " " + last
}

// ScannerByID looks a scanner up in the catalog.
func ScannerByID(id string) (models.Scanner, bool) {
	for _, s := range Scanners {
		if s.ID == id {
			return s, true
		}
	}
	return models.Scanner{}, false
}
