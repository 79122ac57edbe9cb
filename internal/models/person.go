package models

// Anomaly markers pre-assigned at generation time.
const (
	AnomalyDelinquent = -1
	AnomalyNormal     = 0
	AnomalyFlagged    = 1
)

// Person identity unit, immutable after generation
type Person struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsAnomaly int    `json:"isAnomaly"`
}

// Scanner badge reader location
type Scanner struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
