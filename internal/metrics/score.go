package metrics

// Scale constants: the raw value at which each input saturates.
const (
	DenialScale      = 45.0
	EntropyScale     = 3.2
	AfterHoursScale  = 40.0
	NewLocationScale = 25.0
	RapidRepeatScale = 20.0
	DeviceScale      = 1.0
)

// Weights of the normalised inputs; they sum to 1.
const (
	DenialWeight      = 0.28
	EntropyWeight     = 0.20
	AfterHoursWeight  = 0.18
	NewLocationWeight = 0.14
	RapidRepeatWeight = 0.12
	DeviceWeight      = 0.08
)

// IsolationInputs raw inputs of the composite score. Percentages are 0-100.
type IsolationInputs struct {
	DenialPercent     float64
	Entropy           float64
	AfterHoursRate    float64
	NewLocationRate   float64
	RapidRepeatRate   float64
	UniqueDeviceRatio float64
}

// IsolationForestScore weighted-normalisation heuristic in [0,10]. Despite
// the name there is no trained model; higher means more isolated.
func IsolationForestScore(in IsolationInputs) float64 {
	denialNorm := Clamp(in.DenialPercent/DenialScale, 0, 1)
	entropyNorm := Clamp(in.Entropy/EntropyScale, 0, 1)
	afterHoursNorm := Clamp(in.AfterHoursRate/AfterHoursScale, 0, 1)
	newLocationNorm := Clamp(in.NewLocationRate/NewLocationScale, 0, 1)
	rapidNorm := Clamp(in.RapidRepeatRate/RapidRepeatScale, 0, 1)
	deviceNorm := Clamp(in.UniqueDeviceRatio/DeviceScale, 0, 1)

	weighted := denialNorm*DenialWeight +
		entropyNorm*EntropyWeight +
		afterHoursNorm*AfterHoursWeight +
		newLocationNorm*NewLocationWeight +
		rapidNorm*RapidRepeatWeight +
		deviceNorm*DeviceWeight

	return Clamp(weighted*10, 0, 10)
}

// AnomalyScoreFromIso maps the [0,10] isolation score onto the signed [-1,1]
// anomaly score. 5 maps to 0; positive is more anomalous.
func AnomalyScoreFromIso(iso float64) float64 {
	return Clamp((iso-5)/5, -1, 1)
}

// AnomalyPercent projects a signed anomaly score onto 0-100 for range filters.
func AnomalyPercent(score float64) float64 {
	return Clamp((score+1)*50, 0, 100)
}
