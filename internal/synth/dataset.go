package synth

import (
	"fmt"
	"time"

	"badgewatch/internal/models"
	"badgewatch/internal/prng"
)

// DefaultPersonCount roster size when none is configured.
const DefaultPersonCount = 40

// DatasetConfig inputs of GenerateDataset. Seed salts every per-person key,
// so two configs that differ only in Seed give unrelated datasets.
type DatasetConfig struct {
	Seed         string
	PersonCount  int
	Anchor       time.Time
	LookbackDays int
}

// Dataset people and their events. Events are grouped by person in roster
// order, each group newest first.
type Dataset struct {
	People   []models.Person
	Events   []models.BadgeEvent
	Anchor   time.Time
	Scanners []models.Scanner
}

// PersonSeed derivation key of a person's event stream.
func PersonSeed(salt, personID string) uint32 {
	if salt == "" {
		return prng.Seed(personID)
	}
	return prng.Seed(salt + ":" + personID)
}

// GenerateDataset builds the whole synthetic dataset. Each person gets a
// fresh trait stream and a fresh event stream.
func GenerateDataset(cfg DatasetConfig) Dataset {
	count := cfg.PersonCount
	if count <= 0 {
		count = DefaultPersonCount
	}
	opts := Options{Anchor: cfg.Anchor, LookbackDays: cfg.LookbackDays}.withDefaults()

	ds := Dataset{
		People:   make([]models.Person, 0, count),
		Events:   make([]models.BadgeEvent, 0),
		Anchor:   opts.Anchor,
		Scanners: Scanners,
	}
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("p-%03d", i+1)
		cohort := CohortForIndex(i, count)
		traits := DeriveTraits(cohort, prng.New(PersonSeed(cfg.Seed, id+":traits")))

		ds.People = append(ds.People, models.Person{
			ID:        id,
			Name:      personName(i),
			IsAnomaly: cohort.AnomalyMarker(),
		})
		ds.Events = append(ds.Events, GenerateEvents(id, PersonSeed(cfg.Seed, id), traits, opts)...)
	}
	return ds
}

// EventsFor events of one person, newest first.
func (d Dataset) EventsFor(personID string) []models.BadgeEvent {
	out := make([]models.BadgeEvent, 0)
	for i := range d.Events {
		if d.Events[i].PersonID == personID {
			out = append(out, d.Events[i])
		}
	}
	return out
}

// Person looks a person up by ID.
func (d Dataset) Person(personID string) (models.Person, bool) {
	for _, p := range d.People {
		if p.ID == personID {
			return p, true
		}
	}
	return models.Person{}, false
}
