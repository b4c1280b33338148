package features

import (
	"ubi-pricer/internal/telemetry"
)

// Shared is the mutable context threaded through one aggregation pass of a
// single partition. The exposure calculator writes it at finalize time; later
// calculators read it to normalize their counts into rates.
type Shared struct {
	ExposureMiles     float64
	TotalEventMinutes int
	PeriodStart       string
	PeriodEnd         string
}

// State holds a calculator's private accumulator for one partition.
type State interface{}

// Calculator is an independent, composable feature accumulator. Update is
// called once per event in the partition; Finalize converts the accumulated
// state (plus shared context) into named feature values.
type Calculator interface {
	Name() string
	NewState() State
	Update(state State, evt *telemetry.Event)
	Finalize(state State, shared *Shared) map[string]float64
}

// defaultCalculators returns the ordered calculator set. The exposure
// calculator must come first: every later calculator reads the exposure miles
// and event minutes it publishes into the shared context.
func defaultCalculators() []Calculator {
	return []Calculator{
		&exposureMilesCalc{},
		&countPer100MiCalc{eventType: telemetry.EventHardBraking, feature: ColHardBraking},
		&countPer100MiCalc{eventType: telemetry.EventAggressiveTurn, feature: ColAggressiveTurns},
		&tailgatingRatioCalc{},
		&speedingMinutesCalc{},
		&lateNightMilesCalc{},
		&priorClaimsCalc{},
	}
}
