package features

import (
	"math"

	"ubi-pricer/internal/telemetry"
)

// exposureMilesCalc approximates distance driven from per-event speed samples.
// Each event stands for a one-minute time slice, so miles += speed_mph / 60
// across every event in the partition including non-incident pings. Exposure
// is the denominator for all rate features and must reflect all observed
// time, not just flagged incidents.
type exposureMilesCalc struct{}

type exposureState struct {
	miles        float64
	eventMinutes int
}

func (c *exposureMilesCalc) Name() string { return "exposure_miles" }
func (c *exposureMilesCalc) NewState() State { return &exposureState{} }

func (c *exposureMilesCalc) Update(state State, evt *telemetry.Event) {
	s := state.(*exposureState)
	s.miles += evt.SpeedMPH / 60.0
	s.eventMinutes++
}

func (c *exposureMilesCalc) Finalize(state State, shared *Shared) map[string]float64 {
	s := state.(*exposureState)
	shared.ExposureMiles = s.miles
	shared.TotalEventMinutes = s.eventMinutes
	return map[string]float64{ColMiles: round2(s.miles)}
}

// countPer100MiCalc counts events of a single type and normalizes by exposure.
type countPer100MiCalc struct {
	eventType telemetry.EventType
	feature   string
}

type countState struct {
	count int
}

func (c *countPer100MiCalc) Name() string { return c.feature }
func (c *countPer100MiCalc) NewState() State { return &countState{} }

func (c *countPer100MiCalc) Update(state State, evt *telemetry.Event) {
	if evt.EventType == c.eventType {
		state.(*countState).count++
	}
}

func (c *countPer100MiCalc) Finalize(state State, shared *Shared) map[string]float64 {
	s := state.(*countState)
	return map[string]float64{c.feature: round4(per100Mi(float64(s.count), shared.ExposureMiles))}
}

// tailgatingRatioCalc measures the proportion of tailgating events against the
// partition's total event minutes.
type tailgatingRatioCalc struct{}

func (c *tailgatingRatioCalc) Name() string { return ColTailgating }
func (c *tailgatingRatioCalc) NewState() State { return &countState{} }

func (c *tailgatingRatioCalc) Update(state State, evt *telemetry.Event) {
	if evt.EventType == telemetry.EventTailgating {
		state.(*countState).count++
	}
}

func (c *tailgatingRatioCalc) Finalize(state State, shared *Shared) map[string]float64 {
	s := state.(*countState)
	ratio := 0.0
	if shared.TotalEventMinutes > 0 {
		ratio = float64(s.count) / float64(shared.TotalEventMinutes)
	}
	return map[string]float64{ColTailgating: round4(ratio)}
}

// speedingMinutesCalc accumulates speeding duration, falling back to a single
// one-second slice when the event omits duration_sec.
type speedingMinutesCalc struct{}

type speedingState struct {
	minutes float64
}

func (c *speedingMinutesCalc) Name() string { return ColSpeedingMinutes }
func (c *speedingMinutesCalc) NewState() State { return &speedingState{} }

func (c *speedingMinutesCalc) Update(state State, evt *telemetry.Event) {
	if evt.EventType != telemetry.EventSpeeding {
		return
	}
	s := state.(*speedingState)
	if evt.DurationSec != nil {
		s.minutes += float64(*evt.DurationSec) / 60.0
	} else {
		s.minutes += 1.0 / 60.0
	}
}

func (c *speedingMinutesCalc) Finalize(state State, shared *Shared) map[string]float64 {
	s := state.(*speedingState)
	return map[string]float64{ColSpeedingMinutes: round4(per100Mi(s.minutes, shared.ExposureMiles))}
}

// lateNightMilesCalc accumulates miles driven during late-night events.
type lateNightMilesCalc struct{}

type lateNightState struct {
	miles float64
}

func (c *lateNightMilesCalc) Name() string { return ColLateNightMiles }
func (c *lateNightMilesCalc) NewState() State { return &lateNightState{} }

func (c *lateNightMilesCalc) Update(state State, evt *telemetry.Event) {
	if evt.EventType == telemetry.EventLateNight {
		state.(*lateNightState).miles += evt.SpeedMPH / 60.0
	}
}

func (c *lateNightMilesCalc) Finalize(state State, shared *Shared) map[string]float64 {
	s := state.(*lateNightState)
	return map[string]float64{ColLateNightMiles: round4(per100Mi(s.miles, shared.ExposureMiles))}
}

// priorClaimsCalc emits a zero placeholder; an external claims source or the
// deterministic fallback fills it in during enrichment.
type priorClaimsCalc struct{}

func (c *priorClaimsCalc) Name() string { return ColPriorClaims }
func (c *priorClaimsCalc) NewState() State { return &countState{} }

func (c *priorClaimsCalc) Update(state State, evt *telemetry.Event) {}

func (c *priorClaimsCalc) Finalize(state State, shared *Shared) map[string]float64 {
	return map[string]float64{ColPriorClaims: 0}
}

// per100Mi rate-normalizes a raw quantity. Defined as 0 when exposure is not
// positive so downstream model inputs stay bounded.
func per100Mi(raw, exposureMiles float64) float64 {
	if exposureMiles <= 0 {
		return 0
	}
	return 100.0 * raw / exposureMiles
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
