package mockgen

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"ubi-pricer/internal/telemetry"
)

// Config tunes the synthetic telemetry generator.
type Config struct {
	Drivers         int
	Seed            int64
	BaseLat         float64
	BaseLon         float64
	LatJitterDeg    float64
	LonJitterDeg    float64
	MinSpeedMPH     float64
	MaxSpeedMPH     float64
	TripAvgMinutes  int
	TripStdMinutes  int
	TripStartProb   float64
	ExtremeVariance bool
}

// DefaultConfig mirrors the reference generator's San Francisco bounding box
// and trip cadence.
func DefaultConfig() Config {
	return Config{
		Drivers:        10,
		Seed:           42,
		BaseLat:        37.7749,
		BaseLon:        -122.4194,
		LatJitterDeg:   0.25,
		LonJitterDeg:   0.25,
		MinSpeedMPH:    0,
		MaxSpeedMPH:    82,
		TripAvgMinutes: 28,
		TripStdMinutes: 9,
		TripStartProb:  0.07,
	}
}

type eventSpec struct {
	typ    telemetry.EventType
	weight float64
	attrs  func(rng *rand.Rand, evt *telemetry.Event)
}

var eventSpecs = []eventSpec{
	{telemetry.EventHardBraking, 0.18, brakingAttrs},
	{telemetry.EventAggressiveTurn, 0.12, turnAttrs},
	{telemetry.EventSpeeding, 0.22, speedingAttrs},
	{telemetry.EventTailgating, 0.10, tailgatingAttrs},
	{telemetry.EventLateNight, 0.08, lateNightAttrs},
	// Background pings carry no incident attributes but supply exposure context.
	{telemetry.EventPing, 0.30, nil},
}

func brakingAttrs(rng *rand.Rand, evt *telemetry.Event) {
	g := roundTo(uniform(rng, 0.25, 0.9), 2)
	abs := rng.Float64() < 0.15
	evt.BrakingG = &g
	evt.ABSActivation = &abs
}

func turnAttrs(rng *rand.Rand, evt *telemetry.Event) {
	g := roundTo(uniform(rng, 0.3, 1.1), 2)
	dir := "left"
	if rng.Intn(2) == 1 {
		dir = "right"
	}
	evt.LateralG = &g
	evt.TurnDirection = &dir
}

func speedingAttrs(rng *rand.Rand, evt *telemetry.Event) {
	posted := []int{25, 35, 45, 55, 65, 70}[rng.Intn(6)]
	over := roundTo(uniform(rng, 5, 35), 1)
	duration := int(uniform(rng, 10, 240))
	evt.PostedSpeedMPH = &posted
	evt.OverSpeedMPH = &over
	evt.DurationSec = &duration
}

func tailgatingAttrs(rng *rand.Rand, evt *telemetry.Event) {
	dist := roundTo(uniform(rng, 4.0, 15.0), 1)
	ctxSpeed := int(uniform(rng, 20, 75))
	evt.FollowingDistanceM = &dist
	evt.SpeedContextMPH = &ctxSpeed
}

func lateNightAttrs(rng *rand.Rand, evt *telemetry.Event) {
	hour := []int{0, 1, 2, 3}[rng.Intn(4)]
	evt.LocalHour = &hour
}

// Risk profiles widen metric variance in extreme mode by scaling event type
// frequencies per driver.
var profileKeys = []string{"ultra_safe", "safe", "moderate", "risky", "ultra_risky"}

var profileWeights = []float64{0.05, 0.25, 0.40, 0.20, 0.10}

var profileMultipliers = map[string]map[telemetry.EventType]float64{
	"ultra_safe": {
		telemetry.EventHardBraking: 0.1, telemetry.EventAggressiveTurn: 0.1,
		telemetry.EventSpeeding: 0.12, telemetry.EventTailgating: 0.08,
		telemetry.EventLateNight: 0.05, telemetry.EventPing: 2.5,
	},
	"safe": {
		telemetry.EventHardBraking: 0.4, telemetry.EventAggressiveTurn: 0.4,
		telemetry.EventSpeeding: 0.5, telemetry.EventTailgating: 0.4,
		telemetry.EventLateNight: 0.4, telemetry.EventPing: 1.6,
	},
	"moderate": {
		telemetry.EventHardBraking: 1.0, telemetry.EventAggressiveTurn: 1.0,
		telemetry.EventSpeeding: 1.0, telemetry.EventTailgating: 1.0,
		telemetry.EventLateNight: 1.0, telemetry.EventPing: 1.0,
	},
	"risky": {
		telemetry.EventHardBraking: 3.9, telemetry.EventAggressiveTurn: 6.8,
		telemetry.EventSpeeding: 5.0, telemetry.EventTailgating: 4.2,
		telemetry.EventLateNight: 5.4, telemetry.EventPing: 0.7,
	},
	"ultra_risky": {
		telemetry.EventHardBraking: 10.2, telemetry.EventAggressiveTurn: 9.0,
		telemetry.EventSpeeding: 10.5, telemetry.EventTailgating: 9.8,
		telemetry.EventLateNight: 12.2, telemetry.EventPing: 0.2,
	},
}

type carSpec struct {
	carType    string
	weight     float64
	baseValue  float64
	sportiness float64
}

var carSpecs = []carSpec{
	{"economy", 0.30, 18000, 0.15},
	{"sedan", 0.35, 28000, 0.25},
	{"suv", 0.18, 40000, 0.30},
	{"luxury", 0.10, 65000, 0.40},
	{"sports", 0.05, 85000, 0.70},
	{"super", 0.02, 140000, 0.90},
}

type driverState struct {
	tripID     string
	tripEndMin int
}

type carAttrs struct {
	carType    string
	value      float64
	sportiness float64
}

// Generator produces synthetic event-level telemetry with a fixed seed so
// identical configs replay identical streams.
type Generator struct {
	cfg      Config
	rng      *rand.Rand
	state    map[string]*driverState
	profiles map[string]string
	cars     map[string]carAttrs
	start    time.Time
	minute   int
	pending  []telemetry.Event
}

// New constructs a Generator. The stream starts at start, which callers pin
// for reproducible timestamps.
func New(cfg Config, start time.Time) *Generator {
	if cfg.Drivers <= 0 {
		cfg.Drivers = 1
	}
	return &Generator{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		state:    make(map[string]*driverState),
		profiles: make(map[string]string),
		cars:     make(map[string]carAttrs),
		start:    start.UTC(),
	}
}

// Generate emits n events round-robin across drivers, one simulated minute per
// sweep.
func (g *Generator) Generate(n int) []telemetry.Event {
	events := make([]telemetry.Event, 0, n)
	for len(events) < n {
		if len(g.pending) == 0 {
			g.sweep()
		}
		take := n - len(events)
		if take > len(g.pending) {
			take = len(g.pending)
		}
		events = append(events, g.pending[:take]...)
		g.pending = g.pending[take:]
	}
	return events
}

func (g *Generator) sweep() {
	for d := 0; d < g.cfg.Drivers; d++ {
		driverID := fmt.Sprintf("D%04d", d)
		profile := g.assignProfile(driverID)
		tripID := g.ensureTrip(driverID)
		spec := g.chooseSpec(profile)

		speed := uniform(g.rng, g.cfg.MinSpeedMPH, g.cfg.MaxSpeedMPH)
		if spec.typ == telemetry.EventPing {
			speed *= 0.6
		}
		if g.cfg.ExtremeVariance {
			switch profile {
			case "ultra_safe", "safe":
				speed *= 1.1
			case "risky", "ultra_risky":
				speed *= 0.8
			}
		}

		ts := g.start.Add(time.Duration(g.minute) * time.Minute)
		if spec.typ == telemetry.EventLateNight {
			// Force the timestamp into the late-night window.
			hour := []int{0, 1, 2, 3}[g.rng.Intn(4)]
			ts = time.Date(ts.Year(), ts.Month(), ts.Day(), hour, g.rng.Intn(60), 0, 0, time.UTC)
		}

		evt := telemetry.Event{
			EventID:      strings.ReplaceAll(uuid.New().String(), "-", ""),
			DriverID:     driverID,
			TripID:       tripID,
			TS:           ts.Format("2006-01-02T15:04:05.000Z"),
			EventType:    spec.typ,
			Latitude:     roundTo(g.cfg.BaseLat+uniform(g.rng, -g.cfg.LatJitterDeg, g.cfg.LatJitterDeg), 6),
			Longitude:    roundTo(g.cfg.BaseLon+uniform(g.rng, -g.cfg.LonJitterDeg, g.cfg.LonJitterDeg), 6),
			SpeedMPH:     roundTo(speed, 1),
			HeadingDeg:   g.rng.Intn(360),
			PeriodMinute: g.minute,
			Timestamp:    ts,
		}

		car := g.assignCar(driverID)
		evt.CarType = &car.carType
		evt.CarValue = &car.value
		evt.CarSportiness = &car.sportiness

		if spec.attrs != nil {
			spec.attrs(g.rng, &evt)
		}
		if g.cfg.ExtremeVariance {
			g.amplify(profile, &evt)
		}

		g.pending = append(g.pending, evt)
	}
	g.minute++
}

func (g *Generator) assignProfile(driverID string) string {
	if !g.cfg.ExtremeVariance {
		return "moderate"
	}
	if p, ok := g.profiles[driverID]; ok {
		return p
	}
	r := g.rng.Float64()
	acc := 0.0
	profile := profileKeys[len(profileKeys)-1]
	for i, key := range profileKeys {
		acc += profileWeights[i]
		if r <= acc {
			profile = key
			break
		}
	}
	g.profiles[driverID] = profile
	return profile
}

func (g *Generator) assignCar(driverID string) carAttrs {
	if car, ok := g.cars[driverID]; ok {
		return car
	}
	r := g.rng.Float64()
	acc := 0.0
	chosen := carSpecs[len(carSpecs)-1]
	for _, spec := range carSpecs {
		acc += spec.weight
		if r <= acc {
			chosen = spec
			break
		}
	}
	car := carAttrs{
		carType:    chosen.carType,
		value:      float64(int(chosen.baseValue * uniform(g.rng, 0.85, 1.25))),
		sportiness: clamp01(roundTo(chosen.sportiness+uniform(g.rng, -0.05, 0.05), 3)),
	}
	g.cars[driverID] = car
	return car
}

func (g *Generator) chooseSpec(profile string) eventSpec {
	mults := profileMultipliers[profile]
	total := 0.0
	for _, spec := range eventSpecs {
		total += spec.weight * mults[spec.typ]
	}
	r := uniform(g.rng, 0, total)
	acc := 0.0
	for _, spec := range eventSpecs {
		acc += spec.weight * mults[spec.typ]
		if r <= acc {
			return spec
		}
	}
	return eventSpecs[len(eventSpecs)-1]
}

func (g *Generator) ensureTrip(driverID string) string {
	st, ok := g.state[driverID]
	if !ok {
		st = &driverState{}
		g.state[driverID] = st
	}
	if st.tripID == "" || g.minute >= st.tripEndMin {
		if st.tripID == "" || g.rng.Float64() < g.cfg.TripStartProb {
			duration := int(g.rng.NormFloat64()*float64(g.cfg.TripStdMinutes)) + g.cfg.TripAvgMinutes
			if duration < 5 {
				duration = 5
			}
			st.tripID = "T-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:10]
			st.tripEndMin = g.minute + duration
		}
	}
	return st.tripID
}

// amplify scales type-specific intensities for extreme profiles.
func (g *Generator) amplify(profile string, evt *telemetry.Event) {
	switch profile {
	case "risky", "ultra_risky":
		durMult, overMult, brakeMult, turnMult := 2.0, 1.6, 1.4, 1.4
		if profile == "ultra_risky" {
			durMult, overMult, brakeMult, turnMult = 3.2, 2.2, 1.8, 1.9
		}
		if evt.DurationSec != nil {
			d := int(float64(*evt.DurationSec) * durMult)
			if d > 7200 {
				d = 7200
			}
			evt.DurationSec = &d
		}
		if evt.OverSpeedMPH != nil {
			v := roundTo(math.Min(100, *evt.OverSpeedMPH*overMult), 1)
			evt.OverSpeedMPH = &v
		}
		if evt.BrakingG != nil {
			v := roundTo(math.Min(2.5, *evt.BrakingG*brakeMult), 2)
			evt.BrakingG = &v
		}
		if evt.LateralG != nil {
			v := roundTo(math.Min(3.0, *evt.LateralG*turnMult), 2)
			evt.LateralG = &v
		}
	case "ultra_safe", "safe":
		if evt.DurationSec != nil {
			d := int(float64(*evt.DurationSec) * 0.5)
			if d < 5 {
				d = 5
			}
			evt.DurationSec = &d
		}
		if evt.BrakingG != nil {
			v := roundTo(*evt.BrakingG*0.7, 2)
			evt.BrakingG = &v
		}
		if evt.LateralG != nil {
			v := roundTo(*evt.LateralG*0.7, 2)
			evt.LateralG = &v
		}
	}
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
