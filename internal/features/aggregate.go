package features

import (
	"sort"

	"github.com/rs/zerolog"

	"ubi-pricer/internal/telemetry"
)

// FeatureVersion tags emitted rows so downstream consumers can detect
// calculator set changes.
const FeatureVersion = 1

// DefaultMinExposureMiles excludes partitions with too little observed
// driving to trust a rate computed over them.
const DefaultMinExposureMiles = 5.0

// Options tune an Aggregator.
type Options struct {
	Granularity      Granularity
	MinExposureMiles float64
}

// Aggregator folds validated telemetry events into per-(driver, period)
// feature rows in a single pass. Every call starts from fresh state; there is
// no incremental resumption across calls.
type Aggregator struct {
	opts        Options
	calculators []Calculator
	logger      zerolog.Logger
}

// New constructs an Aggregator.
func New(opts Options, logger zerolog.Logger) *Aggregator {
	if opts.Granularity == "" {
		opts.Granularity = GranularityMonth
	}
	if opts.MinExposureMiles <= 0 {
		opts.MinExposureMiles = DefaultMinExposureMiles
	}
	return &Aggregator{
		opts:        opts,
		calculators: defaultCalculators(),
		logger:      logger.With().Str("component", "aggregator").Logger(),
	}
}

type partition struct {
	driverID string
	key      string
	shared   Shared
	states   []State

	// Static attributes observed on events, carried through when present.
	carType       string
	carValue      float64
	carSportiness *float64
	priorClaims   *int
}

// Aggregate partitions events by (driver, period bucket) and runs the ordered
// calculator set over each partition. Rows below the minimum exposure are
// dropped entirely.
func (a *Aggregator) Aggregate(events []telemetry.Event) []Row {
	calculators := a.calculators
	partitions := make(map[string]*partition)
	var order []string

	for i := range events {
		evt := &events[i]
		if evt.DriverID == "" || evt.Timestamp.IsZero() {
			continue
		}
		key, start, end := periodBucket(evt.Timestamp, a.opts.Granularity)
		mapKey := evt.DriverID + "|" + key

		part, ok := partitions[mapKey]
		if !ok {
			part = &partition{
				driverID: evt.DriverID,
				key:      key,
				shared:   Shared{PeriodStart: start, PeriodEnd: end},
				states:   make([]State, len(calculators)),
			}
			for ci, calc := range calculators {
				part.states[ci] = calc.NewState()
			}
			partitions[mapKey] = part
			order = append(order, mapKey)
		}

		part.observeStatics(evt)
		for ci, calc := range calculators {
			a.safeUpdate(calc, part.states[ci], evt)
		}
	}

	sort.Strings(order)

	rows := make([]Row, 0, len(order))
	for _, mapKey := range order {
		part := partitions[mapKey]
		values := make(map[string]float64)
		for ci, calc := range calculators {
			for name, v := range calc.Finalize(part.states[ci], &part.shared) {
				values[name] = v
			}
		}

		if values[ColMiles] < a.opts.MinExposureMiles {
			a.logger.Debug().
				Str("driver_id", part.driverID).
				Str("period_key", part.key).
				Float64("miles", values[ColMiles]).
				Msg("dropping partition below minimum exposure")
			continue
		}

		row := Row{
			DriverID:        part.driverID,
			PeriodKey:       part.key,
			PeriodStart:     part.shared.PeriodStart,
			PeriodEnd:       part.shared.PeriodEnd,
			FeatureVersion:  FeatureVersion,
			Miles:           values[ColMiles],
			HardBraking:     values[ColHardBraking],
			AggressiveTurns: values[ColAggressiveTurns],
			Tailgating:      values[ColTailgating],
			SpeedingMinutes: values[ColSpeedingMinutes],
			LateNightMiles:  values[ColLateNightMiles],
			PriorClaimCount: int(values[ColPriorClaims]),
			CarType:         part.carType,
			CarValue:        part.carValue,
			CarSportiness:   part.carSportiness,
		}
		if part.priorClaims != nil {
			row.PriorClaimCount = *part.priorClaims
		}

		enrichRow(&row, part.priorClaims != nil)
		rows = append(rows, row)
	}

	return rows
}

// safeUpdate isolates a single calculator failure on a single event: the
// update is skipped and logged instead of aborting the whole pass.
func (a *Aggregator) safeUpdate(calc Calculator, state State, evt *telemetry.Event) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Debug().
				Str("calculator", calc.Name()).
				Str("event_id", evt.EventID).
				Interface("panic", r).
				Msg("calculator update skipped")
		}
	}()
	calc.Update(state, evt)
}

func (p *partition) observeStatics(evt *telemetry.Event) {
	if evt.CarType != nil && p.carType == "" {
		p.carType = *evt.CarType
	}
	if evt.CarValue != nil && p.carValue == 0 {
		p.carValue = *evt.CarValue
	}
	if evt.CarSportiness != nil && p.carSportiness == nil {
		v := *evt.CarSportiness
		p.carSportiness = &v
	}
	if evt.PriorClaims != nil && p.priorClaims == nil {
		v := *evt.PriorClaims
		p.priorClaims = &v
	}
}
