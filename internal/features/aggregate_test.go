package features

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ubi-pricer/internal/telemetry"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func evt(driverID string, ts time.Time, typ telemetry.EventType, speed float64) telemetry.Event {
	return telemetry.Event{
		EventID:   "0123456789abcdef0123456789abcdef",
		DriverID:  driverID,
		TripID:    "trip-00001",
		EventType: typ,
		SpeedMPH:  speed,
		Timestamp: ts,
	}
}

func TestAggregateExposureAndRates(t *testing.T) {
	ts := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	duration := 120

	var events []telemetry.Event
	for i := 0; i < 6; i++ {
		events = append(events, evt("D1001", ts, telemetry.EventPing, 60))
	}
	events = append(events, evt("D1001", ts, telemetry.EventHardBraking, 60))
	events = append(events, evt("D1001", ts, telemetry.EventHardBraking, 60))
	events = append(events, evt("D1001", ts, telemetry.EventTailgating, 60))

	speeding := evt("D1001", ts, telemetry.EventSpeeding, 60)
	speeding.DurationSec = &duration
	events = append(events, speeding)

	agg := New(Options{}, noopLogger())
	rows := agg.Aggregate(events)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	row := rows[0]
	if row.PeriodKey != "2026-03" || row.PeriodStart != "2026-03-01" || row.PeriodEnd != "2026-03-31" {
		t.Fatalf("unexpected period fields: %s %s %s", row.PeriodKey, row.PeriodStart, row.PeriodEnd)
	}

	// 10 events at 60 mph, one minute each: 10 miles of exposure.
	if row.Miles != 10 {
		t.Fatalf("expected 10 miles, got %v", row.Miles)
	}
	if row.HardBraking != 20 {
		t.Fatalf("expected 20 hard braking events per 100mi, got %v", row.HardBraking)
	}
	if row.Tailgating != 0.1 {
		t.Fatalf("expected tailgating ratio 0.1, got %v", row.Tailgating)
	}
	// 120s of speeding is 2 minutes, normalized over 10 miles.
	if row.SpeedingMinutes != 20 {
		t.Fatalf("expected 20 speeding minutes per 100mi, got %v", row.SpeedingMinutes)
	}
	if row.LateNightMiles != 0 {
		t.Fatalf("expected no late night miles, got %v", row.LateNightMiles)
	}
	if row.FeatureVersion != FeatureVersion {
		t.Fatalf("expected feature version %d, got %d", FeatureVersion, row.FeatureVersion)
	}
}

func TestAggregateDropsThinPartitions(t *testing.T) {
	ts := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	events := []telemetry.Event{
		evt("D1001", ts, telemetry.EventPing, 60),
		evt("D1001", ts, telemetry.EventPing, 60),
	}

	agg := New(Options{}, noopLogger())
	if rows := agg.Aggregate(events); len(rows) != 0 {
		t.Fatalf("2 miles of exposure should be dropped, got %d rows", len(rows))
	}

	// A lower threshold keeps the same partition.
	agg = New(Options{MinExposureMiles: 1}, noopLogger())
	if rows := agg.Aggregate(events); len(rows) != 1 {
		t.Fatalf("expected 1 row with relaxed threshold, got %d", len(rows))
	}
}

func TestAggregateOrderInvariance(t *testing.T) {
	ts := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	var events []telemetry.Event
	for i := 0; i < 8; i++ {
		events = append(events, evt("D1001", ts, telemetry.EventPing, 60))
		events = append(events, evt("D2002", ts, telemetry.EventPing, 55))
	}
	events = append(events, evt("D2002", ts, telemetry.EventHardBraking, 55))

	reversed := make([]telemetry.Event, len(events))
	for i := range events {
		reversed[len(events)-1-i] = events[i]
	}

	agg := New(Options{}, noopLogger())
	rowsA := agg.Aggregate(events)
	rowsB := agg.Aggregate(reversed)

	if !reflect.DeepEqual(rowsA, rowsB) {
		t.Fatalf("row output depends on event order:\n%v\n%v", rowsA, rowsB)
	}
	if len(rowsA) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rowsA))
	}
	if rowsA[0].DriverID != "D1001" || rowsA[1].DriverID != "D2002" {
		t.Fatalf("rows should come out in sorted partition order: %s, %s", rowsA[0].DriverID, rowsA[1].DriverID)
	}
}

func TestAggregateHourGranularity(t *testing.T) {
	base := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	var events []telemetry.Event
	for i := 0; i < 6; i++ {
		events = append(events, evt("D1001", base.Add(time.Duration(i)*time.Minute), telemetry.EventPing, 60))
		events = append(events, evt("D1001", base.Add(time.Hour+time.Duration(i)*time.Minute), telemetry.EventPing, 60))
	}

	agg := New(Options{Granularity: GranularityHour}, noopLogger())
	rows := agg.Aggregate(events)
	if len(rows) != 2 {
		t.Fatalf("expected one row per hour, got %d", len(rows))
	}
	if rows[0].PeriodKey != "2026-03-15T10" || rows[1].PeriodKey != "2026-03-15T11" {
		t.Fatalf("unexpected hour keys: %s, %s", rows[0].PeriodKey, rows[1].PeriodKey)
	}
}

func TestAggregateCarAttributesFromEvents(t *testing.T) {
	ts := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	carType := "suv"
	carValue := 42000.0
	sportiness := 0.3

	var events []telemetry.Event
	for i := 0; i < 6; i++ {
		e := evt("D1001", ts, telemetry.EventPing, 60)
		e.CarType = &carType
		e.CarValue = &carValue
		e.CarSportiness = &sportiness
		events = append(events, e)
	}

	agg := New(Options{}, noopLogger())
	rows := agg.Aggregate(events)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].CarType != "suv" || rows[0].CarValue != 42000 {
		t.Fatalf("car attributes from events should be carried: %s %v", rows[0].CarType, rows[0].CarValue)
	}
	if rows[0].CarSportiness == nil || *rows[0].CarSportiness != 0.3 {
		t.Fatal("car sportiness from events should be carried")
	}
}

func TestAggregatePriorClaimsFromEvents(t *testing.T) {
	ts := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	claims := 0

	var events []telemetry.Event
	for i := 0; i < 10; i++ {
		e := evt("D1001", ts, telemetry.EventPing, 60)
		e.PriorClaims = &claims
		events = append(events, e)
	}
	// A clean record supplied on the events must win over the fallback,
	// even when the fallback would assign a nonzero tier.
	for i := 0; i < 30; i++ {
		e := evt("D1001", ts, telemetry.EventTailgating, 60)
		e.PriorClaims = &claims
		events = append(events, e)
	}

	agg := New(Options{}, noopLogger())
	rows := agg.Aggregate(events)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].PriorClaimCount != 0 {
		t.Fatalf("event-supplied claims count should be carried, got %d", rows[0].PriorClaimCount)
	}
}

type haltingCalc struct{}

func (c *haltingCalc) Name() string    { return "halting" }
func (c *haltingCalc) NewState() State { return &countState{} }

func (c *haltingCalc) Update(State, *telemetry.Event) { panic("bad event") }

func (c *haltingCalc) Finalize(State, *Shared) map[string]float64 { return nil }

func TestAggregateSurvivesCalculatorPanic(t *testing.T) {
	ts := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	var events []telemetry.Event
	for i := 0; i < 10; i++ {
		events = append(events, evt("D1001", ts, telemetry.EventPing, 60))
	}

	agg := New(Options{}, noopLogger())
	agg.calculators = append(agg.calculators, &haltingCalc{})

	rows := agg.Aggregate(events)
	if len(rows) != 1 {
		t.Fatalf("a failing calculator must not abort the pass, got %d rows", len(rows))
	}
	if rows[0].Miles != 10 {
		t.Fatalf("healthy calculators should still run, got %v miles", rows[0].Miles)
	}
}

func TestEnrichmentDeterministic(t *testing.T) {
	ts := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	var events []telemetry.Event
	for i := 0; i < 10; i++ {
		events = append(events, evt("D7777", ts, telemetry.EventPing, 60))
	}

	agg := New(Options{}, noopLogger())
	first := agg.Aggregate(events)
	second := agg.Aggregate(events)

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected 1 row per run, got %d and %d", len(first), len(second))
	}
	if first[0].CarValue != second[0].CarValue || first[0].CarType != second[0].CarType {
		t.Fatal("fallback car attributes must be stable across runs")
	}
	if first[0].PriorClaimCount != second[0].PriorClaimCount {
		t.Fatal("fallback claims must be stable across runs")
	}
	if first[0].CarValue <= 0 {
		t.Fatalf("fallback car value should be positive, got %v", first[0].CarValue)
	}
	if first[0].CarSportiness == nil || *first[0].CarSportiness < 0 || *first[0].CarSportiness > 1 {
		t.Fatal("fallback sportiness must land in [0, 1]")
	}
}

func TestFallbackClaimsBounded(t *testing.T) {
	for _, driverID := range []string{"D1001", "D2002", "D3003", "D44444", "D555555"} {
		row := Row{
			DriverID:        driverID,
			HardBraking:     90,
			Tailgating:      0.9,
			SpeedingMinutes: 80,
			LateNightMiles:  50,
		}
		claims := fallbackClaims(&row, driverHash(driverID))
		if claims < 0 || claims > 3 {
			t.Fatalf("claims tier out of range for %s: %d", driverID, claims)
		}
		if claims != 3 {
			t.Fatalf("an extreme composite should land in the top tier, got %d", claims)
		}
	}

	quiet := Row{DriverID: "D1001"}
	if claims := fallbackClaims(&quiet, driverHash("D1001")); claims != 0 {
		t.Fatalf("a zero composite should land in tier 0, got %d", claims)
	}
}

func TestPer100MiZeroExposure(t *testing.T) {
	if v := per100Mi(5, 0); v != 0 {
		t.Fatalf("zero exposure must rate-normalize to 0, got %v", v)
	}
	if v := per100Mi(3, 50); math.Abs(v-6) > 1e-9 {
		t.Fatalf("expected 6 per 100mi, got %v", v)
	}
}
