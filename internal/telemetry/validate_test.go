package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func baseRecord(overrides map[string]interface{}) json.RawMessage {
	record := map[string]interface{}{
		"event_id":      "0123456789abcdef0123456789abcdef",
		"driver_id":     "D1001",
		"trip_id":       "trip-000001",
		"ts":            "2026-03-15T10:30:00Z",
		"event_type":    "ping",
		"latitude":      37.77,
		"longitude":     -122.41,
		"speed_mph":     35.5,
		"heading_deg":   180,
		"period_minute": 42,
	}
	for k, v := range overrides {
		if v == nil {
			delete(record, k)
			continue
		}
		record[k] = v
	}
	raw, err := json.Marshal(record)
	if err != nil {
		panic(err)
	}
	return raw
}

func TestParseBatchShapes(t *testing.T) {
	single := baseRecord(nil)
	records, err := ParseBatch(single)
	if err != nil {
		t.Fatalf("single object should parse: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	batch := []byte(fmt.Sprintf("[%s,%s]", single, single))
	records, err = ParseBatch(batch)
	if err != nil {
		t.Fatalf("array should parse: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	if _, err := ParseBatch([]byte("not json")); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
	if _, err := ParseBatch([]byte(`"just a string"`)); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput for scalar, got %v", err)
	}
}

func TestValidateBatchAcceptsValid(t *testing.T) {
	summary, events := ValidateBatch([]json.RawMessage{baseRecord(nil)})
	if summary.ValidCount != 1 || summary.InvalidCount != 0 {
		t.Fatalf("expected 1 valid 0 invalid, got %d/%d", summary.ValidCount, summary.InvalidCount)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Timestamp.IsZero() {
		t.Fatal("timestamp should be populated during validation")
	}
}

func TestValidateBatchLowercasesEventID(t *testing.T) {
	rec := baseRecord(map[string]interface{}{"event_id": "0123456789ABCDEF0123456789ABCDEF"})
	summary, events := ValidateBatch([]json.RawMessage{rec})
	if summary.ValidCount != 1 {
		t.Fatalf("uppercase hex should be accepted: %+v", summary.Errors)
	}
	if events[0].EventID != strings.ToLower("0123456789ABCDEF0123456789ABCDEF") {
		t.Fatalf("event_id should be lowercased, got %s", events[0].EventID)
	}
}

func TestValidateBatchMissingRequiredField(t *testing.T) {
	rec := baseRecord(map[string]interface{}{"trip_id": nil})
	summary, _ := ValidateBatch([]json.RawMessage{rec})
	if summary.InvalidCount != 1 {
		t.Fatal("record without trip_id should be rejected")
	}
	if got := summary.Errors[0].Errors[0].Field; got != "trip_id" {
		t.Fatalf("expected trip_id error, got %s", got)
	}
}

func TestValidateBatchRangeViolations(t *testing.T) {
	cases := []struct {
		field string
		value interface{}
	}{
		{"speed_mph", 250.0},
		{"heading_deg", 360},
		{"period_minute", 100001},
		{"driver_id", "X1001"},
		{"event_id", "short"},
		{"trip_id", "abc"},
		{"event_type", "teleport"},
		{"ts", "2026-03-15T10:30:00"},
	}

	for _, tc := range cases {
		rec := baseRecord(map[string]interface{}{tc.field: tc.value})
		summary, _ := ValidateBatch([]json.RawMessage{rec})
		if summary.InvalidCount != 1 {
			t.Fatalf("%s=%v should be rejected", tc.field, tc.value)
		}
		found := false
		for _, fe := range summary.Errors[0].Errors {
			if fe.Field == tc.field {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected an error on %s, got %+v", tc.field, summary.Errors[0].Errors)
		}
	}
}

func TestValidateBatchAttributeOwnership(t *testing.T) {
	// braking_g belongs to hard_braking only.
	rec := baseRecord(map[string]interface{}{
		"event_type": "speeding",
		"braking_g":  0.8,
	})
	summary, _ := ValidateBatch([]json.RawMessage{rec})
	if summary.InvalidCount != 1 {
		t.Fatal("speeding event carrying braking_g should be rejected")
	}

	// The same attribute on its owning type is fine.
	rec = baseRecord(map[string]interface{}{
		"event_type": "hard_braking",
		"braking_g":  0.8,
	})
	summary, _ = ValidateBatch([]json.RawMessage{rec})
	if summary.ValidCount != 1 {
		t.Fatalf("hard_braking with braking_g should pass: %+v", summary.Errors)
	}

	// Out-of-range attribute on the owning type still fails.
	rec = baseRecord(map[string]interface{}{
		"event_type": "hard_braking",
		"braking_g":  3.1,
	})
	summary, _ = ValidateBatch([]json.RawMessage{rec})
	if summary.InvalidCount != 1 {
		t.Fatal("braking_g above 2.5 should be rejected")
	}
}

func TestValidateBatchNeverAborts(t *testing.T) {
	records := []json.RawMessage{
		baseRecord(nil),
		json.RawMessage(`{"event_id": 7}`),
		baseRecord(map[string]interface{}{"speed_mph": -1.0}),
		baseRecord(map[string]interface{}{"driver_id": "D2002"}),
	}

	summary, events := ValidateBatch(records)
	if summary.ValidCount != 2 || summary.InvalidCount != 2 {
		t.Fatalf("expected 2 valid and 2 invalid, got %d/%d", summary.ValidCount, summary.InvalidCount)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 surviving events, got %d", len(events))
	}
	if len(summary.SampleValid) != 2 {
		t.Fatalf("sample should hold the valid events, got %d", len(summary.SampleValid))
	}
	for _, re := range summary.Errors {
		if re.Index != 1 && re.Index != 2 {
			t.Fatalf("unexpected failing index %d", re.Index)
		}
	}
}

func TestParseTimestampRequiresUTCMarker(t *testing.T) {
	if _, err := ParseTimestamp("2026-03-15T10:30:00+02:00"); err == nil {
		t.Fatal("offset timestamps must be rejected")
	}
	if _, err := ParseTimestamp("2026-03-15T10:30:00Z"); err != nil {
		t.Fatalf("plain UTC timestamp should parse: %v", err)
	}
	if _, err := ParseTimestamp("2026-03-15T10:30:00.123456Z"); err != nil {
		t.Fatalf("fractional seconds should parse: %v", err)
	}
}
