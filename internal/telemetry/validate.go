package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrMalformedInput indicates the batch body could not be parsed at all. It is
// the only fatal condition in the validator; everything else is per-record data.
var ErrMalformedInput = errors.New("telemetry: malformed batch input")

var (
	eventIDPattern  = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
	driverIDPattern = regexp.MustCompile(`^D\d{4,}$`)
)

const sampleValidLimit = 5

// FieldError describes one constraint violation on one field of a record.
type FieldError struct {
	Field      string      `json:"field"`
	Constraint string      `json:"constraint"`
	Value      interface{} `json:"value,omitempty"`
}

// RecordErrors collects the violations of a single input record, keyed by its
// position in the batch.
type RecordErrors struct {
	Index   int          `json:"index"`
	Errors  []FieldError `json:"errors"`
	EventID string       `json:"event_id,omitempty"`
}

// Summary reports a batch validation outcome.
type Summary struct {
	ValidCount   int            `json:"valid_count"`
	InvalidCount int            `json:"invalid_count"`
	Errors       []RecordErrors `json:"errors"`
	SampleValid  []Event        `json:"sample_valid"`
}

// ParseBatch decodes a request body holding either a single event object or an
// array of them. Unparseable JSON or a wrong top-level shape is fatal.
func ParseBatch(body []byte) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedInput)
	}

	if strings.HasPrefix(trimmed, "{") {
		var obj json.RawMessage
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		return []json.RawMessage{obj}, nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	for i, raw := range list {
		if !strings.HasPrefix(strings.TrimSpace(string(raw)), "{") {
			return nil, fmt.Errorf("%w: element %d is not an object", ErrMalformedInput, i)
		}
	}
	return list, nil
}

// ValidateBatch checks every record against the event schema. Failing records
// never abort the batch; their violations are returned as data in the summary.
// Valid events are returned normalized (lowercased event_id, parsed timestamp).
func ValidateBatch(records []json.RawMessage) (Summary, []Event) {
	valid := make([]Event, 0, len(records))
	var recordErrs []RecordErrors

	for idx, raw := range records {
		evt, fieldErrs := validateRecord(raw)
		if len(fieldErrs) > 0 {
			re := RecordErrors{Index: idx, Errors: fieldErrs}
			if evt != nil {
				re.EventID = evt.EventID
			}
			recordErrs = append(recordErrs, re)
			continue
		}
		valid = append(valid, *evt)
	}

	summary := Summary{
		ValidCount:   len(valid),
		InvalidCount: len(recordErrs),
		Errors:       recordErrs,
	}
	if len(valid) > 0 {
		n := len(valid)
		if n > sampleValidLimit {
			n = sampleValidLimit
		}
		summary.SampleValid = valid[:n]
	}
	return summary, valid
}

var requiredFields = []string{
	"event_id", "driver_id", "trip_id", "ts", "event_type",
	"latitude", "longitude", "speed_mph", "heading_deg", "period_minute",
}

func validateRecord(raw json.RawMessage) (*Event, []FieldError) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, []FieldError{{Field: "_record", Constraint: "not a JSON object"}}
	}

	var errs []FieldError
	for _, name := range requiredFields {
		if _, ok := fields[name]; !ok {
			errs = append(errs, FieldError{Field: name, Constraint: "required field missing"})
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, []FieldError{{Field: typeErr.Field, Constraint: "wrong type: " + typeErr.Value}}
		}
		return nil, []FieldError{{Field: "_record", Constraint: "undecodable record"}}
	}

	errs = append(errs, schemaErrors(&evt)...)
	errs = append(errs, crossFieldErrors(&evt)...)
	if len(errs) > 0 {
		return &evt, errs
	}

	evt.EventID = strings.ToLower(evt.EventID)
	return &evt, nil
}

func schemaErrors(evt *Event) []FieldError {
	var errs []FieldError
	add := func(field, constraint string, value interface{}) {
		errs = append(errs, FieldError{Field: field, Constraint: constraint, Value: value})
	}

	if !eventIDPattern.MatchString(evt.EventID) {
		add("event_id", "must be 32 hex chars", evt.EventID)
	}
	if !driverIDPattern.MatchString(evt.DriverID) {
		add("driver_id", "must match D followed by at least 4 digits", evt.DriverID)
	}
	if len(evt.TripID) < 5 {
		add("trip_id", "must be at least 5 characters", evt.TripID)
	}
	if !evt.EventType.Known() {
		add("event_type", "unsupported event type", string(evt.EventType))
	}
	if ts, err := ParseTimestamp(evt.TS); err != nil {
		add("ts", "must be ISO8601 UTC ending with 'Z'", evt.TS)
	} else {
		evt.Timestamp = ts
	}
	if evt.SpeedMPH < 0 || evt.SpeedMPH > 200 {
		add("speed_mph", "must be within [0, 200]", evt.SpeedMPH)
	}
	if evt.HeadingDeg < 0 || evt.HeadingDeg > 359 {
		add("heading_deg", "must be within [0, 359]", evt.HeadingDeg)
	}
	if evt.PeriodMinute < 0 || evt.PeriodMinute > 100000 {
		add("period_minute", "must be within [0, 100000]", evt.PeriodMinute)
	}

	if evt.BrakingG != nil && (*evt.BrakingG < 0 || *evt.BrakingG > 2.5) {
		add("braking_g", "must be within [0, 2.5]", *evt.BrakingG)
	}
	if evt.LateralG != nil && (*evt.LateralG < 0 || *evt.LateralG > 3.0) {
		add("lateral_g", "must be within [0, 3.0]", *evt.LateralG)
	}
	if evt.TurnDirection != nil && *evt.TurnDirection != "left" && *evt.TurnDirection != "right" {
		add("turn_direction", "must be left or right", *evt.TurnDirection)
	}
	if evt.PostedSpeedMPH != nil && (*evt.PostedSpeedMPH < 0 || *evt.PostedSpeedMPH > 120) {
		add("posted_speed_mph", "must be within [0, 120]", *evt.PostedSpeedMPH)
	}
	if evt.OverSpeedMPH != nil && (*evt.OverSpeedMPH < 0 || *evt.OverSpeedMPH > 100) {
		add("over_speed_mph", "must be within [0, 100]", *evt.OverSpeedMPH)
	}
	if evt.DurationSec != nil && (*evt.DurationSec < 0 || *evt.DurationSec > 7200) {
		add("duration_sec", "must be within [0, 7200]", *evt.DurationSec)
	}
	if evt.FollowingDistanceM != nil && (*evt.FollowingDistanceM < 0 || *evt.FollowingDistanceM > 200) {
		add("following_distance_m", "must be within [0, 200]", *evt.FollowingDistanceM)
	}
	if evt.SpeedContextMPH != nil && (*evt.SpeedContextMPH < 0 || *evt.SpeedContextMPH > 200) {
		add("speed_context_mph", "must be within [0, 200]", *evt.SpeedContextMPH)
	}
	if evt.LocalHour != nil && (*evt.LocalHour < 0 || *evt.LocalHour > 23) {
		add("local_hour", "must be within [0, 23]", *evt.LocalHour)
	}

	return errs
}

// crossFieldErrors enforces that a type-specific attribute appears only when
// event_type matches its owning type.
func crossFieldErrors(evt *Event) []FieldError {
	var errs []FieldError
	check := func(present bool, field string, owner EventType) {
		if present && evt.EventType != owner {
			errs = append(errs, FieldError{
				Field:      field,
				Constraint: fmt.Sprintf("only allowed when event_type is %s", owner),
				Value:      string(evt.EventType),
			})
		}
	}

	check(evt.BrakingG != nil, "braking_g", EventHardBraking)
	check(evt.LateralG != nil, "lateral_g", EventAggressiveTurn)
	check(evt.OverSpeedMPH != nil, "over_speed_mph", EventSpeeding)
	check(evt.FollowingDistanceM != nil, "following_distance_m", EventTailgating)
	check(evt.LocalHour != nil, "local_hour", EventLateNight)
	return errs
}

// ParseTimestamp parses an ISO-8601 timestamp that must carry an explicit
// trailing UTC marker.
func ParseTimestamp(ts string) (time.Time, error) {
	if !strings.HasSuffix(ts, "Z") {
		return time.Time{}, fmt.Errorf("timestamp %q lacks UTC marker", ts)
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q is not ISO8601", ts)
}
