package telemetry

import (
	"time"
)

// EventType labels the kind of driving moment an event records.
type EventType string

const (
	EventHardBraking    EventType = "hard_braking"
	EventAggressiveTurn EventType = "aggressive_turn"
	EventSpeeding       EventType = "speeding"
	EventTailgating     EventType = "tailgating"
	EventLateNight      EventType = "late_night_driving"
	EventPing           EventType = "ping"
)

// EventTypes lists every supported event type.
var EventTypes = []EventType{
	EventHardBraking,
	EventAggressiveTurn,
	EventSpeeding,
	EventTailgating,
	EventLateNight,
	EventPing,
}

// Known reports whether t is a supported event type.
func (t EventType) Known() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Event is one observed driving moment. Optional attributes are pointers so
// absence survives a JSON round trip; each one is only legal for its owning
// event type.
type Event struct {
	EventID      string    `json:"event_id"`
	DriverID     string    `json:"driver_id"`
	TripID       string    `json:"trip_id"`
	TS           string    `json:"ts"`
	EventType    EventType `json:"event_type"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	SpeedMPH     float64   `json:"speed_mph"`
	HeadingDeg   int       `json:"heading_deg"`
	PeriodMinute int       `json:"period_minute"`

	// hard_braking
	BrakingG      *float64 `json:"braking_g,omitempty"`
	ABSActivation *bool    `json:"abs_activation,omitempty"`
	// aggressive_turn
	LateralG      *float64 `json:"lateral_g,omitempty"`
	TurnDirection *string  `json:"turn_direction,omitempty"`
	// speeding
	PostedSpeedMPH *int     `json:"posted_speed_mph,omitempty"`
	OverSpeedMPH   *float64 `json:"over_speed_mph,omitempty"`
	DurationSec    *int     `json:"duration_sec,omitempty"`
	// tailgating
	FollowingDistanceM *float64 `json:"following_distance_m,omitempty"`
	SpeedContextMPH    *int     `json:"speed_context_mph,omitempty"`
	// late_night_driving
	LocalHour *int `json:"local_hour,omitempty"`

	// Static driver and car attributes attached by upstream ingestion. Optional.
	CarType       *string  `json:"car_type,omitempty"`
	CarValue      *float64 `json:"car_value,omitempty"`
	CarSportiness *float64 `json:"car_sportiness,omitempty"`
	PriorClaims   *int     `json:"prior_claims,omitempty"`

	// Timestamp is the parsed TS, populated during validation.
	Timestamp time.Time `json:"-"`
}
