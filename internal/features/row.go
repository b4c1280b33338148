package features

// Feature column names shared with the risk model. The aggregator emits every
// one of them on each row; the model imputes any that are missing from
// externally supplied rows.
const (
	ColHardBraking     = "hard_braking_events_per_100mi"
	ColAggressiveTurns = "aggressive_turning_events_per_100mi"
	ColTailgating      = "tailgating_time_ratio"
	ColSpeedingMinutes = "speeding_minutes_per_100mi"
	ColLateNightMiles  = "late_night_miles_per_100mi"
	ColMiles           = "miles"
	ColPriorClaims     = "prior_claim_count"
)

// Columns is the fixed ordered feature column list consumed by the model.
var Columns = []string{
	ColHardBraking,
	ColAggressiveTurns,
	ColTailgating,
	ColSpeedingMinutes,
	ColLateNightMiles,
	ColMiles,
	ColPriorClaims,
}

// Row is one aggregated per-driver-per-period observation, the model's unit
// of input. Built once per aggregation pass; downstream stages only attach
// enrichment fields, never rewrite the aggregates.
type Row struct {
	DriverID       string `json:"driver_id"`
	PeriodKey      string `json:"period_key"`
	PeriodStart    string `json:"period_start"`
	PeriodEnd      string `json:"period_end"`
	FeatureVersion int    `json:"feature_version"`

	Miles           float64 `json:"miles"`
	HardBraking     float64 `json:"hard_braking_events_per_100mi"`
	AggressiveTurns float64 `json:"aggressive_turning_events_per_100mi"`
	Tailgating      float64 `json:"tailgating_time_ratio"`
	SpeedingMinutes float64 `json:"speeding_minutes_per_100mi"`
	LateNightMiles  float64 `json:"late_night_miles_per_100mi"`
	PriorClaimCount int     `json:"prior_claim_count"`

	CarType       string   `json:"car_type,omitempty"`
	CarValue      float64  `json:"car_value,omitempty"`
	CarSportiness *float64 `json:"car_sportiness,omitempty"`

	// Model outputs, present only when a caller has already scored the row.
	RiskScore              *float64 `json:"risk_score,omitempty"`
	ModelPremiumMultiplier *float64 `json:"model_premium_multiplier,omitempty"`
}

// Feature returns the value of a named model column. The second return is
// false for columns this row cannot provide.
func (r *Row) Feature(col string) (float64, bool) {
	switch col {
	case ColHardBraking:
		return r.HardBraking, true
	case ColAggressiveTurns:
		return r.AggressiveTurns, true
	case ColTailgating:
		return r.Tailgating, true
	case ColSpeedingMinutes:
		return r.SpeedingMinutes, true
	case ColLateNightMiles:
		return r.LateNightMiles, true
	case ColMiles:
		return r.Miles, true
	case ColPriorClaims:
		return float64(r.PriorClaimCount), true
	}
	return 0, false
}

// Scored reports whether model outputs are already attached.
func (r *Row) Scored() bool {
	return r.RiskScore != nil && r.ModelPremiumMultiplier != nil
}
