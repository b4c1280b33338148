package pricing

import (
	"math"

	"ubi-pricer/internal/features"
)

// tierBound is one half-open interval [Lo, Hi) mapping to an additive
// percentage adjustment. Tables are scanned in order; the first match wins and
// no match yields 0. Boundaries and magnitudes are fixed policy constants;
// changing them changes quoted premiums.
type tierBound struct {
	Lo, Hi float64
	Adj    float64
}

var (
	hardBrakingTiers = []tierBound{
		{0, 2, -0.02},
		{2, 4, 0.0},
		{4, 6, 0.02},
		{6, math.Inf(1), 0.05},
	}
	tailgatingTiers = []tierBound{
		{0, 0.05, -0.01},
		{0.05, 0.15, 0.0},
		{0.15, 0.25, 0.02},
		{0.25, math.Inf(1), 0.04},
	}
	speedingTiers = []tierBound{
		{0, 3, -0.01},
		{3, 7, 0.0},
		{7, 12, 0.02},
		{12, math.Inf(1), 0.05},
	}
	lateNightTiers = []tierBound{
		{0, 1, 0.0},
		{1, 4, 0.01},
		{4, 8, 0.02},
		{8, math.Inf(1), 0.04},
	}
	// Car value is a claim severity proxy, applied only when a value is known.
	carValueTiers = []tierBound{
		{0, 20000, -0.02},
		{20000, 35000, 0.0},
		{35000, 60000, 0.03},
		{60000, 90000, 0.06},
		{90000, 130000, 0.09},
		{130000, math.Inf(1), 0.12},
	}
)

// Per-claim surcharge, capped so impact flattens past three claims.
const (
	claimAdjPerClaim = 0.12
	claimAdjCap      = 0.36
)

// Mileage band cutoffs for the exposure adjustment.
const (
	lowMileageCutoff  = 500.0
	highMileageCutoff = 1100.0
	lowMileageAdj     = -0.03
	highMileageAdj    = 0.03
)

func tierAdjust(value float64, bounds []tierBound) float64 {
	for _, b := range bounds {
		if value >= b.Lo && value < b.Hi {
			return b.Adj
		}
	}
	return 0.0
}

// Adjustment records one behavior rule outcome for transparency in the priced
// output.
type Adjustment struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	Adj    float64 `json:"adj"`
}

// behaviorAdjustments computes the ordered rule-layer adjustments for one
// feature row. Every tracked metric appears in the output, including ones
// whose adjustment is 0, so the breakdown is always complete.
func behaviorAdjustments(row *features.Row) []Adjustment {
	adjustments := []Adjustment{
		{Metric: features.ColHardBraking, Value: row.HardBraking, Adj: tierAdjust(row.HardBraking, hardBrakingTiers)},
		// Turning stays implicit via the model; listed with adj 0 for transparency.
		{Metric: features.ColAggressiveTurns, Value: row.AggressiveTurns, Adj: 0.0},
		{Metric: features.ColTailgating, Value: row.Tailgating, Adj: tierAdjust(row.Tailgating, tailgatingTiers)},
		{Metric: features.ColSpeedingMinutes, Value: row.SpeedingMinutes, Adj: tierAdjust(row.SpeedingMinutes, speedingTiers)},
		{Metric: features.ColLateNightMiles, Value: row.LateNightMiles, Adj: tierAdjust(row.LateNightMiles, lateNightTiers)},
	}

	claims := float64(row.PriorClaimCount)
	adjustments = append(adjustments, Adjustment{
		Metric: features.ColPriorClaims,
		Value:  claims,
		Adj:    math.Min(claimAdjPerClaim*claims, claimAdjCap),
	})

	if row.CarValue > 0 {
		adjustments = append(adjustments, Adjustment{
			Metric: "car_value_raw",
			Value:  row.CarValue,
			Adj:    tierAdjust(row.CarValue, carValueTiers),
		})
	}

	milesAdj := 0.0
	switch {
	case row.Miles < lowMileageCutoff:
		milesAdj = lowMileageAdj
	case row.Miles > highMileageCutoff:
		milesAdj = highMileageAdj
	}
	adjustments = append(adjustments, Adjustment{Metric: features.ColMiles, Value: row.Miles, Adj: milesAdj})

	return adjustments
}
