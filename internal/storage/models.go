package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PricedRowRecord is the persisted form of one priced driver-period row. The
// behavior adjustment breakdown is stored as raw JSON for auditability.
type PricedRowRecord struct {
	DriverID            string
	PeriodKey           string
	PeriodStart         string
	PeriodEnd           string
	Miles               float64
	RiskScore           float64
	ModelMultiplier     float64
	FinalMultiplier     float64
	FinalMonthlyPremium decimal.Decimal
	PriorClaimCount     int
	CarValue            float64
	Breakdown           json.RawMessage
	CreatedAt           time.Time
}

// RunRecord captures one pipeline execution for auditing.
type RunRecord struct {
	ID           int64
	Bucket       time.Time
	InputEvents  int
	ValidEvents  int
	InvalidCount int
	FeatureRows  int
	PricedRows   int
	Status       string
	Error        *string
	CreatedAt    time.Time
}

// PremiumStats summarize the stored premium distribution.
type PremiumStats struct {
	Rows        int64
	MeanPremium decimal.Decimal
	MinPremium  decimal.Decimal
	MaxPremium  decimal.Decimal
}
