package pricing

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ubi-pricer/internal/features"
	"ubi-pricer/internal/risk"
)

// Bounds hold the policy constants that cap how far pricing can diverge from
// the base premium, both as a multiplier and as absolute dollars.
type Bounds struct {
	BasePremium decimal.Decimal
	MinPremium  decimal.Decimal
	MaxPremium  decimal.Decimal
	MinFactor   float64
	MaxFactor   float64
}

// DefaultBounds returns the policy defaults.
func DefaultBounds() Bounds {
	return Bounds{
		BasePremium: decimal.NewFromInt(110),
		MinPremium:  decimal.NewFromInt(50),
		MaxPremium:  decimal.NewFromInt(400),
		MinFactor:   0.7,
		MaxFactor:   1.5,
	}
}

func (b Bounds) validate() error {
	if b.BasePremium.Sign() <= 0 {
		return fmt.Errorf("base premium must be positive")
	}
	if b.MinPremium.GreaterThan(b.MaxPremium) {
		return fmt.Errorf("min premium exceeds max premium")
	}
	if b.MinFactor <= 0 || b.MinFactor > b.MaxFactor {
		return fmt.Errorf("factor bounds invalid: [%v, %v]", b.MinFactor, b.MaxFactor)
	}
	return nil
}

// Block is the pricing breakdown attached to each priced row, with the bounds
// echoed so consumers can audit the clamps.
type Block struct {
	ModelMultiplier       float64         `json:"model_multiplier"`
	BehaviorAdjustmentSum float64         `json:"behavior_adjustment_sum"`
	UnboundedMultiplier   float64         `json:"unbounded_multiplier"`
	FinalMultiplier       float64         `json:"final_multiplier"`
	RawPremium            decimal.Decimal `json:"raw_premium"`
	FinalMonthlyPremium   decimal.Decimal `json:"final_monthly_premium"`
	BasePremium           decimal.Decimal `json:"base_premium"`
	MinPremium            decimal.Decimal `json:"min_premium"`
	MaxPremium            decimal.Decimal `json:"max_premium"`
	MinFactor             float64         `json:"min_factor"`
	MaxFactor             float64         `json:"max_factor"`
}

// PricedRow is a feature row plus its full pricing breakdown. Created once per
// pricing call and never mutated afterward.
type PricedRow struct {
	features.Row
	RiskScore              float64      `json:"risk_score"`
	ModelPremiumMultiplier float64      `json:"model_premium_multiplier"`
	BehaviorAdjustments    []Adjustment `json:"behavior_adjustments"`
	Pricing                Block        `json:"pricing"`
}

// Engine layers tiered business adjustments on top of the model multiplier
// and produces bounded monthly premiums. The model handle is injected; the
// engine never loads artifacts itself.
type Engine struct {
	model  risk.Model
	bounds Bounds
	logger zerolog.Logger
}

// NewEngine constructs a pricing engine. A nil model is allowed as long as
// every priced row arrives with model outputs already attached.
func NewEngine(model risk.Model, bounds Bounds, logger zerolog.Logger) (*Engine, error) {
	if err := bounds.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		model:  model,
		bounds: bounds,
		logger: logger.With().Str("component", "pricing").Logger(),
	}, nil
}

// Price computes a PricedRow for every input row. Rows that already carry
// risk_score and model_premium_multiplier are repriced without invoking the
// model; if any row lacks them and no model is available the whole call fails.
func (e *Engine) Price(ctx context.Context, rows []features.Row) ([]PricedRow, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	needModel := false
	for i := range rows {
		if !rows[i].Scored() {
			needModel = true
			break
		}
	}

	var preds []risk.Prediction
	if needModel {
		if e.model == nil {
			return nil, risk.ErrModelUnavailable
		}
		var err error
		preds, err = e.model.Predict(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("model predict: %w", err)
		}
		if len(preds) != len(rows) {
			return nil, fmt.Errorf("model returned %d predictions for %d rows", len(preds), len(rows))
		}
	}

	priced := make([]PricedRow, 0, len(rows))
	for i := range rows {
		row := rows[i]

		var score, multiplier float64
		if row.Scored() {
			score = *row.RiskScore
			multiplier = *row.ModelPremiumMultiplier
		} else {
			score = preds[i].RiskScore
			multiplier = preds[i].PremiumMultiplier
		}

		priced = append(priced, e.priceRow(row, score, multiplier))
	}

	e.logger.Debug().Int("rows", len(priced)).Bool("model_invoked", needModel).Msg("batch priced")
	return priced, nil
}

func (e *Engine) priceRow(row features.Row, score, modelMultiplier float64) PricedRow {
	adjustments := behaviorAdjustments(&row)

	behaviorSum := 0.0
	for _, adj := range adjustments {
		behaviorSum += adj.Adj
	}

	// Behavior rules perturb the model estimate proportionally, so they scale
	// consistently across risk tiers.
	combined := modelMultiplier * (1 + behaviorSum)
	final := clampFloat(combined, e.bounds.MinFactor, e.bounds.MaxFactor)

	raw := e.bounds.BasePremium.Mul(decimal.NewFromFloat(final)).Round(2)
	finalPremium := clampDecimal(raw, e.bounds.MinPremium, e.bounds.MaxPremium)

	return PricedRow{
		Row:                    row,
		RiskScore:              score,
		ModelPremiumMultiplier: modelMultiplier,
		BehaviorAdjustments:    adjustments,
		Pricing: Block{
			ModelMultiplier:       modelMultiplier,
			BehaviorAdjustmentSum: round6(behaviorSum),
			UnboundedMultiplier:   round6(combined),
			FinalMultiplier:       round6(final),
			RawPremium:            raw,
			FinalMonthlyPremium:   finalPremium,
			BasePremium:           e.bounds.BasePremium,
			MinPremium:            e.bounds.MinPremium,
			MaxPremium:            e.bounds.MaxPremium,
			MinFactor:             e.bounds.MinFactor,
			MaxFactor:             e.bounds.MaxFactor,
		},
	}
}

// Clamping is normal, expected behavior at both stages, never an error.
func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clampDecimal(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }
