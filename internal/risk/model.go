package risk

import (
	"context"
	"errors"

	"ubi-pricer/internal/features"
)

// ErrModelUnavailable indicates the pricing path needed model outputs but no
// usable model artifact could be loaded. Pricing without a real model signal
// would be misleading, so callers must treat this as fatal.
var ErrModelUnavailable = errors.New("risk: model artifact unavailable")

// Prediction is the model output for one feature row.
type Prediction struct {
	RiskScore         float64 `json:"risk_score"`
	PremiumMultiplier float64 `json:"premium_multiplier"`
}

// Model maps feature rows to risk scores and baseline-relative premium
// multipliers, one prediction per input row in the same order. Implementations
// are total functions with no side effects; a loaded model is read-only and
// safe to share.
type Model interface {
	Predict(ctx context.Context, rows []features.Row) ([]Prediction, error)
}

// Static returns the same prediction for every row. Used by tests and by the
// repricing path when exercising business rules in isolation.
type Static struct {
	Prediction Prediction
}

func (s *Static) Predict(ctx context.Context, rows []features.Row) ([]Prediction, error) {
	preds := make([]Prediction, len(rows))
	for i := range preds {
		preds[i] = s.Prediction
	}
	return preds, nil
}

var _ Model = (*Static)(nil)
