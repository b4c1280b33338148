package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"ubi-pricer/internal/features"
)

const artifactFileName = "risk_model.json"

// Artifact is the serving-side model representation persisted at training
// time: a standardized linear scorer squashed through a logistic link, plus
// the imputation medians and the baseline established on the training set.
// The training machinery itself lives outside this repository; the artifact
// is all the serving path ever reads.
type Artifact struct {
	FeatureColumns []string           `json:"feature_columns"`
	Medians        map[string]float64 `json:"medians"`
	Means          map[string]float64 `json:"means"`
	Stds           map[string]float64 `json:"stds"`
	Weights        map[string]float64 `json:"weights"`
	Intercept      float64            `json:"intercept"`
	BaselineRisk   float64            `json:"baseline_risk"`
	ScalingFactor  float64            `json:"scaling_factor"`
}

func (a *Artifact) validate() error {
	if len(a.FeatureColumns) == 0 {
		return fmt.Errorf("artifact lists no feature columns")
	}
	for _, col := range a.FeatureColumns {
		if std, ok := a.Stds[col]; ok && std <= 0 {
			return fmt.Errorf("artifact std for %s must be positive", col)
		}
	}
	if a.ScalingFactor == 0 {
		a.ScalingFactor = 0.25
	}
	return nil
}

// ArtifactModel scores rows with a loaded artifact. Construct it explicitly
// and pass it where needed; there is no process-wide cached instance.
type ArtifactModel struct {
	artifact Artifact
}

// Load reads a model artifact from dir. A missing artifact surfaces as
// ErrModelUnavailable.
func Load(dir string) (*ArtifactModel, error) {
	path := filepath.Join(dir, artifactFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrModelUnavailable, path)
		}
		return nil, fmt.Errorf("read model artifact: %w", err)
	}

	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("parse model artifact: %w", err)
	}
	if err := artifact.validate(); err != nil {
		return nil, fmt.Errorf("invalid model artifact: %w", err)
	}
	return &ArtifactModel{artifact: artifact}, nil
}

// Baseline returns the training-set mean risk persisted with the artifact.
func (m *ArtifactModel) Baseline() float64 {
	return m.artifact.BaselineRisk
}

// Predict scores each row. Missing feature columns are imputed with the
// training medians rather than causing failure.
func (m *ArtifactModel) Predict(ctx context.Context, rows []features.Row) ([]Prediction, error) {
	preds := make([]Prediction, len(rows))
	for i := range rows {
		score := m.score(&rows[i])
		preds[i] = Prediction{
			RiskScore:         score,
			PremiumMultiplier: 1 + (score-m.artifact.BaselineRisk)*m.artifact.ScalingFactor,
		}
	}
	return preds, nil
}

func (m *ArtifactModel) score(row *features.Row) float64 {
	z := m.artifact.Intercept
	for _, col := range m.artifact.FeatureColumns {
		value, ok := row.Feature(col)
		if !ok {
			value = m.artifact.Medians[col]
		}
		mean := m.artifact.Means[col]
		std := m.artifact.Stds[col]
		if std <= 0 {
			std = 1
		}
		z += m.artifact.Weights[col] * ((value - mean) / std)
	}

	score := 1.0 / (1.0 + math.Exp(-z))
	return math.Min(0.99, math.Max(0.01, score))
}

var _ Model = (*ArtifactModel)(nil)

// WriteDefault persists a baseline artifact so a fresh checkout can run the
// pipeline end to end before any real training job has produced one.
func WriteDefault(dir string) (string, error) {
	artifact := defaultArtifact()
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, artifactFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func defaultArtifact() Artifact {
	return Artifact{
		FeatureColumns: features.Columns,
		Medians: map[string]float64{
			features.ColHardBraking:     2.2,
			features.ColAggressiveTurns: 1.4,
			features.ColTailgating:      0.08,
			features.ColSpeedingMinutes: 4.0,
			features.ColLateNightMiles:  2.0,
			features.ColMiles:           850,
			features.ColPriorClaims:     0,
		},
		Means: map[string]float64{
			features.ColHardBraking:     2.6,
			features.ColAggressiveTurns: 1.8,
			features.ColTailgating:      0.10,
			features.ColSpeedingMinutes: 4.9,
			features.ColLateNightMiles:  2.4,
			features.ColMiles:           850,
			features.ColPriorClaims:     0.5,
		},
		Stds: map[string]float64{
			features.ColHardBraking:     2.1,
			features.ColAggressiveTurns: 1.6,
			features.ColTailgating:      0.07,
			features.ColSpeedingMinutes: 3.8,
			features.ColLateNightMiles:  2.2,
			features.ColMiles:           220,
			features.ColPriorClaims:     0.9,
		},
		Weights: map[string]float64{
			features.ColHardBraking:     0.34,
			features.ColAggressiveTurns: 0.18,
			features.ColTailgating:      0.52,
			features.ColSpeedingMinutes: 0.29,
			features.ColLateNightMiles:  0.14,
			features.ColMiles:           -0.06,
			features.ColPriorClaims:     0.24,
		},
		Intercept:     -0.35,
		BaselineRisk:  0.42,
		ScalingFactor: 0.25,
	}
}
