package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"ubi-pricer/internal/features"
	"ubi-pricer/internal/pricing"
	"ubi-pricer/internal/telemetry"
)

// Pipeline runs the full scoring chain over one batch of raw telemetry
// records: validation, feature aggregation, then pricing. It holds no state
// between calls.
type Pipeline struct {
	aggregator *features.Aggregator
	engine     *pricing.Engine
	logger     zerolog.Logger
}

// NewPipeline wires the stages together.
func NewPipeline(aggregator *features.Aggregator, engine *pricing.Engine, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		aggregator: aggregator,
		engine:     engine,
		logger:     logger.With().Str("component", "pipeline").Logger(),
	}
}

// Result carries the output of every stage so callers can expose or persist
// whichever layers they need.
type Result struct {
	Validation telemetry.Summary
	Events     []telemetry.Event
	Rows       []features.Row
	Priced     []pricing.PricedRow
}

// Execute runs validation, aggregation, and pricing over the given records.
// Invalid records are reported in the validation summary, never fatal; only a
// pricing failure (typically a missing model) aborts the run.
func (p *Pipeline) Execute(ctx context.Context, records []json.RawMessage) (*Result, error) {
	summary, events := telemetry.ValidateBatch(records)

	p.logger.Info().
		Int("records", len(records)).
		Int("valid", summary.ValidCount).
		Int("invalid", summary.InvalidCount).
		Msg("batch validated")

	rows := p.aggregator.Aggregate(events)

	priced, err := p.engine.Price(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("price feature rows: %w", err)
	}

	p.logger.Info().
		Int("feature_rows", len(rows)).
		Int("priced_rows", len(priced)).
		Msg("batch priced")

	return &Result{
		Validation: summary,
		Events:     events,
		Rows:       rows,
		Priced:     priced,
	}, nil
}

// ExecuteBody parses a raw JSON body (single object or array) and runs the
// pipeline over it.
func (p *Pipeline) ExecuteBody(ctx context.Context, body []byte) (*Result, error) {
	records, err := telemetry.ParseBatch(body)
	if err != nil {
		return nil, err
	}
	return p.Execute(ctx, records)
}
