package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"ubi-pricer/internal/features"
	"ubi-pricer/internal/pricing"
	"ubi-pricer/internal/risk"
	"ubi-pricer/internal/service"
	"ubi-pricer/internal/telemetry"
)

// Pipeline runs the full chain once over a telemetry batch, either read from
// a file or freshly generated, and prints a snapshot of the result.
func (a *App) Pipeline(ctx context.Context, opts PipelineOptions) error {
	var records []json.RawMessage
	var err error

	if opts.InputPath != "" {
		records, err = readEventRecords(opts.InputPath)
		if err != nil {
			return err
		}
	} else {
		count := opts.Generate.Count
		if count <= 0 {
			count = 5000
		}
		gen := a.newGenerator(opts.Generate)
		events := gen.Generate(count)
		records = make([]json.RawMessage, 0, len(events))
		for i := range events {
			raw, err := json.Marshal(&events[i])
			if err != nil {
				return fmt.Errorf("encode synthetic event: %w", err)
			}
			records = append(records, raw)
		}
		a.Logger.Info().Int("events", len(records)).Msg("generated synthetic batch")
	}

	pipeline, err := a.newPipeline()
	if err != nil {
		return err
	}

	result, err := pipeline.Execute(ctx, records)
	if err != nil {
		return err
	}

	if opts.FeaturesPath != "" {
		if err := writeJSONLines(opts.FeaturesPath, result.Rows); err != nil {
			return fmt.Errorf("write feature rows: %w", err)
		}
	}
	if opts.PricedPath != "" {
		if err := writeJSONLines(opts.PricedPath, result.Priced); err != nil {
			return fmt.Errorf("write priced rows: %w", err)
		}
	}

	if opts.Persist {
		if err := a.persistPriced(ctx, result.Priced); err != nil {
			return err
		}
	}

	return printJSON(struct {
		Validation telemetry.Summary `json:"validation"`
		Snapshot   pricing.Snapshot  `json:"snapshot"`
	}{result.Validation, pricing.Summarize(result.Priced)})
}

// Validate checks a telemetry batch file and prints the validation summary.
func (a *App) Validate(ctx context.Context, inputPath string) error {
	records, err := readEventRecords(inputPath)
	if err != nil {
		return err
	}

	summary, _ := telemetry.ValidateBatch(records)
	return printJSON(summary)
}

// Price prices a file of aggregated feature rows and prints the results.
// Rows already carrying model outputs are repriced without the model.
func (a *App) Price(ctx context.Context, inputPath, outPath string) error {
	rows, err := readFeatureRows(inputPath)
	if err != nil {
		return err
	}

	engine, err := a.newEngine()
	if err != nil {
		return err
	}

	priced, err := engine.Price(ctx, rows)
	if err != nil {
		return err
	}

	if outPath != "" {
		if err := writeJSONLines(outPath, priced); err != nil {
			return err
		}
		a.Logger.Info().Int("rows", len(priced)).Str("path", outPath).Msg("priced rows written")
		return nil
	}
	return printJSON(priced)
}

// Generate emits a synthetic telemetry batch as a JSON array.
func (a *App) Generate(ctx context.Context, opts GenerateOptions) error {
	count := opts.Count
	if count <= 0 {
		count = 5000
	}

	gen := a.newGenerator(opts)
	events := gen.Generate(count)

	body, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return err
	}

	if opts.OutPath == "" {
		_, err = os.Stdout.Write(append(body, '\n'))
		return err
	}
	if err := os.WriteFile(opts.OutPath, body, 0o644); err != nil {
		return err
	}
	a.Logger.Info().Int("events", len(events)).Str("path", opts.OutPath).Msg("synthetic batch written")
	return nil
}

// Report prints a premium snapshot, either over a priced-rows file or over
// the stored distribution.
func (a *App) Report(ctx context.Context, opts ReportOptions) error {
	if opts.InputPath != "" {
		priced, err := readPricedRows(opts.InputPath)
		if err != nil {
			return err
		}
		return printJSON(pricing.Summarize(priced))
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; provide an input file or set database.dsn")
	}
	if closeStore != nil {
		defer closeStore()
	}

	stats, err := store.PremiumStats(ctx)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

// ModelInit writes a default risk model artifact into the configured
// artifacts directory.
func (a *App) ModelInit(ctx context.Context) error {
	path, err := risk.WriteDefault(a.Config.Model.ArtifactsDir)
	if err != nil {
		return err
	}
	a.Logger.Info().Str("path", path).Msg("risk model artifact written")
	return nil
}

func (a *App) persistPriced(ctx context.Context, priced []pricing.PricedRow) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot persist")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := service.ToRecords(priced)
	if err != nil {
		return err
	}
	if err := store.UpsertPricedRows(ctx, records); err != nil {
		return err
	}
	a.Logger.Info().Int("rows", len(records)).Msg("priced rows persisted")
	return nil
}

// readEventRecords loads a telemetry batch from a JSON array, a single JSON
// object, or JSON-lines.
func readEventRecords(path string) ([]json.RawMessage, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%s: empty input", path)
	}
	if trimmed[0] == '[' || !bytes.ContainsRune(trimmed, '\n') {
		return telemetry.ParseBatch(trimmed)
	}

	var records []json.RawMessage
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		records = append(records, json.RawMessage(append([]byte(nil), line...)))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func readFeatureRows(path string) ([]features.Row, error) {
	var rows []features.Row
	if err := readRowsFile(path, func(line []byte) error {
		var row features.Row
		if err := json.Unmarshal(line, &row); err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	}, func(body []byte) error {
		return json.Unmarshal(body, &rows)
	}); err != nil {
		return nil, err
	}
	return rows, nil
}

func readPricedRows(path string) ([]pricing.PricedRow, error) {
	var rows []pricing.PricedRow
	if err := readRowsFile(path, func(line []byte) error {
		var row pricing.PricedRow
		if err := json.Unmarshal(line, &row); err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	}, func(body []byte) error {
		return json.Unmarshal(body, &rows)
	}); err != nil {
		return nil, err
	}
	return rows, nil
}

// readRowsFile dispatches between a JSON array file and JSON-lines.
func readRowsFile(path string, perLine func([]byte) error, whole func([]byte) error) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return fmt.Errorf("%s: empty input", path)
	}
	if trimmed[0] == '[' {
		return whole(trimmed)
	}

	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := perLine(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func writeJSONLines(path string, v interface{}) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	enc := json.NewEncoder(writer)

	switch items := v.(type) {
	case []features.Row:
		for i := range items {
			if err := enc.Encode(&items[i]); err != nil {
				return err
			}
		}
	case []pricing.PricedRow:
		for i := range items {
			if err := enc.Encode(&items[i]); err != nil {
				return err
			}
		}
	default:
		if err := enc.Encode(v); err != nil {
			return err
		}
	}

	return writer.Flush()
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
