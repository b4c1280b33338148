package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"ubi-pricer/internal/mockgen"
	"ubi-pricer/internal/pricing"
	"ubi-pricer/internal/scheduler"
	"ubi-pricer/internal/storage"
	"ubi-pricer/internal/telemetry"
)

// Options configure the ingestion service.
type Options struct {
	SpoolDir   string
	ArchiveDir string

	// When the spool is empty and Generator is set, each cycle prices a
	// synthetic batch instead of skipping. Used for demo deployments.
	Generator      *mockgen.Generator
	GeneratorBatch int

	AdvisoryLockKey int64
}

// Service drains spooled telemetry batches on a schedule, runs them through
// the pricing pipeline, and persists the results.
type Service struct {
	opts      Options
	scheduler *scheduler.Scheduler
	pipeline  *Pipeline
	rows      storage.PricedRowStore
	runs      storage.RunStore
	locker    storage.AdvisoryLocker
	logger    zerolog.Logger
}

// New constructs the ingestion service. Stores may be nil, in which case
// results are computed and logged but not persisted.
func New(opts Options, sched *scheduler.Scheduler, pipeline *Pipeline, rows storage.PricedRowStore, runs storage.RunStore, logger zerolog.Logger) *Service {
	if opts.GeneratorBatch <= 0 {
		opts.GeneratorBatch = 2000
	}

	var locker storage.AdvisoryLocker
	if l, ok := rows.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		opts:      opts,
		scheduler: sched,
		pipeline:  pipeline,
		rows:      rows,
		runs:      runs,
		locker:    locker,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the scheduled ingestion loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessCycle)
}

// ProcessCycle executes a single ingestion cycle under the advisory lock.
func (s *Service) ProcessCycle(ctx context.Context, cycle time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("cycle", cycle).Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeCycle(ctx, cycle)
}

func (s *Service) executeCycle(ctx context.Context, cycle time.Time) error {
	records, files, err := s.collectBatch(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		s.logger.Debug().Time("cycle", cycle).Msg("nothing to process")
		return nil
	}

	result, err := s.pipeline.Execute(ctx, records)
	if err != nil {
		s.recordRun(ctx, cycle, len(records), nil, err)
		return err
	}

	if s.rows != nil && len(result.Priced) > 0 {
		persisted, convErr := ToRecords(result.Priced)
		if convErr != nil {
			s.logger.Error().Err(convErr).Msg("failed to encode priced rows")
		} else if err := s.rows.UpsertPricedRows(ctx, persisted); err != nil {
			s.logger.Error().Err(err).Time("cycle", cycle).Msg("failed to upsert priced rows")
		}
	}

	s.recordRun(ctx, cycle, len(records), result, nil)
	s.retireFiles(files)

	s.logger.Info().
		Time("cycle", cycle).
		Int("input_events", len(records)).
		Int("invalid", result.Validation.InvalidCount).
		Int("priced_rows", len(result.Priced)).
		Msg("cycle complete")

	return nil
}

// collectBatch drains spool files when present, otherwise falls back to the
// synthetic generator.
func (s *Service) collectBatch(ctx context.Context) ([]json.RawMessage, []string, error) {
	records, files, err := s.drainSpool()
	if err != nil {
		return nil, nil, err
	}
	if len(records) > 0 {
		return records, files, nil
	}

	if s.opts.Generator == nil {
		return nil, nil, nil
	}

	events := s.opts.Generator.Generate(s.opts.GeneratorBatch)
	out := make([]json.RawMessage, 0, len(events))
	for i := range events {
		raw, err := json.Marshal(&events[i])
		if err != nil {
			return nil, nil, fmt.Errorf("encode synthetic event: %w", err)
		}
		out = append(out, raw)
	}
	return out, nil, nil
}

func (s *Service) drainSpool() ([]json.RawMessage, []string, error) {
	if s.opts.SpoolDir == "" {
		return nil, nil, nil
	}

	entries, err := os.ReadDir(s.opts.SpoolDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read spool dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var records []json.RawMessage
	var files []string
	for _, name := range names {
		path := filepath.Join(s.opts.SpoolDir, name)
		body, err := os.ReadFile(path)
		if err != nil {
			s.logger.Error().Err(err).Str("file", name).Msg("failed to read spool file")
			continue
		}
		parsed, err := telemetry.ParseBatch(body)
		if err != nil {
			s.logger.Error().Err(err).Str("file", name).Msg("spool file is not a telemetry batch, skipping")
			continue
		}
		records = append(records, parsed...)
		files = append(files, path)
	}

	return records, files, nil
}

// retireFiles moves processed spool files into the archive, or deletes them
// when no archive is configured.
func (s *Service) retireFiles(files []string) {
	for _, path := range files {
		if s.opts.ArchiveDir != "" {
			if err := os.MkdirAll(s.opts.ArchiveDir, 0o755); err == nil {
				dest := filepath.Join(s.opts.ArchiveDir, filepath.Base(path))
				if err := os.Rename(path, dest); err == nil {
					continue
				}
			}
		}
		if err := os.Remove(path); err != nil {
			s.logger.Error().Err(err).Str("file", path).Msg("failed to retire spool file")
		}
	}
}

func (s *Service) recordRun(ctx context.Context, cycle time.Time, inputEvents int, result *Result, runErr error) {
	if s.runs == nil {
		return
	}

	run := storage.RunRecord{
		Bucket:      cycle,
		InputEvents: inputEvents,
		Status:      "complete",
	}
	if result != nil {
		run.ValidEvents = result.Validation.ValidCount
		run.InvalidCount = result.Validation.InvalidCount
		run.FeatureRows = len(result.Rows)
		run.PricedRows = len(result.Priced)
	}
	if runErr != nil {
		run.Status = "failed"
		msg := runErr.Error()
		run.Error = &msg
	}

	if _, err := s.runs.InsertRun(ctx, run); err != nil {
		s.logger.Error().Err(err).Time("cycle", cycle).Msg("failed to persist run record")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.AdvisoryLockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.AdvisoryLockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// ToRecords converts priced rows into their persisted form, serializing the
// full adjustment breakdown for audit queries.
func ToRecords(priced []pricing.PricedRow) ([]storage.PricedRowRecord, error) {
	records := make([]storage.PricedRowRecord, 0, len(priced))
	for i := range priced {
		pr := &priced[i]

		breakdown, err := json.Marshal(struct {
			BehaviorAdjustments []pricing.Adjustment `json:"behavior_adjustments"`
			Pricing             pricing.Block        `json:"pricing"`
		}{pr.BehaviorAdjustments, pr.Pricing})
		if err != nil {
			return nil, fmt.Errorf("encode breakdown for %s/%s: %w", pr.DriverID, pr.PeriodKey, err)
		}

		records = append(records, storage.PricedRowRecord{
			DriverID:            pr.DriverID,
			PeriodKey:           pr.PeriodKey,
			PeriodStart:         pr.PeriodStart,
			PeriodEnd:           pr.PeriodEnd,
			Miles:               pr.Miles,
			RiskScore:           pr.RiskScore,
			ModelMultiplier:     pr.ModelPremiumMultiplier,
			FinalMultiplier:     pr.Pricing.FinalMultiplier,
			FinalMonthlyPremium: pr.Pricing.FinalMonthlyPremium,
			PriorClaimCount:     pr.PriorClaimCount,
			CarValue:            pr.CarValue,
			Breakdown:           breakdown,
		})
	}
	return records, nil
}
