package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ubi-pricer/internal/features"
	"ubi-pricer/internal/mockgen"
	"ubi-pricer/internal/pricing"
	"ubi-pricer/internal/risk"
	"ubi-pricer/internal/storage"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	model := &risk.Static{Prediction: risk.Prediction{RiskScore: 0.5, PremiumMultiplier: 1.1}}
	engine, err := pricing.NewEngine(model, pricing.DefaultBounds(), noopLogger())
	if err != nil {
		t.Fatal(err)
	}
	return NewPipeline(features.New(features.Options{}, noopLogger()), engine, noopLogger())
}

func batchJSON(driverID string, n int) []byte {
	records := make([]json.RawMessage, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, json.RawMessage(fmt.Sprintf(`{
			"event_id": "0123456789abcdef0123456789abcdef",
			"driver_id": %q,
			"trip_id": "trip-00001",
			"ts": "2026-03-15T10:30:00Z",
			"event_type": "ping",
			"latitude": 37.77,
			"longitude": -122.41,
			"speed_mph": 60,
			"heading_deg": 90,
			"period_minute": %d
		}`, driverID, i)))
	}
	body, _ := json.Marshal(records)
	return body
}

func TestPipelineExecuteEndToEnd(t *testing.T) {
	pipeline := newTestPipeline(t)

	var records []json.RawMessage
	if err := json.Unmarshal(batchJSON("D1001", 10), &records); err != nil {
		t.Fatal(err)
	}
	records = append(records, json.RawMessage(`{"event_id": 1}`))

	result, err := pipeline.Execute(context.Background(), records)
	if err != nil {
		t.Fatal(err)
	}
	if result.Validation.ValidCount != 10 || result.Validation.InvalidCount != 1 {
		t.Fatalf("unexpected validation counts: %d/%d", result.Validation.ValidCount, result.Validation.InvalidCount)
	}
	if len(result.Rows) != 1 || len(result.Priced) != 1 {
		t.Fatalf("expected 1 row through the chain, got %d/%d", len(result.Rows), len(result.Priced))
	}
	if result.Priced[0].ModelPremiumMultiplier != 1.1 {
		t.Fatalf("expected model multiplier 1.1, got %v", result.Priced[0].ModelPremiumMultiplier)
	}
}

func TestExecuteBodyRejectsMalformed(t *testing.T) {
	pipeline := newTestPipeline(t)
	if _, err := pipeline.ExecuteBody(context.Background(), []byte("not json")); err == nil {
		t.Fatal("malformed body should error")
	}
}

func TestServiceDrainsAndArchivesSpool(t *testing.T) {
	spool := t.TempDir()
	archive := filepath.Join(t.TempDir(), "done")

	if err := os.WriteFile(filepath.Join(spool, "batch-001.json"), batchJSON("D1001", 10), 0o644); err != nil {
		t.Fatal(err)
	}
	// Non-JSON files are left alone.
	if err := os.WriteFile(filepath.Join(spool, "README.txt"), []byte("ignore"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := New(Options{SpoolDir: spool, ArchiveDir: archive}, nil, newTestPipeline(t), nil, nil, noopLogger())
	if err := svc.ProcessCycle(context.Background(), time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(spool, "batch-001.json")); !os.IsNotExist(err) {
		t.Fatal("processed spool file should be moved out of the spool dir")
	}
	if _, err := os.Stat(filepath.Join(archive, "batch-001.json")); err != nil {
		t.Fatalf("processed file should land in the archive: %v", err)
	}
	if _, err := os.Stat(filepath.Join(spool, "README.txt")); err != nil {
		t.Fatal("non-batch files must not be touched")
	}
}

type capturingRowStore struct {
	upserts [][]storage.PricedRowRecord
}

func (c *capturingRowStore) UpsertPricedRows(_ context.Context, records []storage.PricedRowRecord) error {
	c.upserts = append(c.upserts, records)
	return nil
}

func (c *capturingRowStore) ListRecentPricedRows(context.Context, int) ([]storage.PricedRowRecord, error) {
	return nil, nil
}

func (c *capturingRowStore) PremiumStats(context.Context) (storage.PremiumStats, error) {
	return storage.PremiumStats{}, nil
}

func TestServiceGeneratesWhenSpoolEmpty(t *testing.T) {
	cfg := mockgen.DefaultConfig()
	cfg.Drivers = 5
	cfg.Seed = 7
	gen := mockgen.New(cfg, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	store := &capturingRowStore{}
	svc := New(Options{
		SpoolDir:       t.TempDir(),
		Generator:      gen,
		GeneratorBatch: 1500,
	}, nil, newTestPipeline(t), store, nil, noopLogger())

	if err := svc.ProcessCycle(context.Background(), time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	if len(store.upserts) != 1 {
		t.Fatalf("expected one upsert from the synthetic batch, got %d", len(store.upserts))
	}
	if len(store.upserts[0]) == 0 {
		t.Fatal("synthetic batch should yield priced rows")
	}
}

func TestServiceEmptySpoolNoGenerator(t *testing.T) {
	svc := New(Options{SpoolDir: t.TempDir()}, nil, newTestPipeline(t), nil, nil, noopLogger())
	if err := svc.ProcessCycle(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("an empty cycle should be a no-op, got %v", err)
	}
}

func TestToRecordsBreakdown(t *testing.T) {
	pipeline := newTestPipeline(t)

	var records []json.RawMessage
	if err := json.Unmarshal(batchJSON("D1001", 10), &records); err != nil {
		t.Fatal(err)
	}
	result, err := pipeline.Execute(context.Background(), records)
	if err != nil {
		t.Fatal(err)
	}

	persisted, err := ToRecords(result.Priced)
	if err != nil {
		t.Fatal(err)
	}
	if len(persisted) != 1 {
		t.Fatalf("expected 1 record, got %d", len(persisted))
	}

	rec := persisted[0]
	if rec.DriverID != "D1001" || rec.PeriodKey != "2026-03" {
		t.Fatalf("unexpected keys: %s %s", rec.DriverID, rec.PeriodKey)
	}
	if !rec.FinalMonthlyPremium.Equal(result.Priced[0].Pricing.FinalMonthlyPremium) {
		t.Fatal("persisted premium must match the priced block")
	}

	var breakdown struct {
		BehaviorAdjustments []pricing.Adjustment `json:"behavior_adjustments"`
		Pricing             pricing.Block        `json:"pricing"`
	}
	if err := json.Unmarshal(rec.Breakdown, &breakdown); err != nil {
		t.Fatalf("breakdown should round-trip as JSON: %v", err)
	}
	if len(breakdown.BehaviorAdjustments) == 0 {
		t.Fatal("breakdown should carry the adjustment list")
	}
}
