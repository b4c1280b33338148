package config

import (
	"os"
	"path/filepath"
	"testing"

	"ubi-pricer/internal/features"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Pipeline.MinExposureMiles != 5.0 {
		t.Fatalf("expected default exposure floor 5.0, got %v", cfg.Pipeline.MinExposureMiles)
	}
	if cfg.Granularity() != features.GranularityMonth {
		t.Fatalf("expected MONTH default, got %s", cfg.Granularity())
	}
	if cfg.Pricing.BasePremium != 110 || cfg.Pricing.MinPremium != 50 || cfg.Pricing.MaxPremium != 400 {
		t.Fatalf("unexpected default premiums: %+v", cfg.Pricing)
	}
	if cfg.Pricing.MinFactor != 0.7 || cfg.Pricing.MaxFactor != 1.5 {
		t.Fatalf("unexpected default factor bounds: %+v", cfg.Pricing)
	}
	if cfg.Scheduler.Interval <= 0 {
		t.Fatal("scheduler interval default missing")
	}
	if cfg.Pipeline.GenerateOnEmpty {
		t.Fatal("synthetic generation must be off by default")
	}
	if cfg.Pipeline.GenerateBatch != 2000 {
		t.Fatalf("expected default generate batch 2000, got %d", cfg.Pipeline.GenerateBatch)
	}
}

func TestLoadGenerateOnEmpty(t *testing.T) {
	t.Setenv("UBIPRICER_PIPELINE_GENERATE_ON_EMPTY", "true")
	t.Setenv("UBIPRICER_PIPELINE_GENERATE_BATCH", "500")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Pipeline.GenerateOnEmpty || cfg.Pipeline.GenerateBatch != 500 {
		t.Fatalf("unexpected generation settings: %+v", cfg.Pipeline)
	}

	t.Setenv("UBIPRICER_PIPELINE_GENERATE_BATCH", "0")
	if _, err := Load(""); err == nil {
		t.Fatal("zero generate batch should fail validation when generation is enabled")
	}
}

func TestLoadLegacyEnvAliases(t *testing.T) {
	t.Setenv("MIN_EXPOSURE_MILES", "9.5")
	t.Setenv("PERIOD_GRANULARITY", "day")
	t.Setenv("BASE_PREMIUM", "190")
	t.Setenv("MIN_FACTOR", "0.8")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pipeline.MinExposureMiles != 9.5 {
		t.Fatalf("bare MIN_EXPOSURE_MILES not honored: %v", cfg.Pipeline.MinExposureMiles)
	}
	if cfg.Granularity() != features.GranularityDay {
		t.Fatalf("bare PERIOD_GRANULARITY not honored: %s", cfg.Granularity())
	}
	if cfg.Pricing.BasePremium != 190 {
		t.Fatalf("bare BASE_PREMIUM not honored: %v", cfg.Pricing.BasePremium)
	}
	if cfg.Pricing.MinFactor != 0.8 {
		t.Fatalf("bare MIN_FACTOR not honored: %v", cfg.Pricing.MinFactor)
	}
}

func TestLoadPrefixedEnvWins(t *testing.T) {
	t.Setenv("UBIPRICER_PRICING_BASE_PREMIUM", "150")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pricing.BasePremium != 150 {
		t.Fatalf("prefixed env not honored: %v", cfg.Pricing.BasePremium)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
pipeline:
  min_exposure_miles: 2.5
  period_granularity: hour
pricing:
  base_premium: 120
scheduler:
  interval: 10m
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pipeline.MinExposureMiles != 2.5 {
		t.Fatalf("file value not applied: %v", cfg.Pipeline.MinExposureMiles)
	}
	if cfg.Granularity() != features.GranularityHour {
		t.Fatalf("file granularity not applied: %s", cfg.Granularity())
	}
	if cfg.Scheduler.Interval.Minutes() != 10 {
		t.Fatalf("duration decoding failed: %v", cfg.Scheduler.Interval)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"bad granularity", map[string]string{"PERIOD_GRANULARITY": "fortnight"}},
		{"zero base premium", map[string]string{"BASE_PREMIUM": "0"}},
		{"inverted premiums", map[string]string{"MIN_PREMIUM": "500"}},
		{"inverted factors", map[string]string{"MIN_FACTOR": "2.0"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Fatalf("%s should fail validation", tc.name)
			}
		})
	}
}
