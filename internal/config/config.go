package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"ubi-pricer/internal/features"
	"ubi-pricer/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Model     ModelConfig     `mapstructure:"model"`
	Generator GeneratorConfig `mapstructure:"generator"`
	API       APIConfig       `mapstructure:"api"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs the periodic ingestion service cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// PipelineConfig tunes validation and feature aggregation.
type PipelineConfig struct {
	MinExposureMiles  float64 `mapstructure:"min_exposure_miles"`
	PeriodGranularity string  `mapstructure:"period_granularity"`
	SpoolDir          string  `mapstructure:"spool_dir"`
	ArchiveDir        string  `mapstructure:"archive_dir"`

	// When enabled, a cycle that finds no spooled batches prices a synthetic
	// batch instead of skipping. Meant for demo deployments.
	GenerateOnEmpty bool `mapstructure:"generate_on_empty"`
	GenerateBatch   int  `mapstructure:"generate_batch"`
}

// PricingConfig carries the premium policy constants.
type PricingConfig struct {
	BasePremium float64 `mapstructure:"base_premium"`
	MinPremium  float64 `mapstructure:"min_premium"`
	MaxPremium  float64 `mapstructure:"max_premium"`
	MinFactor   float64 `mapstructure:"min_factor"`
	MaxFactor   float64 `mapstructure:"max_factor"`
}

// ModelConfig locates the risk model artifact.
type ModelConfig struct {
	ArtifactsDir string `mapstructure:"artifacts_dir"`
}

// GeneratorConfig tunes synthetic telemetry generation.
type GeneratorConfig struct {
	Drivers         int   `mapstructure:"drivers"`
	Seed            int64 `mapstructure:"seed"`
	ExtremeVariance bool  `mapstructure:"extreme_variance"`
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("UBIPRICER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindLegacyEnv(v)
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindLegacyEnv keeps the bare environment knobs from the original pipeline
// deployment working alongside the prefixed form.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("pipeline.min_exposure_miles", "UBIPRICER_PIPELINE_MIN_EXPOSURE_MILES", "MIN_EXPOSURE_MILES")
	_ = v.BindEnv("pipeline.period_granularity", "UBIPRICER_PIPELINE_PERIOD_GRANULARITY", "PERIOD_GRANULARITY")
	_ = v.BindEnv("pricing.base_premium", "UBIPRICER_PRICING_BASE_PREMIUM", "BASE_PREMIUM", "BASE_MONTHLY_PREMIUM")
	_ = v.BindEnv("pricing.min_premium", "UBIPRICER_PRICING_MIN_PREMIUM", "MIN_PREMIUM")
	_ = v.BindEnv("pricing.max_premium", "UBIPRICER_PRICING_MAX_PREMIUM", "MAX_PREMIUM")
	_ = v.BindEnv("pricing.min_factor", "UBIPRICER_PRICING_MIN_FACTOR", "MIN_FACTOR")
	_ = v.BindEnv("pricing.max_factor", "UBIPRICER_PRICING_MAX_FACTOR", "MAX_FACTOR")
	_ = v.BindEnv("model.artifacts_dir", "UBIPRICER_MODEL_ARTIFACTS_DIR", "MODEL_ARTIFACTS_DIR")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ubipricer")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x75626970))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("pipeline.min_exposure_miles", 5.0)
	v.SetDefault("pipeline.period_granularity", "MONTH")
	v.SetDefault("pipeline.spool_dir", "spool")
	v.SetDefault("pipeline.archive_dir", "")
	v.SetDefault("pipeline.generate_on_empty", false)
	v.SetDefault("pipeline.generate_batch", 2000)

	v.SetDefault("pricing.base_premium", 110.0)
	v.SetDefault("pricing.min_premium", 50.0)
	v.SetDefault("pricing.max_premium", 400.0)
	v.SetDefault("pricing.min_factor", 0.7)
	v.SetDefault("pricing.max_factor", 1.5)

	v.SetDefault("model.artifacts_dir", "artifacts")

	v.SetDefault("generator.drivers", 10)
	v.SetDefault("generator.seed", int64(42))
	v.SetDefault("generator.extreme_variance", false)

	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "30s")
	v.SetDefault("api.shutdown_timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Pipeline.MinExposureMiles < 0 {
		return fmt.Errorf("pipeline.min_exposure_miles cannot be negative")
	}
	if _, err := features.ParseGranularity(c.Pipeline.PeriodGranularity); err != nil {
		return fmt.Errorf("pipeline.period_granularity: %w", err)
	}
	if c.Pipeline.GenerateOnEmpty && c.Pipeline.GenerateBatch <= 0 {
		return fmt.Errorf("pipeline.generate_batch must be greater than zero")
	}
	if c.Pricing.BasePremium <= 0 {
		return fmt.Errorf("pricing.base_premium must be greater than zero")
	}
	if c.Pricing.MinPremium > c.Pricing.MaxPremium {
		return fmt.Errorf("pricing.min_premium cannot exceed pricing.max_premium")
	}
	if c.Pricing.MinFactor <= 0 || c.Pricing.MinFactor > c.Pricing.MaxFactor {
		return fmt.Errorf("pricing factor bounds invalid")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Generator.Drivers <= 0 {
		return fmt.Errorf("generator.drivers must be greater than zero")
	}
	return nil
}

// Granularity returns the parsed period granularity. Validate has already
// rejected unknown values.
func (c *Config) Granularity() features.Granularity {
	g, _ := features.ParseGranularity(c.Pipeline.PeriodGranularity)
	return g
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
