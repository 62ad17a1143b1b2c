package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	EOD      EODConfig
	Worker   WorkerConfig
}

type AppConfig struct {
	Env string
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type EODConfig struct {
	VarianceRemark      string
	PriceTolerance      decimal.Decimal
	DefaultReorderLevel int
	LowStockRoles       []string
	AlertDedupWindow    time.Duration
	SummaryCacheTTL     time.Duration
}

type WorkerConfig struct {
	RefreshInterval time.Duration
	MetricsAddr     string
	Stream          string
	ConsumerGroup   string
	ConsumerName    string
}

// Load reads config.toml when present, then MEDIKASIR_* environment
// variables, then fills defaults. MEDIKASIR_EOD_PRICE_TOLERANCE overrides
// eod.price_tolerance.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/medikasir")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("MEDIKASIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	tolerance := decimal.Zero
	if raw := strings.TrimSpace(v.GetString("eod.price_tolerance")); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("eod.price_tolerance: %w", err)
		}
		tolerance = parsed
	}

	cfg := &Config{
		App: AppConfig{
			Env: v.GetString("app.env"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Database: DatabaseConfig{
			URL:          v.GetString("database.url"),
			MaxOpenConns: v.GetInt("database.max_open_conns"),
			MaxIdleConns: v.GetInt("database.max_idle_conns"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		EOD: EODConfig{
			VarianceRemark:      v.GetString("eod.variance_remark"),
			PriceTolerance:      tolerance,
			DefaultReorderLevel: v.GetInt("eod.default_reorder_level"),
			LowStockRoles:       splitList(v.GetStringSlice("eod.low_stock_roles")),
			AlertDedupWindow:    v.GetDuration("eod.alert_dedup_window"),
			SummaryCacheTTL:     v.GetDuration("eod.summary_cache_ttl"),
		},
		Worker: WorkerConfig{
			RefreshInterval: v.GetDuration("worker.refresh_interval"),
			MetricsAddr:     v.GetString("worker.metrics_addr"),
			Stream:          v.GetString("worker.stream"),
			ConsumerGroup:   v.GetString("worker.consumer_group"),
			ConsumerName:    v.GetString("worker.consumer_name"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		if cfg.IsProduction() {
			cfg.Log.Format = "json"
		} else {
			cfg.Log.Format = "console"
		}
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 30
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 8
	}
	if cfg.EOD.VarianceRemark == "" {
		cfg.EOD.VarianceRemark = "Variance detected"
	}
	if cfg.EOD.PriceTolerance.IsZero() {
		cfg.EOD.PriceTolerance = decimal.New(1, -2)
	}
	if cfg.EOD.DefaultReorderLevel == 0 {
		cfg.EOD.DefaultReorderLevel = 10
	}
	if len(cfg.EOD.LowStockRoles) == 0 {
		cfg.EOD.LowStockRoles = []string{"pharmacist", "branch_manager"}
	}
	if cfg.EOD.AlertDedupWindow == 0 {
		cfg.EOD.AlertDedupWindow = 24 * time.Hour
	}
	if cfg.EOD.SummaryCacheTTL == 0 {
		cfg.EOD.SummaryCacheTTL = 12 * time.Hour
	}
	if cfg.Worker.RefreshInterval == 0 {
		cfg.Worker.RefreshInterval = 5 * time.Minute
	}
	if cfg.Worker.MetricsAddr == "" {
		cfg.Worker.MetricsAddr = ":9090"
	}
	if cfg.Worker.Stream == "" {
		cfg.Worker.Stream = "eod-events"
	}
	if cfg.Worker.ConsumerGroup == "" {
		cfg.Worker.ConsumerGroup = "eod-emitter"
	}
	if cfg.Worker.ConsumerName == "" {
		cfg.Worker.ConsumerName = "worker-1"
	}
}

func (c *Config) validate() error {
	if c.EOD.PriceTolerance.IsNegative() {
		return fmt.Errorf("eod.price_tolerance must not be negative")
	}
	if c.EOD.DefaultReorderLevel < 0 {
		return fmt.Errorf("eod.default_reorder_level must not be negative")
	}
	if c.EOD.AlertDedupWindow < time.Minute {
		return fmt.Errorf("eod.alert_dedup_window must be at least 1m")
	}
	if c.Worker.RefreshInterval < time.Second {
		return fmt.Errorf("worker.refresh_interval must be at least 1s")
	}
	if c.IsProduction() && c.Database.URL == "" {
		return fmt.Errorf("database.url is required in production")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// splitList accepts both TOML arrays and comma-separated env values.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
