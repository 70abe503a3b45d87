package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Schemas   SchemasConfig   `mapstructure:"schemas"`
	Cron      CronConfig      `mapstructure:"cron"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Quality   QualityConfig   `mapstructure:"quality"`
	Promotion PromotionConfig `mapstructure:"promotion"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Estimator EstimatorConfig `mapstructure:"estimator"`
	Trainer   TrainerConfig   `mapstructure:"trainer"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Labeler   LabelerConfig   `mapstructure:"labeler"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr  string `mapstructure:"http_addr"`
	AuthToken string `mapstructure:"auth_token"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// SchemasConfig names the physical schemas behind the logical truth/ops
// split. Both may point at the same schema for single-schema installs.
type SchemasConfig struct {
	Truth string `mapstructure:"truth"`
	Ops   string `mapstructure:"ops"`
}

type CronConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	QualityGate   string `mapstructure:"quality_gate"`
	LabelOutcomes string `mapstructure:"label_outcomes"`
	CLVBackfill   string `mapstructure:"clv_backfill"`
}

type PipelineConfig struct {
	ModelKey              string  `mapstructure:"model_key"`
	CurrentSeason         int     `mapstructure:"current_season"`
	BlendAlpha            float64 `mapstructure:"blend_alpha"`
	MinCalibrationSamples int     `mapstructure:"min_calibration_samples"`
}

type QualityConfig struct {
	ExpectedRoundSize int               `mapstructure:"expected_round_size"`
	MaxScore          int               `mapstructure:"max_score"`
	PinnedChecksums   map[string]string `mapstructure:"pinned_checksums"`
}

type PromotionConfig struct {
	PSIThreshold  float64 `mapstructure:"psi_threshold"`
	BrierWeight   float64 `mapstructure:"brier_weight"`
	LogLossWeight float64 `mapstructure:"logloss_weight"`
}

type RiskConfig struct {
	BankrollUnits        float64 `mapstructure:"bankroll_units"`
	FractionalKelly      float64 `mapstructure:"fractional_kelly"`
	MaxStakeFrac         float64 `mapstructure:"max_stake_frac"`
	EntropyMaxNats       float64 `mapstructure:"entropy_max_nats"`
	EdgeMinEV            float64 `mapstructure:"edge_min_ev"`
	MaxRoundExposureFrac float64 `mapstructure:"max_round_exposure_frac"`
}

type EstimatorConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type TrainerConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type FeedConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	URL               string        `mapstructure:"url"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ReconnectMin      time.Duration `mapstructure:"reconnect_min"`
	ReconnectMax      time.Duration `mapstructure:"reconnect_max"`
}

// IngestConfig points at the collaborator endpoints that serve
// pre-normalized records; the scrapers themselves live outside this repo.
type IngestConfig struct {
	FixturesURL string        `mapstructure:"fixtures_url"`
	OddsURL     string        `mapstructure:"odds_url"`
	RatingsURL  string        `mapstructure:"ratings_url"`
	InjuriesURL string        `mapstructure:"injuries_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
}

type LabelerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	ScanInterval time.Duration `mapstructure:"scan_interval"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NRL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	// Legacy deployments export NRL_SCHEMA / NRL_OPS_SCHEMA.
	_ = v.BindEnv("schemas.truth", "NRL_SCHEMA", "NRL_SCHEMAS_TRUTH")
	_ = v.BindEnv("schemas.ops", "NRL_OPS_SCHEMA", "NRL_SCHEMAS_OPS")

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.auth_token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("schemas.truth", "nrl_clean")
	v.SetDefault("schemas.ops", "nrl")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.quality_gate", "@every 6h")
	v.SetDefault("cron.label_outcomes", "@every 30m")
	v.SetDefault("cron.clv_backfill", "@every 1h")

	v.SetDefault("pipeline.model_key", "nrl_home_win")
	v.SetDefault("pipeline.current_season", 2026)
	v.SetDefault("pipeline.blend_alpha", 0.65)
	v.SetDefault("pipeline.min_calibration_samples", 80)

	v.SetDefault("quality.expected_round_size", 8)
	v.SetDefault("quality.max_score", 80)

	v.SetDefault("promotion.psi_threshold", 0.2)
	v.SetDefault("promotion.brier_weight", 0.7)
	v.SetDefault("promotion.logloss_weight", 0.3)

	v.SetDefault("risk.bankroll_units", 100)
	v.SetDefault("risk.fractional_kelly", 0.33)
	v.SetDefault("risk.max_stake_frac", 0.05)
	v.SetDefault("risk.entropy_max_nats", 0.65)
	v.SetDefault("risk.edge_min_ev", 0.05)
	v.SetDefault("risk.max_round_exposure_frac", 0.06)

	v.SetDefault("estimator.enabled", false)
	v.SetDefault("estimator.base_url", "http://127.0.0.1:9000")
	v.SetDefault("estimator.timeout", "10s")
	v.SetDefault("trainer.base_url", "http://127.0.0.1:9000")
	v.SetDefault("trainer.timeout", "120s")

	v.SetDefault("feed.enabled", false)
	v.SetDefault("feed.url", "")
	v.SetDefault("feed.heartbeat_interval", "30s")
	v.SetDefault("feed.reconnect_min", "1s")
	v.SetDefault("feed.reconnect_max", "30s")

	v.SetDefault("ingest.timeout", "20s")
	v.SetDefault("ingest.user_agent", "nrlengine/1.0")

	v.SetDefault("labeler.enabled", false)
	v.SetDefault("labeler.scan_interval", "5m")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
