package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration of the decision engine service.
type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"required"`
	InstanceID  string           `yaml:"instance_id" default:"default" validate:"required"`
	Symbols     []string         `yaml:"symbols" validate:"required,min=1,dive,required"`
	Server      ServerConfig     `yaml:"server"`
	Log         LogConfig        `yaml:"log"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Redis       RedisConfig      `yaml:"redis"`
	Feed        FeedConfig       `yaml:"feed"`
	Engine      EngineConfig     `yaml:"engine"`
	Agent       AgentConfig      `yaml:"agent"`
	Rewards     RewardConfig     `yaml:"rewards"`
	Decision    DecisionConfig   `yaml:"decision"`
	Safeguards  SafeguardConfig  `yaml:"safeguards"`
	Patterns    PatternConfig    `yaml:"patterns"`
	Timeframes  TimeframeConfig  `yaml:"timeframes"`
	Warmup      WarmupConfig     `yaml:"warmup"`
	Checkpoint  CheckpointConfig `yaml:"checkpoint"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	// OperatorRPS limits POST endpoints (checkpoint, retrain).
	OperatorRPS   float64 `yaml:"operator_rps" default:"0.2" validate:"gt=0"`
	OperatorBurst int     `yaml:"operator_burst" default:"2" validate:"gte=1"`
	// CORSOrigins enables CORS for dashboards; empty disables it.
	CORSOrigins   []string      `yaml:"cors_origins"`
	SlowThreshold time.Duration `yaml:"slow_threshold" default:"500ms"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout"`
	// Aggregated error logs are shipped to Kafka when enabled.
	Collect          bool          `yaml:"collect"`
	CollectInterval  time.Duration `yaml:"collect_interval" default:"30s"`
	CollectThreshold int           `yaml:"collect_threshold" default:"100" validate:"gte=1"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type KafkaConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Brokers        []string `yaml:"brokers" validate:"required_if=Enabled true"`
	BarsTopic      string   `yaml:"bars_topic" default:"market.bars"`
	FillsTopic     string   `yaml:"fills_topic" default:"execution.fills"`
	DecisionsTopic string   `yaml:"decisions_topic" default:"engine.decisions"`
	LogsTopic      string   `yaml:"logs_topic" default:"engine.logs"`
	RequiredAcks   int      `yaml:"required_acks" default:"1"`
	Compression    string   `yaml:"compression" default:"snappy"`
	Producer       struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		Linger       time.Duration `yaml:"linger" default:"10ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"trademind-engine"`
		Workers    int           `yaml:"workers" default:"4" validate:"gte=1"`
		BufferSize int           `yaml:"buffer_size" default:"256"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"engine.dlq"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		// MaxAge dead-letters messages older than this; zero disables the check.
		MaxAge time.Duration `yaml:"max_age"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Host         string        `yaml:"host" default:"localhost"`
	Port         int           `yaml:"port" default:"9000"`
	Database     string        `yaml:"database" default:"trademind"`
	User         string        `yaml:"user" default:"default"`
	Password     string        `yaml:"password"`
	UseHTTP      bool          `yaml:"use_http"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"30s"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"trademind"`
}

type FeedConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url" validate:"required_if=Enabled true"`
	Timeframe      string        `yaml:"timeframe" default:"1m"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
}

type EngineConfig struct {
	// PrimaryTimeframe bars trigger evaluation; other timeframes only feed analysis.
	PrimaryTimeframe string  `yaml:"primary_timeframe" default:"1m"`
	InitialEquity    float64 `yaml:"initial_equity" default:"100000" validate:"gt=0"`
	// Lookback is the number of primary bars handed to the extractor.
	Lookback       int           `yaml:"lookback" default:"60" validate:"gte=20"`
	DecisionTTL    time.Duration `yaml:"decision_ttl" default:"5m"`
	ThrottleWindow time.Duration `yaml:"throttle_window"`
	RetryBuffer    int           `yaml:"retry_buffer" default:"1000"`
	Training       bool          `yaml:"training" default:"true"`
}

type AgentConfig struct {
	LearningRate     float64 `yaml:"learning_rate" default:"0.1" validate:"gt=0,lte=1"`
	DiscountFactor   float64 `yaml:"discount_factor" default:"0.95" validate:"gte=0,lte=1"`
	ExplorationRate  float64 `yaml:"exploration_rate" default:"0.1" validate:"gte=0,lte=1"`
	ExplorationDecay float64 `yaml:"exploration_decay" default:"0.995" validate:"gt=0,lte=1"`
	MinExploration   float64 `yaml:"min_exploration" default:"0.01" validate:"gte=0,lte=1"`
	Seed             int64   `yaml:"seed"`
}

// RewardConfig shapes the learning signal. Weights are only checked when
// enhanced rewards are enabled.
type RewardConfig struct {
	RiskPenaltyFactor     float64 `yaml:"risk_penalty_factor" default:"0.001" validate:"gte=0"`
	TransactionCostFactor float64 `yaml:"transaction_cost_factor" default:"0.0005" validate:"gte=0"`
	EnableEnhanced        bool    `yaml:"enable_enhanced_rewards"`
	SharpeWeight          float64 `yaml:"sharpe_weight" default:"0.4"`
	SortinoWeight         float64 `yaml:"sortino_weight" default:"0.3"`
	DrawdownWeight        float64 `yaml:"drawdown_weight" default:"0.2"`
	StreakWeight          float64 `yaml:"streak_weight" default:"0.1"`
	WindowSize            int     `yaml:"window_size" default:"50"`
}

type DecisionConfig struct {
	MinConfidence          float64 `yaml:"min_confidence" default:"0.6" validate:"gte=0,lte=1"`
	MaxConcurrentPositions int     `yaml:"max_concurrent_positions" default:"5" validate:"gte=1"`
	MaxCapitalPerPosition  float64 `yaml:"max_capital_per_position" default:"0.1" validate:"gt=0,lte=1"`
	AdaptiveConfidence     bool    `yaml:"adaptive_confidence" default:"true"`
	VolatilityBias         string  `yaml:"volatility_bias" default:"balanced" validate:"oneof=high low balanced"`
}

type SafeguardConfig struct {
	MaxTradesPerHour     int     `yaml:"max_trades_per_hour" default:"10" validate:"gte=1"`
	MaxTradesPerDay      int     `yaml:"max_trades_per_day" default:"50" validate:"gte=1"`
	ChaseThresholdPct    float64 `yaml:"chase_threshold_pct" default:"5" validate:"gt=0"`
	NewsVolumeMultiplier float64 `yaml:"news_volume_multiplier" default:"5" validate:"gt=1"`
	NewsRangeMultiplier  float64 `yaml:"news_range_multiplier" default:"2" validate:"gt=1"`
	EODBlockMinutes      int     `yaml:"eod_block_minutes" default:"15" validate:"gte=0"`
	EODWarnMinutes       int     `yaml:"eod_warn_minutes" default:"60" validate:"gtefield=EODBlockMinutes"`
	SessionClose         string  `yaml:"session_close" default:"16:00"`
	SessionTimezone      string  `yaml:"session_timezone" default:"America/New_York"`
}

type PatternConfig struct {
	DojiBodyRatio        float64 `yaml:"doji_body_ratio" default:"0.1" validate:"gt=0,lt=1"`
	HammerWickRatio      float64 `yaml:"hammer_wick_ratio" default:"2" validate:"gt=0"`
	SpinningTopBodyRatio float64 `yaml:"spinning_top_body_ratio" default:"0.3" validate:"gt=0,lt=1"`
	VolumeConfirmation   float64 `yaml:"volume_confirmation" default:"1.5" validate:"gt=0"`
	CacheSize            int     `yaml:"cache_size" default:"1000" validate:"gte=1"`
}

type TimeframeConfig struct {
	Tracked []string `yaml:"tracked" default:"[\"1m\",\"5m\",\"15m\"]" validate:"min=1"`
	MaxBars int      `yaml:"max_bars" default:"500" validate:"gte=20"`
	MinBars int      `yaml:"min_bars" default:"20" validate:"gte=5"`
}

type WarmupConfig struct {
	Enabled             bool    `yaml:"enabled"`
	ObservationFraction float64 `yaml:"observation_fraction" default:"0.5" validate:"gte=0,lte=1"`
	HistoryBars         int     `yaml:"history_bars" default:"2000" validate:"gte=0"`
	SimulatedCash       float64 `yaml:"simulated_cash" default:"10000" validate:"gt=0"`
}

type CheckpointConfig struct {
	Path     string        `yaml:"path" default:"data/engine_state.json" validate:"required"`
	Interval time.Duration `yaml:"interval" default:"5m"`
}

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(rewardWeightsRule, RewardConfig{})
	return v
}

const weightTolerance = 1e-6

func rewardWeightsRule(sl validator.StructLevel) {
	rc := sl.Current().Interface().(RewardConfig)
	if !rc.EnableEnhanced {
		return
	}
	weights := []struct {
		name  string
		value float64
	}{
		{"SharpeWeight", rc.SharpeWeight},
		{"SortinoWeight", rc.SortinoWeight},
		{"DrawdownWeight", rc.DrawdownWeight},
		{"StreakWeight", rc.StreakWeight},
	}
	for _, w := range weights {
		if w.value < 0 || math.IsNaN(w.value) {
			sl.ReportError(w.value, w.name, w.name, "nonnegative", "")
		}
	}
	if math.Abs(rc.weightSum()-1.0) > weightTolerance {
		sl.ReportError(rc.weightSum(), "Weights", "Weights", "sum_to_one", "")
	}
	if rc.WindowSize < 10 {
		sl.ReportError(rc.WindowSize, "WindowSize", "WindowSize", "min_window", "10")
	}
}

func (rc RewardConfig) weightSum() float64 {
	return rc.SharpeWeight + rc.SortinoWeight + rc.DrawdownWeight + rc.StreakWeight
}

// Default returns a configuration populated only from default tags.
func Default() *Config {
	c := &Config{Symbols: []string{"SPY"}}
	if err := defaults.Set(c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return c
}

// Load reads, defaults and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse builds a Config from raw YAML.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CHECKPOINT_PATH"); v != "" {
		c.Checkpoint.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("ENHANCED_REWARDS"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("ENHANCED_REWARDS: %w", err)
		}
		c.Rewards.EnableEnhanced = enabled
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks field constraints and the cross-field rules.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		if _, lerr := time.LoadLocation(c.Safeguards.SessionTimezone); lerr != nil {
			return fmt.Errorf("%w: safeguards.session_timezone: %v", ErrInvalidConfig, lerr)
		}
		if _, perr := time.Parse("15:04", c.Safeguards.SessionClose); perr != nil {
			return fmt.Errorf("%w: safeguards.session_close must be HH:MM", ErrInvalidConfig)
		}
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "sum_to_one":
		return fmt.Sprintf("%s: enhanced reward weights must sum to 1.0, got %v", field, fe.Value())
	case "nonnegative":
		return fmt.Sprintf("%s: reward weight must be non-negative, got %v", field, fe.Value())
	case "min_window":
		return fmt.Sprintf("%s: window size must be at least %s, got %v", field, fe.Param(), fe.Value())
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
