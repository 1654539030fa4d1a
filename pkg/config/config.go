package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"Kavach/pkg/util"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

const minProviderTimeout = 5 * time.Second

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORS            bool          `yaml:"cors"`
		// Per-client limit on the endpoints that trigger detection; negative disables.
		RateLimitRPS   float64 `yaml:"rate_limit_rps" default:"2"`
		RateLimitBurst int     `yaml:"rate_limit_burst" default:"5"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Regime     RegimeConfig     `yaml:"regime"`
	Allocation AllocationConfig `yaml:"allocation"`
	Portfolio  struct {
		StartingBalance float64       `yaml:"starting_balance" default:"100000"`
		Store           string        `yaml:"store" default:"memory"`
		LockTTL         time.Duration `yaml:"lock_ttl" default:"30s"`
	} `yaml:"portfolio"`
	Cache struct {
		FetchEnabled bool          `yaml:"fetch_enabled"`
		LatestTTL    time.Duration `yaml:"latest_ttl" default:"30s"`
		HistoryTTL   time.Duration `yaml:"history_ttl" default:"15m"`
		MemoryLimit  int           `yaml:"memory_limit" default:"10000"`
		Redis        struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Decisions struct {
		Backend         string `yaml:"backend" default:"log"`
		ConsumerEnabled bool   `yaml:"consumer_enabled"`
	} `yaml:"decisions"`
	Scheduler struct {
		Enabled    bool          `yaml:"enabled"`
		Interval   time.Duration `yaml:"interval" default:"1h"`
		Portfolios []string      `yaml:"portfolios"`
		Workers    int           `yaml:"workers" default:"2"`
		RetryLimit int           `yaml:"retry_limit" default:"3"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
		KeyPrefix  string        `yaml:"key_prefix" default:"kavach:jobs"`
	} `yaml:"scheduler"`
	Kafka struct {
		Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
		Topic        string   `yaml:"topic" default:"kavach.decisions"`
		LogTopic     string   `yaml:"log_topic" default:"kavach.logs"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"kavach-recorder"`
			DLQTopic   string        `yaml:"dlq_topic"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"kavach"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
}

// ProvidersConfig describes the upstream market-data providers and the
// resilience policy applied around them.
type ProvidersConfig struct {
	Timeout       time.Duration     `yaml:"timeout" default:"10s"`
	HistoryDays   int               `yaml:"history_days" default:"220"`
	CryptoTickers []string          `yaml:"crypto_tickers" default:"[\"BTC-USD\",\"ETH-USD\"]"`
	YahooURL      string            `yaml:"yahoo_url" default:"https://query1.finance.yahoo.com"`
	CoinGeckoURL  string            `yaml:"coingecko_url" default:"https://api.coingecko.com"`
	StooqURL      string            `yaml:"stooq_url" default:"https://stooq.com"`
	CoinGeckoIDs  map[string]string `yaml:"coingecko_ids"`
	StooqSymbols  map[string]string `yaml:"stooq_symbols"`
	Retry         struct {
		MaxAttempts int           `yaml:"max_attempts" default:"3"`
		BaseDelay   time.Duration `yaml:"base_delay" default:"1s"`
		Multiplier  float64       `yaml:"multiplier" default:"1.5"`
	} `yaml:"retry"`
	Breaker struct {
		Enabled             bool          `yaml:"enabled"`
		ConsecutiveFailures uint32        `yaml:"consecutive_failures" default:"6"`
		OpenTimeout         time.Duration `yaml:"open_timeout" default:"60s"`
	} `yaml:"breaker"`
	RateLimit struct {
		Enabled bool    `yaml:"enabled"`
		RPS     float64 `yaml:"rps" default:"5"`
		Burst   int     `yaml:"burst" default:"5"`
	} `yaml:"rate_limit"`
}

// RegimeConfig holds the detector windows and thresholds.
type RegimeConfig struct {
	RiskyTicker     string  `yaml:"risky_ticker" default:"BTC-USD"`
	SafeTicker      string  `yaml:"safe_ticker" default:"GLD"`
	VolWindow       int     `yaml:"vol_window" default:"30"`
	ZWindow         int     `yaml:"z_window" default:"90"`
	ReturnLag       int     `yaml:"return_lag" default:"7"`
	MAWindow        int     `yaml:"ma_window" default:"200"`
	VolatileZ       float64 `yaml:"volatile_z" default:"2.0"`
	CrashZ          float64 `yaml:"crash_z" default:"3.0"`
	RiskyDropThresh float64 `yaml:"risky_drop" default:"-0.05"`
	SafeDropThresh  float64 `yaml:"safe_drop" default:"-0.02"`
}

// AllocationConfig holds the per-regime weight table and the asset universe.
type AllocationConfig struct {
	RiskyTickers []string          `yaml:"risky_tickers" default:"[\"BTC-USD\",\"ETH-USD\"]"`
	SafeTicker   string            `yaml:"safe_ticker" default:"GLD"`
	CashSymbol   string            `yaml:"cash_symbol" default:"USD"`
	Weights      map[string]Weight `yaml:"weights"`
}

// Weight is one row of the allocation table.
type Weight struct {
	Risky float64 `yaml:"risky"`
	Safe  float64 `yaml:"safe"`
	Cash  float64 `yaml:"cash"`
}

// DefaultWeights returns the standard bull/volatile/crash table.
func DefaultWeights() map[string]Weight {
	return map[string]Weight{
		"bull":     {Risky: 0.80, Safe: 0.15, Cash: 0.05},
		"volatile": {Risky: 0.40, Safe: 0.50, Cash: 0.10},
		"crash":    {Risky: 0.00, Safe: 0.00, Cash: 1.00},
	}
}

// DefaultCoinGeckoIDs maps crypto tickers to CoinGecko coin ids.
func DefaultCoinGeckoIDs() map[string]string {
	return map[string]string{"BTC-USD": "bitcoin", "ETH-USD": "ethereum"}
}

// DefaultStooqSymbols maps traditional tickers to Stooq symbols.
func DefaultStooqSymbols() map[string]string {
	return map[string]string{"GLD": "GLD.US", "TLT": "TLT.US"}
}

// Default returns a configuration populated only from struct defaults.
func Default() (*Config, error) {
	var c Config
	if err := c.applyDefaults(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, fills defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.applyDefaults(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// An empty path skips the file and starts from defaults.
func LoadWithEnv(path string) (*Config, error) {
	var (
		c   *Config
		err error
	)
	if path == "" {
		c, err = Default()
	} else {
		c, err = Load(path)
	}
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("KAVACH_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	c.Server.Port = util.ParseIntDefault(os.Getenv("PORT"), c.Server.Port)
	if v := os.Getenv("RISKY_TICKER"); v != "" {
		c.Regime.RiskyTicker = strings.ToUpper(v)
	}
	if v := os.Getenv("SAFE_TICKER"); v != "" {
		c.Regime.SafeTicker = strings.ToUpper(v)
	}
	if v := os.Getenv("CRYPTO_TICKERS"); v != "" {
		c.Providers.CryptoTickers = splitList(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyDefaults() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}
	if len(c.Allocation.Weights) == 0 {
		c.Allocation.Weights = DefaultWeights()
	}
	if len(c.Providers.CoinGeckoIDs) == 0 {
		c.Providers.CoinGeckoIDs = DefaultCoinGeckoIDs()
	}
	if len(c.Providers.StooqSymbols) == 0 {
		c.Providers.StooqSymbols = DefaultStooqSymbols()
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Providers.Timeout < minProviderTimeout {
		return fmt.Errorf("providers.timeout must be at least %s, got %s", minProviderTimeout, c.Providers.Timeout)
	}
	if c.Providers.Retry.MaxAttempts < 1 {
		return fmt.Errorf("providers.retry.max_attempts must be >= 1")
	}
	if c.Providers.Retry.Multiplier < 1 {
		return fmt.Errorf("providers.retry.multiplier must be >= 1")
	}
	if c.Providers.HistoryDays <= 0 {
		return fmt.Errorf("providers.history_days must be positive")
	}
	if c.Regime.RiskyTicker == "" {
		return fmt.Errorf("regime.risky_ticker is required")
	}
	if c.Regime.VolWindow < 2 || c.Regime.ZWindow < 2 || c.Regime.ReturnLag < 1 {
		return fmt.Errorf("regime windows are too small")
	}
	if len(c.Allocation.RiskyTickers) == 0 {
		return fmt.Errorf("allocation.risky_tickers cannot be empty")
	}
	if c.Allocation.SafeTicker == "" || c.Allocation.CashSymbol == "" {
		return fmt.Errorf("allocation.safe_ticker and allocation.cash_symbol are required")
	}
	for _, regime := range []string{"bull", "volatile", "crash"} {
		if _, ok := c.Allocation.Weights[regime]; !ok {
			return fmt.Errorf("allocation.weights must define the %s regime", regime)
		}
	}
	for name, w := range c.Allocation.Weights {
		if w.Risky < 0 || w.Safe < 0 || w.Cash < 0 {
			return fmt.Errorf("allocation.weights.%s has a negative weight", name)
		}
		if sum := w.Risky + w.Safe + w.Cash; math.Abs(sum-1) > 1e-9 {
			return fmt.Errorf("allocation.weights.%s must sum to 1, got %.6f", name, sum)
		}
	}
	switch c.Portfolio.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("portfolio.store must be 'memory' or 'redis', got '%s'", c.Portfolio.Store)
	}
	if c.Portfolio.Store == "redis" && !c.Cache.Redis.Enabled {
		return fmt.Errorf("portfolio.store 'redis' requires cache.redis.enabled")
	}
	switch c.Decisions.Backend {
	case "log", "kafka", "clickhouse":
	default:
		return fmt.Errorf("decisions.backend must be 'log', 'kafka' or 'clickhouse', got '%s'", c.Decisions.Backend)
	}
	if c.Decisions.Backend == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("decisions.backend 'clickhouse' requires clickhouse.enabled")
	}
	if c.Decisions.ConsumerEnabled && (c.Decisions.Backend != "kafka" || !c.ClickHouse.Enabled) {
		return fmt.Errorf("decisions.consumer_enabled requires the kafka backend and clickhouse.enabled")
	}
	if c.Scheduler.Enabled {
		if !c.Cache.Redis.Enabled {
			return fmt.Errorf("scheduler.enabled requires cache.redis.enabled")
		}
		if c.Scheduler.Interval < time.Minute {
			return fmt.Errorf("scheduler.interval must be at least 1m, got %s", c.Scheduler.Interval)
		}
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
