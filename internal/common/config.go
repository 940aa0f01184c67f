package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the pipeline's runtime configuration. Unlike the
// file-based convention this shape was borrowed from, every field here is
// populated from environment variables: a local quaero.toml, if present, is
// parsed first for developer-workstation convenience, then env vars are
// applied on top and always win.
type Config struct {
	Environment string `toml:"environment"`

	Server   ServerConfig   `toml:"server"`
	Bus      BusConfig      `toml:"bus"`
	Storage  StorageConfig  `toml:"storage"`
	Workers  WorkersConfig  `toml:"workers"`
	Currency CurrencyConfig `toml:"currency"`
	Stocks   StocksConfig   `toml:"stocks"`
	Crawler  CrawlerConfig  `toml:"crawler"`
	Logging  LoggingConfig  `toml:"logging"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// BusConfig configures the Message Bus Client (§4.3, §6).
type BusConfig struct {
	ProjectID         string        `toml:"project_id"`
	RetrievalTopicID  string        `toml:"retrieval_topic_id"`
	RetrievalSubID    string        `toml:"retrieval_subscription_id"`
	CleaningTopicID   string        `toml:"cleaning_topic_id"`
	MaxBatchSize      int           `toml:"max_batch_size"`
	PublishTimeout    time.Duration `toml:"publish_timeout"`
	RetryDeadline     time.Duration `toml:"retry_deadline"`
	VisibilityTimeout time.Duration `toml:"visibility_timeout"`
	MaxReceive        int           `toml:"max_receive"`
	PollInterval      time.Duration `toml:"poll_interval"`
}

type StorageConfig struct {
	GatewayBaseURL string        `toml:"gateway_base_url"`
	RequestTimeout time.Duration `toml:"request_timeout"`

	// BadgerPath is the directory of the local Badger store that every
	// entrypoint opens as the backing store of the process-local message bus.
	BadgerPath string `toml:"badger_path"`
}

// WorkersConfig controls the Task Dispatcher worker pool (§4.3, §5).
type WorkersConfig struct {
	MaxWorkers int `toml:"max_workers"`
}

// CurrencyConfig configures the Currency Normalization Engine (§4.7).
type CurrencyConfig struct {
	ExchangeRateSourceURL string `toml:"exchange_rate_source_url"`
	DeflatorSourceURL     string `toml:"deflator_source_url"`
	ReferenceYear         int    `toml:"reference_year"`
}

// StocksConfig configures the stock-metadata enrichment client (§4.6 step 3).
type StocksConfig struct {
	APIKey            string        `toml:"api_key"`
	BaseURL           string        `toml:"base_url"`
	RateWindow        time.Duration `toml:"rate_window"`
	MaxRequestsPerWin int           `toml:"max_requests_per_window"`
}

// CrawlerConfig configures the shared HTTP Fetcher (§4, §5).
type CrawlerConfig struct {
	RequestTimeout     time.Duration `toml:"request_timeout"`
	RequestDelay       time.Duration `toml:"request_delay"`
	RandomDelay        time.Duration `toml:"random_delay"`
	UserAgentsFile     string        `toml:"user_agents_file"`
	JavaScriptWaitTime time.Duration `toml:"javascript_wait_time"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Output     []string `toml:"output"`
	TimeFormat string   `toml:"time_format"`
}

// DefaultConfig returns baseline values applied before the local TOML file
// and environment variables are layered on top.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Bus: BusConfig{
			MaxBatchSize:      10,
			PublishTimeout:    10 * time.Second,
			RetryDeadline:     30 * time.Second,
			VisibilityTimeout: 5 * time.Minute,
			MaxReceive:        5,
			PollInterval:      1 * time.Second,
		},
		Storage: StorageConfig{
			RequestTimeout: 30 * time.Second,
			BadgerPath:     "./data/badger",
		},
		Workers: WorkersConfig{
			MaxWorkers: 8,
		},
		Currency: CurrencyConfig{
			ReferenceYear: 2017,
		},
		Stocks: StocksConfig{
			RateWindow:        60 * time.Second,
			MaxRequestsPerWin: 25,
		},
		Crawler: CrawlerConfig{
			RequestTimeout:     60 * time.Second,
			RequestDelay:       500 * time.Millisecond,
			RandomDelay:        500 * time.Millisecond,
			UserAgentsFile:     "./data/user_agents.json",
			JavaScriptWaitTime: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
	}
}

// LoadConfig builds the Config by layering, in order: built-in defaults, an
// optional local quaero.toml override (developer convenience, not required
// in any deployed environment), then environment variables. Environment
// variables always take precedence, matching the external-interface
// requirement that every pipeline parameter be configurable that way.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile("quaero.toml"); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse quaero.toml: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	str(&cfg.Environment, "QUAERO_ENVIRONMENT")

	str(&cfg.Server.Host, "QUAERO_SERVER_HOST")
	intv(&cfg.Server.Port, "QUAERO_SERVER_PORT")

	str(&cfg.Bus.ProjectID, "QUAERO_BUS_PROJECT_ID")
	str(&cfg.Bus.RetrievalTopicID, "QUAERO_BUS_RETRIEVAL_TOPIC_ID")
	str(&cfg.Bus.RetrievalSubID, "QUAERO_BUS_RETRIEVAL_SUBSCRIPTION_ID")
	str(&cfg.Bus.CleaningTopicID, "QUAERO_BUS_CLEANING_TOPIC_ID")
	intv(&cfg.Bus.MaxBatchSize, "QUAERO_BUS_MAX_BATCH_SIZE")
	durv(&cfg.Bus.PublishTimeout, "QUAERO_BUS_PUBLISH_TIMEOUT")
	durv(&cfg.Bus.RetryDeadline, "QUAERO_BUS_RETRY_DEADLINE")
	durv(&cfg.Bus.VisibilityTimeout, "QUAERO_BUS_VISIBILITY_TIMEOUT")
	intv(&cfg.Bus.MaxReceive, "QUAERO_BUS_MAX_RECEIVE")
	durv(&cfg.Bus.PollInterval, "QUAERO_BUS_POLL_INTERVAL")

	str(&cfg.Storage.GatewayBaseURL, "QUAERO_STORAGE_GATEWAY_BASE_URL")
	durv(&cfg.Storage.RequestTimeout, "QUAERO_STORAGE_REQUEST_TIMEOUT")
	str(&cfg.Storage.BadgerPath, "QUAERO_STORAGE_BADGER_PATH")

	intv(&cfg.Workers.MaxWorkers, "QUAERO_WORKERS_MAX")

	str(&cfg.Currency.ExchangeRateSourceURL, "QUAERO_CURRENCY_EXCHANGE_RATE_SOURCE_URL")
	str(&cfg.Currency.DeflatorSourceURL, "QUAERO_CURRENCY_DEFLATOR_SOURCE_URL")
	intv(&cfg.Currency.ReferenceYear, "QUAERO_CURRENCY_REFERENCE_YEAR")

	str(&cfg.Stocks.APIKey, "QUAERO_STOCKS_API_KEY")
	str(&cfg.Stocks.BaseURL, "QUAERO_STOCKS_BASE_URL")
	durv(&cfg.Stocks.RateWindow, "QUAERO_STOCKS_RATE_WINDOW")
	intv(&cfg.Stocks.MaxRequestsPerWin, "QUAERO_STOCKS_MAX_REQUESTS_PER_WINDOW")

	durv(&cfg.Crawler.RequestTimeout, "QUAERO_CRAWLER_REQUEST_TIMEOUT")
	durv(&cfg.Crawler.RequestDelay, "QUAERO_CRAWLER_REQUEST_DELAY")
	durv(&cfg.Crawler.RandomDelay, "QUAERO_CRAWLER_RANDOM_DELAY")
	str(&cfg.Crawler.UserAgentsFile, "QUAERO_CRAWLER_USER_AGENTS_FILE")
	durv(&cfg.Crawler.JavaScriptWaitTime, "QUAERO_CRAWLER_JAVASCRIPT_WAIT_TIME")

	str(&cfg.Logging.Level, "QUAERO_LOGGING_LEVEL")
	str(&cfg.Logging.Format, "QUAERO_LOGGING_FORMAT")
	str(&cfg.Logging.TimeFormat, "QUAERO_LOGGING_TIME_FORMAT")
	if v := os.Getenv("QUAERO_LOGGING_OUTPUT"); v != "" {
		cfg.Logging.Output = strings.Split(v, ",")
	}
}

func str(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func intv(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func durv(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
