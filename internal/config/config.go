// Package config loads configuration for both CLI surfaces (collector and
// trading agent) from environment variables with CLI-flag overrides, via
// viper + pflag. Env var names follow spec section 6 verbatim.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Exchange holds OKX-compatible API credentials and connection mode.
type Exchange struct {
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	Passphrase string `mapstructure:"passphrase"`
	Demo       bool   `mapstructure:"demo"`
	RESTBase   string `mapstructure:"rest_base"`
	WSPublic   string `mapstructure:"ws_public"`
	WSBusiness string `mapstructure:"ws_business"`
}

// Proxy holds optional outbound HTTP/WS proxy settings.
type Proxy struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
}

// Trading holds symbol and risk defaults.
type Trading struct {
	Symbol         string `mapstructure:"symbol"`
	DefaultLev     int    `mapstructure:"default_leverage"`
	MarginMode     string `mapstructure:"margin_mode"`
	BotStartTimeMs int64  `mapstructure:"bot_start_time_ms"`
}

// LLM holds provider selection and per-provider credentials.
type LLM struct {
	Provider      string        `mapstructure:"provider"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	ReviewTimeout time.Duration `mapstructure:"review_timeout"`
}

// Notifier holds webhook notification settings.
type Notifier struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// Mongo holds the persisted-store connection string.
type Mongo struct {
	URI string `mapstructure:"uri"`
}

// Redis holds the fast-cache connection string.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Archive holds the S3 destination for conversation/decision cold storage.
type Archive struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
	Region string `mapstructure:"region"`
}

// Config is the full process configuration, shared by both CLI surfaces;
// each binary only reads the sections it needs.
type Config struct {
	Exchange Exchange `mapstructure:"exchange"`
	Proxy    Proxy    `mapstructure:"proxy"`
	Trading  Trading  `mapstructure:"trading"`
	LLM      LLM      `mapstructure:"llm"`
	Notifier Notifier `mapstructure:"notifier"`
	Mongo    Mongo    `mapstructure:"mongo"`
	Redis    Redis    `mapstructure:"redis"`
	Archive  Archive  `mapstructure:"archive"`

	// Collector CLI surface
	Symbols        []string
	Timeframes     []string
	HistoryDays    int
	DataTimeoutSec int
	MaxRestarts    int

	// Agent CLI surface
	Once        bool
	Continuous  bool
	IntervalSec int
	AutoExecute bool

	DataFreshnessThresholdSec int
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("exchange.demo", false)
	v.SetDefault("exchange.rest_base", "https://www.okx.com")
	v.SetDefault("exchange.ws_public", "wss://ws.okx.com:8443/ws/v5/public")
	v.SetDefault("exchange.ws_business", "wss://ws.okx.com:8443/ws/v5/business")
	v.SetDefault("proxy.enabled", false)
	v.SetDefault("trading.symbol", "BTC-USDT-SWAP")
	v.SetDefault("trading.default_leverage", 10)
	v.SetDefault("trading.margin_mode", "isolated")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.review_timeout", 60*time.Second)
	v.SetDefault("notifier.enabled", false)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017/tradeagent")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("archive.prefix", "swapagent")
	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("data_freshness_threshold_sec", 300)
	return v
}

// LoadCollector parses collector CLI flags (spec section 6) plus env-sourced
// exchange/proxy settings.
func LoadCollector(args []string) (*Config, error) {
	v := newViper()

	fs := pflag.NewFlagSet("collector", pflag.ContinueOnError)
	symbols := fs.String("symbols", "BTC-USDT-SWAP", "comma-separated list of symbols")
	timeframes := fs.String("timeframes", "1m,5m,15m", "comma-separated list of timeframes")
	historyDays := fs.Int("history-days", 30, "default backfill history window in days")
	dataTimeout := fs.Int("data-timeout", 120, "seconds of silence before a watchdog restart")
	maxRestarts := fs.Int("max-restarts", 9999, "cap on total collector restarts")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse collector flags: %w", err)
	}

	cfg, err := bindCommon(v)
	if err != nil {
		return nil, err
	}

	if err := v.UnmarshalKey("notifier", &cfg.Notifier); err != nil {
		return nil, fmt.Errorf("unmarshal notifier config: %w", err)
	}

	cfg.Symbols = splitCSV(*symbols)
	cfg.Timeframes = splitCSV(*timeframes)
	cfg.HistoryDays = *historyDays
	cfg.DataTimeoutSec = *dataTimeout
	cfg.MaxRestarts = *maxRestarts
	return cfg, nil
}

// LoadAgent parses trading-agent CLI flags plus env-sourced settings.
func LoadAgent(args []string) (*Config, error) {
	v := newViper()

	fs := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	once := fs.Bool("once", false, "run a single analysis cycle and exit")
	continuous := fs.Bool("continuous", false, "loop analysis cycles")
	interval := fs.Int("interval", 60, "seconds between analysis ticks")
	autoExecute := fs.Bool("auto-execute", false, "permit the orchestrator to place live orders")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse agent flags: %w", err)
	}

	cfg, err := bindCommon(v)
	if err != nil {
		return nil, err
	}

	if err := v.UnmarshalKey("llm", &cfg.LLM); err != nil {
		return nil, fmt.Errorf("unmarshal llm config: %w", err)
	}
	if err := v.UnmarshalKey("notifier", &cfg.Notifier); err != nil {
		return nil, fmt.Errorf("unmarshal notifier config: %w", err)
	}
	if err := v.UnmarshalKey("trading", &cfg.Trading); err != nil {
		return nil, fmt.Errorf("unmarshal trading config: %w", err)
	}
	if err := v.UnmarshalKey("archive", &cfg.Archive); err != nil {
		return nil, fmt.Errorf("unmarshal archive config: %w", err)
	}

	cfg.Once = *once
	cfg.Continuous = *continuous
	cfg.IntervalSec = *interval
	cfg.AutoExecute = *autoExecute
	cfg.DataFreshnessThresholdSec = v.GetInt("data_freshness_threshold_sec")
	return cfg, nil
}

func bindCommon(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.UnmarshalKey("exchange", &cfg.Exchange); err != nil {
		return nil, fmt.Errorf("unmarshal exchange config: %w", err)
	}
	if err := v.UnmarshalKey("proxy", &cfg.Proxy); err != nil {
		return nil, fmt.Errorf("unmarshal proxy config: %w", err)
	}
	if err := v.UnmarshalKey("mongo", &cfg.Mongo); err != nil {
		return nil, fmt.Errorf("unmarshal mongo config: %w", err)
	}
	if err := v.UnmarshalKey("redis", &cfg.Redis); err != nil {
		return nil, fmt.Errorf("unmarshal redis config: %w", err)
	}
	return cfg, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ValidateExchange checks the fatal-at-startup precondition from spec
// section 7: missing credentials abort the process before loops start.
func (c *Config) ValidateExchange() error {
	if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" || c.Exchange.Passphrase == "" {
		return fmt.Errorf("exchange credentials missing: set AGENT_EXCHANGE_API_KEY, AGENT_EXCHANGE_API_SECRET, AGENT_EXCHANGE_PASSPHRASE")
	}
	return nil
}
