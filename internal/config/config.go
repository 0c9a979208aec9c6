package config

import (
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/vitos/quicky/internal/domain"
)

const (
	PriceSourceREST = "rest"
	PriceSourceWS   = "ws"
)

type Config struct {
	LogLevel        string           `yaml:"log_level"`
	LogFile         string           `yaml:"log_file"`
	PriceSource     string           `yaml:"price_source"`
	RecvWindowMS    int64            `yaml:"recv_window_ms"`
	HTTPTimeout     time.Duration    `yaml:"http_timeout"`
	RateLimitPerSec float64          `yaml:"rate_limit_per_sec"`
	SyncServerTime  bool             `yaml:"sync_server_time"`
	Retry           RetryConfig      `yaml:"retry"`
	Endpoints       EndpointsConfig  `yaml:"endpoints"`
	Instruments     []InstrumentSpec `yaml:"instruments"`
}

type RetryConfig struct {
	MaxRetries      uint64        `yaml:"max_retries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

type EndpointsConfig struct {
	Mainnet Endpoint `yaml:"mainnet"`
	Testnet Endpoint `yaml:"testnet"`
}

type Endpoint struct {
	REST string `yaml:"rest"`
	WS   string `yaml:"ws"`
}

type InstrumentSpec struct {
	Symbol   string `yaml:"symbol"`
	Category string `yaml:"category"`
	TickSize string `yaml:"tick_size"`
}

var defaultEndpoints = EndpointsConfig{
	Mainnet: Endpoint{REST: "https://api.bybit.com", WS: "wss://stream.bybit.com/v5/public"},
	Testnet: Endpoint{REST: "https://api-testnet.bybit.com", WS: "wss://stream-testnet.bybit.com/v5/public"},
}

func Default() *Config {
	return &Config{
		LogLevel:        "warn",
		PriceSource:     PriceSourceREST,
		RecvWindowMS:    5000,
		HTTPTimeout:     10 * time.Second,
		RateLimitPerSec: 10,
		Retry: RetryConfig{
			MaxRetries:      3,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
		},
		Endpoints: defaultEndpoints,
	}
}

// Load reads the YAML file at path on top of the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "decode config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "validate config %s", path)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	switch c.PriceSource {
	case PriceSourceREST, PriceSourceWS:
	default:
		return errors.Errorf("price_source must be %q or %q, got %q", PriceSourceREST, PriceSourceWS, c.PriceSource)
	}
	if c.RecvWindowMS <= 0 {
		return errors.Errorf("recv_window_ms must be positive, got %d", c.RecvWindowMS)
	}
	if c.HTTPTimeout <= 0 {
		return errors.Errorf("http_timeout must be positive, got %s", c.HTTPTimeout)
	}
	if c.Retry.InitialInterval <= 0 || c.Retry.MaxInterval < c.Retry.InitialInterval {
		return errors.New("retry intervals must be positive and max_interval >= initial_interval")
	}
	if _, err := c.InstrumentList(); err != nil {
		return err
	}
	return nil
}

// InstrumentList converts the configured instruments to domain values.
func (c *Config) InstrumentList() ([]domain.Instrument, error) {
	out := make([]domain.Instrument, 0, len(c.Instruments))
	for _, spec := range c.Instruments {
		symbol := strings.ToUpper(strings.TrimSpace(spec.Symbol))
		if symbol == "" {
			return nil, errors.New("instrument without symbol")
		}
		tick, err := decimal.NewFromString(spec.TickSize)
		if err != nil {
			return nil, errors.Wrapf(err, "instrument %s: tick_size", symbol)
		}
		if !tick.IsPositive() {
			return nil, errors.Errorf("instrument %s: tick_size must be positive", symbol)
		}
		category := spec.Category
		if category == "" {
			category = domain.CategoryInverse
		}
		out = append(out, domain.Instrument{Symbol: symbol, Category: category, TickSize: tick})
	}
	return out, nil
}

// EndpointFor returns the endpoints configured for mode, falling back to the
// public Bybit hosts for anything left empty.
func (c *Config) EndpointFor(mode domain.NetworkMode) Endpoint {
	ep, def := c.Endpoints.Mainnet, defaultEndpoints.Mainnet
	if mode == domain.Testnet {
		ep, def = c.Endpoints.Testnet, defaultEndpoints.Testnet
	}
	if ep.REST == "" {
		ep.REST = def.REST
	}
	if ep.WS == "" {
		ep.WS = def.WS
	}
	return ep
}
