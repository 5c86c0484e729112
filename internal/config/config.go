package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the basketd daemon.
type Config struct {
	Storage Storage       `yaml:"storage"`
	Server  Server        `yaml:"server"`
	Gateway Gateway       `yaml:"gateway"`
	Alpaca  Alpaca        `yaml:"alpaca"`
	Logging Logging       `yaml:"logging"`
	Trading TradingConfig `yaml:"trading"`
	Notify  Notify        `yaml:"notify"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir   string `yaml:"data_dir"`
	CachePath string `yaml:"cache_path"`
}

// Server holds network listener configuration for the dashboard API.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Gateway holds the brokerage gateway endpoint and the per-request
// identification headers it expects.
type Gateway struct {
	BaseURL       string `yaml:"base_url"`
	CustomerID    string `yaml:"customer_id"`
	CustomerEmail string `yaml:"customer_email"`

	// RequestsPerMin throttles outbound gateway calls; 0 disables throttling.
	RequestsPerMin int `yaml:"requests_per_min"`
}

// Alpaca holds credentials for the Alpaca broker backend.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TradingConfig defines execution and polling parameters.
type TradingConfig struct {
	// Broker selects the execution backend: "gateway", "alpaca", or
	// "simulator".
	Broker string `yaml:"broker"`

	PollIntervalSec  int `yaml:"poll_interval_sec"`
	OrderTimeoutSec  int `yaml:"order_timeout_sec"`
	InterOrderPaceMS int `yaml:"inter_order_pace_ms"`
	SettleDelayMS    int `yaml:"settle_delay_ms"`
}

// Notify holds the optional transaction-notification endpoint.
type Notify struct {
	URL string `yaml:"url"`
}

// PollInterval returns the polling cadence as a duration.
func (t TradingConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalSec) * time.Second
}

// OrderTimeout returns the per-placement timeout as a duration.
func (t TradingConfig) OrderTimeout() time.Duration {
	return time.Duration(t.OrderTimeoutSec) * time.Second
}

// InterOrderPace returns the delay inserted between sequential placements.
func (t TradingConfig) InterOrderPace() time.Duration {
	return time.Duration(t.InterOrderPaceMS) * time.Millisecond
}

// SettleDelay returns the post-execution wait before refreshing snapshots.
func (t TradingConfig) SettleDelay() time.Duration {
	return time.Duration(t.SettleDelayMS) * time.Millisecond
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, fills defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in the documented defaults for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Trading.Broker == "" {
		cfg.Trading.Broker = "gateway"
	}
	if cfg.Trading.PollIntervalSec == 0 {
		cfg.Trading.PollIntervalSec = 5
	}
	if cfg.Trading.OrderTimeoutSec == 0 {
		cfg.Trading.OrderTimeoutSec = 15
	}
	if cfg.Trading.InterOrderPaceMS == 0 {
		cfg.Trading.InterOrderPaceMS = 300
	}
	if cfg.Trading.SettleDelayMS == 0 {
		cfg.Trading.SettleDelayMS = 1500
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// validate rejects configurations that cannot produce a working session.
func (c *Config) validate() error {
	switch c.Trading.Broker {
	case "gateway":
		if c.Gateway.BaseURL == "" {
			return fmt.Errorf("gateway.base_url is required for the gateway broker")
		}
		if c.Gateway.CustomerID == "" {
			return fmt.Errorf("gateway.customer_id is required for the gateway broker")
		}
	case "alpaca":
		if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
			return fmt.Errorf("alpaca.api_key and alpaca.api_secret are required for the alpaca broker")
		}
	case "simulator":
	default:
		return fmt.Errorf("unknown trading.broker %q", c.Trading.Broker)
	}
	if c.Storage.CachePath == "" {
		return fmt.Errorf("storage.cache_path cannot be empty")
	}
	if c.Trading.PollIntervalSec < 1 {
		return fmt.Errorf("trading.poll_interval_sec must be at least 1, got %d", c.Trading.PollIntervalSec)
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("CACHE_PATH"); v != "" {
		cfg.Storage.CachePath = v
	}

	if v := os.Getenv("GATEWAY_BASE_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("GATEWAY_CUSTOMER_ID"); v != "" {
		cfg.Gateway.CustomerID = v
	}
	if v := os.Getenv("GATEWAY_CUSTOMER_EMAIL"); v != "" {
		cfg.Gateway.CustomerEmail = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("NOTIFY_URL"); v != "" {
		cfg.Notify.URL = v
	}

	// Canonical Alpaca env var names take precedence over the ALPACA_* forms.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
