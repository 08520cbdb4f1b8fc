package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/papertrade/market"
)

// Config is the complete papertrade configuration
type Config struct {
	Database DatabaseConfig `json:"database" yaml:"database"`
	Account  AccountConfig  `json:"account" yaml:"account"`
	Oracle   OracleConfig   `json:"oracle" yaml:"oracle"`
	Cache    CacheConfig    `json:"cache" yaml:"cache"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// DatabaseConfig selects the storage backend
type DatabaseConfig struct {
	Driver      string        `json:"driver" yaml:"driver"` // "sqlite" or "postgres"
	Path        string        `json:"path,omitempty" yaml:"path,omitempty"`
	URL         string        `json:"url,omitempty" yaml:"url,omitempty"`
	MaxConns    int32         `json:"max_conns,omitempty" yaml:"max_conns,omitempty"`
	MinConns    int32         `json:"min_conns,omitempty" yaml:"min_conns,omitempty"`
	BusyTimeout time.Duration `json:"busy_timeout,omitempty" yaml:"busy_timeout,omitempty"`
}

// AccountConfig holds the defaults for new accounts
type AccountConfig struct {
	Currency    string `json:"currency" yaml:"currency"`
	InitialCash string `json:"initial_cash" yaml:"initial_cash"`
}

// InitialCashAmount parses InitialCash.
func (a AccountConfig) InitialCashAmount() (decimal.Decimal, error) {
	return market.ParseAmount(a.InitialCash)
}

// OracleConfig selects where prices come from
type OracleConfig struct {
	Type            string                 `json:"type" yaml:"type"` // "static" or "iex"
	BaseURL         string                 `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Token           string                 `json:"token,omitempty" yaml:"token,omitempty"`
	Timeout         time.Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxRetries      int                    `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	RateLimitPerMin int                    `json:"rate_limit_per_min,omitempty" yaml:"rate_limit_per_min,omitempty"`
	Static          map[string]StaticQuote `json:"static,omitempty" yaml:"static,omitempty"`
}

// StaticQuote is a fixed price served by the static oracle
type StaticQuote struct {
	Name  string `json:"name" yaml:"name"`
	Price string `json:"price" yaml:"price"`
}

// Quotes converts the static table to market quotes, sorted by symbol.
func (o OracleConfig) Quotes() ([]market.Quote, error) {
	symbols := make([]string, 0, len(o.Static))
	for s := range o.Static {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	out := make([]market.Quote, 0, len(symbols))
	for _, s := range symbols {
		sq := o.Static[s]
		price, err := market.ParseAmount(sq.Price)
		if err != nil {
			return nil, fmt.Errorf("oracle.static.%s: %w", s, err)
		}
		out = append(out, market.Quote{Symbol: market.NormalizeSymbol(s), Name: sq.Name, Price: price})
	}
	return out, nil
}

// CacheConfig configures the Redis quote cache
type CacheConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	Addr      string        `json:"addr,omitempty" yaml:"addr,omitempty"`
	Password  string        `json:"password,omitempty" yaml:"password,omitempty"`
	DB        int           `json:"db,omitempty" yaml:"db,omitempty"`
	TTL       time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	KeyPrefix string        `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr         string        `json:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`
	WriteTimeout time.Duration `json:"write_timeout,omitempty" yaml:"write_timeout,omitempty"`
}

// LogConfig configures slog output
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text or json
}

// LoadFromFile loads configuration from a file (YAML first, JSON fallback)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Try YAML first, fall back to JSON
	cfg, err := decode(data, yaml.Unmarshal)
	if err != nil {
		var jerr error
		if cfg, jerr = decode(data, json.Unmarshal); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// decode fills a Default config from data. A static quote table in the file
// replaces the default table instead of merging into it.
func decode(data []byte, unmarshal func([]byte, any) error) (*Config, error) {
	cfg := Default()
	defaults := cfg.Oracle.Static
	cfg.Oracle.Static = nil
	if err := unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Oracle.Static == nil {
		cfg.Oracle.Static = defaults
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be 'sqlite' or 'postgres'")
	}

	if c.Account.Currency != market.Currency {
		return fmt.Errorf("account.currency must be %s", market.Currency)
	}
	cash, err := c.Account.InitialCashAmount()
	if err != nil {
		return fmt.Errorf("account.initial_cash: %w", err)
	}
	if cash.IsNegative() {
		return fmt.Errorf("account.initial_cash must not be negative")
	}

	switch c.Oracle.Type {
	case "static":
		quotes, err := c.Oracle.Quotes()
		if err != nil {
			return err
		}
		for _, q := range quotes {
			if !q.Price.IsPositive() {
				return fmt.Errorf("oracle.static.%s: price must be positive", q.Symbol)
			}
		}
	case "iex":
		if c.Oracle.Token == "" {
			return fmt.Errorf("oracle.token is required for iex")
		}
	default:
		return fmt.Errorf("oracle.type must be 'static' or 'iex'")
	}

	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache.addr is required when the cache is enabled")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be 'text' or 'json'")
	}
	return nil
}

// ApplyEnv overrides selected fields from PAPERTRADE_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	set := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set("PAPERTRADE_DB_DRIVER", &c.Database.Driver)
	set("PAPERTRADE_DB_PATH", &c.Database.Path)
	set("PAPERTRADE_DB_URL", &c.Database.URL)
	set("PAPERTRADE_ORACLE_TYPE", &c.Oracle.Type)
	set("PAPERTRADE_IEX_TOKEN", &c.Oracle.Token)
	set("PAPERTRADE_REDIS_ADDR", &c.Cache.Addr)
	set("PAPERTRADE_REDIS_PASSWORD", &c.Cache.Password)
	set("PAPERTRADE_ADDR", &c.Server.Addr)
	set("PAPERTRADE_LOG_LEVEL", &c.Log.Level)
	set("PAPERTRADE_LOG_FORMAT", &c.Log.Format)

	if v := getenv("PAPERTRADE_CACHE_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PAPERTRADE_CACHE_ENABLED: %w", err)
		}
		c.Cache.Enabled = b
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:      "sqlite",
			Path:        "./papertrade.db",
			BusyTimeout: 5 * time.Second,
		},
		Account: AccountConfig{
			Currency:    market.Currency,
			InitialCash: "10000.00",
		},
		Oracle: OracleConfig{
			Type:            "static",
			Timeout:         5 * time.Second,
			MaxRetries:      2,
			RateLimitPerMin: 600,
			Static: map[string]StaticQuote{
				"AAPL": {Name: "Apple Inc.", Price: "189.25"},
				"MSFT": {Name: "Microsoft Corporation", Price: "410.10"},
				"NFLX": {Name: "Netflix, Inc.", Price: "480.00"},
			},
		},
		Cache: CacheConfig{
			Addr:      "localhost:6379",
			TTL:       15 * time.Second,
			KeyPrefix: "papertrade",
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
