// Package config loads the TOML configuration for connecting to a node and
// running the monitor, drift, and archive components. Credentials can be
// overridden from the environment so they never have to live on disk.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Environment variables honored by Load. They override the corresponding
// [node] file settings.
const (
	EnvRPCHost = "BTCSTATS_RPC_HOST"
	EnvRPCUser = "BTCSTATS_RPC_USER"
	EnvRPCPass = "BTCSTATS_RPC_PASS"
)

var ErrMissingCredentials = errors.New("config: no username/password and no cookie file configured")

// Config represents the complete tool configuration.
type Config struct {
	Node    NodeConfig    `toml:"node"`
	Monitor MonitorConfig `toml:"monitor"`
	Sample  SampleConfig  `toml:"sample"`
	Archive ArchiveConfig `toml:"archive"`
	Cache   CacheConfig   `toml:"cache"`
	Logging LoggingConfig `toml:"logging"`
}

// NodeConfig contains RPC endpoint settings.
type NodeConfig struct {
	// Host is host:port, matching bitcoind's rpcconnect/rpcport pair.
	Host     string `toml:"host"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	// CookieFile points at bitcoind's .cookie; used when no username is set.
	CookieFile     string `toml:"cookie_file"`
	UseTLS         bool   `toml:"use_tls"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// MonitorConfig contains polling loop settings.
type MonitorConfig struct {
	IntervalSeconds int    `toml:"interval_seconds"`
	Format          string `toml:"format"`
	Dashboard       bool   `toml:"dashboard"`
}

// SampleConfig contains defaults for drift analysis sampling.
type SampleConfig struct {
	ZScore         float64 `toml:"z_score"`
	MarginError    float64 `toml:"margin_error"`
	StdDeviation   float64 `toml:"std_deviation"`
	FullPopulation bool    `toml:"full_population"`
	Workers        int     `toml:"workers"`
}

// ArchiveConfig contains snapshot archive settings.
type ArchiveConfig struct {
	Enabled         bool   `toml:"enabled"`
	DBPath          string `toml:"db_path"`
	QueueSize       int    `toml:"queue_size"`
	BatchSize       int    `toml:"batch_size"`
	BatchIntervalMS int    `toml:"batch_interval_ms"`
	RetentionDays   int    `toml:"retention_days"`
	CleanupMinutes  int    `toml:"cleanup_minutes"`
}

// CacheConfig contains header cache settings.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// LoggingConfig contains log file settings. Console logging is always on
// unless the dashboard owns the terminal.
type LoggingConfig struct {
	Enabled       bool   `toml:"enabled"`
	Dir           string `toml:"dir"`
	RetentionDays int    `toml:"retention_days"`
}

// Output formats accepted by monitor.format and the -format flag.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Load loads configuration from a TOML file, applies environment overrides,
// and normalizes defaults. A missing file is not an error when the
// environment provides the endpoint; callers get the defaults.
func Load(filename string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(filename)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", filename, err)
		}
	case os.IsNotExist(err) && os.Getenv(EnvRPCHost) != "":
		// Pure-environment operation.
	default:
		return nil, fmt.Errorf("config: failed to read %s: %w", filename, err)
	}

	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if host := os.Getenv(EnvRPCHost); host != "" {
		c.Node.Host = host
	}
	if user := os.Getenv(EnvRPCUser); user != "" {
		c.Node.Username = user
	}
	if pass := os.Getenv(EnvRPCPass); pass != "" {
		c.Node.Password = pass
	}
}

func (c *Config) normalize() {
	if c.Node.Host == "" {
		c.Node.Host = "127.0.0.1:8332"
	}
	if c.Node.TimeoutSeconds <= 0 {
		c.Node.TimeoutSeconds = 30
	}
	if c.Monitor.IntervalSeconds <= 0 {
		c.Monitor.IntervalSeconds = 15
	}
	if c.Monitor.Format == "" {
		c.Monitor.Format = FormatTable
	}
	c.Monitor.Format = strings.ToLower(strings.TrimSpace(c.Monitor.Format))
	if c.Sample.ZScore == 0 {
		c.Sample.ZScore = 1.96
	}
	if c.Sample.MarginError == 0 {
		c.Sample.MarginError = 0.05
	}
	if c.Sample.StdDeviation == 0 {
		c.Sample.StdDeviation = 0.5
	}
	if c.Sample.Workers <= 0 {
		c.Sample.Workers = 8
	}
	if c.Archive.DBPath == "" {
		c.Archive.DBPath = "data/snapshots.db"
	}
	if c.Cache.Path == "" {
		c.Cache.Path = "data/headers"
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = 7
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "data/logs"
	}
}

func (c *Config) validate() error {
	switch c.Monitor.Format {
	case FormatTable, FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("config: unknown output format %q", c.Monitor.Format)
	}
	return nil
}

// HasCredentials reports whether some auth source is configured.
func (c *Config) HasCredentials() bool {
	return c.Node.Username != "" || c.Node.CookieFile != ""
}

// Print displays the effective configuration with secrets elided.
func (c *Config) Print() {
	scheme := "http"
	if c.Node.UseTLS {
		scheme = "https"
	}
	fmt.Printf("Node: %s://%s (timeout %ds)\n", scheme, c.Node.Host, c.Node.TimeoutSeconds)
	switch {
	case c.Node.Username != "":
		fmt.Printf("Auth: user %s\n", c.Node.Username)
	case c.Node.CookieFile != "":
		fmt.Printf("Auth: cookie file %s\n", c.Node.CookieFile)
	default:
		fmt.Printf("Auth: none\n")
	}
	fmt.Printf("Monitor: every %ds, format %s\n", c.Monitor.IntervalSeconds, c.Monitor.Format)
	if c.Archive.Enabled {
		fmt.Printf("Archive: %s (retention %dd)\n", c.Archive.DBPath, c.Archive.RetentionDays)
	}
	if c.Cache.Enabled {
		fmt.Printf("Header cache: %s\n", c.Cache.Path)
	}
}
