// Package config loads the node configuration from TOML.
//
// Defaults are applied first, then any key present in the file overrides
// them. Relative paths in the file are resolved against the file's
// directory.
//
//	database = "node.db"
//	manifest = "forum.cue"
//
//	[log]
//	level  = "debug"
//	format = "json"
//
//	[limits]
//	max_entry_size = 16000000
//	max_tag_size   = 400
//
//	[retry]
//	ceiling      = 10
//	backoff_base = "1s"
//	backoff_max  = "5m"
//
//	[network]
//	timeout = "10s"
//	peers   = ["peer.db"]
//
//	[metrics]
//	listen = ":9464"
//
//	[keys]
//	revoked = ["<agent key>"]
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/roach88/sysval/internal/dht"
	"github.com/roach88/sysval/internal/network"
	"github.com/roach88/sysval/internal/sysvalidate"
)

// DefaultDatabase is the database path used when none is configured.
const DefaultDatabase = "sysval.db"

// Config is the complete node configuration.
type Config struct {
	Database string
	Manifest string
	Log      LogConfig
	Limits   LimitsConfig
	Retry    RetryConfig
	Network  NetworkConfig
	Metrics  MetricsConfig
	Revoked  []dht.AgentPubKey
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string
	Format string
}

// LimitsConfig bounds entry and link tag sizes in bytes.
type LimitsConfig struct {
	MaxEntrySize int
	MaxTagSize   int
}

// RetryConfig controls how ops waiting on dependencies are retried.
type RetryConfig struct {
	Ceiling     uint32
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// NetworkConfig bounds each network lookup. Peers lists other nodes'
// databases to query; with none the node is offline.
type NetworkConfig struct {
	Timeout time.Duration
	Peers   []string
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Database: DefaultDatabase,
		Log:      LogConfig{Level: "info", Format: "text"},
		Limits: LimitsConfig{
			MaxEntrySize: sysvalidate.MaxEntrySize,
			MaxTagSize:   sysvalidate.MaxTagSize,
		},
		Retry: RetryConfig{
			Ceiling:     sysvalidate.DefaultRetryCeiling,
			BackoffBase: sysvalidate.DefaultBackoffBase,
			BackoffMax:  sysvalidate.DefaultBackoffMax,
		},
		Network: NetworkConfig{Timeout: network.DefaultTimeout},
	}
}

type fileConfig struct {
	Database string `toml:"database"`
	Manifest string `toml:"manifest"`
	Log      struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	Limits struct {
		MaxEntrySize int `toml:"max_entry_size"`
		MaxTagSize   int `toml:"max_tag_size"`
	} `toml:"limits"`
	Retry struct {
		Ceiling     int64  `toml:"ceiling"`
		BackoffBase string `toml:"backoff_base"`
		BackoffMax  string `toml:"backoff_max"`
	} `toml:"retry"`
	Network struct {
		Timeout string   `toml:"timeout"`
		Peers   []string `toml:"peers"`
	} `toml:"network"`
	Metrics struct {
		Listen string `toml:"listen"`
	} `toml:"metrics"`
	Keys struct {
		Revoked []string `toml:"revoked"`
	} `toml:"keys"`
}

// Load reads the file at path over the defaults and validates the result.
// An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("load config: unknown keys: %s", strings.Join(keys, ", "))
	}

	dir := filepath.Dir(path)
	if meta.IsDefined("database") {
		cfg.Database = resolve(dir, raw.Database)
	}
	if meta.IsDefined("manifest") {
		cfg.Manifest = resolve(dir, raw.Manifest)
	}
	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(raw.Log.Level))
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = strings.ToLower(strings.TrimSpace(raw.Log.Format))
	}
	if meta.IsDefined("limits", "max_entry_size") {
		cfg.Limits.MaxEntrySize = raw.Limits.MaxEntrySize
	}
	if meta.IsDefined("limits", "max_tag_size") {
		cfg.Limits.MaxTagSize = raw.Limits.MaxTagSize
	}
	if meta.IsDefined("retry", "ceiling") {
		if raw.Retry.Ceiling < 0 {
			return Config{}, fmt.Errorf("load config: retry.ceiling must not be negative")
		}
		cfg.Retry.Ceiling = uint32(raw.Retry.Ceiling)
	}
	if meta.IsDefined("retry", "backoff_base") {
		if cfg.Retry.BackoffBase, err = parseDuration("retry.backoff_base", raw.Retry.BackoffBase); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("retry", "backoff_max") {
		if cfg.Retry.BackoffMax, err = parseDuration("retry.backoff_max", raw.Retry.BackoffMax); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("network", "timeout") {
		if cfg.Network.Timeout, err = parseDuration("network.timeout", raw.Network.Timeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("network", "peers") {
		cfg.Network.Peers = nil
		for _, p := range raw.Network.Peers {
			if p = resolve(dir, p); p != "" {
				cfg.Network.Peers = append(cfg.Network.Peers, p)
			}
		}
	}
	if meta.IsDefined("metrics", "listen") {
		cfg.Metrics.Listen = strings.TrimSpace(raw.Metrics.Listen)
	}
	if meta.IsDefined("keys", "revoked") {
		cfg.Revoked = normalizeKeys(raw.Keys.Revoked)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database) == "" {
		errs = append(errs, errors.New("database must not be empty"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Limits.MaxEntrySize <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_entry_size must be positive, got %d", c.Limits.MaxEntrySize))
	}
	if c.Limits.MaxTagSize <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_tag_size must be positive, got %d", c.Limits.MaxTagSize))
	}
	if c.Retry.BackoffBase <= 0 {
		errs = append(errs, fmt.Errorf("retry.backoff_base must be positive, got %s", c.Retry.BackoffBase))
	}
	if c.Retry.BackoffMax < c.Retry.BackoffBase {
		errs = append(errs, fmt.Errorf("retry.backoff_max %s is below retry.backoff_base %s", c.Retry.BackoffMax, c.Retry.BackoffBase))
	}
	if c.Network.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("network.timeout must be positive, got %s", c.Network.Timeout))
	}
	return errors.Join(errs...)
}

// SlogLevel parses Log.Level.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return level, nil
}

func parseDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func resolve(dir, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func normalizeKeys(in []string) []dht.AgentPubKey {
	out := make([]dht.AgentPubKey, 0, len(in))
	for _, k := range in {
		if v := strings.ToLower(strings.TrimSpace(k)); v != "" {
			out = append(out, dht.AgentPubKey(v))
		}
	}
	return out
}
