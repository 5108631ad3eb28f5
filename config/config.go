// Package config loads a pool setup from YAML.
//
//	namespace: app
//	tagging: true
//	default_ttl: 10m
//	log:
//	  level: info
//	drivers:            # fastest first; more than one builds a chain
//	  - type: memory
//	    capacity: 10000
//	  - type: redis
//	    addr: localhost:6379
//	    prefix: "app:"
//	versions:
//	  type: redis       # atomic namespace version bumps
//	  addr: localhost:6379
//
// Priority: defaults, then the file, then CACHEPOOL_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/cachepool/driver"
)

const (
	EnvNamespace = "CACHEPOOL_NAMESPACE"
	EnvLogLevel  = "CACHEPOOL_LOG_LEVEL"
)

// Driver types.
const (
	Memory    = "memory"
	File      = "file"
	SQLite    = "sqlite"
	Redis     = "redis"
	Ristretto = "ristretto"
	BigCache  = "bigcache"
)

type Config struct {
	Namespace  string         `yaml:"namespace"`
	Tagging    bool           `yaml:"tagging"`
	DefaultTTL time.Duration  `yaml:"default_ttl"`
	Log        LogConfig      `yaml:"log"`
	Drivers    []DriverConfig `yaml:"drivers"`
	// Versions selects where namespace versions live. Empty type keeps them
	// in the driver stack.
	Versions DriverConfig `yaml:"versions"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DriverConfig holds the settings of one tier. Only the fields of Type apply.
type DriverConfig struct {
	Type string `yaml:"type"`

	// memory
	Capacity int `yaml:"capacity"`

	// file
	Dir      string `yaml:"dir"`
	Compress bool   `yaml:"compress"`

	// sqlite
	Path  string `yaml:"path"`
	Table string `yaml:"table"`

	// redis
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`

	// ristretto, bigcache: expected number of records
	Entries int64 `yaml:"entries"`

	// ristretto
	MaxCost int64 `yaml:"max_cost"`

	// bigcache
	LifeWindow time.Duration `yaml:"life_window"`
	MaxSizeMB  int           `yaml:"max_size_mb"`
}

// Default returns a single unbounded memory tier logging at info.
func Default() *Config {
	return &Config{
		Log:     LogConfig{Level: "info", Format: "console"},
		Drivers: []DriverConfig{{Type: Memory}},
	}
}

// Load reads path (if not empty), applies env overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Unknown fields are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from CACHEPOOL_* variables.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvNamespace); ok {
		c.Namespace = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

func (c *Config) Validate() error {
	var errs []error
	if err := driver.ValidateNamespace(c.Namespace); err != nil {
		errs = append(errs, err)
	}
	if c.DefaultTTL < 0 {
		errs = append(errs, errors.New("default_ttl must not be negative"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q: want debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want json or console", c.Log.Format))
	}
	if len(c.Drivers) == 0 {
		errs = append(errs, errors.New("at least one driver is required"))
	}
	for i, d := range c.Drivers {
		if err := d.validate(); err != nil {
			errs = append(errs, fmt.Errorf("drivers[%d]: %w", i, err))
		}
	}
	switch c.Versions.Type {
	case "":
	case Redis:
		if c.Versions.Addr == "" {
			errs = append(errs, errors.New("versions: redis requires addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("versions: unsupported type %q", c.Versions.Type))
	}
	return errors.Join(errs...)
}

func (d DriverConfig) validate() error {
	switch d.Type {
	case Memory:
		if d.Capacity < 0 {
			return errors.New("memory: capacity must not be negative")
		}
	case File:
		if d.Dir == "" {
			return errors.New("file: dir is required")
		}
	case SQLite:
		if d.Path == "" {
			return errors.New("sqlite: path is required")
		}
	case Redis:
		if d.Addr == "" {
			return errors.New("redis: addr is required")
		}
	case Ristretto:
		if d.MaxCost <= 0 {
			return errors.New("ristretto: max_cost must be positive")
		}
	case BigCache:
		if d.LifeWindow <= 0 {
			return errors.New("bigcache: life_window must be positive")
		}
	case "":
		return errors.New("type is required")
	default:
		return fmt.Errorf("unsupported type %q", d.Type)
	}
	return nil
}
