// Package config provides configuration loading and management for the users API server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/synthetic-users-api/internal/telemetry"
)

// EnvPrefix is the prefix of environment variables read by the CLI
const EnvPrefix = "USERS_API"

const (
	// DefaultDatasetSize is the number of users generated when no size is configured
	DefaultDatasetSize = 1_000_000

	// MaxDatasetSize bounds the dataset so an oversized value fails validation instead of allocation
	MaxDatasetSize = 50_000_000

	// DefaultChunkSize is the number of records generated between progress reports
	DefaultChunkSize = 50_000

	// DefaultDefaultLimit is the page size used when a request has none
	DefaultDefaultLimit = 30

	// DefaultMaxLimit is the largest accepted page size
	DefaultMaxLimit = 1000

	// DefaultMaxConcurrentScans bounds concurrent search and sort passes
	DefaultMaxConcurrentScans = 4
)

const (
	// PolicyBackground serves the populated prefix while generation runs
	PolicyBackground = "background"
	// PolicyBlocking makes requests wait for the complete dataset
	PolicyBlocking = "blocking"

	// StartupLazy generates on the first request
	StartupLazy = "lazy"
	// StartupEager generates when the server starts
	StartupEager = "eager"

	// ParamPolicyPermissive replaces malformed parameters with defaults
	ParamPolicyPermissive = "permissive"
	// ParamPolicyStrict rejects malformed parameters with 400
	ParamPolicyStrict = "strict"

	// NameSourceBuiltin uses fixed name lists
	NameSourceBuiltin = "builtin"
	// NameSourceFaker uses gofakeit
	NameSourceFaker = "faker"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// EvalSymlinks also cleans the path
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Dataset   DatasetConfig     `yaml:"dataset"`
	Query     QueryConfig       `yaml:"query"`
	CORS      CORSConfig        `yaml:"cors"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// DatasetConfig controls how the synthetic dataset is generated
type DatasetConfig struct {
	// Size is the number of users, 1..MaxDatasetSize
	Size int `yaml:"size"`

	// Seed makes generation reproducible; 0 picks a random seed
	Seed uint64 `yaml:"seed,omitempty"`

	ChunkSize int `yaml:"chunkSize,omitempty"`

	// Policy is "background" or "blocking"
	Policy string `yaml:"policy,omitempty"`

	// Startup is "lazy" or "eager"
	Startup string `yaml:"startup,omitempty"`

	// NameSource is "builtin" or "faker"
	NameSource string `yaml:"nameSource,omitempty"`
}

// QueryConfig controls list request handling
type QueryConfig struct {
	DefaultLimit int `yaml:"defaultLimit,omitempty"`
	MaxLimit     int `yaml:"maxLimit,omitempty"`

	// ParamPolicy is "permissive" or "strict"
	ParamPolicy string `yaml:"paramPolicy,omitempty"`

	MaxConcurrentScans int `yaml:"maxConcurrentScans,omitempty"`
}

// CORSConfig lists the origins browsers may call the API from
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
	MaxAge         int      `yaml:"maxAge,omitempty"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Size:       DefaultDatasetSize,
			ChunkSize:  DefaultChunkSize,
			Policy:     PolicyBackground,
			Startup:    StartupLazy,
			NameSource: NameSourceBuiltin,
		},
		Query: QueryConfig{
			DefaultLimit:       DefaultDefaultLimit,
			MaxLimit:           DefaultMaxLimit,
			ParamPolicy:        ParamPolicyPermissive,
			MaxConcurrentScans: DefaultMaxConcurrentScans,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			MaxAge:         300,
		},
	}
}

// LoadConfig returns the defaults overlaid with the YAML file, if one is given
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	config := Default()

	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error

	d := c.Dataset
	if d.Size < 1 || d.Size > MaxDatasetSize {
		errs = append(errs, fmt.Errorf("dataset.size must be between 1 and %d, got %d", MaxDatasetSize, d.Size))
	}
	if d.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("dataset.chunkSize must not be negative, got %d", d.ChunkSize))
	}
	errs = appendIfNotOneOf(errs, "dataset.policy", d.Policy, PolicyBackground, PolicyBlocking)
	errs = appendIfNotOneOf(errs, "dataset.startup", d.Startup, StartupLazy, StartupEager)
	errs = appendIfNotOneOf(errs, "dataset.nameSource", d.NameSource, NameSourceBuiltin, NameSourceFaker)

	q := c.Query
	if q.MaxLimit < 1 {
		errs = append(errs, fmt.Errorf("query.maxLimit must be at least 1, got %d", q.MaxLimit))
	}
	if q.DefaultLimit < 1 || q.DefaultLimit > q.MaxLimit {
		errs = append(errs, fmt.Errorf("query.defaultLimit must be between 1 and query.maxLimit (%d), got %d",
			q.MaxLimit, q.DefaultLimit))
	}
	if q.MaxConcurrentScans < 1 {
		errs = append(errs, fmt.Errorf("query.maxConcurrentScans must be at least 1, got %d", q.MaxConcurrentScans))
	}
	errs = appendIfNotOneOf(errs, "query.paramPolicy", q.ParamPolicy, ParamPolicyPermissive, ParamPolicyStrict)

	if len(c.CORS.AllowedOrigins) == 0 {
		errs = append(errs, fmt.Errorf("cors.allowedOrigins must list at least one origin"))
	}
	if c.CORS.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("cors.maxAge must not be negative, got %d", c.CORS.MaxAge))
	}

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

func appendIfNotOneOf(errs []error, field, value string, allowed ...string) []error {
	if slices.Contains(allowed, value) {
		return errs
	}
	return append(errs, fmt.Errorf("%s must be one of %v, got %q", field, allowed, value))
}
