// Package config loads run settings from a YAML file and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/robinmordasiewicz/specdrift/prober"
)

// Environment variables that override file settings.
const (
	EnvBaseURL   = "SPECDRIFT_BASE_URL"
	EnvToken     = "SPECDRIFT_API_TOKEN"
	EnvWorkers   = "SPECDRIFT_WORKERS"
	EnvRate      = "SPECDRIFT_RATE_PER_SECOND"
	EnvBudget    = "SPECDRIFT_BUDGET"
	EnvThreshold = "SPECDRIFT_THRESHOLD"
	EnvLedger    = "SPECDRIFT_LEDGER"
)

// Config is the full set of run settings.
type Config struct {
	BaseURL    string            `yaml:"base_url"`
	Token      string            `yaml:"token"`
	AuthScheme string            `yaml:"auth_scheme"`
	Headers    map[string]string `yaml:"headers"`

	Workers        int           `yaml:"workers"`
	RatePerSecond  float64       `yaml:"rate_per_second"`
	Burst          int           `yaml:"burst"`
	Retries        int           `yaml:"retries"`
	Backoff        time.Duration `yaml:"backoff"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Budget         time.Duration `yaml:"budget"`
	SearchLimit    int           `yaml:"search_limit"`

	UnrollDepth int     `yaml:"unroll_depth"`
	Threshold   float64 `yaml:"threshold"`
	MaxContexts int     `yaml:"max_contexts"`

	// Params supplies values for path and query parameters by name.
	Params map[string]string `yaml:"params"`
	// Operations restricts the run to these operationIds; empty means all.
	Operations  []string `yaml:"operations"`
	ApplyFilter string   `yaml:"apply_filter"`
	Ledger      string   `yaml:"ledger"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		AuthScheme:     "APIToken",
		Workers:        prober.DefaultWorkers,
		RatePerSecond:  2,
		Burst:          1,
		Retries:        prober.DefaultRetries,
		Backoff:        prober.DefaultBackoff,
		RequestTimeout: prober.DefaultRequestTimeout,
		Budget:         prober.DefaultBudget,
		SearchLimit:    12,
		UnrollDepth:    2,
		Threshold:      1.0,
		MaxContexts:    2,
	}
}

// Load reads an optional .env file, then the YAML file at path (skipped
// when path is empty), then applies environment overrides. Variables
// already set in the environment are not overwritten by .env.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := Decode(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Decode overlays YAML settings onto cfg. Unknown keys are rejected and an
// empty document leaves cfg unchanged.
func Decode(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBaseURL); ok {
		c.BaseURL = v
	}
	if v, ok := lookup(EnvToken); ok {
		c.Token = v
	}
	if v, ok := lookup(EnvLedger); ok {
		c.Ledger = v
	}
	if v, ok := lookup(EnvWorkers); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		c.Workers = n
	}
	if v, ok := lookup(EnvRate); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRate, err)
		}
		c.RatePerSecond = f
	}
	if v, ok := lookup(EnvThreshold); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvThreshold, err)
		}
		c.Threshold = f
	}
	if v, ok := lookup(EnvBudget); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBudget, err)
		}
		c.Budget = d
	}
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("rate_per_second must not be negative"))
	}
	if c.Burst <= 0 {
		errs = append(errs, fmt.Errorf("burst must be positive, got %d", c.Burst))
	}
	if c.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must not be negative"))
	}
	if c.Budget <= 0 {
		errs = append(errs, fmt.Errorf("budget must be positive"))
	}
	if c.UnrollDepth <= 0 {
		errs = append(errs, fmt.Errorf("unroll_depth must be positive"))
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		errs = append(errs, fmt.Errorf("threshold must be in (0, 1], got %v", c.Threshold))
	}
	if c.MaxContexts < 0 {
		errs = append(errs, fmt.Errorf("max_contexts must not be negative"))
	}
	return errors.Join(errs...)
}
