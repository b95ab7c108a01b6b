package ringbench

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"meshroute/internal/config"
)

// ChainConfig controls the range of line-topology lengths exercised.
type ChainConfig struct {
	MinHops int `yaml:"minHops"`
	MaxHops int `yaml:"maxHops"`
}

// CSVConfig controls result export.
type CSVConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Config is the root configuration for the ring-search benchmark runner.
type Config struct {
	Logger config.LoggerConfig `yaml:"logger"`
	Timing config.TimingConfig `yaml:"timing"`
	Chain  ChainConfig         `yaml:"chain"`
	RSSI   int8                `yaml:"rssi"`
	Trials int                 `yaml:"trials"`
	CSV    CSVConfig           `yaml:"csv"`
}

// Load reads the configuration file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	if v := os.Getenv("LOGGER_ACTIVE"); v != "" {
		cfg.Logger.Active = truthy(v)
	}
	if v := os.Getenv("LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("RINGBENCH_MIN_HOPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Chain.MinHops = n
		}
	}
	if v := os.Getenv("RINGBENCH_MAX_HOPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Chain.MaxHops = n
		}
	}
	if v := os.Getenv("RINGBENCH_TRIALS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Trials = n
		}
	}
	if v := os.Getenv("RINGBENCH_CSV_PATH"); v != "" {
		cfg.CSV.Enabled = true
		cfg.CSV.Path = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	def := config.DefaultTiming()
	if cfg.Timing.RingInterval == 0 {
		cfg.Timing.RingInterval = def.RingInterval
	}
	if cfg.Timing.RingMaxTTL == 0 {
		cfg.Timing.RingMaxTTL = def.RingMaxTTL
	}
	if cfg.Timing.AllocTimeout == 0 {
		cfg.Timing.AllocTimeout = def.AllocTimeout
	}
	if cfg.Timing.RSSIMin == 0 {
		cfg.Timing.RSSIMin = def.RSSIMin
	}
	if cfg.Chain.MinHops == 0 {
		cfg.Chain.MinHops = 2
	}
	if cfg.Chain.MaxHops == 0 {
		cfg.Chain.MaxHops = 6
	}
	if cfg.RSSI == 0 {
		cfg.RSSI = -60
	}
	if cfg.Trials == 0 {
		cfg.Trials = 20
	}
}

// Validate checks the configuration for structural problems applyDefaults
// cannot paper over.
func (cfg *Config) Validate() error {
	var errs []string
	if cfg.Chain.MinHops < 1 {
		errs = append(errs, fmt.Sprintf("chain.minHops must be >= 1 (got %d)", cfg.Chain.MinHops))
	}
	if cfg.Chain.MaxHops < cfg.Chain.MinHops {
		errs = append(errs, fmt.Sprintf("chain.maxHops must be >= chain.minHops (got %d < %d)", cfg.Chain.MaxHops, cfg.Chain.MinHops))
	}
	if cfg.Trials < 1 {
		errs = append(errs, fmt.Sprintf("trials must be >= 1 (got %d)", cfg.Trials))
	}
	if cfg.CSV.Enabled && cfg.CSV.Path == "" {
		errs = append(errs, "csv.path must be set when csv.enabled = true")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func truthy(v string) bool {
	v = strings.ToLower(v)
	return v == "true" || v == "1" || v == "yes"
}
