// Package configloader sequences the steps that turn a YAML file on disk
// into a validated, ready-to-use config.Config: parse, apply environment
// overrides, fill defaults, validate.
package configloader

import "meshroute/internal/config"

// Load reads path, applies environment overrides, fills in the spec's
// tuning-constant defaults for anything left unset, and validates the
// result.
func Load(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault builds a validated config.Config purely from defaults and
// environment overrides, for callers (tests, the in-process simulator)
// that have no YAML file on disk.
func LoadDefault() (*config.Config, error) {
	cfg := &config.Config{}
	cfg.ApplyEnvOverrides()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
