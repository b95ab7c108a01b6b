// Package config holds the YAML-backed configuration for a mesh routing
// engine node: logging, telemetry, and the protocol's tuning constants
// (spec §6).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type FileLoggerConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxSize"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"`
	Compress   bool   `yaml:"compress"`
}

type LoggerConfig struct {
	Active   bool             `yaml:"active"`
	Level    string           `yaml:"level"`
	Encoding string           `yaml:"encoding"`
	Mode     string           `yaml:"mode"`
	File     FileLoggerConfig `yaml:"file"`
}

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

type TelemetryConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TimingConfig holds the protocol's lifetime/interval tuning constants
// (spec §6). Zero-value fields are replaced by DefaultTiming() values.
type TimingConfig struct {
	LifetimeData   time.Duration `yaml:"lifetimeData"`
	RreqWait       time.Duration `yaml:"rreqWait"`
	RingInterval   time.Duration `yaml:"ringInterval"`
	RingMaxTTL     int           `yaml:"ringMaxTtl"`
	HelloLifetime  time.Duration `yaml:"helloLifetime"`
	AllocTimeout   time.Duration `yaml:"allocTimeout"`
	RSSIMin        int8          `yaml:"rssiMin"`
}

// CapacityConfig holds the fixed slab sizes (spec §6).
type CapacityConfig struct {
	RouteEntries int `yaml:"routeEntries"`
	ReplyEvents  int `yaml:"replyEvents"`
	RerrRecords  int `yaml:"rerrRecords"`
	Neighbours   int `yaml:"neighbours"`
}

// DefaultTiming returns the tuning constants named in spec §6.
func DefaultTiming() TimingConfig {
	return TimingConfig{
		LifetimeData:  120 * time.Second,
		RreqWait:      1 * time.Second,
		RingInterval:  10 * time.Second,
		RingMaxTTL:    10,
		HelloLifetime: 20 * time.Second,
		AllocTimeout:  100 * time.Millisecond,
		RSSIMin:       -90,
	}
}

// DefaultCapacity returns the slab sizes named in spec §6
// (NUMBER_OF_ENTRIES, RWAIT_LIST_SIZE, RERR_LIST_SIZE, HELLO_LIST_SIZE).
func DefaultCapacity() CapacityConfig {
	return CapacityConfig{
		RouteEntries: 20,
		ReplyEvents:  20,
		RerrRecords:  20,
		Neighbours:   20,
	}
}

// NodeConfig identifies the local node for logging/telemetry purposes and
// stands in for the collaborator queries (primary_addr, elem_count,
// subnet_get) that a real deployment would source from element enumeration.
type NodeConfig struct {
	PrimaryAddr uint16 `yaml:"primaryAddr"`
	ElemCount   uint16 `yaml:"elemCount"`
	Net         uint16 `yaml:"net"`
}

type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Timing    TimingConfig    `yaml:"timing"`
	Capacity  CapacityConfig  `yaml:"capacity"`
	Logger    LoggerConfig    `yaml:"logger"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LoadConfig reads and parses a YAML configuration file. It performs only
// syntactic parsing; call Validate after ApplyEnvOverrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return &cfg, nil
}

// ApplyDefaults fills any zero-valued timing/capacity fields with the
// spec's tuning constants, so a partial YAML file (or none at all) still
// yields a usable configuration.
func (cfg *Config) ApplyDefaults() {
	def := DefaultTiming()
	if cfg.Timing.LifetimeData == 0 {
		cfg.Timing.LifetimeData = def.LifetimeData
	}
	if cfg.Timing.RreqWait == 0 {
		cfg.Timing.RreqWait = def.RreqWait
	}
	if cfg.Timing.RingInterval == 0 {
		cfg.Timing.RingInterval = def.RingInterval
	}
	if cfg.Timing.RingMaxTTL == 0 {
		cfg.Timing.RingMaxTTL = def.RingMaxTTL
	}
	if cfg.Timing.HelloLifetime == 0 {
		cfg.Timing.HelloLifetime = def.HelloLifetime
	}
	if cfg.Timing.AllocTimeout == 0 {
		cfg.Timing.AllocTimeout = def.AllocTimeout
	}
	if cfg.Timing.RSSIMin == 0 {
		cfg.Timing.RSSIMin = def.RSSIMin
	}

	dc := DefaultCapacity()
	if cfg.Capacity.RouteEntries == 0 {
		cfg.Capacity.RouteEntries = dc.RouteEntries
	}
	if cfg.Capacity.ReplyEvents == 0 {
		cfg.Capacity.ReplyEvents = dc.ReplyEvents
	}
	if cfg.Capacity.RerrRecords == 0 {
		cfg.Capacity.RerrRecords = dc.RerrRecords
	}
	if cfg.Capacity.Neighbours == 0 {
		cfg.Capacity.Neighbours = dc.Neighbours
	}
	if cfg.Node.ElemCount == 0 {
		cfg.Node.ElemCount = 1
	}
}

// ApplyEnvOverrides applies environment-variable overrides to
// deployment-specific fields, the way a provisioned node would receive its
// primary address and subnet index from the host stack rather than a file.
//
// Supported overrides:
//
//	NODE_PRIMARY_ADDR  -> cfg.Node.PrimaryAddr (hex, e.g. "0x0001")
//	NODE_ELEM_COUNT    -> cfg.Node.ElemCount
//	NODE_NET           -> cfg.Node.Net
//	LOGGER_ACTIVE      -> cfg.Logger.Active
//	LOGGER_LEVEL       -> cfg.Logger.Level
//	LOGGER_ENCODING    -> cfg.Logger.Encoding
//	LOGGER_MODE        -> cfg.Logger.Mode
//	LOGGER_FILE_PATH   -> cfg.Logger.File.Path
//	TRACE_ENABLED      -> cfg.Telemetry.Tracing.Enabled
//	TRACE_EXPORTER     -> cfg.Telemetry.Tracing.Exporter
//	TRACE_ENDPOINT     -> cfg.Telemetry.Tracing.Endpoint
func (cfg *Config) ApplyEnvOverrides() {
	if v := os.Getenv("NODE_PRIMARY_ADDR"); v != "" {
		if addr, err := strconv.ParseUint(strings.TrimPrefix(v, "0x"), 16, 16); err == nil {
			cfg.Node.PrimaryAddr = uint16(addr)
		}
	}
	if v := os.Getenv("NODE_ELEM_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Node.ElemCount = uint16(n)
		}
	}
	if v := os.Getenv("NODE_NET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Node.Net = uint16(n)
		}
	}
	if v := os.Getenv("LOGGER_ACTIVE"); v != "" {
		cfg.Logger.Active = truthy(v)
	}
	if v := os.Getenv("LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("LOGGER_ENCODING"); v != "" {
		cfg.Logger.Encoding = v
	}
	if v := os.Getenv("LOGGER_MODE"); v != "" {
		cfg.Logger.Mode = v
	}
	if v := os.Getenv("LOGGER_FILE_PATH"); v != "" {
		cfg.Logger.File.Path = v
	}
	if v := os.Getenv("TRACE_ENABLED"); v != "" {
		cfg.Telemetry.Tracing.Enabled = truthy(v)
	}
	if v := os.Getenv("TRACE_EXPORTER"); v != "" {
		cfg.Telemetry.Tracing.Exporter = v
	}
	if v := os.Getenv("TRACE_ENDPOINT"); v != "" {
		cfg.Telemetry.Tracing.Endpoint = v
	}
}

// Validate checks the configuration for structural problems that
// ApplyDefaults cannot paper over.
func (cfg *Config) Validate() error {
	if cfg.Node.ElemCount == 0 {
		return fmt.Errorf("node.elemCount must be >= 1")
	}
	if cfg.Timing.RingMaxTTL < 2 {
		return fmt.Errorf("timing.ringMaxTtl must be >= 2 (single-hop TTL=1 is disallowed)")
	}
	return nil
}

func truthy(v string) bool {
	v = strings.ToLower(v)
	return v == "true" || v == "1" || v == "yes"
}
