// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads node settings from an optional file and PLCSTRIP_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/plcstrip/pkg/bl0906"
	"github.com/Thermoquad/plcstrip/pkg/hplc"
	"github.com/Thermoquad/plcstrip/pkg/link"
)

// EnvPrefix prefixes environment overrides, e.g. PLCSTRIP_PLC_PORT
const EnvPrefix = "PLCSTRIP"

// Node roles
const (
	RoleStation     = "station"
	RoleCoordinator = "coordinator"
)

// Serial parity names
const (
	ParityNone = "none"
	ParityEven = "even"
	ParityOdd  = "odd"
)

var (
	ErrInvalidRole    = errors.New("invalid node role")
	ErrInvalidAddress = errors.New("invalid node address")
	ErrInvalidParity  = errors.New("invalid serial parity")
)

// NodeConfig identifies this node on the PLC network
type NodeConfig struct {
	Role    string `mapstructure:"role"`
	Address string `mapstructure:"address"`
	Peer    string `mapstructure:"peer"` // coordinator address (station) or reply address (coordinator)
}

// PLCConfig is the PLC modem serial channel. The modem runs 8E1.
type PLCConfig struct {
	Port         string `mapstructure:"port"`
	Baud         int    `mapstructure:"baud"`
	Parity       string `mapstructure:"parity"`
	link.Options `mapstructure:",squash"`
}

// SerialConfig is a plain serial channel
type SerialConfig struct {
	Port   string `mapstructure:"port"`
	Baud   int    `mapstructure:"baud"`
	Parity string `mapstructure:"parity"`
}

// MeterConfig is the metering IC channel and its calibration
type MeterConfig struct {
	Port        string             `mapstructure:"port"`
	Baud        int                `mapstructure:"baud"`
	Parity      string             `mapstructure:"parity"`
	ReadTimeout time.Duration      `mapstructure:"read_timeout"`
	Calibration bl0906.Calibration `mapstructure:"calibration"`
}

// MonitorConfig is the period of the periodic node task
type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// TelemetryConfig controls station readings pushed to the coordinator
type TelemetryConfig struct {
	Push    bool    `mapstructure:"push"`
	MaxRate float64 `mapstructure:"max_rate"` // frames per second, 0 is unlimited
}

// StoreConfig is the persistent key-value file
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LumberjackConfig configures log file rotation
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig selects level, encoding and an optional log file
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig exposes Prometheus metrics over HTTP
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
	Path   string `mapstructure:"path"`
}

// Config is the full node configuration
type Config struct {
	Node      NodeConfig      `mapstructure:"node"`
	PLC       PLCConfig       `mapstructure:"plc"`
	Screen    SerialConfig    `mapstructure:"screen"`
	Meter     MeterConfig     `mapstructure:"meter"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`

	settings map[string]any
}

// New returns a viper instance carrying the defaults and environment
// bindings. Callers may bind flags onto it before calling Decode.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, if given, over the defaults and environment
func Load(path string) (*Config, error) {
	v := New()
	if err := Read(v, path); err != nil {
		return nil, err
	}
	return Decode(v)
}

// Read merges a YAML, TOML or JSON file into v. An empty path is a no-op.
func Read(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Decode unmarshals and validates the settings held by v
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.settings = v.AllSettings()
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node.role", RoleStation)
	v.SetDefault("node.address", "")
	v.SetDefault("node.peer", "")

	opts := link.DefaultOptions()
	v.SetDefault("plc.port", "")
	v.SetDefault("plc.baud", 115200)
	v.SetDefault("plc.parity", ParityEven)
	v.SetDefault("plc.max_retries", opts.MaxRetries)
	v.SetDefault("plc.ack_timeout", opts.AckTimeout)
	v.SetDefault("plc.poll_interval", opts.PollInterval)
	v.SetDefault("plc.line_timeout", opts.LineTimeout)
	v.SetDefault("plc.lock_wait", opts.LockWait)
	v.SetDefault("plc.backlog_size", opts.BacklogSize)

	v.SetDefault("screen.port", "")
	v.SetDefault("screen.baud", 115200)
	v.SetDefault("screen.parity", ParityNone)

	cal := bl0906.DefaultCalibration
	v.SetDefault("meter.port", "")
	v.SetDefault("meter.baud", 19200)
	v.SetDefault("meter.parity", ParityNone)
	v.SetDefault("meter.read_timeout", bl0906.DefaultReadTimeout)
	v.SetDefault("meter.calibration.vref", cal.Vref)
	v.SetDefault("meter.calibration.gain_i", cal.GainI)
	v.SetDefault("meter.calibration.gain_v", cal.GainV)
	v.SetDefault("meter.calibration.rl_milliohm", cal.RLMilliohm)
	v.SetDefault("meter.calibration.rf_kiloohm", cal.RFKiloohm)
	v.SetDefault("meter.calibration.rv_kiloohm", cal.RVKiloohm)

	v.SetDefault("monitor.interval", 0)

	v.SetDefault("telemetry.push", false)
	v.SetDefault("telemetry.max_rate", 10.0)

	v.SetDefault("store.path", "plcstrip.cbor")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.max_size", 10)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", false)
	v.SetDefault("metrics.addr", ":9100")
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks the node section and the serial parities
func (c *Config) Validate() error {
	switch c.Node.Role {
	case RoleStation, RoleCoordinator:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRole, c.Node.Role)
	}
	for _, a := range []string{c.Node.Address, c.Node.Peer} {
		if a == "" {
			continue
		}
		if _, err := hplc.ParseAddress(a); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidAddress, a)
		}
	}
	for _, p := range []string{c.PLC.Parity, c.Screen.Parity, c.Meter.Parity} {
		if !ValidParity(p) {
			return fmt.Errorf("%w: %q", ErrInvalidParity, p)
		}
	}
	return nil
}

// ValidParity reports whether p names a parity. Empty means none.
func ValidParity(p string) bool {
	switch p {
	case "", ParityNone, ParityEven, ParityOdd:
		return true
	}
	return false
}

// Address returns the node address, zero when unset
func (c *Config) Address() hplc.Address {
	a, _ := hplc.ParseAddress(c.Node.Address)
	return a
}

// Peer returns the peer address, zero when unset
func (c *Config) Peer() hplc.Address {
	a, _ := hplc.ParseAddress(c.Node.Peer)
	return a
}

// PushRate converts the telemetry limit for rate.NewLimiter
func (c *Config) PushRate() rate.Limit {
	if c.Telemetry.MaxRate <= 0 {
		return rate.Inf
	}
	return rate.Limit(c.Telemetry.MaxRate)
}

// WriteYAML prints the effective settings
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c.settings); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
