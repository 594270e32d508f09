// Package config provides configuration handling for wgbind tools.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/irctrakz/wgbind/pkg/logging"
	"github.com/irctrakz/wgbind/pkg/multistr"
)

// Backend kinds.
const (
	KindNative    = "native"
	KindKernel    = "kernel"
	KindUserspace = "userspace"
)

// Config represents the complete configuration.
type Config struct {
	// Backend selects and tunes the device surface.
	Backend BackendConfig `json:"backend" yaml:"backend" toml:"backend"`

	// Logging contains the logging configuration.
	Logging LoggingConfig `json:"logging" yaml:"logging" toml:"logging"`
}

// BackendConfig selects the raw surface implementation.
type BackendConfig struct {
	// Kind is one of native, kernel or userspace.
	Kind string `json:"kind" yaml:"kind" toml:"kind"`

	// ScanLimit caps the device name buffer scan in bytes.
	ScanLimit int `json:"scanLimit" yaml:"scanLimit" toml:"scanLimit"`

	// Userspace tunes the wireguard-go backend.
	Userspace UserspaceConfig `json:"userspace" yaml:"userspace" toml:"userspace"`
}

// UserspaceConfig tunes the wireguard-go backend.
type UserspaceConfig struct {
	// MTU is the plaintext MTU of each in-memory TUN.
	MTU int `json:"mtu" yaml:"mtu" toml:"mtu"`

	// Up brings devices up after creation, binding their UDP sockets.
	Up bool `json:"up" yaml:"up" toml:"up"`

	// Verbose forwards wireguard-go verbose logs at debug level.
	Verbose bool `json:"verbose" yaml:"verbose" toml:"verbose"`

	// KernelTUN opens a host TUN per device instead of an in-memory one.
	KernelTUN bool `json:"kernelTun" yaml:"kernelTun" toml:"kernelTun"`
}

// LoggingConfig contains configuration for logging.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string `json:"level" yaml:"level" toml:"level"`

	// File is the log file path.
	File string `json:"file" yaml:"file" toml:"file"`

	// MaxSize is the maximum size of the log file in megabytes.
	MaxSize int `json:"maxSize" yaml:"maxSize" toml:"maxSize"`

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int `json:"maxBackups" yaml:"maxBackups" toml:"maxBackups"`

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int `json:"maxAge" yaml:"maxAge" toml:"maxAge"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Kind:      KindKernel,
			ScanLimit: multistr.DefaultLimit,
			Userspace: UserspaceConfig{
				MTU: 1420,
			},
		},
		Logging: LoggingConfig{
			Level:      "warn",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// LoadFromFile loads configuration from a file. The format follows the
// extension: .json, .yaml, .yml or .toml.
func LoadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}
	return nil
}

func envBool(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func envInt(name string, dst *int) {
	if val := os.Getenv(name); val != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			*dst = n
		} else {
			logging.Warnf("ignoring %s=%q: %v", name, val, err)
		}
	}
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv(config *Config) {
	// Backend config
	if val := os.Getenv("WGBIND_BACKEND"); val != "" {
		config.Backend.Kind = strings.ToLower(strings.TrimSpace(val))
	}
	envInt("WGBIND_SCAN_LIMIT", &config.Backend.ScanLimit)
	envInt("WGBIND_USERSPACE_MTU", &config.Backend.Userspace.MTU)
	if val := os.Getenv("WGBIND_USERSPACE_UP"); val != "" {
		config.Backend.Userspace.Up = envBool(val)
	}
	if val := os.Getenv("WGBIND_USERSPACE_VERBOSE"); val != "" {
		config.Backend.Userspace.Verbose = envBool(val)
	}
	if val := os.Getenv("WGBIND_USERSPACE_KERNEL_TUN"); val != "" {
		config.Backend.Userspace.KernelTUN = envBool(val)
	}

	// Logging config
	if val := os.Getenv("LOGGING_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOGGING_FILE"); val != "" {
		config.Logging.File = val
	}
	envInt("LOGGING_MAX_SIZE", &config.Logging.MaxSize)
	envInt("LOGGING_MAX_BACKUPS", &config.Logging.MaxBackups)
	envInt("LOGGING_MAX_AGE", &config.Logging.MaxAge)
}

// Load builds the effective configuration: defaults, then the file named
// by WGBIND_CONFIG when set, then environment overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	if path := strings.TrimSpace(os.Getenv("WGBIND_CONFIG")); path != "" {
		if err := LoadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}
	LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Backend.Kind {
	case KindNative, KindKernel, KindUserspace:
	default:
		return fmt.Errorf("invalid backend kind: %q", c.Backend.Kind)
	}
	if c.Backend.ScanLimit <= 0 {
		return fmt.Errorf("invalid scan limit: %d", c.Backend.ScanLimit)
	}
	if mtu := c.Backend.Userspace.MTU; mtu < 0 || mtu > 65535 {
		return fmt.Errorf("invalid userspace MTU: %d", mtu)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// ApplyLogging applies the logging configuration.
func (c *Config) ApplyLogging() error {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return err
	}
	logging.SetLevel(level)

	if c.Logging.File != "" {
		dir, filename := filepath.Split(c.Logging.File)
		if dir == "" {
			dir = "."
		}
		err := logging.EnableFileLogging(
			dir,
			filename,
			c.Logging.MaxSize,
			c.Logging.MaxBackups,
			c.Logging.MaxAge,
		)
		if err != nil {
			return fmt.Errorf("failed to enable file logging: %w", err)
		}
	}
	return nil
}

// SaveToFile saves the configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
	case ".toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		data = buf.Bytes()
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
