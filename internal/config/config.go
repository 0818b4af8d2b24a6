// Package config loads the blecar YAML configuration.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/blecar/internal/ble"
	"github.com/chaz8081/blecar/internal/ble/protocol"
)

// Config holds all application configuration.
type Config struct {
	Target   TargetConfig   `yaml:"target"`
	Scan     ScanConfig     `yaml:"scan"`
	Radio    RadioConfig    `yaml:"radio"`
	Log      LogConfig      `yaml:"log"`
	Controls ControlsConfig `yaml:"controls"`
	LogLevel string         `yaml:"log_level"`
}

// TargetConfig identifies the car and its UART service.
type TargetConfig struct {
	Address       string `yaml:"address"`
	Name          string `yaml:"name"`
	ServiceUUID   string `yaml:"service_uuid"`
	WriteCharUUID string `yaml:"write_char_uuid"`
	ReadCharUUID  string `yaml:"read_char_uuid"`
	// WriteProperties are the write characteristic's capability flags as
	// advertised by the firmware: "write", "write_without_response".
	WriteProperties []string `yaml:"write_properties"`
}

// ScanConfig holds discovery settings.
type ScanConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	KeepScanning  bool          `yaml:"keep_scanning"`
	AllowReselect bool          `yaml:"allow_reselect"`
}

// RadioConfig selects the BlueZ adapter whose power state is checked.
type RadioConfig struct {
	Adapter string `yaml:"adapter"`
	Probe   bool   `yaml:"probe"`
}

// LogConfig holds event log settings.
type LogConfig struct {
	Capacity int `yaml:"capacity"`
}

// ControlsConfig holds keyboard driving settings.
type ControlsConfig struct {
	Enabled bool                `yaml:"enabled"`
	Mode    string              `yaml:"mode"` // "hold" or "toggle"
	Keys    map[string][]string `yaml:"keys"` // intent name -> key combo
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "blecar")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config for the stock BLE_CAR firmware.
func Default() *Config {
	return &Config{
		Target: TargetConfig{
			Address:         ble.DefaultTargetAddress,
			Name:            ble.DefaultTargetName,
			ServiceUUID:     ble.ServiceUUID,
			WriteCharUUID:   ble.WriteCharUUID,
			ReadCharUUID:    ble.ReadCharUUID,
			WriteProperties: []string{"write", "write_without_response"},
		},
		Scan: ScanConfig{
			Timeout: 500 * time.Millisecond,
		},
		Radio: RadioConfig{
			Adapter: ble.DefaultRadio,
			Probe:   true,
		},
		Log: LogConfig{
			Capacity: 100,
		},
		Controls: ControlsConfig{
			Enabled: true,
			Mode:    "hold",
			Keys: map[string][]string{
				"forward":  {"w"},
				"backward": {"s"},
				"left":     {"a"},
				"right":    {"d"},
				"stop":     {"space"},
			},
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// WriteDefault writes the default config to DefaultConfigPath. It returns
// ("", nil) without touching anything when the file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# blecar configuration\n")
	buf.WriteString("# Set target.address to your car's MAC address (a CoreBluetooth UUID on macOS).\n\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Default()); err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Target.Address == "" {
		return fmt.Errorf("target.address must not be empty")
	}
	if c.Target.ServiceUUID == "" {
		return fmt.Errorf("target.service_uuid must not be empty")
	}
	if c.Target.WriteCharUUID == "" {
		return fmt.Errorf("target.write_char_uuid must not be empty")
	}
	if _, err := c.WriteProperties(); err != nil {
		return err
	}

	if c.Scan.Timeout <= 0 {
		return fmt.Errorf("scan.timeout must be > 0")
	}

	if c.Log.Capacity <= 0 {
		return fmt.Errorf("log.capacity must be > 0")
	}

	switch c.Controls.Mode {
	case "hold", "toggle":
	default:
		return fmt.Errorf("controls.mode must be \"hold\" or \"toggle\", got %q", c.Controls.Mode)
	}
	if _, err := c.KeyBindings(); err != nil {
		return err
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// WriteProperties parses target.write_properties into flags.
func (c *Config) WriteProperties() (ble.Property, error) {
	var props ble.Property
	for _, s := range c.Target.WriteProperties {
		p, err := ble.ParseProperty(s)
		if err != nil {
			return 0, fmt.Errorf("target.write_properties: %w", err)
		}
		props |= p
	}
	if !props.Writable() {
		return 0, fmt.Errorf("target.write_properties must include write or write_without_response")
	}
	return props, nil
}

// KeyBindings parses controls.keys into intent bindings.
func (c *Config) KeyBindings() (map[protocol.Intent][]string, error) {
	bindings := make(map[protocol.Intent][]string, len(c.Controls.Keys))
	for name, keys := range c.Controls.Keys {
		intent, err := protocol.ParseIntent(name)
		if err != nil {
			return nil, fmt.Errorf("controls.keys: %w", err)
		}
		if len(keys) == 0 {
			return nil, fmt.Errorf("controls.keys.%s must not be empty", name)
		}
		bindings[intent] = keys
	}
	return bindings, nil
}

// ControllerOptions maps the config onto ble.Options.
func (c *Config) ControllerOptions() ble.Options {
	opts := ble.DefaultOptions()
	opts.Target = ble.Target{
		Address:       c.Target.Address,
		Name:          c.Target.Name,
		ServiceUUID:   c.Target.ServiceUUID,
		WriteCharUUID: c.Target.WriteCharUUID,
		ReadCharUUID:  c.Target.ReadCharUUID,
	}
	opts.ScanTimeout = c.Scan.Timeout
	opts.KeepScanning = c.Scan.KeepScanning
	opts.Filter.AllowReselect = c.Scan.AllowReselect
	opts.LogCapacity = c.Log.Capacity
	return opts
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
