// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads and validates simulation scenarios using viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Node roles.
const (
	RoleAccessPoint = "accesspoint"
	RoleMobile      = "mobile"
)

// Default link parameters.
const (
	DefaultWiredBandwidth    = 10_000_000
	DefaultWirelessBandwidth = 11_000_000
	DefaultWiredDelay        = 5 * time.Microsecond
	DefaultWirelessDelay     = time.Microsecond
	DefaultRange             = 100
)

// Scenario is the top-level configuration. It maps to the
// `wlansim:` root key in YAML.
type Scenario struct {
	Seed     uint64         `mapstructure:"seed" yaml:"seed"`
	Duration time.Duration  `mapstructure:"duration" yaml:"duration"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Trace    TraceConfig    `mapstructure:"trace" yaml:"trace"`
	MAC      MACConfig      `mapstructure:"mac" yaml:"mac"`
	ARQ      ARQConfig      `mapstructure:"arq" yaml:"arq"`
	Traffic  TrafficConfig  `mapstructure:"traffic" yaml:"traffic"`
	Segments []MediumConfig `mapstructure:"segments" yaml:"segments"`
	Cells    []MediumConfig `mapstructure:"cells" yaml:"cells"`
	Nodes    []NodeConfig   `mapstructure:"nodes" yaml:"nodes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string        `mapstructure:"level" yaml:"level"`   // debug | info | warn | error
	Format string        `mapstructure:"format" yaml:"format"` // json | text
	File   LogFileConfig `mapstructure:"file" yaml:"file"`
}

// LogFileConfig configures the rotating log file.
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// TraceConfig configures event persistence.
type TraceConfig struct {
	Path string `mapstructure:"path" yaml:"path"` // Empty = disabled
}

// MACConfig configures the medium access layer.
type MACConfig struct {
	QueueLen int `mapstructure:"queue_len" yaml:"queue_len"`
}

// ARQConfig configures reliable delivery.
type ARQConfig struct {
	TimeoutScale     int  `mapstructure:"timeout_scale" yaml:"timeout_scale"`
	MaxPeers         int  `mapstructure:"max_peers" yaml:"max_peers"`
	DupCacheSize     int  `mapstructure:"dup_cache_size" yaml:"dup_cache_size"`
	NACKOnCorruption bool `mapstructure:"nack_on_corruption" yaml:"nack_on_corruption"`
}

// TrafficConfig configures the traffic generated by mobiles.
type TrafficConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"` // Mean time between messages
	Size     int           `mapstructure:"size" yaml:"size"`         // Message size in bytes
	Limit    int           `mapstructure:"limit" yaml:"limit"`       // Per mobile; 0 = unlimited
}

// MediumConfig configures a wired segment or a wireless cell.
type MediumConfig struct {
	Name             string        `mapstructure:"name" yaml:"name"`
	Bandwidth        int64         `mapstructure:"bandwidth" yaml:"bandwidth"` // bit/s
	PropagationDelay time.Duration `mapstructure:"propagation_delay" yaml:"propagation_delay"`
	Range            float64       `mapstructure:"range" yaml:"range,omitempty"` // Cells only, meters
}

// NodeConfig configures a node.
type NodeConfig struct {
	Name     string         `mapstructure:"name" yaml:"name"`
	Role     string         `mapstructure:"role" yaml:"role"`
	Address  uint32         `mapstructure:"address" yaml:"address"`
	Position PositionConfig `mapstructure:"position" yaml:"position"`
	Links    []string       `mapstructure:"links" yaml:"links"` // Segment or cell names
}

// PositionConfig is a position in meters.
type PositionConfig struct {
	X float64 `mapstructure:"x" yaml:"x"`
	Y float64 `mapstructure:"y" yaml:"y"`
}

// configRoot wraps the `wlansim:` root key.
type configRoot struct {
	Wlansim Scenario `mapstructure:"wlansim"`
}

// Load loads a scenario from the given YAML file. Environment variables
// with the WLANSIM_ prefix override file values (e.g., WLANSIM_SEED).
func Load(path string) (*Scenario, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return load(v)
}

// Parse loads a scenario from YAML text.
func Parse(text string) (*Scenario, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(text)); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Scenario, error) {
	// The `wlansim.` key prefix maps to the `WLANSIM_` env prefix.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Wlansim
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets the default values using the "wlansim." prefix.
func setDefaults(v *viper.Viper) {
	v.SetDefault("wlansim.seed", 1)
	v.SetDefault("wlansim.duration", "10s")

	v.SetDefault("wlansim.log.level", "info")
	v.SetDefault("wlansim.log.format", "text")
	v.SetDefault("wlansim.log.file.enabled", false)
	v.SetDefault("wlansim.log.file.path", "wlansim.log")
	v.SetDefault("wlansim.log.file.max_size_mb", 100)
	v.SetDefault("wlansim.log.file.max_backups", 5)
	v.SetDefault("wlansim.log.file.max_age_days", 30)
	v.SetDefault("wlansim.log.file.compress", false)

	v.SetDefault("wlansim.trace.path", "")

	v.SetDefault("wlansim.mac.queue_len", 16)

	v.SetDefault("wlansim.arq.timeout_scale", 4)
	v.SetDefault("wlansim.arq.max_peers", 64)
	v.SetDefault("wlansim.arq.dup_cache_size", 1024)
	v.SetDefault("wlansim.arq.nack_on_corruption", false)

	v.SetDefault("wlansim.traffic.interval", "50ms")
	v.SetDefault("wlansim.traffic.size", 128)
	v.SetDefault("wlansim.traffic.limit", 0)
}

// ValidateAndApplyDefaults validates the scenario and fills
// the per-medium defaults.
func (cfg *Scenario) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("invalid duration: %s", cfg.Duration)
	}
	if cfg.Traffic.Interval <= 0 {
		return fmt.Errorf("invalid traffic.interval: %s", cfg.Traffic.Interval)
	}
	if cfg.Traffic.Size < 0 || cfg.Traffic.Size > 1024 {
		return fmt.Errorf("invalid traffic.size: %d (must be 0..1024)", cfg.Traffic.Size)
	}

	media := map[string]string{}
	for idx := range cfg.Segments {
		seg := &cfg.Segments[idx]
		if err := seg.applyDefaults(media, "segment", DefaultWiredBandwidth, DefaultWiredDelay); err != nil {
			return err
		}
	}
	for idx := range cfg.Cells {
		cell := &cfg.Cells[idx]
		if err := cell.applyDefaults(media, "cell", DefaultWirelessBandwidth, DefaultWirelessDelay); err != nil {
			return err
		}
		if cell.Range <= 0 {
			cell.Range = DefaultRange
		}
	}

	if len(cfg.Nodes) <= 0 {
		return errors.New("at least one node is required")
	}
	names := map[string]bool{}
	addrs := map[uint32]string{}
	for _, node := range cfg.Nodes {
		if node.Name == "" {
			return errors.New("node name is required")
		}
		if names[node.Name] {
			return fmt.Errorf("duplicate node name: %s", node.Name)
		}
		names[node.Name] = true
		if node.Address == 0 || node.Address == 0xffffffff {
			return fmt.Errorf("node %s: invalid address: %d", node.Name, node.Address)
		}
		if other, found := addrs[node.Address]; found {
			return fmt.Errorf("node %s: address %d already used by %s", node.Name, node.Address, other)
		}
		addrs[node.Address] = node.Name
		if len(node.Links) <= 0 {
			return fmt.Errorf("node %s: at least one link is required", node.Name)
		}
		for _, link := range node.Links {
			kind, found := media[link]
			if !found {
				return fmt.Errorf("node %s: no such segment or cell: %s", node.Name, link)
			}
			if node.Role == RoleMobile && kind != "cell" {
				return fmt.Errorf("node %s: mobiles can only join cells: %s", node.Name, link)
			}
		}
		switch node.Role {
		case RoleAccessPoint, RoleMobile:
		default:
			return fmt.Errorf("node %s: invalid role: %q (must be %s/%s)", node.Name, node.Role, RoleAccessPoint, RoleMobile)
		}
	}
	return nil
}

func (mc *MediumConfig) applyDefaults(media map[string]string, kind string, bandwidth int64, delay time.Duration) error {
	if mc.Name == "" {
		return fmt.Errorf("%s name is required", kind)
	}
	if _, found := media[mc.Name]; found {
		return fmt.Errorf("duplicate segment or cell name: %s", mc.Name)
	}
	media[mc.Name] = kind
	if mc.Bandwidth < 0 || mc.PropagationDelay < 0 {
		return fmt.Errorf("%s %s: negative bandwidth or delay", kind, mc.Name)
	}
	if mc.Bandwidth == 0 {
		mc.Bandwidth = bandwidth
	}
	if mc.PropagationDelay == 0 {
		mc.PropagationDelay = delay
	}
	return nil
}

// Mobiles returns the configuration of the mobile nodes.
func (cfg *Scenario) Mobiles() []NodeConfig {
	var out []NodeConfig
	for _, node := range cfg.Nodes {
		if node.Role == RoleMobile {
			out = append(out, node)
		}
	}
	return out
}

// Marshal renders the scenario as YAML under the `wlansim:` root key.
func (cfg *Scenario) Marshal() ([]byte, error) {
	return yaml.Marshal(map[string]*Scenario{"wlansim": cfg})
}
