// Package config loads this server's run-time configuration: built-in
// defaults, overlaid by an optional TOML file, overlaid by CLI flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/alir32a/mydns/internal/durationx"
)

// ForwardAddr is one configured forwarding/root target as it appears in
// the [server.forward] TOML table.
type ForwardAddr struct {
	Addr   string `toml:"addr"`
	Weight int    `toml:"weight"`
}

// Listener holds [listener] section values.
type Listener struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Proto        string `toml:"proto"`
	MaxPacketBuf int    `toml:"max_packet_buf"`
}

// ResolverLimits holds [resolver] section values.
type ResolverLimits struct {
	MaxRecursionDepth int `toml:"max_recursion_depth"`
	MaxParseJumps     int `toml:"max_parse_jumps"`
}

// Authoritative holds [server.authoritative] section values.
type Authoritative struct {
	Enabled     bool   `toml:"enabled"`
	Zones       string `toml:"zones"`
	NestedZones bool   `toml:"nested_zones"`
}

// Forward holds [server.forward] section values.
type Forward struct {
	Addrs       []ForwardAddr `toml:"addrs"`
	Strategy    string        `toml:"strategy"`
	DefaultPort int           `toml:"default_port"`
}

// Server holds [server] section values.
type Server struct {
	RetryInterval  string        `toml:"retry_interval"`
	DefaultTimeout string        `toml:"default_timeout"`
	EnableIPv6     bool          `toml:"enable_ipv6"`
	Authoritative  Authoritative `toml:"authoritative"`
	Forward        Forward       `toml:"forward"`
}

// File is the root shape of the TOML config file.
type File struct {
	Listener Listener       `toml:"listener"`
	Resolver ResolverLimits `toml:"resolver"`
	Server   Server         `toml:"server"`
}

// Config is the fully resolved configuration this server runs with, after
// defaults, file and flags have all been applied.
type Config struct {
	Host         string
	Port         int
	Proto        string
	MaxPacketBuf int

	MaxRecursionDepth int
	MaxParseJumps     int

	DefaultTimeout time.Duration
	RetryInterval  time.Duration
	EnableIPv6     bool

	Authoritative bool
	ZonesDir      string
	NestedZones   bool

	ForwardAddrs       []ForwardAddr
	ForwardStrategy    string
	DefaultForwardPort int
}

// Defaults returns the built-in configuration used when neither a config
// file nor overriding flags are present.
func Defaults() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               53,
		Proto:              "udp",
		MaxPacketBuf:       512,
		MaxRecursionDepth:  10,
		MaxParseJumps:      6,
		DefaultTimeout:     5 * time.Second,
		RetryInterval:      5 * time.Second,
		EnableIPv6:         false,
		Authoritative:      false,
		ZonesDir:           "",
		NestedZones:        false,
		ForwardStrategy:    "standard",
		DefaultForwardPort: 53,
	}
}

// HomeDir returns the directory this server searches for a default config
// file in, "<user-home>/.mydns", mirroring the search order documented for
// --config-file.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".mydns"), nil
}

// ErrConfig is returned when a config file exists but fails to parse,
// whether it was named explicitly or found at the default path, or when
// an explicitly named file cannot be read; a file that is simply absent
// is not an error — Load silently falls back to defaults in that case.
type ErrConfig struct {
	Path string
	Err  error
}

func (e *ErrConfig) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Path, e.Err)
}

func (e *ErrConfig) Unwrap() error { return e.Err }

// Load resolves the config search order: an explicit path always wins,
// and a malformed file at an explicit path is fatal; otherwise "<home>/.mydns/conf.toml" is tried and a malformed file
// there is also fatal (the file exists, so it was meant to be read), while
// an absent file at either path simply yields the built-in defaults.
func Load(explicitPath string) (Config, error) {
	cfg := Defaults()

	path := explicitPath
	explicit := explicitPath != ""
	if path == "" {
		home, err := HomeDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(home, "conf.toml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		if explicit {
			return cfg, &ErrConfig{Path: path, Err: err}
		}
		return cfg, nil
	}

	var file File
	if err := toml.Unmarshal(data, &file); err != nil {
		return cfg, &ErrConfig{Path: path, Err: err}
	}

	applyFile(&cfg, file)
	return cfg, nil
}

func applyFile(cfg *Config, file File) {
	if file.Listener.Host != "" {
		cfg.Host = file.Listener.Host
	}
	if file.Listener.Port != 0 {
		cfg.Port = file.Listener.Port
	}
	if file.Listener.Proto != "" {
		cfg.Proto = file.Listener.Proto
	}
	if file.Listener.MaxPacketBuf != 0 {
		cfg.MaxPacketBuf = file.Listener.MaxPacketBuf
	}

	if file.Resolver.MaxRecursionDepth != 0 {
		cfg.MaxRecursionDepth = file.Resolver.MaxRecursionDepth
	}
	if file.Resolver.MaxParseJumps != 0 {
		cfg.MaxParseJumps = file.Resolver.MaxParseJumps
	}

	if file.Server.RetryInterval != "" {
		if d, err := durationx.Parse(file.Server.RetryInterval); err == nil {
			cfg.RetryInterval = d
		}
	}
	if file.Server.DefaultTimeout != "" {
		if d, err := durationx.Parse(file.Server.DefaultTimeout); err == nil {
			cfg.DefaultTimeout = d
		}
	}
	cfg.EnableIPv6 = file.Server.EnableIPv6

	if file.Server.Authoritative.Enabled {
		cfg.Authoritative = true
	}
	if file.Server.Authoritative.Zones != "" {
		cfg.ZonesDir = file.Server.Authoritative.Zones
	}
	cfg.NestedZones = file.Server.Authoritative.NestedZones

	if len(file.Server.Forward.Addrs) > 0 {
		cfg.ForwardAddrs = file.Server.Forward.Addrs
	}
	if file.Server.Forward.Strategy != "" {
		cfg.ForwardStrategy = file.Server.Forward.Strategy
	}
	if file.Server.Forward.DefaultPort != 0 {
		cfg.DefaultForwardPort = file.Server.Forward.DefaultPort
	}
}
