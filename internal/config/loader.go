// Package config loads the prodcon command's configuration.
//
// Sources are merged with koanf in increasing priority: built-in defaults,
// a YAML file, PRODCON_* environment variables, then command-line flags.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "PRODCON_"

// Config is the command's configuration.
type Config struct {
	Channel struct {
		Identity string `koanf:"identity"`
		KeyFile  string `koanf:"keyfile"`
	} `koanf:"channel"`
	Log struct {
		Enabled bool `koanf:"enabled"`
		Level   int  `koanf:"level"`
	} `koanf:"log"`
	Metrics struct {
		Addr string `koanf:"addr"`
	} `koanf:"metrics"`
}

// Defaults returns the built-in values as koanf keys.
func Defaults() map[string]any {
	return map[string]any{
		"channel.identity": "",
		"channel.keyfile":  "",
		"log.enabled":      true,
		"log.level":        3,
		"metrics.addr":     "",
	}
}

// Loader loads configuration from multiple sources.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
}

// Option is a function that configures the Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the configuration file path.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load merges defaults, the config file, the environment and flags, in that
// order, and unmarshals the result into target. flags holds only the flags
// the user actually set, keyed like Defaults.
func (l *Loader) Load(target *Config, flags map[string]any) error {
	if err := l.LoadMap(Defaults()); err != nil {
		return err
	}
	if err := l.LoadFile(l.filePath); err != nil {
		return fmt.Errorf("load config file: %w", err)
	}
	if err := l.LoadEnv(); err != nil {
		return err
	}
	if len(flags) > 0 {
		if err := l.LoadMap(flags); err != nil {
			return err
		}
	}
	if err := l.k.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// LoadFile loads configuration from a YAML file. An empty path is a no-op.
func (l *Loader) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("load file %s: %w", path, err)
	}
	return nil
}

// LoadEnv loads configuration from environment variables.
// PRODCON_CHANNEL_IDENTITY maps to channel.identity.
func (l *Loader) LoadEnv() error {
	transform := func(s string) string {
		s = strings.TrimPrefix(s, l.envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	}
	if err := l.k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// LoadMap loads configuration from a map.
func (l *Loader) LoadMap(data map[string]any) error {
	if err := l.k.Load(mapProvider(data), nil); err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	return nil
}

// String returns a value by key.
func (l *Loader) String(key string) string {
	return l.k.String(key)
}
