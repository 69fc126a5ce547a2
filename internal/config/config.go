// Package config loads treewatch settings from a config file, TREEWATCH_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/treewatch/internal/events"
	"github.com/steveyegge/treewatch/internal/inotify"
)

// EnvPrefix prefixes every environment override, e.g. TREEWATCH_SERVE_PORT.
const EnvPrefix = "TREEWATCH"

// Output formats accepted by the format key.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved configuration.
type Config struct {
	Backend string   `mapstructure:"backend" toml:"backend" yaml:"backend"`
	Format  string   `mapstructure:"format" toml:"format" yaml:"format"`
	Watched bool     `mapstructure:"watched" toml:"watched" yaml:"watched"`
	Only    []string `mapstructure:"only" toml:"only" yaml:"only"`
	Journal string   `mapstructure:"journal" toml:"journal" yaml:"journal"`
	Record  bool     `mapstructure:"record" toml:"record" yaml:"record"`
	Verbose bool     `mapstructure:"verbose" toml:"verbose" yaml:"verbose"`

	Serve ServeConfig `mapstructure:"serve" toml:"serve" yaml:"serve"`
	Log   LogConfig   `mapstructure:"log" toml:"log" yaml:"log"`
}

// ServeConfig configures the dashboard server.
type ServeConfig struct {
	Port int `mapstructure:"port" toml:"port" yaml:"port"`
}

// LogConfig configures the log destination. An empty File logs to stderr.
type LogConfig struct {
	File       string `mapstructure:"file" toml:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days" yaml:"max_age_days"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend: inotify.BackendAuto,
		Format:  FormatText,
		Only:    []string{},
		Journal: DefaultJournalPath(),
		Serve:   ServeConfig{Port: 8080},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// DefaultPath is the per-user config file, or "" when the platform has no
// config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "treewatch", "config.yaml")
}

// LocalPath is the per-directory config file.
const LocalPath = ".treewatch.yaml"

// DefaultJournalPath is where events are recorded unless configured otherwise.
func DefaultJournalPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".treewatch", "journal.db")
	}
	return filepath.Join(dir, "treewatch", "journal.db")
}

// SetDefaults registers every key with v so environment overrides apply
// even when no config file mentions the key.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("backend", d.Backend)
	v.SetDefault("format", d.Format)
	v.SetDefault("watched", d.Watched)
	v.SetDefault("only", d.Only)
	v.SetDefault("journal", d.Journal)
	v.SetDefault("record", d.Record)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("serve.port", d.Serve.Port)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}

// New returns a viper instance with defaults, environment binding and the
// config file read. With file empty, DefaultPath and then LocalPath are tried
// and a missing file is not an error. An explicit file must exist.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file == "" {
		file = findFile()
	} else if _, err := os.Stat(file); err != nil {
		return nil, fmt.Errorf("config file %s: %w", file, err)
	}
	if file == "" {
		return v, nil
	}

	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", file, err)
	}
	return v, nil
}

func findFile() string {
	for _, candidate := range []string{DefaultPath(), LocalPath} {
		if candidate == "" {
			continue
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks enumerated keys.
func (c *Config) Validate() error {
	switch c.Backend {
	case inotify.BackendAuto, inotify.BackendInotify, inotify.BackendFsnotify:
	default:
		return fmt.Errorf("%w: backend %q (want auto, inotify or fsnotify)", ErrInvalid, c.Backend)
	}
	switch c.Format {
	case FormatText, FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("%w: format %q (want text, json or yaml)", ErrInvalid, c.Format)
	}
	if _, err := c.Kinds(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		return fmt.Errorf("%w: serve.port %d", ErrInvalid, c.Serve.Port)
	}
	return nil
}

// Kinds parses Only. An empty list yields nil, meaning every kind.
func (c *Config) Kinds() ([]events.Kind, error) {
	var kinds []events.Kind
	for _, name := range c.Only {
		if strings.TrimSpace(name) == "" {
			continue
		}
		k, err := events.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// Render encodes c as "toml" or "yaml".
func (c *Config) Render(format string) ([]byte, error) {
	switch format {
	case "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return nil, fmt.Errorf("failed to encode toml: %w", err)
		}
		return buf.Bytes(), nil
	case "yaml", "":
		out, err := yaml.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("failed to encode yaml: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
}

// Write renders c to path, choosing TOML for a .toml extension and YAML
// otherwise. Parent directories are created.
func (c *Config) Write(path string) error {
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		format = "toml"
	}
	data, err := c.Render(format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Writer returns the log destination: a rotating file when File is set,
// fallback otherwise. A rotating file must have a single writer per
// process, so callers open it once and share it between loggers.
func (l LogConfig) Writer(fallback io.Writer) io.Writer {
	if l.File == "" {
		return fallback
	}
	return &lumberjack.Logger{
		Filename:   l.File,
		MaxSize:    l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAge:     l.MaxAgeDays,
	}
}
