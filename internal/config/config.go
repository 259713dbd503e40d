// Package config loads the daemon configuration from flags, environment
// variables and an optional TOML file, in that order of precedence.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gabrielpetry/MangoHud/exporter"
	"github.com/gabrielpetry/MangoHud/internal/errors"
	"github.com/gabrielpetry/MangoHud/internal/history"
	"github.com/gabrielpetry/MangoHud/internal/logger"
)

const (
	DefaultListen     = "0.0.0.0:16969"
	DefaultStartDelay = 5    // seconds
	DefaultInterval   = 1000 // milliseconds
	DefaultLogLevel   = "info"

	configName    = "mangohud-exporter"
	configType    = "toml"
	configDir     = "/etc"
	envPrefix     = "MANGOHUD_EXPORTER"
	configPathEnv = "MANGOHUD_EXPORTER_CONFIG"
)

// Config holds the daemon settings. Durations are kept in the units the
// config file uses: start_delay in seconds, interval in milliseconds.
type Config struct {
	Enabled    bool   `mapstructure:"enabled"`
	Listen     string `mapstructure:"listen"`
	StartDelay int    `mapstructure:"start_delay"`
	Interval   int    `mapstructure:"interval"`
	LogLevel   string `mapstructure:"log_level"`
	GPUIndex   int    `mapstructure:"gpu_index"`
	History    bool   `mapstructure:"history"`
	HistoryDB  string `mapstructure:"history_db"`
	PIDFile    string `mapstructure:"pid_file"`
}

// Option adjusts how Load resolves its sources.
type Option func(*options) error

type options struct {
	configPath string
	envPrefix  string
}

// WithConfigFile specifies an explicit configuration file path.
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix specifies a custom environment variable prefix.
// Default is "MANGOHUD_EXPORTER".
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		o.envPrefix = prefix
		return nil
	}
}

// Load reads and validates the configuration. Flag values that were
// explicitly set override the file and environment.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: envPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	fs := pflag.NewFlagSet(configName, pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	configFlag := fs.String("config", "", "path to the config file")
	fs.String("listen", DefaultListen, "metrics listen address (host:port or bare port)")
	fs.Int("start-delay", DefaultStartDelay, "seconds to wait before serving metrics")
	fs.Int("interval", DefaultInterval, "milliseconds between counter refreshes")
	fs.String("log-level", DefaultLogLevel, "log level (debug, info, warn, error, fatal)")
	fs.Int("gpu-index", 0, "NVIDIA device index to sample")
	fs.Bool("history", false, "record snapshots to the history database")
	fs.String("history-db", "", "path to the history database")
	fs.String("pid-file", "", "path to the PID file")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	v.SetDefault("enabled", true)
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("start_delay", DefaultStartDelay)
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("gpu_index", 0)
	v.SetDefault("history", false)
	v.SetDefault("history_db", "")
	v.SetDefault("pid_file", "")

	v.SetEnvPrefix(o.envPrefix)
	v.AutomaticEnv()

	path := *configFlag
	if path == "" {
		path = o.configPath
	}
	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(configDir)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	// Only flags the user actually passed override the other sources.
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		v.Set(strings.ReplaceAll(f.Name, "-", "_"), f.Value.String())
	})

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded values. The listen address is excluded: a bad
// address degrades at bind time instead of refusing to start.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Interval < 1 {
		return errFactory.New(errors.ErrInvalidInterval).WithData(c.Interval)
	}
	if c.StartDelay < 0 {
		return errFactory.New(errors.ErrInvalidDelay).WithData(c.StartDelay)
	}
	if c.History && c.HistoryDB == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "history is enabled but history_db is not set")
	}

	return nil
}

// ExporterConfig converts the daemon keys into the exporter's bundle.
func (c *Config) ExporterConfig() exporter.Config {
	return exporter.Config{
		Enabled:         c.Enabled,
		ListenAddress:   c.Listen,
		StartDelay:      time.Duration(c.StartDelay) * time.Second,
		RefreshInterval: time.Duration(c.Interval) * time.Millisecond,
	}
}

// HistoryConfig converts the daemon keys into the history bundle.
func (c *Config) HistoryConfig() history.Config {
	hc := history.DefaultConfig()
	hc.Enabled = c.History
	hc.DBPath = c.HistoryDB

	return hc
}
