package exporter

import (
	"time"

	"github.com/gabrielpetry/MangoHud/internal/logger"
)

const (
	DefaultListenAddress   = "0.0.0.0:16969"
	DefaultStartDelay      = 5 * time.Second
	DefaultRefreshInterval = time.Second
)

// Config is the immutable configuration bundle consumed at construction.
// If Enabled is false, Start never spawns a task or opens a socket.
type Config struct {
	Enabled         bool
	ListenAddress   string
	StartDelay      time.Duration
	RefreshInterval time.Duration
}

// DefaultConfig returns the stock configuration, disabled.
func DefaultConfig() Config {
	return Config{
		ListenAddress:   DefaultListenAddress,
		StartDelay:      DefaultStartDelay,
		RefreshInterval: DefaultRefreshInterval,
	}
}

// withDefaults replaces out-of-range values with usable ones. Configuration
// problems here are never fatal.
func (c Config) withDefaults() Config {
	if c.RefreshInterval <= 0 {
		if c.Enabled {
			logger.Warn().
				Dur("interval", c.RefreshInterval).
				Dur("fallback", DefaultRefreshInterval).
				Msg("Refresh interval must be positive; using default")
		}
		c.RefreshInterval = DefaultRefreshInterval
	}

	if c.StartDelay < 0 {
		if c.Enabled {
			logger.Warn().
				Dur("start_delay", c.StartDelay).
				Msg("Negative start delay; starting immediately")
		}
		c.StartDelay = 0
	}

	return c
}
