package exporter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigIsDisabled(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "0.0.0.0:16969", cfg.ListenAddress)
	assert.Equal(t, 5*time.Second, cfg.StartDelay)
	assert.Equal(t, time.Second, cfg.RefreshInterval)
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{
		Enabled:         true,
		ListenAddress:   "127.0.0.1:9090",
		StartDelay:      -2 * time.Second,
		RefreshInterval: 0,
	}.withDefaults()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "127.0.0.1:9090", cfg.ListenAddress)
	assert.Equal(t, time.Duration(0), cfg.StartDelay, "negative delay means start immediately")
	assert.Equal(t, DefaultRefreshInterval, cfg.RefreshInterval)

	valid := Config{
		Enabled:         true,
		StartDelay:      time.Minute,
		RefreshInterval: 250 * time.Millisecond,
	}.withDefaults()

	assert.Equal(t, time.Minute, valid.StartDelay)
	assert.Equal(t, 250*time.Millisecond, valid.RefreshInterval)
}
