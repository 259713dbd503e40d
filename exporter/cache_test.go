package exporter

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticSource is a hand-rolled Source for tests in this package.
type staticSource struct {
	mu       sync.Mutex
	counters Counters
	err      error
	name     string
	api      GraphicsAPI
}

func (s *staticSource) set(c Counters, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = c
	s.err = err
}

func (s *staticSource) Counters() (Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters, s.err
}

func (s *staticSource) ProcessName() string { return s.name }

func (s *staticSource) GraphicsAPI() GraphicsAPI { return s.api }

func TestCacheHasData(t *testing.T) {
	var c snapshotCache

	assert.False(t, c.hasData())
	assert.Equal(t, Snapshot{}, c.load())

	c.store(Snapshot{ProcessName: "vkcube"})
	assert.True(t, c.hasData())

	c.store(Snapshot{})
	assert.True(t, c.hasData(), "has-data never resets")
}

func TestCacheOverwritesWholesale(t *testing.T) {
	var c snapshotCache

	c.store(Snapshot{
		Counters: Counters{
			FPS:           120.5,
			FrameTimeMs:   8.3,
			CPULoadPct:    50,
			GPUTempC:      80,
			GPUVRAMUsedGB: 6,
		},
		ProcessName: "game",
		GraphicsAPI: "VULKAN",
		PID:         100,
	})

	next := Snapshot{
		Counters:    Counters{FPS: 30},
		ProcessName: "other",
	}
	c.store(next)

	assert.Equal(t, next, c.load(), "old fields never leak into a new snapshot")
}

func TestRefreshOverwritesWholesale(t *testing.T) {
	src := &staticSource{name: "vkcube", api: APIVulkan}
	src.set(Counters{FPS: 60, GPUTempC: 70, RAMUsedGB: 8}, nil)

	e := New(Config{Enabled: true, RefreshInterval: time.Hour}, src)
	e.refresh(context.Background())

	first := e.cache.load()
	require.Equal(t, 60.0, first.Counters.FPS)
	require.Equal(t, "vkcube", first.ProcessName)
	require.Equal(t, "VULKAN", first.GraphicsAPI)
	require.Equal(t, os.Getpid(), first.PID)
	require.False(t, first.Timestamp.IsZero())

	src.set(Counters{FPS: 30}, nil)
	e.refresh(context.Background())

	second := e.cache.load()
	assert.Equal(t, Counters{FPS: 30}, second.Counters)
	assert.False(t, second.Timestamp.Before(first.Timestamp))
}

func TestRefreshKeepsCountersOnSourceError(t *testing.T) {
	src := &staticSource{name: "vkcube", api: APIOpenGL}
	src.set(Counters{FPS: 144, CPUTempC: 60}, nil)

	e := New(Config{Enabled: true, RefreshInterval: time.Hour}, src)
	e.refresh(context.Background())
	require.True(t, e.HasData())

	// The failing read's counters must be ignored, not merged.
	src.set(Counters{FPS: 999}, fmt.Errorf("counter source gone"))
	e.refresh(context.Background())

	snap := e.cache.load()
	assert.Equal(t, Counters{FPS: 144, CPUTempC: 60}, snap.Counters)
	assert.Equal(t, "vkcube", snap.ProcessName, "identity labels are still refreshed")
	assert.True(t, e.HasData())
}

func TestRefreshBeforeAnyDataKeepsZeroCounters(t *testing.T) {
	src := &staticSource{}
	src.set(Counters{FPS: 999}, fmt.Errorf("not ready"))

	e := New(Config{Enabled: true, RefreshInterval: time.Hour}, src)
	e.refresh(context.Background())

	assert.Equal(t, Counters{}, e.cache.load().Counters)
	assert.True(t, e.HasData(), "a failed first read still caches a snapshot")
}
