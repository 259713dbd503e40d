package exporter

import (
	"context"
	"time"
)

// Source supplies the performance counters the exporter publishes. The
// provider owns its internal synchronization; the exporter polls it once
// per refresh tick and never holds its own lock across a Source call.
type Source interface {
	// Counters returns the current counter record. On error the exporter
	// keeps the previous values; stale counters are not a failure.
	Counters() (Counters, error)

	// ProcessName returns the name of the process being instrumented.
	ProcessName() string

	// GraphicsAPI identifies the rendering API of the instrumented process.
	GraphicsAPI() GraphicsAPI
}

// Recorder receives every snapshot after it is cached. Record failures are
// logged and absorbed; they never interrupt the refresh loop.
type Recorder interface {
	Record(ctx context.Context, snap *Snapshot) error
}

// Counters is the flat numeric record polled from the Source.
type Counters struct {
	FPS         float64
	FrameTimeMs float64

	CPULoadPct    float64
	CPUPowerWatts float64
	CPUFreqMHz    int
	CPUTempC      int

	GPULoadPct      float64
	GPUTempC        int
	GPUCoreClockMHz int
	GPUMemClockMHz  int
	GPUPowerWatts   float64
	GPUVRAMUsedGB   float64

	RAMUsedGB    float64
	SwapUsedGB   float64
	ProcessRSSGB float64
}

// Snapshot is one atomically replaced copy of the counters plus process
// metadata, stamped with the refresh time. It is written only by the
// refresh path and read by value through the cache.
type Snapshot struct {
	Counters

	ProcessName string
	GraphicsAPI string
	PID         int
	Timestamp   time.Time
}

// GraphicsAPI enumerates the rendering APIs the overlay distinguishes.
type GraphicsAPI uint8

const (
	APIUnknown GraphicsAPI = iota
	APIOpenGL
	APIVulkan
	APIDXVK
	APIVKD3D
	APIDamavand
	APIZink
	APIWineD3D
	APIFeral3D
	APIToGL
	APIGamescope
)

var apiNames = [...]string{
	"unknown",
	"OpenGL",
	"VULKAN",
	"DXVK",
	"VKD3D",
	"DAMAVAND",
	"ZINK",
	"WINED3D",
	"Feral3D",
	"ToGL",
	"GAMESCOPE",
}

// String resolves the API name, falling back to "unknown" for any value
// outside the known enumeration.
func (a GraphicsAPI) String() string {
	if int(a) < len(apiNames) {
		return apiNames[a]
	}

	return "unknown"
}

// State is the exporter lifecycle state.
type State int32

const (
	// StateStopped means no background task is running.
	StateStopped State = iota
	// StateStarting means the tasks are up but the listener is not bound
	// yet (start delay pending, or bring-up failed and only the refresh
	// task remains).
	StateStarting
	// StateListening means the metrics endpoint is accepting connections.
	StateListening
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	default:
		return "unknown"
	}
}
