// Package sampler reads performance counters from the local machine: GPU
// telemetry over NVML, CPU and memory figures from procfs and sysfs. Every
// field is best effort; a field that cannot be read keeps its previous
// value, and a machine without a supported GPU still exports the rest.
package sampler

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/gabrielpetry/MangoHud/exporter"
	"github.com/gabrielpetry/MangoHud/internal/logger"
)

type Config struct {
	// GPUIndex selects the NVML device to sample.
	GPUIndex int
}

// Sampler implements exporter.Source for the local machine. The daemon has
// no frame loop, so FPS and frame time stay zero and the graphics API is
// unknown.
type Sampler struct {
	mu   sync.Mutex
	gpu  *gpuProbe
	cpu  *cpuProbe
	last exporter.Counters

	procName string
}

// New builds a sampler. It never fails: an unreachable GPU downgrades to
// CPU and memory sampling with a warning.
func New(cfg Config) *Sampler {
	s := &Sampler{
		cpu:      newCPUProbe(),
		procName: processName(),
	}

	gpu, err := newGPUProbe(cfg.GPUIndex)
	if err != nil {
		logger.Warn().Err(err).Msg("GPU telemetry unavailable; sampling CPU and memory only")
		return s
	}
	s.gpu = gpu
	if gpu.name != "" {
		logger.Info().Str("gpu", gpu.name).Int("index", cfg.GPUIndex).Msg("Detected GPU")
	}

	return s
}

// Counters reads one counter record. Failed fields carry the previous
// reading forward; the record itself never fails.
func (s *Sampler) Counters() (exporter.Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.last
	s.cpu.collect(&c)
	s.cpu.collectMemory(&c)
	if s.gpu != nil {
		s.gpu.collect(&c)
	}
	s.last = c

	return c, nil
}

func (s *Sampler) ProcessName() string {
	return s.procName
}

func (s *Sampler) GraphicsAPI() exporter.GraphicsAPI {
	return exporter.APIUnknown
}

// Shutdown releases the NVML handle. Safe to call repeatedly.
func (s *Sampler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gpu != nil {
		s.gpu.shutdown()
		s.gpu = nil
	}
}

func processName() string {
	exe, err := os.Executable()
	if err != nil {
		return "mangohud-exporter"
	}

	return filepath.Base(exe)
}
