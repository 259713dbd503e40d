package sampler

import (
	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"github.com/gabrielpetry/MangoHud/exporter"
	"github.com/gabrielpetry/MangoHud/internal/errors"
)

const milliWattsToWatts = 1000

// gpuProbe reads GPU telemetry for one NVML device. The probe owns the
// NVML library lifetime: shutdown must be called exactly once.
type gpuProbe struct {
	device nvml.Device
	name   string
}

func newGPUProbe(index int) (*gpuProbe, error) {
	errFactory := errors.New()

	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, errFactory.New(ErrNVMLInit).WithData(nvml.ErrorString(ret))
	}

	device, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		_ = nvml.Shutdown()
		return nil, errFactory.New(ErrNVMLDevice).WithData(nvml.ErrorString(ret))
	}

	p := &gpuProbe{device: device}
	if name, ret := device.GetName(); ret == nvml.SUCCESS {
		p.name = name
	}

	return p, nil
}

// collect overwrites the GPU fields that read successfully and leaves the
// rest untouched.
func (p *gpuProbe) collect(c *exporter.Counters) {
	if util, ret := p.device.GetUtilizationRates(); ret == nvml.SUCCESS {
		c.GPULoadPct = float64(util.Gpu)
	}
	if temp, ret := p.device.GetTemperature(nvml.TEMPERATURE_GPU); ret == nvml.SUCCESS {
		c.GPUTempC = int(temp)
	}
	if clock, ret := p.device.GetClockInfo(nvml.CLOCK_GRAPHICS); ret == nvml.SUCCESS {
		c.GPUCoreClockMHz = int(clock)
	}
	if clock, ret := p.device.GetClockInfo(nvml.CLOCK_MEM); ret == nvml.SUCCESS {
		c.GPUMemClockMHz = int(clock)
	}
	if power, ret := p.device.GetPowerUsage(); ret == nvml.SUCCESS {
		c.GPUPowerWatts = float64(power) / milliWattsToWatts
	}
	if mem, ret := p.device.GetMemoryInfo(); ret == nvml.SUCCESS {
		c.GPUVRAMUsedGB = float64(mem.Used) / bytesPerGiB
	}
}

func (p *gpuProbe) shutdown() {
	_ = nvml.Shutdown()
}
