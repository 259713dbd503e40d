package exporter

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeLabelValue(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"backslash", `C:\games`, `C:\\games`},
		{"double quote", `He said "hi"`, `He said \"hi\"`},
		{"newline", "line1\nline2", `line1\nline2`},
		{"carriage return", "a\rb", `a\rb`},
		{"tab", "a\tb", `a\tb`},
		{"mixed", "He said \"hi\"\n", `He said \"hi\"\n`},
		{"plain passes through", "vkcube (64-bit) über", "vkcube (64-bit) über"},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, escapeLabelValue(tc.in))
		})
	}
}

func TestRenderExposition(t *testing.T) {
	snap := &Snapshot{
		Counters: Counters{
			FPS:             58.5,
			FrameTimeMs:     17.094,
			CPULoadPct:      42.3,
			CPUPowerWatts:   23.5,
			CPUFreqMHz:      4550,
			CPUTempC:        67,
			GPULoadPct:      99.9,
			GPUTempC:        71,
			GPUCoreClockMHz: 2520,
			GPUMemClockMHz:  10501,
			GPUPowerWatts:   180.5,
			GPUVRAMUsedGB:   4.25,
			RAMUsedGB:       12.125,
			SwapUsedGB:      0.5,
			ProcessRSSGB:    1.75,
		},
		ProcessName: "vkcube",
		GraphicsAPI: "VULKAN",
		PID:         4242,
	}
	const tsMillis = 1700000000123

	// One expected value per family, in emission order.
	expected := []struct {
		name  string
		help  string
		value string
	}{
		{"mangohud_fps_current", "Current frames per second", "58.50"},
		{"mangohud_frametime_ms", "Current frame time in milliseconds", "17.094"},
		{"mangohud_cpu_load_percent", "CPU load percentage", "42.3"},
		{"mangohud_cpu_power_watts", "CPU power consumption in watts", "23.5"},
		{"mangohud_cpu_frequency_mhz", "CPU frequency in MHz", "4550"},
		{"mangohud_cpu_temperature_celsius", "CPU temperature in Celsius", "67"},
		{"mangohud_gpu_load_percent", "GPU load percentage", "99.9"},
		{"mangohud_gpu_temperature_celsius", "GPU temperature in Celsius", "71"},
		{"mangohud_gpu_core_clock_mhz", "GPU core clock in MHz", "2520"},
		{"mangohud_gpu_memory_clock_mhz", "GPU memory clock in MHz", "10501"},
		{"mangohud_gpu_power_watts", "GPU power consumption in watts", "180.5"},
		{"mangohud_gpu_vram_used_gb", "GPU VRAM used in GB", "4.250"},
		{"mangohud_ram_used_gb", "System RAM used in GB", "12.125"},
		{"mangohud_swap_used_gb", "System swap used in GB", "0.500"},
		{"mangohud_process_rss_gb", "Process RSS memory in GB", "1.750"},
	}

	out := string(renderExposition(snap, tsMillis))
	require.True(t, strings.HasSuffix(out, "\n"), "exposition ends with a newline")

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 3*len(expected), "three lines per family, nothing else")

	labels := `process_name="vkcube",graphics_api="VULKAN",pid="4242"`
	for i, fam := range expected {
		assert.Equal(t, fmt.Sprintf("# HELP %s %s", fam.name, fam.help), lines[3*i])
		assert.Equal(t, fmt.Sprintf("# TYPE %s gauge", fam.name), lines[3*i+1])
		assert.Equal(t, fmt.Sprintf("%s{%s} %s %d", fam.name, labels, fam.value, int64(tsMillis)), lines[3*i+2])
	}
}

func TestRenderExpositionZeroSnapshot(t *testing.T) {
	out := string(renderExposition(&Snapshot{}, 1700000000123))

	assert.Contains(t, out, `mangohud_fps_current{process_name="",graphics_api="",pid="0"} 0.00 1700000000123`)
	assert.Contains(t, out, "mangohud_frametime_ms{")
	assert.Contains(t, out, "} 0.000 ")
	assert.Contains(t, out, "} 0.0 ")
	assert.Contains(t, out, "} 0 ")
}

func TestGraphicsAPIString(t *testing.T) {
	assert.Equal(t, "unknown", APIUnknown.String())
	assert.Equal(t, "OpenGL", APIOpenGL.String())
	assert.Equal(t, "VULKAN", APIVulkan.String())
	assert.Equal(t, "GAMESCOPE", APIGamescope.String())
	assert.Equal(t, "unknown", GraphicsAPI(200).String(), "out-of-range values fall back")
}

func TestRenderExpositionEscapesLabels(t *testing.T) {
	snap := &Snapshot{
		ProcessName: "bad\"name\nwith\ttabs",
		GraphicsAPI: `VK\D3D`,
		PID:         7,
	}

	out := string(renderExposition(snap, 1))
	assert.Contains(t, out, `process_name="bad\"name\nwith\ttabs"`)
	assert.Contains(t, out, `graphics_api="VK\\D3D"`)

	// Escaping keeps every sample on its own line.
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	assert.Len(t, lines, 3*len(gaugeDefs))
}
