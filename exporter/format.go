package exporter

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// contentType is the exposition format version served on /metrics.
const contentType = "text/plain; version=0.0.4; charset=utf-8"

// labelEscaper implements the exposition format's label-value escaping.
// Everything else passes through unchanged.
var labelEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapeLabelValue(v string) string {
	return labelEscaper.Replace(v)
}

type gaugeDef struct {
	name   string
	help   string
	render func(c *Counters) string
}

// fixed formats a float with a fixed number of decimals.
func fixed(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// gaugeDefs is the fixed, exhaustive set of exported families, in emission
// order. Precision per family: 2 for rates, 3 for frame time and GB
// values, 1 for percentages and power, integers for clocks and
// temperatures.
var gaugeDefs = []gaugeDef{
	{"mangohud_fps_current", "Current frames per second",
		func(c *Counters) string { return fixed(c.FPS, 2) }},
	{"mangohud_frametime_ms", "Current frame time in milliseconds",
		func(c *Counters) string { return fixed(c.FrameTimeMs, 3) }},
	{"mangohud_cpu_load_percent", "CPU load percentage",
		func(c *Counters) string { return fixed(c.CPULoadPct, 1) }},
	{"mangohud_cpu_power_watts", "CPU power consumption in watts",
		func(c *Counters) string { return fixed(c.CPUPowerWatts, 1) }},
	{"mangohud_cpu_frequency_mhz", "CPU frequency in MHz",
		func(c *Counters) string { return strconv.Itoa(c.CPUFreqMHz) }},
	{"mangohud_cpu_temperature_celsius", "CPU temperature in Celsius",
		func(c *Counters) string { return strconv.Itoa(c.CPUTempC) }},
	{"mangohud_gpu_load_percent", "GPU load percentage",
		func(c *Counters) string { return fixed(c.GPULoadPct, 1) }},
	{"mangohud_gpu_temperature_celsius", "GPU temperature in Celsius",
		func(c *Counters) string { return strconv.Itoa(c.GPUTempC) }},
	{"mangohud_gpu_core_clock_mhz", "GPU core clock in MHz",
		func(c *Counters) string { return strconv.Itoa(c.GPUCoreClockMHz) }},
	{"mangohud_gpu_memory_clock_mhz", "GPU memory clock in MHz",
		func(c *Counters) string { return strconv.Itoa(c.GPUMemClockMHz) }},
	{"mangohud_gpu_power_watts", "GPU power consumption in watts",
		func(c *Counters) string { return fixed(c.GPUPowerWatts, 1) }},
	{"mangohud_gpu_vram_used_gb", "GPU VRAM used in GB",
		func(c *Counters) string { return fixed(c.GPUVRAMUsedGB, 3) }},
	{"mangohud_ram_used_gb", "System RAM used in GB",
		func(c *Counters) string { return fixed(c.RAMUsedGB, 3) }},
	{"mangohud_swap_used_gb", "System swap used in GB",
		func(c *Counters) string { return fixed(c.SwapUsedGB, 3) }},
	{"mangohud_process_rss_gb", "Process RSS memory in GB",
		func(c *Counters) string { return fixed(c.ProcessRSSGB, 3) }},
}

// renderExposition writes HELP, TYPE and one sample line per family. All
// samples share one label set and one timestamp: tsMillis is wall-clock
// milliseconds at formatting time, not the snapshot's capture time, so
// consecutive scrapes of an unchanged snapshot carry distinct timestamps.
func renderExposition(snap *Snapshot, tsMillis int64) []byte {
	labels := renderLabels(snap)

	var b bytes.Buffer
	b.Grow(4096)
	for i := range gaugeDefs {
		def := &gaugeDefs[i]
		fmt.Fprintf(&b, "# HELP %s %s\n", def.name, def.help)
		fmt.Fprintf(&b, "# TYPE %s gauge\n", def.name)
		fmt.Fprintf(&b, "%s{%s} %s %d\n", def.name, labels, def.render(&snap.Counters), tsMillis)
	}

	return b.Bytes()
}

// renderLabels builds the shared label set once per response. The PID is
// numeric and needs no escaping.
func renderLabels(snap *Snapshot) string {
	var b strings.Builder
	b.WriteString(`process_name="`)
	b.WriteString(escapeLabelValue(snap.ProcessName))
	b.WriteString(`",graphics_api="`)
	b.WriteString(escapeLabelValue(snap.GraphicsAPI))
	b.WriteString(`",pid="`)
	b.WriteString(strconv.Itoa(snap.PID))
	b.WriteString(`"`)

	return b.String()
}
