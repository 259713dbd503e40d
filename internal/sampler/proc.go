package sampler

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabrielpetry/MangoHud/exporter"
)

const (
	procStatPath    = "/proc/stat"
	procCPUInfoPath = "/proc/cpuinfo"
	procMemInfoPath = "/proc/meminfo"
	procStatmPath   = "/proc/self/statm"
	hwmonRoot       = "/sys/class/hwmon"
	raplEnergyPath  = "/sys/class/powercap/intel-rapl:0/energy_uj"

	bytesPerGiB     = 1 << 30
	kibPerGiB       = 1 << 20
	milliPerUnit    = 1000
	microJoulesPerJ = 1e6
)

// hwmon driver names that expose the package temperature as temp1_input.
var cpuTempDrivers = map[string]bool{
	"coretemp":    true,
	"k10temp":     true,
	"zenpower":    true,
	"cpu_thermal": true,
}

// cpuTimes is the cumulative jiffy split from the aggregate /proc/stat line.
type cpuTimes struct {
	total uint64
	idle  uint64
}

// parseCPUStat reads the "cpu ..." aggregate line. Idle time includes
// iowait; guest time is already accounted inside user time and is not
// summed again.
func parseCPUStat(line string) (cpuTimes, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return cpuTimes{}, fmt.Errorf("malformed cpu line: %q", line)
	}

	var t cpuTimes
	for i := 1; i < len(fields) && i <= 8; i++ {
		v, err := strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return cpuTimes{}, fmt.Errorf("malformed cpu field %q: %w", fields[i], err)
		}
		t.total += v
		if i == 4 || i == 5 {
			t.idle += v
		}
	}

	return t, nil
}

// loadPercent computes utilization between two cumulative readings.
func loadPercent(prev, cur cpuTimes) float64 {
	if cur.total <= prev.total {
		return 0
	}
	dt := cur.total - prev.total
	di := cur.idle - prev.idle
	if di > dt {
		return 0
	}

	return 100 * float64(dt-di) / float64(dt)
}

// parseCPUMHz averages the "cpu MHz" rows of /proc/cpuinfo.
func parseCPUMHz(text string) (int, error) {
	var sum float64
	var count int

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		name, value, found := strings.Cut(scanner.Text(), ":")
		if !found || strings.TrimSpace(name) != "cpu MHz" {
			continue
		}
		mhz, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			continue
		}
		sum += mhz
		count++
	}
	if count == 0 {
		return 0, fmt.Errorf("no cpu MHz rows")
	}

	return int(math.Round(sum / float64(count))), nil
}

type memInfo struct {
	ramUsedGB  float64
	swapUsedGB float64
}

// parseMemInfo derives used RAM from MemAvailable, the same figure free(1)
// reports, and used swap from the swap totals. Values are in kB.
func parseMemInfo(text string) (memInfo, error) {
	values := map[string]uint64{}
	wanted := map[string]bool{
		"MemTotal": true, "MemAvailable": true,
		"SwapTotal": true, "SwapFree": true,
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		name, rest, found := strings.Cut(scanner.Text(), ":")
		if !found || !wanted[name] {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		v, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			continue
		}
		values[name] = v
	}

	total, okTotal := values["MemTotal"]
	avail, okAvail := values["MemAvailable"]
	if !okTotal || !okAvail || avail > total {
		return memInfo{}, fmt.Errorf("missing MemTotal or MemAvailable")
	}

	mi := memInfo{ramUsedGB: float64(total-avail) / kibPerGiB}
	if swapTotal, ok := values["SwapTotal"]; ok {
		if swapFree, ok := values["SwapFree"]; ok && swapFree <= swapTotal {
			mi.swapUsedGB = float64(swapTotal-swapFree) / kibPerGiB
		}
	}

	return mi, nil
}

// parseStatm converts the resident-pages field of /proc/self/statm.
func parseStatm(text string, pageSize int) (float64, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return 0, fmt.Errorf("malformed statm: %q", text)
	}
	pages, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed resident pages: %w", err)
	}

	return float64(pages) * float64(pageSize) / bytesPerGiB, nil
}

// cpuProbe reads CPU load, frequency, temperature and package power. Load
// and power are deltas, so their first collection after construction
// leaves the fields untouched.
type cpuProbe struct {
	tempPath string

	hasTimes  bool
	lastTimes cpuTimes

	hasEnergy    bool
	lastEnergyUJ int64
	lastEnergyAt time.Time

	pageSize int
}

func newCPUProbe() *cpuProbe {
	return &cpuProbe{
		tempPath: findCPUTempSensor(),
		pageSize: os.Getpagesize(),
	}
}

// findCPUTempSensor locates the package temperature file of a known CPU
// hwmon driver. Empty when none is present.
func findCPUTempSensor() string {
	entries, err := os.ReadDir(hwmonRoot)
	if err != nil {
		return ""
	}

	for _, entry := range entries {
		name, err := os.ReadFile(filepath.Join(hwmonRoot, entry.Name(), "name"))
		if err != nil || !cpuTempDrivers[strings.TrimSpace(string(name))] {
			continue
		}
		tempPath := filepath.Join(hwmonRoot, entry.Name(), "temp1_input")
		if _, err := os.Stat(tempPath); err == nil {
			return tempPath
		}
	}

	return ""
}

func readIntFile(path string) (int64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	return strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
}

// collect overwrites the CPU fields that read successfully and leaves the
// rest untouched.
func (p *cpuProbe) collect(c *exporter.Counters) {
	if b, err := os.ReadFile(procStatPath); err == nil {
		line, _, _ := strings.Cut(string(b), "\n")
		if times, err := parseCPUStat(line); err == nil {
			if p.hasTimes {
				c.CPULoadPct = loadPercent(p.lastTimes, times)
			}
			p.lastTimes = times
			p.hasTimes = true
		}
	}

	if b, err := os.ReadFile(procCPUInfoPath); err == nil {
		if mhz, err := parseCPUMHz(string(b)); err == nil {
			c.CPUFreqMHz = mhz
		}
	}

	if p.tempPath != "" {
		if milli, err := readIntFile(p.tempPath); err == nil {
			c.CPUTempC = int(milli / milliPerUnit)
		}
	}

	p.collectPower(c)
}

// collectPower derives package watts from the RAPL energy counter. A
// counter wrap between readings is skipped instead of reported negative.
func (p *cpuProbe) collectPower(c *exporter.Counters) {
	energy, err := readIntFile(raplEnergyPath)
	if err != nil {
		return
	}
	now := time.Now()

	if p.hasEnergy && energy >= p.lastEnergyUJ {
		if elapsed := now.Sub(p.lastEnergyAt).Seconds(); elapsed > 0 {
			c.CPUPowerWatts = float64(energy-p.lastEnergyUJ) / microJoulesPerJ / elapsed
		}
	}
	p.lastEnergyUJ = energy
	p.lastEnergyAt = now
	p.hasEnergy = true
}

// collectMemory overwrites the system and process memory fields that read
// successfully.
func (p *cpuProbe) collectMemory(c *exporter.Counters) {
	if b, err := os.ReadFile(procMemInfoPath); err == nil {
		if mi, err := parseMemInfo(string(b)); err == nil {
			c.RAMUsedGB = mi.ramUsedGB
			c.SwapUsedGB = mi.swapUsedGB
		}
	}

	if b, err := os.ReadFile(procStatmPath); err == nil {
		if rss, err := parseStatm(string(b), p.pageSize); err == nil {
			c.ProcessRSSGB = rss
		}
	}
}
