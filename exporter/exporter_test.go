package exporter_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielpetry/MangoHud/exporter"
)

const metricsRequest = "GET /metrics HTTP/1.1\r\nHost: localhost\r\nAccept: */*\r\n\r\n"

type stubSource struct {
	mu       sync.Mutex
	counters exporter.Counters
	err      error
	name     string
	api      exporter.GraphicsAPI
	calls    atomic.Int64
}

func newStubSource() *stubSource {
	return &stubSource{name: "vkcube", api: exporter.APIVulkan}
}

func (s *stubSource) set(c exporter.Counters, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = c
	s.err = err
}

func (s *stubSource) Counters() (exporter.Counters, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters, s.err
}

func (s *stubSource) ProcessName() string { return s.name }

func (s *stubSource) GraphicsAPI() exporter.GraphicsAPI { return s.api }

func (s *stubSource) callCount() int64 { return s.calls.Load() }

type captureRecorder struct {
	mu    sync.Mutex
	snaps []exporter.Snapshot
	err   error
}

func (r *captureRecorder) Record(_ context.Context, snap *exporter.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.snaps = append(r.snaps, *snap)

	return nil
}

func (r *captureRecorder) recorded() []exporter.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]exporter.Snapshot(nil), r.snaps...)
}

// freePort reserves an ephemeral loopback port and releases it for the
// exporter to claim.
func freePort(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	return addr
}

// scrape performs one raw request and reads until the server closes.
func scrape(t *testing.T, addr, request string) string {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(request))
	require.NoError(t, err)

	data, err := io.ReadAll(conn)
	require.NoError(t, err)

	return string(data)
}

func waitListening(t *testing.T, e *exporter.Exporter) string {
	t.Helper()

	require.Eventually(t, func() bool { return e.Addr() != nil },
		3*time.Second, 10*time.Millisecond, "exporter never started listening")

	return e.Addr().String()
}

func TestExporterServesOverTCP(t *testing.T) {
	src := newStubSource()
	src.set(exporter.Counters{FPS: 143.5, GPUTempC: 66, RAMUsedGB: 12.125}, nil)

	cfg := exporter.Config{
		Enabled:         true,
		ListenAddress:   freePort(t),
		StartDelay:      0,
		RefreshInterval: 20 * time.Millisecond,
	}
	e := exporter.New(cfg, src)
	e.Start()
	defer e.Stop()

	addr := waitListening(t, e)
	assert.Equal(t, cfg.ListenAddress, addr)
	assert.Equal(t, exporter.StateListening, e.State())

	require.Eventually(t, e.HasData, 3*time.Second, 10*time.Millisecond)

	resp := scrape(t, addr, metricsRequest)
	require.True(t, strings.HasPrefix(resp, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, resp, "Content-Type: text/plain; version=0.0.4; charset=utf-8\r\n")
	assert.Contains(t, resp, "Connection: close\r\n")
	assert.Contains(t, resp, `process_name="vkcube",graphics_api="VULKAN",pid="`+strconv.Itoa(os.Getpid())+`"`)
	assert.Regexp(t, `mangohud_fps_current\{[^}]+\} 143\.50 \d{13}`, resp)
	assert.Regexp(t, `mangohud_ram_used_gb\{[^}]+\} 12\.125 \d{13}`, resp)

	// Connections are handled one at a time; a second scrape works.
	again := scrape(t, addr, metricsRequest)
	assert.True(t, strings.HasPrefix(again, "HTTP/1.1 200 OK\r\n"))

	notFound := scrape(t, addr, "GET /other HTTP/1.1\r\nHost: localhost\r\n\r\n")
	assert.Equal(t, "HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\nConnection: close\r\n\r\n", notFound)

	e.Stop()
	assert.Equal(t, exporter.StateStopped, e.State())

	_, err := net.Dial("tcp", addr)
	assert.Error(t, err, "socket is released after Stop")
}

func TestExporterServesZerosBeforeFirstRefresh(t *testing.T) {
	src := newStubSource()
	src.set(exporter.Counters{FPS: 500}, nil)

	cfg := exporter.Config{
		Enabled:         true,
		ListenAddress:   freePort(t),
		RefreshInterval: time.Hour,
	}
	e := exporter.New(cfg, src)
	e.Start()
	defer e.Stop()

	addr := waitListening(t, e)
	require.False(t, e.HasData(), "first refresh happens a full interval after start")

	resp := scrape(t, addr, metricsRequest)
	require.True(t, strings.HasPrefix(resp, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, resp, `mangohud_fps_current{process_name="",graphics_api="",pid="0"} 0.00 `)
}

func TestExporterRefreshOnDemand(t *testing.T) {
	src := newStubSource()
	src.set(exporter.Counters{FPS: 143.5}, nil)

	cfg := exporter.Config{
		Enabled:         true,
		ListenAddress:   freePort(t),
		RefreshInterval: time.Hour,
	}
	e := exporter.New(cfg, src)
	e.Start()
	defer e.Stop()

	addr := waitListening(t, e)
	require.False(t, e.HasData())

	e.Refresh()
	require.True(t, e.HasData())

	resp := scrape(t, addr, metricsRequest)
	assert.Regexp(t, `mangohud_fps_current\{[^}]+\} 143\.50 \d{13}`, resp)
}

func TestExporterStartDelay(t *testing.T) {
	src := newStubSource()
	cfg := exporter.Config{
		Enabled:         true,
		ListenAddress:   freePort(t),
		StartDelay:      150 * time.Millisecond,
		RefreshInterval: 20 * time.Millisecond,
	}
	e := exporter.New(cfg, src)
	e.Start()
	defer e.Stop()

	assert.Equal(t, exporter.StateStarting, e.State())
	assert.Nil(t, e.Addr())

	_, err := net.Dial("tcp", cfg.ListenAddress)
	assert.Error(t, err, "nothing listens during the start delay")

	waitListening(t, e)
	assert.Equal(t, exporter.StateListening, e.State())
}

func TestExporterStopDuringDelayReturnsPromptly(t *testing.T) {
	src := newStubSource()
	cfg := exporter.Config{
		Enabled:         true,
		ListenAddress:   freePort(t),
		StartDelay:      time.Hour,
		RefreshInterval: time.Hour,
	}
	e := exporter.New(cfg, src)
	e.Start()

	begin := time.Now()
	e.Stop()

	assert.Less(t, time.Since(begin), 3*time.Second, "Stop interrupts the start delay")
	assert.Equal(t, exporter.StateStopped, e.State())
	assert.Nil(t, e.Addr())
}

func TestExporterDisabled(t *testing.T) {
	src := newStubSource()
	cfg := exporter.Config{
		Enabled:         false,
		ListenAddress:   freePort(t),
		RefreshInterval: 10 * time.Millisecond,
	}
	e := exporter.New(cfg, src)
	e.Start()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, exporter.StateStopped, e.State())
	assert.Nil(t, e.Addr())
	assert.Zero(t, src.callCount(), "no refresh task runs while disabled")

	_, err := net.Dial("tcp", cfg.ListenAddress)
	assert.Error(t, err)

	e.Refresh()
	assert.False(t, e.HasData(), "Refresh is a no-op while disabled")

	e.Stop()
	assert.Equal(t, exporter.StateStopped, e.State())
}

func TestExporterNilSourceIsForcedOff(t *testing.T) {
	cfg := exporter.Config{
		Enabled:         true,
		ListenAddress:   freePort(t),
		RefreshInterval: 10 * time.Millisecond,
	}
	e := exporter.New(cfg, nil)
	e.Start()

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, exporter.StateStopped, e.State())
	assert.Nil(t, e.Addr())

	e.Stop()
}

func TestExporterDoubleStartKeepsOneTaskPair(t *testing.T) {
	src := newStubSource()
	interval := 20 * time.Millisecond
	cfg := exporter.Config{
		Enabled:         true,
		ListenAddress:   freePort(t),
		StartDelay:      time.Hour,
		RefreshInterval: interval,
	}
	e := exporter.New(cfg, src)

	begin := time.Now()
	e.Start()
	e.Start()

	time.Sleep(300 * time.Millisecond)
	e.Stop()
	elapsed := time.Since(begin)

	calls := src.callCount()
	require.NotZero(t, calls)

	// A single refresh task cannot tick more often than the interval. A
	// duplicate pair would roughly double the count.
	maxTicks := int64(elapsed/interval) + 1
	assert.LessOrEqual(t, calls, maxTicks)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, calls, src.callCount(), "refresh task is joined after Stop")
}

func TestExporterStopIsIdempotent(t *testing.T) {
	src := newStubSource()
	cfg := exporter.Config{
		Enabled:         true,
		ListenAddress:   freePort(t),
		RefreshInterval: 20 * time.Millisecond,
	}
	e := exporter.New(cfg, src)

	e.Stop() // before Start
	assert.Equal(t, exporter.StateStopped, e.State())

	e.Start()
	waitListening(t, e)

	e.Stop()
	e.Stop()
	assert.Equal(t, exporter.StateStopped, e.State())
}

func TestExporterRestartsOnSamePort(t *testing.T) {
	src := newStubSource()
	src.set(exporter.Counters{FPS: 60}, nil)
	cfg := exporter.Config{
		Enabled:         true,
		ListenAddress:   freePort(t),
		RefreshInterval: time.Hour,
	}
	e := exporter.New(cfg, src)

	e.Start()
	addr := waitListening(t, e)
	// Leave a client-side connection behind so the port has TIME_WAIT
	// residue for the second bind.
	scrape(t, addr, metricsRequest)
	e.Stop()

	e.Start()
	defer e.Stop()
	addr = waitListening(t, e)

	resp := scrape(t, addr, metricsRequest)
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 200 OK\r\n"))
}

func TestExporterBindFailureLeavesRefreshRunning(t *testing.T) {
	addr := freePort(t)
	blocker, err := net.Listen("tcp4", addr)
	require.NoError(t, err)
	defer blocker.Close()

	src := newStubSource()
	cfg := exporter.Config{
		Enabled:         true,
		ListenAddress:   addr,
		RefreshInterval: 20 * time.Millisecond,
	}
	e := exporter.New(cfg, src)
	e.Start()
	defer e.Stop()

	require.Eventually(t, func() bool { return src.callCount() >= 2 },
		3*time.Second, 10*time.Millisecond, "refresh task survives the bind failure")
	assert.Nil(t, e.Addr())
	assert.Equal(t, exporter.StateStarting, e.State())

	e.Stop()
	assert.Equal(t, exporter.StateStopped, e.State())
}

func TestExporterRecorder(t *testing.T) {
	src := newStubSource()
	src.set(exporter.Counters{FPS: 143.5}, nil)
	rec := &captureRecorder{}

	cfg := exporter.Config{Enabled: true, RefreshInterval: time.Hour}
	e := exporter.New(cfg, src, exporter.WithRecorder(rec))

	e.Refresh()
	e.Refresh()

	snaps := rec.recorded()
	require.Len(t, snaps, 2)
	assert.Equal(t, 143.5, snaps[0].Counters.FPS)
	assert.Equal(t, "vkcube", snaps[0].ProcessName)
	assert.Equal(t, "VULKAN", snaps[0].GraphicsAPI)
	assert.Equal(t, os.Getpid(), snaps[0].PID)
	assert.False(t, snaps[0].Timestamp.IsZero())
}

func TestExporterRecorderErrorIsAbsorbed(t *testing.T) {
	src := newStubSource()
	src.set(exporter.Counters{FPS: 60}, nil)
	rec := &captureRecorder{err: fmt.Errorf("history store offline")}

	cfg := exporter.Config{Enabled: true, RefreshInterval: time.Hour}
	e := exporter.New(cfg, src, exporter.WithRecorder(rec))

	e.Refresh()
	assert.True(t, e.HasData(), "a failing recorder does not block the cache")
}
