// Package exporter implements an embeddable Prometheus telemetry endpoint
// for MangoHud performance counters. A refresh goroutine periodically
// snapshots counters from a Source into a locked cache, and a minimal
// hand-rolled HTTP/1.1 listener serves the cache as text exposition gauges
// on GET /metrics. It is a side-channel: nothing here blocks or alters the
// embedding application, and no failure crosses the Start/Stop/Refresh
// boundary.
package exporter

import (
	"context"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gabrielpetry/MangoHud/internal/logger"
)

// Exporter owns the two background tasks: delayed server bring-up and the
// periodic refresh. The zero value is not usable; construct with New.
// Owners must call Stop when done, as the daemon does.
type Exporter struct {
	cfg      Config
	source   Source
	recorder Recorder

	cache snapshotCache
	state atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	ln     net.Listener
	wg     sync.WaitGroup
}

// Option configures optional collaborators at construction.
type Option func(*Exporter)

// WithRecorder attaches a recorder invoked after every cache refresh.
func WithRecorder(r Recorder) Option {
	return func(e *Exporter) {
		e.recorder = r
	}
}

// New builds an exporter around the given source. Construction never
// fails: a nil source with Enabled set logs an error and disables the
// exporter instead.
func New(cfg Config, source Source, opts ...Option) *Exporter {
	cfg = cfg.withDefaults()
	if cfg.Enabled && source == nil {
		logger.Error().Msg("No counter source provided; metrics exporter disabled")
		cfg.Enabled = false
	}

	e := &Exporter{
		cfg:    cfg,
		source: source,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Start launches the start-delay task and the refresh task. It is a no-op
// when the exporter is disabled or already started. Bring-up failures are
// logged, never returned.
func (e *Exporter) Start() {
	if !e.cfg.Enabled {
		logger.Debug().Msg("Metrics exporter disabled")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel != nil {
		logger.Debug().Msg("Metrics exporter already started")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.state.Store(int32(StateStarting))

	e.wg.Add(2)
	go e.serveAfterDelay(ctx)
	go e.refreshLoop(ctx)

	logger.Info().
		Str("address", e.cfg.ListenAddress).
		Dur("start_delay", e.cfg.StartDelay).
		Dur("interval", e.cfg.RefreshInterval).
		Msg("Metrics exporter started")
}

// Stop cancels both tasks, closes the listening socket if open, and joins.
// It is idempotent and safe to call before Start, repeatedly, and from any
// goroutine.
func (e *Exporter) Stop() {
	e.mu.Lock()
	if e.cancel == nil {
		e.mu.Unlock()
		return
	}
	e.cancel()
	e.cancel = nil
	if e.ln != nil {
		e.ln.Close()
		e.ln = nil
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.state.Store(int32(StateStopped))
	logger.Debug().Msg("Metrics exporter stopped")
}

// Refresh pulls one snapshot immediately, outside the periodic schedule.
// No-op while disabled.
func (e *Exporter) Refresh() {
	if !e.cfg.Enabled {
		return
	}

	e.refresh(context.Background())
}

// State reports the current lifecycle state.
func (e *Exporter) State() State {
	return State(e.state.Load())
}

// HasData reports whether at least one snapshot has been cached.
func (e *Exporter) HasData() bool {
	return e.cache.hasData()
}

// Addr returns the bound listen address, or nil unless listening.
func (e *Exporter) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ln == nil {
		return nil
	}

	return e.ln.Addr()
}

// serveAfterDelay waits out the configured delay, then binds and serves.
// A bind failure aborts only the server side: the refresh task keeps the
// exporter alive, it just never serves.
func (e *Exporter) serveAfterDelay(ctx context.Context) {
	defer e.wg.Done()

	if e.cfg.StartDelay > 0 {
		delay := time.NewTimer(e.cfg.StartDelay)
		defer delay.Stop()

		select {
		case <-ctx.Done():
			return
		case <-delay.C:
		}
	}
	if ctx.Err() != nil {
		return
	}

	ln, err := e.listen()
	if err != nil {
		logger.Error().Err(err).Msg("Metrics listener bring-up failed")
		return
	}

	e.mu.Lock()
	if ctx.Err() != nil {
		// Stop ran while we were binding.
		e.mu.Unlock()
		ln.Close()

		return
	}
	e.ln = ln
	e.mu.Unlock()

	e.state.Store(int32(StateListening))
	logger.Info().Str("address", ln.Addr().String()).Msg("Serving Prometheus metrics")

	e.acceptLoop(ctx, ln)

	e.mu.Lock()
	if e.ln == ln {
		e.ln = nil
	}
	e.mu.Unlock()
	ln.Close()

	if ctx.Err() == nil {
		// The listener died on its own; the refresh task is still running.
		e.state.Store(int32(StateStarting))
	}
}

// refreshLoop repopulates the cache every RefreshInterval. The first tick
// happens after one full interval; there is no eager priming.
func (e *Exporter) refreshLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.refresh(ctx)
		}
	}
}

// refresh overwrites the cache wholesale with a fresh snapshot. A failed
// counter read keeps the previous values; stale data is acceptable and not
// an error.
func (e *Exporter) refresh(ctx context.Context) {
	counters, err := e.source.Counters()
	if err != nil {
		counters = e.cache.load().Counters
		logger.Debug().Err(err).Msg("Counter read failed; keeping previous values")
	}

	snap := Snapshot{
		Counters:    counters,
		ProcessName: e.source.ProcessName(),
		GraphicsAPI: e.source.GraphicsAPI().String(),
		PID:         os.Getpid(),
		Timestamp:   time.Now(),
	}

	first := !e.cache.hasData()
	e.cache.store(snap)
	if first {
		logger.Debug().Msg("First metrics snapshot cached")
	}

	if e.recorder != nil {
		if err := e.recorder.Record(ctx, &snap); err != nil {
			logger.Warn().Err(err).Msg("Failed to record metrics snapshot")
		}
	}
}
