package aggregator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/flyingMooncake/SentinelKarma-sub000/metrics"
	"github.com/flyingMooncake/SentinelKarma-sub000/telemetry"
)

// Publisher delivers serialized Diagnostics to the broker. Delivery is
// best-effort, at-most-once.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Config contains the aggregator's tuning knobs.
type Config struct {
	// WindowMS is the emission tick in milliseconds.
	WindowMS int
	// DiagTopic is the broker topic Diagnostics are published to.
	DiagTopic string
	// LatAlpha and ErrAlpha are the EMA smoothing factors for the latency
	// and error-rate baselines.
	LatAlpha float64
	ErrAlpha float64
	// Log is the structured logger for aggregator operations.
	Log *slog.Logger
}

// DefaultConfig returns the aggregator defaults: a 250ms window and the
// smoothing factors the series baselines were tuned with.
func DefaultConfig() *Config {
	return &Config{
		WindowMS:  250,
		DiagTopic: "sentinel/diag",
		LatAlpha:  0.15,
		ErrAlpha:  0.10,
	}
}

// Aggregator maintains one sliding statistical window per key and emits one
// Diagnostic per active key on each tick.
type Aggregator struct {
	cfg *Config
	pub Publisher
	log *slog.Logger

	mu      sync.RWMutex
	windows map[WindowKey]*windowState
}

// New creates an aggregator publishing through pub.
func New(cfg *Config, pub Publisher) *Aggregator {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{
		cfg:     cfg,
		pub:     pub,
		log:     log,
		windows: make(map[WindowKey]*windowState),
	}
}

// Ingest appends an event to its key's window, creating the window on first
// sight. Never blocks on I/O; safe for concurrent use with Run.
//
// An event whose timestamp predates the currently open window is still
// attributed to the open window. Metrics can skew under reordering or clock
// drift; the behavior is kept as the deployed system has it.
func (a *Aggregator) Ingest(ev telemetry.Event) {
	key := WindowKey{Region: ev.Region, ASN: ev.ASN, Method: ev.Method}

	a.mu.RLock()
	w := a.windows[key]
	a.mu.RUnlock()

	if w == nil {
		a.mu.Lock()
		if w = a.windows[key]; w == nil {
			w = newWindowState(a.cfg.LatAlpha, a.cfg.ErrAlpha)
			a.windows[key] = w
		}
		a.mu.Unlock()
	}

	w.add(ev)
	metrics.EventsIngested.Inc()
}

// Run fires the emission tick every WindowMS until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(a.cfg.WindowMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.tick(time.Now())
		}
	}
}

// tick emits one Diagnostic per window that saw events since its last
// emission. Percentile and z-score computation and publishing happen outside
// every lock; only the per-key snapshot-and-reset is a critical section.
func (a *Aggregator) tick(now time.Time) {
	a.mu.RLock()
	keys := make([]WindowKey, 0, len(a.windows))
	states := make([]*windowState, 0, len(a.windows))
	for k, w := range a.windows {
		keys = append(keys, k)
		states = append(states, w)
	}
	a.mu.RUnlock()

	ts := now.Unix()
	for i, w := range states {
		snap, ok := w.snapshotAndReset()
		if !ok {
			continue // quiet window, baseline preserved
		}

		p95 := percentile(snap.samples, 95)
		errRate := float64(snap.errs) / float64(snap.count)

		// z against the baseline as of the previous tick, then roll the
		// baseline forward with this window's values. The EMAs are only
		// touched here, single-threaded per tick.
		zLat := w.latEMA.z(p95)
		zErr := w.errEMA.z(errRate)
		w.latEMA.update(p95)
		w.errEMA.update(errRate)

		d := &telemetry.Diagnostic{
			Ts:       ts,
			WindowMS: a.cfg.WindowMS,
			Region:   keys[i].Region,
			ASN:      keys[i].ASN,
			Method:   keys[i].Method,
			Metrics: telemetry.DiagnosticMetrics{
				P95:     p95,
				ErrRate: errRate,
				Count:   snap.count,
			},
			Z:      telemetry.DiagnosticZ{Lat: zLat, Err: zErr},
			Sample: snap.sample,
		}

		payload, err := d.Encode()
		if err != nil {
			a.log.Error("encoding diagnostic", "err", err)
			continue
		}
		if err := a.pub.Publish(a.cfg.DiagTopic, payload); err != nil {
			// Best-effort transport; metrics are re-derived next window.
			a.log.Warn("publishing diagnostic", "err", err, "method", keys[i].Method)
			continue
		}
		metrics.DiagnosticsEmitted.Inc()
	}
}

// ActiveWindows returns the number of keys currently tracked.
func (a *Aggregator) ActiveWindows() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.windows)
}
